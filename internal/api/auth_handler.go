package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/Anumulaashok/resume-builder-backend/internal/api/middleware"
	"github.com/Anumulaashok/resume-builder-backend/internal/auth"
	"github.com/Anumulaashok/resume-builder-backend/internal/config"
	"github.com/Anumulaashok/resume-builder-backend/internal/database"
)

const refreshTokenCookieName = "refresh_token"

var errInvalidRefreshToken = errors.New("invalid refresh token")

// AuthHandler 处理注册、登录、刷新、退出与修改密码。
type AuthHandler struct {
	db           *gorm.DB
	authService  *auth.AuthService
	logger       *slog.Logger
	guard        loginGuard
	blacklist    refreshBlacklist
	cookieDomain string
	cookieSecure bool
}

// NewAuthHandler 构造认证处理器。
func NewAuthHandler(db *gorm.DB, authService *auth.AuthService, redisClient redis.UniversalClient, logger *slog.Logger, cfg config.AuthConfig) *AuthHandler {
	return &AuthHandler{
		db:          db,
		authService: authService,
		logger:      logger,
		guard: loginGuard{
			redis:         redisClient,
			ratePerHour:   cfg.LoginRateLimit,
			lockThreshold: cfg.LoginLockThreshold,
			lockTTL:       cfg.LoginLockTTL,
			now:           time.Now,
		},
		blacklist:    refreshBlacklist{redis: redisClient, defaultTTL: authService.RefreshTokenTTL()},
		cookieDomain: strings.TrimSpace(cfg.CookieDomain),
		cookieSecure: cfg.CookieSecure,
	}
}

type signupRequest struct {
	Name     string `json:"name" binding:"required,max=128"`
	Email    string `json:"email" binding:"required,email,max=255"`
	Password string `json:"password" binding:"required,min=6,max=72"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" binding:"required,max=72"`
	NewPassword     string `json:"newPassword" binding:"required,min=6,max=72"`
	ConfirmPassword string `json:"confirmPassword" binding:"required,max=72"`
}

type userResponse struct {
	ID    uint   `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type tokenResponse struct {
	AccessToken        string       `json:"accessToken"`
	TokenType          string       `json:"tokenType"`
	ExpiresIn          int          `json:"expiresIn"`
	MustChangePassword bool         `json:"mustChangePassword"`
	User               userResponse `json:"user"`
}

// POST /v1/auth/signup
func (h *AuthHandler) Signup(c *gin.Context) {
	var req signupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	email := normalizeEmail(req.Email)

	ctx := c.Request.Context()
	logger := h.loggerFromContext(c).With(slog.String("email", email))

	var existing database.User
	switch err := h.db.WithContext(ctx).Where("email = ?", email).First(&existing).Error; {
	case err == nil:
		logger.Info("signup conflict: user already exists")
		BadRequest(c, "User already exists")
		return
	case !errors.Is(err, gorm.ErrRecordNotFound):
		logger.Error("signup lookup failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	hashed, err := auth.HashPassword(req.Password)
	if errors.Is(err, auth.ErrPasswordTooLong) {
		BadRequest(c, err.Error())
		return
	}
	if err != nil {
		logger.Error("hash password failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	user := database.User{
		Name:         strings.TrimSpace(req.Name),
		Email:        email,
		PasswordHash: hashed,
	}
	if err := h.db.WithContext(ctx).Create(&user).Error; err != nil {
		logger.Error("create user failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	logger.Info("user registered", slog.Uint64("user_id", uint64(user.ID)))
	h.issueTokens(c, http.StatusCreated, user)
}

// POST /v1/auth/login
// 未知邮箱与错误密码返回同样的 401，避免暴露账号是否存在。
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	email := normalizeEmail(req.Email)

	ctx := c.Request.Context()
	logger := h.loggerFromContext(c).With(slog.String("email", email))

	switch h.guard.check(ctx, c.ClientIP(), email) {
	case loginRateLimited:
		Error(c, http.StatusTooManyRequests, "rate limit exceeded")
		return
	case loginLocked:
		Error(c, http.StatusTooManyRequests, "account temporarily locked")
		return
	}

	var user database.User
	err := h.db.WithContext(ctx).Where("email = ?", email).First(&user).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		logger.Error("login query failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	if err != nil || !auth.CheckPasswordHash(req.Password, user.PasswordHash) {
		logger.Info("login failed", slog.Bool("user_found", err == nil))
		if err := h.guard.recordFailure(ctx, email); err != nil {
			logger.Warn("record login failure failed", slog.Any("error", err))
		}
		Error(c, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	h.guard.reset(ctx, email)
	h.upgradePasswordHash(c, &user, req.Password)
	h.issueTokens(c, http.StatusOK, user)
}

// upgradePasswordHash 在登录成功后把低 cost 的旧哈希升级，失败只记录日志。
func (h *AuthHandler) upgradePasswordHash(c *gin.Context, user *database.User, password string) {
	if !auth.NeedsRehash(user.PasswordHash) {
		return
	}
	logger := h.loggerFromContext(c).With(slog.Uint64("user_id", uint64(user.ID)))
	hashed, err := auth.HashPassword(password)
	if err != nil {
		logger.Warn("rehash password failed", slog.Any("error", err))
		return
	}
	if err := h.db.WithContext(c.Request.Context()).Model(user).Update("password_hash", hashed).Error; err != nil {
		logger.Warn("store rehashed password failed", slog.Any("error", err))
		return
	}
	logger.Info("password hash upgraded")
}

// POST /v1/auth/refresh
// 刷新令牌只能使用一次：颁发新令牌后旧令牌进入黑名单。
func (h *AuthHandler) Refresh(c *gin.Context) {
	ctx := c.Request.Context()
	logger := h.loggerFromContext(c)

	claims, err := h.parseRefreshToken(c)
	if err != nil {
		logger.Info("refresh rejected", slog.Any("error", err))
		Unauthorized(c)
		return
	}

	revoked, err := h.blacklist.revoked(ctx, claims.ID)
	if err != nil {
		logger.Error("refresh token blacklist lookup failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	if revoked {
		logger.Info("refresh token revoked", slog.String("jti", claims.ID))
		Unauthorized(c)
		return
	}

	var user database.User
	if err := h.db.WithContext(ctx).First(&user, claims.UserID).Error; err != nil {
		logger.Info("refresh user not found", slog.Any("error", err))
		Unauthorized(c)
		return
	}

	if err := h.blacklist.revoke(ctx, claims); err != nil {
		logger.Error("refresh revoke old token failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	h.issueTokens(c, http.StatusOK, user)
}

// POST /v1/auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	logger := h.loggerFromContext(c)

	claims, err := h.parseRefreshToken(c)
	if err != nil {
		logger.Info("logout rejected", slog.Any("error", err))
		Unauthorized(c)
		return
	}
	if err := h.blacklist.revoke(c.Request.Context(), claims); err != nil {
		logger.Error("logout revoke token failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	h.writeRefreshCookie(c, "", -1)
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Logged out"})
}

// POST /v1/auth/change-password
// 成功后清除强制改密标记，并作废请求携带的刷新令牌。
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	if req.NewPassword != req.ConfirmPassword {
		BadRequest(c, "password confirmation does not match")
		return
	}
	if strings.TrimSpace(req.NewPassword) == strings.TrimSpace(req.CurrentPassword) {
		BadRequest(c, "new password must be different from current password")
		return
	}

	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	ctx := c.Request.Context()
	logger := h.loggerFromContext(c).With(slog.Uint64("user_id", uint64(userID)))

	var user database.User
	if err := h.db.WithContext(ctx).First(&user, userID).Error; err != nil {
		logger.Info("change password: user not found", slog.Any("error", err))
		Unauthorized(c)
		return
	}
	if !auth.CheckPasswordHash(req.CurrentPassword, user.PasswordHash) {
		logger.Info("change password: current password mismatch")
		Unauthorized(c)
		return
	}

	hashed, err := auth.HashPassword(req.NewPassword)
	if errors.Is(err, auth.ErrPasswordTooLong) {
		BadRequest(c, err.Error())
		return
	}
	if err != nil {
		logger.Error("change password: hash failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	if err := h.db.WithContext(ctx).Model(&user).Updates(map[string]any{
		"password_hash":        hashed,
		"must_change_password": false,
	}).Error; err != nil {
		logger.Error("change password: update failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	user.MustChangePassword = false

	if token, err := c.Cookie(refreshTokenCookieName); err == nil && token != "" {
		if claims, err := h.refreshClaims(token); err == nil {
			if err := h.blacklist.revoke(ctx, claims); err != nil {
				logger.Error("change password: revoke refresh failed", slog.Any("error", err))
				Internal(c, "internal error")
				return
			}
		}
	}

	logger.Info("password changed")
	h.issueTokens(c, http.StatusOK, user)
}

// issueTokens 生成令牌对，写入刷新令牌 Cookie 并返回访问令牌。
func (h *AuthHandler) issueTokens(c *gin.Context, status int, user database.User) {
	pair, err := h.authService.GenerateTokenPair(user.ID, user.MustChangePassword)
	if err != nil {
		h.loggerFromContext(c).Error("generate token pair failed",
			slog.Uint64("user_id", uint64(user.ID)),
			slog.Any("error", err),
		)
		Internal(c, "internal error")
		return
	}

	h.writeRefreshCookie(c, pair.RefreshToken, int(h.authService.RefreshTokenTTL().Seconds()))
	OK(c, status, tokenResponse{
		AccessToken:        pair.AccessToken,
		TokenType:          "Bearer",
		ExpiresIn:          int(h.authService.AccessTokenTTL().Seconds()),
		MustChangePassword: user.MustChangePassword,
		User:               userResponse{ID: user.ID, Name: user.Name, Email: user.Email},
	})
}

// parseRefreshToken 从 Cookie 或请求体取出刷新令牌并校验。
func (h *AuthHandler) parseRefreshToken(c *gin.Context) (*auth.TokenClaims, error) {
	token, err := c.Cookie(refreshTokenCookieName)
	if err != nil || token == "" {
		var req refreshRequest
		if err := c.ShouldBindJSON(&req); err != nil || req.RefreshToken == "" {
			return nil, errInvalidRefreshToken
		}
		token = req.RefreshToken
	}
	return h.refreshClaims(token)
}

func (h *AuthHandler) refreshClaims(token string) (*auth.TokenClaims, error) {
	claims, err := h.authService.ValidateToken(token)
	if err != nil {
		return nil, err
	}
	if claims.TokenType != auth.TokenTypeRefresh || claims.ID == "" {
		return nil, errInvalidRefreshToken
	}
	return claims, nil
}

// writeRefreshCookie 写入 HttpOnly 刷新令牌 Cookie；maxAge < 0 表示删除。
func (h *AuthHandler) writeRefreshCookie(c *gin.Context, value string, maxAge int) {
	cookie := &http.Cookie{
		Name:     refreshTokenCookieName,
		Value:    value,
		MaxAge:   maxAge,
		Path:     "/",
		Domain:   h.cookieDomain,
		Secure:   h.cookieSecure || c.Request.TLS != nil || strings.EqualFold(c.GetHeader("X-Forwarded-Proto"), "https"),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	if maxAge > 0 {
		cookie.Expires = time.Now().Add(time.Duration(maxAge) * time.Second)
	}
	http.SetCookie(c.Writer, cookie)
}

func (h *AuthHandler) loggerFromContext(c *gin.Context) *slog.Logger {
	return middleware.LoggerFromContextOr(c, h.logger)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
