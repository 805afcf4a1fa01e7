package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Anumulaashok/resume-builder-backend/internal/auth"
)

// 上下文键，由处理器读取。
const (
	UserIDKey             = "userID"
	MustChangePasswordKey = "mustChangePassword"
)

func abortUnauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "error": msg})
}

// AuthMiddleware 校验访问令牌并将 userID 注入上下文。
func AuthMiddleware(authService *auth.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			abortUnauthorized(c, "Not authorized, no token provided")
			return
		}

		parts := strings.Fields(header)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
			abortUnauthorized(c, "Not authorized, no token provided")
			return
		}

		claims, err := authService.ValidateToken(parts[1])
		if errors.Is(err, auth.ErrTokenExpired) {
			abortUnauthorized(c, "Not authorized, token expired")
			return
		}
		if err != nil || claims.TokenType != auth.TokenTypeAccess {
			abortUnauthorized(c, "Not authorized, token failed")
			return
		}

		c.Set(UserIDKey, claims.UserID)
		c.Set(MustChangePasswordKey, claims.MustChangePassword)
		c.Next()
	}
}
