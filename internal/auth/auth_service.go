package auth

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// 令牌类型，写入 token_type 声明。
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// TokenIssuer 写入 iss 声明，校验时要求一致。
const TokenIssuer = "resume-builder-backend"

const clockSkew = 30 * time.Second

var (
	// ErrInvalidToken 表示令牌无法解析、签名不符或声明不完整。
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenExpired 表示令牌签名有效但已过期。
	ErrTokenExpired = errors.New("token expired")
)

// AuthService 使用 RS256 签发与校验 JWT。
type AuthService struct {
	privateKey      *rsa.PrivateKey
	publicKey       *rsa.PublicKey
	parser          *jwt.Parser
	accessTokenTTL  time.Duration
	refreshTokenTTL time.Duration
	now             func() time.Time
}

// TokenPair 封装访问令牌与刷新令牌。
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// TokenClaims 是令牌里的业务声明。
type TokenClaims struct {
	UserID             uint   `json:"user_id"`
	TokenType          string `json:"token_type"`
	MustChangePassword bool   `json:"must_change_password,omitempty"`
	jwt.RegisteredClaims
}

// NewAuthService 解析 PEM 密钥并构造服务实例。
func NewAuthService(privateKeyPEM, publicKeyPEM []byte, accessTTL, refreshTTL time.Duration) (*AuthService, error) {
	if len(privateKeyPEM) == 0 || len(publicKeyPEM) == 0 {
		return nil, errors.New("both private and public key pem are required")
	}

	privateKey, err := jwt.ParseRSAPrivateKeyFromPEM(privateKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("parse rsa private key: %w", err)
	}
	publicKey, err := jwt.ParseRSAPublicKeyFromPEM(publicKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("parse rsa public key: %w", err)
	}

	return &AuthService{
		privateKey: privateKey,
		publicKey:  publicKey,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
			jwt.WithIssuer(TokenIssuer),
			jwt.WithExpirationRequired(),
			jwt.WithLeeway(clockSkew),
		),
		accessTokenTTL:  accessTTL,
		refreshTokenTTL: refreshTTL,
		now:             time.Now,
	}, nil
}

// NewAuthServiceFromFiles 从磁盘读取 PEM 密钥文件后构造服务实例。
func NewAuthServiceFromFiles(privateKeyPath, publicKeyPath string, accessTTL, refreshTTL time.Duration) (*AuthService, error) {
	privatePEM, err := os.ReadFile(privateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("read private key: %w", err)
	}
	publicPEM, err := os.ReadFile(publicKeyPath)
	if err != nil {
		return nil, fmt.Errorf("read public key: %w", err)
	}
	return NewAuthService(privatePEM, publicPEM, accessTTL, refreshTTL)
}

// GenerateTokenPair 签发一对令牌。
// 刷新令牌带 jti 供登出和轮换时拉黑；mustChangePassword 只写入访问令牌。
func (s *AuthService) GenerateTokenPair(userID uint, mustChangePassword bool) (TokenPair, error) {
	now := s.now()

	access := s.newClaims(userID, TokenTypeAccess, now, s.accessTokenTTL)
	access.MustChangePassword = mustChangePassword

	refresh := s.newClaims(userID, TokenTypeRefresh, now, s.refreshTokenTTL)
	refresh.ID = uuid.NewString()

	var pair TokenPair
	var err error
	if pair.AccessToken, err = s.sign(access); err != nil {
		return TokenPair{}, err
	}
	if pair.RefreshToken, err = s.sign(refresh); err != nil {
		return TokenPair{}, err
	}
	return pair, nil
}

func (s *AuthService) newClaims(userID uint, tokenType string, now time.Time, ttl time.Duration) TokenClaims {
	return TokenClaims{
		UserID:    userID,
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    TokenIssuer,
			Subject:   strconv.FormatUint(uint64(userID), 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
}

func (s *AuthService) sign(claims TokenClaims) (string, error) {
	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(s.privateKey)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", claims.TokenType, err)
	}
	return signed, nil
}

// ValidateToken 校验签名、签发方与有效期，返回业务声明。
// 过期令牌返回 ErrTokenExpired，其余失败均包装 ErrInvalidToken。
func (s *AuthService) ValidateToken(tokenString string) (*TokenClaims, error) {
	if tokenString == "" {
		return nil, fmt.Errorf("%w: empty token", ErrInvalidToken)
	}

	claims := &TokenClaims{}
	token, err := s.parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return s.publicKey, nil
	})
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrTokenExpired
	case err != nil:
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	case !token.Valid || claims.UserID == 0:
		return nil, ErrInvalidToken
	}
	switch claims.TokenType {
	case TokenTypeAccess, TokenTypeRefresh:
	default:
		return nil, fmt.Errorf("%w: unknown token type %q", ErrInvalidToken, claims.TokenType)
	}
	return claims, nil
}

// AccessTokenTTL 返回访问令牌有效期。
func (s *AuthService) AccessTokenTTL() time.Duration { return s.accessTokenTTL }

// RefreshTokenTTL 返回刷新令牌有效期。
func (s *AuthService) RefreshTokenTTL() time.Duration { return s.refreshTokenTTL }
