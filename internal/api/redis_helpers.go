package api

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Anumulaashok/resume-builder-backend/internal/auth"
)

const (
	loginRateKeyPrefix     = "rate:login:"
	loginLockKeyPrefix     = "lock:login:"
	loginFailKeyPrefix     = "lock:login:fail:"
	refreshBlacklistPrefix = "auth:refresh:blacklist:"
)

type redisRateCounter interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

func incrWithTTL(ctx context.Context, client redisRateCounter, key string, ttl time.Duration) (int64, error) {
	count, err := client.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if count == 1 {
		_ = client.Expire(ctx, key, ttl).Err()
	}
	return count, nil
}

// loginVerdict 是登录前置检查的结果。
type loginVerdict int

const (
	loginAllowed loginVerdict = iota
	loginRateLimited
	loginLocked
)

// loginGuard 在 Redis 中记录每 IP+邮箱 每小时的登录次数与连续失败次数。
// Redis 不可用时放行，登录本身仍由密码校验把关。
type loginGuard struct {
	redis         redis.UniversalClient
	ratePerHour   int
	lockThreshold int
	lockTTL       time.Duration
	now           func() time.Time
}

func (g loginGuard) check(ctx context.Context, ip, email string) loginVerdict {
	if g.ratePerHour > 0 {
		key := loginRateKeyPrefix + ip + ":" + email + ":" + g.now().UTC().Format("2006010215")
		if count, err := incrWithTTL(ctx, g.redis, key, time.Hour); err == nil && count > int64(g.ratePerHour) {
			return loginRateLimited
		}
	}
	if ttl, err := g.redis.TTL(ctx, loginLockKeyPrefix+email).Result(); err == nil && ttl > 0 {
		return loginLocked
	}
	return loginAllowed
}

// recordFailure 累计失败次数，达到阈值后锁定账号 lockTTL。
func (g loginGuard) recordFailure(ctx context.Context, email string) error {
	count, err := incrWithTTL(ctx, g.redis, loginFailKeyPrefix+email, g.lockTTL)
	if err != nil {
		return err
	}
	if g.lockThreshold > 0 && count >= int64(g.lockThreshold) {
		return g.redis.Set(ctx, loginLockKeyPrefix+email, "1", g.lockTTL).Err()
	}
	return nil
}

func (g loginGuard) reset(ctx context.Context, email string) {
	_ = g.redis.Del(ctx, loginFailKeyPrefix+email).Err()
}

// refreshBlacklist 记录已轮换或退出的刷新令牌 jti，保留到令牌自然过期。
type refreshBlacklist struct {
	redis      redis.UniversalClient
	defaultTTL time.Duration
}

func (b refreshBlacklist) revoke(ctx context.Context, claims *auth.TokenClaims) error {
	ttl := b.defaultTTL
	if claims.ExpiresAt != nil {
		ttl = time.Until(claims.ExpiresAt.Time)
	}
	if ttl <= 0 {
		ttl = time.Second
	}
	return b.redis.Set(ctx, refreshBlacklistPrefix+claims.ID, "revoked", ttl).Err()
}

func (b refreshBlacklist) revoked(ctx context.Context, jti string) (bool, error) {
	err := b.redis.Get(ctx, refreshBlacklistPrefix+jti).Err()
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, redis.Nil):
		return false, nil
	default:
		return false, err
	}
}
