package middleware

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
)

const slogLoggerKey = "slogLogger"

// 探活与指标抓取过于频繁，不输出请求日志。
var quietPaths = map[string]struct{}{
	"/health":  {},
	"/metrics": {},
}

// SlogLoggerMiddleware 为每个请求注入带 Correlation ID 的 slog.Logger，
// 请求结束时按状态码选择日志级别：5xx 为 Error，4xx 为 Warn。
func SlogLoggerMiddleware(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		requestLogger := logger.With(
			slog.String("correlation_id", GetCorrelationID(c)),
			slog.String("method", c.Request.Method),
			slog.String("path", path),
		)
		c.Set(slogLoggerKey, requestLogger)

		start := time.Now()
		c.Next()

		if _, quiet := quietPaths[path]; quiet {
			return
		}

		status := c.Writer.Status()
		level := slog.LevelInfo
		switch {
		case status >= 500:
			level = slog.LevelError
		case status >= 400:
			level = slog.LevelWarn
		}

		attrs := []slog.Attr{
			slog.Int("status", status),
			slog.Duration("latency", time.Since(start)),
		}
		if userID := c.GetUint(UserIDKey); userID != 0 {
			attrs = append(attrs, slog.Uint64("user_id", uint64(userID)))
		}
		if len(c.Errors) > 0 {
			attrs = append(attrs, slog.String("errors", c.Errors.String()))
		}
		requestLogger.LogAttrs(c.Request.Context(), level, "request completed", attrs...)
	}
}

// LoggerFromContext 返回上下文中的 slog.Logger，未设置时退回默认 logger。
func LoggerFromContext(c *gin.Context) *slog.Logger {
	return LoggerFromContextOr(c, nil)
}

// LoggerFromContextOr 与 LoggerFromContext 相同，但未设置时返回 fallback。
func LoggerFromContextOr(c *gin.Context, fallback *slog.Logger) *slog.Logger {
	if logger, ok := c.Value(slogLoggerKey).(*slog.Logger); ok {
		return logger
	}
	if fallback != nil {
		return fallback
	}
	return slog.Default()
}
