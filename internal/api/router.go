package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Anumulaashok/resume-builder-backend/internal/api/middleware"
	"github.com/Anumulaashok/resume-builder-backend/internal/config"
	"github.com/Anumulaashok/resume-builder-backend/internal/database"
	"github.com/Anumulaashok/resume-builder-backend/internal/metrics"
)

// NewRouter 构建 Gin 路由引擎并挂载通用中间件、健康检查与指标端点。
// 业务路由由 RegisterRoutes 注册。db 为 nil 时健康检查只返回进程存活。
func NewRouter(cfg *config.Config, logger *slog.Logger, db database.Pinger) *gin.Engine {
	router := gin.New()
	router.Use(
		gin.Recovery(),
		middleware.CorrelationIDMiddleware(),
		middleware.SlogLoggerMiddleware(logger),
		metrics.GinMiddleware(),
	)
	if cfg != nil && cfg.API.RateLimit > 0 {
		router.Use(middleware.NewRateLimiter(cfg.API.RateLimit, cfg.API.RateBurst).Middleware())
	}

	router.GET("/health", func(c *gin.Context) {
		if db != nil {
			if err := database.HealthCheck(c.Request.Context(), db); err != nil {
				middleware.LoggerFromContext(c).Error("health check failed", slog.Any("error", err))
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.NoRoute(func(c *gin.Context) {
		NotFound(c, "Not found - "+c.Request.URL.Path)
	})

	return router
}
