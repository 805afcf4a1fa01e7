package database

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/Anumulaashok/resume-builder-backend/internal/config"
)

// 启动时数据库可能尚未就绪（例如 compose 中同时启动），连接探测按固定间隔重试。
const (
	connectAttempts = 5
	connectBackoff  = 2 * time.Second
)

// InitDatabase 使用配置初始化 PostgreSQL 连接，并返回 GORM 数据库实例。
func InitDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("unwrap db: %w", err)
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	for attempt := 1; ; attempt++ {
		err = HealthCheck(context.Background(), sqlDB)
		if err == nil {
			return db, nil
		}
		if attempt == connectAttempts {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("after %d attempts: %w", attempt, err)
		}
		time.Sleep(connectBackoff)
	}
}

// Pinger 是健康检查所需的最小连接能力，*sql.DB 满足该接口。
type Pinger interface {
	PingContext(ctx context.Context) error
}

// HealthCheck 在限定时间内探测数据库连通性。
func HealthCheck(ctx context.Context, db Pinger) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	return nil
}
