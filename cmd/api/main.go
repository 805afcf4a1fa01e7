package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/Anumulaashok/resume-builder-backend/internal/ai"
	"github.com/Anumulaashok/resume-builder-backend/internal/api"
	"github.com/Anumulaashok/resume-builder-backend/internal/auth"
	"github.com/Anumulaashok/resume-builder-backend/internal/config"
	"github.com/Anumulaashok/resume-builder-backend/internal/database"
	"github.com/Anumulaashok/resume-builder-backend/internal/resume"
	"github.com/Anumulaashok/resume-builder-backend/internal/storage"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		log.Fatalf("load .env: %v", err)
	}
	cfg := config.MustLoad()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)
	logger.Info("api bootstrapped",
		slog.String("db_host", cfg.Database.Host),
		slog.Int("db_port", cfg.Database.Port),
		slog.String("db_name", cfg.Database.Name),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.InitDatabase(cfg.Database)
	if err != nil {
		log.Fatalf("init database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		log.Fatalf("unwrap sql db: %v", err)
	}
	defer sqlDB.Close()

	if err := database.Migrate(ctx, sqlDB); err != nil {
		log.Fatalf("migrate database: %v", err)
	}
	logger.Info("database migrated")

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error("close redis client failed", slog.Any("error", err))
		}
	}()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatalf("ping redis: %v", err)
	}

	taskClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer taskClient.Close()

	storageClient, err := storage.NewClient(cfg.MinIO)
	if err != nil {
		log.Fatalf("init storage client: %v", err)
	}

	authService, err := auth.NewAuthServiceFromFiles(
		cfg.Auth.PrivateKeyPath,
		cfg.Auth.PublicKeyPath,
		cfg.Auth.AccessTokenTTL,
		cfg.Auth.RefreshTokenTTL,
	)
	if err != nil {
		log.Fatalf("init auth service: %v", err)
	}

	resumeService, engine, resumeStore := buildResumeService(cfg, db, logger)

	router := api.NewRouter(cfg, logger, sqlDB)
	api.RegisterRoutes(router, api.Dependencies{
		Config:        cfg,
		DB:            db,
		Redis:         redisClient,
		Auth:          authService,
		Engine:        engine,
		Resumes:       resumeService,
		Tasks:         taskClient,
		Exports:       resumeStore,
		Storage:       storageClient,
		Logger:        logger,
		AllowedOrigin: cfg.API.AllowedOrigins,
	})

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.API.Port),
		Handler: router,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("api listening", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.API.ShutdownTimeout)
		defer cancel()
		logger.Info("shutting down api")
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("api stopped with error", slog.Any("error", err))
		os.Exit(1)
	}
}

// buildResumeService 组装简历领域服务。AI 未配置时摘要相关接口返回 503。
func buildResumeService(cfg *config.Config, db *gorm.DB, logger *slog.Logger) (*resume.Service, *resume.Engine, *database.ResumeStore) {
	store := database.NewResumeStore(db)
	engine := resume.NewEngine(store, resume.DefaultRegistry())

	documents, err := resume.NewDocumentValidator()
	if err != nil {
		log.Fatalf("init document validator: %v", err)
	}

	var summarizer resume.Summarizer
	if cfg.AI.Enabled() {
		client, err := ai.NewClient(cfg.AI)
		if err != nil {
			log.Fatalf("init ai client: %v", err)
		}
		summarizer = client
	} else {
		logger.Warn("ai service not configured, summary generation disabled")
	}

	return resume.NewService(store, engine, documents, summarizer), engine, store
}
