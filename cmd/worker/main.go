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
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/Anumulaashok/resume-builder-backend/internal/ai"
	"github.com/Anumulaashok/resume-builder-backend/internal/config"
	"github.com/Anumulaashok/resume-builder-backend/internal/database"
	"github.com/Anumulaashok/resume-builder-backend/internal/metrics"
	"github.com/Anumulaashok/resume-builder-backend/internal/pdf"
	"github.com/Anumulaashok/resume-builder-backend/internal/resume"
	"github.com/Anumulaashok/resume-builder-backend/internal/storage"
	"github.com/Anumulaashok/resume-builder-backend/internal/tasks"
	"github.com/Anumulaashok/resume-builder-backend/internal/worker"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		log.Fatalf("load .env: %v", err)
	}
	cfg := config.MustLoad()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.InitDatabase(cfg.Database)
	if err != nil {
		log.Fatalf("init database: %v", err)
	}
	logger.Info("database connection ready for worker")

	storageClient, err := storage.NewClient(cfg.MinIO)
	if err != nil {
		log.Fatalf("init storage client: %v", err)
	}
	logger.Info("storage client ready", slog.String("bucket", cfg.MinIO.Bucket))

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

	resumeStore := database.NewResumeStore(db)
	engine := resume.NewEngine(resumeStore, resume.DefaultRegistry())
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
	}
	service := resume.NewService(resumeStore, engine, documents, summarizer)

	notifier := worker.NewRedisNotifier(redisClient)
	exportHandler := worker.NewExportTaskHandler(
		resumeStore,
		resumeStore,
		pdf.NewPrinter(cfg.Worker.BrowserBin, cfg.Worker.PrintTimeout, pdf.ParsePaperSize(cfg.Worker.PaperSize)),
		storageClient,
		notifier,
		logger,
	)
	summaryHandler := worker.NewSummaryTaskHandler(service, notifier, logger)

	server := asynq.NewServer(asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}, asynq.Config{
		Concurrency: cfg.Worker.Concurrency,
		Queues:      map[string]int{"default": 1},
	})

	mux := asynq.NewServeMux()
	mux.Use(metrics.AsynqMetricsMiddleware())
	mux.Handle(tasks.TypeResumeExport, exportHandler)
	mux.Handle(tasks.TypeResumeSummary, summaryHandler)

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Worker.MetricsPort),
		Handler: metricsMux,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("worker service started", slog.String("redis_addr", cfg.Redis.Addr()))
		if err := server.Start(mux); err != nil {
			return fmt.Errorf("start worker: %w", err)
		}
		<-gctx.Done()
		server.Shutdown()
		return nil
	})
	g.Go(func() error {
		logger.Info("worker metrics listening", slog.String("addr", metricsServer.Addr))
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve metrics: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.API.ShutdownTimeout)
		defer cancel()
		return metricsServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("worker stopped with error", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("worker stopped")
}
