package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"

	"annotext/internal/cache/memory"
	rediscache "annotext/internal/cache/redis"
	"annotext/internal/config"
	"annotext/internal/domain"
	"annotext/internal/email/noop"
	"annotext/internal/email/ses"
	"annotext/internal/extraction"
	"annotext/internal/handler"
	"annotext/internal/llm"
	"annotext/internal/llm/anthropic"
	"annotext/internal/llm/gemini"
	"annotext/internal/llm/local"
	"annotext/internal/llm/openai"
	"annotext/internal/logger"
	"annotext/internal/port"
	"annotext/internal/repository/postgres"
	"annotext/internal/router"
	"annotext/internal/service"
	s3storage "annotext/internal/storage/s3"
	"annotext/internal/usage"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

type redisPinger struct{ client goredis.UniversalClient }

func (p redisPinger) PingContext(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	appLog, err := logger.New(cfg.Log.Format, cfg.Log.Level)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer appLog.Sync()

	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.NewDB(&cfg.DB)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	// Initialize repositories
	jobRepo := postgres.NewJobRepo(db)
	entityRepo := postgres.NewEntityRepo(db)
	entityTypeRepo := postgres.NewEntityTypeRepo(db)
	docRepo := postgres.NewDocumentRepo(db)
	modelRepo := postgres.NewLLMModelRepo(db)
	configRepo := postgres.NewProcessingConfigRepo(db)
	statsRepo := postgres.NewStatsRepo(db)
	users := postgres.NewUserDirectory(db)

	// Register LLM providers
	llm.RegisterProvider(domain.ProviderOpenAI, openai.Factory)
	llm.RegisterProvider(domain.ProviderAnthropic, anthropic.Factory)
	llm.RegisterProvider(domain.ProviderGemini, gemini.Factory)
	llm.RegisterProvider(domain.ProviderLocal, local.Factory)
	llm.RegisterProvider(domain.ProviderCustom, local.CustomFactory)

	readiness := map[string]handler.Pinger{"database": db}

	// Extraction cache
	var cache port.ExtractionCache
	if cfg.Redis.Enabled {
		client, err := rediscache.NewClient(ctx, &cfg.Redis)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		defer client.Close()
		cache = rediscache.NewExtractionCache(client)
		readiness["redis"] = redisPinger{client: client}
	} else {
		cache = memory.NewExtractionCache()
	}

	// Object storage for documents whose text lives in S3
	var storage port.ObjectStorage
	if cfg.S3.Bucket != "" {
		storage, err = s3storage.NewS3Client(&cfg.S3)
		if err != nil {
			return fmt.Errorf("failed to initialize S3 client: %w", err)
		}
	}

	// Job notifications
	var notifier port.NotificationSender
	switch cfg.Email.Provider {
	case "ses":
		notifier, err = ses.NewSESSender(cfg.Email.Region, cfg.Email.FromAddress, cfg.Email.FromName, cfg.Email.FrontendURL)
		if err != nil {
			return fmt.Errorf("failed to initialize SES sender: %w", err)
		}
	default:
		notifier = noop.NewNoopSender(appLog)
	}

	// Initialize services
	tracker := usage.NewTracker(modelRepo, appLog)
	engine := extraction.NewEngine(cache, tracker, appLog, extraction.EngineConfig{
		CacheTTL:         cfg.Extraction.CacheTTL(),
		ChunkConcurrency: cfg.Extraction.ChunkConcurrency,
	})
	llmConfigSvc := service.NewLLMConfigService(modelRepo, configRepo, cfg.LLM, cfg.Extraction.DefaultPromptType, appLog)
	entitySvc := service.NewEntityService(entityRepo, docRepo, appLog)
	statsSvc := service.NewStatsService(statsRepo, tracker)

	inflight := service.NewInFlightJobs()
	orchestrator := service.NewJobOrchestrator(jobRepo, docRepo, inflight, notifier, users, service.OrchestratorConfig{
		MaxRetries: cfg.Queue.MaxRetries,
		RetryDelay: cfg.Queue.RetryDelay(),
	}, appLog)

	handlers := service.NewHandlerRegistry(
		service.NewExtractionHandler(docRepo, storage, entityTypeRepo, entitySvc, llmConfigSvc, engine, service.ExtractionHandlerConfig{
			Bucket:              cfg.S3.Bucket,
			ApplyConfidenceGate: cfg.Extraction.ApplyConfidenceGate,
		}, appLog),
		service.NewConnectionTestHandler(llmConfigSvc, appLog),
		service.NewCleanupHandler(jobRepo, cfg.Retention.JobRetentionDays, appLog),
	)
	worker := service.NewJobWorker(jobRepo, orchestrator, handlers, inflight, service.JobWorkerConfig{
		PollInterval: cfg.Queue.PollInterval(),
		Concurrency:  cfg.Queue.Concurrency,
		JobTimeout:   cfg.Queue.JobTimeout(),
		StaleAfter:   cfg.Queue.StaleAfter(),
	}, appLog)

	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		worker.Start(ctx)
	}()

	// Initialize handlers
	handler.SetErrorLogger(appLog)
	r := router.Setup(appLog, cfg.Server.CORSOrigins, router.Handlers{
		Health: handler.NewHealthHandler(readiness),
		Job:    handler.NewJobHandler(orchestrator),
		Entity: handler.NewEntityHandler(entitySvc),
		Config: handler.NewConfigHandler(llmConfigSvc),
		Stats:  handler.NewStatsHandler(statsSvc),
	})

	srv := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		appLog.Info("server starting", "addr", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		appLog.Info("shutting down")
	case err := <-serverErr:
		if err != nil {
			stop()
			<-workerDone
			return fmt.Errorf("server failed: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLog.Error("server forced to shutdown", "error", err)
	}
	<-workerDone
	appLog.Info("server exited")
	return nil
}
