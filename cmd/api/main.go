package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vtanathip/test-case-generator/internal/api"
	"github.com/vtanathip/test-case-generator/internal/api/handler"
	"github.com/vtanathip/test-case-generator/internal/api/middleware"
	"github.com/vtanathip/test-case-generator/internal/config"
	"github.com/vtanathip/test-case-generator/internal/logger"
	"github.com/vtanathip/test-case-generator/internal/repository"
	"github.com/vtanathip/test-case-generator/internal/service"
	"github.com/vtanathip/test-case-generator/internal/storage"
)

const version = "0.1.0"

func main() {
	// Load configuration
	// Support CONFIG_PATH environment variable for production deployments
	configPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	logg := logger.NewDefault()
	logger.SetDefaultLogger(logg)
	defer logger.Sync()

	// Idempotency guard
	guard, err := repository.NewRedisIdempotencyGuard(&cfg.Redis)
	if err != nil {
		logg.WithError(err).Fatal("Failed to connect to Redis")
	}
	defer guard.Close()

	// Job registry: in-memory by default, database-backed when configured
	var registry repository.JobRegistry
	if cfg.Database.Driver == "memory" {
		registry = repository.NewMemoryJobRegistry()
	} else {
		db, derr := repository.InitDB(&cfg.Database)
		if derr != nil {
			logg.WithError(derr).Fatal("Failed to initialize database")
		}
		registry = repository.NewGormJobRegistry(db)
	}

	// Vector store
	qdrantRepo, err := repository.NewQdrantRepository(&repository.QdrantConnectionConfig{
		Host:            cfg.Qdrant.Host,
		Port:            cfg.Qdrant.Port,
		Collection:      cfg.Qdrant.Collection,
		APIKey:          cfg.Qdrant.APIKey,
		UseTLS:          cfg.Qdrant.UseTLS,
		VectorDimension: cfg.Embedding.Dimensions,
	})
	if err != nil {
		logg.WithError(err).Fatal("Failed to initialize Qdrant repository")
	}
	defer qdrantRepo.Close()

	ctx := context.Background()
	if err := qdrantRepo.EnsureCollection(ctx); err != nil {
		logg.WithError(err).Fatal("Failed to ensure Qdrant collection")
	}

	// Services
	embeddingService := service.NewEmbeddingService(&cfg.Embedding)
	retrievalService := service.NewRetrievalService(embeddingService, qdrantRepo, &cfg.Qdrant)
	llmService := service.NewLLMService(&cfg.LLM)
	githubService := service.NewGitHubService(&cfg.GitHub)
	webhookService := service.NewWebhookService(&cfg.GitHub, guard)

	// Optional document archive
	archive, err := storage.NewDocumentArchive(&cfg.Archive)
	if err != nil {
		logg.WithError(err).Fatal("Failed to initialize document archive")
	}
	var archiver service.DocumentArchiver
	if archive != nil {
		archiver = archive
		logg.Info("Document archiving enabled")
	}

	workflow := service.NewWorkflow(
		registry,
		retrievalService,
		llmService,
		githubService,
		retrievalService,
		archiver,
		&cfg.Workflow,
	)

	// Background jobs keep running until shutdown
	jobCtx, cancelJobs := context.WithCancel(context.Background())
	defer cancelJobs()

	router := api.SetupRouter(api.RouterConfig{
		Mode:    cfg.Server.Mode,
		Version: version,
		CORS: middleware.CORSConfig{
			AllowedOrigins:  cfg.Server.CORS.AllowedOrigins,
			AllowAllOrigins: cfg.Server.CORS.AllowAllOrigins,
		},
		Log:      logg,
		Webhooks: webhookService,
		Workflow: workflow,
		Registry: registry,
		Checkers: map[string]handler.ServiceChecker{
			"ollama": llmService.Ping,
		},
		BaseCtx: jobCtx,
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// Start server in goroutine
	go func() {
		logg.WithFields(logger.Fields{
			"port": cfg.Server.Port,
			"mode": cfg.Server.Mode,
		}).Info("Starting API server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logg.WithError(err).Fatal("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logg.Info("Shutting down server...")
	cancelJobs()

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logg.WithError(err).Fatal("Server forced to shutdown")
	}

	logg.Info("Server exited")
}
