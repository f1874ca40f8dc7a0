package api

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/vtanathip/test-case-generator/internal/api/handler"
	"github.com/vtanathip/test-case-generator/internal/api/middleware"
	"github.com/vtanathip/test-case-generator/internal/logger"
	"github.com/vtanathip/test-case-generator/internal/repository"
	"github.com/vtanathip/test-case-generator/internal/service"
)

// RouterConfig carries everything the HTTP surface needs.
type RouterConfig struct {
	Mode     string
	Version  string
	CORS     middleware.CORSConfig
	Log      *logger.Logger
	Webhooks *service.WebhookService
	Workflow *service.Workflow
	Registry repository.JobRegistry
	Checkers map[string]handler.ServiceChecker

	// BaseCtx bounds background workflow executions; server shutdown
	// cancels it.
	BaseCtx context.Context
}

// SetupRouter configures the Gin router with all routes
func SetupRouter(cfg RouterConfig) *gin.Engine {
	// Set Gin mode
	switch cfg.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()

	// Add middleware
	r.Use(gin.Recovery())
	r.Use(middleware.LoggerMiddleware(cfg.Log))
	r.Use(middleware.CORS(cfg.CORS))

	// Create handlers
	healthHandler := handler.NewHealthHandler(cfg.Version, cfg.Checkers)
	webhookHandler := handler.NewWebhookHandler(cfg.BaseCtx, cfg.Webhooks, cfg.Workflow)
	jobsHandler := handler.NewJobsHandler(cfg.Registry)

	// Health check
	r.GET("/health", healthHandler.Health)

	// Webhook intake
	r.POST("/webhooks/github", webhookHandler.Receive)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		v1.GET("/jobs", jobsHandler.ListJobs)
		v1.GET("/jobs/:id", jobsHandler.GetJob)
	}

	return r
}
