package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/timmy/outreach/internal/api/handler"
	"github.com/timmy/outreach/internal/api/middleware"
	"github.com/timmy/outreach/internal/config"
	"github.com/timmy/outreach/internal/domain"
)

// RouterDeps groups what the router wires into handlers.
type RouterDeps struct {
	Runs    handler.RunService
	Health  map[string]handler.Pinger
	Metrics MetricsProvider
}

// MetricsProvider exposes the HTTP middleware and scrape handler.
type MetricsProvider interface {
	Middleware() gin.HandlerFunc
	Handler() http.Handler
}

// SetupRouter configures the Gin router with all routes
func SetupRouter(cfg *config.Config, deps RouterDeps) *gin.Engine {
	switch cfg.Server.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.CORS(cfg.Server.CORS))
	if deps.Metrics != nil {
		r.Use(deps.Metrics.Middleware())
		r.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}

	healthHandler := handler.NewHealthHandler(deps.Health)
	runHandler := handler.NewRunHandler(deps.Runs)

	r.GET("/health", healthHandler.Health)
	r.GET("/ready", healthHandler.Ready)

	v1 := r.Group("/api/v1")
	v1.Use(middleware.Auth(cfg.Auth))
	{
		runs := v1.Group("/campaign-runs")
		runs.POST("/email-finding", runHandler.Start(domain.StageEmailFinding))
		runs.POST("/inserts", runHandler.Start(domain.StageInserts))
		runs.POST("/drafts", runHandler.Start(domain.StageDrafts))
		runs.POST("/sending", runHandler.Start(domain.StageSending))

		runs.GET("/:campaignId", runHandler.Status)
		runs.POST("/:campaignId/reset", runHandler.Reset)
	}

	return r
}
