package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/flowforge/orchestrator/internal/http/handlers"
	"github.com/flowforge/orchestrator/internal/http/middleware"
	"github.com/flowforge/orchestrator/internal/platform/logger"
)

// RouterConfig wires the handlers and middleware NewRouter assembles
// into a gin.Engine.
type RouterConfig struct {
	Log         *logger.Logger
	Health      *handlers.HealthHandler
	Task        *handlers.TaskHandler
	Webhook     *handlers.WebhookHandler
	Auth        *middleware.AuthMiddleware
	ServiceName string
}

// NewRouter builds the orchestrator's HTTP surface: a public health
// check and task-read endpoint, and an operator-token-gated group for
// everything that mutates pipeline state.
func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.CORS())
	r.Use(middleware.AttachTraceContext())
	r.Use(middleware.RequestLogger(cfg.Log))
	r.Use(otelgin.Middleware(cfg.ServiceName))

	r.GET("/health", cfg.Health.HealthCheck)

	api := r.Group("/api")
	{
		api.GET("/tasks/:id", cfg.Task.GetTask)
		api.POST("/webhooks/github", cfg.Webhook.GitHub)

		protected := api.Group("/tasks")
		protected.Use(cfg.Auth.RequireAuth())
		{
			protected.POST("", cfg.Task.CreateTask)
			protected.POST("/:id/approve", cfg.Task.Approve)
			protected.POST("/:id/reject", cfg.Task.Reject)
			protected.POST("/:id/kick", cfg.Task.Kick)
		}
	}

	return r
}
