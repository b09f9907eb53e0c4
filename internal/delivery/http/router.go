package http

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Harsh-BH/vehicle-counter/internal/delivery/http/middleware"
	"github.com/Harsh-BH/vehicle-counter/internal/notify"
	"github.com/Harsh-BH/vehicle-counter/internal/usecase"
)

// RouterDeps holds everything the HTTP layer needs.
type RouterDeps struct {
	SubmitUC        *usecase.SubmitJobUsecase
	GetJobUC        *usecase.GetJobUsecase
	GetResultUC     *usecase.GetResultUsecase
	Hub             *notify.Hub
	HealthChecks    map[string]HealthCheck
	Logger          *zap.Logger
	RateLimitPerMin int
	MaxUploadBytes  int64
}

// NewRouter creates and configures the Gin router with all routes and middleware.
func NewRouter(deps *RouterDeps) *gin.Engine {
	router := gin.New()

	// Global middleware
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.CORS())
	router.Use(middleware.Logger(deps.Logger))

	// Metrics and health (no rate limiting)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	healthHandler := NewHealthHandler(deps.HealthChecks, deps.Logger)
	router.GET("/health", healthHandler.Health)

	imageHandler := NewImageHandler(deps.SubmitUC, deps.GetJobUC, deps.GetResultUC, deps.Logger)
	images := router.Group("/images", middleware.RateLimiter(deps.RateLimitPerMin))
	{
		// Multipart overhead on top of the file itself.
		images.POST("", middleware.BodySizeLimit(deps.MaxUploadBytes+64<<10), imageHandler.Submit)
		images.GET("/:id", imageHandler.GetByID)
		images.GET("/:id/result.jpg", imageHandler.GetResult)
	}

	// WebSocket for real-time updates
	wsHandler := NewWebSocketHandler(deps.Hub, deps.GetJobUC, deps.Logger)
	router.GET("/ws", wsHandler.Stream)

	return router
}
