package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/edukit/assignio-backend/internal/config"
	"github.com/edukit/assignio-backend/internal/handler"
	"github.com/edukit/assignio-backend/internal/middleware"
	"github.com/edukit/assignio-backend/internal/response"
	"github.com/edukit/assignio-backend/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Assignment   *handler.AssignmentHandler
	Session      *handler.SessionHandler
	Connectivity *handler.ConnectivityHandler
	WS           *handler.WSHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	authService *service.AuthService,
	handlers *Handlers,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	// Rate limiter for mutating session routes (60 requests per minute per IP).
	writeLimiter := middleware.NewRateLimiter(60, time.Minute)

	// ─── 1. API Group (JWT) ────────────────────────────────────────────
	api := router.Group("/api/v1")
	api.Use(middleware.RequireJWT(authService))
	{
		api.GET("/connectivity", handlers.Connectivity.GetState)
		api.POST("/connectivity/retry", handlers.Connectivity.Retry)

		api.GET("/assignments/:assignment_id", handlers.Assignment.Get)
		api.POST("/reset", handlers.Session.Reset)

		sessions := api.Group("/assignments/:assignment_id/sessions")
		{
			sessions.POST("", writeLimiter.Middleware(), handlers.Session.Start)
			sessions.PUT("/responses", handlers.Session.RecordResponse)
			sessions.POST("/submit", writeLimiter.Middleware(), handlers.Session.Submit)
			sessions.GET("/state", handlers.Session.State)
		}
	}

	// ─── 2. WebSocket Group (WS Auth via query token) ──────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireWSAuth(authService))
	{
		ws.GET("/connectivity", handlers.WS.ConnectivityStream)
	}

	return router
}
