package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/hangulab/topik-backend/internal/config"
	"github.com/hangulab/topik-backend/internal/handler"
	"github.com/hangulab/topik-backend/internal/middleware"
	"github.com/hangulab/topik-backend/internal/response"
	"github.com/hangulab/topik-backend/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Exam    *handler.ExamHandler
	Session *handler.SessionHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	authService *service.AuthService,
	handlers *Handlers,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

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

	// Autosave traffic is chatty; the limiter caps one aggressive client
	// without getting in the way of a normal taker saving every answer.
	saveLimiter := middleware.NewRateLimiter(120, time.Minute)

	api := router.Group("/api/v1")
	api.Use(middleware.RequireUserJWT(authService))
	{
		api.GET("/exams", handlers.Exam.List)
		api.GET("/exams/:exam_id", handlers.Exam.GetDetail)
		api.POST("/exams/:exam_id/sessions", handlers.Session.Start)

		sessions := api.Group("/sessions")
		sessions.Use(saveLimiter.Middleware())
		{
			sessions.POST("/:session_id/answers", handlers.Session.SaveAnswer)
			sessions.POST("/:session_id/submit", handlers.Session.Submit)
			sessions.GET("/:session_id/review", handlers.Session.GetReview)
		}
	}

	return router
}
