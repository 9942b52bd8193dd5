package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/edulight/edulight-backend/internal/handlers"
	"github.com/edulight/edulight-backend/internal/middleware"
)

type RouterConfig struct {
	AuthHandler    *handlers.AuthHandler
	AuthMiddleware *middleware.AuthMiddleware
	LectureHandler *handlers.LectureHandler
	TestHandler    *handlers.TestHandler
	AllowedOrigins []string
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000", "http://localhost:5173"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	// Public
	router.GET("/healthcheck", handlers.HealthCheck)
	router.POST("/api/login", cfg.AuthHandler.Login)

	// Protected
	api := router.Group("/api")
	api.Use(cfg.AuthMiddleware.RequireAuth())

	api.POST("/lectures/:id/publish", cfg.LectureHandler.PublishLecture)
	api.GET("/lectures/:id/status", cfg.LectureHandler.LectureStatus)
	api.GET("/lectures/:id/materials", cfg.LectureHandler.ListMaterials)

	api.GET("/lectures/:id/test", cfg.TestHandler.GetLectureTest)
	api.POST("/lectures/:id/test/check", cfg.TestHandler.CheckTestAnswers)
	api.GET("/lectures/:id/test/attempts", cfg.TestHandler.GetTestAttempts)
	api.GET("/lectures/:id/test/all-attempts", cfg.TestHandler.GetAllTestAttempts)

	return router
}
