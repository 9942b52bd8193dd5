package app

import (
	"github.com/edulight/edulight-backend/internal/handlers"
	"github.com/edulight/edulight-backend/internal/logger"
	"github.com/edulight/edulight-backend/internal/middleware"
)

type Handlers struct {
	Auth    *handlers.AuthHandler
	Lecture *handlers.LectureHandler
	Test    *handlers.TestHandler
}

func wireHandlers(log *logger.Logger, r Repos, s Services) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Auth:    handlers.NewAuthHandler(log, s.Auth),
		Lecture: handlers.NewLectureHandler(log, r.Lecture, r.Material, r.ProcessedMaterial, r.Course, s.Publisher),
		Test:    handlers.NewTestHandler(log, s.TestAssign),
	}
}

func wireMiddleware(log *logger.Logger, s Services) *middleware.AuthMiddleware {
	return middleware.NewAuthMiddleware(log, s.Auth)
}
