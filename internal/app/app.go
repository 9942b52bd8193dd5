package app

import (
	"fmt"
	"os"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/edulight/edulight-backend/internal/db"
	"github.com/edulight/edulight-backend/internal/logger"
	"github.com/edulight/edulight-backend/internal/server"
)

type App struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Router   *gin.Engine
	Cfg      Config
	Repos    Repos
	Services Services
}

func New() (*App, error) {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	log.Info("Loading environment variables...")
	cfg := LoadConfig(log)

	pg, err := db.NewPostgresService(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init postgres: %w", err)
	}
	if err := pg.AutoMigrateAll(); err != nil {
		log.Sync()
		return nil, fmt.Errorf("postgres automigrate: %w", err)
	}
	theDB := pg.DB()

	reposet := wireRepos(theDB, log)
	serviceset, err := wireServices(theDB, log, reposet)
	if err != nil {
		log.Sync()
		return nil, err
	}
	handlerset := wireHandlers(log, reposet, serviceset)
	authMw := wireMiddleware(log, serviceset)

	router := server.NewRouter(server.RouterConfig{
		AuthHandler:    handlerset.Auth,
		AuthMiddleware: authMw,
		LectureHandler: handlerset.Lecture,
		TestHandler:    handlerset.Test,
		AllowedOrigins: cfg.AllowedOrigins,
	})

	return &App{
		Log:      log,
		DB:       theDB,
		Router:   router,
		Cfg:      cfg,
		Repos:    reposet,
		Services: serviceset,
	}, nil
}

func (a *App) Run() error {
	if a == nil || a.Router == nil {
		return fmt.Errorf("app not initialized")
	}
	a.Log.Info("Starting server", "addr", a.Cfg.ListenAddr)
	return a.Router.Run(a.Cfg.ListenAddr)
}

func (a *App) Close() {
	if a != nil && a.Log != nil {
		a.Log.Sync()
	}
}
