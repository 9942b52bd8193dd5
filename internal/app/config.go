package app

import (
	"strings"

	"github.com/edulight/edulight-backend/internal/logger"
	"github.com/edulight/edulight-backend/internal/utils"
)

type Config struct {
	ListenAddr     string
	AllowedOrigins []string
}

func LoadConfig(log *logger.Logger) Config {
	addr := utils.GetEnv("LISTEN_ADDR", ":8000", log)
	origins := utils.GetEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:5173", log)
	return Config{
		ListenAddr:     addr,
		AllowedOrigins: strings.Split(origins, ","),
	}
}
