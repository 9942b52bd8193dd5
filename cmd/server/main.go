package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/edulight/edulight-backend/internal/app"
)

func main() {
	// .env is optional; real deployments set env vars directly.
	_ = godotenv.Load()

	a, err := app.New()
	if err != nil {
		fmt.Printf("Failed to initialize: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	if err := a.Run(); err != nil {
		a.Log.Error("Server stopped", "error", err.Error())
		os.Exit(1)
	}
}
