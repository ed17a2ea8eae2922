package main

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"go-banking-client/internal/app"
	"go-banking-client/internal/logger"
)

func main() {
	// config.Load reads .env too; loading here lets LOG_* take effect first
	_ = godotenv.Load()
	slog.SetDefault(logger.New(os.Stdout, os.Getenv("LOG_FORMAT"), os.Getenv("LOG_LEVEL")))

	application, err := app.New()
	if err != nil {
		slog.Error("failed to initialize application", "error", err)
		os.Exit(1)
	}

	if err := application.Run(); err != nil {
		slog.Error("application run failed", "error", err)
		os.Exit(1)
	}
}
