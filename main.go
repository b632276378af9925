// @title Alpha Edu Backend API
// @version 1.0
// @description AI-assisted exam, summarization and tutoring backend for school students.

// @host localhost:8080
// @BasePath /api
// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name Authorization

package main

import (
	"alpha_edu_backend/internal/app"
	"alpha_edu_backend/internal/config"
	"alpha_edu_backend/pkg/configwatcher"
	"alpha_edu_backend/pkg/logger"
	"log"
)

func main() {
	cfg, err := config.LoadConfig("configs")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	application := app.NewApp(cfg)
	defer logger.Log.Sync()

	go configwatcher.WatchConfig("configs/config.yaml", application.ReloadConfig)

	application.Run()
}
