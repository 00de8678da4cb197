package main

import (
	"context"
	"log"

	"compliance-backend/internal/bootstrap"
	"compliance-backend/internal/shared/config"
	"compliance-backend/internal/shared/server"
	"compliance-backend/internal/shared/storage/db"
	"compliance-backend/internal/shared/telemetry"
)

func main() {
	cfg := config.Load()
	telemetry.Init(telemetry.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})

	app, err := bootstrap.Build(cfg)
	if err != nil {
		log.Fatalf("bootstrap build: %v", err)
	}
	defer app.Close()

	if app.DB != nil && cfg.Env != "production" {
		if err := db.RunMigrations(context.Background(), app.DB); err != nil {
			log.Fatalf("run migrations: %v", err)
		}
	}

	addr := server.Addr(cfg.Port)
	log.Printf("Starting API server on %s", addr)

	if err := app.Router.Run(addr); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
