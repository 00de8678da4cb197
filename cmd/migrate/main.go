package main

// Apply or inspect the Postgres schema:
//   go run ./cmd/migrate            (up)
//   go run ./cmd/migrate -command status
//   go run ./cmd/migrate -command down

import (
	"context"
	"flag"
	"os"

	"compliance-backend/internal/shared/config"
	"compliance-backend/internal/shared/storage/db"
	"compliance-backend/internal/shared/telemetry"
)

func main() {
	command := flag.String("command", db.CommandUp, "up, down, status or version")
	flag.Parse()

	cfg := config.Load()
	telemetry.Init(telemetry.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
	ctx := context.Background()

	sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, db.OptionsFromEnv(db.DefaultMigrateOptions()))
	if err != nil {
		telemetry.Error("migrate.connect.failed", map[string]any{"error": err.Error()})
		os.Exit(1)
	}
	defer sqlDB.Close()

	if err := db.Migrate(ctx, sqlDB, *command); err != nil {
		telemetry.Error("migrate.failed", map[string]any{"command": *command, "error": err.Error()})
		sqlDB.Close()
		os.Exit(1)
	}
}
