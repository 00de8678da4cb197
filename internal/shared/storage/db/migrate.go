package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"

	"compliance-backend/internal/shared/telemetry"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

const migrationsDir = "migrations"

// Migration commands accepted by Migrate.
const (
	CommandUp      = "up"
	CommandDown    = "down"
	CommandStatus  = "status"
	CommandVersion = "version"
)

func prepareGoose() error {
	goose.SetBaseFS(migrationFiles)
	return goose.SetDialect("postgres")
}

// RunMigrations applies the embedded schema for contracts, runs and
// analysis rows. A nil database is a no-op.
func RunMigrations(ctx context.Context, database *sql.DB) error {
	return Migrate(ctx, database, CommandUp)
}

// Migrate runs one goose command against the embedded migrations.
func Migrate(ctx context.Context, database *sql.DB, command string) error {
	if database == nil {
		return nil
	}
	if err := prepareGoose(); err != nil {
		return err
	}
	switch command {
	case CommandUp:
		if err := goose.UpContext(ctx, database, migrationsDir); err != nil {
			return err
		}
	case CommandDown:
		if err := goose.DownContext(ctx, database, migrationsDir); err != nil {
			return err
		}
	case CommandStatus:
		return goose.StatusContext(ctx, database, migrationsDir)
	case CommandVersion:
	default:
		return fmt.Errorf("unknown migrate command %q", command)
	}
	version, err := goose.GetDBVersionContext(ctx, database)
	if err != nil {
		return err
	}
	telemetry.Info("db.migrate.done", map[string]any{"command": command, "version": version})
	return nil
}
