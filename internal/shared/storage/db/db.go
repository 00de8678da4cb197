package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as database/sql driver

	"compliance-backend/internal/shared/telemetry"
)

// Options controls pool sizing and the connectivity check.
type Options struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration
}

var openDB = sql.Open

// IsLambdaRuntime reports whether the process runs inside AWS Lambda.
func IsLambdaRuntime() bool {
	return strings.TrimSpace(os.Getenv("AWS_LAMBDA_FUNCTION_NAME")) != ""
}

// DefaultLambdaOptions keeps each execution environment to a couple of
// connections; Lambda scales by adding environments.
func DefaultLambdaOptions() Options {
	return Options{
		MaxOpenConns:    2,
		MaxIdleConns:    1,
		ConnMaxIdleTime: 30 * time.Second,
		ConnMaxLifetime: 15 * time.Minute,
		PingTimeout:     3 * time.Second,
	}
}

// DefaultServerOptions sizes the pool for the API and the queue worker. Run
// processing holds a connection only around repository calls, never across
// provider requests.
func DefaultServerOptions() Options {
	return Options{
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxIdleTime: 2 * time.Minute,
		ConnMaxLifetime: time.Hour,
		PingTimeout:     5 * time.Second,
	}
}

// DefaultMigrateOptions is a single connection for cmd/migrate.
func DefaultMigrateOptions() Options {
	return Options{
		MaxOpenConns:    1,
		MaxIdleConns:    1,
		ConnMaxIdleTime: 2 * time.Minute,
		ConnMaxLifetime: time.Hour,
		PingTimeout:     5 * time.Second,
	}
}

type envOverride struct {
	key   string
	apply func(*Options, string) error
}

var envOverrides = []envOverride{
	{"DB_MAX_OPEN_CONNS", func(o *Options, v string) (err error) { o.MaxOpenConns, err = strconv.Atoi(v); return }},
	{"DB_MAX_IDLE_CONNS", func(o *Options, v string) (err error) { o.MaxIdleConns, err = strconv.Atoi(v); return }},
	{"DB_CONN_MAX_LIFETIME", func(o *Options, v string) (err error) { o.ConnMaxLifetime, err = time.ParseDuration(v); return }},
	{"DB_CONN_MAX_IDLE_TIME", func(o *Options, v string) (err error) { o.ConnMaxIdleTime, err = time.ParseDuration(v); return }},
	{"DB_PING_TIMEOUT", func(o *Options, v string) (err error) { o.PingTimeout, err = time.ParseDuration(v); return }},
}

// OptionsFromEnv overrides defaults with DB_* variables. Invalid values are
// logged and ignored.
func OptionsFromEnv(defaults Options) Options {
	opts := defaults
	for _, o := range envOverrides {
		raw := strings.TrimSpace(os.Getenv(o.key))
		if raw == "" {
			continue
		}
		next := opts
		if err := o.apply(&next, raw); err != nil {
			telemetry.Warn("db.env.invalid", map[string]any{"key": o.key, "value": raw, "error": err.Error()})
			continue
		}
		opts = next
	}
	return opts
}

// Connect opens the Postgres pool behind contracts, runs and the postgres
// result store, and verifies it answers.
func Connect(ctx context.Context, databaseURL string, opts Options) (*sql.DB, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is empty")
	}
	return open(ctx, "pgx", databaseURL, opts)
}

func open(ctx context.Context, driver, dsn string, opts Options) (*sql.DB, error) {
	db, err := openDB(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	applyOptions(db, opts)

	pingTimeout := opts.PingTimeout
	if pingTimeout <= 0 {
		pingTimeout = 5 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}

	telemetry.Info("db.pool.opened", poolFields(db, driver))
	return db, nil
}

// Ping reports whether the pool answers within timeout. A nil pool is
// healthy: the process runs on in-memory repositories.
func Ping(ctx context.Context, db *sql.DB, timeout time.Duration) error {
	if db == nil {
		return nil
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return db.PingContext(pingCtx)
}

// sharedPool hands every invocation in one Lambda execution environment the
// same pool. A failed open is not cached, so the next invocation retries.
type sharedPool struct {
	mu      sync.Mutex
	ready   *sync.Cond
	db      *sql.DB
	opening bool
}

func newSharedPool() *sharedPool {
	p := &sharedPool{}
	p.ready = sync.NewCond(&p.mu)
	return p
}

var shared = newSharedPool()

func (p *sharedPool) get(ctx context.Context, databaseURL string, opts Options) (*sql.DB, error) {
	p.mu.Lock()
	for p.opening && p.db == nil {
		p.ready.Wait()
	}
	if p.db != nil {
		db := p.db
		p.mu.Unlock()
		telemetry.Debug("db.pool.reused", nil)
		return db, nil
	}
	p.opening = true
	p.mu.Unlock()

	db, err := Connect(ctx, databaseURL, opts)

	p.mu.Lock()
	if err == nil {
		p.db = db
	}
	p.opening = false
	p.ready.Broadcast()
	p.mu.Unlock()
	return db, err
}

// GetSingleton returns the process-wide pool, opening it on first use.
func GetSingleton(ctx context.Context, databaseURL string, opts Options) (*sql.DB, error) {
	return shared.get(ctx, databaseURL, opts)
}

func applyOptions(db *sql.DB, opts Options) {
	if opts.MaxOpenConns <= 0 {
		opts.MaxOpenConns = 10
	}
	if opts.MaxIdleConns <= 0 {
		opts.MaxIdleConns = 5
	}
	if opts.MaxIdleConns > opts.MaxOpenConns {
		opts.MaxIdleConns = opts.MaxOpenConns
	}
	if opts.ConnMaxLifetime <= 0 {
		opts.ConnMaxLifetime = time.Hour
	}
	db.SetMaxOpenConns(opts.MaxOpenConns)
	db.SetMaxIdleConns(opts.MaxIdleConns)
	db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	if opts.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(opts.ConnMaxIdleTime)
	}
}

func poolFields(db *sql.DB, driver string) map[string]any {
	stats := db.Stats()
	return map[string]any{
		"driver":   driver,
		"open":     stats.OpenConnections,
		"in_use":   stats.InUse,
		"idle":     stats.Idle,
		"max_open": stats.MaxOpenConnections,
	}
}
