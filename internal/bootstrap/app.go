package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"compliance-backend/internal/analysis"
	"compliance-backend/internal/chunker"
	"compliance-backend/internal/contracts"
	"compliance-backend/internal/embedding"
	"compliance-backend/internal/llm"
	"compliance-backend/internal/llm/gemini"
	"compliance-backend/internal/llm/providers"
	"compliance-backend/internal/orchestrator"
	"compliance-backend/internal/queue"
	"compliance-backend/internal/resultstore"
	"compliance-backend/internal/runs"
	"compliance-backend/internal/shared/auth"
	"compliance-backend/internal/shared/config"
	"compliance-backend/internal/shared/server"
	"compliance-backend/internal/shared/storage/db"
	"compliance-backend/internal/shared/storage/object"
	localstore "compliance-backend/internal/shared/storage/object/local"
	miniostore "compliance-backend/internal/shared/storage/object/minio"
	s3store "compliance-backend/internal/shared/storage/object/s3"
	"compliance-backend/internal/shared/telemetry"
)

// App holds shared dependencies for every entrypoint.
type App struct {
	Config      config.Config
	Router      *gin.Engine
	DB          *sql.DB
	Store       object.ObjectStore
	ResultStore resultstore.Store
	Queue       queue.Client
	Tokens      *auth.Tokens

	Registry     *llm.Registry
	Engine       *analysis.Engine
	Chunker      *chunker.Chunker
	Orchestrator *orchestrator.Orchestrator

	ContractsRepo    contracts.Repo
	RunsRepo         runs.Repo
	ContractsService *contracts.Service
	RunsService      *runs.Service
	ContractsHandler *contracts.Handler
	RunsHandler      *runs.Handler

	closers []io.Closer
}

// Close releases clients opened by Build.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// Build prepares shared dependencies and the HTTP router.
func Build(cfg config.Config) (*App, error) {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}
	if strings.TrimSpace(cfg.ObjectStoreType) == "" {
		cfg.ObjectStoreType = "local"
	}
	ctx := context.Background()
	app := &App{Config: cfg}

	sqlDB, err := buildDB(ctx, cfg)
	if err != nil {
		return nil, err
	}
	app.DB = sqlDB
	if sqlDB != nil && !db.IsLambdaRuntime() {
		app.closers = append(app.closers, sqlDB)
	}

	if app.Store, err = buildStore(ctx, cfg); err != nil {
		return nil, app.abort(err)
	}
	if app.ResultStore, err = app.buildResultStore(ctx); err != nil {
		return nil, app.abort(err)
	}
	if app.Queue, err = buildQueue(ctx, cfg); err != nil {
		return nil, app.abort(err)
	}
	if app.Tokens, err = auth.NewTokens(cfg.JWTSecret, cfg.Env); err != nil {
		return nil, app.abort(err)
	}
	if err := app.buildAnalysis(ctx); err != nil {
		return nil, app.abort(err)
	}
	if err := app.buildServices(); err != nil {
		return nil, app.abort(err)
	}

	app.Router = server.NewRouter(server.RouterDeps{
		Config:           cfg,
		Tokens:           app.Tokens,
		ContractsHandler: app.ContractsHandler,
		RunsHandler:      app.RunsHandler,
		Registry:         app.Registry,
		DB:               app.DB,
	})
	return app, nil
}

func (a *App) abort(err error) error {
	if closeErr := a.Close(); closeErr != nil {
		telemetry.Warn("bootstrap.close_failed", map[string]any{"error": closeErr.Error()})
	}
	return err
}

func buildDB(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		if isDevLike(cfg.Env) {
			telemetry.Warn("bootstrap.db.in_memory", map[string]any{"reason": "DATABASE_URL empty"})
			return nil, nil
		}
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	var (
		sqlDB *sql.DB
		err   error
	)
	if db.IsLambdaRuntime() {
		opts := db.OptionsFromEnv(db.DefaultLambdaOptions())
		sqlDB, err = db.GetSingleton(ctx, cfg.DatabaseURL, opts)
	} else {
		opts := db.OptionsFromEnv(db.DefaultServerOptions())
		sqlDB, err = db.Connect(ctx, cfg.DatabaseURL, opts)
	}
	if err != nil {
		if isDevLike(cfg.Env) {
			telemetry.Warn("bootstrap.db.in_memory", map[string]any{"reason": "connect failed", "error": err.Error()})
			return nil, nil
		}
		return nil, err
	}
	return sqlDB, nil
}

func buildStore(ctx context.Context, cfg config.Config) (object.ObjectStore, error) {
	switch cfg.ObjectStoreType {
	case "s3":
		if strings.TrimSpace(cfg.S3Bucket) == "" {
			return nil, fmt.Errorf("OBJECT_STORE=s3 requires S3_BUCKET")
		}
		return s3store.New(ctx, cfg.AWSRegion, cfg.S3Bucket, cfg.S3Prefix, cfg.SSEKMSKeyID)
	case "minio":
		store, err := miniostore.New(miniostore.Config{
			Endpoint:  cfg.MinIOEndpoint,
			AccessKey: cfg.MinIOAccessKey,
			SecretKey: cfg.MinIOSecretKey,
			Bucket:    cfg.MinIOBucket,
			UseSSL:    cfg.MinIOUseSSL,
			Region:    cfg.AWSRegion,
		})
		if err != nil {
			return nil, err
		}
		if err := store.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		return store, nil
	default:
		return localstore.New(cfg.LocalStoreDir), nil
	}
}

// buildResultStore picks the table the orchestrator commits to. Postgres
// reuses the main pool; SQLite opens its own file.
func (a *App) buildResultStore(ctx context.Context) (resultstore.Store, error) {
	switch a.Config.ResultStore {
	case "postgres":
		if a.DB == nil {
			return nil, fmt.Errorf("RESULT_STORE=postgres requires DATABASE_URL")
		}
		return resultstore.NewSQLStore(a.DB, resultstore.DialectPostgres), nil
	case "sqlite":
		sqliteDB, err := db.OpenSQLite(ctx, a.Config.SQLitePath)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, sqliteDB)
		store := resultstore.NewSQLStore(sqliteDB, resultstore.DialectSQLite)
		if err := store.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		return store, nil
	case "sheets":
		return resultstore.NewSheetsStore(ctx, a.Config.SheetsCredentialsFile, a.Config.SheetsSpreadsheetID, a.Config.SheetsSheetName)
	default:
		return resultstore.NewMemoryStore(), nil
	}
}

func buildQueue(ctx context.Context, cfg config.Config) (queue.Client, error) {
	if strings.TrimSpace(cfg.QueueURL) == "" {
		return nil, nil
	}
	return queue.NewSQSClient(ctx, cfg.QueueURL, cfg.AWSRegion)
}

func (a *App) buildAnalysis(ctx context.Context) error {
	cfg := a.Config
	models, err := config.LoadModels(cfg.ModelsFile)
	if err != nil {
		return err
	}

	geminiClient, err := gemini.New(ctx, cfg.GeminiAPIKey)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, geminiClient)

	timeout := time.Duration(cfg.ProviderTimeoutSeconds) * time.Second
	registry, batch, err := providers.Build(models, providers.Credentials{
		GroqAPIKey:   cfg.GroqAPIKey,
		GithubPAT:    cfg.GithubPAT,
		OpenAIAPIKey: cfg.OpenAIAPIKey,
		Gemini:       geminiClient,
	}, timeout)
	if err != nil {
		return err
	}
	a.Registry = registry

	engine := analysis.NewEngine(batch)
	if models.BatchRetries > 0 {
		engine.BatchRetries = models.BatchRetries
	}
	if d, err := time.ParseDuration(strings.TrimSpace(models.BatchBackoff)); err == nil && d > 0 {
		engine.BatchBackoff = d
	}
	a.Engine = engine

	opts := chunker.DefaultOptions()
	opts.Embedder = buildEmbedder(cfg, geminiClient)
	a.Chunker = chunker.New(opts)

	a.Orchestrator = &orchestrator.Orchestrator{
		Providers: registry,
		Engine:    engine,
		Store:     a.ResultStore,
		Workers:   cfg.AnalysisWorkers,
		BatchSize: cfg.BatchSize,
		Mode:      resultstore.ParseWriteMode(cfg.WriteMode),
	}
	return nil
}

// buildEmbedder returns nil when semantic chunking has no backend; the
// chunker then degrades to fixed windows.
func buildEmbedder(cfg config.Config, geminiClient *gemini.Client) embedding.Embedder {
	switch cfg.EmbeddingProvider {
	case "ollama":
		return embedding.NewOllamaAdapter(cfg.OllamaURL, cfg.EmbeddingModel)
	case "gemini":
		if geminiClient == nil || geminiClient.Genai() == nil {
			telemetry.Warn("bootstrap.embedder.disabled", map[string]any{"provider": "gemini", "reason": "GEMINI_API_KEY empty"})
			return nil
		}
		return embedding.NewGeminiAdapter(geminiClient.Genai(), cfg.EmbeddingModel)
	default:
		return nil
	}
}

func (a *App) buildServices() error {
	if a.DB != nil {
		a.ContractsRepo = &contracts.PGRepo{DB: a.DB}
		a.RunsRepo = &runs.PGRepo{DB: a.DB}
	} else {
		a.ContractsRepo = contracts.NewMemoryRepo()
		a.RunsRepo = runs.NewMemoryRepo()
	}

	a.ContractsService = &contracts.Service{
		Store:           a.Store,
		Repo:            a.ContractsRepo,
		StorageProvider: a.Config.ObjectStoreType,
	}
	a.RunsService = &runs.Service{
		Repo:         a.RunsRepo,
		Contracts:    a.ContractsService,
		Chunker:      a.Chunker,
		Orchestrator: a.Orchestrator,
		Rewriter:     a.Engine,
		Queue:        a.Queue,
		Defaults: runs.Options{
			Pipeline:  a.Config.Pipeline,
			ChunkMode: chunker.ParseMode(a.Config.ChunkMode),
			WriteMode: resultstore.ParseWriteMode(a.Config.WriteMode),
		},
	}
	a.ContractsHandler = contracts.NewHandler(a.ContractsService)
	a.RunsHandler = runs.NewHandler(a.RunsService)

	if a.ContractsHandler == nil || a.RunsHandler == nil {
		return errors.New("failed to initialize handlers")
	}
	return nil
}

func isDevLike(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "local":
		return true
	default:
		return false
	}
}
