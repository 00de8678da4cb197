package config

import (
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	Port            string
	CORSAllowOrigin []string
	Env             string
	LogLevel        string
	LogFormat       string
	JWTSecret       string

	ObjectStoreType string
	LocalStoreDir   string
	AWSRegion       string
	S3Bucket        string
	S3Prefix        string
	SSEKMSKeyID     string
	MinIOEndpoint   string
	MinIOAccessKey  string
	MinIOSecretKey  string
	MinIOBucket     string
	MinIOUseSSL     bool

	DatabaseURL string
	QueueURL    string

	// Queue worker tuning.
	WorkerConcurrency       int
	WorkerVisibilitySeconds int
	WorkerShutdownSeconds   int

	ResultStore           string
	SQLitePath            string
	SheetsCredentialsFile string
	SheetsSpreadsheetID   string
	SheetsSheetName       string

	GroqAPIKey   string
	GithubPAT    string
	GeminiAPIKey string
	OpenAIAPIKey string
	ModelsFile   string

	ChunkMode         string
	EmbeddingProvider string
	OllamaURL         string
	EmbeddingModel    string

	Pipeline               string
	WriteMode              string
	AnalysisWorkers        int
	BatchSize              int
	ProviderTimeoutSeconds int

	InboxDir string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	// Best-effort load of local env files for dev convenience.
	loadEnvFiles(".env", "cmd/.env")

	env := normalizeEnv(getEnv("ENV", "dev"))
	dbURL := os.Getenv("DATABASE_URL")

	if env == "production" && dbURL == "" {
		log.Printf("DATABASE_URL is required in production")
	}

	return Config{
		Port:            getEnv("PORT", "8080"),
		CORSAllowOrigin: splitAndTrim(getEnv("CORS_ALLOW_ORIGINS", "http://localhost:5173")),
		Env:             env,
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		LogFormat:       getEnv("LOG_FORMAT", "json"),
		JWTSecret:       getEnv("JWT_SECRET", ""),

		ObjectStoreType: normalizeStoreType(getEnv("OBJECT_STORE", "local")),
		LocalStoreDir:   getEnv("LOCAL_STORE_DIR", "./data"),
		AWSRegion:       getEnv("AWS_REGION", ""),
		S3Bucket:        getEnv("S3_BUCKET", ""),
		S3Prefix:        getEnv("S3_PREFIX", ""),
		SSEKMSKeyID:     getEnv("SSE_KMS_KEY_ID", ""),
		MinIOEndpoint:   getEnv("MINIO_ENDPOINT", "127.0.0.1:9000"),
		MinIOAccessKey:  getEnv("MINIO_ACCESS_KEY", ""),
		MinIOSecretKey:  getEnv("MINIO_SECRET_KEY", ""),
		MinIOBucket:     getEnv("MINIO_BUCKET", "contracts"),
		MinIOUseSSL:     getBool("MINIO_USE_SSL", false),

		DatabaseURL: dbURL,
		QueueURL:    getEnv("SQS_QUEUE_URL", ""),

		WorkerConcurrency:       getInt("WORKER_CONCURRENCY", 4),
		WorkerVisibilitySeconds: getInt("SQS_VISIBILITY_TIMEOUT_SECONDS", 1200),
		WorkerShutdownSeconds:   getInt("SHUTDOWN_TIMEOUT_SECONDS", 30),

		ResultStore:           normalizeResultStore(getEnv("RESULT_STORE", "memory")),
		SQLitePath:            getEnv("SQLITE_PATH", "./data/results.db"),
		SheetsCredentialsFile: getEnv("SHEETS_CREDENTIALS_FILE", "credentials.json"),
		SheetsSpreadsheetID:   getEnv("SHEETS_SPREADSHEET_ID", ""),
		SheetsSheetName:       getEnv("SHEETS_SHEET_NAME", "GDPR"),

		GroqAPIKey:   getEnv("GROQ_API_KEY", ""),
		GithubPAT:    getEnv("GITHUB_PAT", ""),
		GeminiAPIKey: getEnv("GEMINI_API_KEY", ""),
		OpenAIAPIKey: getEnv("OPENAI_API_KEY", ""),
		ModelsFile:   getEnv("MODELS_FILE", ""),

		ChunkMode:         normalizeChoice(getEnv("CHUNK_MODE", "semantic"), "semantic", "semantic", "fixed"),
		EmbeddingProvider: normalizeChoice(getEnv("EMBEDDING_PROVIDER", "none"), "none", "none", "ollama", "gemini"),
		OllamaURL:         getEnv("OLLAMA_URL", "http://localhost:11434"),
		EmbeddingModel:    getEnv("EMBEDDING_MODEL", ""),

		Pipeline:               normalizeChoice(getEnv("PIPELINE", "clause"), "clause", "clause", "batch"),
		WriteMode:              normalizeChoice(getEnv("WRITE_MODE", "append"), "append", "append", "replace"),
		AnalysisWorkers:        getInt("ANALYSIS_WORKERS", 5),
		BatchSize:              getInt("BATCH_SIZE", 5),
		ProviderTimeoutSeconds: getInt("PROVIDER_TIMEOUT_SECONDS", 60),

		InboxDir: getEnv("INBOX_DIR", ""),
	}
}

func loadEnvFiles(paths ...string) {
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		// Load never overrides variables already present in the environment.
		if err := godotenv.Load(path); err != nil {
			log.Printf("env file %s ignored: %v", path, err)
		}
	}
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getInt(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func getBool(key string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return b
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	var out []string
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func normalizeEnv(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "production", "prod":
		return "production"
	case "staging":
		return "staging"
	case "local":
		return "local"
	case "development", "dev":
		return "dev"
	default:
		return "dev"
	}
}

func normalizeStoreType(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "s3":
		return "s3"
	case "minio":
		return "minio"
	default:
		return "local"
	}
}

func normalizeResultStore(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "postgres", "pg":
		return "postgres"
	case "sqlite":
		return "sqlite"
	case "sheets", "gsheets":
		return "sheets"
	default:
		return "memory"
	}
}

func normalizeChoice(raw, def string, allowed ...string) string {
	v := strings.ToLower(strings.TrimSpace(raw))
	for _, a := range allowed {
		if v == a {
			return v
		}
	}
	return def
}
