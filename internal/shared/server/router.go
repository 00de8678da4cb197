package server

import (
	"database/sql"
	"net/http"

	"github.com/gin-gonic/gin"

	"compliance-backend/internal/contracts"
	"compliance-backend/internal/llm"
	"compliance-backend/internal/runs"
	"compliance-backend/internal/shared/auth"
	"compliance-backend/internal/shared/config"
	"compliance-backend/internal/shared/metrics"
	"compliance-backend/internal/shared/server/middleware"
	"compliance-backend/internal/shared/server/respond"
	"compliance-backend/internal/shared/storage/db"
)

// Rate limit groups. Run status is polled by clients, so it gets the larger
// bucket; uploads and run starts cost provider calls and get the smallest.
const (
	groupDefault = "DEFAULT"
	groupPolling = "POLLING"
	groupWrite   = "WRITE"
)

var defaultRateRules = map[string]middleware.RateLimitRule{
	groupDefault: {Rate: 2, Burst: 20},
	groupPolling: {Rate: 5, Burst: 30},
	groupWrite:   {Rate: 0.2, Burst: 5},
}

// RouterDeps are the handlers and helpers the router mounts.
type RouterDeps struct {
	Config           config.Config
	Tokens           *auth.Tokens
	ContractsHandler *contracts.Handler
	RunsHandler      *runs.Handler
	Registry         *llm.Registry
	DB               *sql.DB
	// RateRules overrides the per-group buckets; nil uses the defaults.
	RateRules map[string]middleware.RateLimitRule
}

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(deps.Config.CORSAllowOrigin),
	)

	r.GET("/metrics", metrics.Handler())

	api := r.Group("/api/v1")
	api.GET("/health", func(c *gin.Context) {
		body := gin.H{"ok": true}
		status := http.StatusOK
		if deps.DB != nil {
			body["db"] = "ok"
			if err := db.Ping(c.Request.Context(), deps.DB, 0); err != nil {
				body["ok"], body["db"] = false, "unavailable"
				status = http.StatusServiceUnavailable
			}
		}
		if deps.Registry != nil {
			names := make([]string, 0, len(deps.Registry.Providers()))
			for _, p := range deps.Registry.Providers() {
				names = append(names, p.Name()+"/"+p.Model())
			}
			body["providers"] = names
		}
		respond.JSON(c, status, body)
	})

	rules := deps.RateRules
	if rules == nil {
		rules = defaultRateRules
	}
	secured := api.Group("")
	secured.Use(
		middleware.Auth(deps.Tokens),
		middleware.RateLimit(middleware.RateLimitConfig{
			Rules:        rules,
			DefaultGroup: groupDefault,
			GroupFor:     rateGroup,
		}),
	)
	if deps.ContractsHandler != nil {
		deps.ContractsHandler.RegisterRoutes(secured)
	}
	if deps.RunsHandler != nil {
		deps.RunsHandler.RegisterRoutes(secured)
	}
	return r
}

func rateGroup(c *gin.Context) string {
	switch {
	case c.Request.Method == http.MethodGet && c.FullPath() == "/api/v1/runs/:id":
		return groupPolling
	case c.Request.Method == http.MethodPost:
		return groupWrite
	default:
		return groupDefault
	}
}

// Addr normalizes the listen address.
func Addr(port string) string {
	if port == "" {
		return ":8080"
	}
	if port[0] == ':' {
		return port
	}
	return ":" + port
}
