package httpserver

import (
	"net/http"

	"github.com/yndnr/meshkv/internal/telemetry/logger"
)

// DefaultRateLimit is the per-IP request rate for API routes.
const DefaultRateLimit = 100

// RouterConfig holds the handlers mounted by NewRouter.
type RouterConfig struct {
	// API serves /healthz and /v1/.
	API http.Handler

	// Metrics serves /metrics. Nil leaves the route unmounted.
	Metrics http.Handler

	Logger logger.Logger

	// RateLimit is requests per second per client IP. Zero disables.
	RateLimit int
}

// NewRouter mounts the API and metrics handlers behind the middleware chain.
// Order: Recover -> RequestID -> RateLimit -> AccessLog -> handler.
func NewRouter(cfg RouterConfig) http.Handler {
	log := cfg.Logger
	if log == nil {
		log = logger.Default()
	}

	api := []Middleware{Recover(log), RequestID()}
	if cfg.RateLimit > 0 {
		api = append(api, RateLimit(cfg.RateLimit))
	}
	api = append(api, AccessLog(log))

	mux := http.NewServeMux()
	apiHandler := Chain(cfg.API, api...)
	mux.Handle("/healthz", apiHandler)
	mux.Handle("/v1/", apiHandler)

	if cfg.Metrics != nil {
		mux.Handle("GET /metrics", Chain(cfg.Metrics, Recover(log)))
	}
	return mux
}
