package httpx

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/target/greeter-api/internal/core"
	"github.com/target/greeter-api/internal/service"
)

// RouterServices holds all the services needed by the HTTP router.
type RouterServices struct {
	Jobs *service.JobService
	// Optional: ledger listing, available on stores that implement it.
	Processed core.ProcessedRecordLister
	// Optional: bearer-token verification for /api routes. Nil disables auth.
	Verifier TokenVerifier
	// Optional: dependency probes reported by /healthz.
	HealthChecks map[string]HealthCheck

	MaxUploadBytes int64
	SyncTimeout    time.Duration
	Logger         *slog.Logger
}

// NewRouter creates and configures the HTTP router with its middleware chain.
func NewRouter(services RouterServices) http.Handler {
	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "http")

	api := http.NewServeMux()
	registerJobRoutes(api, &JobHandlers{
		Svc:            services.Jobs,
		MaxUploadBytes: services.MaxUploadBytes,
		SyncTimeout:    services.SyncTimeout,
		Logger:         logger,
	})
	registerProcessedRoutes(api, &ProcessedHandlers{Lister: services.Processed, Logger: logger})
	api.HandleFunc("/api/", func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, ErrorParams{Code: http.StatusNotFound, ErrCode: "not_found", Err: errNoRoute(r)})
	})

	var apiHandler http.Handler = api
	if services.Verifier != nil {
		apiHandler = RequireBearer(services.Verifier, logger)(api)
	}

	mux := http.NewServeMux()
	health := &HealthHandler{Checks: services.HealthChecks}
	mux.Handle("GET /healthz", health)
	mux.Handle("HEAD /healthz", health)
	mux.Handle("/api/", apiHandler)

	return Recover(logger)(Logging(logger)(mux))
}

func registerJobRoutes(mux *http.ServeMux, h *JobHandlers) {
	mux.HandleFunc("POST /api/jobs", h.CreateJob)
	mux.HandleFunc("POST /api/welcome", h.RunWelcome)
	mux.HandleFunc("GET /api/jobs", h.ListJobs)
	mux.HandleFunc("GET /api/jobs/stats", h.Stats)
	mux.HandleFunc("GET /api/jobs/{id}", h.GetStatus)
	mux.HandleFunc("POST /api/jobs/{id}/cancel", h.Cancel)
}

func registerProcessedRoutes(mux *http.ServeMux, h *ProcessedHandlers) {
	mux.HandleFunc("GET /api/accounts/{owner}/processed", h.List)
}
