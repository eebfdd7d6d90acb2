package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brickrent/brickrent/internal/observability"
	"github.com/brickrent/brickrent/internal/revenue"
	"github.com/brickrent/brickrent/internal/settlement"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger            *slog.Logger
	Config            *Config
	Pool              *pgxpool.Pool
	Metrics           *observability.Metrics
	RevenueHandler    *revenue.Handler
	SettlementHandler *settlement.Handler
}

// NewRouter constructs the chi.Router with Brickrent defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if params.Pool != nil {
			if err := params.Pool.Ping(r.Context()); err != nil {
				params.Logger.Error("healthz database ping", slog.Any("error", err))
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(`{"status":"degraded"}`))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if params.Metrics != nil {
		r.Handle("/metrics", params.Metrics.Handler())
	}

	// Every engine endpoint acts on money or on the data money is computed
	// from, so the whole API surface sits behind admin auth.
	r.Route("/api", func(api chi.Router) {
		api.Use(RequireAdmin(params.Config, params.Logger))

		api.Route("/revenue", func(rr chi.Router) {
			params.RevenueHandler.MountRoutes(rr)
		})
		params.SettlementHandler.MountRoutes(api)
	})

	return r
}
