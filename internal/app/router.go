package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/dukapos/dukapos/internal/cashier"
	"github.com/dukapos/dukapos/internal/inventory"
	"github.com/dukapos/dukapos/internal/ledger/accounts"
	"github.com/dukapos/dukapos/internal/ledger/balances"
	"github.com/dukapos/dukapos/internal/ledger/periods"
	"github.com/dukapos/dukapos/internal/ledger/posting"
	"github.com/dukapos/dukapos/internal/ledger/recon"
	"github.com/dukapos/dukapos/internal/observability"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger *slog.Logger
	Config *Config

	AccountsHandler  *accounts.Handler
	PostingHandler   *posting.Handler
	PeriodsHandler   *periods.Handler
	BalancesHandler  *balances.Handler
	ReconHandler     *recon.Handler
	InventoryHandler *inventory.Handler
	CashierHandler   *cashier.Handler

	Metrics *observability.Metrics
}

// NewRouter constructs the chi.Router with application defaults. All
// business routes live under a channel scope; the channel id in the
// path is the tenant boundary.
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
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Route("/api/v1/channels/{channelID}", func(r chi.Router) {
		if params.AccountsHandler != nil {
			r.Route("/accounts", params.AccountsHandler.MountRoutes)
		}
		if params.PostingHandler != nil {
			r.Route("/journal", params.PostingHandler.MountRoutes)
		}
		if params.PeriodsHandler != nil {
			r.Route("/periods", params.PeriodsHandler.MountRoutes)
		}
		if params.BalancesHandler != nil {
			r.Route("/balances", params.BalancesHandler.MountRoutes)
		}
		if params.ReconHandler != nil {
			r.Route("/reconciliations", params.ReconHandler.MountRoutes)
		}
		if params.InventoryHandler != nil {
			r.Route("/inventory", params.InventoryHandler.MountRoutes)
		}
		if params.CashierHandler != nil {
			r.Route("/cashier", params.CashierHandler.MountRoutes)
		}
	})

	return r
}
