package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/amanah-kas/amanah-kas/internal/approval"
	"github.com/amanah-kas/amanah-kas/internal/audit"
	"github.com/amanah-kas/amanah-kas/internal/auth"
	"github.com/amanah-kas/amanah-kas/internal/custody"
	"github.com/amanah-kas/amanah-kas/internal/handover"
	"github.com/amanah-kas/amanah-kas/internal/observability"
	"github.com/amanah-kas/amanah-kas/internal/reporting"
	"github.com/amanah-kas/amanah-kas/jobs"
	"github.com/amanah-kas/amanah-kas/report"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	Authenticator    *auth.Authenticator
	CustodyHandler   *custody.Handler
	HandoverHandler  *handover.Handler
	ApprovalHandler  *approval.Handler
	ReportingHandler *reporting.Handler
	AuditHandler     *audit.Handler
	ReceiptHandler   *report.Handler
	JobHandler       *jobs.Handler
	Metrics          *observability.Metrics
}

// NewRouter constructs the chi.Router with Amanah Kas defaults.
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

	r.Group(func(r chi.Router) {
		if params.Authenticator != nil {
			r.Use(params.Authenticator.Middleware)
		}
		r.Route("/custody", params.CustodyHandler.MountRoutes)
		r.Route("/handovers", params.HandoverHandler.MountRoutes)
		if params.ApprovalHandler != nil {
			r.Route("/approvals", params.ApprovalHandler.MountRoutes)
		}
		if params.ReportingHandler != nil {
			r.Route("/reports", params.ReportingHandler.MountRoutes)
		}
		if params.AuditHandler != nil {
			r.Route("/audit", params.AuditHandler.MountRoutes)
		}
		if params.ReceiptHandler != nil {
			r.Route("/receipts", params.ReceiptHandler.MountRoutes)
		}
		if params.JobHandler != nil {
			r.Route("/jobs", params.JobHandler.MountRoutes)
		}
	})

	return r
}
