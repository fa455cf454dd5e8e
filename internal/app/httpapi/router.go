// Package httpapi implements the thin REST ingress spec 6 describes: job
// intake, job/record reads, webhook subscription management, credential
// and billing endpoints, and the HTTP audit trail. Grounded on
// internal/app/httpapi/handler.go's handler-bundles-services shape, but
// remounted on go-chi/chi/v5 the way wisbric-nightowl/internal/httpserver/
// server.go does (the teacher's own handler.go uses a bare
// http.ServeMux, which this module does not have grounds to keep once
// another pack member shows the chi-router idiom for the same kind of
// multi-tenant JSON API).
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/enrichlayer/core/infrastructure/metrics"
	"github.com/enrichlayer/core/internal/app/credit"
	"github.com/enrichlayer/core/internal/app/enrichment"
	"github.com/enrichlayer/core/internal/app/vault"
	"github.com/enrichlayer/core/internal/app/webhook"
	"github.com/enrichlayer/core/pkg/logger"
)

// Handler bundles the services a request may need to reach, mirroring the
// teacher's handler struct but with one field per domain service instead
// of one *app.Application umbrella, since this module has no single
// application facade.
type Handler struct {
	enrichment *enrichment.Service
	credits    *credit.Service
	creds      *vault.Service
	masterKey  vault.MasterKey
	webhooks   *webhook.Service
	audit      *auditLog
	log        *logger.Logger
}

// NewRouter returns the mounted chi.Router exposing every REST endpoint
// spec 6 requires, wrapped in the teacher's request-logging-plus-audit
// middleware shape. promReg and m may both be nil to disable
// metrics collection entirely (METRICS_ENABLED=false).
func NewRouter(enrichmentSvc *enrichment.Service, credits *credit.Service, creds *vault.Service, masterKey vault.MasterKey, webhooks *webhook.Service, audit *auditLog, log *logger.Logger, promReg *prometheus.Registry, m *metrics.Metrics) http.Handler {
	h := &Handler{
		enrichment: enrichmentSvc,
		credits:    credits,
		creds:      creds,
		masterKey:  masterKey,
		webhooks:   webhooks,
		audit:      audit,
		log:        log,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	if m != nil {
		r.Use(m.InstrumentHandler)
	}

	// Unauthenticated: liveness probe, the Prometheus scrape endpoint, and
	// the operator-facing audit log never carry a workspace header - they
	// are not tenant-scoped requests.
	r.Get("/healthz", h.health)
	if promReg != nil {
		r.Handle("/metrics", metrics.Handler(promReg))
	}
	if audit != nil {
		r.Get("/admin/audit", h.adminAudit)
	}

	r.Group(func(r chi.Router) {
		r.Use(h.withWorkspace)
		r.Use(h.withAudit)

		r.Route("/v1", func(r chi.Router) {
			r.Route("/jobs", func(r chi.Router) {
				r.Post("/", h.createJob)
				r.Get("/", h.listJobs)
				r.Get("/{jobID}", h.getJob)
				r.Delete("/{jobID}", h.cancelJob)
				r.Get("/{jobID}/records", h.listRecords)
			})
			r.Get("/records/{recordID}", h.getRecord)

			r.Route("/billing", func(r chi.Router) {
				r.Get("/", h.getBilling)
				r.Post("/credits", h.addCredits)
				r.Get("/transactions", h.listTransactions)
			})

			r.Route("/credentials", func(r chi.Router) {
				r.Post("/", h.storeCredential)
				r.Get("/", h.listCredentials)
				r.Delete("/{credentialID}", h.deleteCredential)
				r.Post("/{credentialID}/rotate", h.rotateCredential)
			})

			r.Route("/webhooks", func(r chi.Router) {
				r.Post("/subscriptions", h.createWebhookSubscription)
			})
		})
	})

	return r
}
