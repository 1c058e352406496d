package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"provenance/internal/transport/http/middleware"
)

// NewRouter assembles the API with the standard middleware stack. The metrics
// and health endpoints sit outside the timeout and content-type middleware so
// scrapers are never rejected.
func NewRouter(h *Handler, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(middleware.Recovery(logger))
		r.Use(middleware.RequestID)
		r.Use(middleware.Logger(logger))
		r.Use(middleware.Timeout(30 * time.Second))
		r.Use(middleware.ContentTypeJSON)

		r.Route("/evidence", func(r chi.Router) {
			r.Post("/", h.Submit)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.Get)
				r.Post("/freeze", h.Freeze)
				r.Post("/mint", h.Mint)
				r.Post("/settle", h.Settle)
				r.Post("/dispute", h.Dispute)
				r.Post("/classify", h.Classify)
				r.Get("/compliance", h.Compliance)
				r.Post("/attestation", h.RegisterAttestation)
				r.Get("/audit", h.AuditTrail)
			})
		})
	})

	return r
}
