package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/leaseos/leaseline/internal/booking"
	"github.com/leaseos/leaseline/internal/snapshot"
)

// NewRouter builds the booking API's chi router: CORS, request logging and
// recovery, health/ready probes, the Prometheus scrape endpoint, the admin
// snapshot endpoint, and the showing booking route.
func NewRouter(bookingService *booking.Service, snapshotAgg *snapshot.Aggregator, registry *prometheus.Registry, allowedOrigins []string, metricsPath string) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Content-Type", "X-Actor-Role", "X-Actor-Agent-Id"},
		MaxAge:         300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		Respond(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		Respond(w, http.StatusOK, map[string]string{"status": "ready"})
	})
	r.Handle(metricsPath, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	handler := NewBookingHandler(bookingService)
	snapshotHandler := NewSnapshotHandler(snapshotAgg)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/showings", handler.CreateShowing)
		r.Get("/admin/snapshot", snapshotHandler.GetSnapshot)
	})

	return r
}
