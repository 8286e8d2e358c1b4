package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/finflow/finqueue/internal/api/handler"
	apimw "github.com/finflow/finqueue/internal/api/middleware"
	"github.com/finflow/finqueue/internal/notify"
	"github.com/finflow/finqueue/internal/queue"
	"github.com/finflow/finqueue/internal/ws"
)

// NewRouter wires the chi router, attaches all middleware, and registers
// every route. It is the single source of truth for the HTTP surface area.
func NewRouter(
	manager *queue.Manager,
	svc *notify.Service,
	hub *ws.Hub,
	reg prometheus.Gatherer,
	storeMode string,
	logger *zap.Logger,
) http.Handler {
	r := chi.NewRouter()

	// --- global middleware (applied to every route) ---
	r.Use(chimw.Recoverer)          // recover panics, return 500
	r.Use(chimw.RealIP)             // trust X-Forwarded-For / X-Real-IP
	r.Use(chimw.RequestSize(1<<20)) // 1 MB max request body
	r.Use(apimw.CorrelationID)      // X-Correlation-ID inject / echo
	r.Use(apimw.RequestLogger(logger))

	// --- handler instances ---
	jh := handler.NewJobHandler(manager, logger)
	nh := handler.NewNotificationHandler(svc, logger)
	dh := handler.NewDeviceHandler(svc, logger)
	ph := handler.NewPreferenceHandler(svc, logger)
	sh := handler.NewStatsHandler(manager, svc)
	hh := handler.NewHealthHandler(storeMode)

	// --- routes ---
	r.Get("/health", hh.Health)

	// Raw Prometheus scrape endpoint (for Prometheus server / Grafana)
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	// Websocket sessions bypass the JSON middleware conventions.
	r.Get("/ws", hub.Handle)

	r.Route("/api/v1", func(r chi.Router) {
		// Jobs
		r.Post("/jobs/{queueName}", jh.Enqueue)
		r.Get("/jobs/{jobID}/status", jh.Status)
		r.Delete("/jobs/{jobID}", jh.Cancel)
		r.Get("/queues/{queueName}/stats", jh.QueueStats)

		// Notifications — /send and /history are literal segments, no IDs.
		r.Post("/notifications/send", nh.Send)
		r.Get("/notifications/history", nh.History)

		// Devices
		r.Post("/devices/register", dh.Register)
		r.Delete("/devices/{deviceId}", dh.Unregister)

		// Preferences
		r.Get("/preferences/{userId}", ph.Get)
		r.Put("/preferences/{userId}", ph.Update)

		// JSON stats snapshot
		r.Get("/stats", sh.Get)
	})

	return r
}
