package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"

	"charger-monitor/reliability/internal/metrics"
)

// Options wires the API to its collaborators. Live, Ingest, Sessions and
// Alerts are optional; their routes are left out when nil.
type Options struct {
	Reports       Reports
	Registry      Registry
	Live          LiveStateReader
	Ingest        Ingester
	Sessions      SessionWriter
	Alerts        AlertFeed
	Checks        []HealthCheck
	Log           *logrus.Logger
	CORSOrigins   []string
	DefaultWindow time.Duration
	Now           func() time.Time
}

func NewRouter(opts Options) http.Handler {
	h := &Handler{
		reports:       opts.Reports,
		registry:      opts.Registry,
		live:          opts.Live,
		ingest:        opts.Ingest,
		sessions:      opts.Sessions,
		alerts:        opts.Alerts,
		checks:        opts.Checks,
		log:           opts.Log,
		defaultWindow: opts.DefaultWindow,
		now:           opts.Now,
	}
	if h.now == nil {
		h.now = time.Now
	}
	if h.defaultWindow <= 0 {
		h.defaultWindow = 7 * 24 * time.Hour
	}

	r := chi.NewRouter()
	r.Use(NewRequestMiddleware(opts.Log).Wrap)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", h.Health)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/chargers", h.ListChargers)
		r.Get("/chargers/{chargerID}/reliability", h.ChargerReliability)
		r.Get("/reliability", h.Reliability)
		r.Get("/reliability/breakdown", h.Breakdown)
		r.Get("/alerts", h.ActiveAlerts)
		if opts.Ingest != nil {
			r.Post("/status", h.PostStatus)
		}
		if opts.Sessions != nil {
			r.Post("/sessions", h.PostSessions)
		}
	})

	if opts.Alerts != nil {
		r.Get("/ws/alerts", h.AlertStream)
	}
	return r
}
