package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	StatusReceived = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reliability_status_received_total",
		Help: "Status pings accepted for ingestion, by source.",
	}, []string{"source"})

	DBWriteSuccess = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "reliability_db_write_success_total",
		Help: "Status rows written to TimescaleDB.",
	})
	DBWriteFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "reliability_db_write_failures_total",
		Help: "Status rows lost after a failed batch write and retry.",
	})

	ChannelDrops = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reliability_channel_drops_total",
		Help: "Pings dropped because a pipeline channel was full.",
	}, []string{"channel"})

	AlertsRaised = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reliability_alerts_raised_total",
		Help: "Ingest alerts raised after deduplication, by type.",
	}, []string{"type"})

	ReportDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "reliability_report_duration_seconds",
		Help:    "Time spent computing a reliability report, by scope kind.",
		Buckets: prometheus.DefBuckets,
	}, []string{"scope"})

	ReportCacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "reliability_report_cache_hits_total",
		Help: "Reports served from cache.",
	})
	ReportCacheMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "reliability_report_cache_misses_total",
		Help: "Reports computed because the cache had no entry.",
	})

	HTTPRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reliability_http_requests_total",
		Help: "HTTP requests by route and status.",
	}, []string{"route", "status"})
	HTTPDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "reliability_http_request_duration_seconds",
		Help:    "HTTP request latency by route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
)

func init() {
	prometheus.MustRegister(
		StatusReceived,
		DBWriteSuccess,
		DBWriteFailures,
		ChannelDrops,
		AlertsRaised,
		ReportDuration,
		ReportCacheHits,
		ReportCacheMisses,
		HTTPRequests,
		HTTPDuration,
	)
}

func Handler() http.Handler {
	return promhttp.Handler()
}
