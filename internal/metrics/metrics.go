package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ============================================
	// Settlement metrics
	// ============================================
	SubmitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "router_submits_total",
			Help: "Total number of intent submissions by outcome",
		},
		[]string{"outcome"},
	)

	SubmitDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "router_submit_duration_seconds",
		Help:    "Intent submission duration in seconds",
		Buckets: prometheus.DefBuckets,
	})

	ClaimsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "router_claims_total",
		Help: "Total number of queued deposits claimed",
	})

	PendingClaims = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "router_pending_claims",
		Help: "Number of queued deposits awaiting claim",
	})

	FeesCollectedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "router_fees_collected_total",
		Help: "Total fees collected in asset base units",
	})

	// ============================================
	// HTTP metrics
	// ============================================
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "router_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "router_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// ============================================
	// Event delivery metrics
	// ============================================
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "router_events_published_total",
			Help: "Total number of lifecycle events published",
		},
		[]string{"event_type"},
	)

	EventsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "router_events_dropped_total",
			Help: "Total number of lifecycle events dropped by slow sinks",
		},
		[]string{"sink"},
	)

	NATSConnectionStatus = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "router_nats_connection_status",
		Help: "NATS connection status (1=connected, 0=disconnected)",
	})

	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "router_websocket_clients",
		Help: "Number of connected websocket clients",
	})
)
