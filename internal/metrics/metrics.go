package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// SMTP ingestion metrics
var (
	ConnectionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "openmail_smtp_connections_total",
			Help: "Total number of SMTP connections accepted",
		},
	)

	ConnectionsCurrent = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "openmail_smtp_connections_current",
			Help: "Current number of open SMTP connections",
		},
	)

	MessagesAcceptedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "openmail_messages_accepted_total",
			Help: "Total number of messages stored for a known recipient",
		},
	)

	MessagesDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "openmail_messages_dropped_total",
			Help: "Total number of messages accepted on the wire but not stored",
		},
		[]string{"reason"},
	)
)

// HTTP API metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "openmail_http_requests_total",
			Help: "Total number of HTTP requests handled",
		},
		[]string{"method", "status"},
	)
)
