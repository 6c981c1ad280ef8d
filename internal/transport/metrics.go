package transport

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the multiplexer's prometheus instruments.
type Metrics struct {
	RequestsSent    prometheus.Counter
	RequestsQueued  *prometheus.CounterVec
	RequestsRetried prometheus.Counter
	RequestsExpired prometheus.Counter
	CancelsSent     prometheus.Counter
	Dials           prometheus.Counter
	DialFailures    prometheus.Counter
	InFlight        prometheus.Gauge
	Connected       prometheus.Gauge
}

// NewMetrics creates the instruments and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RequestsSent: f.NewCounter(prometheus.CounterOpts{
			Namespace: "evsync",
			Subsystem: "transport",
			Name:      "requests_sent_total",
			Help:      "Request messages written to the connection, including replays and retries.",
		}),
		RequestsQueued: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "evsync",
			Subsystem: "transport",
			Name:      "requests_queued_total",
			Help:      "Requests parked in the disconnect queue, by reason.",
		}, []string{"reason"}),
		RequestsRetried: f.NewCounter(prometheus.CounterOpts{
			Namespace: "evsync",
			Subsystem: "transport",
			Name:      "requests_retried_total",
			Help:      "Requests retried after an overloaded service error.",
		}),
		RequestsExpired: f.NewCounter(prometheus.CounterOpts{
			Namespace: "evsync",
			Subsystem: "transport",
			Name:      "requests_expired_total",
			Help:      "Queued requests failed because the connection stayed down too long.",
		}),
		CancelsSent: f.NewCounter(prometheus.CounterOpts{
			Namespace: "evsync",
			Subsystem: "transport",
			Name:      "cancels_sent_total",
			Help:      "Cancel messages written to the connection.",
		}),
		Dials: f.NewCounter(prometheus.CounterOpts{
			Namespace: "evsync",
			Subsystem: "transport",
			Name:      "dials_total",
			Help:      "Connection attempts.",
		}),
		DialFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: "evsync",
			Subsystem: "transport",
			Name:      "dial_failures_total",
			Help:      "Failed connection attempts.",
		}),
		InFlight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "evsync",
			Subsystem: "transport",
			Name:      "requests_in_flight",
			Help:      "Requests sent on the current connection and not yet finished.",
		}),
		Connected: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "evsync",
			Subsystem: "transport",
			Name:      "connected",
			Help:      "1 while a connection is up, 0 otherwise.",
		}),
	}
}
