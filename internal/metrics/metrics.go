package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	PollCycles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "volpulse",
			Subsystem: "monitor",
			Name:      "poll_cycles_total",
			Help:      "Completed monitor cycles by outcome",
		},
		[]string{"outcome"},
	)

	FetchErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "volpulse",
			Subsystem: "ingest",
			Name:      "fetch_errors_total",
			Help:      "Fetch errors by endpoint",
		},
		[]string{"endpoint"},
	)

	DegradedFetches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "volpulse",
			Subsystem: "ingest",
			Name:      "degraded_fetches_total",
			Help:      "Calls that exhausted retries and degraded to empty",
		},
		[]string{"endpoint"},
	)

	ChainFanout = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "volpulse",
			Subsystem: "ingest",
			Name:      "chain_fanout_seconds",
			Help:      "Wall time of the option ticker fan-out",
			Buckets:   prometheus.DefBuckets,
		},
	)

	AlertsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "volpulse",
			Subsystem: "alerts",
			Name:      "sent_total",
			Help:      "Alerts emitted by kind and channel",
		},
		[]string{"kind", "channel"},
	)
)

func Register() {
	once.Do(func() {
		prometheus.MustRegister(PollCycles, FetchErrors, DegradedFetches, ChainFanout, AlertsSent)
	})
}
