package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus collectors for the governor. Registered once at startup
// and shared by the admission path, the usage pipeline and the
// transition coordinator.
type Metrics struct {
	ConnectionRejections *prometheus.CounterVec
	Throttles            *prometheus.CounterVec
	CostRejections       *prometheus.CounterVec
	Timeouts             *prometheus.CounterVec
	EstimatorFallbacks   prometheus.Counter
	StaleConfigServed    prometheus.Counter
	LiveLeases           *prometheus.GaugeVec
	UsageEventsDropped   prometheus.Counter
	UsageBatchFailures   prometheus.Counter
	Transitions          *prometheus.CounterVec
}

func New() *Metrics {
	return &Metrics{
		ConnectionRejections: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "governor_connection_rejections_total",
				Help: "Connections rejected because the tenant is at its concurrency ceiling",
			},
			[]string{"tier"},
		),

		Throttles: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "governor_throttles_total",
				Help: "Requests throttled by the per-tenant rate limiter",
			},
			[]string{"tier"},
		),

		CostRejections: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "governor_cost_rejections_total",
				Help: "Requests rejected because the estimated cost exceeded the tier ceiling",
			},
			[]string{"tier"},
		),

		Timeouts: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "governor_request_timeouts_total",
				Help: "Requests terminated by the timeout enforcer",
			},
			[]string{"tier"},
		),

		EstimatorFallbacks: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "governor_estimator_fallbacks_total",
				Help: "Requests admitted without a cost estimate because the planner was unavailable",
			},
		),

		StaleConfigServed: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "governor_stale_tier_config_served_total",
				Help: "Tier config resolutions served past TTL because the policy store was unreachable",
			},
		),

		LiveLeases: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "governor_live_leases",
				Help: "Current number of live connection leases per tenant",
			},
			[]string{"tenant"},
		),

		UsageEventsDropped: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "governor_usage_events_dropped_total",
				Help: "Usage events dropped because the recorder queue was full",
			},
		),

		UsageBatchFailures: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "governor_usage_batch_failures_total",
				Help: "Usage aggregate batch writes that failed and were retried",
			},
		),

		Transitions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "governor_tier_transitions_total",
				Help: "Tier transition outcomes",
			},
			[]string{"outcome"},
		),
	}
}
