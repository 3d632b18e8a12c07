// Package metrics wires the engine's own Prometheus instrumentation,
// grounded on minis/50-mini-service-all-features's
// internal/middleware/metrics.go — the same counters-and-gauges-on-a-
// struct shape, adapted from HTTP request counters to block-production
// and pool counters. The engine never starts an HTTP server itself: a
// caller (the out-of-scope RPC layer, or cmd/node for local inspection)
// is handed the prometheus.Registerer and decides whether to expose it.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every counter and gauge the engine updates.
type Metrics struct {
	BlocksProduced        prometheus.Counter
	TransactionsIncluded  prometheus.Counter
	BlockProductionErrors prometheus.Counter
	ValidationRejections  *prometheus.CounterVec
	PoolPending           prometheus.Gauge
	PoolQueued            prometheus.Gauge
}

// New registers and returns a fresh set of metrics against reg. Passing
// prometheus.NewRegistry() isolates a test's metrics from the package-
// level default registry; passing prometheus.DefaultRegisterer matches
// the usual single-process wiring.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		BlocksProduced: factory.NewCounter(prometheus.CounterOpts{
			Name: "chainkit_blocks_produced_total",
			Help: "Total number of blocks successfully produced.",
		}),
		TransactionsIncluded: factory.NewCounter(prometheus.CounterOpts{
			Name: "chainkit_transactions_included_total",
			Help: "Total number of transactions included across all produced blocks.",
		}),
		BlockProductionErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "chainkit_block_production_errors_total",
			Help: "Total number of failed block-production attempts.",
		}),
		ValidationRejections: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "chainkit_validation_rejections_total",
			Help: "Total number of transactions rejected during admission, by error kind.",
		}, []string{"kind"}),
		PoolPending: factory.NewGauge(prometheus.GaugeOpts{
			Name: "chainkit_pool_pending",
			Help: "Current number of pending (immediately includable) transactions in the pool.",
		}),
		PoolQueued: factory.NewGauge(prometheus.GaugeOpts{
			Name: "chainkit_pool_queued",
			Help: "Current number of queued (nonce-gapped) transactions in the pool.",
		}),
	}
}
