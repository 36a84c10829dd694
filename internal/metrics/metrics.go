package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

type Metrics struct {
	CardsMinted          *prometheus.CounterVec
	PackRequests         *prometheus.CounterVec
	StepFailures         *prometheus.CounterVec
	ChainConfirmSeconds  prometheus.Histogram
	CounterCorruption    prometheus.Counter
	ReconciliationQueued prometheus.Gauge
}

// New registers the service metrics on reg, or on a private registry when reg
// is nil.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	m := &Metrics{
		CardsMinted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "packminter",
			Name:      "cards_minted_total",
			Help:      "Cards confirmed on chain, by rarity.",
		}, []string{"rarity"}),
		PackRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "packminter",
			Name:      "pack_requests_total",
			Help:      "Pack openings by pack type and outcome.",
		}, []string{"pack", "outcome"}),
		StepFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "packminter",
			Name:      "step_failures_total",
			Help:      "Card pipeline failures by the step that failed.",
		}, []string{"step"}),
		ChainConfirmSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "packminter",
			Name:      "chain_confirm_seconds",
			Help:      "Time from submitting safeMint to its receipt.",
			Buckets:   []float64{1, 2, 5, 10, 20, 30, 60, 120, 300},
		}),
		CounterCorruption: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "packminter",
			Name:      "counter_corruption_total",
			Help:      "Times the token counter state was unreadable and read as 0.",
		}),
		ReconciliationQueued: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "packminter",
			Name:      "reconciliation_pending",
			Help:      "Minted cards waiting for a ledger write.",
		}),
	}

	reg.MustRegister(
		m.CardsMinted,
		m.PackRequests,
		m.StepFailures,
		m.ChainConfirmSeconds,
		m.CounterCorruption,
		m.ReconciliationQueued,
	)
	return m
}

// NewRegistry returns a registry with the Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}
