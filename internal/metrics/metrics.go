// Package metrics exports Prometheus counters and gauges for the daily pass.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "pactsim"

// Metrics holds every collector the engine updates.
type Metrics struct {
	formed     *prometheus.CounterVec
	dissolved  *prometheus.CounterVec
	leaks      *prometheus.CounterVec
	operations *prometheus.CounterVec
	betrayals  *prometheus.CounterVec
	reveals    prometheus.Counter
	transfers  prometheus.Counter
	volume     prometheus.Counter
	throttled  prometheus.Counter
	repairs    prometheus.Counter

	active   prometheus.Gauge
	intel    prometheus.Gauge
	day      prometheus.Gauge
	duration prometheus.Histogram
}

// New registers the collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		formed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alliances_formed_total",
			Help:      "Alliances created, by origin.",
		}, []string{"origin"}),
		dissolved: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alliances_dissolved_total",
			Help:      "Alliances deactivated, by reason.",
		}, []string{"reason"}),
		leaks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "leaks_total",
			Help:      "Leak events, by source.",
		}, []string{"source"}),
		operations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Covert operations executed, by kind and result.",
		}, []string{"kind", "result"}),
		betrayals: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "betrayal_evaluations_total",
			Help:      "Betrayal evaluations, by context and outcome.",
		}, []string{"context", "outcome"}),
		reveals: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "forced_reveals_total",
			Help:      "Alliances exposed by the forced-reveal check.",
		}),
		transfers: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transfers_total",
			Help:      "Wealth transfers between allied factions.",
		}),
		volume: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transfer_volume_total",
			Help:      "Wealth moved between allied factions.",
		}),
		throttled: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transfers_throttled_total",
			Help:      "Transfers suppressed by the anti-exploit rule.",
		}),
		repairs: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "id_repairs_total",
			Help:      "Alliance identifiers repaired on load.",
		}),
		active: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_alliances",
			Help:      "Alliances currently active.",
		}),
		intel: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "intel_records",
			Help:      "Intelligence records currently stored.",
		}),
		day: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sim_day",
			Help:      "Most recently completed simulation day.",
		}),
		duration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "daily_pass_seconds",
			Help:      "Wall time of one daily pass.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		}),
	}
}

func (m *Metrics) Formed(origin string) {
	if m != nil {
		m.formed.WithLabelValues(origin).Inc()
	}
}

func (m *Metrics) Dissolved(reason string) {
	if m != nil {
		m.dissolved.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) Leak(source string) {
	if m != nil {
		m.leaks.WithLabelValues(source).Inc()
	}
}

// Operation counts one executed operation.
func (m *Metrics) Operation(kind string, success bool) {
	if m == nil {
		return
	}
	result := "failure"
	if success {
		result = "success"
	}
	m.operations.WithLabelValues(kind, result).Inc()
}

func (m *Metrics) Betrayal(context, outcome string) {
	if m != nil {
		m.betrayals.WithLabelValues(context, outcome).Inc()
	}
}

func (m *Metrics) Reveal() {
	if m != nil {
		m.reveals.Inc()
	}
}

// Transfer counts a completed transfer and its amount.
func (m *Metrics) Transfer(amount float64) {
	if m != nil {
		m.transfers.Inc()
		m.volume.Add(amount)
	}
}

func (m *Metrics) Throttled() {
	if m != nil {
		m.throttled.Inc()
	}
}

func (m *Metrics) Repaired(n int) {
	if m != nil && n > 0 {
		m.repairs.Add(float64(n))
	}
}

// Observe records end-of-day totals.
func (m *Metrics) Observe(day, active, intel int, seconds float64) {
	if m == nil {
		return
	}
	m.day.Set(float64(day))
	m.active.Set(float64(active))
	m.intel.Set(float64(intel))
	m.duration.Observe(seconds)
}
