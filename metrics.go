package libemit

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "libemit"

// Metrics is the set of collectors an Emitter reports to. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	emits      prometheus.Counter
	deliveries *prometheus.CounterVec
	failures   *prometheus.CounterVec
	mismatches prometheus.Counter
	listeners  prometheus.Gauge
	pending    prometheus.Gauge
}

// NewMetrics builds the collectors and registers them on reg when reg is not nil.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		emits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "emits_total",
			Help:      "Number of Emit calls that reached the registry.",
		}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "deliveries_total",
			Help:      "Callbacks that ran to completion without error.",
		}, []string{"mode"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "failures_total",
			Help:      "Callbacks that returned an error or panicked.",
		}, []string{"mode"}),
		mismatches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "mismatches_total",
			Help:      "Listeners skipped because they were registered with another signature.",
		}),
		listeners: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "listeners",
			Help:      "Registered listeners.",
		}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "async_inflight",
			Help:      "Async callbacks currently running.",
		}),
	}

	if reg == nil {
		return m, nil
	}

	for _, c := range []prometheus.Collector{
		m.emits, m.deliveries, m.failures, m.mismatches, m.listeners, m.pending,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

func (m *Metrics) emitted() {
	if m == nil {
		return
	}
	m.emits.Inc()
}

func (m *Metrics) delivered(mode DispatchMode, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.failures.WithLabelValues(mode.String()).Inc()
		return
	}
	m.deliveries.WithLabelValues(mode.String()).Inc()
}

func (m *Metrics) mismatched() {
	if m == nil {
		return
	}
	m.mismatches.Inc()
}

func (m *Metrics) listenersAdded(n int) {
	if m == nil {
		return
	}
	m.listeners.Add(float64(n))
}

func (m *Metrics) asyncStarted() {
	if m == nil {
		return
	}
	m.pending.Inc()
}

func (m *Metrics) asyncFinished() {
	if m == nil {
		return
	}
	m.pending.Dec()
}
