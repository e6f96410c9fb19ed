package observability

import (
	"context"
	"time"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "arbor"

// Metrics holds the collectors of one process.
type Metrics struct {
	PatchesTotal    *prometheus.CounterVec
	EnvelopesTotal  *prometheus.CounterVec
	Connections     *prometheus.GaugeVec
	RelayDuration   *prometheus.HistogramVec
	GenerationTotal *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
// Pass prometheus.NewRegistry() in tests to keep them isolated.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		PatchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "patches_total",
				Help:      "Patches handled by the engine, by type, outcome and source.",
			},
			[]string{"type", "outcome", "source"},
		),
		EnvelopesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "envelopes_total",
				Help:      "Wire envelopes by event and direction.",
			},
			[]string{"event", "direction"},
		),
		Connections: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "connections",
				Help:      "Open client connections by transport.",
			},
			[]string{"transport"},
		),
		RelayDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "relay_duration_seconds",
				Help:      "Time spent handling one inbound envelope.",
				Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
			},
			[]string{"event"},
		),
		GenerationTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "generations_total",
				Help:      "Map generation requests by status.",
			},
			[]string{"status"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.PatchesTotal, m.EnvelopesTotal, m.Connections, m.RelayDuration, m.GenerationTotal)
	}
	return m
}

// Hooks counts every patch outcome.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	count := func(_ context.Context, e *domain.PatchEvent) {
		source := "remote"
		if e.Local {
			source = "local"
		}
		m.PatchesTotal.WithLabelValues(string(e.Patch.Type), string(e.Outcome), source).Inc()
	}
	return domain.LifecycleHooks{
		OnPatchApplied:  count,
		OnPatchDropped:  count,
		OnPatchBuffered: count,
	}
}

// Envelope counts one envelope. direction is "in" or "out".
func (m *Metrics) Envelope(event, direction string) {
	m.EnvelopesTotal.WithLabelValues(event, direction).Inc()
}

// Connected tracks an open connection; call the returned func on close.
func (m *Metrics) Connected(transport string) func() {
	g := m.Connections.WithLabelValues(transport)
	g.Inc()
	return g.Dec
}

// ObserveRelay records how long handling an event took.
func (m *Metrics) ObserveRelay(event string, start time.Time) {
	m.RelayDuration.WithLabelValues(event).Observe(time.Since(start).Seconds())
}

// Generation counts a generation request. err nil means success.
func (m *Metrics) Generation(err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.GenerationTotal.WithLabelValues(status).Inc()
}
