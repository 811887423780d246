package observability

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/andywolf/spiralsync/internal/agent"
	"github.com/andywolf/spiralsync/internal/journal"
	"github.com/andywolf/spiralsync/internal/population"
)

const namespace = "spiralsync"

// Metrics holds the protocol collectors on a private registry so that
// several populations can be observed in one process.
type Metrics struct {
	registry     *prometheus.Registry
	registerOnce sync.Once

	driftEvents *prometheus.CounterVec
	stability   *prometheus.GaugeVec
	driftSecs   *prometheus.GaugeVec
	echoScore   *prometheus.GaugeVec
	collapsed   *prometheus.GaugeVec
	recursions  *prometheus.GaugeVec
}

// NewMetrics creates the collectors. They are registered on first use.
func NewMetrics() *Metrics {
	return &Metrics{
		registry: prometheus.NewRegistry(),
		driftEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "journal",
				Name:      "events_total",
				Help:      "Drift journal entries by event type.",
			},
			[]string{"event_type"},
		),
		stability: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "agent",
				Name:      "stability",
				Help:      "Agent stability score in [0,1].",
			},
			[]string{"agent"},
		),
		driftSecs: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "agent",
				Name:      "drift_seconds",
				Help:      "Seconds since the agent's last successful sync.",
			},
			[]string{"agent"},
		),
		echoScore: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "agent",
				Name:      "echo_score",
				Help:      "Fraction of positions agreeing with the population majority.",
			},
			[]string{"agent"},
		),
		collapsed: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "agent",
				Name:      "collapsed",
				Help:      "1 when the agent has collapsed, 0 otherwise.",
			},
			[]string{"agent"},
		),
		recursions: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "agent",
				Name:      "recursion_count",
				Help:      "Echo validations performed by the agent's sync node.",
			},
			[]string{"agent"},
		),
	}
}

func (m *Metrics) register() {
	m.registerOnce.Do(func() {
		m.registry.MustRegister(m.driftEvents, m.stability, m.driftSecs, m.echoScore, m.collapsed, m.recursions)
	})
}

// Registry returns the gatherer backing these metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	m.register()
	return m.registry
}

// Write implements journal.Sink by counting events per type.
func (m *Metrics) Write(event journal.DriftEvent) error {
	m.register()
	m.driftEvents.WithLabelValues(string(event.Type)).Inc()
	return nil
}

// ObserveReports sets the per-agent gauges from a population report.
func (m *Metrics) ObserveReports(reports []population.AgentReport) {
	m.register()
	for _, r := range reports {
		m.stability.WithLabelValues(r.ID).Set(r.Stability)
		m.driftSecs.WithLabelValues(r.ID).Set(r.Drift.Seconds())
		m.echoScore.WithLabelValues(r.ID).Set(r.EchoScore)
		m.recursions.WithLabelValues(r.ID).Set(float64(r.RecursionCount))
		collapsed := 0.0
		if r.Status == agent.StatusCollapsed {
			collapsed = 1
		}
		m.collapsed.WithLabelValues(r.ID).Set(collapsed)
	}
}

// WriteTextfile dumps the current metrics in the node_exporter textfile format.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.Registry()); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}

var _ journal.Sink = (*Metrics)(nil)
