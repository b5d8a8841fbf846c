package monitor

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/sourceplane/flowline/internal/model"
)

// Metrics holds run metrics on a registry owned by this value.
type Metrics struct {
	Registry *prometheus.Registry

	UnitsTotal      *prometheus.CounterVec
	RunDuration     prometheus.Gauge
	ActiveUnits     prometheus.Gauge
	TemporaryRemove prometheus.Counter
}

// NewMetrics creates run metrics on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		Registry: reg,
		UnitsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flowline_units_total",
				Help: "Units by terminal state",
			},
			[]string{"state"},
		),
		RunDuration: factory.NewGauge(prometheus.GaugeOpts{
			Name: "flowline_run_duration_seconds",
			Help: "Wall clock duration of the last monitored run",
		}),
		ActiveUnits: factory.NewGauge(prometheus.GaugeOpts{
			Name: "flowline_active_units",
			Help: "Units staged or running",
		}),
		TemporaryRemove: factory.NewCounter(prometheus.CounterOpts{
			Name: "flowline_temporary_files_deleted_total",
			Help: "Temporary artifacts removed after a run",
		}),
	}
}

func (m *Metrics) observeState(state model.RunState) {
	if m == nil {
		return
	}
	m.UnitsTotal.WithLabelValues(string(state)).Inc()
}

func (m *Metrics) setActive(n int) {
	if m == nil {
		return
	}
	m.ActiveUnits.Set(float64(n))
}

// WriteTextfile writes the metrics in the node exporter textfile format.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.Registry); err != nil {
		return fmt.Errorf("failed to write metrics: %w", err)
	}
	return nil
}
