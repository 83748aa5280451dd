package observers

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/crystaldolphin/tidewire/internal/dispatch"
)

// Metrics records dispatch outcomes as Prometheus series.
type Metrics struct {
	registry *prometheus.Registry

	calls        *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	createdFiles prometheus.Counter
}

// NewMetrics registers the dispatch metrics, plus the Go runtime collectors,
// on a fresh registry.
func NewMetrics(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		calls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tool_calls_total",
				Help:      "Total number of dispatched tool calls",
			},
			[]string{"tool", "family", "status", "error_kind"},
		),
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "tool_call_duration_seconds",
				Help:      "Tool call duration in seconds",
				Buckets:   []float64{0.005, 0.05, 0.25, 1, 5, 15, 60, 300},
			},
			[]string{"tool", "family"},
		),
		createdFiles: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "created_files_total",
			Help:      "Files detected as created by terminal commands",
		}),
	}
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) Observe(ev dispatch.Event) {
	status := "success"
	if !ev.Success {
		status = "error"
	}
	family := ev.Family
	if family == "" {
		family = "none"
	}
	m.calls.WithLabelValues(ev.Tool, family, status, ev.ErrorKind).Inc()
	m.duration.WithLabelValues(ev.Tool, family).Observe(float64(ev.DurationMs) / 1000)
	if n := len(ev.CreatedFiles); n > 0 {
		m.createdFiles.Add(float64(n))
	}
}
