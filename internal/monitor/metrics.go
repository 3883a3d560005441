package monitor

import (
	"errors"
	"net/http"
	"time"

	"github.com/KevinKickass/OpenFieldSim/internal/control"
	"github.com/KevinKickass/OpenFieldSim/internal/snapshot"
	"github.com/KevinKickass/OpenFieldSim/internal/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Monitor owns a dedicated registry with the snapshot collector, the tick and
// command counters and the Go runtime collectors.
type Monitor struct {
	registry *prometheus.Registry

	ticks        *prometheus.CounterVec
	tickErrors   *prometheus.CounterVec
	tickDuration prometheus.Histogram
	commands     *prometheus.CounterVec
}

func New(exporter *snapshot.Exporter, speed SpeedSource) *Monitor {
	m := &Monitor{
		registry: prometheus.NewRegistry(),
		ticks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "openfieldsim_ticks_total",
				Help: "Simulation ticks executed",
			},
			[]string{"kind"},
		),
		tickErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "openfieldsim_tick_errors_total",
				Help: "Simulation ticks that failed and triggered the error cooldown",
			},
			[]string{"kind"},
		),
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "openfieldsim_tick_duration_seconds",
			Help:    "Time spent computing one simulation tick",
			Buckets: []float64{.00005, .0001, .00025, .0005, .001, .005, .01, .05},
		}),
		commands: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "openfieldsim_commands_total",
				Help: "Operator commands submitted, by outcome",
			},
			[]string{"kind", "action", "result"},
		),
	}

	m.registry.MustRegister(
		NewCollector(exporter, speed),
		m.ticks,
		m.tickErrors,
		m.tickDuration,
		m.commands,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

func (m *Monitor) Registry() *prometheus.Registry { return m.registry }

func (m *Monitor) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveTick implements sim.TickObserver.
func (m *Monitor) ObserveTick(e snapshot.Entry, duration time.Duration, err error) {
	kind := string(e.Key.Kind)
	m.ticks.WithLabelValues(kind).Inc()
	if err != nil {
		m.tickErrors.WithLabelValues(kind).Inc()
	}
	m.tickDuration.Observe(duration.Seconds())
}

// ObserveCommand counts a command submission and classifies its outcome.
func (m *Monitor) ObserveCommand(key types.DeviceKey, action control.Action, err error) {
	m.commands.WithLabelValues(string(key.Kind), string(action), commandResult(err)).Inc()
}

func commandResult(err error) string {
	switch {
	case err == nil:
		return "accepted"
	case errors.Is(err, control.ErrUnknownDevice):
		return "unknown_device"
	case errors.Is(err, control.ErrOutOfRange):
		return "out_of_range"
	case errors.Is(err, control.ErrMalformed):
		return "malformed"
	default:
		return "error"
	}
}
