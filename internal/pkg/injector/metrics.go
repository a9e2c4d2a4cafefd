package injector

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "keymapper"

// Metrics collects injection counters, nil Metrics is a valid no-op collector
type Metrics struct {
	Forwarded    *prometheus.CounterVec
	Remapped     *prometheus.CounterVec
	Macros       *prometheus.CounterVec
	GrabAttempts *prometheus.CounterVec
	GrabFailures *prometheus.CounterVec
	Relative     *prometheus.CounterVec
	Running      prometheus.Gauge
}

func counter(name, help string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, []string{"device"})
}

// NewMetrics creates collectors and registers them when reg is not nil
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Forwarded:    counter("events_forwarded_total", "Events written unchanged to the virtual device."),
		Remapped:     counter("events_remapped_total", "Events written with replaced code."),
		Macros:       counter("macros_triggered_total", "Macro executions started."),
		GrabAttempts: counter("grab_attempts_total", "Exclusive device grab attempts."),
		GrabFailures: counter("grab_failures_total", "Devices which could not be grabbed after all attempts."),
		Relative:     counter("relative_events_total", "Relative motion events produced from joystick position."),
		Running: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "injectors_running",
			Help:      "Injectors currently forwarding events.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Forwarded, m.Remapped, m.Macros, m.GrabAttempts, m.GrabFailures, m.Relative, m.Running)
	}
	return m
}

func (m *Metrics) forwarded(device string) {
	if m != nil {
		m.Forwarded.WithLabelValues(device).Inc()
	}
}

func (m *Metrics) remapped(device string) {
	if m != nil {
		m.Remapped.WithLabelValues(device).Inc()
	}
}

func (m *Metrics) macroTriggered(device string) {
	if m != nil {
		m.Macros.WithLabelValues(device).Inc()
	}
}

func (m *Metrics) grabAttempt(device string) {
	if m != nil {
		m.GrabAttempts.WithLabelValues(device).Inc()
	}
}

func (m *Metrics) grabFailed(device string) {
	if m != nil {
		m.GrabFailures.WithLabelValues(device).Inc()
	}
}

func (m *Metrics) relative(device string, n int) {
	if m != nil {
		m.Relative.WithLabelValues(device).Add(float64(n))
	}
}

func (m *Metrics) running(delta float64) {
	if m != nil {
		m.Running.Add(delta)
	}
}
