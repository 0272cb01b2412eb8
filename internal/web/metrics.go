package web

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ofu951/UUV-Position-Stabilization/internal/control"
)

// Metrics exports the control loop to Prometheus. Per-cycle values are
// pushed through ObserveCycle; loop-level counters are read from the
// status snapshot at scrape time.
type Metrics struct {
	reg *prometheus.Registry

	cycles      prometheus.Counter
	noDetection prometheus.Counter
	markers     prometheus.Gauge
	area        prometheus.Gauge
	pwm         *prometheus.GaugeVec
	inDeadband  *prometheus.GaugeVec
}

func NewMetrics(status *Status) *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "uuv", Name: "cycles_total",
			Help: "Control cycles completed.",
		}),
		noDetection: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "uuv", Name: "no_detection_cycles_total",
			Help: "Control cycles with no marker detected.",
		}),
		markers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "uuv", Name: "markers_detected",
			Help: "Markers detected in the last cycle.",
		}),
		area: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "uuv", Name: "marker_area_px2",
			Help: "Area of the controlling marker in the last cycle (0 when none).",
		}),
		pwm: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "uuv", Name: "axis_pwm",
			Help: "Last PWM command per axis.",
		}, []string{"axis"}),
		inDeadband: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "uuv", Name: "axis_in_deadband",
			Help: "1 when the axis error was inside its deadband in the last cycle.",
		}, []string{"axis"}),
	}
	m.reg.MustRegister(m.cycles, m.noDetection, m.markers, m.area, m.pwm, m.inDeadband)

	if status != nil {
		m.reg.MustRegister(
			prometheus.NewCounterFunc(prometheus.CounterOpts{
				Namespace: "uuv", Name: "read_failures_total",
				Help: "Frame reads that failed.",
			}, func() float64 { return float64(status.Control().ReadFailures) }),
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Namespace: "uuv", Name: "loop_fps",
				Help: "Smoothed control loop rate.",
			}, func() float64 { return status.Control().FPS }),
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Namespace: "uuv", Name: "armed",
				Help: "1 when the vehicle reported armed in the last cycle.",
			}, func() float64 { return boolFloat(status.Control().Armed) }),
		)
	}
	return m
}

func (m *Metrics) ObserveCycle(c control.Cycle) {
	m.cycles.Inc()
	if !c.Detected() {
		m.noDetection.Inc()
		m.area.Set(0)
	} else {
		m.area.Set(c.Measurement.Area)
	}
	m.markers.Set(float64(c.Markers))
	for name, st := range c.Statuses {
		m.pwm.WithLabelValues(name).Set(float64(st.PWM))
		m.inDeadband.WithLabelValues(name).Set(boolFloat(st.InDeadband))
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

func boolFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
