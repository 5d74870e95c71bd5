package monitor

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/shaunagostinho/psudash/internal/psu"
)

// Metrics are the dashboard's Prometheus collectors.
type Metrics struct {
	Exchanges *prometheus.CounterVec
	Latency   *prometheus.HistogramVec
	Voltage   prometheus.Gauge
	Current   prometheus.Gauge
	Power     prometheus.Gauge
	Mode      prometheus.Gauge
	WSClients prometheus.Gauge
	Published *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Exchanges: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "psu_exchanges_total",
				Help: "Command/response exchanges by function code and result",
			},
			[]string{"function", "result"},
		),
		Latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "psu_exchange_duration_seconds",
				Help:    "Time from command write to decoded response",
				Buckets: []float64{.05, .075, .1, .15, .25, .5, 1, 2},
			},
			[]string{"function"},
		),
		Voltage: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "psu_output_voltage_volts",
			Help: "Live output voltage",
		}),
		Current: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "psu_output_current_amps",
			Help: "Live output current",
		}),
		Power: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "psu_output_power_watts",
			Help: "Live output power",
		}),
		Mode: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "psu_output_mode",
			Help: "Regulation mode, 0 = CV, 1 = CC",
		}),
		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "psu_ws_clients",
			Help: "Connected WebSocket clients",
		}),
		Published: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "psu_samples_published_total",
				Help: "Samples handed to publishers by publisher and result",
			},
			[]string{"publisher", "result"},
		),
	}
	reg.MustRegister(
		m.Exchanges,
		m.Latency,
		m.Voltage,
		m.Current,
		m.Power,
		m.Mode,
		m.WSClients,
		m.Published,
	)
	return m
}

// ObserveExchange matches psu.Supply.Observer.
func (m *Metrics) ObserveExchange(function string, d time.Duration, err error) {
	m.Exchanges.WithLabelValues(function, Result(err)).Inc()
	if err == nil {
		m.Latency.WithLabelValues(function).Observe(d.Seconds())
	}
}

// ObserveSample updates the output gauges.
func (m *Metrics) ObserveSample(s *psu.Sample) {
	m.Voltage.Set(s.Status.Voltage)
	m.Current.Set(s.Status.Current)
	m.Power.Set(s.Power)
	m.Mode.Set(float64(s.Status.Mode))
}

// ObservePublish counts one publisher call.
func (m *Metrics) ObservePublish(publisher string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.Published.WithLabelValues(publisher, result).Inc()
}

// Result is the label value for an exchange error.
func Result(err error) string {
	var (
		unrep *psu.ValueUnrepresentableError
		rerr  *psu.ReadError
		werr  *psu.WriteError
		derr  *psu.DialError
	)
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &unrep):
		return "unrepresentable"
	case errors.Is(err, psu.ErrMalformedResponse):
		return "malformed"
	case errors.Is(err, psu.ErrNoResponse):
		return "no_response"
	case errors.Is(err, psu.ErrUnknownVariant):
		return "unknown_variant"
	case errors.As(err, &rerr):
		return "read"
	case errors.As(err, &werr):
		return "write"
	case errors.As(err, &derr):
		return "dial"
	default:
		return "other"
	}
}
