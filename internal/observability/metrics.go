package observability

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// GeneratorCollector bundles Prometheus metrics for the traffic generator
// loop. A nil *GeneratorCollector is valid and records nothing.
type GeneratorCollector struct {
	gatherer prometheus.Gatherer

	SamplesSent     prometheus.Counter
	SamplesDropped  prometheus.Counter
	SendErrors      prometheus.Counter
	Reconnects      prometheus.Counter
	ConnectFailures prometheus.Counter
	ScheduleSize    prometheus.Gauge
	Connected       prometheus.Gauge
	SendLag         prometheus.Histogram
}

// NewGeneratorCollector registers generator metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewGeneratorCollector(reg prometheus.Registerer) (*GeneratorCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	sent, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "owl_samples_sent_total",
		Help: "Samples delivered to the aggregator.",
	}), "owl_samples_sent_total")
	if err != nil {
		return nil, err
	}
	dropped, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "owl_samples_dropped_total",
		Help: "Samples skipped by synthetic packet loss.",
	}), "owl_samples_dropped_total")
	if err != nil {
		return nil, err
	}
	sendErrors, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "owl_send_errors_total",
		Help: "Sample sends that failed at the transport layer.",
	}), "owl_send_errors_total")
	if err != nil {
		return nil, err
	}
	reconnects, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "owl_reconnects_total",
		Help: "Successful connections to the aggregator after the first one.",
	}), "owl_reconnects_total")
	if err != nil {
		return nil, err
	}
	connectFailures, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "owl_connect_failures_total",
		Help: "Failed connection attempts to the aggregator.",
	}), "owl_connect_failures_total")
	if err != nil {
		return nil, err
	}
	size, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "owl_schedule_size",
		Help: "Pending events in the transmission schedule.",
	}), "owl_schedule_size")
	if err != nil {
		return nil, err
	}
	connected, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "owl_aggregator_connected",
		Help: "1 while a connection to the aggregator is established.",
	}), "owl_aggregator_connected")
	if err != nil {
		return nil, err
	}
	lag, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "owl_send_lag_seconds",
		Help:    "Delay between a sample's scheduled time and its actual send.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 5},
	}), "owl_send_lag_seconds")
	if err != nil {
		return nil, err
	}

	return &GeneratorCollector{
		gatherer:        gatherer,
		SamplesSent:     sent,
		SamplesDropped:  dropped,
		SendErrors:      sendErrors,
		Reconnects:      reconnects,
		ConnectFailures: connectFailures,
		ScheduleSize:    size,
		Connected:       connected,
		SendLag:         lag,
	}, nil
}

// Handler exposes a ready-to-use /metrics handler.
func (c *GeneratorCollector) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if c != nil && c.gatherer != nil {
		gatherer = c.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// ObserveSend records a delivered sample and how late it went out.
func (c *GeneratorCollector) ObserveSend(lag time.Duration) {
	if c == nil {
		return
	}
	c.SamplesSent.Inc()
	if lag < 0 {
		lag = 0
	}
	c.SendLag.Observe(lag.Seconds())
}

// ObserveDrop records a loss-dropped sample.
func (c *GeneratorCollector) ObserveDrop() {
	if c == nil {
		return
	}
	c.SamplesDropped.Inc()
}

// ObserveSendError records a transport failure.
func (c *GeneratorCollector) ObserveSendError() {
	if c == nil {
		return
	}
	c.SendErrors.Inc()
}

// ObserveConnect records the outcome of a connection attempt. reconnect is
// true when an earlier connection had already been established.
func (c *GeneratorCollector) ObserveConnect(err error, reconnect bool) {
	if c == nil {
		return
	}
	if err != nil {
		c.ConnectFailures.Inc()
		return
	}
	c.Connected.Set(1)
	if reconnect {
		c.Reconnects.Inc()
	}
}

// ObserveDisconnect clears the connected gauge.
func (c *GeneratorCollector) ObserveDisconnect() {
	if c == nil {
		return
	}
	c.Connected.Set(0)
}

// SetScheduleSize updates the schedule gauge.
func (c *GeneratorCollector) SetScheduleSize(n int) {
	if c == nil {
		return
	}
	c.ScheduleSize.Set(float64(n))
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return hist, nil
}
