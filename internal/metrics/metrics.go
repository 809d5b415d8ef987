// Package metrics records engine events for monitoring.
//
// The engine reports through the Collector interface. Noop discards
// everything; PrometheusCollector exposes the events as Prometheus series.
package metrics

import (
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Poll results
const (
	ResultOK          = "ok"
	ResultUnreachable = "unreachable"
	ResultProtocol    = "protocol"
	ResultRejected    = "rejected"
	ResultDiscarded   = "discarded"
)

// Collector captures events emitted by the poller, the command path and the
// engine. Calls happen inline with polling so implementations must be cheap.
type Collector interface {
	ObservePoll(result string, duration time.Duration)
	IncDroppedTick()
	IncCommand(command, result string)
	SetSocketPower(socket int, value float64)
	SetDeviceStatus(status string)
}

type noopCollector struct{}

// Noop returns a collector that discards all metrics.
func Noop() Collector {
	return noopCollector{}
}

func (noopCollector) ObservePoll(string, time.Duration) {}
func (noopCollector) IncDroppedTick()                   {}
func (noopCollector) IncCommand(string, string)         {}
func (noopCollector) SetSocketPower(int, float64)       {}
func (noopCollector) SetDeviceStatus(string)            {}

// PrometheusCollector exposes engine events via Prometheus.
type PrometheusCollector struct {
	polls        *prometheus.CounterVec
	pollDuration prometheus.Histogram
	droppedTicks prometheus.Counter
	commands     *prometheus.CounterVec
	socketPower  *prometheus.GaugeVec
	deviceStatus *prometheus.GaugeVec

	mu         sync.Mutex
	lastStatus string
}

// NewPrometheusCollector registers the engine metrics with reg. A nil reg
// uses the default registerer. Metrics that are already registered are reused.
func NewPrometheusCollector(reg prometheus.Registerer) (*PrometheusCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := &PrometheusCollector{}
	var err error

	if c.polls, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ippower_polls_total",
		Help: "Number of completed poll cycles by result.",
	}, []string{"result"})); err != nil {
		return nil, err
	}

	if c.pollDuration, err = register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "ippower_poll_duration_seconds",
		Help:    "Duration of poll cycles against the device.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	})); err != nil {
		return nil, err
	}

	if c.droppedTicks, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ippower_poll_ticks_dropped_total",
		Help: "Number of timer ticks dropped because a poll was still in flight.",
	})); err != nil {
		return nil, err
	}

	if c.commands, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ippower_commands_total",
		Help: "Number of socket commands by command and result.",
	}, []string{"command", "result"})); err != nil {
		return nil, err
	}

	if c.socketPower, err = register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ippower_socket_power",
		Help: "Cached socket power: 1 on, 0 off, -1 unknown.",
	}, []string{"socket"})); err != nil {
		return nil, err
	}

	if c.deviceStatus, err = register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ippower_device_status",
		Help: "Device connectivity status; the current status is 1.",
	}, []string{"status"})); err != nil {
		return nil, err
	}

	return c, nil
}

// register adds m to reg or returns the collector registered before it.
func register[T prometheus.Collector](reg prometheus.Registerer, m T) (T, error) {
	if err := reg.Register(m); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		var zero T
		return zero, err
	}
	return m, nil
}

// ObservePoll counts one poll cycle and records its duration.
func (p *PrometheusCollector) ObservePoll(result string, duration time.Duration) {
	if p == nil {
		return
	}
	p.polls.WithLabelValues(result).Inc()
	p.pollDuration.Observe(duration.Seconds())
}

// IncDroppedTick counts a tick skipped by the overlap guard.
func (p *PrometheusCollector) IncDroppedTick() {
	if p == nil {
		return
	}
	p.droppedTicks.Inc()
}

// IncCommand counts one command.
func (p *PrometheusCollector) IncCommand(command, result string) {
	if p == nil {
		return
	}
	p.commands.WithLabelValues(command, result).Inc()
}

// SetSocketPower updates the power gauge for one socket.
func (p *PrometheusCollector) SetSocketPower(socket int, value float64) {
	if p == nil {
		return
	}
	p.socketPower.WithLabelValues(strconv.Itoa(socket)).Set(value)
}

// SetDeviceStatus marks status as current and clears the previous one.
func (p *PrometheusCollector) SetDeviceStatus(status string) {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.lastStatus != "" && p.lastStatus != status {
		p.deviceStatus.WithLabelValues(p.lastStatus).Set(0)
	}
	p.deviceStatus.WithLabelValues(status).Set(1)
	p.lastStatus = status
}
