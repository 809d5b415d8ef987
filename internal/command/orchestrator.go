// Package command turns socket commands into device calls.
//
// Every successful set command is followed by an out-of-band poll. The cache
// only changes when that poll reads the new state back from the device.
package command

import (
	"context"
	"fmt"

	"github.com/muurk/ippower/internal/device"
	"github.com/muurk/ippower/internal/logging"
	"github.com/muurk/ippower/internal/metrics"
	"go.uber.org/zap"
)

// Command names used for metrics and logs
const (
	CommandSet          = "set"
	CommandToggle       = "toggle"
	CommandRefreshPower = "refresh_power"
	CommandRefreshNames = "refresh_names"
)

// Switcher issues set commands to the device.
type Switcher interface {
	SetPower(ctx context.Context, id device.SocketID, desired device.PowerState) error
}

// Reader reads cached socket state.
type Reader interface {
	Get(id device.SocketID) (device.SocketRecord, error)
}

// Refresher runs an out-of-band poll cycle.
type Refresher interface {
	PollNow(ctx context.Context) error
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithReporter sets a function that receives device errors from commands.
func WithReporter(fn func(error)) Option {
	return func(o *Orchestrator) {
		o.report = fn
	}
}

// WithCollector sets the metrics collector.
func WithCollector(c metrics.Collector) Option {
	return func(o *Orchestrator) {
		o.collector = c
	}
}

// Orchestrator executes socket commands.
type Orchestrator struct {
	device    Switcher
	cache     Reader
	refresher Refresher
	report    func(error)
	collector metrics.Collector
}

// New creates an orchestrator.
func New(sw Switcher, cache Reader, refresher Refresher, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		device:    sw,
		cache:     cache,
		refresher: refresher,
		report:    func(error) {},
		collector: metrics.Noop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// SetSocketPower switches socket id to desired and polls to confirm.
func (o *Orchestrator) SetSocketPower(ctx context.Context, id device.SocketID, desired device.PowerState) error {
	err := o.setSocketPower(ctx, id, desired)
	o.record(CommandSet, err)
	return err
}

func (o *Orchestrator) setSocketPower(ctx context.Context, id device.SocketID, desired device.PowerState) error {
	if !id.Valid() {
		return device.NewInvalidArgumentError(fmt.Sprintf("socket %d out of range %d-%d", int(id), device.MinSocket, device.MaxSocket))
	}
	if desired != device.PowerOn && desired != device.PowerOff {
		return device.NewInvalidArgumentError(fmt.Sprintf("cannot set socket %d to %s", int(id), desired))
	}

	if err := o.device.SetPower(ctx, id, desired); err != nil {
		o.report(err)
		return err
	}

	if err := o.refresher.PollNow(ctx); err != nil {
		return fmt.Errorf("confirm socket %d: %w", int(id), err)
	}
	return nil
}

// ToggleSocketPower switches socket id to the opposite of its cached state.
// A socket whose state is not known yet cannot be toggled.
func (o *Orchestrator) ToggleSocketPower(ctx context.Context, id device.SocketID) error {
	err := o.toggleSocketPower(ctx, id)
	o.record(CommandToggle, err)
	return err
}

func (o *Orchestrator) toggleSocketPower(ctx context.Context, id device.SocketID) error {
	rec, err := o.cache.Get(id)
	if err != nil {
		return err
	}
	if rec.Power == device.PowerUnset {
		return device.NewPreconditionFailedError(fmt.Sprintf("socket %d state is unknown", int(id)))
	}
	return o.setSocketPower(ctx, id, rec.Power.Opposite())
}

// RefreshPowerState forces a poll of the power state.
func (o *Orchestrator) RefreshPowerState(ctx context.Context) error {
	err := o.refresher.PollNow(ctx)
	o.record(CommandRefreshPower, err)
	return err
}

// RefreshSocketNames forces a poll that also reads socket names. Names are
// part of every poll cycle so this is the same cycle as RefreshPowerState.
func (o *Orchestrator) RefreshSocketNames(ctx context.Context) error {
	err := o.refresher.PollNow(ctx)
	o.record(CommandRefreshNames, err)
	return err
}

func (o *Orchestrator) record(command string, err error) {
	result := resultOf(err)
	o.collector.IncCommand(command, result)
	if err != nil {
		logging.Warn("Command failed", zap.String("command", command), zap.String("result", result), zap.Error(err))
		return
	}
	logging.Debug("Command complete", zap.String("command", command))
}

func resultOf(err error) string {
	if err == nil {
		return metrics.ResultOK
	}
	kind, ok := device.KindOf(err)
	if !ok {
		return metrics.ResultProtocol
	}
	switch kind {
	case device.KindUnreachable:
		return metrics.ResultUnreachable
	case device.KindInvalidArgument, device.KindPreconditionFailed, device.KindConfigIncomplete:
		return metrics.ResultRejected
	default:
		return metrics.ResultProtocol
	}
}
