// Package engine wires the device client, state cache, poll scheduler and
// command orchestrator into one session per device configuration.
//
// The cache lives as long as the Engine. Everything else belongs to a
// session: Reconfigure shuts the session down, resets the cache and starts a
// new one.
package engine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/muurk/ippower/internal/command"
	"github.com/muurk/ippower/internal/config"
	"github.com/muurk/ippower/internal/device"
	"github.com/muurk/ippower/internal/logging"
	"github.com/muurk/ippower/internal/metrics"
	"github.com/muurk/ippower/internal/poller"
	"github.com/muurk/ippower/internal/state"
	"go.uber.org/zap"
)

var (
	// ErrNotStarted is returned by commands issued outside a running session
	ErrNotStarted = errors.New("engine: not started")

	// ErrAlreadyStarted is returned by Start on a running engine
	ErrAlreadyStarted = errors.New("engine: already started")
)

// Option configures an Engine.
type Option func(*Engine)

// WithCollector sets the metrics collector shared by all sessions.
func WithCollector(c metrics.Collector) Option {
	return func(e *Engine) {
		e.collector = c
	}
}

// WithHTTPClient sets the HTTP client used to reach the device.
func WithHTTPClient(c *http.Client) Option {
	return func(e *Engine) {
		e.httpClient = c
	}
}

// session is the per-configuration part of the engine
type session struct {
	client *device.Client
	sched  *poller.Scheduler
	orch   *command.Orchestrator
}

// Engine synchronizes one power strip into a local cache.
type Engine struct {
	cache      *state.Cache
	collector  metrics.Collector
	httpClient *http.Client

	// lifeMu serializes Start, Reconfigure and Shutdown. It is held across
	// the initial poll; mu is not.
	lifeMu sync.Mutex

	// mu guards cfg and sess
	mu   sync.RWMutex
	cfg  config.Device
	sess *session

	// notifyMu orders status stores with their fan-out
	notifyMu        sync.Mutex
	statusMu        sync.RWMutex
	status          Status
	lastErr         error
	statusObservers []statusSubscription
	nextStatusID    int
}

type statusSubscription struct {
	id int
	fn StatusObserver
}

// New creates an engine for cfg. Nothing is contacted until Start.
func New(cfg config.Device, opts ...Option) *Engine {
	e := &Engine{
		cache:     state.New(),
		collector: metrics.Noop(),
		cfg:       cfg,
	}
	for _, opt := range opts {
		opt(e)
	}

	e.cache.Subscribe(func(ch state.Change) {
		e.collector.SetSocketPower(int(ch.ID), powerValue(ch.New.Power))
	})
	for _, id := range device.AllSockets() {
		e.collector.SetSocketPower(int(id), powerValue(device.PowerUnset))
	}
	e.collector.SetDeviceStatus(StatusUnknown.String())

	return e
}

func powerValue(p device.PowerState) float64 {
	switch p {
	case device.PowerOn:
		return 1
	case device.PowerOff:
		return 0
	default:
		return -1
	}
}

// Start validates the configuration, runs an initial poll and arms the poll
// timer. An incomplete configuration fails before any network call and
// leaves the engine in StatusBadConfig. An unreachable device does not fail
// Start; it is reported through the status.
func (e *Engine) Start(ctx context.Context) error {
	e.lifeMu.Lock()
	defer e.lifeMu.Unlock()
	return e.startLocked(ctx)
}

// startLocked requires lifeMu.
func (e *Engine) startLocked(ctx context.Context) error {
	e.mu.RLock()
	running := e.sess != nil
	cfg := e.cfg
	e.mu.RUnlock()
	if running {
		return ErrAlreadyStarted
	}

	opts, err := cfg.ClientOptions()
	if err != nil {
		e.setStatus(StatusBadConfig, err)
		return err
	}
	opts.HTTPClient = e.httpClient

	client, err := device.NewClient(opts)
	if err != nil {
		e.setStatus(statusOf(err), err)
		return err
	}

	sched := poller.New(client, e.cache,
		poller.WithReporter(e.report),
		poller.WithCollector(e.collector),
	)
	orch := command.New(client, e.cache, sched,
		command.WithReporter(e.report),
		command.WithCollector(e.collector),
	)
	e.mu.Lock()
	e.sess = &session{client: client, sched: sched, orch: orch}
	e.mu.Unlock()

	logging.Info("Engine starting",
		zap.String("address", client.Address()),
		zap.String("dialect", client.Dialect().String()),
		zap.Duration("poll_interval", opts.PollInterval),
	)
	e.setStatus(StatusConnecting, nil)

	if err := sched.PollNow(ctx); err != nil {
		logging.Warn("Initial poll failed", zap.Error(err))
	}
	sched.Configure(cfg.PollInterval())

	return nil
}

// Reconfigure replaces the device configuration. The running session is shut
// down, the cache is reset to Unset and a new session is started.
func (e *Engine) Reconfigure(ctx context.Context, cfg config.Device) error {
	e.lifeMu.Lock()
	defer e.lifeMu.Unlock()

	e.stopLocked()
	e.cache.Reset()
	e.mu.Lock()
	e.cfg = cfg
	e.mu.Unlock()
	e.setStatus(StatusUnknown, nil)

	return e.startLocked(ctx)
}

// Shutdown stops the running session. No cache mutation happens after it
// returns. It is idempotent.
func (e *Engine) Shutdown() {
	e.lifeMu.Lock()
	defer e.lifeMu.Unlock()
	e.stopLocked()
}

// stopLocked requires lifeMu.
func (e *Engine) stopLocked() {
	e.mu.Lock()
	sess := e.sess
	e.sess = nil
	e.mu.Unlock()
	if sess == nil {
		return
	}
	sess.sched.Shutdown()
	logging.Info("Engine stopped")
}

// Config returns the current device configuration.
func (e *Engine) Config() config.Device {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cfg
}

// Running reports whether a session is active.
func (e *Engine) Running() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.sess != nil
}

// PollState returns the scheduler state of the running session.
func (e *Engine) PollState() poller.State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.sess == nil {
		return poller.StateStopped
	}
	return e.sess.sched.State()
}

func (e *Engine) orchestrator() (*command.Orchestrator, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.sess == nil {
		return nil, ErrNotStarted
	}
	return e.sess.orch, nil
}

// SetSocketPower switches a socket and waits for the confirming poll.
func (e *Engine) SetSocketPower(ctx context.Context, id device.SocketID, desired device.PowerState) error {
	o, err := e.orchestrator()
	if err != nil {
		return err
	}
	return o.SetSocketPower(ctx, id, desired)
}

// ToggleSocketPower switches a socket to the opposite of its cached state.
func (e *Engine) ToggleSocketPower(ctx context.Context, id device.SocketID) error {
	o, err := e.orchestrator()
	if err != nil {
		return err
	}
	return o.ToggleSocketPower(ctx, id)
}

// RefreshPowerState forces an out-of-band poll.
func (e *Engine) RefreshPowerState(ctx context.Context) error {
	o, err := e.orchestrator()
	if err != nil {
		return err
	}
	return o.RefreshPowerState(ctx)
}

// RefreshSocketNames forces an out-of-band poll that reads socket names.
func (e *Engine) RefreshSocketNames(ctx context.Context) error {
	o, err := e.orchestrator()
	if err != nil {
		return err
	}
	return o.RefreshSocketNames(ctx)
}

// Socket returns the cached record of one socket.
func (e *Engine) Socket(id device.SocketID) (device.SocketRecord, error) {
	return e.cache.Get(id)
}

// Sockets returns all four cached records.
func (e *Engine) Sockets() [device.NumSockets]device.SocketRecord {
	return e.cache.GetAll()
}

// IsOn reports whether the socket is known to be on. This is the per-socket
// feedback signal; unknown and invalid sockets are not on.
func (e *Engine) IsOn(id device.SocketID) bool {
	rec, err := e.cache.Get(id)
	return err == nil && rec.Power == device.PowerOn
}

// Variables returns the display variables p1..p4 ("On", "Off" or "?") and
// p1_name..p4_name.
func (e *Engine) Variables() map[string]string {
	vars := make(map[string]string, 2*device.NumSockets)
	for _, rec := range e.cache.GetAll() {
		vars[fmt.Sprintf("p%d", rec.ID)] = rec.Power.String()
		vars[fmt.Sprintf("p%d_name", rec.ID)] = rec.Name
	}
	return vars
}

// Subscribe registers an observer of socket changes. See state.Cache.Subscribe.
func (e *Engine) Subscribe(fn state.Observer) (cancel func()) {
	return e.cache.Subscribe(fn)
}

// Status returns the connectivity status and the error that caused it.
func (e *Engine) Status() (Status, error) {
	e.statusMu.RLock()
	defer e.statusMu.RUnlock()
	return e.status, e.lastErr
}

// SubscribeStatus registers fn for status changes. Observers run on the
// goroutine that observed the change, in the order the changes were stored.
// They must not block or call back into the engine's lifecycle methods.
func (e *Engine) SubscribeStatus(fn StatusObserver) (cancel func()) {
	e.statusMu.Lock()
	defer e.statusMu.Unlock()

	id := e.nextStatusID
	e.nextStatusID++
	e.statusObservers = append(e.statusObservers, statusSubscription{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() {
			e.statusMu.Lock()
			defer e.statusMu.Unlock()
			for i, sub := range e.statusObservers {
				if sub.id == id {
					e.statusObservers = append(e.statusObservers[:i:i], e.statusObservers[i+1:]...)
					return
				}
			}
		})
	}
}

// report receives poll and command outcomes
func (e *Engine) report(err error) {
	e.setStatus(statusOf(err), err)
}

func (e *Engine) setStatus(status Status, err error) {
	e.notifyMu.Lock()
	defer e.notifyMu.Unlock()

	e.statusMu.Lock()
	changed := status != e.status
	e.status = status
	e.lastErr = err
	observers := e.statusObservers
	e.statusMu.Unlock()

	if !changed {
		return
	}

	e.collector.SetDeviceStatus(status.String())
	if err != nil {
		logging.Warn("Device status changed", zap.String("status", status.String()), zap.Error(err))
	} else {
		logging.Info("Device status changed", zap.String("status", status.String()))
	}

	for _, sub := range observers {
		sub.fn(status, err)
	}
}
