// Package poller runs the repeating poll of the power strip.
//
// A Scheduler owns one ticker and guarantees that at most one poll cycle is in
// flight. Ticks that arrive while a cycle runs are dropped. Out-of-band polls
// requested through PollNow during a cycle are coalesced into a single
// follow-up cycle that starts once the running one has finished.
package poller

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/muurk/ippower/internal/device"
	"github.com/muurk/ippower/internal/logging"
	"github.com/muurk/ippower/internal/metrics"
	"github.com/muurk/ippower/internal/state"
	"go.uber.org/zap"
)

// ErrStopped is returned for polls requested or finishing after Shutdown.
var ErrStopped = errors.New("poller: scheduler stopped")

// Source performs one poll cycle against the device.
type Source interface {
	Poll(ctx context.Context) (device.Delta, error)
}

// Sink receives the result of a successful poll cycle.
type Sink interface {
	Apply(delta device.Delta) []state.Change
}

// State is the scheduler's position in its lifecycle.
type State int

const (
	StateIdle State = iota
	StateScheduled
	StatePolling
	StateDisabled
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateScheduled:
		return "scheduled"
	case StatePolling:
		return "polling"
	case StateDisabled:
		return "disabled"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithReporter sets a function called after every applied cycle with the
// cycle's error, or nil on success.
func WithReporter(fn func(error)) Option {
	return func(s *Scheduler) {
		s.report = fn
	}
}

// WithCollector sets the metrics collector.
func WithCollector(c metrics.Collector) Option {
	return func(s *Scheduler) {
		s.collector = c
	}
}

type cycle struct {
	done    chan struct{}
	err     error
	waiters int
}

func newCycle() *cycle {
	return &cycle{done: make(chan struct{})}
}

func (c *cycle) finish(err error) {
	c.err = err
	close(c.done)
}

// Scheduler serializes poll cycles and applies their results.
type Scheduler struct {
	source    Source
	sink      Sink
	report    func(error)
	collector metrics.Collector

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	state    State
	interval time.Duration
	gen      int
	stopTick chan struct{}
	current  *cycle
	pending  *cycle

	// applyMu orders result application against Shutdown
	applyMu sync.Mutex
	stopped bool

	wg sync.WaitGroup
}

// New creates an idle scheduler. Call Configure to start the timer.
func New(source Source, sink Sink, opts ...Option) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		source:    source,
		sink:      sink,
		report:    func(error) {},
		collector: metrics.Noop(),
		ctx:       ctx,
		cancel:    cancel,
		state:     StateIdle,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the current lifecycle state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil && s.state != StateStopped {
		return StatePolling
	}
	return s.state
}

// Interval returns the configured poll interval (zero when disabled).
func (s *Scheduler) Interval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interval
}

// Configure replaces the timer. An interval <= 0 disables periodic polling;
// PollNow keeps working. A poll already in flight is not interrupted.
func (s *Scheduler) Configure(interval time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateStopped {
		return
	}

	s.stopTimerLocked()
	s.gen++

	if interval <= 0 {
		s.interval = 0
		s.state = StateDisabled
		logging.Debug("Polling disabled")
		return
	}

	s.interval = interval
	s.state = StateScheduled
	s.stopTick = make(chan struct{})

	s.wg.Add(1)
	go s.loop(time.NewTicker(interval), s.stopTick, s.gen)

	logging.Debug("Polling scheduled", zap.Duration("interval", interval))
}

func (s *Scheduler) stopTimerLocked() {
	if s.stopTick != nil {
		close(s.stopTick)
		s.stopTick = nil
	}
}

func (s *Scheduler) loop(ticker *time.Ticker, stop <-chan struct{}, gen int) {
	defer s.wg.Done()
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.onTick(gen)
		}
	}
}

// onTick handles one timer fire from the timer generation gen. It reports
// whether a cycle was started.
func (s *Scheduler) onTick(gen int) bool {
	s.mu.Lock()
	if gen != s.gen || s.state != StateScheduled {
		s.mu.Unlock()
		return false
	}
	if s.current != nil {
		s.mu.Unlock()
		s.collector.IncDroppedTick()
		logging.Debug("Poll still in flight, dropping tick")
		return false
	}
	s.startLocked()
	s.mu.Unlock()
	return true
}

// PollNow runs an out-of-band poll cycle and waits for it. When a cycle is
// already in flight the request joins a single follow-up cycle that starts
// after it, so the returned result always reflects device state read after
// the call was made. ctx bounds the wait, not the device request.
func (s *Scheduler) PollNow(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateStopped {
		s.mu.Unlock()
		return ErrStopped
	}

	var c *cycle
	if s.current == nil {
		c = s.startLocked()
	} else {
		if s.pending == nil {
			s.pending = newCycle()
		}
		s.pending.waiters++
		c = s.pending
	}
	s.mu.Unlock()

	select {
	case <-c.done:
		return c.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// startLocked launches a new cycle. mu must be held and no cycle in flight.
func (s *Scheduler) startLocked() *cycle {
	c := newCycle()
	s.current = c
	s.wg.Add(1)
	go s.run(c)
	return c
}

func (s *Scheduler) run(c *cycle) {
	defer s.wg.Done()

	err := s.pollOnce()

	s.mu.Lock()
	s.current = nil
	if s.pending != nil && s.state != StateStopped {
		next := s.pending
		s.pending = nil
		s.current = next
		logging.Debug("Starting follow-up poll", zap.Int("coalesced", next.waiters))
		s.wg.Add(1)
		go s.run(next)
	}
	s.mu.Unlock()

	c.finish(err)
}

func (s *Scheduler) pollOnce() error {
	start := time.Now()
	delta, err := s.source.Poll(s.ctx)
	elapsed := time.Since(start)

	s.applyMu.Lock()
	defer s.applyMu.Unlock()

	if s.stopped {
		s.collector.ObservePoll(metrics.ResultDiscarded, elapsed)
		logging.Debug("Discarding poll result after shutdown")
		return ErrStopped
	}

	if err != nil {
		s.collector.ObservePoll(resultOf(err), elapsed)
		logging.Warn("Poll failed", zap.Error(err), zap.Duration("elapsed", elapsed))
		s.report(err)
		return err
	}

	changes := s.sink.Apply(delta)
	s.collector.ObservePoll(metrics.ResultOK, elapsed)
	logging.Debug("Poll complete",
		zap.Int("sockets", len(delta)),
		zap.Int("changes", len(changes)),
		zap.Duration("elapsed", elapsed),
	)
	s.report(nil)
	return nil
}

func resultOf(err error) string {
	if device.IsUnreachable(err) {
		return metrics.ResultUnreachable
	}
	return metrics.ResultProtocol
}

// Shutdown stops the timer, cancels any in-flight request and waits for the
// scheduler's goroutines. No result is applied after Shutdown returns. It is
// idempotent and must not be called from a Sink or reporter callback.
func (s *Scheduler) Shutdown() {
	s.mu.Lock()
	if s.state == StateStopped {
		s.mu.Unlock()
		return
	}
	s.state = StateStopped
	s.interval = 0
	s.stopTimerLocked()
	if s.pending != nil {
		s.pending.finish(ErrStopped)
		s.pending = nil
	}
	s.mu.Unlock()

	s.applyMu.Lock()
	s.stopped = true
	s.applyMu.Unlock()

	s.cancel()
	s.wg.Wait()
}
