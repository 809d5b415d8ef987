package poller

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/muurk/ippower/internal/device"
	"github.com/muurk/ippower/internal/metrics"
	"github.com/muurk/ippower/internal/state"
)

// fakeSource counts polls and can hold them until released
type fakeSource struct {
	calls   int32
	entered chan struct{}
	release chan struct{}
	delta   device.Delta
	err     error
}

func newFakeSource(delta device.Delta) *fakeSource {
	return &fakeSource{delta: delta, entered: make(chan struct{}, 16)}
}

func (f *fakeSource) blocking() *fakeSource {
	f.release = make(chan struct{})
	return f
}

func (f *fakeSource) Poll(ctx context.Context) (device.Delta, error) {
	atomic.AddInt32(&f.calls, 1)
	select {
	case f.entered <- struct{}{}:
	default:
	}
	if f.release != nil {
		<-f.release
	}
	return f.delta, f.err
}

func (f *fakeSource) count() int {
	return int(atomic.LoadInt32(&f.calls))
}

type fakeSink struct {
	mu      sync.Mutex
	applied []device.Delta
}

func (f *fakeSink) Apply(delta device.Delta) []state.Change {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.applied = append(f.applied, delta)
	return nil
}

func (f *fakeSink) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.applied)
}

type countingCollector struct {
	metrics.Collector
	dropped int32
}

func (c *countingCollector) IncDroppedTick() {
	atomic.AddInt32(&c.dropped, 1)
}

func currentGen(s *Scheduler) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestStateTransitions(t *testing.T) {
	src := newFakeSource(nil)
	s := New(src, &fakeSink{})
	defer s.Shutdown()

	if s.State() != StateIdle {
		t.Errorf("State() = %v, want idle", s.State())
	}

	s.Configure(time.Hour)
	if s.State() != StateScheduled {
		t.Errorf("State() = %v, want scheduled", s.State())
	}
	if s.Interval() != time.Hour {
		t.Errorf("Interval() = %v, want 1h", s.Interval())
	}

	s.Configure(0)
	if s.State() != StateDisabled {
		t.Errorf("State() = %v, want disabled", s.State())
	}

	s.Configure(-5 * time.Second)
	if s.State() != StateDisabled {
		t.Errorf("State() = %v after negative interval, want disabled", s.State())
	}

	s.Shutdown()
	if s.State() != StateStopped {
		t.Errorf("State() = %v, want stopped", s.State())
	}
}

func TestTimerPolls(t *testing.T) {
	src := newFakeSource(device.Delta{1: {Power: device.PowerOn}})
	sink := &fakeSink{}
	s := New(src, sink)
	defer s.Shutdown()

	s.Configure(5 * time.Millisecond)
	waitFor(t, "two timer polls", func() bool { return sink.count() >= 2 })
}

func TestOverlapGuard(t *testing.T) {
	src := newFakeSource(nil).blocking()
	collector := &countingCollector{Collector: metrics.Noop()}
	s := New(src, &fakeSink{}, WithCollector(collector))
	defer s.Shutdown()

	s.Configure(time.Hour)
	gen := currentGen(s)

	if !s.onTick(gen) {
		t.Fatal("first tick should start a poll")
	}
	<-src.entered

	if s.State() != StatePolling {
		t.Errorf("State() = %v, want polling", s.State())
	}

	for i := 0; i < 3; i++ {
		if s.onTick(gen) {
			t.Error("tick during an in-flight poll must be dropped")
		}
	}
	if got := src.count(); got != 1 {
		t.Errorf("device queries during overlap = %d, want 1", got)
	}
	if got := atomic.LoadInt32(&collector.dropped); got != 3 {
		t.Errorf("dropped ticks = %d, want 3", got)
	}

	close(src.release)
	waitFor(t, "return to scheduled", func() bool { return s.State() == StateScheduled })
}

func TestStaleTickIgnored(t *testing.T) {
	src := newFakeSource(nil)
	s := New(src, &fakeSink{})
	defer s.Shutdown()

	s.Configure(time.Hour)
	old := currentGen(s)
	s.Configure(2 * time.Hour)

	if s.onTick(old) {
		t.Error("tick from a replaced timer must not start a poll")
	}
}

func TestConfigureZeroStopsPolling(t *testing.T) {
	src := newFakeSource(nil)
	s := New(src, &fakeSink{})
	defer s.Shutdown()

	s.Configure(2 * time.Millisecond)
	waitFor(t, "first timer poll", func() bool { return src.count() >= 1 })

	s.Configure(0)
	waitFor(t, "in-flight poll to finish", func() bool { return s.State() == StateDisabled })
	before := src.count()

	time.Sleep(50 * time.Millisecond)
	if got := src.count(); got != before {
		t.Errorf("device queries after Configure(0) = %d, want %d", got, before)
	}
}

func TestPollNow(t *testing.T) {
	delta := device.Delta{2: {Power: device.PowerOff, Name: "Rack2"}}
	src := newFakeSource(delta)
	sink := &fakeSink{}

	var reported []error
	s := New(src, sink, WithReporter(func(err error) { reported = append(reported, err) }))
	defer s.Shutdown()

	if err := s.PollNow(context.Background()); err != nil {
		t.Fatalf("PollNow() error = %v", err)
	}
	if sink.count() != 1 {
		t.Errorf("applied = %d, want 1", sink.count())
	}
	if len(reported) != 1 || reported[0] != nil {
		t.Errorf("reported = %v, want [nil]", reported)
	}
	if s.State() != StateIdle {
		t.Errorf("State() = %v, want idle (never configured)", s.State())
	}
}

func TestPollNow_Failure(t *testing.T) {
	src := newFakeSource(nil)
	src.err = &device.Error{Kind: device.KindUnreachable, Message: "request timed out"}
	sink := &fakeSink{}

	var reported error
	s := New(src, sink, WithReporter(func(err error) { reported = err }))
	defer s.Shutdown()
	s.Configure(time.Hour)

	err := s.PollNow(context.Background())
	if !device.IsUnreachable(err) {
		t.Errorf("PollNow() error = %v, want unreachable", err)
	}
	if !device.IsUnreachable(reported) {
		t.Errorf("reported = %v, want unreachable", reported)
	}
	if sink.count() != 0 {
		t.Error("failed poll must not be applied")
	}
	if s.State() != StateScheduled {
		t.Errorf("State() = %v after failed poll, want scheduled", s.State())
	}
}

func TestPollNow_CoalescesDuringInFlight(t *testing.T) {
	src := newFakeSource(nil).blocking()
	s := New(src, &fakeSink{})
	defer s.Shutdown()

	s.Configure(time.Hour)
	s.onTick(currentGen(s))
	<-src.entered

	const callers = 3
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		go func() { errs <- s.PollNow(context.Background()) }()
	}

	waitFor(t, "callers to join the follow-up", func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.pending != nil && s.pending.waiters == callers
	})
	if got := src.count(); got != 1 {
		t.Errorf("device queries while in flight = %d, want 1", got)
	}

	close(src.release)
	for i := 0; i < callers; i++ {
		if err := <-errs; err != nil {
			t.Errorf("PollNow() error = %v", err)
		}
	}

	if got := src.count(); got != 2 {
		t.Errorf("device queries = %d, want 2 (in-flight plus one follow-up)", got)
	}
}

func TestPollNow_ContextBoundsWait(t *testing.T) {
	src := newFakeSource(nil).blocking()
	s := New(src, &fakeSink{})
	defer func() {
		close(src.release)
		s.Shutdown()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if err := s.PollNow(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("PollNow() error = %v, want deadline exceeded", err)
	}
}

func TestShutdownDiscardsInFlightResult(t *testing.T) {
	src := newFakeSource(device.Delta{1: {Power: device.PowerOn}}).blocking()
	sink := &fakeSink{}
	var reports int32
	s := New(src, sink, WithReporter(func(error) { atomic.AddInt32(&reports, 1) }))

	pollErr := make(chan error, 1)
	go func() { pollErr <- s.PollNow(context.Background()) }()
	<-src.entered

	done := make(chan struct{})
	go func() {
		s.Shutdown()
		close(done)
	}()

	waitFor(t, "shutdown to begin", func() bool {
		s.applyMu.Lock()
		defer s.applyMu.Unlock()
		return s.stopped
	})
	close(src.release)
	<-done

	if err := <-pollErr; !errors.Is(err, ErrStopped) {
		t.Errorf("PollNow() error = %v, want ErrStopped", err)
	}
	if sink.count() != 0 {
		t.Errorf("applied = %d after shutdown, want 0", sink.count())
	}
	if atomic.LoadInt32(&reports) != 0 {
		t.Error("discarded result must not be reported")
	}
}

func TestShutdown(t *testing.T) {
	src := newFakeSource(nil)
	s := New(src, &fakeSink{})
	s.Configure(time.Millisecond)

	s.Shutdown()
	s.Shutdown()

	before := src.count()
	time.Sleep(20 * time.Millisecond)
	if got := src.count(); got != before {
		t.Errorf("device queries after Shutdown = %d, want %d", got, before)
	}

	if err := s.PollNow(context.Background()); !errors.Is(err, ErrStopped) {
		t.Errorf("PollNow() after Shutdown error = %v, want ErrStopped", err)
	}

	s.Configure(time.Millisecond)
	if s.State() != StateStopped {
		t.Errorf("State() = %v, Configure after Shutdown must be ignored", s.State())
	}
}

func TestShutdown_ReleasesPendingCallers(t *testing.T) {
	src := newFakeSource(nil).blocking()
	s := New(src, &fakeSink{})

	s.Configure(time.Hour)
	s.onTick(currentGen(s))
	<-src.entered

	joined := make(chan error, 1)
	go func() { joined <- s.PollNow(context.Background()) }()
	waitFor(t, "caller to join", func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.pending != nil
	})

	go func() {
		for s.State() != StateStopped {
			time.Sleep(time.Millisecond)
		}
		close(src.release)
	}()
	s.Shutdown()

	if err := <-joined; !errors.Is(err, ErrStopped) {
		t.Errorf("pending PollNow() error = %v, want ErrStopped", err)
	}
	if got := src.count(); got != 1 {
		t.Errorf("device queries = %d, want 1 (no follow-up after shutdown)", got)
	}
}
