package libemit

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

const DefaultPumpInterval = 10 * time.Millisecond

type (
	// LoopDriver turns the goroutine calling Run into a loop that pumps its
	// ThreadLocal mailbox at a fixed interval.
	LoopDriver struct {
		loops    *LoopRegistry
		clock    clock.Clock
		interval time.Duration
		logger   Logger
		onError  func(error)

		owner   OwnerID
		started chan struct{}

		runOnce   sync.Once
		closeOnce sync.Once
		closeC    chan struct{}
		done      chan struct{}
	}

	LoopDriverOption func(*LoopDriver)
)

func WithInterval(d time.Duration) LoopDriverOption {
	return func(l *LoopDriver) {
		if d > 0 {
			l.interval = d
		}
	}
}

// WithClock replaces the wall clock, mostly for tests.
func WithClock(c clock.Clock) LoopDriverOption {
	return func(l *LoopDriver) {
		if c != nil {
			l.clock = c
		}
	}
}

func WithDriverLogger(logger Logger) LoopDriverOption {
	return func(l *LoopDriver) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithErrorHook is called on the loop goroutine with every error a pump returns.
func WithErrorHook(fn func(error)) LoopDriverOption {
	return func(l *LoopDriver) {
		l.onError = fn
	}
}

// NewLoopDriver creates a driver pumping mailboxes of loops. The emitters
// whose ThreadLocal listeners it serves must post to the same registry.
func NewLoopDriver(loops *LoopRegistry, opts ...LoopDriverOption) *LoopDriver {
	if loops == nil {
		loops = DefaultLoopRegistry()
	}
	l := &LoopDriver{
		loops:    loops,
		clock:    clock.New(),
		interval: DefaultPumpInterval,
		logger:   NopLogger(),
		started:  make(chan struct{}),
		closeC:   make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.WithField("type", "loop_driver")
	return l
}

// Run pumps on the calling goroutine until ctx is done or Close is called.
// It only executes once, subsequent calls return ErrDriverClosed.
func (l *LoopDriver) Run(ctx context.Context) (err error) {
	err = ErrDriverClosed
	l.runOnce.Do(func() {
		err = l.run(ctx)
	})
	return
}

func (l *LoopDriver) run(ctx context.Context) error {
	defer close(l.done)

	l.owner = CurrentOwner()
	close(l.started)
	l.logger.Debugf("running as %s every %s", l.owner, l.interval)

	ticker := l.clock.Ticker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.pump()
			return ctx.Err()
		case <-l.closeC:
			l.pump()
			return nil
		case <-ticker.C:
			l.pump()
		}
	}
}

func (l *LoopDriver) pump() {
	// Keep pumping after a failure so the re-queued remainder still runs.
	for l.loops.Pending(l.owner) > 0 {
		err := l.loops.Pump(l.owner)
		if err == nil {
			return
		}
		l.logger.Errorf("pump failed: %s", err)
		if l.onError != nil {
			l.onError(err)
		}
	}
}

// Owner blocks until Run has started and returns the loop goroutine's id,
// or NoOwner when ctx ends first.
func (l *LoopDriver) Owner(ctx context.Context) OwnerID {
	select {
	case <-l.started:
		return l.owner
	case <-ctx.Done():
		return NoOwner
	}
}

// Do queues fn to run on the loop goroutine, for instance to register
// ThreadLocal listeners owned by the loop.
func (l *LoopDriver) Do(ctx context.Context, fn func() error) error {
	owner := l.Owner(ctx)
	if owner == NoOwner {
		return ctx.Err()
	}
	select {
	case <-l.done:
		return ErrDriverClosed
	default:
	}
	l.loops.Post(owner, fn)
	return nil
}

// Close stops the loop after a last pump. It only executes once.
func (l *LoopDriver) Close() {
	l.closeOnce.Do(func() {
		close(l.closeC)
	})
}

// Done is closed when Run returns.
func (l *LoopDriver) Done() <-chan struct{} {
	return l.done
}
