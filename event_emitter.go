package libemit

import (
	"context"
	"math"
	"runtime/debug"
	"slices"
	"sync"
)

type (
	// Emitter maps event ids to listeners and dispatches emitted events to them.
	//
	// The registry is guarded by a single mutex that is held only for
	// bookkeeping (id allocation, insert, remove, snapshot). Callbacks always
	// run without it, so they may call On, Off and Emit on the same Emitter.
	Emitter struct {
		mu      sync.Mutex
		lastID  ListenerID
		buckets map[EventID][]record
		index   map[ListenerID]EventID
		closed  bool

		loops    *LoopRegistry
		logger   Logger
		metrics  *Metrics
		inflight inflight
	}

	EmitterOption func(*Emitter)
)

// WithLoopRegistry makes the emitter post ThreadLocal invocations to r
// instead of the process-wide registry.
func WithLoopRegistry(r *LoopRegistry) EmitterOption {
	return func(e *Emitter) {
		if r != nil {
			e.loops = r
		}
	}
}

func WithLogger(l Logger) EmitterOption {
	return func(e *Emitter) {
		if l != nil {
			e.logger = l
		}
	}
}

func WithMetrics(m *Metrics) EmitterOption {
	return func(e *Emitter) {
		e.metrics = m
	}
}

// NewEmitter creates an Emitter and returns a pointer to it.
func NewEmitter(opts ...EmitterOption) *Emitter {
	e := &Emitter{
		buckets: make(map[EventID][]record),
		index:   make(map[ListenerID]EventID),
		loops:   DefaultLoopRegistry(),
		logger:  NopLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.WithField("type", "emitter")
	return e
}

// On registers a zero-argument callback for event.
func (e *Emitter) On(event EventID, callback func() error, opts ...ListenerOption) ListenerID {
	return register(e, event, callback, false, opts)
}

// Once registers a zero-argument callback for event that is removed after
// its first dispatch.
func (e *Emitter) Once(event EventID, callback func() error, opts ...ListenerOption) ListenerID {
	return register(e, event, callback, true, opts)
}

// Emit dispatches event to its zero-argument listeners.
func (e *Emitter) Emit(event EventID) error {
	return dispatch(e, event, func(cb func() error) error {
		return cb()
	})
}

// Off removes the listener registered as id. Unknown ids are ignored.
// Invocations already handed to a loop or an async goroutine still run.
func (e *Emitter) Off(id ListenerID) {
	if e.remove(id) {
		e.logger.Debugf("%s removed", id)
	}
}

// ProcessEvents runs every ThreadLocal invocation queued for the calling
// goroutine, in the order they were posted. It is meant to be called by
// whatever drives the goroutine's loop, see LoopDriver.
func (e *Emitter) ProcessEvents() error {
	return e.loops.Pump(CurrentOwner())
}

// ListenerCount reports how many listeners are registered for event.
func (e *Emitter) ListenerCount(event EventID) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.buckets[event])
}

// Has reports whether id is still registered.
func (e *Emitter) Has(id ListenerID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.index[id]
	return ok
}

// Close removes all listeners and stops any further dispatch. Async
// callbacks already running and ThreadLocal invocations already queued are
// not cancelled; use Wait to block on the former.
// An Emit racing with Close starts no Async callback after it.
func (e *Emitter) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	n := len(e.index)
	e.buckets = make(map[EventID][]record)
	e.index = make(map[ListenerID]EventID)
	e.mu.Unlock()

	e.metrics.listenersAdded(-n)
	e.logger.Debugf("closed, %d listeners released", n)
}

// Wait blocks until no Async callback started by this emitter is running,
// or ctx is done.
func (e *Emitter) Wait(ctx context.Context) error {
	return e.inflight.wait(ctx)
}

func register[F any](e *Emitter, event EventID, callback F, once bool, opts []ListenerOption) ListenerID {
	l := newListener(callback, once, opts)
	return e.add(event, l)
}

func (e *Emitter) add(event EventID, r record) ListenerID {
	b := r.base()

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return NoListener
	}
	if e.lastID == math.MaxUint64 {
		e.mu.Unlock()
		panic(ErrListenerIDExhausted)
	}
	e.lastID++
	b.id = e.lastID
	e.buckets[event] = append(e.buckets[event], r)
	e.index[b.id] = event
	e.mu.Unlock()

	e.metrics.listenersAdded(1)
	e.logger.Debugf("%s registered on %s (%s, once=%t)", b.id, event, b.mode, b.once)

	return b.id
}

func (e *Emitter) remove(id ListenerID) bool {
	e.mu.Lock()
	event, ok := e.index[id]
	if !ok {
		e.mu.Unlock()
		return false
	}
	delete(e.index, id)

	bucket := e.buckets[event]
	for i, r := range bucket {
		if r.base().id == id {
			bucket = slices.Delete(bucket, i, i+1)
			break
		}
	}
	if len(bucket) == 0 {
		delete(e.buckets, event)
	} else {
		e.buckets[event] = bucket
	}
	e.mu.Unlock()

	e.metrics.listenersAdded(-1)
	return true
}

// snapshot copies the bucket for event so callbacks can run unlocked while
// the registry keeps changing.
func (e *Emitter) snapshot(event EventID) ([]record, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, ErrEmitterClosed
	}

	return slices.Clone(e.buckets[event]), nil
}

// dispatch delivers one Emit to every listener of event whose callback type
// is F. invoke binds the emitted arguments to a callback.
func dispatch[F any](e *Emitter, event EventID, invoke func(F) error) error {
	snapshot, err := e.snapshot(event)
	if err != nil {
		return err
	}

	e.metrics.emitted()

	for _, r := range snapshot {
		l, ok := resolve[F](r)
		if !ok {
			e.metrics.mismatched()
			continue
		}

		if !l.claim() {
			continue
		}

		callback := l.callback
		err := e.deliver(event, &l.listenerBase, func() error {
			return invoke(callback)
		})
		if err != nil {
			return err
		}
	}

	return nil
}

func (e *Emitter) deliver(event EventID, b *listenerBase, run Invocation) error {
	// Deferred one-shots leave the registry at hand-off.
	if b.once && b.mode.IsDeferred() {
		e.remove(b.id)
	}

	switch b.mode {
	case ThreadLocal:
		e.postThreadLocal(event, b, run)
		return nil
	case Async:
		return e.startAsync(event, b, run)
	default:
		return e.runImmediate(event, b, run)
	}
}

func (e *Emitter) runImmediate(event EventID, b *listenerBase, run Invocation) error {
	if b.once {
		// Removed even when the callback fails or panics.
		defer e.remove(b.id)
	}

	err := wrapListenerError(run(), b, event)
	e.metrics.delivered(b.mode, err)
	return err
}

func (e *Emitter) postThreadLocal(event EventID, b *listenerBase, run Invocation) {
	e.loops.Post(b.owner, func() error {
		err := wrapListenerError(run(), b, event)
		e.metrics.delivered(b.mode, err)
		return err
	})

	e.logger.Debugf("%s on %s posted to %s", b.id, event, b.owner)
}

// startAsync fails once the emitter is closed. The closed check and the
// inflight count share e.mu, so Wait after Close sees every started callback.
func (e *Emitter) startAsync(event EventID, b *listenerBase, run Invocation) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrEmitterClosed
	}
	e.inflight.add()
	e.mu.Unlock()

	e.metrics.asyncStarted()

	go func() {
		defer e.inflight.done()
		defer e.metrics.asyncFinished()

		err := e.runRecovered(run)
		err = wrapListenerError(err, b, event)
		e.metrics.delivered(b.mode, err)

		if err != nil {
			e.logger.
				WithField("event", event).
				WithField("listener", b.id).
				Errorf("async callback failed: %s", err)
		}
	}()

	return nil
}

func (e *Emitter) runRecovered(run Invocation) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()

	return run()
}

// inflight counts running Async callbacks. Unlike sync.WaitGroup it allows
// new work to start while someone is waiting.
type inflight struct {
	mu   sync.Mutex
	n    int
	idle chan struct{}
}

func (t *inflight) add() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.n == 0 {
		t.idle = make(chan struct{})
	}
	t.n++
}

func (t *inflight) done() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.n--
	if t.n == 0 {
		close(t.idle)
	}
}

func (t *inflight) wait(ctx context.Context) error {
	t.mu.Lock()
	if t.n == 0 {
		t.mu.Unlock()
		return nil
	}
	idle := t.idle
	t.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
