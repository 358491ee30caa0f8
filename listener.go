package libemit

import "sync/atomic"

type (
	// record is what the registry stores. Every listener[F] satisfies it, so
	// callbacks of different signatures share one table.
	record interface {
		base() *listenerBase
	}

	listenerBase struct {
		id    ListenerID
		once  bool
		mode  DispatchMode
		owner OwnerID
		fired atomic.Bool
	}

	// listener holds a callback of a single signature F. Emit recovers it
	// with a comma-ok assertion on *listener[F]; a record registered with a
	// different F simply does not match.
	listener[F any] struct {
		listenerBase
		callback F
	}

	// ListenerOption tweaks a single registration.
	ListenerOption func(*listenerBase)
)

func (l *listenerBase) base() *listenerBase { return l }

// claim reports whether this dispatch may fire the listener. One-shot
// listeners can be claimed once, even by concurrent emits that took their
// snapshots before the listener was removed.
func (l *listenerBase) claim() bool {
	if !l.once {
		return true
	}
	return l.fired.CompareAndSwap(false, true)
}

// WithMode sets the dispatch mode of the registration. Immediate is the default.
func WithMode(mode DispatchMode) ListenerOption {
	return func(b *listenerBase) {
		b.mode = mode
	}
}

// WithOwner addresses ThreadLocal invocations to owner instead of the
// registering goroutine.
func WithOwner(owner OwnerID) ListenerOption {
	return func(b *listenerBase) {
		b.owner = owner
	}
}

func newListener[F any](callback F, once bool, opts []ListenerOption) *listener[F] {
	l := &listener[F]{
		listenerBase: listenerBase{
			once: once,
			mode: Immediate,
		},
		callback: callback,
	}
	for _, opt := range opts {
		opt(&l.listenerBase)
	}
	if l.owner == NoOwner {
		l.owner = CurrentOwner()
	}
	return l
}

func resolve[F any](r record) (*listener[F], bool) {
	l, ok := r.(*listener[F])
	return l, ok
}
