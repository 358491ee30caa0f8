package libemit

import (
	"sync"
)

// Invocation is a callback with its arguments already bound.
type Invocation func() error

type (
	// LoopRegistry holds one FIFO mailbox per owning goroutine. Emitters post
	// ThreadLocal invocations to it; the owner drains its own mailbox.
	//
	// The registry lock only guards the owner map. Each mailbox has its own
	// lock, so posting to one goroutine never contends with another, and no
	// emitter lock is ever involved.
	LoopRegistry struct {
		mu        sync.RWMutex
		mailboxes map[OwnerID]*mailbox
	}

	mailbox struct {
		mu    sync.Mutex
		queue []Invocation
	}
)

var (
	defaultLoopRegistry     *LoopRegistry
	defaultLoopRegistryOnce sync.Once
)

// DefaultLoopRegistry returns the process-wide registry used by every
// Emitter created without WithLoopRegistry.
func DefaultLoopRegistry() *LoopRegistry {
	defaultLoopRegistryOnce.Do(func() {
		defaultLoopRegistry = NewLoopRegistry()
	})
	return defaultLoopRegistry
}

func NewLoopRegistry() *LoopRegistry {
	return &LoopRegistry{
		mailboxes: make(map[OwnerID]*mailbox),
	}
}

func (r *LoopRegistry) box(owner OwnerID, create bool) *mailbox {
	r.mu.RLock()
	mb, ok := r.mailboxes[owner]
	r.mu.RUnlock()
	if ok || !create {
		return mb
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if mb, ok = r.mailboxes[owner]; !ok {
		mb = &mailbox{}
		r.mailboxes[owner] = mb
	}
	return mb
}

// Post enqueues inv for owner. Safe to call from any goroutine.
func (r *LoopRegistry) Post(owner OwnerID, inv Invocation) {
	mb := r.box(owner, true)

	mb.mu.Lock()
	mb.queue = append(mb.queue, inv)
	mb.mu.Unlock()
}

// Drain removes and returns everything queued for owner, oldest first.
func (r *LoopRegistry) Drain(owner OwnerID) []Invocation {
	mb := r.box(owner, false)
	if mb == nil {
		return nil
	}

	mb.mu.Lock()
	queue := mb.queue
	mb.queue = nil
	mb.mu.Unlock()

	return queue
}

// Pump drains owner's mailbox and runs every invocation in order on the
// calling goroutine. Items posted while pumping wait for the next call.
//
// On the first failing invocation Pump stops, puts the invocations that did
// not run back at the head of the mailbox and returns the error.
func (r *LoopRegistry) Pump(owner OwnerID) error {
	queue := r.Drain(owner)

	for i, inv := range queue {
		err := r.run(owner, inv, queue[i+1:])
		if err != nil {
			return err
		}
	}

	return nil
}

func (r *LoopRegistry) run(owner OwnerID, inv Invocation, rest []Invocation) (err error) {
	requeue := true
	defer func() {
		if requeue {
			r.requeue(owner, rest)
		}
	}()

	err = inv()
	requeue = err != nil
	return err
}

func (r *LoopRegistry) requeue(owner OwnerID, rest []Invocation) {
	if len(rest) == 0 {
		return
	}

	mb := r.box(owner, true)

	mb.mu.Lock()
	queue := make([]Invocation, 0, len(rest)+len(mb.queue))
	queue = append(queue, rest...)
	mb.queue = append(queue, mb.queue...)
	mb.mu.Unlock()
}

// Pending reports how many invocations wait for owner.
func (r *LoopRegistry) Pending(owner OwnerID) int {
	mb := r.box(owner, false)
	if mb == nil {
		return 0
	}

	mb.mu.Lock()
	defer mb.mu.Unlock()
	return len(mb.queue)
}

// Release forgets owner's mailbox together with anything still queued in it.
// Owners that stop pumping for good should be released.
func (r *LoopRegistry) Release(owner OwnerID) int {
	r.mu.Lock()
	mb, ok := r.mailboxes[owner]
	delete(r.mailboxes, owner)
	r.mu.Unlock()

	if !ok {
		return 0
	}

	mb.mu.Lock()
	defer mb.mu.Unlock()
	dropped := len(mb.queue)
	mb.queue = nil
	return dropped
}
