package libemit

import "fmt"

// DispatchMode selects how a listener is invoked when its event is emitted.
type DispatchMode byte

const (
	// Immediate runs the callback on the emitting goroutine, in registration order.
	Immediate DispatchMode = 0
	// ThreadLocal queues the callback for the owning goroutine, which runs it
	// the next time it pumps.
	ThreadLocal DispatchMode = 1
	// Async runs the callback on its own goroutine. Emit does not wait for it.
	Async DispatchMode = 2
)

func (m DispatchMode) String() string {
	switch m {
	case Immediate:
		return "immediate"
	case ThreadLocal:
		return "thread_local"
	case Async:
		return "async"
	default:
		return fmt.Sprintf("DispatchMode(%d)", byte(m))
	}
}

func (m DispatchMode) IsDeferred() bool {
	return m == ThreadLocal || m == Async
}
