package libemit

import (
	"runtime"
	"strconv"
)

type (
	// EventID names an event channel. Many listeners may share one.
	EventID uint32

	// ListenerID names a single registration on one Emitter.
	ListenerID uint64

	// OwnerID identifies the goroutine that owns ThreadLocal listeners and
	// pumps their deferred invocations.
	OwnerID uint64
)

const (
	// NoListener is never issued by an Emitter.
	NoListener ListenerID = 0
	// NoOwner is never the id of a running goroutine.
	NoOwner OwnerID = 0
)

func (id EventID) String() string {
	return "event#" + strconv.FormatUint(uint64(id), 10)
}

func (id ListenerID) String() string {
	return "listener#" + strconv.FormatUint(uint64(id), 10)
}

func (id OwnerID) String() string {
	return "goroutine#" + strconv.FormatUint(uint64(id), 10)
}

// CurrentOwner returns the id of the calling goroutine.
func CurrentOwner() OwnerID {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	// "goroutine NNN [running]:..."
	var id uint64
	for i := len("goroutine "); i < n; i++ {
		if buf[i] < '0' || buf[i] > '9' {
			break
		}
		id = id*10 + uint64(buf[i]-'0')
	}
	return OwnerID(id)
}
