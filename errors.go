package libemit

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrEmitterClosed       = errors.New("emitter has been closed")
	ErrListenerIDExhausted = errors.New("listener id space exhausted")
	ErrSourceClosed        = errors.New("source has been closed")
	ErrCannotConnect       = errors.New("connection cannot be established")
	ErrDriverClosed        = errors.New("loop driver has been closed")
)

// ListenerError is returned when a callback fails. It carries the
// registration the failure belongs to.
type ListenerError struct {
	err      error
	Event    EventID
	Listener ListenerID
	Mode     DispatchMode
}

func (e ListenerError) Error() string {
	return fmt.Sprintf("%s on %s (%s) failed: %s", e.Listener, e.Event, e.Mode, e.err)
}

func (e ListenerError) Unwrap() error { return e.err }

func wrapListenerError(err error, base *listenerBase, event EventID) error {
	if err == nil {
		return nil
	}
	return &ListenerError{
		err:      err,
		Event:    event,
		Listener: base.id,
		Mode:     base.mode,
	}
}

// PanicError holds a value recovered from a panicking Async callback.
type PanicError struct {
	Value any
	Stack []byte
}

func (e PanicError) Error() string {
	return fmt.Sprintf("callback panicked: %v", e.Value)
}
