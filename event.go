package libemit

type (
	// Signal is an event channel without arguments. It shares its callback
	// type with Emitter.On and Emitter.Emit.
	Signal struct {
		ID EventID
	}

	// Event is an event channel carrying one value of type A. Use a struct
	// for A when an event needs more than two values.
	Event[A any] struct {
		ID EventID
	}

	// Event2 is an event channel carrying two values.
	Event2[A, B any] struct {
		ID EventID
	}
)

func NewSignal(id EventID) Signal { return Signal{ID: id} }

func NewEvent[A any](id EventID) Event[A] { return Event[A]{ID: id} }

func NewEvent2[A, B any](id EventID) Event2[A, B] { return Event2[A, B]{ID: id} }

func (s Signal) On(e *Emitter, callback func() error, opts ...ListenerOption) ListenerID {
	return register(e, s.ID, callback, false, opts)
}

func (s Signal) Once(e *Emitter, callback func() error, opts ...ListenerOption) ListenerID {
	return register(e, s.ID, callback, true, opts)
}

func (s Signal) Emit(e *Emitter) error {
	return e.Emit(s.ID)
}

// On registers callback for every emission of ev on e.
func (ev Event[A]) On(e *Emitter, callback func(A) error, opts ...ListenerOption) ListenerID {
	return register(e, ev.ID, callback, false, opts)
}

// Once registers callback for the next emission of ev on e only.
func (ev Event[A]) Once(e *Emitter, callback func(A) error, opts ...ListenerOption) ListenerID {
	return register(e, ev.ID, callback, true, opts)
}

// Emit delivers arg to the listeners of ev. The returned error is the first
// failure of an Immediate listener; later listeners of the same emission are
// not invoked after it.
func (ev Event[A]) Emit(e *Emitter, arg A) error {
	return dispatch(e, ev.ID, func(cb func(A) error) error {
		return cb(arg)
	})
}

func (ev Event2[A, B]) On(e *Emitter, callback func(A, B) error, opts ...ListenerOption) ListenerID {
	return register(e, ev.ID, callback, false, opts)
}

func (ev Event2[A, B]) Once(e *Emitter, callback func(A, B) error, opts ...ListenerOption) ListenerID {
	return register(e, ev.ID, callback, true, opts)
}

func (ev Event2[A, B]) Emit(e *Emitter, a A, b B) error {
	return dispatch(e, ev.ID, func(cb func(A, B) error) error {
		return cb(a, b)
	})
}
