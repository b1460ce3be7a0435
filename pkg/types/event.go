package types

import (
	"sync"
	"sync/atomic"
)

// EventKind tags an Event
type EventKind int

const (
	EventPartial EventKind = iota
	EventDone
	EventFailed
)

func (k EventKind) String() string {
	switch k {
	case EventPartial:
		return "partial"
	case EventDone:
		return "done"
	case EventFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Event is one message of an asynchronous operation: zero or more
// partial results followed by exactly one Done or Failed.
type Event[P, D any] struct {
	Kind    EventKind
	Partial P
	Done    D
	Err     error
}

// Operation is a running asynchronous job. Events must be drained until the
// channel is closed. Cancel is advisory: it is observed before the next unit
// of work is dispatched and never interrupts a probe already in flight.
type Operation[P, D any] struct {
	events    chan Event[P, D]
	cancelled atomic.Bool
	cancelCh  chan struct{}
	once      sync.Once
}

// NewOperation creates an operation whose event channel holds buffer events
func NewOperation[P, D any](buffer int) *Operation[P, D] {
	if buffer < 0 {
		buffer = 0
	}
	return &Operation[P, D]{
		events:   make(chan Event[P, D], buffer),
		cancelCh: make(chan struct{}),
	}
}

// Events returns the event stream, closed after the terminal event
func (o *Operation[P, D]) Events() <-chan Event[P, D] {
	return o.events
}

// Cancel requests the operation to stop. Safe from any goroutine.
func (o *Operation[P, D]) Cancel() {
	if o.cancelled.CompareAndSwap(false, true) {
		close(o.cancelCh)
	}
}

// CancelCh is closed once Cancel has been called
func (o *Operation[P, D]) CancelCh() <-chan struct{} {
	return o.cancelCh
}

// Cancelled reports whether Cancel was called
func (o *Operation[P, D]) Cancelled() bool {
	return o.cancelled.Load()
}

// Emit sends a partial result
func (o *Operation[P, D]) Emit(partial P) {
	o.events <- Event[P, D]{Kind: EventPartial, Partial: partial}
}

// Finish sends the terminal Done event and closes the stream
func (o *Operation[P, D]) Finish(done D) {
	o.once.Do(func() {
		o.events <- Event[P, D]{Kind: EventDone, Done: done}
		close(o.events)
	})
}

// Fail sends the terminal Failed event and closes the stream
func (o *Operation[P, D]) Fail(err error) {
	o.once.Do(func() {
		o.events <- Event[P, D]{Kind: EventFailed, Err: err}
		close(o.events)
	})
}

// Wait drains the stream, calling onPartial for every partial result,
// and returns the terminal value
func (o *Operation[P, D]) Wait(onPartial func(P)) (D, error) {
	var (
		done D
		err  error
	)
	for event := range o.events {
		switch event.Kind {
		case EventPartial:
			if onPartial != nil {
				onPartial(event.Partial)
			}
		case EventDone:
			done = event.Done
		case EventFailed:
			err = event.Err
		}
	}
	return done, err
}
