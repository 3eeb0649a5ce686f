package signal

import (
	"context"
	"fmt"
)

// Propagation is returned by a listener to tell the dispatcher whether the
// remaining listeners of the current pass should run.
type Propagation int

const (
	// Continue lets the dispatch pass go on. It is the zero value.
	Continue Propagation = iota
	// Stop ends the current dispatch pass after this listener.
	Stop
)

func (p Propagation) String() string {
	switch p {
	case Continue:
		return "continue"
	case Stop:
		return "stop"
	default:
		return fmt.Sprintf("propagation(%d)", int(p))
	}
}

// Func is the body of a listener. recv is the receiver the listener was
// registered with, args the value passed to Dispatch.
type Func[T any] func(ctx context.Context, recv any, args T) Propagation

// Callback wraps a Func. Listener identity is the *Callback pointer, so keep
// the pointer around if you intend to remove the listener later.
type Callback[T any] struct {
	fn Func[T]
}

// NewCallback creates a Callback. A nil fn yields a callback that every
// registry operation rejects with ErrInvalidArgument.
func NewCallback[T any](fn Func[T]) *Callback[T] {
	return &Callback[T]{fn: fn}
}

// FromFunc adapts a plain function that never stops propagation.
func FromFunc[T any](fn func(args T)) *Callback[T] {
	if fn == nil {
		return &Callback[T]{}
	}
	return NewCallback(func(_ context.Context, _ any, args T) Propagation {
		fn(args)
		return Continue
	})
}

func (c *Callback[T]) valid() bool {
	return c != nil && c.fn != nil
}

// Invocation describes a single listener call within a dispatch pass. It is
// the request type seen by middleware installed with WithMiddleware.
type Invocation struct {
	Signal   string
	Listener string
	Priority int
	Once     bool
	Receiver any
	Args     any

	call func(ctx context.Context, recv any, args any) (Propagation, error)
}

func invokeListener(ctx context.Context, inv Invocation) (Propagation, error) {
	return inv.call(ctx, inv.Receiver, inv.Args)
}
