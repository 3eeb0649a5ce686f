// Package signal implements a synchronous, priority ordered listener registry.
//
// A Signal holds listener registrations and calls them, in order, each time
// Dispatch is called:
//
//	s, _ := signal.New[string](signal.WithName("saved"))
//	onSave := signal.FromFunc(func(path string) { fmt.Println("saved", path) })
//	_ = s.Add(onSave, signal.WithPriority(10))
//	_ = s.Dispatch(ctx, "/tmp/a.txt")
//
// Listeners with a higher priority run first; equal priorities run in
// registration order. A listener may return Stop to end the pass, may be
// registered to fire once, and may be bound to a receiver value.
//
// Registrations are copy-on-write: Dispatch walks a snapshot without holding
// a lock, so listeners are free to add, remove or dispatch on the same Signal.
package signal

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"prisignal/pkg/middleware"
)

type record[T any] struct {
	id       string
	cb       *Callback[T]
	recv     any
	priority int
	once     bool

	// live is cleared exactly once, by whoever removes the record.
	live atomic.Bool
}

// ListenerInfo is a read-only view of a registration.
type ListenerInfo struct {
	ID       string `json:"id"`
	Priority int    `json:"priority"`
	Once     bool   `json:"once"`
}

// Signal is an in-process event channel carrying values of type T.
type Signal[T any] struct {
	name   string
	limit  int
	mode   LimitMode
	logger zerolog.Logger
	invoke middleware.Handler[Invocation, Propagation]

	// mu serializes writers; listenersPtr is the sorted snapshot read by Dispatch.
	mu           sync.Mutex
	listenersPtr atomic.Pointer[[]*record[T]]

	dispatches atomic.Uint64
	depth      atomic.Int64
}

// New creates an empty Signal.
func New[T any](opts ...Option) (*Signal[T], error) {
	c := &config{
		name:   defaultName,
		limit:  DefaultDispatchLimit,
		mode:   LimitDepth,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	chain := middleware.NewManager[Invocation, Propagation]()
	if err := chain.Register(c.plugins...); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}

	s := &Signal[T]{
		name:   c.name,
		limit:  c.limit,
		mode:   c.mode,
		logger: c.logger.With().Str("signal", c.name).Logger(),
		invoke: chain.Build(invokeListener),
	}
	empty := make([]*record[T], 0)
	s.listenersPtr.Store(&empty)
	return s, nil
}

// MustNew is like New but panics on error.
func MustNew[T any](opts ...Option) *Signal[T] {
	s, err := New[T](opts...)
	if err != nil {
		panic(err)
	}
	return s
}

// Name returns the signal name.
func (s *Signal[T]) Name() string { return s.name }

// Add registers cb. Without WithReceiver the listener is bound to s.
func (s *Signal[T]) Add(cb *Callback[T], opts ...ListenOption) error {
	return s.add(cb, false, opts)
}

// Once registers cb like Add, but the listener is removed right before its
// first invocation.
func (s *Signal[T]) Once(cb *Callback[T], opts ...ListenOption) error {
	return s.add(cb, true, opts)
}

func (s *Signal[T]) add(cb *Callback[T], once bool, opts []ListenOption) error {
	if !cb.valid() {
		return fmt.Errorf("%w: callback is not invocable", ErrInvalidArgument)
	}
	var c listenConfig
	for _, opt := range opts {
		if err := opt(&c); err != nil {
			return err
		}
	}
	recv := any(s)
	if c.receiverSet {
		recv = c.receiver
	}

	r := &record[T]{
		id:       uuid.NewString(),
		cb:       cb,
		recv:     recv,
		priority: c.priority,
		once:     once || c.once,
	}
	r.live.Store(true)

	s.mu.Lock()
	defer s.mu.Unlock()

	current := *s.listenersPtr.Load()
	if indexOf(current, cb, recv) >= 0 {
		return fmt.Errorf("%w: signal %s", ErrDuplicateListener, s.name)
	}

	// first slot with a strictly lower priority keeps equal priorities in
	// registration order
	pos := sort.Search(len(current), func(i int) bool {
		return current[i].priority < r.priority
	})
	next := make([]*record[T], 0, len(current)+1)
	next = append(next, current[:pos]...)
	next = append(next, r)
	next = append(next, current[pos:]...)
	s.listenersPtr.Store(&next)

	s.logger.Debug().
		Str("listener", r.id).
		Int("priority", r.priority).
		Bool("once", r.once).
		Msg("listener added")
	return nil
}

// Remove unregisters cb bound to the Signal itself.
func (s *Signal[T]) Remove(cb *Callback[T]) error {
	return s.RemoveFor(cb, s)
}

// RemoveFor unregisters the listener registered with cb and recv.
func (s *Signal[T]) RemoveFor(cb *Callback[T], recv any) error {
	if !cb.valid() {
		return fmt.Errorf("%w: callback is not invocable", ErrInvalidArgument)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current := *s.listenersPtr.Load()
	i := indexOf(current, cb, recv)
	if i < 0 || !current[i].live.CompareAndSwap(true, false) {
		return fmt.Errorf("%w: signal %s", ErrListenerNotFound, s.name)
	}
	s.storeWithout(current, i)

	s.logger.Debug().Str("listener", current[i].id).Msg("listener removed")
	return nil
}

// RemoveAll unregisters every listener. Listeners still pending in a running
// dispatch pass are skipped.
func (s *Signal[T]) RemoveAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range *s.listenersPtr.Load() {
		r.live.Store(false)
	}
	empty := make([]*record[T], 0)
	s.listenersPtr.Store(&empty)

	s.logger.Debug().Msg("all listeners removed")
}

// Dispatch calls every registered listener, highest priority first, with
// args. A listener returning Stop ends the pass.
//
// Listeners removed by an earlier listener of the same pass are skipped.
// Listeners added during a pass are first called by the next Dispatch.
//
// Dispatch fails with ErrDispatchLimitExceeded when the loop guard trips. In
// LimitDepth mode that happens when more than the configured limit of
// Dispatch calls are in progress, which in practice means a listener keeps
// dispatching its own signal. In LimitLifetime mode it happens once the
// signal has been dispatched more than limit times in total.
func (s *Signal[T]) Dispatch(ctx context.Context, args T) error {
	n := s.dispatches.Add(1)
	if s.mode == LimitLifetime && n > uint64(s.limit) {
		return s.limitExceeded(int64(n))
	}
	d := s.depth.Add(1)
	defer s.depth.Add(-1)
	if s.mode == LimitDepth && d > int64(s.limit) {
		return s.limitExceeded(d)
	}

	for _, r := range *s.listenersPtr.Load() {
		if !r.live.Load() {
			continue
		}
		if r.once {
			if !r.live.CompareAndSwap(true, false) {
				continue
			}
			s.detach(r)
		}

		prop, err := s.invoke(ctx, Invocation{
			Signal:   s.name,
			Listener: r.id,
			Priority: r.priority,
			Once:     r.once,
			Receiver: r.recv,
			Args:     args,
			call:     r.call,
		})
		if err != nil {
			return fmt.Errorf("signal %s: listener %s: %w", s.name, r.id, err)
		}
		if prop == Stop {
			break
		}
	}
	return nil
}

func (s *Signal[T]) limitExceeded(count int64) error {
	s.logger.Warn().
		Stringer("mode", s.mode).
		Int64("count", count).
		Int("limit", s.limit).
		Msg("dispatch limit exceeded, probable dispatch loop")
	return fmt.Errorf("%w: signal %s, %s count %d over limit %d",
		ErrDispatchLimitExceeded, s.name, s.mode, count, s.limit)
}

// Len returns the number of registered listeners.
func (s *Signal[T]) Len() int {
	return len(*s.listenersPtr.Load())
}

// Has reports whether cb is registered, whatever its receiver.
func (s *Signal[T]) Has(cb *Callback[T]) bool {
	if !cb.valid() {
		return false
	}
	for _, r := range *s.listenersPtr.Load() {
		if r.cb == cb && r.live.Load() {
			return true
		}
	}
	return false
}

// HasFor reports whether cb is registered with recv.
func (s *Signal[T]) HasFor(cb *Callback[T], recv any) bool {
	if !cb.valid() {
		return false
	}
	return indexOf(*s.listenersPtr.Load(), cb, recv) >= 0
}

// Listeners returns the registrations in dispatch order.
func (s *Signal[T]) Listeners() []ListenerInfo {
	current := *s.listenersPtr.Load()
	infos := make([]ListenerInfo, 0, len(current))
	for _, r := range current {
		infos = append(infos, ListenerInfo{ID: r.id, Priority: r.priority, Once: r.once})
	}
	return infos
}

// Dispatches returns how many times Dispatch has been called, rejected calls
// included. The counter never decreases.
func (s *Signal[T]) Dispatches() uint64 {
	return s.dispatches.Load()
}

// Depth returns the number of Dispatch calls currently in progress.
func (s *Signal[T]) Depth() int {
	return int(s.depth.Load())
}

// detach drops r from the listener list after its liveness flag was cleared.
func (s *Signal[T]) detach(r *record[T]) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := *s.listenersPtr.Load()
	for i, v := range current {
		if v == r {
			s.storeWithout(current, i)
			return
		}
	}
}

// storeWithout publishes a copy of current minus index i. Callers hold s.mu.
func (s *Signal[T]) storeWithout(current []*record[T], i int) {
	next := make([]*record[T], 0, len(current)-1)
	next = append(next, current[:i]...)
	next = append(next, current[i+1:]...)
	s.listenersPtr.Store(&next)
}

func (r *record[T]) call(ctx context.Context, recv any, args any) (Propagation, error) {
	v, ok := args.(T)
	if !ok && args != nil {
		return Continue, fmt.Errorf("%w: args of type %T", ErrInvalidArgument, args)
	}
	return r.cb.fn(ctx, recv, v), nil
}

// indexOf returns the position of the live record registered with cb and
// recv, or -1.
func indexOf[T any](list []*record[T], cb *Callback[T], recv any) int {
	for i, r := range list {
		if r.cb == cb && r.recv == recv && r.live.Load() {
			return i
		}
	}
	return -1
}
