package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"prisignal/internal/config"
	"prisignal/pkg/middleware"
	"prisignal/pkg/ratelimit"
	"prisignal/pkg/ringcache"
	"prisignal/pkg/signal"
)

var (
	// ErrUnknownSignal is returned for names the hub does not host.
	ErrUnknownSignal = errors.New("unknown signal")
	// ErrRateLimited is returned when a signal's dispatch budget is spent.
	ErrRateLimited = errors.New("rate limited")
)

// Message is the value carried by hub signals.
type Message struct {
	ID      string          `json:"id"`
	Payload json.RawMessage `json:"payload"`
	At      time.Time       `json:"at"`
}

// SignalStats describes one hosted signal.
type SignalStats struct {
	Name       string                `json:"name"`
	Listeners  int                   `json:"listeners"`
	Dispatches uint64                `json:"dispatches"`
	Depth      int                   `json:"depth"`
	Journal    int                   `json:"journal"`
	Registered []signal.ListenerInfo `json:"registered,omitempty"`
}

type entry struct {
	sig     *signal.Signal[Message]
	journal *ringcache.RingCache[Message]
	limiter *ratelimit.RateLimit
}

// Hub hosts a fixed set of named signals. Every signal carries two built-in
// listeners: a journal recorder that runs first and a logger that runs last.
type Hub struct {
	entries map[string]*entry
	names   []string
	metrics *metrics
	logger  zerolog.Logger
	now     func() time.Time
}

// NewHub builds the signals listed in cfg.
func NewHub(cfg *config.Config, logger zerolog.Logger) (*Hub, error) {
	h := &Hub{
		entries: make(map[string]*entry, len(cfg.Signals)),
		metrics: newMetrics(),
		logger:  logger,
		now:     time.Now,
	}
	for _, name := range cfg.Signals {
		e, err := h.newEntry(name, cfg)
		if err != nil {
			return nil, fmt.Errorf("signal %s: %w", name, err)
		}
		h.entries[name] = e
		h.names = append(h.names, name)
		h.metrics.watch(name, e)
	}
	sort.Strings(h.names)
	return h, nil
}

func (h *Hub) newEntry(name string, cfg *config.Config) (*entry, error) {
	sigLogger := h.logger.With().Str("component", "signal").Logger()
	sig, err := signal.New[Message](
		signal.WithName(name),
		signal.WithLogger(sigLogger),
		signal.WithDispatchLimit(cfg.DispatchLimit),
		signal.WithLimitMode(cfg.Mode()),
		signal.WithMiddleware(
			middleware.Plugin[signal.Invocation, signal.Propagation]{
				Name:   "recovery",
				Action: middleware.Recovery[signal.Invocation, signal.Propagation](),
			},
			middleware.Plugin[signal.Invocation, signal.Propagation]{
				Name:   "logging",
				Action: middleware.Logging[signal.Invocation, signal.Propagation](sigLogger, name),
			},
		),
	)
	if err != nil {
		return nil, err
	}

	e := &entry{
		sig:     sig,
		journal: ringcache.NewRingCache[Message](cfg.JournalSize),
	}
	if cfg.RateLimit > 0 {
		e.limiter = ratelimit.NewRateLimit(cfg.RateLimit, int64(cfg.RateBurst))
	}

	if err := sig.Add(signal.FromFunc(func(m Message) {
		e.journal.Put(m)
	}), signal.WithPriority(math.MaxInt)); err != nil {
		return nil, err
	}
	if err := sig.Add(signal.FromFunc(func(m Message) {
		h.logger.Info().Str("signal", name).Str("message", m.ID).Int("bytes", len(m.Payload)).Msg("message dispatched")
	}), signal.WithPriority(math.MinInt)); err != nil {
		return nil, err
	}
	return e, nil
}

// Names returns the hosted signal names, sorted.
func (h *Hub) Names() []string {
	return append([]string(nil), h.names...)
}

// Signal returns the named signal so in-process code can listen to it.
func (h *Hub) Signal(name string) (*signal.Signal[Message], error) {
	e, ok := h.entries[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSignal, name)
	}
	return e.sig, nil
}

// Dispatch wraps payload in a Message and dispatches it on the named signal.
func (h *Hub) Dispatch(ctx context.Context, name string, payload json.RawMessage) (Message, error) {
	e, ok := h.entries[name]
	if !ok {
		return Message{}, fmt.Errorf("%w: %s", ErrUnknownSignal, name)
	}
	if e.limiter != nil && !e.limiter.GetToken() {
		h.metrics.observe(name, resultRateLimited)
		return Message{}, fmt.Errorf("%w: %s", ErrRateLimited, name)
	}
	m := Message{
		ID:      uuid.NewString(),
		Payload: payload,
		At:      h.now().UTC(),
	}
	if err := e.sig.Dispatch(ctx, m); err != nil {
		h.metrics.observe(name, resultError)
		return m, err
	}
	h.metrics.observe(name, resultOK)
	return m, nil
}

// Journal returns the most recent messages of the named signal, oldest first.
func (h *Hub) Journal(name string) ([]Message, error) {
	e, ok := h.entries[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSignal, name)
	}
	return e.journal.Snapshot(), nil
}

// Stats describes the named signal. withListeners adds the registrations.
func (h *Hub) Stats(name string, withListeners bool) (SignalStats, error) {
	e, ok := h.entries[name]
	if !ok {
		return SignalStats{}, fmt.Errorf("%w: %s", ErrUnknownSignal, name)
	}
	st := SignalStats{
		Name:       name,
		Listeners:  e.sig.Len(),
		Dispatches: e.sig.Dispatches(),
		Depth:      e.sig.Depth(),
		Journal:    e.journal.Len(),
	}
	if withListeners {
		st.Registered = e.sig.Listeners()
	}
	return st, nil
}
