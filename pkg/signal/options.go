package signal

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/rs/zerolog"

	"prisignal/pkg/middleware"
)

// LimitMode selects how the dispatch loop guard counts.
type LimitMode int

const (
	// LimitDepth caps the number of Dispatch calls in progress at once on a
	// Signal, e.g. a listener dispatching its own signal recursively.
	LimitDepth LimitMode = iota
	// LimitLifetime caps the total number of Dispatch calls over the Signal's
	// lifetime. Once reached, every further Dispatch fails.
	LimitLifetime
)

func (m LimitMode) String() string {
	switch m {
	case LimitDepth:
		return "depth"
	case LimitLifetime:
		return "lifetime"
	default:
		return fmt.Sprintf("limitmode(%d)", int(m))
	}
}

// ParseLimitMode parses "depth" or "lifetime".
func ParseLimitMode(s string) (LimitMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "depth":
		return LimitDepth, nil
	case "lifetime":
		return LimitLifetime, nil
	default:
		return 0, fmt.Errorf("%w: unknown limit mode %q", ErrInvalidArgument, s)
	}
}

// DefaultDispatchLimit is the loop guard ceiling used unless WithDispatchLimit
// says otherwise.
const DefaultDispatchLimit = 512

const defaultName = "signal"

// config holds everything New needs. It is kept apart from Signal so options
// can only be applied at construction.
type config struct {
	name    string
	limit   int
	mode    LimitMode
	logger  zerolog.Logger
	plugins []middleware.Plugin[Invocation, Propagation]
}

// Option configures a Signal.
type Option func(*config) error

// WithName sets the name used in logs and errors.
func WithName(name string) Option {
	return func(c *config) error {
		if name == "" {
			return fmt.Errorf("%w: name cannot be empty", ErrInvalidArgument)
		}
		c.name = name
		return nil
	}
}

// WithDispatchLimit sets the loop guard ceiling.
func WithDispatchLimit(n int) Option {
	return func(c *config) error {
		if n < 1 {
			return fmt.Errorf("%w: dispatch limit must be positive, got %d", ErrInvalidArgument, n)
		}
		c.limit = n
		return nil
	}
}

// WithLimitMode selects what the dispatch limit counts.
func WithLimitMode(m LimitMode) Option {
	return func(c *config) error {
		if m != LimitDepth && m != LimitLifetime {
			return fmt.Errorf("%w: unknown limit mode %d", ErrInvalidArgument, int(m))
		}
		c.mode = m
		return nil
	}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l zerolog.Logger) Option {
	return func(c *config) error {
		c.logger = l
		return nil
	}
}

// WithMiddleware wraps every listener invocation. The first plugin runs outermost.
func WithMiddleware(plugins ...middleware.Plugin[Invocation, Propagation]) Option {
	return func(c *config) error {
		for _, p := range plugins {
			if p.Action == nil {
				return fmt.Errorf("%w: middleware %q has no action", ErrInvalidArgument, p.Name)
			}
		}
		c.plugins = append(c.plugins, plugins...)
		return nil
	}
}

type listenConfig struct {
	priority    int
	once        bool
	receiver    any
	receiverSet bool
}

// ListenOption configures a single registration.
type ListenOption func(*listenConfig) error

// WithPriority sets the listener priority. Higher runs earlier; default 0.
func WithPriority(p int) ListenOption {
	return func(c *listenConfig) error {
		c.priority = p
		return nil
	}
}

// WithOnce removes the listener right before its first invocation.
func WithOnce() ListenOption {
	return func(c *listenConfig) error {
		c.once = true
		return nil
	}
}

// WithReceiver binds the listener to recv instead of the Signal itself. The
// receiver is part of the listener identity and must be comparable.
func WithReceiver(recv any) ListenOption {
	return func(c *listenConfig) error {
		if recv != nil && !reflect.ValueOf(recv).Comparable() {
			return fmt.Errorf("%w: receiver of type %T is not comparable", ErrInvalidArgument, recv)
		}
		c.receiver = recv
		c.receiverSet = true
		return nil
	}
}
