package middleware

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"
)

// Handler is one step of an invocation chain.
// I: Input type, O: Output type.
type Handler[I, O any] func(ctx context.Context, req I) (O, error)

// Middleware decorates a Handler.
type Middleware[I, O any] func(next Handler[I, O]) Handler[I, O]

// Plugin is a named middleware.
type Plugin[I, O any] struct {
	Name        string
	Description string
	Action      Middleware[I, O]
}

// Manager keeps an ordered list of plugins and compiles them into a chain.
type Manager[I, O any] struct {
	plugins []Plugin[I, O]
}

// NewManager creates an empty manager for the given input and output types.
func NewManager[I, O any]() *Manager[I, O] {
	return &Manager[I, O]{
		plugins: make([]Plugin[I, O], 0),
	}
}

// Register appends plugins to the chain. Plugins without an Action are rejected.
func (m *Manager[I, O]) Register(plugins ...Plugin[I, O]) error {
	for _, p := range plugins {
		if p.Action == nil {
			return fmt.Errorf("plugin %q has no action", p.Name)
		}
	}
	m.plugins = append(m.plugins, plugins...)
	return nil
}

// Len returns the number of registered plugins.
func (m *Manager[I, O]) Len() int { return len(m.plugins) }

// Names returns plugin names in registration order.
func (m *Manager[I, O]) Names() []string {
	names := make([]string, 0, len(m.plugins))
	for _, p := range m.plugins {
		names = append(names, p.Name)
	}
	return names
}

// Build wraps finalHandler so that the first registered plugin runs outermost.
func (m *Manager[I, O]) Build(finalHandler Handler[I, O]) Handler[I, O] {
	chain := finalHandler

	// chain = P2(H)
	// chain = P1(P2(H))
	for i := len(m.plugins) - 1; i >= 0; i-- {
		chain = m.plugins[i].Action(chain)
	}

	return chain
}

// Run builds the chain and executes it once.
func (m *Manager[I, O]) Run(ctx context.Context, req I, finalHandler Handler[I, O]) (O, error) {
	return m.Build(finalHandler)(ctx, req)
}

// PanicError is returned by Recovery when the wrapped handler panics.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic recovered: %v", e.Value)
}

// Recovery converts panics raised further down the chain into a *PanicError.
func Recovery[I, O any]() Middleware[I, O] {
	return func(next Handler[I, O]) Handler[I, O] {
		return func(ctx context.Context, req I) (res O, err error) {
			defer func() {
				if r := recover(); r != nil {
					var zero O
					res = zero
					err = &PanicError{Value: r, Stack: debug.Stack()}
				}
			}()
			return next(ctx, req)
		}
	}
}

// Logging records every call at debug level, and failures at error level.
func Logging[I, O any](logger zerolog.Logger, step string) Middleware[I, O] {
	return func(next Handler[I, O]) Handler[I, O] {
		return func(ctx context.Context, req I) (O, error) {
			start := time.Now()
			res, err := next(ctx, req)
			if err != nil {
				logger.Error().Err(err).Str("step", step).Dur("elapsed", time.Since(start)).Msg("call failed")
				return res, err
			}
			logger.Debug().Str("step", step).Dur("elapsed", time.Since(start)).Interface("result", res).Msg("call done")
			return res, nil
		}
	}
}
