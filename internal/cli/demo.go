package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"prisignal/pkg/signal"
)

func newDemoCmd() *cobra.Command {
	var loopLimit int
	cmd := &cobra.Command{
		Use:   "demo [payload...]",
		Short: "Dispatch payloads through a scripted set of listeners",
		Long: `Registers audit (priority 10), welcome (once, priority 5), validator
(priority 1, stops payloads starting with "reject") and store (priority 0),
dispatches every payload and prints who ran. Then trips the loop guard of a
self-dispatching signal.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				args = []string{"order-1", "reject-2", "order-3"}
			}
			return runDemo(cmd.Context(), cmd.OutOrStdout(), args, loopLimit)
		},
	}
	cmd.Flags().IntVar(&loopLimit, "loop-limit", 8, "Dispatch limit of the loop guard demo")
	return cmd
}

func runDemo(ctx context.Context, w io.Writer, payloads []string, loopLimit int) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s, err := signal.New[string](signal.WithName("demo"))
	if err != nil {
		return err
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Pass", "Payload", "Listener", "Priority", "Result"})

	pass := 0
	listener := func(name string, priority int, decide func(string) signal.Propagation) *signal.Callback[string] {
		return signal.NewCallback(func(_ context.Context, _ any, payload string) signal.Propagation {
			res := decide(payload)
			t.AppendRow(table.Row{pass, payload, name, priority, res})
			return res
		})
	}
	always := func(string) signal.Propagation { return signal.Continue }

	if err := s.Add(listener("audit", 10, always), signal.WithPriority(10)); err != nil {
		return err
	}
	if err := s.Once(listener("welcome", 5, always), signal.WithPriority(5)); err != nil {
		return err
	}
	if err := s.Add(listener("validator", 1, func(p string) signal.Propagation {
		if strings.HasPrefix(p, "reject") {
			return signal.Stop
		}
		return signal.Continue
	}), signal.WithPriority(1)); err != nil {
		return err
	}
	if err := s.Add(listener("store", 0, always)); err != nil {
		return err
	}

	for _, p := range payloads {
		pass++
		if err := s.Dispatch(ctx, p); err != nil {
			return err
		}
	}
	t.Render()
	fmt.Fprintf(w, "listeners=%d dispatches=%d\n", s.Len(), s.Dispatches())

	depth, err := tripLoopGuard(ctx, loopLimit)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "loop guard tripped after %d nested dispatches\n", depth)
	return nil
}

// tripLoopGuard dispatches a signal whose only listener dispatches it again,
// and returns how deep it got before the guard refused.
func tripLoopGuard(ctx context.Context, limit int) (int, error) {
	loop, err := signal.New[int](signal.WithName("loop"), signal.WithDispatchLimit(limit))
	if err != nil {
		return 0, err
	}
	deepest := 0
	var guardErr error
	if err := loop.Add(signal.NewCallback(func(ctx context.Context, _ any, n int) signal.Propagation {
		deepest = n
		if err := loop.Dispatch(ctx, n+1); err != nil && guardErr == nil {
			guardErr = err
		}
		return signal.Continue
	})); err != nil {
		return 0, err
	}
	if err := loop.Dispatch(ctx, 1); err != nil {
		return 0, err
	}
	if !errors.Is(guardErr, signal.ErrDispatchLimitExceeded) {
		return 0, fmt.Errorf("loop guard did not trip: %v", guardErr)
	}
	return deepest, nil
}
