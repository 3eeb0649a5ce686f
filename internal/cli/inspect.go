package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"prisignal/internal/app"
)

func newInspectCmd() *cobra.Command {
	var server string
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Show the signals of a running server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInspect(cmd.Context(), cmd.OutOrStdout(), server)
		},
	}
	cmd.Flags().StringVar(&server, "server", "http://localhost:8080", "Base URL of a prisignal server")
	return cmd
}

func runInspect(ctx context.Context, w io.Writer, server string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(server, "/")+"/signals", nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach %s: %w", server, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<10))
		return fmt.Errorf("unexpected status %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	var stats []app.SignalStats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Signal", "Listeners", "Dispatches", "Depth", "Journal"})
	for _, st := range stats {
		t.AppendRow(table.Row{st.Name, st.Listeners, st.Dispatches, st.Depth, st.Journal})
	}
	t.Render()
	return nil
}
