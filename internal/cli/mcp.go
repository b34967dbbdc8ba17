package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/valter-silva-au/weektrack/internal/core"
	wtmcp "github.com/valter-silva-au/weektrack/internal/mcp"
	"github.com/valter-silva-au/weektrack/pkg/models"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the tracker over MCP",
	Long:  "Commands for running the wt MCP (Model Context Protocol) server.",
}

var mcpTick time.Duration

var mcpServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the wt MCP server on stdio",
	Long: `Start the wt MCP server on stdio transport.

Assistants can call list_tasks, start_task, pause, resume, status,
upcoming_events, week_report, get_metrics and get_alerts. While serving,
the tracker is scanned every --tick like 'wt watch' does, and due
reminders go to Slack when notifications are enabled. --tick 0 disables
the scan.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireTracker(); err != nil {
			return err
		}

		srv := wtmcp.NewServer(Tracker, MetricsCalc, AlertEngine, appVersion)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		if mcpTick > 0 {
			go scanLoop(ctx, srv, mcpTick, cmd.ErrOrStderr())
		}

		if err := srv.Run(ctx); err != nil {
			return fmt.Errorf("running MCP server: %w", err)
		}
		return nil
	},
}

// scanLoop ticks the server until ctx is done, notifying each reminder once.
// Scan errors are already recorded as diagnostics, so the loop keeps going.
// Failed notifications are reported to errOut and retried on the next tick.
func scanLoop(ctx context.Context, srv *wtmcp.Server, every time.Duration, errOut io.Writer) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	sent := make(map[int]bool)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		due, err := srv.Tick()
		if err != nil || Notifier == nil {
			continue
		}
		var fresh []models.Reminder
		for _, r := range due {
			if !sent[r.EventID] {
				fresh = append(fresh, r)
			}
		}
		if len(fresh) == 0 {
			continue
		}
		if err := Notifier.NotifyReminders(ctx, fresh); err != nil {
			fmt.Fprintf(errOut, "wt: sending reminders: %v\n", err)
			if Diagnostics != nil {
				Diagnostics.Report(models.Diagnostic{
					Time:     time.Now(),
					Severity: models.SeverityError,
					Code:     core.CodeNotifyFailed,
					Message:  fmt.Sprintf("sending %d reminders: %v", len(fresh), err),
				})
			}
			continue
		}
		for _, r := range fresh {
			sent[r.EventID] = true
		}
	}
}

func init() {
	mcpServeCmd.Flags().DurationVar(&mcpTick, "tick", watchInterval, "interval between reminder scans, 0 to disable")
	mcpCmd.AddCommand(mcpServeCmd)
	rootCmd.AddCommand(mcpCmd)
}
