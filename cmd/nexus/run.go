package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/nexus/internal/orchestrator"
	"github.com/ShayCichocki/nexus/internal/tui"
	"github.com/ShayCichocki/nexus/pkg/models"
)

var (
	runSessionID   string
	runContext     map[string]string
	runJSON        bool
	runFollow      bool
	runTUI         bool
	runMetricsAddr string
)

// settleGrace bounds how long --follow waits for the final session event
// after the response is ready.
const settleGrace = time.Second

var runCmd = &cobra.Command{
	Use:   "run <request>",
	Short: "Plan and execute a request",
	Long: `Run a free-text request through the orchestrator.

The request is translated into a plan of tasks with dependencies. Each
task without a worker type is routed to the best-fitting capability
profile. Ready tasks run concurrently, up to
orchestrator.max_concurrent_tasks, and each task receives the results
of the tasks it depends on.

Failed tasks do not stop their dependents; the response carries the
results of every task that completed.

Examples:
  nexus run "research Go schedulers and write a summary"
  nexus run --follow --context audience=engineers "draft release notes"
  nexus run --json "compare redis and sqlite for session state"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRequest,
}

func init() {
	runCmd.Flags().StringVar(&runSessionID, "session", "", "Session ID (generated when empty)")
	runCmd.Flags().StringToStringVar(&runContext, "context", nil, "Request context as key=value pairs")
	runCmd.Flags().BoolVar(&runJSON, "json", false, "Print the full response as JSON")
	runCmd.Flags().BoolVar(&runFollow, "follow", false, "Print lifecycle events while the request runs")
	runCmd.Flags().BoolVar(&runTUI, "tui", false, "Watch the request in the TUI")
	runCmd.Flags().StringVar(&runMetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (overrides monitoring.metrics_addr)")
}

func runRequest(cmd *cobra.Command, args []string) (retErr error) {
	request := strings.Join(args, " ")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil && retErr == nil {
			retErr = fmt.Errorf("shutdown: %w", err)
		}
	}()

	addr := runMetricsAddr
	if addr == "" {
		addr = cfg.Monitoring.MetricsAddr
	}
	a.serveMetrics(ctx, addr)

	sessionID := runSessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	reqCtx := make(map[string]any, len(runContext))
	for k, v := range runContext {
		reqCtx[k] = v
	}

	var resp orchestrator.Response
	switch {
	case runTUI:
		resp, err = runWithTUI(ctx, a, sessionID, request, reqCtx)
		if err != nil {
			return err
		}
	case runFollow && !runJSON:
		resp = runFollowing(ctx, a, sessionID, request, reqCtx)
	default:
		resp = a.engine.ProcessRequest(ctx, sessionID, request, reqCtx)
	}

	return printResponse(resp)
}

// runFollowing prints events for this session while the request runs.
func runFollowing(ctx context.Context, a *app, sessionID, request string, reqCtx map[string]any) orchestrator.Response {
	events, unsubscribe := a.engine.Watch(64)
	finished := make(chan struct{})
	drained := make(chan struct{})

	go func() {
		defer close(drained)
		done := false
		for ev := range events {
			if ev.SessionID != sessionID {
				continue
			}
			printEvent(ev)
			if !done && (ev.Kind == models.EventSessionCompleted || ev.Kind == models.EventSessionFailed) {
				done = true
				close(finished)
			}
		}
	}()

	resp := a.engine.ProcessRequest(ctx, sessionID, request, reqCtx)

	select {
	case <-finished:
	case <-time.After(settleGrace):
	}
	unsubscribe()
	<-drained
	fmt.Println()
	return resp
}

// runWithTUI shows the session in a read-only TUI. The program stays open
// after the request settles until the user quits.
func runWithTUI(ctx context.Context, a *app, sessionID, request string, reqCtx map[string]any) (orchestrator.Response, error) {
	events, unsubscribe := a.engine.Watch(256)
	defer unsubscribe()

	model := tui.NewApp(tui.WithTitle("nexus · " + truncateRequest(request, 60)))
	p := tea.NewProgram(model, tea.WithContext(ctx))
	go tui.Forward(p, events)

	runCtx, cancel := context.WithCancel(ctx)
	respCh := make(chan orchestrator.Response, 1)
	go func() {
		respCh <- a.engine.ProcessRequest(runCtx, sessionID, request, reqCtx)
	}()

	_, err := p.Run()
	// Quitting early cancels whatever is still running.
	cancel()
	resp := <-respCh
	if err != nil && ctx.Err() == nil {
		return resp, fmt.Errorf("run TUI: %w", err)
	}
	return resp, nil
}

func truncateRequest(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}

// printResponse writes the response in the selected format. A failed
// response is reported as a command error.
func printResponse(resp orchestrator.Response) error {
	if runJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(resp); err != nil {
			return fmt.Errorf("encode response: %w", err)
		}
		if !resp.Success {
			return fmt.Errorf("request failed: %s", resp.Error)
		}
		return nil
	}

	if resp.Data != nil {
		fmt.Println(resp.Data.Response)
		fmt.Println()

		for _, t := range resp.Data.Tasks {
			switch t.Status {
			case models.TaskStatusCompleted:
				printStatus("✓", fmt.Sprintf("%s (%s) %dms", t.Name, t.WorkerType, t.DurationMs), colorOK)
			case models.TaskStatusFailed:
				printStatus("✗", fmt.Sprintf("%s (%s): %s", t.Name, t.WorkerType, t.Error), colorFail)
			default:
				printStatus("·", fmt.Sprintf("%s (%s) %s", t.Name, t.WorkerType, t.Status), colorWarn)
			}
		}
		fmt.Printf("\nSession %s: %d tasks in %s\n",
			resp.Data.SessionID,
			resp.Data.Summary.TotalTasks,
			(time.Duration(resp.Data.Summary.TotalDurationMs) * time.Millisecond).String())
	}

	if !resp.Success {
		fmt.Fprintf(os.Stderr, "%s %s\n", color.RedString("✗"), resp.Error)
		return fmt.Errorf("request failed")
	}
	if resp.Error != "" {
		fmt.Fprintf(os.Stderr, "%s some tasks failed: %s\n", color.YellowString("⚠"), resp.Error)
	}
	return nil
}
