package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/nexus/internal/coord"
	"github.com/ShayCichocki/nexus/internal/metrics"
	"github.com/ShayCichocki/nexus/internal/orchestrator"
	"github.com/ShayCichocki/nexus/internal/tui"
	"github.com/ShayCichocki/nexus/pkg/models"
)

var watchPlain bool

var watchCmd = &cobra.Command{
	Use:   "watch [session-id]",
	Short: "Watch lifecycle events from all nexus processes",
	Long: `Subscribe to the shared event channel and display session and task
transitions as they happen. With a session ID, only that session's
events are shown.

Requires a Redis or SQLite backend to see events from other processes.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().BoolVar(&watchPlain, "plain", false, "Print events as lines instead of the TUI")
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg, logger, metrics.NewCollector(nil))
	if err != nil {
		return err
	}
	defer store.Close()

	if store.Mode() == coord.ModeMemory {
		printStatus("⚠", "no shared backend, only this process's events would be visible", colorWarn)
	}

	var filter string
	if len(args) == 1 {
		filter = args[0]
	}

	events := coord.NewEventChannel(store)
	defer events.Close()

	emitter := orchestrator.NewEventEmitter(256, logger)
	unsubscribe := events.Subscribe(func(ev models.Event) {
		if filter == "" || ev.SessionID == filter {
			emitter.Emit(ev)
		}
	})
	defer func() {
		unsubscribe()
		emitter.Close()
	}()

	if watchPlain {
		fmt.Printf("Watching %s on %s (ctrl+c to stop)\n", store.Channel(), store.Mode())
		for {
			select {
			case <-ctx.Done():
				return nil
			case ev, ok := <-emitter.Events():
				if !ok {
					return nil
				}
				printEvent(ev)
			}
		}
	}

	model := tui.NewApp(tui.WithTitle(fmt.Sprintf("nexus watch · %s", store.Mode())))
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	go tui.Forward(p, emitter.Events())

	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("run TUI: %w", err)
	}
	return nil
}
