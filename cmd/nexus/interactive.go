package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/ShayCichocki/nexus/internal/tui"
)

// runInteractive starts the TUI with an input field. Each submitted line is
// processed as a new request in its own session.
func runInteractive(parent context.Context) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	a.serveMetrics(ctx, cfg.Monitoring.MetricsAddr)

	events, unsubscribe := a.engine.Watch(256)
	defer unsubscribe()

	model := tui.NewApp(
		tui.WithTitle("nexus"),
		tui.WithSubmit(func(text string) {
			go func() {
				resp := a.engine.ProcessRequest(ctx, "", text, nil)
				if !resp.Success {
					logger.Warn("request failed", "request", text, "error", resp.Error)
				}
			}()
		}),
	)

	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	go tui.Forward(p, events)

	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("run TUI: %w", err)
	}
	return nil
}
