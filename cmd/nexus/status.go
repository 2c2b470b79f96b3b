package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/nexus/internal/coord"
	"github.com/ShayCichocki/nexus/internal/metrics"
)

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status <session-id>",
	Short: "Show a session's shared state",
	Long: `Display the state of a session from the coordination store.

Shows:
  - Session status and intent
  - Per-task status, worker type and duration
  - Completed vs total task counts

Sessions run by other nexus processes are visible when they share a
Redis or SQLite backend.`,
	Args: cobra.ExactArgs(1),
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Print the session record as JSON")
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	store, err := openStore(ctx, cfg, logger, metrics.NewCollector(nil))
	if err != nil {
		return err
	}
	defer store.Close()

	state, err := store.GetState(ctx, args[0])
	if errors.Is(err, coord.ErrSessionNotFound) {
		fmt.Printf("No session %s in %s store. Run 'nexus run <request>' to start one.\n", args[0], store.Mode())
		return nil
	}
	if err != nil {
		return fmt.Errorf("get session: %w", err)
	}

	if statusJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(state)
	}

	fmt.Println(renderSession(state))
	return nil
}
