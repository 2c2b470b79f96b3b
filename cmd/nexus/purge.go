package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/nexus/internal/config"
	"github.com/ShayCichocki/nexus/internal/coord"
)

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete expired sessions from the SQLite store",
	Long: `Remove session records whose TTL has passed.

Only the SQLite backend needs this; Redis expires keys itself and the
in-memory store is swept by the running process.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Coordination.Backend != config.BackendSQLite {
			printStatus("✓", fmt.Sprintf("%s backend expires sessions on its own", cfg.Coordination.Backend), colorOK)
			return nil
		}

		db, err := coord.OpenSQLite(cfg.Coordination.SQLitePath)
		if err != nil {
			return fmt.Errorf("open sqlite store: %w", err)
		}
		defer db.Close()

		n, err := db.PurgeExpired(cmd.Context())
		if err != nil {
			return fmt.Errorf("purge: %w", err)
		}
		printStatus("✓", fmt.Sprintf("Purged %d expired sessions from %s", n, db.Path()), colorOK)
		return nil
	},
}
