package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/nexus/internal/config"
	"github.com/ShayCichocki/nexus/internal/orchestrator"
)

var (
	configPath string
	logLevel   string

	cfg       *config.Config
	logger    *slog.Logger
	debugFile *orchestrator.DebugLogger
)

var rootCmd = &cobra.Command{
	Use:   "nexus",
	Short: "Multi-worker task orchestrator",
	Long: `Nexus turns free-text requests into a dependency graph of tasks,
routes each task to the best-fitting worker type, and runs them
concurrently while respecting dependencies.

With no arguments, launches interactive mode with a TUI where you can
type requests and watch their tasks execute.

Session state and lifecycle events are shared through Redis (or SQLite),
so several nexus processes can watch and cancel the same sessions.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setup(cmd)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		debugFile.Close()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInteractive(cmd.Context())
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: ~/.config/nexus/config.yaml plus .nexus.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides logging.level)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(workersCmd)
	rootCmd.AddCommand(profilesCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(purgeCmd)
	rootCmd.AddCommand(versionCmd)
}

// setup loads configuration and builds the process logger.
func setup(cmd *cobra.Command) error {
	var err error
	if configPath != "" {
		cfg, err = config.LoadFromPath(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	level, err := parseLevel(cfg.Logging.Level)
	if err != nil {
		return err
	}

	if cfg.Logging.File != "" {
		debugFile, err = orchestrator.NewDebugLogger(cfg.Logging.File)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		logger = debugFile.Logger
		return nil
	}

	// The interactive TUI owns the terminal; stderr logging would corrupt it.
	var out io.Writer = cmd.ErrOrStderr()
	if !cmd.HasParent() || usesTUI(cmd) {
		out = io.Discard
	}
	logger = slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level}))
	return nil
}

func usesTUI(cmd *cobra.Command) bool {
	f := cmd.Flags().Lookup("tui")
	if f != nil && f.Value.String() == "true" {
		return true
	}
	return cmd == watchCmd && !watchPlain
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("invalid log level %q", s)
	}
}
