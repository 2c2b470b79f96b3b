package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/nexus/internal/worker"
)

var workersCmd = &cobra.Command{
	Use:   "workers",
	Short: "List registered worker types",
	Long: `List the worker types this configuration registers. Every capability
profile gets an LLM-backed worker; the command worker is added when
workers.allow_command is set. Unknown types fall back to generic.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		profiles, err := loadProfiles(ctx, cfg, logger)
		if err != nil {
			return err
		}
		reg := buildWorkers(cfg, nil, profiles)

		for _, t := range reg.Types() {
			desc := "shell command runner"
			if p, ok := profiles.Get(t); ok {
				desc = p.Description
			} else if t == worker.GenericType {
				desc = "general purpose"
			}
			fmt.Printf("  %-10s %s\n", t, desc)
			if p, ok := profiles.Get(t); ok && len(p.Skills) > 0 {
				fmt.Printf("  %-10s %s\n", "", labelStyle.Render("skills: "+strings.Join(p.Skills, ", ")))
			}
		}
		return nil
	},
}
