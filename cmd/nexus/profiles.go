package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/nexus/internal/router"
	"github.com/ShayCichocki/nexus/pkg/models"
)

var (
	routeIntent   string
	routeSkills   []string
	routeSemantic bool
	listCategory  string
)

var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "List capability profiles",
	Long: `List the capability profiles the router scores tasks against.

Profiles come from orchestrator.profiles_file (YAML or TOML) when set,
otherwise from the built-in set. Disabled profiles are listed but never
routed to.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		profiles, err := loadProfiles(ctx, cfg, logger)
		if err != nil {
			return err
		}
		list := profiles.Profiles()
		if listCategory != "" {
			list = profiles.ListByCategory(listCategory)
			if len(list) == 0 {
				printStatus("?", fmt.Sprintf("no profiles in category %q", listCategory), colorInfo)
				return nil
			}
		}
		for _, p := range list {
			header := titleStyle.Render(p.WorkerType)
			if p.Category != "" {
				header += " " + labelStyle.Render("["+p.Category+"]")
			}
			if p.Disabled {
				header += " " + statusStyles[string(models.SessionFailed)].Render("disabled")
			}
			fmt.Println(header)
			fmt.Printf("  %s\n", p.Description)
			if len(p.IdealTasks) > 0 {
				fmt.Printf("  %s %s\n", labelStyle.Render("ideal:"), strings.Join(p.IdealTasks, ", "))
			}
			if len(p.Skills) > 0 {
				fmt.Printf("  %s %s\n", labelStyle.Render("skills:"), strings.Join(p.Skills, ", "))
			}
		}
		return nil
	},
}

var routeCmd = &cobra.Command{
	Use:   "route <task description>",
	Short: "Score a task description against the profiles",
	Long: `Show how the router would rank worker types for a task.

By default the keyword heuristic is used. With --semantic the LLM scores
the profiles, falling back to the heuristic on error or timeout.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		profiles, err := loadProfiles(ctx, cfg, logger)
		if err != nil {
			return err
		}

		task := router.TaskDescriptor{
			Description:  strings.Join(args, " "),
			Intent:       routeIntent,
			Capabilities: routeSkills,
		}

		var matches []router.RoutingMatch
		if routeSemantic {
			completer, err := buildCompleter(cfg)
			if err != nil {
				return err
			}
			r := router.New(completer,
				router.WithTimeout(cfg.Orchestrator.RoutingTimeout),
				router.WithLogger(logger),
			)
			matches = r.Route(ctx, task, profiles.Enabled())
		} else {
			matches = router.Heuristic(task, profiles.Enabled())
		}

		for i, m := range matches {
			line := fmt.Sprintf("%d. %-10s %.2f", i+1, m.WorkerType, m.Confidence)
			if m.Rationale != "" {
				line += "  " + labelStyle.Render(m.Rationale)
			}
			fmt.Println(line)
		}
		if router.ShouldCollaborate(matches) {
			printStatus("⚠", "top matches are close; the task may need collaboration", colorWarn)
		}
		return nil
	},
}

func init() {
	profilesCmd.Flags().StringVar(&listCategory, "category", "", "Only list profiles in this category")
	routeCmd.Flags().StringVar(&routeIntent, "intent", "", "Request intent (e.g. research, code)")
	routeCmd.Flags().StringSliceVar(&routeSkills, "skill", nil, "Required skill (repeatable)")
	routeCmd.Flags().BoolVar(&routeSemantic, "semantic", false, "Score with the LLM instead of the heuristic")

	profilesCmd.AddCommand(routeCmd)
}
