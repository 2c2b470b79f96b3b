package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/nexus/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config [key]",
	Short: "Show the effective configuration",
	Long: `Display the configuration after merging defaults, the user config,
the project .nexus.yaml and environment variables.

With one argument (key), displays the value for that key.

User configuration is read from ~/.config/nexus/config.yaml.
Project-specific overrides can be placed in .nexus.yaml.
Environment variables use the NEXUS_ prefix, e.g. NEXUS_COORDINATION_BACKEND.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 1 {
			value, err := getConfigValue(cfg, args[0])
			if err != nil {
				return err
			}
			fmt.Println(value)
			return nil
		}
		displayAllConfig(cfg)
		return nil
	},
}

// configKeys lists the displayable keys in output order.
var configKeys = []string{
	"llm.provider",
	"llm.model",
	"llm.api_key",
	"llm.aws_region",
	"llm.aws_profile",
	"llm.base_url",
	"llm.timeout",
	"orchestrator.max_concurrent_tasks",
	"orchestrator.task_timeout",
	"orchestrator.routing_timeout",
	"orchestrator.profiles_file",
	"coordination.backend",
	"coordination.redis_url",
	"coordination.sqlite_path",
	"coordination.session_ttl",
	"coordination.channel",
	"monitoring.metrics_addr",
	"workers.allow_command",
	"workers.command_dir",
	"workers.max_output_bytes",
	"logging.level",
	"logging.file",
}

// displayAllConfig prints all configuration values.
func displayAllConfig(cfg *config.Config) {
	for _, key := range configKeys {
		value, _ := getConfigValue(cfg, key)
		fmt.Printf("%s: %s\n", key, value)
	}

	fmt.Println()
	fmt.Printf("%s %s\n", labelStyle.Render("user config:   "), config.GetUserConfigPath())
	if p := config.GetProjectConfigPath(); p != "" {
		fmt.Printf("%s %s\n", labelStyle.Render("project config:"), p)
	}
	key, _ := config.ResolveAPIKey(cfg)
	fmt.Printf("%s %s\n", labelStyle.Render("api key source:"), key.Source)
	if err := cfg.ValidateAPIKey(key.Value); err != nil {
		printStatus("✗", err.Error(), colorFail)
	}
}

// getConfigValue retrieves a configuration value by dot-notation key.
func getConfigValue(cfg *config.Config, key string) (string, error) {
	switch strings.ToLower(key) {
	case "llm.provider":
		return cfg.LLM.Provider, nil
	case "llm.model":
		return cfg.LLM.Model, nil
	case "llm.api_key":
		key, _ := config.ResolveAPIKey(cfg)
		return config.MaskAPIKey(key.Value), nil
	case "llm.aws_region":
		return cfg.LLM.AWSRegion, nil
	case "llm.aws_profile":
		return cfg.LLM.AWSProfile, nil
	case "llm.base_url":
		return cfg.LLM.BaseURL, nil
	case "llm.timeout":
		return cfg.LLM.Timeout.String(), nil
	case "orchestrator.max_concurrent_tasks":
		return strconv.Itoa(cfg.Orchestrator.MaxConcurrentTasks), nil
	case "orchestrator.task_timeout":
		return cfg.Orchestrator.TaskTimeout.String(), nil
	case "orchestrator.routing_timeout":
		return cfg.Orchestrator.RoutingTimeout.String(), nil
	case "orchestrator.profiles_file":
		return cfg.Orchestrator.ProfilesFile, nil
	case "coordination.backend":
		return cfg.Coordination.Backend, nil
	case "coordination.redis_url":
		return cfg.Coordination.RedisURL, nil
	case "coordination.sqlite_path":
		return cfg.Coordination.SQLitePath, nil
	case "coordination.session_ttl":
		return cfg.Coordination.SessionTTL.String(), nil
	case "coordination.channel":
		return cfg.Coordination.Channel, nil
	case "monitoring.metrics_addr":
		return cfg.Monitoring.MetricsAddr, nil
	case "workers.allow_command":
		return strconv.FormatBool(cfg.Workers.AllowCommand), nil
	case "workers.command_dir":
		return cfg.Workers.CommandDir, nil
	case "workers.max_output_bytes":
		return strconv.Itoa(cfg.Workers.MaxOutputBytes), nil
	case "logging.level":
		return cfg.Logging.Level, nil
	case "logging.file":
		return cfg.Logging.File, nil
	default:
		return "", fmt.Errorf("unknown configuration key: %s", key)
	}
}
