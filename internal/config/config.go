// Package config handles configuration loading for nexus.
// It supports XDG config paths, project-level overrides, and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Coordination backends.
const (
	BackendRedis  = "redis"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// LLM providers.
const (
	ProviderAnthropic = "anthropic"
	ProviderBedrock   = "bedrock"
)

// Config holds all configuration for nexus.
type Config struct {
	LLM          LLMConfig          `mapstructure:"llm"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`
	Coordination CoordinationConfig `mapstructure:"coordination"`
	Monitoring   MonitoringConfig   `mapstructure:"monitoring"`
	Workers      WorkersConfig      `mapstructure:"workers"`
	Logging      LoggingConfig      `mapstructure:"logging"`
}

// LLMConfig holds text-completion client settings.
type LLMConfig struct {
	// Provider is "anthropic" or "bedrock".
	Provider   string        `mapstructure:"provider"`
	Model      string        `mapstructure:"model"`
	APIKey     string        `mapstructure:"api_key"`
	AWSRegion  string        `mapstructure:"aws_region"`
	AWSProfile string        `mapstructure:"aws_profile"`
	BaseURL    string        `mapstructure:"base_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// OrchestratorConfig holds scheduling and routing settings.
type OrchestratorConfig struct {
	MaxConcurrentTasks int           `mapstructure:"max_concurrent_tasks"`
	TaskTimeout        time.Duration `mapstructure:"task_timeout"`
	RoutingTimeout     time.Duration `mapstructure:"routing_timeout"`
	// ProfilesFile is an optional YAML or TOML file of capability profiles.
	// It is watched and reloaded on change.
	ProfilesFile string `mapstructure:"profiles_file"`
}

// CoordinationConfig holds shared-state backend settings.
type CoordinationConfig struct {
	Backend    string        `mapstructure:"backend"`
	RedisURL   string        `mapstructure:"redis_url"`
	SQLitePath string        `mapstructure:"sqlite_path"`
	SessionTTL time.Duration `mapstructure:"session_ttl"`
	Channel    string        `mapstructure:"channel"`
}

// MonitoringConfig holds metrics settings.
type MonitoringConfig struct {
	// MetricsAddr enables the Prometheus endpoint when set, e.g. ":9090".
	MetricsAddr string `mapstructure:"metrics_addr"`
}

// WorkersConfig holds worker variant settings.
type WorkersConfig struct {
	// AllowCommand registers the command worker, which runs task
	// descriptions as shell commands.
	AllowCommand   bool   `mapstructure:"allow_command"`
	CommandDir     string `mapstructure:"command_dir"`
	MaxOutputBytes int    `mapstructure:"max_output_bytes"`
}

// LoggingConfig holds log settings.
type LoggingConfig struct {
	Level string `mapstructure:"level"`
	// File receives JSON debug logs when set.
	File string `mapstructure:"file"`
}

// Load loads configuration from XDG paths, project overrides, and environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (NEXUS_<SECTION>_<KEY>, ANTHROPIC_API_KEY, REDIS_URL)
// 2. Project config (.nexus.yaml in current directory or parent)
// 3. User config (~/.config/nexus/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	userConfigDir := getUserConfigDir()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(userConfigDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	projectConfig := findProjectConfig()
	if projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading project config %s: %w", projectConfig, err)
		}
		if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
			return nil, fmt.Errorf("merging project config: %w", err)
		}
	}

	bindEnv(v)
	return decode(v)
}

// LoadFromPath loads configuration from a specific path, ignoring the
// environment (for testing).
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	return decode(v)
}

func decode(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.LLM.APIKey = expandEnv(cfg.LLM.APIKey)
	cfg.Coordination.RedisURL = expandEnv(cfg.Coordination.RedisURL)
	cfg.Coordination.SQLitePath = expandEnv(cfg.Coordination.SQLitePath)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// bindEnv maps NEXUS_* variables onto config keys, plus the
// conventional variables of the services nexus talks to.
func bindEnv(v *viper.Viper) {
	v.SetEnvPrefix("NEXUS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.BindEnv("llm.api_key", "NEXUS_LLM_API_KEY", "ANTHROPIC_API_KEY")
	v.BindEnv("llm.aws_region", "NEXUS_LLM_AWS_REGION", "AWS_REGION")
	v.BindEnv("llm.aws_profile", "NEXUS_LLM_AWS_PROFILE", "AWS_PROFILE")
	v.BindEnv("coordination.redis_url", "NEXUS_COORDINATION_REDIS_URL", "REDIS_URL")
}

// Validate checks enumerated fields and ranges.
func (c *Config) Validate() error {
	switch c.LLM.Provider {
	case ProviderAnthropic, ProviderBedrock:
	default:
		return fmt.Errorf("invalid llm.provider %q: want %s or %s", c.LLM.Provider, ProviderAnthropic, ProviderBedrock)
	}
	switch c.Coordination.Backend {
	case BackendRedis, BackendSQLite, BackendMemory:
	default:
		return fmt.Errorf("invalid coordination.backend %q: want redis, sqlite or memory", c.Coordination.Backend)
	}
	if c.Orchestrator.MaxConcurrentTasks < 1 {
		return fmt.Errorf("orchestrator.max_concurrent_tasks must be at least 1, got %d", c.Orchestrator.MaxConcurrentTasks)
	}
	if c.Coordination.SessionTTL < 0 {
		return fmt.Errorf("coordination.session_ttl must not be negative")
	}
	return nil
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if it exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("llm.provider", d.LLM.Provider)
	v.SetDefault("llm.model", d.LLM.Model)
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.aws_region", "")
	v.SetDefault("llm.aws_profile", "")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.timeout", d.LLM.Timeout.String())

	v.SetDefault("orchestrator.max_concurrent_tasks", d.Orchestrator.MaxConcurrentTasks)
	v.SetDefault("orchestrator.task_timeout", d.Orchestrator.TaskTimeout.String())
	v.SetDefault("orchestrator.routing_timeout", d.Orchestrator.RoutingTimeout.String())
	v.SetDefault("orchestrator.profiles_file", "")

	v.SetDefault("coordination.backend", d.Coordination.Backend)
	v.SetDefault("coordination.redis_url", d.Coordination.RedisURL)
	v.SetDefault("coordination.sqlite_path", d.Coordination.SQLitePath)
	v.SetDefault("coordination.session_ttl", d.Coordination.SessionTTL.String())
	v.SetDefault("coordination.channel", d.Coordination.Channel)

	v.SetDefault("monitoring.metrics_addr", "")

	v.SetDefault("workers.allow_command", false)
	v.SetDefault("workers.command_dir", "")
	v.SetDefault("workers.max_output_bytes", d.Workers.MaxOutputBytes)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.file", "")
}

// getUserConfigDir returns the XDG config directory for nexus.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "nexus")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "nexus")
	}
	return filepath.Join(home, ".config", "nexus")
}

// getDataDir returns the XDG data directory for nexus.
func getDataDir() string {
	if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
		return filepath.Join(xdgData, "nexus")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".local", "share", "nexus")
	}
	return filepath.Join(home, ".local", "share", "nexus")
}

// findProjectConfig searches for .nexus.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".nexus.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}

// expandEnv expands ${VAR} references in a string.
func expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider: ProviderAnthropic,
			Model:    "claude-sonnet-4-20250514",
			Timeout:  2 * time.Minute,
		},
		Orchestrator: OrchestratorConfig{
			MaxConcurrentTasks: 5,
			TaskTimeout:        10 * time.Minute,
			RoutingTimeout:     20 * time.Second,
		},
		Coordination: CoordinationConfig{
			Backend:    BackendRedis,
			RedisURL:   "redis://localhost:6379/0",
			SQLitePath: filepath.Join(getDataDir(), "nexus.db"),
			SessionTTL: 24 * time.Hour,
			Channel:    "nexus:events",
		},
		Workers: WorkersConfig{
			MaxOutputBytes: 1 << 20,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}
