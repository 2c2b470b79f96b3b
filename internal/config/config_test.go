package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, ProviderAnthropic, cfg.LLM.Provider)
	assert.Equal(t, 5, cfg.Orchestrator.MaxConcurrentTasks)
	assert.Equal(t, BackendRedis, cfg.Coordination.Backend)
	assert.Equal(t, "redis://localhost:6379/0", cfg.Coordination.RedisURL)
	assert.Equal(t, 24*time.Hour, cfg.Coordination.SessionTTL)
	assert.Equal(t, "nexus:events", cfg.Coordination.Channel)
	assert.False(t, cfg.Workers.AllowCommand)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromPath(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
llm:
  provider: bedrock
  model: claude-3-5-haiku-20241022
  aws_region: us-west-2
  timeout: 30s
orchestrator:
  max_concurrent_tasks: 3
  task_timeout: 2m
  profiles_file: profiles.yaml
coordination:
  backend: sqlite
  sqlite_path: /tmp/nexus-test.db
  session_ttl: 1h
monitoring:
  metrics_addr: ":9090"
workers:
  allow_command: true
`
	require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0644))

	cfg, err := LoadFromPath(configPath)
	require.NoError(t, err)

	assert.Equal(t, ProviderBedrock, cfg.LLM.Provider)
	assert.Equal(t, "us-west-2", cfg.LLM.AWSRegion)
	assert.Equal(t, 30*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, 3, cfg.Orchestrator.MaxConcurrentTasks)
	assert.Equal(t, 2*time.Minute, cfg.Orchestrator.TaskTimeout)
	assert.Equal(t, "profiles.yaml", cfg.Orchestrator.ProfilesFile)
	assert.Equal(t, BackendSQLite, cfg.Coordination.Backend)
	assert.Equal(t, "/tmp/nexus-test.db", cfg.Coordination.SQLitePath)
	assert.Equal(t, time.Hour, cfg.Coordination.SessionTTL)
	assert.Equal(t, ":9090", cfg.Monitoring.MetricsAddr)
	assert.True(t, cfg.Workers.AllowCommand)

	// Unset keys keep their defaults.
	assert.Equal(t, "nexus:events", cfg.Coordination.Channel)
	assert.Equal(t, 20*time.Second, cfg.Orchestrator.RoutingTimeout)
}

func TestLoadFromPathRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"unknown backend", "coordination:\n  backend: etcd\n"},
		{"unknown provider", "llm:\n  provider: openai\n"},
		{"zero concurrency", "orchestrator:\n  max_concurrent_tasks: 0\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0644))

			_, err := LoadFromPath(path)
			assert.Error(t, err)
		})
	}
}

func TestLoadFromPathMissingFile(t *testing.T) {
	_, err := LoadFromPath(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadFromPathExpandsEnv(t *testing.T) {
	t.Setenv("TEST_REDIS_HOST", "cache.internal")
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("coordination:\n  redis_url: redis://${TEST_REDIS_HOST}:6379/1\n"), 0644))

	cfg, err := LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, "redis://cache.internal:6379/1", cfg.Coordination.RedisURL)
}

func TestLoadPrecedence(t *testing.T) {
	configHome := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", configHome)
	t.Setenv("NEXUS_ORCHESTRATOR_MAX_CONCURRENT_TASKS", "")
	t.Setenv("REDIS_URL", "")
	t.Setenv("NEXUS_COORDINATION_REDIS_URL", "")

	userDir := filepath.Join(configHome, "nexus")
	require.NoError(t, os.MkdirAll(userDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(userDir, "config.yaml"),
		[]byte("orchestrator:\n  max_concurrent_tasks: 2\ncoordination:\n  backend: memory\n"), 0644))

	projectDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(projectDir, ".nexus.yaml"),
		[]byte("orchestrator:\n  max_concurrent_tasks: 4\n"), 0644))
	t.Chdir(projectDir)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Orchestrator.MaxConcurrentTasks, "project config overrides user config")
	assert.Equal(t, BackendMemory, cfg.Coordination.Backend, "user config applies where project is silent")

	t.Setenv("NEXUS_ORCHESTRATOR_MAX_CONCURRENT_TASKS", "7")
	cfg, err = Load()
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Orchestrator.MaxConcurrentTasks, "environment overrides files")
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("TEST_VAR", "expanded-value")

	assert.Equal(t, "expanded-value", expandEnv("${TEST_VAR}"))
	assert.Equal(t, "prefix-expanded-value-suffix", expandEnv("prefix-${TEST_VAR}-suffix"))
}

func TestGetUserConfigDir(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/custom/config")
	assert.Equal(t, "/custom/config/nexus", getUserConfigDir())
	assert.Equal(t, "/custom/config/nexus/config.yaml", GetUserConfigPath())
}

func TestGetDataDir(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/custom/data")
	assert.Equal(t, "/custom/data/nexus", getDataDir())
	assert.Equal(t, "/custom/data/nexus/nexus.db", Default().Coordination.SQLitePath)
}
