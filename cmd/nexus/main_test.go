package main

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/ShayCichocki/nexus/internal/config"
	"github.com/ShayCichocki/nexus/internal/coord"
	"github.com/ShayCichocki/nexus/internal/router"
	"github.com/ShayCichocki/nexus/internal/worker"
	"github.com/ShayCichocki/nexus/pkg/models"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{in: "debug", want: slog.LevelDebug},
		{in: "", want: slog.LevelInfo},
		{in: "INFO", want: slog.LevelInfo},
		{in: "warning", want: slog.LevelWarn},
		{in: "error", want: slog.LevelError},
		{in: "loud", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseLevel(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("parseLevel(%q) expected error", tt.in)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseLevel(%q) error: %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestGetConfigValue(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("NEXUS_LLM_API_KEY", "")
	cfg := config.Default()

	for _, key := range configKeys {
		if _, err := getConfigValue(cfg, key); err != nil {
			t.Errorf("getConfigValue(%q) error: %v", key, err)
		}
	}

	if got, _ := getConfigValue(cfg, "llm.api_key"); got != "(not set)" {
		t.Errorf("api key = %q, want (not set)", got)
	}
	if got, _ := getConfigValue(cfg, "orchestrator.max_concurrent_tasks"); got != "5" {
		t.Errorf("max_concurrent_tasks = %q, want 5", got)
	}
	if _, err := getConfigValue(cfg, "nope.key"); err == nil {
		t.Error("expected error for unknown key")
	}
}

func TestBuildCompleterChecksKey(t *testing.T) {
	t.Setenv("NEXUS_LLM_API_KEY", "")
	cfg := config.Default()

	t.Setenv("ANTHROPIC_API_KEY", "")
	if _, err := buildCompleter(cfg); !errors.Is(err, config.ErrNoAPIKey) {
		t.Errorf("missing key: error = %v, want ErrNoAPIKey", err)
	}

	t.Setenv("ANTHROPIC_API_KEY", "not-an-anthropic-key-1234")
	_, err := buildCompleter(cfg)
	if err == nil || !strings.Contains(err.Error(), "ANTHROPIC_API_KEY") {
		t.Errorf("malformed key: error = %v, want rejection naming its source", err)
	}

	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-REDACTED")
	client, err := buildCompleter(cfg)
	if err != nil {
		t.Fatalf("valid key: error = %v", err)
	}
	if client.Model() != anthropic.Model(cfg.LLM.Model) {
		t.Errorf("Model() = %s, want %s", client.Model(), cfg.LLM.Model)
	}

	cfg.LLM.BaseURL = "http://127.0.0.1:1"
	t.Setenv("ANTHROPIC_API_KEY", "gateway-token")
	if _, err := buildCompleter(cfg); err != nil {
		t.Errorf("gateway token: error = %v", err)
	}
}

func TestBuildWorkers(t *testing.T) {
	cfg := config.Default()
	profiles := router.NewRegistry(router.DefaultProfiles()...)

	reg := buildWorkers(cfg, nil, profiles)
	if reg.Has(worker.CommandType) {
		t.Error("command worker registered without allow_command")
	}
	for _, p := range profiles.Profiles() {
		if !reg.Has(p.WorkerType) {
			t.Errorf("missing worker for profile %s", p.WorkerType)
		}
	}

	cfg.Workers.AllowCommand = true
	reg = buildWorkers(cfg, nil, profiles)
	if !reg.Has(worker.CommandType) {
		t.Fatal("command worker not registered")
	}
	if _, ok := profiles.Get(worker.CommandType); !ok {
		t.Error("command profile not registered for routing")
	}

	w, err := reg.New(worker.CommandType)
	if err != nil {
		t.Fatalf("New(command) error: %v", err)
	}
	if w.Type() != worker.CommandType {
		t.Errorf("Type() = %s, want %s", w.Type(), worker.CommandType)
	}
}

func TestOpenStore_MemoryAndSQLite(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.DiscardHandler)

	cfg := config.Default()
	cfg.Coordination.Backend = config.BackendMemory
	store, err := openStore(ctx, cfg, logger, nil)
	if err != nil {
		t.Fatalf("openStore(memory) error: %v", err)
	}
	if store.Mode() != coord.ModeMemory {
		t.Errorf("Mode() = %s, want memory", store.Mode())
	}
	store.Close()

	cfg.Coordination.Backend = config.BackendSQLite
	cfg.Coordination.SQLitePath = filepath.Join(t.TempDir(), "nexus.db")
	store, err = openStore(ctx, cfg, logger, nil)
	if err != nil {
		t.Fatalf("openStore(sqlite) error: %v", err)
	}
	defer store.Close()
	if store.Mode() != config.BackendSQLite {
		t.Errorf("Mode() = %s, want sqlite", store.Mode())
	}
}

func TestRenderSession(t *testing.T) {
	started := time.Now().Add(-2 * time.Second)
	done := started.Add(1500 * time.Millisecond)
	state := &models.SessionState{
		SessionID: "s-1",
		Status:    models.SessionFailed,
		Intent:    "research",
		Plan: &models.Plan{Steps: []models.PlanStep{
			{ID: "gather"}, {ID: "write"},
		}},
		Tasks: map[string]models.TaskState{
			"gather": {Status: models.TaskStatusFailed, AgentType: "research", Error: "boom", StartedAt: &started, CompletedAt: &done},
		},
		Metrics:   models.SessionMetrics{TotalTasks: 2},
		CreatedAt: started,
	}

	out := renderSession(state)
	for _, want := range []string{"s-1", "research", "gather", "write", "pending", "boom", "0/2"} {
		if !strings.Contains(out, want) {
			t.Errorf("renderSession output missing %q:\n%s", want, out)
		}
	}
}

func TestFormatHelpers(t *testing.T) {
	if got := shortID("0123456789abcdef"); got != "01234567" {
		t.Errorf("shortID = %q", got)
	}
	if got := shortID("abc"); got != "abc" {
		t.Errorf("shortID = %q", got)
	}
	if got := truncateRequest("a  very\nlong request", 10); got != "a very ..." {
		t.Errorf("truncateRequest = %q", got)
	}
	cjk := truncateRequest("调研一下市场上主流的向量数据库", 8)
	if cjk != "调研一下市..." || !utf8.ValidString(cjk) {
		t.Errorf("truncateRequest(cjk) = %q", cjk)
	}
	if got := truncateRequest("数据库", 8); got != "数据库" {
		t.Errorf("truncateRequest(short cjk) = %q", got)
	}
	if got := formatDuration(90 * time.Minute); got != "1h30m" {
		t.Errorf("formatDuration = %q", got)
	}
	if got := formatDuration(49 * time.Hour); got != "2d" {
		t.Errorf("formatDuration = %q", got)
	}
}
