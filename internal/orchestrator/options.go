package orchestrator

import (
	"context"
	"log/slog"
	"time"

	"github.com/ShayCichocki/nexus/internal/coord"
	"github.com/ShayCichocki/nexus/internal/metrics"
	"github.com/ShayCichocki/nexus/internal/router"
	"github.com/ShayCichocki/nexus/internal/worker"
	"github.com/ShayCichocki/nexus/pkg/models"
)

// Planner turns a free-text request into a structured plan.
// *plan.Translator implements it.
type Planner interface {
	Plan(ctx context.Context, request string, reqCtx map[string]any) (*models.Plan, error)
}

// WorkerSource hands out workers by capability tag. *worker.Pool implements it.
type WorkerSource interface {
	Acquire(ctx context.Context, workerType string, skills []string) (worker.Worker, error)
	Info() []models.WorkerInfo
}

// RequiredConfig contains the minimal required configuration for an Engine.
// All fields are required and have no defaults.
type RequiredConfig struct {
	// Planner produces the plan for each request.
	Planner Planner
	// Store holds shared session state.
	Store *coord.Store
	// Workers supplies workers for dispatched tasks.
	Workers WorkerSource
}

// Option configures an Engine. Use With* functions to create Options.
type Option func(*engineOptions)

// engineOptions holds all optional configuration.
type engineOptions struct {
	maxConcurrent int
	router        *router.Router
	profiles      *router.Registry
	logger        *slog.Logger
	metrics       *metrics.Collector
	now           func() time.Time
	events        *coord.EventChannel
}

// WithMaxConcurrentTasks sets the per-session ceiling on outstanding tasks.
func WithMaxConcurrentTasks(n int) Option {
	return func(o *engineOptions) { o.maxConcurrent = n }
}

// WithRouter sets the capability router used for untyped plan steps.
func WithRouter(r *router.Router) Option {
	return func(o *engineOptions) { o.router = r }
}

// WithProfiles sets the capability profiles offered to the router.
func WithProfiles(reg *router.Registry) Option {
	return func(o *engineOptions) { o.profiles = reg }
}

// WithLogger sets the logger shared by the engine, its scheduler and graphs.
func WithLogger(l *slog.Logger) Option {
	return func(o *engineOptions) { o.logger = l }
}

// WithMetrics sets the Prometheus collector.
func WithMetrics(m *metrics.Collector) Option {
	return func(o *engineOptions) { o.metrics = m }
}

// WithClock overrides time.Now (mainly for testing).
func WithClock(now func() time.Time) Option {
	return func(o *engineOptions) { o.now = now }
}

// WithEventChannel sets the event channel. By default one is created on the store.
func WithEventChannel(ch *coord.EventChannel) Option {
	return func(o *engineOptions) { o.events = ch }
}
