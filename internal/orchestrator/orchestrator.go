package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ShayCichocki/nexus/internal/coord"
	"github.com/ShayCichocki/nexus/internal/graph"
	"github.com/ShayCichocki/nexus/internal/metrics"
	"github.com/ShayCichocki/nexus/internal/router"
	"github.com/ShayCichocki/nexus/internal/worker"
	"github.com/ShayCichocki/nexus/pkg/models"
)

// ErrShutdown is returned for requests made after Shutdown.
var ErrShutdown = errors.New("engine is shut down")

// Response is the result of ProcessRequest.
type Response struct {
	Success bool          `json:"success"`
	Data    *ResponseData `json:"data,omitempty"`
	Error   string        `json:"error,omitempty"`
}

// ResponseData carries the aggregated output of a session.
type ResponseData struct {
	SessionID string        `json:"sessionId"`
	Response  string        `json:"response"`
	Tasks     []TaskSummary `json:"tasks"`
	Summary   Summary       `json:"summary"`
}

// TaskSummary is the per-task view in a Response, in completion order.
type TaskSummary struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	WorkerType string            `json:"workerType"`
	Status     models.TaskStatus `json:"status"`
	Result     string            `json:"result,omitempty"`
	Error      string            `json:"error,omitempty"`
	DurationMs int64             `json:"durationMs"`
}

// Summary holds session totals.
type Summary struct {
	TotalTasks      int   `json:"totalTasks"`
	TotalDurationMs int64 `json:"totalDurationMs"`
}

// Engine turns requests into plans, routes and schedules their tasks, and
// aggregates the results.
type Engine struct {
	planner   Planner
	store     *coord.Store
	workers   WorkerSource
	router    *router.Router
	profiles  *router.Registry
	events    *coord.EventChannel
	ownEvents bool
	scheduler *Scheduler
	logger    *slog.Logger
	metrics   *metrics.Collector
	now       func() time.Time

	mu       sync.Mutex
	closed   bool
	inflight sync.WaitGroup
	stopCtx  context.Context
	stop     context.CancelFunc
}

// New creates an Engine from the required collaborators and options.
func New(req RequiredConfig, opts ...Option) (*Engine, error) {
	if req.Planner == nil {
		return nil, errors.New("orchestrator: planner is required")
	}
	if req.Store == nil {
		return nil, errors.New("orchestrator: store is required")
	}
	if req.Workers == nil {
		return nil, errors.New("orchestrator: workers are required")
	}

	o := &engineOptions{
		maxConcurrent: DefaultMaxConcurrent,
		logger:        slog.Default(),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.now == nil {
		o.now = time.Now
	}
	if o.profiles == nil {
		o.profiles = router.NewRegistry(router.DefaultProfiles()...)
	}
	if o.router == nil {
		o.router = router.New(nil, router.WithLogger(o.logger))
	}

	e := &Engine{
		planner:  req.Planner,
		store:    req.Store,
		workers:  req.Workers,
		router:   o.router,
		profiles: o.profiles,
		events:   o.events,
		logger:   o.logger,
		metrics:  o.metrics,
		now:      o.now,
	}
	e.stopCtx, e.stop = context.WithCancel(context.Background())
	if e.events == nil {
		e.events = coord.NewEventChannel(req.Store)
		e.ownEvents = true
	}
	e.scheduler = NewScheduler(req.Store, e.events,
		WithMaxConcurrent(o.maxConcurrent),
		WithSchedulerLogger(o.logger),
		WithSchedulerMetrics(o.metrics),
		WithSchedulerClock(o.now),
	)
	return e, nil
}

// Events returns the engine's event channel.
func (e *Engine) Events() *coord.EventChannel { return e.events }

// Scheduler returns the engine's scheduler.
func (e *Engine) Scheduler() *Scheduler { return e.scheduler }

// Watch subscribes a buffered emitter to every event. The returned stop
// function unsubscribes and closes the channel.
func (e *Engine) Watch(bufferSize int) (<-chan models.Event, func()) {
	emitter := NewEventEmitter(bufferSize, e.logger)
	unsubscribe := e.events.Subscribe(emitter.Emit)
	var once sync.Once
	return emitter.Events(), func() {
		once.Do(func() {
			unsubscribe()
			emitter.Close()
		})
	}
}

// ProcessRequest plans, schedules and aggregates one request. An empty
// sessionID is replaced by a generated one. The returned Response reports
// success unless no task produced a result or the session was aborted.
func (e *Engine) ProcessRequest(ctx context.Context, sessionID, text string, reqCtx map[string]any) Response {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return Response{Error: ErrShutdown.Error()}
	}
	e.inflight.Add(1)
	e.mu.Unlock()
	defer e.inflight.Done()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer context.AfterFunc(e.stopCtx, cancel)()

	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	start := e.now()
	logger := e.logger.With("session", sessionID)

	p, err := e.planner.Plan(ctx, text, reqCtx)
	if err == nil && p == nil {
		err = errors.New("planner returned no plan")
	}
	if err != nil {
		perr := &PlanningError{Err: err}
		logger.Error("planning failed", "error", err)
		e.metrics.RecordSession(string(models.SessionFailed))
		return Response{Error: perr.Error()}
	}

	tasks := p.Tasks()
	e.route(ctx, logger, p, tasks)

	g := graph.New()
	g.SetDebugLog(graphDebugLog(logger))
	if err := g.Build(tasks); err != nil {
		verr := &PlanValidationError{Err: err}
		logger.Error("plan rejected", "error", err)
		e.metrics.RecordSession(string(models.SessionFailed))
		return Response{Error: verr.Error()}
	}

	if _, err := e.store.CreateSession(ctx, sessionID, p); err != nil {
		logger.Warn("create session failed", "error", err)
	}
	e.publish(ctx, logger, models.Event{
		Kind:      models.EventSessionStarted,
		SessionID: sessionID,
		Payload:   map[string]any{"intent": p.Intent.Type, "totalTasks": len(tasks)},
		Timestamp: e.now(),
	})
	logger.Info("session started", "tasks", len(tasks), "intent", p.Intent.Type)

	res, schedErr := e.scheduler.Schedule(WithRequestContext(ctx, reqCtx), sessionID, g, e.workers.Acquire)
	resp := aggregate(sessionID, res, len(tasks), e.now().Sub(start))
	if schedErr != nil {
		resp.Success = false
		resp.Error = schedErr.Error()
	}

	status := models.SessionCompleted
	kind := models.EventSessionCompleted
	if !resp.Success {
		status = models.SessionFailed
		kind = models.EventSessionFailed
	}
	// The caller's context may already be done; the final record still goes out.
	finishCtx := context.WithoutCancel(ctx)
	if err := e.store.UpdateStatus(finishCtx, sessionID, status); err != nil {
		logger.Warn("update session status failed", "error", err)
	}
	e.publish(finishCtx, logger, models.Event{
		Kind:      kind,
		SessionID: sessionID,
		Payload:   map[string]any{"error": resp.Error, "totalDurationMs": resp.Data.Summary.TotalDurationMs},
		Timestamp: e.now(),
	})
	e.metrics.RecordSession(string(status))
	logger.Info("session finished", "status", status, "tasks", len(resp.Data.Tasks))
	return resp
}

// route assigns a worker type to every step that has none or the generic one.
// Plan steps are updated so the session record shows the routed type.
func (e *Engine) route(ctx context.Context, logger *slog.Logger, p *models.Plan, tasks []*models.Task) {
	profiles := e.profiles.Enabled()
	if len(profiles) == 0 {
		return
	}
	for i, task := range tasks {
		if task.WorkerType != "" && task.WorkerType != worker.GenericType {
			continue
		}
		desc := router.TaskDescriptor{
			Description:  strings.TrimSpace(task.Name + " " + task.Description),
			Intent:       p.Intent.Type,
			Capabilities: mergeSkills(p.Intent.RequiredCapabilities, task.Skills),
			Complexity:   string(p.Intent.Complexity.Normalize()),
		}
		matches := e.router.Route(ctx, desc, profiles)
		best, ok := router.Best(matches)
		if !ok {
			continue
		}
		if router.ShouldCollaborate(matches) {
			logger.Info("ambiguous routing, collaboration suggested",
				"task", task.ID, "first", matches[0].WorkerType, "second", matches[1].WorkerType)
		}
		task.WorkerType = best.WorkerType
		if len(task.Skills) == 0 {
			task.Skills = append([]string(nil), best.SuggestedSkills...)
		}
		logger.Debug("routed task", "task", task.ID, "worker_type", best.WorkerType, "confidence", best.Confidence)
		if i < len(p.Steps) && p.Steps[i].ID == task.ID {
			p.Steps[i].AgentType = task.WorkerType
			p.Steps[i].Skills = append([]string(nil), task.Skills...)
		}
	}
}

func mergeSkills(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var out []string
	for _, s := range append(append([]string(nil), a...), b...) {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// aggregate builds the Response from settled tasks in completion order.
func aggregate(sessionID string, res *ScheduleResult, total int, elapsed time.Duration) Response {
	data := &ResponseData{
		SessionID: sessionID,
		Summary:   Summary{TotalTasks: total, TotalDurationMs: elapsed.Milliseconds()},
	}
	resp := Response{Data: data}
	if res == nil || len(res.Tasks) == 0 {
		resp.Error = ErrNoResult.Error()
		return resp
	}

	var parts []string
	for _, t := range res.Tasks {
		data.Tasks = append(data.Tasks, TaskSummary{
			ID:         t.ID,
			Name:       t.Name,
			WorkerType: t.WorkerType,
			Status:     t.Status,
			Result:     t.Result,
			Error:      t.Error,
			DurationMs: t.Duration().Milliseconds(),
		})
		switch t.Status {
		case models.TaskStatusCompleted:
			resp.Success = true
			if t.Result != "" {
				parts = append(parts, t.Result)
			}
		case models.TaskStatusFailed:
			if resp.Error == "" {
				resp.Error = t.Error
			}
			parts = append(parts, fmt.Sprintf("[%s failed: %s]", t.ID, t.Error))
		}
	}
	data.Response = strings.Join(parts, "\n\n")
	return resp
}

func (e *Engine) publish(ctx context.Context, logger *slog.Logger, ev models.Event) {
	if err := e.events.Publish(ctx, ev); err != nil {
		logger.Warn("publish event failed", "kind", ev.Kind, "error", err)
	}
}

// CancelTask stops waiting on an outstanding task. Best effort.
func (e *Engine) CancelTask(taskID string) bool {
	return e.scheduler.CancelTask(taskID)
}

// CancelSessionTask cancels taskID only within sessionID. Best effort.
func (e *Engine) CancelSessionTask(sessionID, taskID string) bool {
	return e.scheduler.CancelSessionTask(sessionID, taskID)
}

// GetActiveWorkers lists every worker instance with its stats.
func (e *Engine) GetActiveWorkers() []models.WorkerInfo {
	return e.workers.Info()
}

// SessionState reads a session record from the store.
func (e *Engine) SessionState(ctx context.Context, sessionID string) (*models.SessionState, error) {
	return e.store.GetState(ctx, sessionID)
}

// Shutdown aborts every running session, waits for them to record their
// final status, then closes the event channel and the store. Further
// requests fail with ErrShutdown.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	e.stop()
	e.scheduler.CancelAll()

	done := make(chan struct{})
	go func() {
		e.inflight.Wait()
		close(done)
	}()
	var waitErr error
	select {
	case <-done:
	case <-ctx.Done():
		waitErr = fmt.Errorf("shutdown: %w", ctx.Err())
	}

	var errs []error
	if waitErr != nil {
		errs = append(errs, waitErr)
	}
	if e.ownEvents {
		if err := e.events.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close events: %w", err))
		}
	}
	if err := e.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}
	e.logger.Info("engine shut down")
	return errors.Join(errs...)
}
