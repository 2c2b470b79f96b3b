package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ShayCichocki/nexus/internal/graph"
	"github.com/ShayCichocki/nexus/internal/metrics"
	"github.com/ShayCichocki/nexus/internal/worker"
	"github.com/ShayCichocki/nexus/pkg/models"
)

// DefaultMaxConcurrent is the default ceiling on outstanding tasks per run.
const DefaultMaxConcurrent = 5

// cancelledMessage is the error text recorded on cancelled tasks.
const cancelledMessage = "cancelled"

type requestContextKey struct{}

// WithRequestContext attaches the caller's request context map to ctx.
// Schedule hands it to every worker it starts.
func WithRequestContext(ctx context.Context, reqCtx map[string]any) context.Context {
	if len(reqCtx) == 0 {
		return ctx
	}
	return context.WithValue(ctx, requestContextKey{}, reqCtx)
}

func requestContext(ctx context.Context) map[string]any {
	m, _ := ctx.Value(requestContextKey{}).(map[string]any)
	return m
}

// AcquireFunc obtains a worker for a task. Timeout policy belongs here.
type AcquireFunc func(ctx context.Context, workerType string, skills []string) (worker.Worker, error)

// ScheduleResult describes a finished run.
type ScheduleResult struct {
	// Tasks holds every settled task in settlement order.
	Tasks []*models.Task
	// Rounds counts loop iterations that dispatched at least one task.
	Rounds  int
	Aborted bool
}

// Scheduler executes dependency graphs round by round.
// One Scheduler may drive several sessions concurrently; each Schedule call
// has its own concurrency ceiling.
type Scheduler struct {
	store         StateRecorder
	events        Publisher
	maxConcurrent int
	logger        *slog.Logger
	metrics       *metrics.Collector
	now           func() time.Time

	mu sync.Mutex
	// runs is ordered by start time.
	runs []*run
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithMaxConcurrent sets the ceiling on outstanding tasks. Values below 1 are ignored.
func WithMaxConcurrent(n int) SchedulerOption {
	return func(s *Scheduler) {
		if n > 0 {
			s.maxConcurrent = n
		}
	}
}

// WithSchedulerLogger sets the scheduler logger.
func WithSchedulerLogger(l *slog.Logger) SchedulerOption {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithSchedulerMetrics sets the metrics collector.
func WithSchedulerMetrics(m *metrics.Collector) SchedulerOption {
	return func(s *Scheduler) { s.metrics = m }
}

// WithSchedulerClock overrides time.Now for task timestamps.
func WithSchedulerClock(now func() time.Time) SchedulerOption {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// NewScheduler creates a Scheduler writing transitions to store and events.
// Either may be nil.
func NewScheduler(store StateRecorder, events Publisher, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		store:         store,
		events:        events,
		maxConcurrent: DefaultMaxConcurrent,
		logger:        slog.Default(),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// MaxConcurrent returns the per-run ceiling.
func (s *Scheduler) MaxConcurrent() int { return s.maxConcurrent }

// run is the state of one Schedule call.
type run struct {
	sessionID string
	graph     *graph.DependencyGraph

	mu          sync.Mutex
	outstanding map[string]*inflight
	cancelled   []*inflight
	// cancelledIDs keeps cancelled tasks from being dispatched again
	// before they are settled.
	cancelledIDs map[string]bool

	notify    chan struct{}
	abort     chan struct{}
	abortOnce sync.Once
}

// inflight is a dispatched task awaiting its worker.
type inflight struct {
	task       *models.Task
	workerType string
	startTime  time.Time
	cancelFn   context.CancelFunc
}

// taskResult is what a worker goroutine reports back.
type taskResult struct {
	taskID string
	output string
	err    error
}

func (r *run) signal() {
	select {
	case r.notify <- struct{}{}:
	default:
	}
}

// cancel removes an outstanding task from bookkeeping and interrupts its context.
func (r *run) cancel(taskID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	inf, ok := r.outstanding[taskID]
	if !ok {
		return false
	}
	delete(r.outstanding, taskID)
	inf.cancelFn()
	r.cancelled = append(r.cancelled, inf)
	r.cancelledIDs[taskID] = true
	r.signal()
	return true
}

func (r *run) abortAll() {
	r.abortOnce.Do(func() { close(r.abort) })
}

func (r *run) outstandingCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.outstanding)
}

// Schedule drives g to completion. Task failures settle the task and never
// stop the run; ErrSchedulerInvariant and ErrAborted do.
func (s *Scheduler) Schedule(ctx context.Context, sessionID string, g *graph.DependencyGraph, acquire AcquireFunc) (*ScheduleResult, error) {
	if acquire == nil {
		return nil, errors.New("schedule: nil acquire function")
	}

	r := &run{
		sessionID:    sessionID,
		graph:        g,
		outstanding:  make(map[string]*inflight),
		cancelledIDs: make(map[string]bool),
		notify:       make(chan struct{}, 1),
		abort:        make(chan struct{}),
	}
	s.mu.Lock()
	s.runs = append(s.runs, r)
	s.mu.Unlock()
	defer s.removeRun(r)

	// Workers report into a buffer sized to the graph so late results from
	// cancelled tasks never block.
	results := make(chan taskResult, g.Size())
	outputs := make(map[string]string)
	res := &ScheduleResult{}

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	s.logger.Debug("schedule started", "session", sessionID, "tasks", g.Size(), "max_concurrent", s.maxConcurrent)

	for {
		select {
		case <-r.abort:
			return s.finishAborted(ctx, r, res, ErrAborted)
		case <-ctx.Done():
			return s.finishAborted(context.WithoutCancel(ctx), r, res, fmt.Errorf("%w: %v", ErrAborted, ctx.Err()))
		default:
		}

		s.settleCancelled(ctx, r, res)
		if g.IsEmpty() {
			break
		}

		dispatched := s.dispatch(runCtx, r, outputs, results, acquire)
		if dispatched > 0 {
			res.Rounds++
			s.metrics.RecordRound()
		} else if r.outstandingCount() == 0 && !r.hasCancelled() {
			s.logger.Error("scheduler invariant violated", "session", sessionID, "remaining", g.Size())
			return s.finishAborted(ctx, r, res, ErrSchedulerInvariant)
		}

		// Wait for at least one settlement before recomputing the frontier.
		select {
		case result := <-results:
			s.complete(ctx, r, result, outputs, res)
		case <-r.notify:
		case <-r.abort:
			continue
		case <-ctx.Done():
			continue
		}

		// Absorb whatever else is already done.
		for drained := false; !drained; {
			select {
			case result := <-results:
				s.complete(ctx, r, result, outputs, res)
			default:
				drained = true
			}
		}
	}

	s.logger.Debug("schedule drained", "session", sessionID, "rounds", res.Rounds)
	return res, nil
}

// dispatch starts every ready task that is not yet running, up to the ceiling.
func (s *Scheduler) dispatch(ctx context.Context, r *run, outputs map[string]string, results chan<- taskResult, acquire AcquireFunc) int {
	frontier := r.graph.Frontier()

	r.mu.Lock()
	room := s.maxConcurrent - len(r.outstanding)
	var ready []*models.Task
	for _, t := range frontier {
		if _, running := r.outstanding[t.ID]; running || r.cancelledIDs[t.ID] {
			continue
		}
		if len(ready) >= room {
			break
		}
		ready = append(ready, t)
	}
	r.mu.Unlock()

	if len(ready) == 0 {
		return 0
	}
	s.logger.Debug("dispatching round", "session", r.sessionID, "ready", len(ready), "frontier", len(frontier))

	for _, task := range ready {
		workerType := task.WorkerType
		if workerType == "" {
			workerType = worker.GenericType
		}

		now := s.now()
		task.Status = models.TaskStatusRunning
		task.StartedAt = &now
		task.CompletedAt = nil

		taskCtx, taskCancel := context.WithCancel(ctx)
		inf := &inflight{task: task, workerType: workerType, startTime: now, cancelFn: taskCancel}
		r.mu.Lock()
		r.outstanding[task.ID] = inf
		r.mu.Unlock()

		s.metrics.RecordDispatch(workerType)
		s.transition(ctx, r.sessionID, task, models.EventTaskStarted, map[string]any{"workerType": workerType})

		in := worker.Input{
			SessionID:    r.sessionID,
			Task:         task.Clone(),
			Skills:       append([]string(nil), task.Skills...),
			Dependencies: dependencyOutputs(task, outputs),
			Context:      requestContext(ctx),
		}
		go runTask(taskCtx, acquire, workerType, in, results)
	}
	return len(ready)
}

// runTask acquires a worker and executes one task. It never touches run state.
func runTask(ctx context.Context, acquire AcquireFunc, workerType string, in worker.Input, results chan<- taskResult) {
	w, err := acquire(ctx, workerType, in.Skills)
	if err != nil {
		results <- taskResult{taskID: in.Task.ID, err: fmt.Errorf("acquire worker: %w", err)}
		return
	}
	if w == nil {
		results <- taskResult{taskID: in.Task.ID, err: errors.New("acquire worker: no worker returned")}
		return
	}

	out, err := w.Execute(ctx, in)
	results <- taskResult{taskID: in.Task.ID, output: out, err: err}
}

// dependencyOutputs collects results of settled dependencies. Failed
// dependencies contribute their error text.
func dependencyOutputs(task *models.Task, outputs map[string]string) map[string]string {
	if len(task.DependsOn) == 0 {
		return nil
	}
	deps := make(map[string]string, len(task.DependsOn))
	for _, id := range task.DependsOn {
		if out, ok := outputs[id]; ok {
			deps[id] = out
		}
	}
	return deps
}

// complete records a worker result. Results for tasks that are no longer
// outstanding (cancelled) are ignored.
func (s *Scheduler) complete(ctx context.Context, r *run, result taskResult, outputs map[string]string, res *ScheduleResult) {
	r.mu.Lock()
	inf, ok := r.outstanding[result.taskID]
	if ok {
		delete(r.outstanding, result.taskID)
	}
	r.mu.Unlock()
	if !ok {
		s.logger.Debug("ignoring result of cancelled task", "session", r.sessionID, "task", result.taskID)
		return
	}
	inf.cancelFn()

	task := inf.task
	now := s.now()
	task.CompletedAt = &now
	elapsed := now.Sub(inf.startTime)

	if result.err != nil {
		execErr := &TaskExecutionError{TaskID: task.ID, WorkerType: inf.workerType, Err: result.err}
		task.Status = models.TaskStatusFailed
		task.Error = execErr.Error()
		outputs[task.ID] = "ERROR: " + result.err.Error()
		s.metrics.RecordFailed(inf.workerType, elapsed)
		s.logger.Warn("task failed", "session", r.sessionID, "task", task.ID, "error", result.err)
		s.transition(ctx, r.sessionID, task, models.EventTaskFailed, map[string]any{"error": task.Error, "durationMs": elapsed.Milliseconds()})
	} else {
		task.Status = models.TaskStatusCompleted
		task.Result = result.output
		outputs[task.ID] = result.output
		s.metrics.RecordCompleted(inf.workerType, elapsed)
		s.transition(ctx, r.sessionID, task, models.EventTaskCompleted, map[string]any{"durationMs": elapsed.Milliseconds()})
	}

	r.graph.Settle(task.ID)
	res.Tasks = append(res.Tasks, task)
}

func (r *run) hasCancelled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.cancelled) > 0
}

// settleCancelled marks tasks removed by CancelTask as failed and settles them.
func (s *Scheduler) settleCancelled(ctx context.Context, r *run, res *ScheduleResult) {
	r.mu.Lock()
	cancelled := r.cancelled
	r.cancelled = nil
	r.mu.Unlock()

	for _, inf := range cancelled {
		s.markCancelled(ctx, r, inf)
		r.graph.Settle(inf.task.ID)
		res.Tasks = append(res.Tasks, inf.task)
	}
}

func (s *Scheduler) markCancelled(ctx context.Context, r *run, inf *inflight) {
	task := inf.task
	now := s.now()
	task.Status = models.TaskStatusFailed
	task.Error = cancelledMessage
	task.CompletedAt = &now
	s.metrics.RecordFailed(inf.workerType, now.Sub(inf.startTime))
	s.transition(ctx, r.sessionID, task, models.EventTaskCancelled, nil)
}

// finishAborted cancels everything still outstanding and returns promptly.
func (s *Scheduler) finishAborted(ctx context.Context, r *run, res *ScheduleResult, err error) (*ScheduleResult, error) {
	s.settleCancelled(ctx, r, res)

	r.mu.Lock()
	remaining := make([]*inflight, 0, len(r.outstanding))
	for id, inf := range r.outstanding {
		inf.cancelFn()
		remaining = append(remaining, inf)
		delete(r.outstanding, id)
	}
	r.mu.Unlock()

	for _, inf := range remaining {
		s.markCancelled(ctx, r, inf)
		res.Tasks = append(res.Tasks, inf.task)
	}

	res.Aborted = true
	s.logger.Warn("schedule aborted", "session", r.sessionID, "error", err, "cancelled", len(remaining))
	return res, err
}

// transition writes a task's state to the store and publishes the event,
// in that order. Failures are logged; they never stop scheduling.
func (s *Scheduler) transition(ctx context.Context, sessionID string, task *models.Task, kind models.EventKind, payload map[string]any) {
	if s.store != nil {
		if err := s.store.RecordTaskState(ctx, sessionID, task.ID, models.StateOf(task)); err != nil {
			s.logger.Warn("record task state failed", "session", sessionID, "task", task.ID, "error", err)
		}
	}
	if s.events != nil {
		ev := models.Event{
			Kind:      kind,
			SessionID: sessionID,
			TaskID:    task.ID,
			Payload:   payload,
			Timestamp: s.now(),
		}
		if err := s.events.Publish(ctx, ev); err != nil {
			s.logger.Warn("publish event failed", "session", sessionID, "task", task.ID, "error", err)
		}
	}
}

func (s *Scheduler) removeRun(r *run) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, cur := range s.runs {
		if cur == r {
			s.runs = append(s.runs[:i], s.runs[i+1:]...)
			return
		}
	}
}

func (s *Scheduler) activeRuns() []*run {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*run(nil), s.runs...)
}

// CancelTask stops waiting on an outstanding task. Only the oldest active
// run holding the id is affected; plan ids like "step-1" repeat across
// sessions. The worker call is interrupted through its context but may keep
// running; its result is ignored. Returns false if no run has the task
// outstanding.
func (s *Scheduler) CancelTask(taskID string) bool {
	for _, r := range s.activeRuns() {
		if r.cancel(taskID) {
			return true
		}
	}
	return false
}

// CancelSessionTask is CancelTask restricted to the runs of one session.
func (s *Scheduler) CancelSessionTask(sessionID, taskID string) bool {
	for _, r := range s.activeRuns() {
		if r.sessionID == sessionID && r.cancel(taskID) {
			return true
		}
	}
	return false
}

// CancelAll aborts every active run. Schedule calls return ErrAborted.
func (s *Scheduler) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.runs {
		r.abortAll()
	}
}

// Active returns the number of runs in progress.
func (s *Scheduler) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.runs)
}
