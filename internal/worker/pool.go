package worker

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ShayCichocki/nexus/pkg/models"
)

// Pool hands out workers by type and tracks their statistics.
// Idle workers are reused before new ones are built.
type Pool struct {
	registry *Registry
	timeout  time.Duration

	mu      sync.Mutex
	workers map[string]*pooled
	idle    map[string][]*pooled
}

type pooled struct {
	worker     Worker
	busy       bool
	completed  int
	execTimeMs int64
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithTaskTimeout bounds each Execute call. Zero disables the bound.
func WithTaskTimeout(d time.Duration) PoolOption {
	return func(p *Pool) { p.timeout = d }
}

// NewPool creates a pool backed by registry.
func NewPool(registry *Registry, opts ...PoolOption) *Pool {
	p := &Pool{
		registry: registry,
		workers:  make(map[string]*pooled),
		idle:     make(map[string][]*pooled),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Acquire returns a worker for workerType. The returned worker goes back to
// the pool when its Execute returns; it must be executed exactly once.
// skills are advisory and do not affect which worker is chosen.
func (p *Pool) Acquire(ctx context.Context, workerType string, skills []string) (Worker, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if workerType == "" {
		workerType = GenericType
	}

	p.mu.Lock()
	if free := p.idle[workerType]; len(free) > 0 {
		pw := free[len(free)-1]
		p.idle[workerType] = free[:len(free)-1]
		pw.busy = true
		p.mu.Unlock()
		return &lease{pool: p, pw: pw, workerType: workerType}, nil
	}
	p.mu.Unlock()

	w, err := p.registry.New(workerType)
	if err != nil {
		return nil, fmt.Errorf("acquire %s worker: %w", workerType, err)
	}

	pw := &pooled{worker: w, busy: true}
	p.mu.Lock()
	p.workers[w.ID()] = pw
	p.mu.Unlock()
	return &lease{pool: p, pw: pw, workerType: workerType}, nil
}

func (p *Pool) release(pw *pooled, workerType string, elapsed time.Duration, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	pw.busy = false
	pw.execTimeMs += elapsed.Milliseconds()
	if ok {
		pw.completed++
	}
	p.idle[workerType] = append(p.idle[workerType], pw)
}

// Info returns every worker's record, sorted by ID.
func (p *Pool) Info() []models.WorkerInfo {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]models.WorkerInfo, 0, len(p.workers))
	for _, pw := range p.workers {
		status := models.WorkerIdle
		if pw.busy {
			status = models.WorkerBusy
		}
		out = append(out, models.WorkerInfo{
			ID:                   pw.worker.ID(),
			Type:                 pw.worker.Type(),
			Status:               status,
			TasksCompleted:       pw.completed,
			TotalExecutionTimeMs: pw.execTimeMs,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Busy returns the number of workers currently executing.
func (p *Pool) Busy() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := 0
	for _, pw := range p.workers {
		if pw.busy {
			n++
		}
	}
	return n
}

// lease is the worker handed to a caller of Acquire.
type lease struct {
	pool       *Pool
	pw         *pooled
	workerType string
	once       sync.Once
}

func (l *lease) ID() string   { return l.pw.worker.ID() }
func (l *lease) Type() string { return l.pw.worker.Type() }

func (l *lease) Execute(ctx context.Context, in Input) (string, error) {
	if l.pool.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.pool.timeout)
		defer cancel()
	}

	start := time.Now()
	out, err := l.pw.worker.Execute(ctx, in)
	if err == nil && l.pool.timeout > 0 && ctx.Err() == context.DeadlineExceeded {
		err = fmt.Errorf("task %s timed out after %s", in.Task.ID, l.pool.timeout)
	}

	l.once.Do(func() {
		l.pool.release(l.pw, l.workerType, time.Since(start), err == nil)
	})
	return out, err
}
