package worker

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShayCichocki/nexus/internal/api"
	iexec "github.com/ShayCichocki/nexus/internal/exec"
	"github.com/ShayCichocki/nexus/pkg/models"
)

type stubWorker struct {
	id  string
	typ string
	fn  func(ctx context.Context, in Input) (string, error)
}

func (s *stubWorker) ID() string   { return s.id }
func (s *stubWorker) Type() string { return s.typ }
func (s *stubWorker) Execute(ctx context.Context, in Input) (string, error) {
	return s.fn(ctx, in)
}

func stubFactory(fn func(ctx context.Context, in Input) (string, error)) Factory {
	var mu sync.Mutex
	n := 0
	return func(workerType string) (Worker, error) {
		mu.Lock()
		defer mu.Unlock()
		n++
		return &stubWorker{id: workerType + "-" + string(rune('0'+n)), typ: workerType, fn: fn}, nil
	}
}

func okFn(ctx context.Context, in Input) (string, error) { return "done " + in.Task.ID, nil }

func TestRegistry_FallsBackToGeneric(t *testing.T) {
	r := NewRegistry()
	_, err := r.New("code")
	assert.Error(t, err)

	r.Register(GenericType, stubFactory(okFn))
	w, err := r.New("code")
	require.NoError(t, err)
	assert.Equal(t, "code", w.Type(), "generic factory keeps the requested tag")

	w, err = r.New("")
	require.NoError(t, err)
	assert.Equal(t, GenericType, w.Type())

	r.Register(CommandType, stubFactory(okFn))
	assert.Equal(t, []string{CommandType, GenericType}, r.Types())
	assert.True(t, r.Has(CommandType))
	assert.False(t, r.Has("code"))
}

func TestPool_ReusesIdleWorkers(t *testing.T) {
	r := NewRegistry()
	r.Register(GenericType, stubFactory(okFn))
	p := NewPool(r)
	ctx := context.Background()
	task := &models.Task{ID: "t1"}

	w1, err := p.Acquire(ctx, "research", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, p.Busy())

	out, err := w1.Execute(ctx, Input{Task: task})
	require.NoError(t, err)
	assert.Equal(t, "done t1", out)
	assert.Equal(t, 0, p.Busy())

	w2, err := p.Acquire(ctx, "research", nil)
	require.NoError(t, err)
	assert.Equal(t, w1.ID(), w2.ID())

	w3, err := p.Acquire(ctx, "research", nil)
	require.NoError(t, err)
	assert.NotEqual(t, w2.ID(), w3.ID())

	info := p.Info()
	require.Len(t, info, 2)
	for _, wi := range info {
		assert.Equal(t, models.WorkerBusy, wi.Status)
		assert.Equal(t, "research", wi.Type)
	}
}

func TestPool_Stats(t *testing.T) {
	r := NewRegistry()
	fail := errors.New("nope")
	r.Register(GenericType, stubFactory(func(ctx context.Context, in Input) (string, error) {
		time.Sleep(5 * time.Millisecond)
		if in.Task.ID == "bad" {
			return "", fail
		}
		return "ok", nil
	}))
	p := NewPool(r)
	ctx := context.Background()

	for _, id := range []string{"a", "bad", "b"} {
		w, err := p.Acquire(ctx, GenericType, nil)
		require.NoError(t, err)
		_, err = w.Execute(ctx, Input{Task: &models.Task{ID: id}})
		if id == "bad" {
			assert.ErrorIs(t, err, fail)
		}
	}

	info := p.Info()
	require.Len(t, info, 1)
	assert.Equal(t, models.WorkerIdle, info[0].Status)
	assert.Equal(t, 2, info[0].TasksCompleted)
	assert.GreaterOrEqual(t, info[0].TotalExecutionTimeMs, int64(15))
}

func TestPool_TaskTimeout(t *testing.T) {
	r := NewRegistry()
	r.Register(GenericType, stubFactory(func(ctx context.Context, in Input) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}))
	p := NewPool(r, WithTaskTimeout(20*time.Millisecond))

	w, err := p.Acquire(context.Background(), GenericType, nil)
	require.NoError(t, err)
	_, err = w.Execute(context.Background(), Input{Task: &models.Task{ID: "slow"}})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPool_AcquireCancelled(t *testing.T) {
	r := NewRegistry()
	r.Register(GenericType, stubFactory(okFn))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewPool(r).Acquire(ctx, GenericType, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLLMWorker_Prompt(t *testing.T) {
	var gotPrompt string
	var gotOpts api.CompleteOptions
	c := api.CompleterFunc(func(ctx context.Context, prompt string, opts api.CompleteOptions) (string, error) {
		gotPrompt, gotOpts = prompt, opts
		return "  answer \n", nil
	})

	f := LLMFactory(c, func(string) string { return "an expert researcher" })
	w, err := f("research")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(w.ID(), "research-"))

	out, err := w.Execute(context.Background(), Input{
		Task:         &models.Task{ID: "t2", Name: "Summarize", Description: "Summarize findings", Intent: "research"},
		Skills:       []string{"analysis"},
		Dependencies: map[string]string{"t1": "raw findings"},
		Context:      map[string]any{"audience": "execs"},
	})
	require.NoError(t, err)
	assert.Equal(t, "answer", out)

	assert.Contains(t, gotPrompt, "Summarize findings")
	assert.Contains(t, gotPrompt, "analysis")
	assert.Contains(t, gotPrompt, "raw findings")
	assert.Contains(t, gotPrompt, "execs")
	assert.Contains(t, gotOpts.SystemPrompt, "an expert researcher")
}

func TestLLMWorker_Error(t *testing.T) {
	c := api.CompleterFunc(func(ctx context.Context, prompt string, opts api.CompleteOptions) (string, error) {
		return "", errors.New("rate limited")
	})
	w := NewLLMWorker(GenericType, c, "")
	_, err := w.Execute(context.Background(), Input{Task: &models.Task{ID: "x"}})
	assert.ErrorContains(t, err, "rate limited")

	_, err = LLMFactory(nil, nil)(GenericType)
	assert.Error(t, err)
}

type fakeRunner struct {
	res iexec.Result
	err error
	got iexec.Command
}

func (f *fakeRunner) Run(ctx context.Context, cmd iexec.Command) (iexec.Result, error) {
	f.got = cmd
	return f.res, f.err
}

func TestCommandWorker(t *testing.T) {
	runner := &fakeRunner{res: iexec.Result{Stdout: "hello\n"}}
	w := NewCommandWorker(runner, "/work")

	out, err := w.Execute(context.Background(), Input{Task: &models.Task{ID: "c", Description: " echo hello "}})
	require.NoError(t, err)
	assert.Equal(t, "hello", out)
	assert.Equal(t, "echo hello", runner.got.Script)
	assert.Equal(t, "/work", runner.got.Dir)

	runner.res = iexec.Result{ExitCode: 2, Stderr: "bad flag"}
	_, err = w.Execute(context.Background(), Input{Task: &models.Task{ID: "c", Description: "false"}})
	assert.ErrorContains(t, err, "bad flag")

	_, err = w.Execute(context.Background(), Input{Task: &models.Task{ID: "c"}})
	assert.ErrorContains(t, err, "no command")
}
