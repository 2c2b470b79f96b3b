package coord

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShayCichocki/nexus/pkg/models"
)

// fakeBackend is an in-process Backend that can be switched off.
type fakeBackend struct {
	mu      sync.Mutex
	down    bool
	failErr error
	data    map[string]map[string]string
	closed  bool
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{data: make(map[string]map[string]string)}
}

func (f *fakeBackend) setDown(down bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.down = down
}

func (f *fakeBackend) check() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return fmt.Errorf("dial tcp 127.0.0.1:6379: %w", syscall.ECONNREFUSED)
	}
	return f.failErr
}

func (f *fakeBackend) Name() string { return "fake" }

func (f *fakeBackend) Ping(ctx context.Context) error { return f.check() }

func (f *fakeBackend) SaveSession(ctx context.Context, id string, fields map[string]string, ttl time.Duration) error {
	if err := f.check(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.data[id] == nil {
		f.data[id] = make(map[string]string)
	}
	for k, v := range fields {
		f.data[id][k] = v
	}
	return nil
}

func (f *fakeBackend) LoadSession(ctx context.Context, id string) (map[string]string, error) {
	if err := f.check(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	fields, ok := f.data[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	out := make(map[string]string, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out, nil
}

func (f *fakeBackend) DeleteSession(ctx context.Context, id string) error {
	if err := f.check(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.data, id)
	return nil
}

func (f *fakeBackend) Publish(ctx context.Context, channel string, payload []byte) error {
	return f.check()
}

func (f *fakeBackend) Subscribe(ctx context.Context, channel string) (Subscription, error) {
	return nil, errors.New("not supported")
}

func (f *fakeBackend) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func testPlan() *models.Plan {
	return &models.Plan{
		Intent: models.Intent{Type: "research", Complexity: models.ComplexityModerate},
		Steps: []models.PlanStep{
			{ID: "a", Name: "first", AgentType: "research"},
			{ID: "b", Name: "second", AgentType: "writing", Dependencies: []string{"a"}},
		},
	}
}

func TestStore_MemoryMode(t *testing.T) {
	ctx := context.Background()
	s := Open(ctx, nil)
	assert.Equal(t, ModeMemory, s.Mode())
	assert.False(t, s.Degraded())

	created, err := s.CreateSession(ctx, "s1", testPlan())
	require.NoError(t, err)
	assert.Equal(t, models.SessionRunning, created.Status)
	assert.Equal(t, "research", created.Intent)
	assert.Equal(t, 2, created.Metrics.TotalTasks)

	now := time.Now()
	require.NoError(t, s.RecordTaskState(ctx, "s1", "a", models.TaskState{
		Status: models.TaskStatusCompleted, AgentType: "research", Result: "found", CompletedAt: &now,
	}))
	require.NoError(t, s.UpdateStatus(ctx, "s1", models.SessionCompleted))

	got, err := s.GetState(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, models.SessionCompleted, got.Status)
	assert.Equal(t, 1, got.Metrics.CompletedTasks)
	assert.Equal(t, "found", got.Tasks["a"].Result)
	assert.Equal(t, models.TaskStatusPending, got.Tasks["b"].Status)

	// Returned states are copies.
	got.Tasks["a"] = models.TaskState{}
	again, err := s.GetState(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "found", again.Tasks["a"].Result)

	require.NoError(t, s.DeleteSession(ctx, "s1"))
	_, err = s.GetState(ctx, "s1")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestStore_UnknownSession(t *testing.T) {
	ctx := context.Background()
	s := Open(ctx, nil)

	assert.ErrorIs(t, s.UpdateStatus(ctx, "missing", models.SessionFailed), ErrSessionNotFound)
	assert.ErrorIs(t, s.RecordTaskState(ctx, "missing", "a", models.TaskState{}), ErrSessionNotFound)
	assert.Error(t, s.UpdateStatus(ctx, "missing", models.SessionStatus("bogus")))
}

func TestStore_TTLExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	s := Open(ctx, nil, WithSessionTTL(time.Hour), WithClock(clock))

	_, err := s.CreateSession(ctx, "old", testPlan())
	require.NoError(t, err)
	now = now.Add(30 * time.Minute)
	_, err = s.CreateSession(ctx, "new", testPlan())
	require.NoError(t, err)

	now = now.Add(45 * time.Minute)
	assert.Equal(t, 1, s.Sweep())

	_, err = s.GetState(ctx, "old")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = s.GetState(ctx, "new")
	assert.NoError(t, err)

	now = now.Add(time.Hour)
	_, err = s.GetState(ctx, "new")
	assert.ErrorIs(t, err, ErrSessionNotFound, "expired lazily on read")
}

func TestStore_UnreachableBackendAtOpen(t *testing.T) {
	ctx := context.Background()
	b := newFakeBackend()
	b.setDown(true)

	var hooked int
	s := Open(ctx, b, WithDegradeHook(func(error) { hooked++ }))
	assert.Equal(t, ModeMemory, s.Mode())
	assert.True(t, s.Degraded())
	assert.Equal(t, 1, hooked)
	assert.True(t, b.closed)

	_, err := s.CreateSession(ctx, "s1", testPlan())
	assert.NoError(t, err)
}

func TestStore_DegradesOnConnectionLoss(t *testing.T) {
	ctx := context.Background()
	b := newFakeBackend()

	var hooked int
	s := Open(ctx, b, WithDegradeHook(func(error) { hooked++ }))
	require.Equal(t, "fake", s.Mode())

	_, err := s.CreateSession(ctx, "s1", testPlan())
	require.NoError(t, err)
	assert.Equal(t, "s1", b.data["s1"][fieldSessionID])
	assert.Contains(t, b.data["s1"], fieldPlan)

	b.setDown(true)
	require.NoError(t, s.RecordTaskState(ctx, "s1", "a", models.TaskState{Status: models.TaskStatusRunning}))
	assert.Equal(t, ModeMemory, s.Mode())
	assert.True(t, s.Degraded())

	// Backend recovering does not switch the store back.
	b.setDown(false)
	require.NoError(t, s.RecordTaskState(ctx, "s1", "a", models.TaskState{Status: models.TaskStatusCompleted}))
	assert.Equal(t, ModeMemory, s.Mode())
	assert.Equal(t, 1, hooked)

	got, err := s.GetState(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusCompleted, got.Tasks["a"].Status)
	assert.Equal(t, 1, got.Metrics.CompletedTasks)
}

func TestStore_OtherErrorsAreReturned(t *testing.T) {
	ctx := context.Background()
	b := newFakeBackend()
	s := Open(ctx, b)

	_, err := s.CreateSession(ctx, "s1", testPlan())
	require.NoError(t, err)

	b.failErr = errors.New("WRONGTYPE Operation against a key holding the wrong kind of value")
	err = s.UpdateStatus(ctx, "s1", models.SessionFailed)
	assert.Error(t, err)
	assert.False(t, s.Degraded())
	assert.Equal(t, "fake", s.Mode())
}

func TestStore_ReadsOtherProcessSessions(t *testing.T) {
	ctx := context.Background()
	b := newFakeBackend()
	writer := Open(ctx, b)
	reader := Open(ctx, b)

	_, err := writer.CreateSession(ctx, "shared", testPlan())
	require.NoError(t, err)
	require.NoError(t, writer.UpdateStatus(ctx, "shared", models.SessionFailed))

	got, err := reader.GetState(ctx, "shared")
	require.NoError(t, err)
	assert.Equal(t, models.SessionFailed, got.Status)
	require.NotNil(t, got.Plan)
	assert.Len(t, got.Plan.Steps, 2)
}

func TestIsConnectionError(t *testing.T) {
	assert.False(t, IsConnectionError(nil))
	assert.False(t, IsConnectionError(errors.New("boom")))
	assert.True(t, IsConnectionError(ErrBackendUnavailable))
	assert.True(t, IsConnectionError(fmt.Errorf("x: %w", syscall.ECONNREFUSED)))
}

func TestSessionKey(t *testing.T) {
	assert.Equal(t, "nexus:session:abc", SessionKey("abc"))
}
