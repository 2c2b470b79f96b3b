package coord

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShayCichocki/nexus/pkg/models"
)

type recorder struct {
	mu     sync.Mutex
	events []models.Event
}

func (r *recorder) handle(ev models.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func TestEventChannel_MemoryMode(t *testing.T) {
	ctx := context.Background()
	ch := NewEventChannel(Open(ctx, nil))
	defer ch.Close()

	var first, second recorder
	unsubFirst := ch.Subscribe(first.handle)
	ch.Subscribe(second.handle)

	ev := models.Event{Kind: models.EventTaskStarted, SessionID: "s1", TaskID: "a", Timestamp: time.Now()}
	require.NoError(t, ch.Publish(ctx, ev))
	assert.Equal(t, 1, first.len())
	assert.Equal(t, 1, second.len())
	assert.Equal(t, models.EventTaskStarted, first.events[0].Kind)

	unsubFirst()
	unsubFirst()
	require.NoError(t, ch.Publish(ctx, ev))
	assert.Equal(t, 1, first.len())
	assert.Equal(t, 2, second.len())
}

func TestEventChannel_RedisCrossProcess(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	pub := NewEventChannel(newRedisStore(t, mr))
	defer pub.Close()
	sub := NewEventChannel(newRedisStore(t, mr))
	defer sub.Close()

	var local, remote recorder
	pub.Subscribe(local.handle)
	sub.Subscribe(remote.handle)

	ev := models.Event{Kind: models.EventSessionStarted, SessionID: "s1", Payload: map[string]any{"tasks": 2}}
	require.NoError(t, pub.Publish(ctx, ev))

	assert.Eventually(t, func() bool { return remote.len() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, models.EventSessionStarted, remote.events[0].Kind)
	assert.Equal(t, "s1", remote.events[0].SessionID)

	// The publisher's own listener sees the event once, not again via redis.
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, local.len())
}

func TestEventChannel_SurvivesDegrade(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	store := newRedisStore(t, mr)
	ch := NewEventChannel(store)
	defer ch.Close()

	var got recorder
	ch.Subscribe(got.handle)

	mr.Close()
	require.NoError(t, ch.Publish(ctx, models.Event{Kind: models.EventTaskFailed, SessionID: "s1"}))
	assert.Equal(t, 1, got.len())
	assert.Equal(t, ModeMemory, store.Mode())
}
