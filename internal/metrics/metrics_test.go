package metrics

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCollector(t *testing.T) {
	c := NewCollector(nil)
	require.NotNil(t, c)
	assert.NotNil(t, c.Registry())

	// Two collectors on separate registries do not collide.
	assert.NotPanics(t, func() { NewCollector(prometheus.NewRegistry()) })
}

func TestCollector_TaskCounters(t *testing.T) {
	c := NewCollector(nil)

	c.RecordDispatch("code")
	c.RecordDispatch("code")
	c.RecordDispatch("research")
	assert.Equal(t, 3.0, testutil.ToFloat64(c.tasksInFlight))

	c.RecordCompleted("code", 2*time.Second)
	c.RecordFailed("research", time.Second)
	assert.Equal(t, 2.0, testutil.ToFloat64(c.tasksDispatched.WithLabelValues("code")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.tasksCompleted.WithLabelValues("code")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.tasksFailed.WithLabelValues("research")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.tasksInFlight))
	assert.Equal(t, 2, testutil.CollectAndCount(c.taskLatency))
}

func TestCollector_Hooks(t *testing.T) {
	c := NewCollector(nil)

	c.RecordRoutingFallback(errors.New("timeout"))
	c.RecordStoreDegraded(errors.New("refused"))
	c.RecordStoreDegraded(nil)
	c.RecordRound()
	c.RecordSession("completed")

	assert.Equal(t, 1.0, testutil.ToFloat64(c.routingFallbacks))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.storeDegraded))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.schedulerRounds))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.sessionsTotal.WithLabelValues("completed")))
}

func TestCollector_NilIsNoop(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.RecordDispatch("x")
		c.RecordCompleted("x", time.Second)
		c.RecordFailed("x", time.Second)
		c.RecordRound()
		c.RecordSession("failed")
		c.RecordRoutingFallback(nil)
		c.RecordStoreDegraded(nil)
	})
	assert.Nil(t, c.Registry())
}

func TestCollector_Handler(t *testing.T) {
	c := NewCollector(nil)
	c.RecordDispatch("generic")

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	assert.Equal(t, 200, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `nexus_tasks_dispatched_total{worker_type="generic"} 1`), body)
}
