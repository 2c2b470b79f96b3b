// Package metrics exposes Prometheus metrics for the scheduler, router and
// coordination store.
//
// All Collector methods are safe on a nil receiver so components can run
// without metrics.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "nexus"

// Collector holds the engine's Prometheus metrics.
type Collector struct {
	registry *prometheus.Registry

	tasksDispatched *prometheus.CounterVec
	tasksCompleted  *prometheus.CounterVec
	tasksFailed     *prometheus.CounterVec
	taskLatency     *prometheus.HistogramVec
	tasksInFlight   prometheus.Gauge

	schedulerRounds  prometheus.Counter
	sessionsTotal    *prometheus.CounterVec
	routingFallbacks prometheus.Counter
	storeDegraded    prometheus.Counter
}

// NewCollector creates a collector registered on reg. A nil reg gets a
// fresh registry.
func NewCollector(reg *prometheus.Registry) *Collector {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	c := &Collector{
		registry: reg,
		tasksDispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_dispatched_total",
			Help:      "Total number of tasks handed to workers",
		}, []string{"worker_type"}),
		tasksCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_completed_total",
			Help:      "Total number of tasks completed successfully",
		}, []string{"worker_type"}),
		tasksFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_failed_total",
			Help:      "Total number of tasks that failed or were cancelled",
		}, []string{"worker_type"}),
		taskLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "task_latency_seconds",
			Help:      "Task execution latency in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"worker_type"}),
		tasksInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tasks_in_flight",
			Help:      "Current number of executing tasks",
		}),
		schedulerRounds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scheduler_rounds_total",
			Help:      "Total number of scheduler dispatch rounds",
		}),
		sessionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Total number of finished sessions by outcome",
		}, []string{"status"}),
		routingFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "routing_fallbacks_total",
			Help:      "Total number of times heuristic routing replaced semantic routing",
		}),
		storeDegraded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_degraded_total",
			Help:      "Total number of switches from a shared backend to memory mode",
		}),
	}

	reg.MustRegister(
		c.tasksDispatched,
		c.tasksCompleted,
		c.tasksFailed,
		c.taskLatency,
		c.tasksInFlight,
		c.schedulerRounds,
		c.sessionsTotal,
		c.routingFallbacks,
		c.storeDegraded,
	)
	return c
}

// Registry returns the registry the collector is registered on.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

func (c *Collector) RecordDispatch(workerType string) {
	if c == nil {
		return
	}
	c.tasksDispatched.WithLabelValues(workerType).Inc()
	c.tasksInFlight.Inc()
}

func (c *Collector) RecordCompleted(workerType string, latency time.Duration) {
	if c == nil {
		return
	}
	c.tasksCompleted.WithLabelValues(workerType).Inc()
	c.taskLatency.WithLabelValues(workerType).Observe(latency.Seconds())
	c.tasksInFlight.Dec()
}

func (c *Collector) RecordFailed(workerType string, latency time.Duration) {
	if c == nil {
		return
	}
	c.tasksFailed.WithLabelValues(workerType).Inc()
	c.taskLatency.WithLabelValues(workerType).Observe(latency.Seconds())
	c.tasksInFlight.Dec()
}

func (c *Collector) RecordRound() {
	if c == nil {
		return
	}
	c.schedulerRounds.Inc()
}

func (c *Collector) RecordSession(status string) {
	if c == nil {
		return
	}
	c.sessionsTotal.WithLabelValues(status).Inc()
}

// RecordRoutingFallback matches the router's fallback hook signature.
func (c *Collector) RecordRoutingFallback(error) {
	if c == nil {
		return
	}
	c.routingFallbacks.Inc()
}

// RecordStoreDegraded matches the store's degrade hook signature.
func (c *Collector) RecordStoreDegraded(error) {
	if c == nil {
		return
	}
	c.storeDegraded.Inc()
}

// Handler serves the collector's registry in Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func (c *Collector) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
