package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sarchlab/karma/executor"
	"github.com/sarchlab/karma/hooking"
)

// MetricsHook is a hook that counts executor and peripheral events as
// Prometheus metrics. Every hook has its own registry.
type MetricsHook struct {
	registry *prometheus.Registry

	spawned   prometheus.Counter
	completed prometheus.Counter
	polls     prometheus.Counter
	wakes     prometheus.Counter
	events    *prometheus.CounterVec
}

// NewMetricsHook creates a MetricsHook with a fresh registry.
func NewMetricsHook() *MetricsHook {
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "karma",
			Subsystem: "executor",
			Name:      name,
			Help:      help,
		})
	}

	h := &MetricsHook{
		registry:  prometheus.NewRegistry(),
		spawned:   counter("tasks_spawned_total", "Total number of spawned tasks"),
		completed: counter("tasks_completed_total", "Total number of completed tasks"),
		polls:     counter("polls_total", "Total number of task polls"),
		wakes:     counter("wakes_total", "Total number of task wakes"),
		events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "karma",
				Subsystem: "peripheral",
				Name:      "events_total",
				Help:      "Total number of peripheral and history events",
			},
			[]string{"event"},
		),
	}

	h.registry.MustRegister(
		h.spawned, h.completed, h.polls, h.wakes, h.events,
		collectors.NewGoCollector(),
	)

	return h
}

// Registry returns the registry the metrics are registered to.
func (h *MetricsHook) Registry() *prometheus.Registry {
	return h.registry
}

// Handler serves the metrics in the Prometheus text format.
func (h *MetricsHook) Handler() http.Handler {
	return promhttp.HandlerFor(h.registry, promhttp.HandlerOpts{})
}

// Func counts the event.
func (h *MetricsHook) Func(ctx hooking.HookCtx) {
	switch ctx.Pos {
	case executor.HookPosTaskSpawn:
		h.spawned.Inc()
	case executor.HookPosTaskDone:
		h.completed.Inc()
	case executor.HookPosAfterPoll:
		h.polls.Inc()
	case executor.HookPosTaskWake:
		h.wakes.Inc()
	case executor.HookPosBeforePoll:
	default:
		h.events.WithLabelValues(ctx.Pos.Name).Inc()
	}
}

var _ hooking.Hook = (*MetricsHook)(nil)
