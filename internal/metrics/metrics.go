// Package metrics exports Prometheus metrics derived from a run's event
// stream.
package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/roach88/runview/internal/event"
)

// Namespace prefixes every metric name.
const Namespace = "runview"

// Collector turns lifecycle events into metrics.
//
// Thread-safety: Record may be called concurrently; the underlying
// Prometheus collectors are safe for concurrent use.
type Collector struct {
	eventsTotal   *prometheus.CounterVec
	testsTotal    *prometheus.CounterVec
	hookFailures  prometheus.Counter
	runsTotal     prometheus.Counter
	runsActive    prometheus.Gauge
	testDuration  *prometheus.HistogramVec
	slowTests     prometheus.Counter
	lastRunTotal  prometheus.Gauge
	lastRunFailed prometheus.Gauge
}

// New registers the collectors on reg. Registering twice on the same
// registry panics.
func New(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)
	return &Collector{
		eventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "events_total",
			Help:      "Count of lifecycle events by kind",
		}, []string{"kind"}),
		testsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "tests_total",
			Help:      "Count of finished tests by result",
		}, []string{"result"}),
		hookFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "hook_failures_total",
			Help:      "Count of failed setup and teardown hooks",
		}),
		runsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "runs_total",
			Help:      "Count of started runs",
		}),
		runsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "runs_active",
			Help:      "Runs started but not yet ended",
		}),
		testDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "test_duration_seconds",
			Help:      "Duration of executed tests",
			Buckets:   []float64{.001, .005, .01, .025, .05, .075, .1, .25, .5, 1, 2.5, 5},
		}, []string{"result"}),
		slowTests: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "slow_tests_total",
			Help:      "Count of tests that took longer than their slow threshold",
		}),
		lastRunTotal: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "last_run_tests",
			Help:      "Tests announced by the most recent run",
		}),
		lastRunFailed: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "last_run_failures",
			Help:      "Failures seen so far in the most recent run",
		}),
	}
}

// Attach records every event src delivers.
func (c *Collector) Attach(src interface {
	SubscribeAll(func(event.Kind, event.Payload))
}) {
	src.SubscribeAll(c.Record)
}

// Record updates the metrics for one event. Synthetic events are counted
// by kind only.
func (c *Collector) Record(kind event.Kind, p event.Payload) {
	c.eventsTotal.WithLabelValues(kindLabel(kind)).Inc()
	if p.Synthetic {
		return
	}

	switch kind {
	case event.Start:
		c.runsTotal.Inc()
		c.runsActive.Inc()
		c.lastRunTotal.Set(float64(p.Total))
		c.lastRunFailed.Set(0)
	case event.End:
		c.runsActive.Dec()
	case event.Pass:
		c.testsTotal.WithLabelValues(string(event.StatePassed)).Inc()
	case event.Fail:
		c.lastRunFailed.Inc()
		if p.Test != nil && p.Test.Type == event.UnitHook {
			c.hookFailures.Inc()
			return
		}
		c.testsTotal.WithLabelValues(string(event.StateFailed)).Inc()
	case event.Pending:
		c.testsTotal.WithLabelValues(string(event.StatePending)).Inc()
	case event.TestEnd:
		c.observe(p.Test)
	}
}

func (c *Collector) observe(t *event.TestInfo) {
	if t == nil || t.Type != event.UnitTest || t.Pending || t.State == event.StatePending {
		return
	}
	c.testDuration.WithLabelValues(string(t.State)).Observe(t.Duration.Seconds())
	if t.Slow > 0 && t.Duration > t.Slow {
		c.slowTests.Inc()
	}
}

func kindLabel(k event.Kind) string {
	return strings.ReplaceAll(k.String(), " ", "_")
}
