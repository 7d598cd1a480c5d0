package dispatch

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// metricsCollector exposes RED-style Prometheus metrics for a Dispatcher.
// A nil *metricsCollector is valid and simply records nothing, so callers
// never need to guard their own call sites.
type metricsCollector struct {
	dispatchesTotal   *prometheus.CounterVec
	dispatchDuration  prometheus.Histogram
	activeDispatches  prometheus.Gauge
	handlerInvocations *prometheus.CounterVec
}

// NewMetricsCollector builds a metrics collector and registers its metrics
// with reg. Pass prometheus.NewRegistry() for an isolated registry, or the
// default prometheus.DefaultRegisterer to expose metrics process-wide.
func NewMetricsCollector(reg prometheus.Registerer) *metricsCollector {
	c := &metricsCollector{
		dispatchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "phaseflow_dispatches_total",
			Help: "Total number of Dispatch calls, by the result they returned (including Waiting).",
		}, []string{"result"}),
		dispatchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "phaseflow_dispatch_duration_seconds",
			Help:    "Dispatch wall-clock duration from Dispatch to a terminal return; Dispatch calls that return Waiting are not observed.",
			Buckets: prometheus.DefBuckets,
		}),
		activeDispatches: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "phaseflow_active_dispatches",
			Help: "Number of Dispatch calls currently running; paused dispatches are not counted.",
		}),
		handlerInvocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "phaseflow_handler_invocations_total",
			Help: "Total number of handler invocations, by phase and result.",
		}, []string{"phase", "result"}),
	}
	reg.MustRegister(c.dispatchesTotal, c.dispatchDuration, c.activeDispatches, c.handlerInvocations)
	return c
}

func (d *Dispatcher) observeDispatch(b *BaseEvent, result DispatchResult) {
	if d.metrics == nil {
		return
	}
	d.metrics.dispatchesTotal.WithLabelValues(result.String()).Inc()
	if result != DispatchWaiting {
		d.metrics.dispatchDuration.Observe(time.Since(b.startedAt).Seconds())
	}
	d.metrics.activeDispatches.Set(float64(d.activeDispatches.Load()))
}

func (d *Dispatcher) observeHandler(phase Stage, result PhaseResult) {
	if d.metrics == nil {
		return
	}
	d.metrics.handlerInvocations.WithLabelValues(phase.String(), result.String()).Inc()
}
