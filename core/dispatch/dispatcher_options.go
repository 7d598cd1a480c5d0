package dispatch

import "log/slog"

// DispatcherOption configures a Dispatcher at construction time.
type DispatcherOption func(*Dispatcher)

// WithLogger overrides the default discard logger.
func WithLogger(logger *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithRegistry overrides the default empty Registry, e.g. to share one
// registry across multiple Dispatcher instances in tests.
func WithRegistry(r *Registry) DispatcherOption {
	return func(d *Dispatcher) {
		if r != nil {
			d.registry = r
		}
	}
}

// WithIDGenerator overrides the default uuid-based handler-entry ID
// generator used by Register, primarily for deterministic tests.
func WithIDGenerator(fn func() string) DispatcherOption {
	return func(d *Dispatcher) {
		if fn != nil {
			d.idGen = fn
		}
	}
}

// WithMetrics attaches a Prometheus-backed metrics collector. See
// NewMetricsCollector.
func WithMetrics(m *metricsCollector) DispatcherOption {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithTracing turns on per-dispatch trace recording, retrievable via
// Dispatcher.Trace. Disabled by default, since recording every handler
// transition has a cost.
func WithTracing() DispatcherOption {
	return func(d *Dispatcher) { d.tracing = true }
}
