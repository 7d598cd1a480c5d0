package dispatch

import "sync"

var (
	defaultOnce sync.Once
	defaultInst *Dispatcher
)

// Default returns the process-wide Dispatcher, constructing it with no
// options on first use. Events built with WithDispatcher bypass this; it
// exists so small programs can dispatch without standing up their own
// Dispatcher.
func Default() *Dispatcher {
	defaultOnce.Do(func() {
		defaultInst = NewDispatcher()
	})
	return defaultInst
}

// SetDefault replaces the process-wide Dispatcher returned by Default. It is
// meant for tests and for composition roots that want the default wired
// with their own logger, registry, or metrics before any event is
// dispatched through it.
func SetDefault(d *Dispatcher) {
	defaultOnce.Do(func() {})
	defaultInst = d
}
