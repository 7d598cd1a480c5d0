package dispatch_test

import "github.com/go-lsutils/phaseflow/core/dispatch"

// probeEvent is a minimal concrete Event used across this package's tests.
type probeEvent struct {
	*dispatch.BaseEvent
	Name string
}

func newProbeEvent(opts ...dispatch.EventOption) *probeEvent {
	ev := &probeEvent{BaseEvent: dispatch.NewBaseEvent("Probe", opts...)}
	ev.Bind(ev)
	return ev
}

// always returns a handler that appends label to log and returns result.
func always(log *[]string, label string, result dispatch.PhaseResult) dispatch.HandlerFunc {
	return func(hctx *dispatch.HandlerContext) dispatch.PhaseResult {
		*log = append(*log, label)
		return result
	}
}
