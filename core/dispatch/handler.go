package dispatch

import "sync/atomic"

// HandlerFunc is the callable invoked by the engine during a phase or
// terminal state.
type HandlerFunc func(hctx *HandlerContext) PhaseResult

// HandlerEntry is the registration record describing one handler: its
// identity, selection criteria, and the handler callable itself. All
// fields are fixed at construction except ExecutionCount, which the engine
// increments on every invocation.
type HandlerEntry struct {
	id              string
	targetKind      TargetKind
	phase           Phase
	state           State
	priority        Priority
	predicate       func(Event) bool
	instanceFilter  any
	hasInstance     bool
	maxExecutions   int
	executionCount  atomic.Int64
	handler         HandlerFunc
	blocksOnWaiting bool
}

// ID returns the handler entry's identity, assigned by its builder.
func (e *HandlerEntry) ID() string { return e.id }

// Priority returns the entry's configured priority.
func (e *HandlerEntry) Priority() Priority { return e.priority }

// ExecutionCount returns how many times this entry has been invoked so far.
func (e *HandlerEntry) ExecutionCount() int64 { return e.executionCount.Load() }

// BlocksOnWaiting reports whether a Waiting return from this entry should
// count toward the phase's outstanding-waiter total in Execute/Cleanup.
func (e *HandlerEntry) BlocksOnWaiting() bool { return e.blocksOnWaiting }

// target returns the Stage this entry is registered against, regardless of
// whether it targets a business phase or a terminal state.
func (e *HandlerEntry) target() Stage {
	if e.targetKind == TargetPhase {
		return e.phase
	}
	return e.state
}

// eligible applies the three selection filters in the order specified:
// MaxExecutions, InstanceFilter, Predicate.
func (e *HandlerEntry) eligible(ev Event, owner any) bool {
	if e.maxExecutions >= 0 && e.executionCount.Load() >= int64(e.maxExecutions) {
		return false
	}
	if e.hasInstance && e.instanceFilter != owner {
		return false
	}
	if e.predicate != nil && !e.predicate(ev) {
		return false
	}
	return true
}
