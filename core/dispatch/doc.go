// Package dispatch drives a single Event through a fixed sequence of
// business phases — Validate, Configure, Execute, Cleanup — followed by a
// terminal state — Success or Cancelled — and on to Completed and
// Finished.
//
// # Core Concepts
//
//   - Events are one-shot: an Event is built, optionally given event-scoped
//     handlers via WithCallbacks, dispatched exactly once, and discarded.
//   - Handlers are selected per phase from a union of globally registered
//     handlers (Dispatcher.Register) and handlers scoped to the one event
//     being dispatched (BaseEvent.WithCallbacks), filtered by MaxExecutions,
//     InstanceFilter, and Predicate, then run in Priority order.
//   - A handler's return value — Success, Failure, Cancelled, Waiting, or
//     SkipRemaining — drives the phase forward, stops it early, or pauses
//     the whole dispatch until Resume, Abort, or Fail is called.
//
// # Quick Start
//
//	type OrderPlaced struct {
//	    *dispatch.BaseEvent
//	    OrderID string
//	}
//
//	func NewOrderPlaced(orderID string) *OrderPlaced {
//	    ev := &OrderPlaced{BaseEvent: dispatch.NewBaseEvent("OrderPlaced"), OrderID: orderID}
//	    ev.Bind(ev)
//	    return ev
//	}
//
//	dispatch.Default().Register("OrderPlaced", func(rb *dispatch.RegistrationBuilder) {
//	    rb.OnPhase(dispatch.PhaseExecute).Priority(dispatch.PriorityHigh).
//	        Handler(func(hctx *dispatch.HandlerContext) dispatch.PhaseResult {
//	            return dispatch.ResultSuccess
//	        })
//	})
//
//	result, err := NewOrderPlaced("ord_1").Dispatch(context.Background())
//
// # Pausing and Resuming
//
// A handler that starts asynchronous work returns Waiting and calls Resume,
// Abort, or Fail once that work finishes — from any goroutine, including
// synchronously before the Waiting return itself. Configure pauses the
// whole dispatch at that handler; Execute keeps invoking the remaining
// handlers in the phase and only blocks once all of them have run and at
// least one BlocksOnWaiting handler is still outstanding. Cleanup never
// blocks the terminal Success/Cancelled transition on an outstanding
// waiter, matching its best-effort, non-critical role.
//
// # Concurrency
//
// Handlers belonging to one Event never run concurrently with each other:
// the engine is a single-threaded loop per dispatch. Independent Events may
// be dispatched concurrently from separate goroutines against the same
// Dispatcher; the handler Registry and each Event's own state are guarded
// by separate locks.
package dispatch
