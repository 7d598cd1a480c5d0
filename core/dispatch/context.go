package dispatch

import (
	"context"
	"time"
)

// HandlerContext is the read-only view passed to a handler during
// invocation, plus the Resume/Abort/Fail control surface bound to the
// event being processed.
type HandlerContext struct {
	ctx       context.Context
	event     *BaseEvent
	phase     Stage
	priority  Priority
	ordinal   int
	startedAt time.Time
}

// Context returns the context.Context supplied to Dispatch, propagated
// unchanged across Resume/Abort/Fail re-entries.
func (c *HandlerContext) Context() context.Context { return c.ctx }

// Phase returns the stage this invocation belongs to: a business phase
// while handlers are running, or a terminal state while terminal handlers
// are running.
func (c *HandlerContext) Phase() Stage { return c.phase }

// Priority returns the invoked handler's own configured priority.
func (c *HandlerContext) Priority() Priority { return c.priority }

// Ordinal returns the handler's position (zero-based) within this phase's
// selected, sorted handler list.
func (c *HandlerContext) Ordinal() int { return c.ordinal }

// ElapsedTime returns the time elapsed since Dispatch began for this
// event. Handlers that want timeout-like behavior consult this directly;
// the engine itself never imposes timeouts.
func (c *HandlerContext) ElapsedTime() time.Duration { return time.Since(c.startedAt) }

// Errors returns a snapshot of the error list accumulated so far.
func (c *HandlerContext) Errors() []error { return c.event.Errors() }

// Data returns the event's keyed data bag.
func (c *HandlerContext) Data() *DataBag { return c.event.data }

// Event returns the event being processed.
func (c *HandlerContext) Event() Event { return c.event.self }

// Resume signals that the asynchronous work this handler was waiting on has
// completed successfully. Safe to call from any goroutine, including
// synchronously from inside the handler itself before it returns Waiting.
func (c *HandlerContext) Resume() (DispatchResult, error) { return c.event.Resume() }

// Abort signals cancellation of the asynchronous work this handler was
// waiting on. Safe to call from any goroutine, including synchronously from
// inside the handler itself before it returns Waiting.
func (c *HandlerContext) Abort() (DispatchResult, error) { return c.event.Abort() }

// Fail signals failure of the asynchronous work this handler was waiting
// on. Safe to call from any goroutine, including synchronously from inside
// the handler itself before it returns Waiting.
func (c *HandlerContext) Fail() (DispatchResult, error) { return c.event.Fail() }
