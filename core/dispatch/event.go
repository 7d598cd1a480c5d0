package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event is the minimal surface the engine needs from a driven event.
// Concrete event types satisfy it by embedding *BaseEvent; the embedding
// promotes the unexported base() method, so only types built on BaseEvent
// can be dispatched.
type Event interface {
	// ID returns the event's unique identifier, assigned at construction.
	ID() string
	// EventType returns the registry key this event is dispatched under.
	EventType() string
	// Owner returns the owning domain object used for instance-scoped
	// handler filtering, or nil. Concrete event types may override the
	// promoted BaseEvent.Owner to report a different reference.
	Owner() any

	base() *BaseEvent
}

// resumptionKind identifies which of Resume/Abort/Fail was requested.
type resumptionKind uint8

const (
	kindResume resumptionKind = iota
	kindAbort
	kindFail
)

type resumptionIntent struct {
	kind resumptionKind
}

// pauseStyle distinguishes Configure's sequential pause from the
// parallel-style pause used by Execute.
type pauseStyle uint8

const (
	styleSequential pauseStyle = iota
	styleParallel
)

// pauseState is the saved position the engine resumes from.
type pauseState struct {
	style       pauseStyle
	phase       Phase
	handlers    []*HandlerEntry
	nextIndex   int
	outstanding int
}

// EventOptions configures a BaseEvent at construction.
type EventOptions struct {
	Dispatcher *Dispatcher
	Owner      any
}

// EventOption mutates EventOptions; see WithDispatcher and WithOwner.
type EventOption func(*EventOptions)

// WithDispatcher binds the event to a specific Dispatcher instead of the
// process-wide default.
func WithDispatcher(d *Dispatcher) EventOption {
	return func(o *EventOptions) { o.Dispatcher = d }
}

// WithOwner records the domain object this event belongs to, enabling
// instance-scoped handler filtering.
func WithOwner(owner any) EventOption {
	return func(o *EventOptions) { o.Owner = owner }
}

// BaseEvent carries the identity, state, data bag, and scoped-handler
// attachments of an event driven through the dispatch engine. Concrete
// event types embed *BaseEvent to satisfy the Event interface.
type BaseEvent struct {
	id        string
	eventType string
	owner     any
	createdAt time.Time

	mu sync.Mutex

	dispatcher *Dispatcher
	self       Event
	ctx        context.Context

	startedAt time.Time
	stage     Stage

	completedPhases        uint8
	isCancelled             bool
	hasFailures             bool
	isWaiting               bool
	isCompleted             bool
	dispatched              bool
	callbacksAttached       bool
	cancelledBeforeCleanup  bool
	terminalRoute           State

	deferred       *resumptionIntent
	handlerRunning bool
	pause          *pauseState

	errMessage string
	errs       []error

	data          *DataBag
	scopedEntries []*HandlerEntry
}

// NewBaseEvent constructs a new BaseEvent of the given event type. The
// event type is the registry key global handlers are registered against.
func NewBaseEvent(eventType string, opts ...EventOption) *BaseEvent {
	var o EventOptions
	for _, opt := range opts {
		opt(&o)
	}
	return &BaseEvent{
		id:         uuid.New().String(),
		eventType:  eventType,
		owner:      o.Owner,
		createdAt:  time.Now(),
		dispatcher: o.Dispatcher,
		stage:      StageUnstarted,
		data:       newDataBag(),
	}
}

func (b *BaseEvent) base() *BaseEvent { return b }

// Bind associates the concrete Event value — typically the struct embedding
// this BaseEvent — so the Dispatch/Resume/Abort/Fail convenience methods can
// call back into the dispatcher with the right receiver. Concrete event
// constructors call Bind immediately after construction:
//
//	ev := &OrderPlaced{BaseEvent: dispatch.NewBaseEvent("OrderPlaced"), OrderID: id}
//	ev.Bind(ev)
//
// Dispatcher.Dispatch also binds automatically if Bind was never called.
func (b *BaseEvent) Bind(self Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.self == nil {
		b.self = self
	}
}

// ID returns the event's unique identifier.
func (b *BaseEvent) ID() string { return b.id }

// EventType returns the registry key this event is dispatched under.
func (b *BaseEvent) EventType() string { return b.eventType }

// Owner returns the owning domain object, or nil if none was set.
func (b *BaseEvent) Owner() any { return b.owner }

// CreatedAt returns the event's construction timestamp.
func (b *BaseEvent) CreatedAt() time.Time { return b.createdAt }

// Data returns the event's keyed data bag.
func (b *BaseEvent) Data() *DataBag { return b.data }

// CurrentPhase returns the event's current stage.
func (b *BaseEvent) CurrentPhase() Stage {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stage
}

// CompletedPhases returns the business phases that have finished so far, in
// fixed phase order.
func (b *BaseEvent) CompletedPhases() []Phase {
	b.mu.Lock()
	bits := b.completedPhases
	b.mu.Unlock()
	var out []Phase
	for _, p := range businessPhases {
		if bits&bitForPhase(p) != 0 {
			out = append(out, p)
		}
	}
	return out
}

// IsCancelled reports whether any phase handler returned Cancelled, or
// Abort was called, during this dispatch.
func (b *BaseEvent) IsCancelled() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.isCancelled
}

// HasFailures reports whether any phase handler returned Failure (or
// threw), or Fail was called, during this dispatch.
func (b *BaseEvent) HasFailures() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.hasFailures
}

// IsWaiting reports whether the event is currently paused, between a
// handler's Waiting return and a subsequent Resume/Abort/Fail.
func (b *BaseEvent) IsWaiting() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.isWaiting
}

// IsCompleted reports whether the event has reached Finished.
func (b *BaseEvent) IsCompleted() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.isCompleted
}

// IsBuilt reports whether the event has either had callbacks attached or
// already been dispatched; either makes it a one-shot event going forward.
func (b *BaseEvent) IsBuilt() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dispatched || b.callbacksAttached
}

// ErrorMessage returns a human-readable summary of the most recent error,
// or the empty string.
func (b *BaseEvent) ErrorMessage() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.errMessage
}

// Errors returns a snapshot of the accumulated error list.
func (b *BaseEvent) Errors() []error {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]error, len(b.errs))
	copy(out, b.errs)
	return out
}

func (b *BaseEvent) appendErrLocked(err error) {
	b.errs = append(b.errs, err)
	b.errMessage = err.Error()
}

// WithCallbacks attaches event-scoped handlers built by rb. It may be
// called at most once, and only before Dispatch.
func (b *BaseEvent) WithCallbacks(rb *RegistrationBuilder) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.dispatched {
		return ErrAlreadyDispatched
	}
	if b.callbacksAttached {
		return ErrCallbacksAlreadyAttached
	}
	entries, err := rb.Build()
	if err != nil {
		return err
	}
	b.scopedEntries = append(b.scopedEntries, entries...)
	b.callbacksAttached = true
	return nil
}

// Dispatch begins processing this event on its bound dispatcher, or the
// process-wide default if none was set at construction. The concrete event
// must have been bound via Bind first.
func (b *BaseEvent) Dispatch(ctx context.Context) (DispatchResult, error) {
	b.mu.Lock()
	d := b.dispatcher
	self := b.self
	b.mu.Unlock()
	if self == nil {
		return DispatchUnknown, ErrNotDispatched
	}
	if d == nil {
		d = Default()
	}
	return d.Dispatch(ctx, self)
}

// Resume transitions a waiting event out of the paused state with no
// additional state change.
func (b *BaseEvent) Resume() (DispatchResult, error) { return b.signal(kindResume) }

// Abort marks the event cancelled, then behaves like Resume.
func (b *BaseEvent) Abort() (DispatchResult, error) { return b.signal(kindAbort) }

// Fail marks the event as having failures, then behaves like Resume.
func (b *BaseEvent) Fail() (DispatchResult, error) { return b.signal(kindFail) }

func (b *BaseEvent) signal(kind resumptionKind) (DispatchResult, error) {
	b.mu.Lock()
	d := b.dispatcher
	b.mu.Unlock()
	if d == nil {
		return DispatchUnknown, ErrNotDispatched
	}
	return d.signal(b.self, kind)
}
