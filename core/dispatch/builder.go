package dispatch

import (
	"errors"

	"github.com/google/uuid"
)

// BuilderOption configures a RegistrationBuilder; see WithBuilderIDGenerator.
type BuilderOption func(*RegistrationBuilder)

// WithBuilderIDGenerator overrides the default uuid-based entry ID
// generator, primarily for tests that want deterministic IDs.
func WithBuilderIDGenerator(fn func() string) BuilderOption {
	return func(rb *RegistrationBuilder) { rb.idGen = fn }
}

// RegistrationBuilder fluently constructs HandlerEntry values. A builder can
// be committed globally via Dispatcher.Register, or attached to a single
// event via BaseEvent.WithCallbacks.
type RegistrationBuilder struct {
	idGen   func() string
	entries []*HandlerEntry
	err     error
}

// NewRegistrationBuilder returns an empty builder.
func NewRegistrationBuilder(opts ...BuilderOption) *RegistrationBuilder {
	rb := &RegistrationBuilder{idGen: func() string { return uuid.New().String() }}
	for _, opt := range opts {
		opt(rb)
	}
	return rb
}

// OnPhase begins configuring one or more handlers for business phase p.
func (rb *RegistrationBuilder) OnPhase(p Phase) *Step {
	return &Step{builder: rb, kind: TargetPhase, phase: p, priority: PriorityNormal, maxExecutions: -1}
}

// OnState begins configuring one or more handlers for terminal state s.
func (rb *RegistrationBuilder) OnState(s State) *Step {
	return &Step{builder: rb, kind: TargetState, state: s, priority: PriorityNormal, maxExecutions: -1}
}

// Build validates and returns the entries accumulated so far. It fails if
// any step was finalized without a handler.
func (rb *RegistrationBuilder) Build() ([]*HandlerEntry, error) {
	if rb.err != nil {
		return nil, rb.err
	}
	return rb.entries, nil
}

// Step holds the selection criteria being configured for one handler
// registration. Every configuration method returns the Step for chaining;
// Handler finalizes the entry and returns the owning builder so multiple
// OnPhase/OnState chains can be composed on one builder.
type Step struct {
	builder         *RegistrationBuilder
	kind            TargetKind
	phase           Phase
	state           State
	priority        Priority
	predicate       func(Event) bool
	instanceFilter  any
	hasInstance     bool
	maxExecutions   int
	blocksOnWaiting bool
}

// Priority sets the handler's priority (default Normal).
func (s *Step) Priority(p Priority) *Step { s.priority = p; return s }

// When sets a predicate the event must satisfy for this handler to run
// (default: always eligible).
func (s *Step) When(pred func(Event) bool) *Step { s.predicate = pred; return s }

// ForInstance restricts this handler to events whose Owner() is
// reference-equal to owner.
func (s *Step) ForInstance(owner any) *Step {
	s.instanceFilter = owner
	s.hasInstance = true
	return s
}

// MaxExecutions caps how many times this entry may run before it is
// excluded from selection (default −1, unlimited).
func (s *Step) MaxExecutions(n int) *Step { s.maxExecutions = n; return s }

// BlocksOnWaiting marks whether a Waiting return from this handler should
// count toward the outstanding-waiter total in Execute/Cleanup (default
// false).
func (s *Step) BlocksOnWaiting(b bool) *Step { s.blocksOnWaiting = b; return s }

// Handler finalizes this registration with the given callable and returns
// the owning builder, ready for another OnPhase/OnState chain or Build.
func (s *Step) Handler(fn HandlerFunc) *RegistrationBuilder {
	if fn == nil {
		s.builder.err = errors.Join(s.builder.err, ErrHandlerRequired)
		return s.builder
	}
	entry := &HandlerEntry{
		id:              s.builder.idGen(),
		targetKind:      s.kind,
		phase:           s.phase,
		state:           s.state,
		priority:        s.priority,
		predicate:       s.predicate,
		instanceFilter:  s.instanceFilter,
		hasInstance:     s.hasInstance,
		maxExecutions:   s.maxExecutions,
		handler:         fn,
		blocksOnWaiting: s.blocksOnWaiting,
	}
	s.builder.entries = append(s.builder.entries, entry)
	return s.builder
}
