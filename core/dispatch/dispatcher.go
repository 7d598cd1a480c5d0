package dispatch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"runtime/debug"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Dispatcher is the engine: it owns the handler registry, runs the phase
// state machine for each event it dispatches, and fires terminal-state
// handlers. A Dispatcher is safe for concurrent use by multiple goroutines
// dispatching different events; handlers for a single event never run
// concurrently with each other.
type Dispatcher struct {
	registry *Registry
	logger   *slog.Logger
	idGen    func() string
	metrics  *metricsCollector
	tracing  bool

	tracesMu sync.Mutex
	traces   map[string]*Trace

	dispatchesStarted  atomic.Int64
	dispatchesFinished atomic.Int64
	dispatchesFailed   atomic.Int64
	activeDispatches   atomic.Int32
	lastActivityAt     atomic.Int64
}

// DispatcherStats reports observability metrics for monitoring and
// debugging, independent of whether WithMetrics was configured.
type DispatcherStats struct {
	DispatchesStarted  int64
	DispatchesFinished int64
	DispatchesFailed   int64
	ActiveDispatches   int32
	LastActivityAt     time.Time
}

// NewDispatcher constructs a Dispatcher with the given options.
func NewDispatcher(opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		registry: NewRegistry(),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		idGen:    func() string { return uuid.New().String() },
		traces:   make(map[string]*Trace),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Register builds and registers handler entries globally for eventType,
// returning their assigned IDs.
func (d *Dispatcher) Register(eventType string, configure func(*RegistrationBuilder)) ([]string, error) {
	rb := NewRegistrationBuilder(WithBuilderIDGenerator(d.idGen))
	configure(rb)
	entries, err := rb.Build()
	if err != nil {
		return nil, err
	}
	return d.registry.Register(eventType, entries...), nil
}

// Unregister removes a single global handler entry by ID.
func (d *Dispatcher) Unregister(eventType, id string) bool {
	return d.registry.Remove(eventType, id)
}

// Dispatch begins processing ev: it fails with ErrAlreadyDispatched if ev
// was already dispatched, otherwise it binds ev to this dispatcher and
// drives the phase state machine to completion or to a pause point.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) (DispatchResult, error) {
	b := ev.base()
	b.mu.Lock()
	if b.dispatched {
		b.mu.Unlock()
		return DispatchUnknown, ErrAlreadyDispatched
	}
	b.dispatched = true
	b.dispatcher = d
	if b.self == nil {
		b.self = ev
	}
	b.ctx = ctx
	b.startedAt = time.Now()
	b.stage = StageValidate
	b.mu.Unlock()

	d.dispatchesStarted.Add(1)
	d.activeDispatches.Add(1)
	d.lastActivityAt.Store(time.Now().UnixNano())
	d.logger.DebugContext(ctx, "dispatch started",
		slog.String("event_id", b.id), slog.String("event_type", b.eventType))

	result, err := d.drive(b)

	d.activeDispatches.Add(-1)
	if result != DispatchWaiting {
		d.dispatchesFinished.Add(1)
		if result == DispatchFailure {
			d.dispatchesFailed.Add(1)
		}
	}
	d.observeDispatch(b, result)
	d.logger.DebugContext(ctx, "dispatch returned",
		slog.String("event_id", b.id), slog.String("result", result.String()))
	return result, err
}

// Resume transitions a waiting event out of the paused state with no
// additional state change and drives it forward.
func (d *Dispatcher) Resume(ev Event) (DispatchResult, error) { return d.signal(ev, kindResume) }

// Abort marks the event cancelled, then behaves like Resume.
func (d *Dispatcher) Abort(ev Event) (DispatchResult, error) { return d.signal(ev, kindAbort) }

// Fail marks the event as having failures, then behaves like Resume.
func (d *Dispatcher) Fail(ev Event) (DispatchResult, error) { return d.signal(ev, kindFail) }

// Stats returns current dispatcher statistics.
func (d *Dispatcher) Stats() DispatcherStats {
	var last time.Time
	if ns := d.lastActivityAt.Load(); ns > 0 {
		last = time.Unix(0, ns)
	}
	return DispatcherStats{
		DispatchesStarted:  d.dispatchesStarted.Load(),
		DispatchesFinished: d.dispatchesFinished.Load(),
		DispatchesFailed:   d.dispatchesFailed.Load(),
		ActiveDispatches:   d.activeDispatches.Load(),
		LastActivityAt:     last,
	}
}

// Healthcheck reports whether the dispatcher looks operational. It never
// blocks and never touches a specific event; it is a coarse signal meant
// for liveness/readiness probes.
func (d *Dispatcher) Healthcheck() error {
	stats := d.Stats()
	if stats.ActiveDispatches < 0 {
		return fmt.Errorf("%w: negative active dispatch count", ErrHealthcheckFailed)
	}
	return nil
}

// signal is the shared implementation behind Resume/Abort/Fail, for both
// the Dispatcher-level and Event/HandlerContext-level entry points.
func (d *Dispatcher) signal(ev Event, kind resumptionKind) (DispatchResult, error) {
	b := ev.base()
	b.mu.Lock()
	if !b.dispatched {
		b.mu.Unlock()
		return DispatchUnknown, ErrInvalidResumption
	}

	// Pre-unwind race: Resume/Abort/Fail invoked synchronously from inside
	// the same handler call that is about to return Waiting. IsWaiting is
	// still false here because the engine has not yet processed that
	// return. Record the intent and return without re-entering the engine.
	if b.handlerRunning && !b.isWaiting {
		b.deferred = &resumptionIntent{kind: kind}
		b.mu.Unlock()
		return DispatchWaiting, nil
	}

	if !b.isWaiting || b.pause == nil {
		b.mu.Unlock()
		return DispatchUnknown, ErrInvalidResumption
	}

	switch kind {
	case kindAbort:
		b.isCancelled = true
	case kindFail:
		b.hasFailures = true
	}

	pause := b.pause
	b.pause = nil
	b.isWaiting = false

	if pause.style == styleSequential {
		// Restore the pause so runPhase picks up mid-loop at nextIndex.
		b.pause = pause
		b.mu.Unlock()
		return d.drive(b)
	}

	pause.outstanding--
	if pause.outstanding > 0 {
		b.pause = pause
		b.isWaiting = true
		b.mu.Unlock()
		return DispatchWaiting, nil
	}
	b.completedPhases |= bitForPhase(pause.phase)
	b.stage = nextStageAfterPhase(b, pause.phase)
	b.mu.Unlock()
	return d.drive(b)
}

// drive runs the state machine forward from b.stage until the event
// finishes or pauses.
func (d *Dispatcher) drive(b *BaseEvent) (DispatchResult, error) {
	for {
		b.mu.Lock()
		stage := b.stage
		b.mu.Unlock()

		switch stage {
		case StageValidate, StageConfigure, StageExecute:
			paused, next := d.runPhase(b, stage)
			if paused {
				return DispatchWaiting, nil
			}
			b.mu.Lock()
			b.stage = next
			b.mu.Unlock()

		case StageCleanup:
			b.mu.Lock()
			b.cancelledBeforeCleanup = b.isCancelled
			b.mu.Unlock()
			paused, next := d.runPhase(b, stage)
			if paused {
				return DispatchWaiting, nil
			}
			b.mu.Lock()
			b.stage = next
			b.mu.Unlock()

		case StageSuccess, StageCancelled:
			b.mu.Lock()
			skipHandlers := stage == StageSuccess && b.hasFailures
			b.mu.Unlock()
			if !skipHandlers {
				d.runTerminal(b, stage)
			}
			b.mu.Lock()
			b.terminalRoute = stage
			b.stage = StageCompleted
			b.mu.Unlock()

		case StageCompleted:
			d.runTerminal(b, StageCompleted)
			b.mu.Lock()
			b.stage = StageFinished
			b.mu.Unlock()

		case StageFinished:
			b.mu.Lock()
			b.isCompleted = true
			b.scopedEntries = nil
			result := finalResult(b)
			b.mu.Unlock()
			return result, nil
		}
	}
}

// nextStageAfterPhase decides the next stage once phase has genuinely
// finished (exhausted its handlers, or stopped early via Cancelled /
// SkipRemaining, or — for Execute — had its outstanding waiters resolved).
func nextStageAfterPhase(b *BaseEvent, phase Phase) Stage {
	if phase != PhaseCleanup && b.isCancelled {
		return StageCancelled
	}
	if phase == PhaseCleanup {
		if b.cancelledBeforeCleanup {
			return StageCancelled
		}
		return StageSuccess
	}
	return nextBusinessPhase(phase)
}

func finalResult(b *BaseEvent) DispatchResult {
	if b.terminalRoute == StageCancelled {
		return DispatchCancelled
	}
	if b.hasFailures {
		return DispatchFailure
	}
	return DispatchSuccess
}

// runPhase selects (or resumes) and invokes handlers for one business
// phase. It returns paused=true if the event must unwind back to the
// caller, along with the next stage to continue at once resumed/completed.
func (d *Dispatcher) runPhase(b *BaseEvent, phase Phase) (paused bool, next Stage) {
	b.mu.Lock()
	b.stage = phase
	var plan []*HandlerEntry
	startIndex := 0
	outstanding := 0
	if b.pause != nil && b.pause.phase == phase {
		plan = b.pause.handlers
		startIndex = b.pause.nextIndex
		outstanding = b.pause.outstanding
		b.pause = nil
	} else {
		plan = d.selectHandlers(b, phase)
	}
	b.mu.Unlock()

	sequential := phase == PhaseConfigure
	blocksOnOutstanding := phase == PhaseExecute

	for i := startIndex; i < len(plan); i++ {
		entry := plan[i]
		hctx := d.newHandlerContext(b, phase, entry.priority, i)

		b.mu.Lock()
		b.handlerRunning = true
		b.mu.Unlock()

		result, threw, terr := safeInvoke(entry, hctx)
		entry.executionCount.Add(1)

		b.mu.Lock()
		b.handlerRunning = false
		if threw {
			b.appendErrLocked(terr)
			if phase == PhaseValidate && entry.priority == PriorityCritical {
				result = ResultCancelled
			} else {
				result = ResultFailure
			}
		}
		d.traceHandler(b, phase, entry, result, threw)
		d.observeHandler(phase, result)

		stop := false
		switch result {
		case ResultSuccess:
			// The handler unwound without waiting: any pre-unwind intent it
			// captured synchronously never applies to an actual wait and
			// must not leak into a later, unrelated handler's Waiting case.
			b.deferred = nil
			b.mu.Unlock()
		case ResultFailure:
			b.hasFailures = true
			b.deferred = nil
			b.mu.Unlock()
		case ResultSkipRemaining:
			b.deferred = nil
			b.mu.Unlock()
			stop = true
		case ResultCancelled:
			b.isCancelled = true
			b.deferred = nil
			b.mu.Unlock()
			stop = true
		case ResultWaiting:
			if phase == PhaseValidate {
				// Waiting is not permitted in Validate: coerce to Failure
				// and keep running the remaining Validate handlers. No
				// actual wait occurs, so any pre-unwind intent is stale.
				b.hasFailures = true
				b.deferred = nil
				b.mu.Unlock()
				continue
			}
			if b.deferred != nil {
				intent := b.deferred
				b.deferred = nil
				switch intent.kind {
				case kindAbort:
					b.isCancelled = true
				case kindFail:
					b.hasFailures = true
				}
				b.mu.Unlock()
				continue
			}
			if sequential {
				b.pause = &pauseState{style: styleSequential, phase: phase, handlers: plan, nextIndex: i + 1}
				b.isWaiting = true
				b.mu.Unlock()
				return true, StageUnstarted
			}
			if entry.blocksOnWaiting {
				outstanding++
			}
			b.mu.Unlock()
		}

		if stop {
			break
		}
	}

	b.mu.Lock()
	if blocksOnOutstanding && outstanding > 0 {
		b.pause = &pauseState{style: styleParallel, phase: phase, outstanding: outstanding}
		b.isWaiting = true
		b.mu.Unlock()
		return true, StageUnstarted
	}
	b.completedPhases |= bitForPhase(phase)
	n := nextStageAfterPhase(b, phase)
	b.mu.Unlock()
	return false, n
}

// runTerminal invokes terminal-state handlers. Their return values are
// coerced to Success: only a thrown panic is recorded, and it never stops
// subsequent terminal handlers from running.
func (d *Dispatcher) runTerminal(b *BaseEvent, state State) {
	b.mu.Lock()
	b.stage = state
	plan := d.selectHandlers(b, state)
	b.mu.Unlock()

	for i, entry := range plan {
		hctx := d.newHandlerContext(b, state, entry.priority, i)
		_, threw, terr := safeInvoke(entry, hctx)
		entry.executionCount.Add(1)
		d.traceHandler(b, state, entry, ResultSuccess, threw)
		d.observeHandler(state, ResultSuccess)
		if threw {
			b.mu.Lock()
			b.appendErrLocked(terr)
			b.mu.Unlock()
		}
	}
}

func (d *Dispatcher) selectHandlers(b *BaseEvent, target Stage) []*HandlerEntry {
	global := d.registry.Lookup(b.eventType)
	owner := b.self.Owner()

	var candidates []*HandlerEntry
	for _, e := range global {
		if e.target() == target && e.eligible(b.self, owner) {
			candidates = append(candidates, e)
		}
	}
	for _, e := range b.scopedEntries {
		if e.target() == target && e.eligible(b.self, owner) {
			candidates = append(candidates, e)
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].priority < candidates[j].priority
	})
	return candidates
}

func (d *Dispatcher) newHandlerContext(b *BaseEvent, phase Stage, priority Priority, ordinal int) *HandlerContext {
	return &HandlerContext{
		ctx:       b.ctx,
		event:     b,
		phase:     phase,
		priority:  priority,
		ordinal:   ordinal,
		startedAt: b.startedAt,
	}
}

func safeInvoke(entry *HandlerEntry, hctx *HandlerContext) (result PhaseResult, threw bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			threw = true
			err = fmt.Errorf("%w: handler %s: %v\n%s", ErrHandlerThrew, entry.id, r, debug.Stack())
		}
	}()
	result = entry.handler(hctx)
	return result, false, nil
}
