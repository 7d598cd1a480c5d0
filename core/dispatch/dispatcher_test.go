package dispatch_test

import (
	"context"
	"testing"

	"github.com/go-lsutils/phaseflow/core/dispatch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// S1: happy path across all four business phases plus terminal states.
func TestDispatch_HappyPath(t *testing.T) {
	t.Parallel()

	d := dispatch.NewDispatcher()
	var log []string

	_, err := d.Register("Probe", func(rb *dispatch.RegistrationBuilder) {
		rb.OnPhase(dispatch.PhaseValidate).Handler(always(&log, "Validate", dispatch.ResultSuccess))
		rb.OnPhase(dispatch.PhaseConfigure).Handler(always(&log, "Configure", dispatch.ResultSuccess))
		rb.OnPhase(dispatch.PhaseExecute).Handler(always(&log, "Execute", dispatch.ResultSuccess))
		rb.OnPhase(dispatch.PhaseCleanup).Handler(always(&log, "Cleanup", dispatch.ResultSuccess))
		rb.OnState(dispatch.StateSuccess).Handler(always(&log, "Success", dispatch.ResultSuccess))
		rb.OnState(dispatch.StateCompleted).Handler(always(&log, "Completed", dispatch.ResultSuccess))
	})
	require.NoError(t, err)

	ev := newProbeEvent(dispatch.WithDispatcher(d))
	result, err := ev.Dispatch(context.Background())

	require.NoError(t, err)
	assert.Equal(t, dispatch.DispatchSuccess, result)
	assert.Equal(t, []string{"Validate", "Configure", "Execute", "Cleanup", "Success", "Completed"}, log)
	assert.True(t, ev.IsCompleted())
	assert.False(t, ev.IsCancelled())
}

// S2: a Cancelled return in Validate skips all later business phases.
func TestDispatch_ValidateCancellationSkipsLaterPhases(t *testing.T) {
	t.Parallel()

	d := dispatch.NewDispatcher()
	var log []string

	_, err := d.Register("Probe", func(rb *dispatch.RegistrationBuilder) {
		rb.OnPhase(dispatch.PhaseValidate).Handler(always(&log, "Validate", dispatch.ResultCancelled))
		rb.OnPhase(dispatch.PhaseConfigure).Handler(always(&log, "Configure", dispatch.ResultSuccess))
		rb.OnPhase(dispatch.PhaseExecute).Handler(always(&log, "Execute", dispatch.ResultSuccess))
		rb.OnPhase(dispatch.PhaseCleanup).Handler(always(&log, "Cleanup", dispatch.ResultSuccess))
		rb.OnState(dispatch.StateCancelled).Handler(always(&log, "Cancelled", dispatch.ResultSuccess))
		rb.OnState(dispatch.StateCompleted).Handler(always(&log, "Completed", dispatch.ResultSuccess))
	})
	require.NoError(t, err)

	ev := newProbeEvent(dispatch.WithDispatcher(d))
	result, err := ev.Dispatch(context.Background())

	require.NoError(t, err)
	assert.Equal(t, dispatch.DispatchCancelled, result)
	assert.Equal(t, []string{"Validate", "Cancelled", "Completed"}, log)
	assert.True(t, ev.IsCancelled())
}

// S3: a Cancelled return in Cleanup never prevents the Success route.
func TestDispatch_CleanupCancellationDoesNotPreventSuccess(t *testing.T) {
	t.Parallel()

	d := dispatch.NewDispatcher()
	var log []string

	_, err := d.Register("Probe", func(rb *dispatch.RegistrationBuilder) {
		rb.OnPhase(dispatch.PhaseValidate).Handler(always(&log, "Validate", dispatch.ResultSuccess))
		rb.OnPhase(dispatch.PhaseConfigure).Handler(always(&log, "Configure", dispatch.ResultSuccess))
		rb.OnPhase(dispatch.PhaseExecute).Handler(always(&log, "Execute", dispatch.ResultSuccess))
		rb.OnPhase(dispatch.PhaseCleanup).Handler(always(&log, "Cleanup", dispatch.ResultCancelled))
		rb.OnState(dispatch.StateSuccess).Handler(always(&log, "Success", dispatch.ResultSuccess))
		rb.OnState(dispatch.StateCancelled).Handler(always(&log, "Cancelled", dispatch.ResultSuccess))
		rb.OnState(dispatch.StateCompleted).Handler(always(&log, "Completed", dispatch.ResultSuccess))
	})
	require.NoError(t, err)

	ev := newProbeEvent(dispatch.WithDispatcher(d))
	result, err := ev.Dispatch(context.Background())

	require.NoError(t, err)
	assert.Equal(t, dispatch.DispatchSuccess, result)
	assert.Equal(t, []string{"Validate", "Configure", "Execute", "Cleanup", "Success", "Completed"}, log)
	assert.NotContains(t, log, "Cancelled")
}

// S4: a handler that calls Resume synchronously before returning Waiting
// (the pre-unwind race) must not leave Dispatch paused: the deferred intent
// is captured and applied as soon as that Waiting return is processed, so
// Execute's remaining handlers still run and Dispatch completes.
func TestDispatch_ResumeBeforeUnwindIsCapturedAsDeferredIntent(t *testing.T) {
	t.Parallel()

	d := dispatch.NewDispatcher()
	var log []string

	h1 := func(hctx *dispatch.HandlerContext) dispatch.PhaseResult {
		log = append(log, "H1")
		result, err := hctx.Resume()
		assert.NoError(t, err)
		assert.Equal(t, dispatch.DispatchWaiting, result)
		return dispatch.ResultWaiting
	}
	h2 := always(&log, "H2", dispatch.ResultSuccess)

	_, err := d.Register("Probe", func(rb *dispatch.RegistrationBuilder) {
		rb.OnPhase(dispatch.PhaseExecute).Priority(dispatch.PriorityHigh).BlocksOnWaiting(true).Handler(h1)
		rb.OnPhase(dispatch.PhaseExecute).Priority(dispatch.PriorityNormal).Handler(h2)
	})
	require.NoError(t, err)

	ev := newProbeEvent(dispatch.WithDispatcher(d))
	result, err := ev.Dispatch(context.Background())

	require.NoError(t, err)
	assert.Equal(t, dispatch.DispatchSuccess, result)
	assert.Equal(t, []string{"H1", "H2"}, log)
	assert.False(t, ev.IsWaiting())
	assert.True(t, ev.IsCompleted())
}

// A handler that races Resume/Abort/Fail before unwinding but then returns
// something other than Waiting has, in fact, unwound without pausing: the
// captured intent must not leak forward and silently apply to a later,
// unrelated handler's genuine Waiting return.
func TestDispatch_DeferredIntentDoesNotLeakPastNonWaitingReturn(t *testing.T) {
	t.Parallel()

	d := dispatch.NewDispatcher()
	var log []string

	h1 := func(hctx *dispatch.HandlerContext) dispatch.PhaseResult {
		log = append(log, "H1")
		result, err := hctx.Abort()
		assert.NoError(t, err)
		assert.Equal(t, dispatch.DispatchWaiting, result)
		// Does NOT return Waiting: the race was captured but never consumed.
		return dispatch.ResultSuccess
	}
	h2 := func(hctx *dispatch.HandlerContext) dispatch.PhaseResult {
		log = append(log, "H2")
		return dispatch.ResultWaiting
	}

	_, err := d.Register("Probe", func(rb *dispatch.RegistrationBuilder) {
		rb.OnPhase(dispatch.PhaseExecute).Priority(dispatch.PriorityHigh).Handler(h1)
		rb.OnPhase(dispatch.PhaseExecute).Priority(dispatch.PriorityNormal).BlocksOnWaiting(true).Handler(h2)
		rb.OnState(dispatch.StateSuccess).Handler(always(&log, "Success", dispatch.ResultSuccess))
		rb.OnState(dispatch.StateCompleted).Handler(always(&log, "Completed", dispatch.ResultSuccess))
	})
	require.NoError(t, err)

	ev := newProbeEvent(dispatch.WithDispatcher(d))
	result, err := ev.Dispatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, dispatch.DispatchWaiting, result)
	assert.Equal(t, []string{"H1", "H2"}, log)
	assert.True(t, ev.IsWaiting())
	assert.False(t, ev.IsCancelled(), "H1's stale Abort intent must not have auto-applied to H2's wait")

	result, err = ev.Resume()
	require.NoError(t, err)
	assert.Equal(t, dispatch.DispatchSuccess, result)
	assert.Equal(t, []string{"H1", "H2", "Success", "Completed"}, log)
	assert.False(t, ev.IsCancelled())
}

// S5: a handler that returns Waiting and is resumed only after Dispatch has
// already returned must leave Dispatch paused until that later Resume.
func TestDispatch_ResumeAfterUnwindContinuesFromSavedPosition(t *testing.T) {
	t.Parallel()

	d := dispatch.NewDispatcher()
	var log []string

	h1 := func(hctx *dispatch.HandlerContext) dispatch.PhaseResult {
		log = append(log, "H1")
		return dispatch.ResultWaiting
	}
	h2 := always(&log, "H2", dispatch.ResultSuccess)

	_, err := d.Register("Probe", func(rb *dispatch.RegistrationBuilder) {
		rb.OnPhase(dispatch.PhaseExecute).Priority(dispatch.PriorityHigh).BlocksOnWaiting(true).Handler(h1)
		rb.OnPhase(dispatch.PhaseExecute).Priority(dispatch.PriorityNormal).Handler(h2)
		rb.OnState(dispatch.StateCompleted).Handler(always(&log, "Completed", dispatch.ResultSuccess))
	})
	require.NoError(t, err)

	ev := newProbeEvent(dispatch.WithDispatcher(d))
	result, err := ev.Dispatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, dispatch.DispatchWaiting, result)
	assert.Equal(t, []string{"H1", "H2"}, log)
	assert.True(t, ev.IsWaiting())

	result, err = ev.Resume()
	require.NoError(t, err)
	assert.Equal(t, dispatch.DispatchSuccess, result)
	assert.Equal(t, []string{"H1", "H2", "Completed"}, log)
	assert.False(t, ev.IsWaiting())
}

// S6: a Fail signal delivered while waiting routes to Failure, skipping
// Success handlers but still running Completed.
func TestDispatch_FailWhileWaitingRoutesToFailure(t *testing.T) {
	t.Parallel()

	d := dispatch.NewDispatcher()
	var log []string

	h1 := func(hctx *dispatch.HandlerContext) dispatch.PhaseResult {
		log = append(log, "Configure")
		return dispatch.ResultWaiting
	}

	_, err := d.Register("Probe", func(rb *dispatch.RegistrationBuilder) {
		rb.OnPhase(dispatch.PhaseConfigure).Handler(h1)
		rb.OnState(dispatch.StateSuccess).Handler(always(&log, "Success", dispatch.ResultSuccess))
		rb.OnState(dispatch.StateCompleted).Handler(always(&log, "Completed", dispatch.ResultSuccess))
	})
	require.NoError(t, err)

	ev := newProbeEvent(dispatch.WithDispatcher(d))
	result, err := ev.Dispatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, dispatch.DispatchWaiting, result)

	result, err = ev.Fail()
	require.NoError(t, err)
	assert.Equal(t, dispatch.DispatchFailure, result)
	assert.NotContains(t, log, "Success")
	assert.Contains(t, log, "Completed")
	assert.True(t, ev.HasFailures())
}

// Waiting is forbidden in Validate: it is coerced to Failure and the
// remaining Validate handlers still run.
func TestDispatch_WaitingInValidateIsCoercedToFailure(t *testing.T) {
	t.Parallel()

	d := dispatch.NewDispatcher()
	var log []string

	_, err := d.Register("Probe", func(rb *dispatch.RegistrationBuilder) {
		rb.OnPhase(dispatch.PhaseValidate).Priority(dispatch.PriorityHigh).Handler(always(&log, "V1", dispatch.ResultWaiting))
		rb.OnPhase(dispatch.PhaseValidate).Priority(dispatch.PriorityLow).Handler(always(&log, "V2", dispatch.ResultSuccess))
	})
	require.NoError(t, err)

	ev := newProbeEvent(dispatch.WithDispatcher(d))
	result, err := ev.Dispatch(context.Background())

	require.NoError(t, err)
	assert.Equal(t, dispatch.DispatchFailure, result)
	assert.Equal(t, []string{"V1", "V2"}, log)
	assert.False(t, ev.IsWaiting())
	assert.True(t, ev.HasFailures())
}

// A Critical-priority handler that panics during Validate converts to
// Cancelled rather than Failure.
func TestDispatch_CriticalPanicInValidateBecomesCancelled(t *testing.T) {
	t.Parallel()

	d := dispatch.NewDispatcher()

	_, err := d.Register("Probe", func(rb *dispatch.RegistrationBuilder) {
		rb.OnPhase(dispatch.PhaseValidate).Priority(dispatch.PriorityCritical).
			Handler(func(hctx *dispatch.HandlerContext) dispatch.PhaseResult {
				panic("boom")
			})
		rb.OnState(dispatch.StateCancelled).Handler(func(hctx *dispatch.HandlerContext) dispatch.PhaseResult {
			return dispatch.ResultSuccess
		})
	})
	require.NoError(t, err)

	ev := newProbeEvent(dispatch.WithDispatcher(d))
	result, err := ev.Dispatch(context.Background())

	require.NoError(t, err)
	assert.Equal(t, dispatch.DispatchCancelled, result)
	assert.True(t, ev.IsCancelled())
	require.Len(t, ev.Errors(), 1)
	assert.ErrorIs(t, ev.Errors()[0], dispatch.ErrHandlerThrew)
}

// Handlers run in priority order regardless of registration order.
func TestDispatch_HandlersRunInPriorityOrder(t *testing.T) {
	t.Parallel()

	d := dispatch.NewDispatcher()
	var log []string

	_, err := d.Register("Probe", func(rb *dispatch.RegistrationBuilder) {
		rb.OnPhase(dispatch.PhaseExecute).Priority(dispatch.PriorityLow).Handler(always(&log, "low", dispatch.ResultSuccess))
		rb.OnPhase(dispatch.PhaseExecute).Priority(dispatch.PriorityCritical).Handler(always(&log, "critical", dispatch.ResultSuccess))
		rb.OnPhase(dispatch.PhaseExecute).Priority(dispatch.PriorityNormal).Handler(always(&log, "normal", dispatch.ResultSuccess))
	})
	require.NoError(t, err)

	ev := newProbeEvent(dispatch.WithDispatcher(d))
	_, err = ev.Dispatch(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"critical", "normal", "low"}, log)
}

// A SkipRemaining result ends the phase early but does not cancel the
// event or fail the dispatch.
func TestDispatch_SkipRemainingEndsPhaseEarly(t *testing.T) {
	t.Parallel()

	d := dispatch.NewDispatcher()
	var log []string

	_, err := d.Register("Probe", func(rb *dispatch.RegistrationBuilder) {
		rb.OnPhase(dispatch.PhaseExecute).Priority(dispatch.PriorityHigh).Handler(always(&log, "first", dispatch.ResultSkipRemaining))
		rb.OnPhase(dispatch.PhaseExecute).Priority(dispatch.PriorityLow).Handler(always(&log, "second", dispatch.ResultSuccess))
	})
	require.NoError(t, err)

	ev := newProbeEvent(dispatch.WithDispatcher(d))
	result, err := ev.Dispatch(context.Background())

	require.NoError(t, err)
	assert.Equal(t, dispatch.DispatchSuccess, result)
	assert.Equal(t, []string{"first"}, log)
	assert.False(t, ev.IsCancelled())
}

// Dispatching the same event twice is rejected.
func TestDispatch_RejectsSecondDispatch(t *testing.T) {
	t.Parallel()

	d := dispatch.NewDispatcher()
	ev := newProbeEvent(dispatch.WithDispatcher(d))

	_, err := ev.Dispatch(context.Background())
	require.NoError(t, err)

	_, err = ev.Dispatch(context.Background())
	assert.ErrorIs(t, err, dispatch.ErrAlreadyDispatched)
}

// Resume/Abort/Fail on an event that is not waiting reports
// ErrInvalidResumption.
func TestDispatch_ResumeWithoutWaitingIsRejected(t *testing.T) {
	t.Parallel()

	d := dispatch.NewDispatcher()
	ev := newProbeEvent(dispatch.WithDispatcher(d))

	_, err := ev.Dispatch(context.Background())
	require.NoError(t, err)

	_, err = ev.Resume()
	assert.ErrorIs(t, err, dispatch.ErrInvalidResumption)
}

// Instance filtering uses reference equality on Owner, not value equality.
func TestDispatch_InstanceFilterUsesReferenceEquality(t *testing.T) {
	t.Parallel()

	d := dispatch.NewDispatcher()
	var log []string

	owner := &struct{ name string }{name: "tenant-a"}
	other := &struct{ name string }{name: "tenant-a"}

	_, err := d.Register("Probe", func(rb *dispatch.RegistrationBuilder) {
		rb.OnPhase(dispatch.PhaseExecute).ForInstance(owner).Handler(always(&log, "scoped", dispatch.ResultSuccess))
	})
	require.NoError(t, err)

	matching := newProbeEvent(dispatch.WithDispatcher(d), dispatch.WithOwner(owner))
	_, err = matching.Dispatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"scoped"}, log)

	log = nil
	nonMatching := newProbeEvent(dispatch.WithDispatcher(d), dispatch.WithOwner(other))
	_, err = nonMatching.Dispatch(context.Background())
	require.NoError(t, err)
	assert.Empty(t, log)
}

// MaxExecutions excludes a global handler once it has run enough times.
func TestDispatch_MaxExecutionsExcludesHandlerAfterLimit(t *testing.T) {
	t.Parallel()

	d := dispatch.NewDispatcher()
	var runs int

	_, err := d.Register("Probe", func(rb *dispatch.RegistrationBuilder) {
		rb.OnPhase(dispatch.PhaseExecute).MaxExecutions(1).
			Handler(func(hctx *dispatch.HandlerContext) dispatch.PhaseResult {
				runs++
				return dispatch.ResultSuccess
			})
	})
	require.NoError(t, err)

	_, err = newProbeEvent(dispatch.WithDispatcher(d)).Dispatch(context.Background())
	require.NoError(t, err)
	_, err = newProbeEvent(dispatch.WithDispatcher(d)).Dispatch(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, runs)
}

// Event-scoped handlers run alongside global handlers for the one event
// they were attached to.
func TestDispatch_ScopedHandlersRunAlongsideGlobal(t *testing.T) {
	t.Parallel()

	d := dispatch.NewDispatcher()
	var log []string

	_, err := d.Register("Probe", func(rb *dispatch.RegistrationBuilder) {
		rb.OnPhase(dispatch.PhaseExecute).Handler(always(&log, "global", dispatch.ResultSuccess))
	})
	require.NoError(t, err)

	ev := newProbeEvent(dispatch.WithDispatcher(d))
	rb := dispatch.NewRegistrationBuilder()
	rb.OnPhase(dispatch.PhaseExecute).Handler(always(&log, "scoped", dispatch.ResultSuccess))
	require.NoError(t, ev.WithCallbacks(rb))

	_, err = ev.Dispatch(context.Background())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"global", "scoped"}, log)
}

// Stats and Healthcheck report sane values after a dispatch.
func TestDispatcher_StatsAndHealthcheck(t *testing.T) {
	t.Parallel()

	d := dispatch.NewDispatcher()
	ev := newProbeEvent(dispatch.WithDispatcher(d))
	_, err := ev.Dispatch(context.Background())
	require.NoError(t, err)

	stats := d.Stats()
	assert.Equal(t, int64(1), stats.DispatchesStarted)
	assert.Equal(t, int64(1), stats.DispatchesFinished)
	assert.Equal(t, int32(0), stats.ActiveDispatches)
	assert.NoError(t, d.Healthcheck())
}
