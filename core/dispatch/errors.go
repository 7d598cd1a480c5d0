package dispatch

import "errors"

var (
	// ErrAlreadyDispatched is returned when Dispatch is called a second time on
	// the same event, or when WithCallbacks is called after Dispatch.
	ErrAlreadyDispatched = errors.New("dispatch: event already dispatched")

	// ErrInvalidResumption is returned when Resume, Abort, or Fail is called on
	// an event that is neither waiting nor inside a handler about to return
	// Waiting.
	ErrInvalidResumption = errors.New("dispatch: resume/abort/fail called on an event that is not waiting")

	// ErrHandlerThrew wraps a handler panic recorded in an event's error list.
	// It is never returned directly from Dispatch/Resume/Abort/Fail.
	ErrHandlerThrew = errors.New("dispatch: handler panicked")

	// ErrHandlerRequired is returned by a builder step finalized without a
	// handler callable.
	ErrHandlerRequired = errors.New("dispatch: builder step requires a handler")

	// ErrCallbacksAlreadyAttached is returned when WithCallbacks is called a
	// second time on the same event before Dispatch.
	ErrCallbacksAlreadyAttached = errors.New("dispatch: event-scoped callbacks already attached")

	// ErrNotDispatched is returned by Resume/Abort/Fail when the event has
	// never been bound to a dispatcher.
	ErrNotDispatched = errors.New("dispatch: event has no bound dispatcher")

	// ErrHealthcheckFailed wraps one or more health issues returned by
	// Dispatcher.Healthcheck.
	ErrHealthcheckFailed = errors.New("dispatch: healthcheck failed")
)
