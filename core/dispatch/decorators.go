package dispatch

import (
	"log/slog"
	"time"
)

// Decorator wraps a HandlerFunc to add cross-cutting behavior. Multiple
// decorators compose via Decorate.
type Decorator func(HandlerFunc) HandlerFunc

// Decorate applies decorators to handler in sequence; the first decorator
// wraps innermost.
//
//	h := dispatch.Decorate(processPaymentHandler,
//	    dispatch.Retry(3),
//	    dispatch.WithLogging(logger),
//	)
func Decorate(handler HandlerFunc, decorators ...Decorator) HandlerFunc {
	for _, d := range decorators {
		handler = d(handler)
	}
	return handler
}

// Retry re-invokes handler up to maxRetries additional times as long as it
// keeps returning Failure. A Cancelled, Waiting, or SkipRemaining result is
// never retried since retrying would contradict the result's own meaning.
func Retry(maxRetries int) Decorator {
	return func(h HandlerFunc) HandlerFunc {
		return func(hctx *HandlerContext) PhaseResult {
			var result PhaseResult
			for attempt := 0; attempt <= maxRetries; attempt++ {
				result = h(hctx)
				if result != ResultFailure {
					return result
				}
			}
			return result
		}
	}
}

// Backoff retries like Retry, sleeping with exponentially increasing delay
// between attempts, capped at maxDelay.
func Backoff(maxRetries int, initialDelay, maxDelay time.Duration) Decorator {
	return func(h HandlerFunc) HandlerFunc {
		return func(hctx *HandlerContext) PhaseResult {
			delay := initialDelay
			var result PhaseResult
			for attempt := 0; attempt <= maxRetries; attempt++ {
				if attempt > 0 {
					select {
					case <-hctx.Context().Done():
						return ResultFailure
					case <-time.After(delay):
					}
					delay *= 2
					if delay > maxDelay {
						delay = maxDelay
					}
				}
				result = h(hctx)
				if result != ResultFailure {
					return result
				}
			}
			return result
		}
	}
}

// ElapsedCutoff fails the handler if hctx.ElapsedTime() already exceeds
// limit by the time it would run, and replaces its result with Failure if
// limit has been passed by the time it returns. The handler runs
// synchronously on the dispatching goroutine and is never interrupted: an
// overrunning handler runs to completion before the cutoff applies.
func ElapsedCutoff(limit time.Duration) Decorator {
	return func(h HandlerFunc) HandlerFunc {
		return func(hctx *HandlerContext) PhaseResult {
			remaining := limit - hctx.ElapsedTime()
			if remaining <= 0 {
				return ResultFailure
			}
			result := h(hctx)
			if hctx.ElapsedTime() > limit {
				return ResultFailure
			}
			return result
		}
	}
}

// WithLogging logs entry, result, and elapsed time for each invocation at
// debug level, and the error at warn level when the handler panics.
func WithLogging(logger *slog.Logger) Decorator {
	return func(h HandlerFunc) HandlerFunc {
		return func(hctx *HandlerContext) PhaseResult {
			logger.DebugContext(hctx.Context(), "handler invoked",
				slog.String("phase", hctx.Phase().String()),
				slog.Int("ordinal", hctx.Ordinal()))
			defer func() {
				if r := recover(); r != nil {
					logger.WarnContext(hctx.Context(), "handler panicked",
						slog.String("phase", hctx.Phase().String()),
						slog.Any("error", r))
					panic(r)
				}
			}()
			result := h(hctx)
			logger.DebugContext(hctx.Context(), "handler returned",
				slog.String("phase", hctx.Phase().String()),
				slog.String("result", result.String()),
				slog.Duration("elapsed", hctx.ElapsedTime()))
			return result
		}
	}
}
