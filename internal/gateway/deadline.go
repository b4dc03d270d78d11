package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrTimeout is returned when a call outlives its deadline.
var ErrTimeout = errors.New("evaluation timed out")

type result[T any] struct {
	val T
	err error
}

// RunWithDeadline runs fn on its own goroutine and waits at most timeout for
// it. On expiry the context handed to fn is cancelled and the goroutine is
// abandoned; its late result is discarded. A panic in fn is returned as an
// error.
//
// When the parent context ends first, its error is returned instead of
// ErrTimeout.
func RunWithDeadline[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	callCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan result[T], 1)
	go func() {
		var r result[T]
		defer func() {
			if p := recover(); p != nil {
				r.err = fmt.Errorf("simulator panicked: %v", p)
			}
			done <- r
		}()
		r.val, r.err = fn(callCtx)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var zero T
	select {
	case r := <-done:
		return r.val, r.err
	case <-timer.C:
		return zero, fmt.Errorf("%w after %s", ErrTimeout, timeout)
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
