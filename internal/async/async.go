// Package async runs blocking storage calls off the caller's goroutine.
package async

import "context"

type result[T any] struct {
	val T
	err error
}

// Do runs fn in its own goroutine and waits for it or for ctx, whichever
// finishes first. On cancellation ctx.Err() is returned unchanged and fn is
// left to finish in the background; its result is discarded.
func Do[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	if err := ctx.Err(); err != nil {
		var zero T
		return zero, err
	}

	done := make(chan result[T], 1)
	go func() {
		v, err := fn()
		done <- result[T]{val: v, err: err}
	}()

	select {
	case r := <-done:
		return r.val, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Run is Do for functions without a result value.
func Run(ctx context.Context, fn func() error) error {
	_, err := Do(ctx, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}
