package panicerr

import (
	"context"

	"github.com/sourcegraph/conc/panics"
)

// SafeContext wraps fn so that a panic inside it is returned as an error
// (with the recovered value and stack) instead of unwinding the caller.
func SafeContext(fn func(context.Context) error) func(context.Context) error {
	return func(ctx context.Context) error {
		var (
			catcher panics.Catcher
			err     error
		)
		catcher.Try(func() {
			err = fn(ctx)
		})
		if err != nil {
			return err
		}
		return catcher.Recovered().AsError()
	}
}

// Value runs fn and returns its result, or the zero value and the panic as
// an error.
func Value[T any](fn func() T) (T, error) {
	var (
		catcher panics.Catcher
		result  T
	)
	catcher.Try(func() {
		result = fn()
	})
	if r := catcher.Recovered(); r != nil {
		var zero T
		return zero, r.AsError()
	}
	return result, nil
}
