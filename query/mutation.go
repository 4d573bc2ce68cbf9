package query

import "context"

// Mutation runs a write with lifecycle hooks. V is the input, R the result
// and C whatever OnMutate returns for the other hooks to use (typically a
// snapshot to roll back to). Nothing is retried.
type Mutation[V, R, C any] struct {
	// OnMutate runs before Fn. Returning an error aborts the mutation
	// without calling Fn or OnError.
	OnMutate  func(V) (C, error)
	Fn        func(context.Context, V) (R, error)
	OnSuccess func(R, V, C)
	OnError   func(error, V, C)
	OnSettled func(R, error, V, C)
}

// Run executes the mutation and returns Fn's outcome.
func (m Mutation[V, R, C]) Run(ctx context.Context, v V) (R, error) {
	var (
		zero R
		mctx C
		err  error
	)
	if m.OnMutate != nil {
		if mctx, err = m.OnMutate(v); err != nil {
			return zero, err
		}
	}

	res, err := m.Fn(ctx, v)
	if err != nil {
		if m.OnError != nil {
			m.OnError(err, v, mctx)
		}
	} else if m.OnSuccess != nil {
		m.OnSuccess(res, v, mctx)
	}
	if m.OnSettled != nil {
		m.OnSettled(res, err, v, mctx)
	}
	return res, err
}
