package filter

import "context"

// Enumerator produces the full candidate set for a slow-path scan.
//
// Implementations call yield once per candidate and stop as soon as yield
// returns false. They should return ctx.Err() when the context is cancelled
// and report progress through p.
type Enumerator[T any] interface {
	Enumerate(ctx context.Context, yield func(T) bool, p Progress) error
}

// EnumeratorFunc adapts a function to the Enumerator interface.
type EnumeratorFunc[T any] func(ctx context.Context, yield func(T) bool, p Progress) error

// Enumerate calls f.
func (f EnumeratorFunc[T]) Enumerate(ctx context.Context, yield func(T) bool, p Progress) error {
	return f(ctx, yield, p)
}

// SliceSource enumerates an in-memory slice in order.
type SliceSource[T any] []T

// Enumerate yields every element of s.
func (s SliceSource[T]) Enumerate(ctx context.Context, yield func(T) bool, p Progress) error {
	p.Begin("scanning items", len(s))
	defer p.Done()
	for _, item := range s {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !yield(item) {
			return nil
		}
		p.Worked(1)
	}
	return nil
}

// Comparator orders two items, returning a negative number when a sorts
// before b, zero when they are equivalent and a positive number otherwise.
type Comparator[T any] func(a, b T) int
