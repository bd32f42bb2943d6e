package throttle

// Source is what a Throttle iterates over: either an ordered sequence of
// items or a bare count, in which case the item handed to a step is its index.
// The variant is resolved once when the Source is built.
type Source[T any] struct {
	n  int
	at func(i int) T
}

// Slice iterates over a copy of items in order.
func Slice[T any](items []T) Source[T] {
	cp := append([]T(nil), items...)
	return Source[T]{
		n:  len(cp),
		at: func(i int) T { return cp[i] },
	}
}

// Items is Slice for an inline list.
func Items[T any](items ...T) Source[T] {
	return Slice(items)
}

// Count iterates over the indices 0..n-1.
func Count(n int) Source[int] {
	return Source[int]{
		n:  n,
		at: func(i int) int { return i },
	}
}

// Len returns the number of items in one pass.
func (s Source[T]) Len() int {
	return s.n
}

func (s Source[T]) valid() bool {
	return s.at != nil && s.n >= 0
}
