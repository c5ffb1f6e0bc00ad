package types

// Ring is a fixed-capacity buffer that evicts its oldest element once full.
// Index 0 is always the oldest retained element.
type Ring[T any] struct {
	buf   []T
	start int
	n     int
}

// NewRing creates a ring holding at most capacity elements. A capacity below
// one is treated as one.
func NewRing[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}

	return &Ring[T]{buf: make([]T, capacity)}
}

// Cap returns the maximum number of retained elements.
func (r *Ring[T]) Cap() int {
	return len(r.buf)
}

// Len returns the number of retained elements.
func (r *Ring[T]) Len() int {
	return r.n
}

// Push appends v, evicting the oldest element when the ring is full.
func (r *Ring[T]) Push(v T) {
	if r.n < len(r.buf) {
		r.buf[(r.start+r.n)%len(r.buf)] = v
		r.n++

		return
	}

	r.buf[r.start] = v
	r.start = (r.start + 1) % len(r.buf)
}

// At returns the i-th oldest element. It panics when i is out of range, like a slice.
func (r *Ring[T]) At(i int) T {
	if i < 0 || i >= r.n {
		panic("types: ring index out of range")
	}

	return r.buf[(r.start+i)%len(r.buf)]
}

// Last returns the newest element and false when the ring is empty.
func (r *Ring[T]) Last() (T, bool) {
	var zero T
	if r.n == 0 {
		return zero, false
	}

	return r.At(r.n - 1), true
}

// ReplaceLast overwrites the newest element. No-op on an empty ring.
func (r *Ring[T]) ReplaceLast(v T) {
	if r.n == 0 {
		return
	}

	r.buf[(r.start+r.n-1)%len(r.buf)] = v
}

// Values copies the retained elements, oldest first.
func (r *Ring[T]) Values() []T {
	out := make([]T, r.n)
	for i := range r.n {
		out[i] = r.At(i)
	}

	return out
}
