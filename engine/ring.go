package engine

import "sync/atomic"

// Ring is a lock-free single-producer single-consumer ring buffer. The
// per-track background processor writes rendered audio samples or MIDI
// slots into it from its own goroutine; the audio callback drains it
// without ever blocking. Exactly one goroutine may write and exactly one
// may read. The capacity is rounded up to a power of two; one slot is
// kept free to distinguish full from empty.
type Ring[T any] struct {
	buf   []T
	mask  uint64
	read  atomic.Uint64
	write atomic.Uint64
}

func NewRing[T any](capacity int) *Ring[T] {
	size := uint64(1)
	for size < uint64(capacity)+1 {
		size <<= 1
	}
	return &Ring[T]{buf: make([]T, size), mask: size - 1}
}

// TryWrite appends v to the ring, returning false if the ring is full.
func (r *Ring[T]) TryWrite(v T) bool {
	w := r.write.Load()
	if w-r.read.Load() > r.mask-1 {
		return false
	}
	r.buf[w&r.mask] = v
	r.write.Store(w + 1)
	return true
}

// WriteSlice appends as many items from src as fit, returning how many
// were written.
func (r *Ring[T]) WriteSlice(src []T) int {
	w := r.write.Load()
	free := int(r.mask - (w - r.read.Load()))
	n := len(src)
	if n > free {
		n = free
	}
	for i := 0; i < n; i++ {
		r.buf[(w+uint64(i))&r.mask] = src[i]
	}
	r.write.Store(w + uint64(n))
	return n
}

// TryRead pops the oldest item, returning false if the ring is empty.
func (r *Ring[T]) TryRead() (v T, ok bool) {
	rd := r.read.Load()
	if rd == r.write.Load() {
		return v, false
	}
	v = r.buf[rd&r.mask]
	r.read.Store(rd + 1)
	return v, true
}

// ReadSlice pops up to len(dst) items into dst, returning how many were
// read.
func (r *Ring[T]) ReadSlice(dst []T) int {
	rd := r.read.Load()
	avail := int(r.write.Load() - rd)
	n := len(dst)
	if n > avail {
		n = avail
	}
	for i := 0; i < n; i++ {
		dst[i] = r.buf[(rd+uint64(i))&r.mask]
	}
	r.read.Store(rd + uint64(n))
	return n
}

// Len returns how many items are buffered.
func (r *Ring[T]) Len() int {
	return int(r.write.Load() - r.read.Load())
}

// Cap returns how many items fit in the ring.
func (r *Ring[T]) Cap() int {
	return int(r.mask)
}
