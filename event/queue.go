package event

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// Ring is a fixed-capacity lock-free MPSC ring buffer. The platform
// input pump pushes raw events from its own goroutine; the logic loop
// drains them each cycle without touching the message mutex.
//
// Thread-Safety:
//   - Push: lock-free CAS, multiple producers OK
//   - Consume: single consumer (the owning loop)
//   - Published flags prevent reading partial writes
//
// Overflow: oldest unread entries are overwritten when full; each loss
// is counted on the overwrite metric.
type Ring[T any] struct {
	slots      []T
	published  []atomic.Bool // True = slot fully written
	mask       uint64
	head       atomic.Uint64 // Read index
	tail       atomic.Uint64 // Write index
	overwrites prometheus.Counter
}

// NewRing sizes the ring up to the next power of two, minimum 64.
// The overwrite counter may be nil.
func NewRing[T any](size int, overwrites prometheus.Counter) *Ring[T] {
	n := 64
	for n < size {
		n <<= 1
	}
	return &Ring[T]{
		slots:      make([]T, n),
		published:  make([]atomic.Bool, n),
		mask:       uint64(n - 1),
		overwrites: overwrites,
	}
}

// Cap returns the ring's fixed capacity.
func (r *Ring[T]) Cap() int { return len(r.slots) }

// Push adds an entry using lock-free CAS with published flags.
// Safe for concurrent producers. O(1) amortized.
func (r *Ring[T]) Push(v T) {
	for {
		currentTail := r.tail.Load()
		nextTail := currentTail + 1

		if r.tail.CompareAndSwap(currentTail, nextTail) {
			idx := currentTail & r.mask

			r.slots[idx] = v
			r.published[idx].Store(true) // MUST be after write

			// Advance head if overwriting unread entries.
			currentHead := r.head.Load()
			if nextTail-currentHead > uint64(len(r.slots)) {
				if r.head.CompareAndSwap(currentHead, nextTail-uint64(len(r.slots))) && r.overwrites != nil {
					r.overwrites.Inc()
				}
			}
			return
		}
	}
}

// Consume returns all pending entries in FIFO order and advances head.
// Single-consumer design; checks published flags so a half-written slot
// ends the batch rather than leaking garbage.
func (r *Ring[T]) Consume() []T {
	for {
		currentHead := r.head.Load()
		currentTail := r.tail.Load()

		if currentTail == currentHead {
			return nil
		}

		maxAvailable := currentTail - currentHead
		if maxAvailable > uint64(len(r.slots)) {
			maxAvailable = uint64(len(r.slots))
			currentHead = currentTail - uint64(len(r.slots))
		}

		result := make([]T, 0, maxAvailable)
		for i := uint64(0); i < maxAvailable; i++ {
			idx := (currentHead + i) & r.mask

			if !r.published[idx].Load() {
				break // Writer incomplete
			}

			result = append(result, r.slots[idx])
			r.published[idx].Store(false)
		}

		newHead := currentHead + uint64(len(result))
		if r.head.CompareAndSwap(currentHead, newHead) {
			if len(result) == 0 {
				return nil
			}
			return result
		}
	}
}

// Len returns the approximate pending entry count.
// Lock-free; used for shed-load heuristics only.
func (r *Ring[T]) Len() int {
	head := r.head.Load()
	tail := r.tail.Load()
	if tail <= head {
		return 0
	}
	diff := int(tail - head)
	if diff > len(r.slots) {
		return len(r.slots)
	}
	return diff
}
