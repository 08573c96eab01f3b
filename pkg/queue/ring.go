// Package queue provides the bounded single-producer/single-consumer sample
// queue that decouples the sampling context from the analysis loop.
package queue

import (
	"errors"
	"sync/atomic"
)

// DefaultCapacity matches the sensor FIFO of the pulse board: two seconds at 250 Hz.
const DefaultCapacity = 500

// Sample is one raw 16-bit ADC reading.
type Sample = uint16

// ErrCapacity is returned by New for a non-positive capacity.
var ErrCapacity = errors.New("queue: capacity must be positive")

// Ring is a lock-free bounded FIFO for exactly one producer and one consumer.
//
// Overflow policy is drop-oldest: a Push into a full ring discards the oldest
// unread sample and counts it in Dropped. Push never blocks and never
// allocates, so it is safe to call from a periodic sampling context.
//
// head and tail are free-running counters; slot i lives at i % len(slots).
// The consumer owns head except on overflow, where the producer moves it with
// a CAS. Pop re-validates head with its own CAS, so a sample overwritten under
// it is never returned.
type Ring struct {
	slots   []atomic.Uint32
	head    atomic.Uint64 // next slot to read
	tail    atomic.Uint64 // next slot to write
	dropped atomic.Uint64
}

// New allocates a ring with the given capacity.
func New(capacity int) (*Ring, error) {
	if capacity <= 0 {
		return nil, ErrCapacity
	}
	return &Ring{slots: make([]atomic.Uint32, capacity)}, nil
}

// Push appends a sample. Producer side only.
func (r *Ring) Push(s Sample) {
	size := uint64(len(r.slots))
	t := r.tail.Load()
	for {
		h := r.head.Load()
		if t-h < size {
			break
		}
		// Full: evict the oldest unread sample. If the consumer popped it in
		// the meantime the CAS fails and there is room on the next pass.
		if r.head.CompareAndSwap(h, h+1) {
			r.dropped.Add(1)
			break
		}
	}
	r.slots[t%size].Store(uint32(s))
	r.tail.Store(t + 1)
}

// Pop removes the oldest sample. Consumer side only. The boolean is false when
// the ring is empty.
func (r *Ring) Pop() (Sample, bool) {
	size := uint64(len(r.slots))
	for {
		h := r.head.Load()
		if h == r.tail.Load() {
			return 0, false
		}
		v := r.slots[h%size].Load()
		if r.head.CompareAndSwap(h, h+1) {
			return Sample(v), true
		}
		// The producer evicted h while we were reading it.
	}
}

// IsEmpty reports whether there is nothing to pop.
func (r *Ring) IsEmpty() bool {
	return r.head.Load() == r.tail.Load()
}

// Len returns the number of unread samples.
func (r *Ring) Len() int {
	t := r.tail.Load()
	h := r.head.Load()
	if h > t {
		return 0
	}
	return int(t - h)
}

// Cap returns the ring capacity.
func (r *Ring) Cap() int {
	return len(r.slots)
}

// Dropped returns how many samples were discarded by the overflow policy.
func (r *Ring) Dropped() uint64 {
	return r.dropped.Load()
}

// Clear discards all unread samples. Consumer side only.
func (r *Ring) Clear() {
	for {
		if _, ok := r.Pop(); !ok {
			return
		}
	}
}
