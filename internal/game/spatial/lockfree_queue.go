// This file implements a lock-free MPSC ring buffer with per-slot sequence
// numbers and cache-line padding. Connection goroutines push decoded client
// commands concurrently; the simulation tick drains them single-threaded.
//
// Origin: Vyukov bounded MPMC queue; LMAX Disruptor (2011)

package spatial

import (
	"runtime"
	"sync/atomic"
)

// CacheLineSize is the typical CPU cache line size (64 bytes on x86-64)
const CacheLineSize = 64

// Padding ensures variables don't share cache lines (prevents false sharing)
type Padding [CacheLineSize]byte

type queueSlot[T any] struct {
	seq uint64
	val T
}

// LockFreeQueue is a bounded MPSC ring buffer. Each slot carries a sequence
// number so a consumer can never observe a claimed-but-unwritten slot; the
// producer publishes the value by bumping the sequence after the write.
//
// Memory layout (prevents false sharing):
// [Padding][head][Padding][tail][Padding][slots...]
type LockFreeQueue[T any] struct {
	_pad0 Padding

	head uint64 // Write position (producers) - on its own cache line
	_pad1 Padding

	tail uint64 // Read position (consumer) - on its own cache line
	_pad2 Padding

	mask uint64 // Capacity mask for fast modulo (capacity-1)
	_pad3 Padding

	slots []queueSlot[T]
}

// NewLockFreeQueue creates a new lock-free queue.
// capacity must be a power of 2 (will be rounded up if not).
func NewLockFreeQueue[T any](capacity int) *LockFreeQueue[T] {
	n := 1
	for n < capacity {
		n <<= 1
	}

	q := &LockFreeQueue[T]{
		mask:  uint64(n - 1),
		slots: make([]queueSlot[T], n),
	}
	for i := range q.slots {
		q.slots[i].seq = uint64(i)
	}
	return q
}

// TryPush attempts to add an item to the queue (producer side).
// Returns true if successful, false if queue is full.
// Lock-free, safe for multiple concurrent producers.
func (q *LockFreeQueue[T]) TryPush(item T) bool {
	for {
		head := atomic.LoadUint64(&q.head)
		slot := &q.slots[head&q.mask]
		seq := atomic.LoadUint64(&slot.seq)

		switch diff := int64(seq) - int64(head); {
		case diff == 0:
			if atomic.CompareAndSwapUint64(&q.head, head, head+1) {
				slot.val = item
				atomic.StoreUint64(&slot.seq, head+1)
				return true
			}
			// CAS lost - another producer won, retry
			runtime.Gosched()
		case diff < 0:
			return false // Queue full
		default:
			// Another producer claimed this head but we read a stale value
			runtime.Gosched()
		}
	}
}

// Push adds an item, spinning until successful (blocking).
// Use TryPush for non-blocking behavior.
func (q *LockFreeQueue[T]) Push(item T) {
	for !q.TryPush(item) {
		runtime.Gosched()
	}
}

// TryPop attempts to remove an item from the queue.
// Returns (item, true) if successful, (zero, false) if queue is empty.
// Must only be called by a single consumer (MPSC pattern).
func (q *LockFreeQueue[T]) TryPop() (T, bool) {
	var zero T

	tail := atomic.LoadUint64(&q.tail)
	slot := &q.slots[tail&q.mask]
	seq := atomic.LoadUint64(&slot.seq)

	if int64(seq)-int64(tail+1) < 0 {
		return zero, false // Nothing published at tail yet
	}

	item := slot.val
	slot.val = zero // drop reference for GC
	atomic.StoreUint64(&slot.seq, tail+q.mask+1)
	atomic.StoreUint64(&q.tail, tail+1)
	return item, true
}

// Pop removes an item, spinning until one is available (blocking).
// Use TryPop for non-blocking behavior.
func (q *LockFreeQueue[T]) Pop() T {
	for {
		item, ok := q.TryPop()
		if ok {
			return item
		}
		runtime.Gosched()
	}
}

// Len returns the approximate number of items in the queue.
// Note: This is a snapshot and may be stale immediately.
func (q *LockFreeQueue[T]) Len() int {
	head := atomic.LoadUint64(&q.head)
	tail := atomic.LoadUint64(&q.tail)
	if head < tail {
		return 0
	}
	return int(head - tail)
}

// Cap returns the queue capacity.
func (q *LockFreeQueue[T]) Cap() int {
	return int(q.mask + 1)
}

// IsEmpty returns true if the queue appears empty.
func (q *LockFreeQueue[T]) IsEmpty() bool {
	return q.Len() == 0
}

// IsFull returns true if the queue appears full.
func (q *LockFreeQueue[T]) IsFull() bool {
	return q.Len() >= q.Cap()
}

// Drain reads all available items into a new slice (batch consumer).
// Returns empty slice if queue is empty.
func (q *LockFreeQueue[T]) Drain(maxItems int) []T {
	result := make([]T, 0, maxItems)
	for len(result) < maxItems {
		item, ok := q.TryPop()
		if !ok {
			break
		}
		result = append(result, item)
	}
	return result
}

// DrainTo reads all available items into a pre-allocated slice (zero-alloc
// batch). Returns the number of items written.
func (q *LockFreeQueue[T]) DrainTo(buf []T) int {
	count := 0
	for count < len(buf) {
		item, ok := q.TryPop()
		if !ok {
			break
		}
		buf[count] = item
		count++
	}
	return count
}
