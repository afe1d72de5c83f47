package csi

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// BufferStats is a snapshot of the sample buffer counters
type BufferStats struct {
	Enqueued uint64 // Records accepted by Put
	Dropped  uint64 // Records rejected by Put
	Evicted  uint64 // Oldest records discarded to admit newer ones
	Len      int    // Records currently queued
}

// SampleBuffer implements a bounded, thread-safe FIFO of records between the
// radio callback and the processing loop. When full, it either rejects new
// records or evicts the oldest one, depending on the overwrite policy.
type SampleBuffer struct {
	mu        sync.Mutex
	items     []*Record // Ring storage
	head      int       // Index of the oldest record
	size      int
	overwrite bool

	enqueued uint64
	dropped  uint64
	evicted  uint64

	notify chan struct{} // Signalled when a record becomes available
}

// NewSampleBuffer creates a new sample buffer.
//
// Parameters:
//   - capacity: maximum number of records to hold
//   - overwrite: evict the oldest record instead of rejecting when full
//
// Returns an error if capacity is not positive.
func NewSampleBuffer(capacity int, overwrite bool) (*SampleBuffer, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("%w: invalid buffer capacity: %d", ErrInvalidArgument, capacity)
	}
	return &SampleBuffer{
		items:     make([]*Record, capacity),
		overwrite: overwrite,
		notify:    make(chan struct{}, 1),
	}, nil
}

// Put appends a record to the buffer without blocking. A full buffer either
// evicts its oldest record and retries once (overwrite enabled) or drops the
// new record and returns ErrBufferFull.
func (sb *SampleBuffer) Put(rec *Record) error {
	if rec == nil {
		return fmt.Errorf("%w: cannot put nil record", ErrInvalidArgument)
	}

	sb.mu.Lock()
	defer sb.mu.Unlock()

	if sb.push(rec) {
		return nil
	}

	if sb.overwrite {
		if oldest := sb.pop(); oldest != nil {
			oldest.Release()
			sb.evicted++
		}
		if sb.push(rec) {
			return nil
		}
	}

	sb.dropped++
	return ErrBufferFull
}

// Get removes and returns the oldest record. It waits up to timeout for one to
// arrive; a timeout of zero or less waits until ctx is done.
// Returns ErrTimeout when the wait expires and ctx.Err() when ctx is cancelled.
func (sb *SampleBuffer) Get(ctx context.Context, timeout time.Duration) (*Record, error) {
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	for {
		if rec := sb.tryGet(); rec != nil {
			return rec, nil
		}

		select {
		case <-sb.notify:
		case <-expired:
			// last chance for a record that raced the timer
			if rec := sb.tryGet(); rec != nil {
				return rec, nil
			}
			return nil, ErrTimeout
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// TryGet removes and returns the oldest record, or nil if the buffer is empty
func (sb *SampleBuffer) TryGet() *Record {
	return sb.tryGet()
}

// Drain removes and returns all queued records in FIFO order.
// Returns nil if the buffer is empty.
func (sb *SampleBuffer) Drain() []*Record {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	if sb.size == 0 {
		return nil
	}

	results := make([]*Record, 0, sb.size)
	for sb.size > 0 {
		results = append(results, sb.pop())
	}
	return results
}

// SetOverwrite switches the buffer-full policy
func (sb *SampleBuffer) SetOverwrite(enable bool) {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	sb.overwrite = enable
}

// Overwrite reports whether the oldest record is evicted when the buffer is full
func (sb *SampleBuffer) Overwrite() bool {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	return sb.overwrite
}

// Stats returns a snapshot of the buffer counters
func (sb *SampleBuffer) Stats() BufferStats {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	return BufferStats{
		Enqueued: sb.enqueued,
		Dropped:  sb.dropped,
		Evicted:  sb.evicted,
		Len:      sb.size,
	}
}

// Len returns the current number of queued records
func (sb *SampleBuffer) Len() int {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	return sb.size
}

// Cap returns the buffer capacity
func (sb *SampleBuffer) Cap() int {
	return len(sb.items)
}

func (sb *SampleBuffer) tryGet() *Record {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	rec := sb.pop()
	if rec != nil && sb.size > 0 {
		sb.signal() // hand the wakeup on to the next waiter
	}
	return rec
}

// push must be called with mu held
func (sb *SampleBuffer) push(rec *Record) bool {
	if sb.size == len(sb.items) {
		return false
	}

	sb.items[(sb.head+sb.size)%len(sb.items)] = rec
	sb.size++
	sb.enqueued++
	sb.signal()
	return true
}

// pop must be called with mu held
func (sb *SampleBuffer) pop() *Record {
	if sb.size == 0 {
		return nil
	}

	rec := sb.items[sb.head]
	sb.items[sb.head] = nil
	sb.head = (sb.head + 1) % len(sb.items)
	sb.size--
	return rec
}

func (sb *SampleBuffer) signal() {
	select {
	case sb.notify <- struct{}{}:
	default:
	}
}
