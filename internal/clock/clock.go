// Package clock provides capture time for CSI records.
//
// An external time-sync component corrects capture timestamps by setting an
// offset on a Synced clock; the collector only ever calls Now.
package clock

import (
	"sync/atomic"
	"time"
)

// Clock is the capture time source
type Clock interface {
	Now() time.Time
}

// System is the local wall clock
type System struct{}

func (System) Now() time.Time {
	return time.Now()
}

// Synced is the system clock corrected by an offset supplied by a time sync
// source. The zero value reports system time.
type Synced struct {
	offset atomic.Int64 // nanoseconds
	synced atomic.Bool
	base   func() time.Time
}

// NewSynced returns a clock that adds an offset to base. A nil base uses time.Now.
func NewSynced(base func() time.Time) *Synced {
	return &Synced{base: base}
}

func (s *Synced) Now() time.Time {
	now := time.Now
	if s.base != nil {
		now = s.base
	}
	return now().Add(time.Duration(s.offset.Load()))
}

// SetOffset records the correction measured by the time sync source
func (s *Synced) SetOffset(offset time.Duration) {
	s.offset.Store(int64(offset))
	s.synced.Store(true)
}

// Offset returns the current correction
func (s *Synced) Offset() time.Duration {
	return time.Duration(s.offset.Load())
}

// IsSynced reports whether an offset has been set at least once
func (s *Synced) IsSynced() bool {
	return s.synced.Load()
}
