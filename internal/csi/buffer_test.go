package csi

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func newTestRecord(rssi int) *Record {
	return &Record{RSSI: rssi, RawIQ: []int8{1, 2}, SubcarrierCount: 1, Valid: true}
}

func TestSampleBuffer_Ordering(t *testing.T) {
	sb, err := NewSampleBuffer(5, false)
	if err != nil {
		t.Fatalf("Failed to create buffer: %v", err)
	}

	for i := 0; i < 5; i++ {
		if err := sb.Put(newTestRecord(-i)); err != nil {
			t.Errorf("Failed to put record %d: %v", i, err)
		}
	}

	for i := 0; i < 5; i++ {
		rec, err := sb.Get(context.Background(), 10*time.Millisecond)
		if err != nil {
			t.Fatalf("Failed to get record %d: %v", i, err)
		}
		if rec.RSSI != -i {
			t.Errorf("Record %d: expected RSSI %d, got %d", i, -i, rec.RSSI)
		}
	}
}

func TestSampleBuffer_RejectWhenFull(t *testing.T) {
	for _, capacity := range []int{1, 3, 16, 256} {
		sb, err := NewSampleBuffer(capacity, false)
		if err != nil {
			t.Fatalf("Failed to create buffer: %v", err)
		}

		for i := 0; i < capacity; i++ {
			if err := sb.Put(newTestRecord(i)); err != nil {
				t.Fatalf("capacity %d: put %d failed: %v", capacity, i, err)
			}
		}

		err = sb.Put(newTestRecord(capacity))
		if !errors.Is(err, ErrBufferFull) {
			t.Errorf("capacity %d: expected ErrBufferFull, got %v", capacity, err)
		}
		if !errors.Is(err, ErrResourceExhausted) {
			t.Errorf("capacity %d: expected ErrResourceExhausted, got %v", capacity, err)
		}

		stats := sb.Stats()
		if stats.Enqueued != uint64(capacity) || stats.Dropped != 1 || stats.Len != capacity {
			t.Errorf("capacity %d: unexpected stats %+v", capacity, stats)
		}
	}
}

func TestSampleBuffer_OverwriteOldest(t *testing.T) {
	sb, err := NewSampleBuffer(3, true)
	if err != nil {
		t.Fatalf("Failed to create buffer: %v", err)
	}

	records := make([]*Record, 5)
	for i := range records {
		records[i] = newTestRecord(-i)
		if err := sb.Put(records[i]); err != nil {
			t.Errorf("Failed to put record %d: %v", i, err)
		}
	}

	stats := sb.Stats()
	if stats.Enqueued != 5 || stats.Dropped != 0 || stats.Evicted != 2 || stats.Len != 3 {
		t.Errorf("Unexpected stats %+v", stats)
	}

	// evicted records are released
	if records[0].RawIQ != nil || records[1].RawIQ != nil {
		t.Error("Evicted records should be released")
	}

	drained := sb.Drain()
	expected := []int{-2, -3, -4}
	if len(drained) != len(expected) {
		t.Fatalf("Expected %d drained records, got %d", len(expected), len(drained))
	}
	for i, rssi := range expected {
		if drained[i].RSSI != rssi {
			t.Errorf("Drained record %d: expected RSSI %d, got %d", i, rssi, drained[i].RSSI)
		}
	}
}

func TestSampleBuffer_SetOverwrite(t *testing.T) {
	sb, err := NewSampleBuffer(1, false)
	if err != nil {
		t.Fatalf("Failed to create buffer: %v", err)
	}

	_ = sb.Put(newTestRecord(-1))
	if err := sb.Put(newTestRecord(-2)); err == nil {
		t.Error("Expected error when buffer is full")
	}

	sb.SetOverwrite(true)
	if !sb.Overwrite() {
		t.Error("Overwrite should be enabled")
	}
	if err := sb.Put(newTestRecord(-3)); err != nil {
		t.Errorf("Expected overwrite to admit record: %v", err)
	}
	if rec := sb.TryGet(); rec == nil || rec.RSSI != -3 {
		t.Errorf("Expected newest record to survive, got %+v", rec)
	}
}

func TestSampleBuffer_GetTimeout(t *testing.T) {
	sb, err := NewSampleBuffer(4, false)
	if err != nil {
		t.Fatalf("Failed to create buffer: %v", err)
	}

	const timeout = 50 * time.Millisecond
	start := time.Now()
	_, err = sb.Get(context.Background(), timeout)
	elapsed := time.Since(start)

	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("Expected ErrTimeout, got %v", err)
	}
	if elapsed < timeout {
		t.Errorf("Get returned after %s, before the %s timeout", elapsed, timeout)
	}
	if elapsed > timeout+250*time.Millisecond {
		t.Errorf("Get returned after %s, too long past the %s timeout", elapsed, timeout)
	}
}

func TestSampleBuffer_GetWakesOnPut(t *testing.T) {
	sb, err := NewSampleBuffer(4, false)
	if err != nil {
		t.Fatalf("Failed to create buffer: %v", err)
	}

	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = sb.Put(newTestRecord(-42))
	}()

	// zero timeout blocks until a record arrives
	rec, err := sb.Get(context.Background(), 0)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if rec.RSSI != -42 {
		t.Errorf("Expected RSSI -42, got %d", rec.RSSI)
	}
}

func TestSampleBuffer_GetCancelled(t *testing.T) {
	sb, err := NewSampleBuffer(4, false)
	if err != nil {
		t.Fatalf("Failed to create buffer: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	if _, err = sb.Get(ctx, 0); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestSampleBuffer_ConcurrentProducerConsumer(t *testing.T) {
	const total = 1000

	sb, err := NewSampleBuffer(64, false)
	if err != nil {
		t.Fatalf("Failed to create buffer: %v", err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < total; i++ {
			for sb.Put(newTestRecord(i)) != nil {
				time.Sleep(time.Microsecond)
			}
		}
	}()

	for i := 0; i < total; i++ {
		rec, err := sb.Get(context.Background(), time.Second)
		if err != nil {
			t.Fatalf("Get %d failed: %v", i, err)
		}
		if rec.RSSI != i {
			t.Fatalf("Out of order: expected %d, got %d", i, rec.RSSI)
		}
	}
	wg.Wait()
}

func TestSampleBuffer_EdgeCases(t *testing.T) {
	sb, err := NewSampleBuffer(2, false)
	if err != nil {
		t.Fatalf("Failed to create buffer: %v", err)
	}

	if err := sb.Put(nil); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("Expected ErrInvalidArgument when putting nil, got %v", err)
	}
	if sb.Drain() != nil {
		t.Error("Drain on empty buffer should return nil")
	}
	if sb.TryGet() != nil {
		t.Error("TryGet on empty buffer should return nil")
	}
	if sb.Len() != 0 || sb.Cap() != 2 {
		t.Errorf("Unexpected len/cap: %d/%d", sb.Len(), sb.Cap())
	}

	for _, capacity := range []int{0, -1} {
		if _, err := NewSampleBuffer(capacity, false); !errors.Is(err, ErrInvalidArgument) {
			t.Errorf("capacity %d: expected ErrInvalidArgument, got %v", capacity, err)
		}
	}
}
