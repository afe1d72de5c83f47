package app

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roman-kulish/csi-collector/internal/csi"
	"github.com/roman-kulish/csi-collector/internal/storage"
)

func testRecord(rssi int) csi.Record {
	return csi.Record{
		Timestamp:       time.Now(),
		MAC:             [6]byte{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff},
		RSSI:            rssi,
		RawIQ:           []int8{3, 4},
		SubcarrierCount: 1,
		Amplitude:       []float64{5},
		Valid:           true,
	}
}

func TestRecorder_StoresBatches(t *testing.T) {
	ctx := context.Background()

	store := storage.NewSqliteStore(filepath.Join(t.TempDir(), "csi.db"))
	defer store.Close()

	session, err := store.CreateSession(ctx, "replay", "test.log", nil)
	require.NoError(t, err)

	r := NewRecorder(store, session.ID, 64, 10)
	for i := range 25 {
		r.Observe(testRecord(-40 - i))
	}
	require.NoError(t, r.Close())
	require.NoError(t, r.Close())

	assert.Equal(t, RecorderStats{Stored: 25}, r.Stats())

	count, err := store.CountRecords(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(25), count)
}

func TestRecorder_FlushesPartialBatch(t *testing.T) {
	ctx := context.Background()

	store := storage.NewSqliteStore(filepath.Join(t.TempDir(), "csi.db"))
	defer store.Close()

	session, err := store.CreateSession(ctx, "replay", "test.log", nil)
	require.NoError(t, err)

	r := NewRecorder(store, session.ID, 64, 100, WithFlushInterval(10*time.Millisecond))
	defer r.Close()

	r.Observe(testRecord(-40))
	require.Eventually(t, func() bool { return r.Stats().Stored == 1 }, time.Second, 5*time.Millisecond)
}

func TestRecorder_ObserveCopiesRecord(t *testing.T) {
	store := &blockingStore{release: make(chan struct{})}

	r := NewRecorder(store, 1, 4, 1)

	rec := testRecord(-40)
	r.Observe(rec)
	rec.Amplitude[0] = 100 // the caller's arrays may be reused

	close(store.release)
	require.NoError(t, r.Close())

	require.Len(t, store.got, 1)
	assert.Equal(t, 5.0, store.got[0])
}

func TestRecorder_QueueFullAndFailures(t *testing.T) {
	store := &blockingStore{release: make(chan struct{}), err: errors.New("disk full")}

	r := NewRecorder(store, 1, 2, 1)

	// one record in flight, two queued, the rest dropped
	for range 10 {
		r.Observe(testRecord(-40))
	}
	require.Eventually(t, func() bool { return r.Stats().Dropped >= 7 }, time.Second, time.Millisecond)

	close(store.release)
	require.NoError(t, r.Close())

	stats := r.Stats()
	assert.Zero(t, stats.Stored)
	assert.Equal(t, uint64(10), stats.Failed+stats.Dropped)
}

func TestRecorder_ObserveAfterClose(t *testing.T) {
	store := &blockingStore{release: make(chan struct{})}
	close(store.release)

	r := NewRecorder(store, 1, 4, 1)
	r.Observe(testRecord(-40))
	require.NoError(t, r.Close())
	require.NoError(t, r.Close())

	assert.NotPanics(t, func() { r.Observe(testRecord(-41)) })

	stats := r.Stats()
	assert.Equal(t, uint64(1), stats.Stored)
	assert.Equal(t, uint64(1), stats.Dropped)
	assert.Equal(t, []float64{5}, store.got)
}

// blockingStore holds the first write until release is closed
type blockingStore struct {
	storage.Store

	release chan struct{}
	err     error
	got     []float64
}

func (s *blockingStore) StoreRecords(_ context.Context, _ int64, records []*csi.Record) error {
	<-s.release
	for _, rec := range records {
		s.got = append(s.got, rec.Amplitude...)
	}
	return s.err
}
