package app

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roman-kulish/csi-collector/internal/csi"
	"github.com/roman-kulish/csi-collector/internal/storage"
)

// flushInterval bounds how long a partial batch waits before it is written
const flushInterval = time.Second

// WithRecorderLogger sets the logger for the recorder
func WithRecorderLogger(logger *slog.Logger) func(r *Recorder) {
	return func(r *Recorder) {
		r.logger = logger.With(slog.String("component", "recorder"))
	}
}

// WithFlushInterval sets how long a partial batch may wait before it is written
func WithFlushInterval(interval time.Duration) func(r *Recorder) {
	return func(r *Recorder) {
		r.flushInterval = interval
	}
}

// RecorderStats is a snapshot of the recorder counters
type RecorderStats struct {
	Stored  uint64
	Dropped uint64 // Queue was full or the recorder was closed
	Failed  uint64 // Records lost to storage errors
}

// Recorder persists processed records in batches. Observe is registered as the
// collector callback; writes happen on the recorder's own goroutine so the
// processing loop never waits for the database.
type Recorder struct {
	store     storage.Store
	sessionID int64

	mu     sync.RWMutex // guards closed against sends on a closed queue
	queue  chan *csi.Record
	closed bool
	wg     sync.WaitGroup

	stored  atomic.Uint64
	dropped atomic.Uint64
	failed  atomic.Uint64

	maxBatchSize  int
	flushInterval time.Duration
	logger        *slog.Logger
}

// NewRecorder creates a recorder and starts its writer goroutine
func NewRecorder(store storage.Store, sessionID int64, queueSize, maxBatchSize int, options ...func(r *Recorder)) *Recorder {
	r := Recorder{
		store:         store,
		sessionID:     sessionID,
		queue:         make(chan *csi.Record, queueSize),
		maxBatchSize:  maxBatchSize,
		flushInterval: flushInterval,
		logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&r)
	}

	r.wg.Add(1)
	go r.run()

	return &r
}

// Observe queues a copy of rec for storage without blocking
func (r *Recorder) Observe(rec csi.Record) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		r.dropped.Add(1)
		return
	}

	select {
	case r.queue <- rec.Clone():
	default:
		r.dropped.Add(1)
	}
}

// Close flushes queued records and stops the writer. Records observed after
// Close are counted as dropped.
func (r *Recorder) Close() error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
	r.mu.Unlock()

	r.wg.Wait()
	return nil
}

// Stats returns a snapshot of the recorder counters
func (r *Recorder) Stats() RecorderStats {
	return RecorderStats{
		Stored:  r.stored.Load(),
		Dropped: r.dropped.Load(),
		Failed:  r.failed.Load(),
	}
}

func (r *Recorder) run() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.flushInterval)
	defer ticker.Stop()

	batch := make([]*csi.Record, 0, r.maxBatchSize)

	for {
		select {
		case rec, ok := <-r.queue:
			if !ok {
				r.flush(batch)
				return
			}

			batch = append(batch, rec)
			if len(batch) >= r.maxBatchSize {
				r.flush(batch)
				batch = batch[:0]
			}

		case <-ticker.C:
			r.flush(batch)
			batch = batch[:0]
		}
	}
}

func (r *Recorder) flush(batch []*csi.Record) {
	if len(batch) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := r.store.StoreRecords(ctx, r.sessionID, batch); err != nil {
		r.failed.Add(uint64(len(batch)))
		r.logger.Error("storing records: "+err.Error(), slog.Int("records", len(batch)))
	} else {
		r.stored.Add(uint64(len(batch)))
	}

	for i, rec := range batch {
		rec.Release()
		batch[i] = nil
	}
}
