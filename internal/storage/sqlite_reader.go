package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/roman-kulish/csi-collector/internal/csi"
)

// ErrNoData indicates that all available records have been read
var ErrNoData = errors.New("no data available")

var (
	minTime = time.Unix(0, 0).UTC()
	maxTime = time.Date(9999, 12, 31, 23, 59, 59, 0, time.UTC)
)

// ReaderOption configures a record reader with filtering criteria
type ReaderOption func(*SqliteRecordReader)

// WithStartTime excludes records captured before t
func WithStartTime(t time.Time) ReaderOption {
	return func(r *SqliteRecordReader) {
		r.startTime = &t
	}
}

// WithEndTime excludes records captured after t
func WithEndTime(t time.Time) ReaderOption {
	return func(r *SqliteRecordReader) {
		r.endTime = &t
	}
}

// WithTimeRange sets both start and end time filters
func WithTimeRange(startTime, endTime time.Time) ReaderOption {
	return func(r *SqliteRecordReader) {
		r.startTime = &startTime
		r.endTime = &endTime
	}
}

// WithMAC only returns records from the given transmitter
func WithMAC(mac string) ReaderOption {
	return func(r *SqliteRecordReader) {
		r.mac = mac
	}
}

// SqliteRecordReader iterates over the stored records of a capture session.
// A reader instance should only be used from a single goroutine.
type SqliteRecordReader struct {
	db *sql.DB

	sessionID int64
	session   *Session

	startTime *time.Time
	endTime   *time.Time
	mac       string

	current *csi.Record
	rows    *sql.Rows
	err     error
}

func newSqliteRecordReader(ctx context.Context, db *sql.DB, sessionID int64, opts ...ReaderOption) (*SqliteRecordReader, error) {
	rr := &SqliteRecordReader{
		db:        db,
		sessionID: sessionID,
	}
	for _, opt := range opts {
		opt(rr)
	}
	if err := rr.init(ctx); err != nil {
		return nil, fmt.Errorf("initializing reader: %w", err)
	}
	return rr, nil
}

func (rr *SqliteRecordReader) init(ctx context.Context) error {
	if rr.db == nil {
		return errors.New("database connection required")
	}
	if rr.sessionID <= 0 {
		return errors.New("session ID required")
	}

	steps := []struct {
		msg string
		fn  func(context.Context) error
	}{
		{msg: "loading session", fn: rr.loadSession},
		{msg: "initializing filters", fn: rr.initFilters},
		{msg: "initializing query", fn: rr.initQuery},
	}
	for _, s := range steps {
		if err := s.fn(ctx); err != nil {
			return fmt.Errorf("%s: %w", s.msg, err)
		}
	}
	return nil
}

func (rr *SqliteRecordReader) loadSession(ctx context.Context) (err error) {
	rr.session, err = querySession(ctx, rr.db, rr.sessionID)
	return
}

func (rr *SqliteRecordReader) initFilters(context.Context) error {
	if rr.startTime != nil && rr.endTime != nil && rr.startTime.After(*rr.endTime) {
		return fmt.Errorf("start time %s is after end time %s", rr.startTime, rr.endTime)
	}

	if rr.startTime == nil {
		rr.startTime = &minTime
	}
	if rr.endTime == nil {
		rr.endTime = &maxTime
	}

	if rr.mac != "" {
		mac, err := net.ParseMAC(rr.mac)
		if err != nil {
			return fmt.Errorf("invalid mac filter: %w", err)
		}
		rr.mac = mac.String()
	}

	return nil
}

func (rr *SqliteRecordReader) initQuery(ctx context.Context) (err error) {
	start, end := rr.startTime.UTC(), rr.endTime.UTC()

	rr.rows, err = rr.db.QueryContext(ctx, selectRecordsSQL, rr.sessionID, start, end, rr.mac, rr.mac)
	return
}

// Session returns the capture session this reader is accessing
func (rr *SqliteRecordReader) Session() *Session {
	return rr.session
}

// Next advances the iterator and returns true if there is another record
// to read, false when the iteration is complete or an error occurred.
func (rr *SqliteRecordReader) Next(ctx context.Context) bool {
	if rr.err != nil || rr.rows == nil {
		return false
	}

	if err := ctx.Err(); err != nil {
		rr.err = err
		return false
	}

	if !rr.rows.Next() {
		if err := rr.rows.Err(); err != nil {
			rr.err = fmt.Errorf("iterating records: %w", err)
		} else {
			rr.err = ErrNoData
		}
		rr.current = nil
		return false
	}

	var data recordData
	err := rr.rows.Scan(
		&data.Timestamp,
		&data.MAC,
		&data.RSSI,
		&data.Channel,
		&data.SecondaryChannel,
		&data.Subcarriers,
		&data.RawIQ,
		&data.Amplitude,
		&data.Phase,
		&data.Significant,
	)
	if err != nil {
		rr.err = fmt.Errorf("scanning record: %w", err)
		return false
	}

	if rr.current, err = fromRecordData(&data); err != nil {
		rr.err = err
		return false
	}
	return true
}

// Current returns the record read by the last successful call to Next
func (rr *SqliteRecordReader) Current() *csi.Record {
	return rr.current
}

// Error returns the error that stopped the iteration; nil once all records were read
func (rr *SqliteRecordReader) Error() error {
	if errors.Is(rr.err, ErrNoData) {
		return nil
	}
	return rr.err
}

// Close releases the database resources held by the reader
func (rr *SqliteRecordReader) Close() error {
	if rr.rows == nil {
		return nil
	}
	err := rr.rows.Close()
	rr.rows = nil
	return err
}
