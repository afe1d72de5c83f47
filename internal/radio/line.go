package radio

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// ParseErrorsThreshold defines the number of consecutive parse errors allowed
	ParseErrorsThreshold = 5

	// maxLineSize fits a CSI_DATA line carrying the largest I/Q payload
	maxLineSize = 64 * 1024
)

var (
	// ErrTooManyParseErrors is returned when the number of consecutive parse errors exceeds the threshold
	ErrTooManyParseErrors = errors.New("too many consecutive parse errors")

	// ErrBrokenPipe is returned when reading from the source fails
	ErrBrokenPipe = errors.New("broken pipe")

	// ErrAlreadyRunning is returned by Run when the read loop is already active
	ErrAlreadyRunning = errors.New("line driver is already running")
)

// WithLogger sets the logger for the line driver
func WithLogger(logger *slog.Logger) func(d *LineDriver) {
	return func(d *LineDriver) {
		d.logger = logger.With(slog.String("source", d.name))
	}
}

// WithParseErrorsThreshold sets the threshold for consecutive parse errors
func WithParseErrorsThreshold(threshold uint8) func(d *LineDriver) {
	return func(d *LineDriver) {
		d.parseErrorsThreshold = threshold
	}
}

// WithFrameInterval paces delivery to one frame per interval. Used for replay.
func WithFrameInterval(interval time.Duration) func(d *LineDriver) {
	return func(d *LineDriver) {
		d.interval = interval
	}
}

// LineDriver reads ESP32 CSI_DATA console lines from a source, such as a serial
// port or a capture file, and delivers the parsed frames to the registered handler.
// Frames read while no handler is registered are discarded.
type LineDriver struct {
	dispatcher

	name   string
	source io.ReadCloser

	isRunning atomic.Bool
	closed    atomic.Bool
	closeOnce sync.Once

	delivered atomic.Uint64
	discarded atomic.Uint64

	interval             time.Duration
	parseErrorsThreshold uint8
	logger               *slog.Logger
}

// NewLineDriver creates a new line driver reading from source with a discard logger
func NewLineDriver(name string, source io.ReadCloser, options ...func(d *LineDriver)) *LineDriver {
	d := LineDriver{
		name:                 name,
		source:               source,
		parseErrorsThreshold: ParseErrorsThreshold,
		logger:               slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&d)
	}

	return &d
}

// Run reads the source until it is exhausted, closed, ctx is done, or too many
// consecutive lines fail to parse. Lines that are not CSI_DATA lines are skipped.
func (d *LineDriver) Run(ctx context.Context) error {
	if !d.isRunning.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer d.isRunning.Store(false)

	// unblock the scanner when ctx ends
	stop := context.AfterFunc(ctx, func() { _ = d.Close() })
	defer stop()

	d.logger.Info("reading csi frames...")
	defer func() {
		d.logger.Info("csi frame source stopped",
			slog.Uint64("delivered", d.delivered.Load()),
			slog.Uint64("discarded", d.discarded.Load()))
	}()

	var ticker *time.Ticker
	if d.interval > 0 {
		ticker = time.NewTicker(d.interval)
		defer ticker.Stop()
	}

	var parseErrors uint8

	scanner := bufio.NewScanner(d.source)
	scanner.Buffer(make([]byte, 4096), maxLineSize)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		frame, err := ParseLine(line)
		if errors.Is(err, ErrNotCSI) {
			d.logger.Debug("console >> " + line)
			continue
		}
		if err != nil {
			parseErrors++
			d.logger.Warn(fmt.Sprintf("error parsing csi line: %s", err.Error()), slog.String("line", line))

			if parseErrors >= d.parseErrorsThreshold {
				return ErrTooManyParseErrors
			}
			continue
		}

		parseErrors = 0 // reset counter

		if ticker != nil {
			select {
			case <-ticker.C:
			case <-ctx.Done():
				return nil
			}
		}

		if d.deliver(frame) {
			d.delivered.Add(1)
		} else {
			d.discarded.Add(1)
		}
	}

	if err := scanner.Err(); err != nil && ctx.Err() == nil && !d.closed.Load() && !errors.Is(err, io.EOF) && !errors.Is(err, fs.ErrClosed) {
		return fmt.Errorf("%w: error reading csi source: %w", ErrBrokenPipe, err)
	}

	return nil
}

// IsRunning returns true while the read loop is active
func (d *LineDriver) IsRunning() bool {
	return d.isRunning.Load()
}

// Delivered returns the number of frames handed to a handler
func (d *LineDriver) Delivered() uint64 {
	return d.delivered.Load()
}

// Close closes the underlying source. It is safe to call more than once.
func (d *LineDriver) Close() error {
	var err error
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		err = d.source.Close()
	})
	return err
}
