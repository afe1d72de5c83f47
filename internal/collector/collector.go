// Package collector runs the CSI acquisition pipeline: it receives raw frames
// from a radio driver, converts them into records, buffers them, runs them
// through the filter engine on a fixed cadence and hands the survivors to
// consumers through an output channel and an optional callback.
package collector

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/roman-kulish/csi-collector/internal/clock"
	"github.com/roman-kulish/csi-collector/internal/csi"
	"github.com/roman-kulish/csi-collector/internal/filter"
	"github.com/roman-kulish/csi-collector/internal/radio"
)

const (
	// OutputDepth is the default capacity of the output channel
	OutputDepth = 10

	// BufferWait bounds how long one loop iteration waits for a buffered record
	BufferWait = 100 * time.Millisecond

	// StopTimeout bounds how long Stop waits for the processing loop to exit
	StopTimeout = 250 * time.Millisecond

	// rssiAlpha is the smoothing factor of the RSSI moving average
	rssiAlpha = 0.1
)

// State is the collector lifecycle state
type State int

const (
	StateUninitialized State = iota
	StateInitialized
	StateRunning
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitialized:
		return "initialized"
	case StateRunning:
		return "running"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Callback observes every processed record. It runs synchronously on the
// processing goroutine and receives a shallow copy; consumers that retain the
// sample arrays beyond the call must use Clone.
type Callback func(rec csi.Record)

// WithLogger sets the logger for the collector
func WithLogger(logger *slog.Logger) func(c *Collector) {
	return func(c *Collector) {
		c.logger = logger.With(slog.String("component", "collector"))
	}
}

// WithClock sets the capture time source
func WithClock(clk clock.Clock) func(c *Collector) {
	return func(c *Collector) {
		c.clock = clk
	}
}

// WithOutputDepth sets the capacity of the output channel
func WithOutputDepth(depth int) func(c *Collector) {
	return func(c *Collector) {
		if depth > 0 {
			c.outputDepth = depth
		}
	}
}

// WithBufferWait sets how long each loop iteration waits for a buffered record
func WithBufferWait(wait time.Duration) func(c *Collector) {
	return func(c *Collector) {
		if wait > 0 {
			c.bufferWait = wait
		}
	}
}

// WithStopTimeout bounds how long Stop waits for the processing loop
func WithStopTimeout(timeout time.Duration) func(c *Collector) {
	return func(c *Collector) {
		if timeout > 0 {
			c.stopTimeout = timeout
		}
	}
}

// WithDrainOnStop makes Stop process every record still in the sample buffer
// before the loop exits. Stop then waits for the drain to finish.
func WithDrainOnStop(drain bool) func(c *Collector) {
	return func(c *Collector) {
		c.drainOnStop = drain
	}
}

// WithFilterRebuildOnUpdate makes UpdateConfig replace the running filter
// engine, resetting its counters and history, instead of updating it in place.
func WithFilterRebuildOnUpdate(rebuild bool) func(c *Collector) {
	return func(c *Collector) {
		c.rebuildFilter = rebuild
	}
}

// Collector orchestrates the acquisition pipeline
type Collector struct {
	lifecycle sync.Mutex // serialises Init, Start, Stop, Deinit and UpdateConfig

	mu      sync.RWMutex
	state   State
	config  csi.Config
	buffer  *csi.SampleBuffer
	filter  *filter.Engine
	output  chan *csi.Record
	cancel  context.CancelFunc
	done    chan struct{} // closed when the processing loop exits
	stopped chan struct{} // closed by Stop to release GetData waiters

	statsMu  sync.Mutex
	stats    csi.Stats
	callback Callback

	driver radio.Driver
	clock  clock.Clock

	outputDepth   int
	bufferWait    time.Duration
	stopTimeout   time.Duration
	drainOnStop   bool
	rebuildFilter bool

	logger *slog.Logger
}

// New creates a new, uninitialized collector receiving frames from driver
func New(driver radio.Driver, options ...func(c *Collector)) *Collector {
	c := Collector{
		driver:      driver,
		clock:       clock.System{},
		outputDepth: OutputDepth,
		bufferWait:  BufferWait,
		stopTimeout: StopTimeout,
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&c)
	}

	return &c
}

// Init validates config and allocates the pipeline. Calling Init on an
// initialized or running collector succeeds without changing anything.
func (c *Collector) Init(config csi.Config) error {
	if err := config.Validate(); err != nil {
		return err
	}

	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateUninitialized {
		c.logger.Warn("collector already initialized")
		return nil
	}

	buffer, err := csi.NewSampleBuffer(config.BufferCapacity, config.OverwriteOldest)
	if err != nil {
		return fmt.Errorf("creating sample buffer: %w", err)
	}

	var engine *filter.Engine
	if config.FilterEnabled {
		if engine, err = filter.New(filterConfig(config), filter.WithLogger(c.logger)); err != nil {
			return fmt.Errorf("creating filter: %w", err)
		}
	}

	c.config = config
	c.buffer = buffer
	c.filter = engine
	c.output = make(chan *csi.Record, c.outputDepth)
	c.state = StateInitialized

	c.statsMu.Lock()
	c.stats = csi.Stats{}
	c.statsMu.Unlock()

	c.logger.Info("collector initialized",
		slog.Int("sampleRate", config.SampleRate),
		slog.Int("bufferCapacity", config.BufferCapacity),
		slog.Bool("filterEnabled", config.FilterEnabled))

	return nil
}

// Start launches the processing loop and registers with the radio driver.
// Returns csi.ErrInvalidState before Init; starting a running collector is a no-op.
func (c *Collector) Start() error {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	c.mu.Lock()
	switch c.state {
	case StateUninitialized:
		c.mu.Unlock()
		return fmt.Errorf("%w: collector not initialized", csi.ErrInvalidState)
	case StateRunning:
		c.mu.Unlock()
		c.logger.Warn("collector already running")
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	c.cancel = cancel
	c.done = done
	c.stopped = make(chan struct{})
	c.state = StateRunning
	buffer, output := c.buffer, c.output
	c.mu.Unlock()

	go c.run(ctx, buffer, output, done)

	// the driver may deliver frames as soon as the handler is registered
	if err := c.driver.RegisterRawFrameHandler(c.HandleFrame); err != nil {
		c.mu.Lock()
		c.state = StateInitialized
		close(c.stopped)
		c.cancel, c.done = nil, nil
		c.mu.Unlock()

		cancel()
		<-done
		return fmt.Errorf("registering frame handler: %w", err)
	}

	c.logger.Info("collector started")
	return nil
}

// Stop unregisters from the driver and stops the processing loop. Stopping a
// collector that is not running is a no-op.
func (c *Collector) Stop() error {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	return c.stop()
}

// stop must be called with lifecycle held
func (c *Collector) stop() error {
	c.mu.RLock()
	running := c.state == StateRunning
	c.mu.RUnlock()

	if !running {
		return nil
	}

	// must not hold mu: the driver waits for in-flight HandleFrame calls
	if err := c.driver.UnregisterRawFrameHandler(); err != nil {
		c.logger.Warn("error unregistering frame handler", slog.String("error", err.Error()))
	}

	c.mu.Lock()
	c.state = StateInitialized
	cancel, done := c.cancel, c.done
	close(c.stopped)
	c.cancel, c.done = nil, nil
	c.mu.Unlock()

	cancel()

	if c.drainOnStop {
		<-done
	} else {
		select {
		case <-done:
		case <-time.After(c.stopTimeout):
			c.logger.Warn("processing loop did not stop in time", slog.Duration("timeout", c.stopTimeout))
		}
	}

	c.logger.Info("collector stopped")
	return nil
}

// Deinit stops the collector if running and releases the pipeline. Buffered
// and queued records are released. Calling Deinit more than once is a no-op.
func (c *Collector) Deinit() error {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	if err := c.stop(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateUninitialized {
		return nil
	}

	var released int
	for _, rec := range c.buffer.Drain() {
		rec.Release()
		released++
	}

	for draining := true; draining; {
		select {
		case rec := <-c.output:
			rec.Release()
			released++
		default:
			draining = false
		}
	}

	c.buffer = nil
	c.filter = nil
	c.output = nil
	c.state = StateUninitialized

	c.statsMu.Lock()
	c.stats = csi.Stats{}
	c.statsMu.Unlock()

	c.logger.Info("collector deinitialized", slog.Int("released", released))
	return nil
}

// HandleFrame converts a raw frame into a record and queues it. It is the
// handler registered with the radio driver and never blocks beyond lock hold
// times. Frames arriving while the collector is not running are ignored.
func (c *Collector) HandleFrame(frame csi.RawFrame) {
	c.mu.RLock()
	if c.state != StateRunning {
		c.mu.RUnlock()
		return
	}
	derive := c.config.Derive()
	buffer := c.buffer
	c.mu.RUnlock()

	c.statsMu.Lock()
	c.stats.PacketsReceived++
	c.statsMu.Unlock()

	rec, err := csi.NewRecord(frame, c.clock.Now(), derive)
	if err == nil {
		err = buffer.Put(rec)
	}

	if err != nil {
		c.statsMu.Lock()
		c.stats.PacketsDropped++
		c.statsMu.Unlock()

		c.logger.Debug("frame dropped", slog.String("error", err.Error()))
	}
}

// run is the processing loop
func (c *Collector) run(ctx context.Context, buffer *csi.SampleBuffer, output chan<- *csi.Record, done chan<- struct{}) {
	defer close(done)

	c.logger.Debug("processing loop started")
	defer c.logger.Debug("processing loop stopped")

	timer := time.NewTimer(0)
	defer timer.Stop()
	<-timer.C

	for ctx.Err() == nil {
		if rec, err := buffer.Get(ctx, c.bufferWait); err == nil {
			c.process(rec, output)
		}

		timer.Reset(c.interval())
		select {
		case <-timer.C:
		case <-ctx.Done():
		}
	}

	if !c.drainOnStop {
		return
	}

	var drained int
	for rec := buffer.TryGet(); rec != nil; rec = buffer.TryGet() {
		c.process(rec, output)
		drained++
	}
	if drained > 0 {
		c.logger.Info("drained sample buffer", slog.Int("records", drained))
	}
}

// process filters a record, updates the statistics and hands it to consumers
func (c *Collector) process(rec *csi.Record, output chan<- *csi.Record) {
	c.mu.RLock()
	engine := c.filter
	filtering := c.config.FilterEnabled
	c.mu.RUnlock()

	if filtering && engine != nil {
		if engine.Evaluate(rec) == filter.Rejected {
			c.statsMu.Lock()
			c.stats.PacketsDropped++
			c.statsMu.Unlock()

			rec.Release()
			return
		}

		c.statsMu.Lock()
		c.stats.FilterHits++
		c.statsMu.Unlock()
	}

	// taken before the send, the consumer owns rec afterwards
	observed := *rec

	c.statsMu.Lock()
	c.stats.PacketsProcessed++
	c.stats.AverageRSSI = c.stats.AverageRSSI*(1-rssiAlpha) + float64(rec.RSSI)*rssiAlpha
	c.stats.LastPacketTime = rec.Timestamp
	callback := c.callback
	c.statsMu.Unlock()

	queued := true
	select {
	case output <- rec:
	default:
		queued = false

		c.statsMu.Lock()
		c.stats.BufferOverruns++
		c.statsMu.Unlock()
	}

	if callback != nil {
		callback(observed)
	}

	if !queued {
		rec.Release()
	}
}

func (c *Collector) interval() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.config.Interval()
}

// GetData returns the next processed record. A timeout of zero or less waits
// until a record arrives or ctx is done. Returns csi.ErrInvalidState if the
// collector is not running or stops while waiting, and csi.ErrTimeout when the
// wait expires.
func (c *Collector) GetData(ctx context.Context, timeout time.Duration) (*csi.Record, error) {
	c.mu.RLock()
	if c.state != StateRunning {
		c.mu.RUnlock()
		return nil, fmt.Errorf("%w: collector not running", csi.ErrInvalidState)
	}
	output, stopped := c.output, c.stopped
	c.mu.RUnlock()

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case rec := <-output:
		return rec, nil
	case <-stopped:
		return nil, fmt.Errorf("%w: collector stopped", csi.ErrInvalidState)
	case <-expired:
		return nil, csi.ErrTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// RegisterCallback sets the observer invoked for every processed record
func (c *Collector) RegisterCallback(cb Callback) error {
	if cb == nil {
		return fmt.Errorf("%w: nil callback", csi.ErrInvalidArgument)
	}

	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	c.callback = cb
	return nil
}

// UnregisterCallback removes the observer
func (c *Collector) UnregisterCallback() {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	c.callback = nil
}

// Stats returns a snapshot of the collector counters
func (c *Collector) Stats() csi.Stats {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	return c.stats
}

// ResetStats zeroes the collector counters
func (c *Collector) ResetStats() {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	c.stats = csi.Stats{}
}

// FilterStats returns the filter engine counters, if an engine exists
func (c *Collector) FilterStats() (filter.Stats, bool) {
	c.mu.RLock()
	engine := c.filter
	c.mu.RUnlock()

	if engine == nil {
		return filter.Stats{}, false
	}
	return engine.Stats(), true
}

// BufferStats returns the sample buffer counters, if the collector is initialized
func (c *Collector) BufferStats() (csi.BufferStats, bool) {
	c.mu.RLock()
	buffer := c.buffer
	c.mu.RUnlock()

	if buffer == nil {
		return csi.BufferStats{}, false
	}
	return buffer.Stats(), true
}

// UpdateConfig validates and applies a new configuration. The overwrite policy
// applies to the live buffer immediately; a new buffer capacity takes effect at
// the next Init. An existing filter engine is updated in place, whether or not
// the collector is running, unless it was built WithFilterRebuildOnUpdate.
func (c *Collector) UpdateConfig(config csi.Config) error {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateUninitialized {
		return fmt.Errorf("%w: collector not initialized", csi.ErrInvalidState)
	}

	if err := config.Validate(); err != nil {
		return err
	}

	c.config = config
	c.buffer.SetOverwrite(config.OverwriteOldest)

	if config.FilterEnabled && c.filter != nil {
		if c.rebuildFilter {
			engine, err := filter.New(filterConfig(config), filter.WithLogger(c.logger))
			if err != nil {
				return fmt.Errorf("creating filter: %w", err)
			}
			c.filter = engine
		} else if err := c.filter.UpdateConfig(filterConfig(config)); err != nil {
			return fmt.Errorf("updating filter: %w", err)
		}
	}

	c.logger.Info("collector configuration updated",
		slog.Int("sampleRate", config.SampleRate),
		slog.Bool("filterEnabled", config.FilterEnabled),
		slog.Float64("filterThreshold", config.FilterThreshold))

	return nil
}

// Config returns the current configuration. Returns csi.ErrInvalidState before Init.
func (c *Collector) Config() (csi.Config, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.state == StateUninitialized {
		return csi.Config{}, fmt.Errorf("%w: collector not initialized", csi.ErrInvalidState)
	}
	return c.config, nil
}

// State returns the lifecycle state
func (c *Collector) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// IsRunning returns true while the processing loop is active
func (c *Collector) IsRunning() bool {
	return c.State() == StateRunning
}

func filterConfig(config csi.Config) filter.Config {
	return filter.Config{
		Threshold: config.FilterThreshold,
		Amplitude: config.EnableAmplitude,
		Phase:     config.EnablePhase,
	}
}
