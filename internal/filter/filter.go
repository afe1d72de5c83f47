// Package filter implements the stateful gate that every CSI record passes
// through before it reaches consumers.
//
// The engine rejects records whose RSSI falls below a threshold derived from
// the configured ratio, and keeps a short circular history of per-subcarrier
// amplitude and phase values. A record whose mean amplitude deviates from the
// historical mean by more than the threshold is flagged as significant. The
// amplitude path never rejects a record on its own.
package filter

import (
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync"

	"gonum.org/v1/gonum/stat"

	"github.com/roman-kulish/csi-collector/internal/csi"
)

const (
	// HistoryDepth is the number of past records kept per subcarrier
	HistoryDepth = 10

	// deviationEpsilon keeps the relative deviation finite for a zero history mean
	deviationEpsilon = 1e-3

	// phaseStabilityFactor scales the threshold into a phase variance bound
	phaseStabilityFactor = 0.1
)

// Outcome is the result of evaluating a record
type Outcome int

const (
	Pass Outcome = iota
	Rejected
)

func (o Outcome) String() string {
	switch o {
	case Pass:
		return "pass"
	case Rejected:
		return "rejected"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// Config is the filter engine configuration
type Config struct {
	Threshold float64 // Ratio in [0,1]; RSSI gate is -100*Threshold dBm
	Amplitude bool    // Track amplitude history and flag significant deviations
	Phase     bool    // Track phase history and report phase stability
}

func (c *Config) Validate() error {
	if math.IsNaN(c.Threshold) || c.Threshold < 0 || c.Threshold > 1 {
		return fmt.Errorf("%w: filter.Config: threshold must be between 0 and 1: %0.2f given",
			csi.ErrInvalidArgument, c.Threshold)
	}
	return nil
}

// RSSIThreshold returns the minimum RSSI, in dBm, a record needs to pass
func (c *Config) RSSIThreshold() float64 {
	return -100 * c.Threshold
}

// Stats holds the engine counters
type Stats struct {
	Processed uint64
	Passed    uint64
	Filtered  uint64
}

// slot is one history entry
type slot struct {
	values [csi.MaxSubcarriers]float64
	count  int // number of valid values, 0 for an empty slot
}

// WithLogger sets the logger for the engine
func WithLogger(logger *slog.Logger) func(e *Engine) {
	return func(e *Engine) {
		e.logger = logger.With(slog.String("component", "filter"))
	}
}

// Engine is a thread-safe, stateful CSI record filter
type Engine struct {
	mu     sync.Mutex
	config Config

	amplitude [HistoryDepth]slot
	phase     [HistoryDepth]slot
	cursor    int

	stats Stats

	scratch [csi.MaxSubcarriers]float64
	logger  *slog.Logger
}

// New creates a new filter engine. Returns an error wrapping csi.ErrInvalidArgument
// if the threshold is out of range.
func New(config Config, options ...func(e *Engine)) (*Engine, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	e := Engine{
		config: config,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&e)
	}

	return &e, nil
}

// Evaluate runs a record through the filter. The RSSI gate decides the outcome;
// the amplitude and phase histories are updated for every record regardless of it.
// Evaluate may set rec.Valid when the record's amplitude deviates significantly.
func (e *Engine) Evaluate(rec *csi.Record) Outcome {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.stats.Processed++

	outcome := Pass
	if float64(rec.RSSI) < e.config.RSSIThreshold() {
		outcome = Rejected
	}

	if e.config.Amplitude && rec.Amplitude != nil {
		values := rec.Amplitude[:min(len(rec.Amplitude), rec.SubcarrierCount)]

		if outcome == Pass && len(values) > 0 {
			current := stat.Mean(values, nil)
			if historical, ok := e.historicalMean(len(values)); ok {
				deviation := math.Abs(current-historical) / (historical + deviationEpsilon)
				if deviation > e.config.Threshold {
					rec.Valid = true
					e.logger.Debug("significant amplitude change",
						slog.String("mac", rec.MACString()),
						slog.Float64("deviation", deviation))
				}
			}
		}

		e.amplitude[e.cursor].store(values)
	}

	if e.config.Phase && rec.Phase != nil {
		values := rec.Phase[:min(len(rec.Phase), rec.SubcarrierCount)]

		if len(values) > 0 {
			mean, variance := stat.PopMeanVariance(values, nil)
			if variance < e.config.Threshold*phaseStabilityFactor {
				e.logger.Debug("high phase stability",
					slog.String("mac", rec.MACString()),
					slog.Float64("mean", mean),
					slog.Float64("variance", variance))
			}
		}

		e.phase[e.cursor].store(values)
	}

	e.cursor = (e.cursor + 1) % HistoryDepth

	if outcome == Pass {
		e.stats.Passed++
	} else {
		e.stats.Filtered++
	}

	return outcome
}

// historicalMean averages the means of all non-empty amplitude slots, each over
// at most n values. Must be called with mu held.
func (e *Engine) historicalMean(n int) (float64, bool) {
	var sum float64
	var slots int

	for i := range e.amplitude {
		s := &e.amplitude[i]
		if s.count == 0 {
			continue
		}

		count := min(s.count, n)
		copy(e.scratch[:count], s.values[:count])
		sum += stat.Mean(e.scratch[:count], nil)
		slots++
	}

	if slots == 0 {
		return 0, false
	}
	return sum / float64(slots), true
}

func (s *slot) store(values []float64) {
	s.count = copy(s.values[:], values)
}

// Stats returns a snapshot of the engine counters
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}

// Config returns the current configuration
func (e *Engine) Config() Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.config
}

// UpdateConfig replaces the configuration in place. Counters and history are kept.
func (e *Engine) UpdateConfig(config Config) error {
	if err := config.Validate(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.config = config
	return nil
}

// Reset zeroes the counters and clears the history
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.stats = Stats{}
	e.amplitude = [HistoryDepth]slot{}
	e.phase = [HistoryDepth]slot{}
	e.cursor = 0
}
