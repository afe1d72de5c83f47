package app

import (
	"math"
	"math/cmplx"
	"time"

	"github.com/roman-kulish/csi-collector/internal/csi"
)

// SubcarrierSpacing is the OFDM subcarrier spacing of 20 MHz Wi-Fi channels, in Hz
const SubcarrierSpacing = 312_500.0

// AmplitudeGrid is the per-subcarrier amplitude history of a session, one row per record
type AmplitudeGrid struct {
	Width, Height                int // Subcarriers, records
	TimestampStart, TimestampEnd time.Time
	Channel                      uint8 // Primary channel of the first record
	Flagged                      int   // Number of significant records
	Rows                         [][]float64
	RowFlagged                   []bool
	RowTimes                     []time.Time

	values []float64 // every amplitude, for the bounds
}

func NewAmplitudeGrid() *AmplitudeGrid {
	return &AmplitudeGrid{}
}

// Update appends a record as a new row. Amplitudes are derived from the raw
// I/Q stream when the record was stored without them.
func (g *AmplitudeGrid) Update(rec *csi.Record) {
	amplitude := rec.Amplitude
	if amplitude == nil {
		amplitude = amplitudeFromIQ(rec.RawIQ, rec.SubcarrierCount)
	}

	if g.Height == 0 {
		g.Channel = rec.Channel
	}
	g.Width = max(g.Width, len(amplitude))
	g.Height++

	if g.TimestampStart.IsZero() || g.TimestampStart.After(rec.Timestamp) {
		g.TimestampStart = rec.Timestamp
	}
	if g.TimestampEnd.IsZero() || g.TimestampEnd.Before(rec.Timestamp) {
		g.TimestampEnd = rec.Timestamp
	}

	row := make([]float64, len(amplitude))
	copy(row, amplitude)
	g.values = append(g.values, row...)

	g.Rows = append(g.Rows, row)
	g.RowFlagged = append(g.RowFlagged, rec.Valid)
	g.RowTimes = append(g.RowTimes, rec.Timestamp)
	if rec.Valid {
		g.Flagged++
	}
}

// Value returns the amplitude at the given row and subcarrier, NaN if the row
// is shorter than the grid
func (g *AmplitudeGrid) Value(row, subcarrier int) float64 {
	if subcarrier >= len(g.Rows[row]) {
		return math.NaN()
	}
	return g.Rows[row][subcarrier]
}

// Bounds returns the percentile bounds of every amplitude in the grid
func (g *AmplitudeGrid) Bounds() AmplitudeBounds {
	return PercentileBounds(g.values)
}

// CenterFrequency returns the centre frequency of the primary channel in Hz, 0 if unknown
func (g *AmplitudeGrid) CenterFrequency() float64 {
	return channelFrequency(g.Channel)
}

// SubcarrierOffset returns the frequency offset of a subcarrier from the channel centre, in Hz
func (g *AmplitudeGrid) SubcarrierOffset(subcarrier int) float64 {
	return float64(subcarrier-g.Width/2) * SubcarrierSpacing
}

func amplitudeFromIQ(iq []int8, subcarriers int) []float64 {
	n := min(subcarriers, len(iq)/2)
	amplitude := make([]float64, n)
	for i := range amplitude {
		amplitude[i] = cmplx.Abs(complex(float64(iq[2*i]), float64(iq[2*i+1])))
	}
	return amplitude
}

func channelFrequency(channel uint8) float64 {
	switch {
	case channel >= 1 && channel <= 13:
		return (2407 + 5*float64(channel)) * 1e6
	case channel == 14:
		return 2484e6
	case channel >= 32 && channel <= 177:
		return (5000 + 5*float64(channel)) * 1e6
	default:
		return 0
	}
}
