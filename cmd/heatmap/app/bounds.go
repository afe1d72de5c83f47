package app

import (
	"math"
	"slices"

	"gonum.org/v1/gonum/stat"
)

const (
	defaultMinAmplitude = 0.0
	defaultMaxAmplitude = 64.0

	// 5th and 95th percentiles need at least 20 values to mean anything
	minimumSampleCount = 20

	lowerQuantile = 0.05
	upperQuantile = 0.95

	minimumRange = 4.0
	boundsMargin = 0.1
)

// AmplitudeBounds is the amplitude range mapped onto the colour scale
type AmplitudeBounds struct {
	Min  float64 // 5th percentile less a margin
	Max  float64 // 95th percentile plus a margin
	Mean float64
}

func defaultAmplitudeBounds() AmplitudeBounds {
	return AmplitudeBounds{
		Min:  defaultMinAmplitude,
		Max:  defaultMaxAmplitude,
		Mean: (defaultMinAmplitude + defaultMaxAmplitude) / 2,
	}
}

// PercentileBounds computes colour scale bounds from the 5th and 95th
// percentiles of values. NaN values are ignored. Fewer than 20 values yield
// the default bounds.
func PercentileBounds(values []float64) AmplitudeBounds {
	sorted := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			sorted = append(sorted, v)
		}
	}
	if len(sorted) < minimumSampleCount {
		return defaultAmplitudeBounds()
	}
	slices.Sort(sorted)

	lo := stat.Quantile(lowerQuantile, stat.Empirical, sorted, nil)
	hi := stat.Quantile(upperQuantile, stat.Empirical, sorted, nil)

	if hi-lo < minimumRange {
		center := (hi + lo) / 2
		lo, hi = center-minimumRange/2, center+minimumRange/2
	}

	margin := (hi - lo) * boundsMargin
	return AmplitudeBounds{
		Min:  max(lo-margin, 0),
		Max:  hi + margin,
		Mean: stat.Mean(sorted, nil),
	}
}

// Override replaces either bound with a manual value when one is given
func (b AmplitudeBounds) Override(minAmplitude, maxAmplitude *float64) AmplitudeBounds {
	if minAmplitude != nil {
		b.Min = *minAmplitude
	}
	if maxAmplitude != nil {
		b.Max = *maxAmplitude
	}
	return b
}
