package csi

import (
	"fmt"
	"math"
	"time"
)

const (
	SampleRateMin = 1
	SampleRateMax = 100

	BufferCapacityMin = 256
	BufferCapacityMax = 4096
)

// Config is the collector configuration
type Config struct {
	SampleRate      int     `yaml:"sampleRate" json:"sampleRate"`           // Processing rate in Hz (1-100)
	BufferCapacity  int     `yaml:"bufferCapacity" json:"bufferCapacity"`   // Sample buffer capacity in records (256-4096)
	FilterEnabled   bool    `yaml:"filterEnabled" json:"filterEnabled"`     // Run records through the filter engine
	FilterThreshold float64 `yaml:"filterThreshold" json:"filterThreshold"` // Filter threshold (0.0-1.0)
	EnableRSSI      bool    `yaml:"enableRSSI" json:"enableRSSI"`           // Kept for configuration compatibility, has no effect
	EnablePhase     bool    `yaml:"enablePhase" json:"enablePhase"`         // Derive phase per subcarrier
	EnableAmplitude bool    `yaml:"enableAmplitude" json:"enableAmplitude"` // Derive amplitude per subcarrier
	OverwriteOldest bool    `yaml:"overwriteOldest" json:"overwriteOldest"` // Evict the oldest record when the buffer is full
}

// DefaultConfig returns the stock node configuration
func DefaultConfig() Config {
	return Config{
		SampleRate:      20,
		BufferCapacity:  1024,
		FilterEnabled:   false,
		FilterThreshold: 0.5,
		EnableRSSI:      true,
		EnablePhase:     true,
		EnableAmplitude: true,
	}
}

func (c *Config) Validate() error {
	if c.SampleRate < SampleRateMin || c.SampleRate > SampleRateMax {
		return fmt.Errorf("%w: csi.Config: invalid sample rate: %d, must be between %d and %d Hz",
			ErrInvalidArgument, c.SampleRate, SampleRateMin, SampleRateMax)
	}
	if c.BufferCapacity < BufferCapacityMin || c.BufferCapacity > BufferCapacityMax {
		return fmt.Errorf("%w: csi.Config: invalid buffer capacity: %d, must be between %d and %d",
			ErrInvalidArgument, c.BufferCapacity, BufferCapacityMin, BufferCapacityMax)
	}
	if math.IsNaN(c.FilterThreshold) || c.FilterThreshold < 0 || c.FilterThreshold > 1 {
		return fmt.Errorf("%w: csi.Config: filter threshold must be between 0 and 1: %0.2f given",
			ErrInvalidArgument, c.FilterThreshold)
	}
	return nil
}

// Interval is the processing loop cadence
func (c *Config) Interval() time.Duration {
	if c.SampleRate <= 0 {
		return time.Second
	}
	return time.Second / time.Duration(c.SampleRate)
}

// Derive returns the derivation flags for record conversion
func (c *Config) Derive() Derive {
	return Derive{
		Amplitude: c.EnableAmplitude,
		Phase:     c.EnablePhase,
	}
}

// Stats holds cumulative collector counters
type Stats struct {
	PacketsReceived  uint64    `json:"packetsReceived"`  // Frames handed over by the driver
	PacketsProcessed uint64    `json:"packetsProcessed"` // Records that made it through the loop
	PacketsDropped   uint64    `json:"packetsDropped"`   // Records lost to conversion, buffer or filter
	FilterHits       uint64    `json:"filterHits"`       // Records that passed the filter
	BufferOverruns   uint64    `json:"bufferOverruns"`   // Output channel was full
	AverageRSSI      float64   `json:"averageRSSI"`      // Exponential moving average, alpha 0.1
	LastPacketTime   time.Time `json:"lastPacketTime"`   // Timestamp of the last processed record
}
