package csi

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRecord_SubcarrierCount(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		length   int
		expected int
	}{
		{"empty payload", 0, 0},
		{"single byte", 1, 0},
		{"one subcarrier", 2, 1},
		{"odd length", 13, 6},
		{"52 subcarriers", 104, 52},
		{"exactly 64", 128, 64},
		{"longer than 64", 384, 64},
		{"max payload", MaxDataLen, 64},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			frame := RawFrame{IQ: make([]byte, tc.length)}
			rec, err := NewRecord(frame, time.Now(), Derive{Amplitude: true, Phase: true})
			require.NoError(t, err)

			assert.Equal(t, tc.expected, rec.SubcarrierCount)
			assert.Len(t, rec.RawIQ, tc.length)
			assert.Len(t, rec.Amplitude, tc.expected)
			assert.Len(t, rec.Phase, tc.expected)
			assert.True(t, rec.Valid)
		})
	}
}

func TestNewRecord_AmplitudeAndPhase(t *testing.T) {
	t.Parallel()

	neg := int8(-3)
	frame := RawFrame{
		MAC:              [6]byte{0xaa, 0xbb, 0xcc, 0x01, 0x02, 0x03},
		RSSI:             -47,
		Channel:          6,
		SecondaryChannel: 1,
		IQ:               []byte{3, 4, byte(neg), 0},
	}
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	rec, err := NewRecord(frame, ts, Derive{Amplitude: true, Phase: true})
	require.NoError(t, err)

	assert.Equal(t, ts, rec.Timestamp)
	assert.Equal(t, -47, rec.RSSI)
	assert.Equal(t, uint8(6), rec.Channel)
	assert.Equal(t, uint8(1), rec.SecondaryChannel)
	assert.Equal(t, "aa:bb:cc:01:02:03", rec.MACString())
	assert.Equal(t, []int8{3, 4, -3, 0}, rec.RawIQ)

	require.Len(t, rec.Amplitude, 2)
	assert.InDelta(t, 5.0, rec.Amplitude[0], 1e-9)
	assert.InDelta(t, 3.0, rec.Amplitude[1], 1e-9)

	require.Len(t, rec.Phase, 2)
	assert.InDelta(t, 0.9273, rec.Phase[0], 1e-4)
	assert.InDelta(t, math.Pi, rec.Phase[1], 1e-9)
}

func TestNewRecord_DerivationDisabled(t *testing.T) {
	t.Parallel()

	rec, err := NewRecord(RawFrame{IQ: []byte{3, 4}}, time.Now(), Derive{})
	require.NoError(t, err)

	assert.Nil(t, rec.Amplitude)
	assert.Nil(t, rec.Phase)
	assert.Equal(t, 1, rec.SubcarrierCount)
}

func TestNewRecord_OversizedPayload(t *testing.T) {
	t.Parallel()

	rec, err := NewRecord(RawFrame{IQ: make([]byte, MaxDataLen+1)}, time.Now(), Derive{Amplitude: true})
	assert.ErrorIs(t, err, ErrResourceExhausted)
	assert.Nil(t, rec)
}

func TestRecord_ReleaseAndClone(t *testing.T) {
	t.Parallel()

	rec, err := NewRecord(RawFrame{IQ: []byte{3, 4, 5, 12}}, time.Now(), Derive{Amplitude: true, Phase: true})
	require.NoError(t, err)

	clone := rec.Clone()
	clone.Amplitude[0] = 100
	assert.InDelta(t, 5.0, rec.Amplitude[0], 1e-9, "clone must not share arrays")

	rec.Release()
	assert.Nil(t, rec.RawIQ)
	assert.Nil(t, rec.Amplitude)
	assert.Nil(t, rec.Phase)

	// releasing twice or a nil record is a no-op
	rec.Release()
	var nilRec *Record
	nilRec.Release()
	assert.Nil(t, nilRec.Clone())

	assert.Len(t, clone.RawIQ, 4)
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	valid := DefaultConfig()
	require.NoError(t, valid.Validate())

	testCases := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"zero sample rate", func(c *Config) { c.SampleRate = 0 }},
		{"excessive sample rate", func(c *Config) { c.SampleRate = 150 }},
		{"small buffer", func(c *Config) { c.BufferCapacity = 100 }},
		{"large buffer", func(c *Config) { c.BufferCapacity = 8192 }},
		{"negative threshold", func(c *Config) { c.FilterThreshold = -0.1 }},
		{"threshold above one", func(c *Config) { c.FilterThreshold = 1.5 }},
		{"NaN threshold", func(c *Config) { c.FilterThreshold = math.NaN() }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c := DefaultConfig()
			tc.mutate(&c)
			assert.ErrorIs(t, c.Validate(), ErrInvalidArgument)
		})
	}
}

func TestConfig_Interval(t *testing.T) {
	t.Parallel()

	c := DefaultConfig()
	assert.Equal(t, 50*time.Millisecond, c.Interval())

	c.SampleRate = 100
	assert.Equal(t, 10*time.Millisecond, c.Interval())

	c.SampleRate = 1
	assert.Equal(t, time.Second, c.Interval())
}
