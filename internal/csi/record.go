package csi

import (
	"fmt"
	"math"
	"net"
	"time"
)

const (
	// MaxSubcarriers is the maximum number of subcarriers derived from a frame
	MaxSubcarriers = 64

	// MaxDataLen is the largest raw I/Q payload, in bytes, a record can hold
	MaxDataLen = 1024
)

// RawFrame is a frame as delivered by the radio driver
type RawFrame struct {
	MAC              [6]byte // Transmitter hardware address
	RSSI             int8    // Received signal strength in dBm
	Channel          uint8   // Primary Wi-Fi channel
	SecondaryChannel uint8   // Secondary channel (0 none, 1 above, 2 below)
	IQ               []byte  // Interleaved signed bytes: re0, im0, re1, im1, ...
}

// Derive selects which values are computed from the raw I/Q stream
type Derive struct {
	Amplitude bool
	Phase     bool
}

// Record is a single observed CSI sample.
//
// A record has exactly one holder at a time. It moves from the collector through
// the sample buffer to the output channel; whoever holds it last may call Release.
type Record struct {
	Timestamp        time.Time // Capture time, optionally corrected by time sync
	MAC              [6]byte   // Transmitter hardware address
	RSSI             int       // Received signal strength in dBm
	Channel          uint8     // Primary Wi-Fi channel
	SecondaryChannel uint8     // Secondary channel
	RawIQ            []int8    // Owned copy of the raw I/Q stream
	SubcarrierCount  int       // min(len(RawIQ)/2, MaxSubcarriers)
	Amplitude        []float64 // Per subcarrier amplitude, nil unless derived
	Phase            []float64 // Per subcarrier phase in radians, nil unless derived
	Valid            bool      // Set on construction; promoted by the amplitude filter
}

// NewRecord converts a raw frame into a record captured at ts.
// Frames with more than MaxDataLen bytes of I/Q data are rejected with ErrResourceExhausted.
func NewRecord(frame RawFrame, ts time.Time, derive Derive) (*Record, error) {
	if len(frame.IQ) > MaxDataLen {
		return nil, fmt.Errorf("%w: csi payload of %d bytes exceeds %d", ErrResourceExhausted, len(frame.IQ), MaxDataLen)
	}

	raw := make([]int8, len(frame.IQ))
	for i, b := range frame.IQ {
		raw[i] = int8(b)
	}

	rec := &Record{
		Timestamp:        ts,
		MAC:              frame.MAC,
		RSSI:             int(frame.RSSI),
		Channel:          frame.Channel,
		SecondaryChannel: frame.SecondaryChannel,
		RawIQ:            raw,
		SubcarrierCount:  SubcarrierCount(len(raw)),
		Valid:            true,
	}

	if derive.Amplitude {
		rec.Amplitude = make([]float64, rec.SubcarrierCount)
		for i := range rec.Amplitude {
			re, im := float64(raw[2*i]), float64(raw[2*i+1])
			rec.Amplitude[i] = math.Sqrt(re*re + im*im)
		}
	}

	if derive.Phase {
		rec.Phase = make([]float64, rec.SubcarrierCount)
		for i := range rec.Phase {
			rec.Phase[i] = math.Atan2(float64(raw[2*i+1]), float64(raw[2*i]))
		}
	}

	return rec, nil
}

// SubcarrierCount returns the number of subcarriers carried by n bytes of I/Q data
func SubcarrierCount(n int) int {
	return min(n/2, MaxSubcarriers)
}

// MACString returns the transmitter address in colon notation
func (r *Record) MACString() string {
	return net.HardwareAddr(r.MAC[:]).String()
}

// Clone returns a deep copy of the record
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}

	c := *r
	if r.RawIQ != nil {
		c.RawIQ = append([]int8(nil), r.RawIQ...)
	}
	if r.Amplitude != nil {
		c.Amplitude = append([]float64(nil), r.Amplitude...)
	}
	if r.Phase != nil {
		c.Phase = append([]float64(nil), r.Phase...)
	}
	return &c
}

// Release drops the record's owned arrays. It is safe to call more than once
// and on a nil record.
func (r *Record) Release() {
	if r == nil {
		return
	}
	r.RawIQ = nil
	r.Amplitude = nil
	r.Phase = nil
}
