package storage

import (
	"encoding/binary"
	"fmt"
	"math"
	"net"

	"github.com/google/uuid"

	"github.com/roman-kulish/csi-collector/internal/csi"
)

func closeWithError(cl interface{ Close() error }, err *error) {
	if cErr := cl.Close(); cErr != nil && *err == nil {
		*err = cErr
	}
}

func rollbackWithError(rb interface{ Rollback() error }, err *error) {
	if cErr := rb.Rollback(); cErr != nil && *err == nil {
		*err = cErr
	}
}

func toRecordData(sessionID int64, rec *csi.Record) *recordData {
	return &recordData{
		SessionID:        sessionID,
		Timestamp:        rec.Timestamp.UTC(),
		MAC:              rec.MACString(),
		RSSI:             rec.RSSI,
		Channel:          rec.Channel,
		SecondaryChannel: rec.SecondaryChannel,
		Subcarriers:      rec.SubcarrierCount,
		RawIQ:            encodeIQ(rec.RawIQ),
		Amplitude:        encodeFloats(rec.Amplitude),
		Phase:            encodeFloats(rec.Phase),
		Significant:      rec.Valid,
	}
}

func fromRecordData(data *recordData) (*csi.Record, error) {
	rec := csi.Record{
		Timestamp:        data.Timestamp,
		RSSI:             data.RSSI,
		Channel:          data.Channel,
		SecondaryChannel: data.SecondaryChannel,
		RawIQ:            decodeIQ(data.RawIQ),
		SubcarrierCount:  data.Subcarriers,
		Valid:            data.Significant,
	}

	mac, err := net.ParseMAC(data.MAC)
	if err != nil || len(mac) != len(rec.MAC) {
		return nil, fmt.Errorf("invalid mac address %q", data.MAC)
	}
	copy(rec.MAC[:], mac)

	if rec.Amplitude, err = decodeFloats(data.Amplitude); err != nil {
		return nil, fmt.Errorf("decoding amplitude: %w", err)
	}
	if rec.Phase, err = decodeFloats(data.Phase); err != nil {
		return nil, fmt.Errorf("decoding phase: %w", err)
	}

	return &rec, nil
}

func toSession(data *sessionData) (*Session, error) {
	runID, err := uuid.Parse(data.RunID)
	if err != nil {
		return nil, fmt.Errorf("parsing run ID: %w", err)
	}

	sess := Session{
		ID:         data.ID,
		RunID:      runID,
		StartTime:  data.StartTime,
		SourceType: data.SourceType,
		SourceID:   data.SourceID,
	}
	if data.Config.Valid {
		sess.Config = &data.Config.String
	}
	return &sess, nil
}

// encodeFloats packs values as little-endian IEEE 754; nil stays nil so that
// the column is NULL for values that were never derived
func encodeFloats(values []float64) []byte {
	if values == nil {
		return nil
	}

	p := make([]byte, 0, len(values)*8)
	for _, v := range values {
		p = binary.LittleEndian.AppendUint64(p, math.Float64bits(v))
	}
	return p
}

func decodeFloats(p []byte) ([]float64, error) {
	if p == nil {
		return nil, nil
	}
	if len(p)%8 != 0 {
		return nil, fmt.Errorf("invalid blob length %d", len(p))
	}

	values := make([]float64, len(p)/8)
	for i := range values {
		values[i] = math.Float64frombits(binary.LittleEndian.Uint64(p[i*8:]))
	}
	return values, nil
}

func encodeIQ(iq []int8) []byte {
	if iq == nil {
		return nil
	}

	p := make([]byte, len(iq))
	for i, v := range iq {
		p[i] = byte(v)
	}
	return p
}

func decodeIQ(p []byte) []int8 {
	if p == nil {
		return nil
	}

	iq := make([]int8, len(p))
	for i, b := range p {
		iq[i] = int8(b)
	}
	return iq
}
