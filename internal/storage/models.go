package storage

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Session is a single capture run of the collector against one frame source
type Session struct {
	ID         int64     `json:"ID"`                      // Database identifier
	RunID      uuid.UUID `json:"runID"`                   // Globally unique run identifier
	StartTime  time.Time `json:"startTime"`               // When the run began
	SourceType string    `json:"sourceType"`              // Frame source type, e.g. "serial", "replay"
	SourceID   string    `json:"sourceID"`                // Port name or replay file
	Config     *string   `json:"config,string,omitempty"` // Collector configuration in JSON format
}

type sessionData struct {
	ID         int64
	RunID      string
	StartTime  time.Time
	SourceType string
	SourceID   string
	Config     sql.NullString
}

type recordData struct {
	SessionID        int64
	Timestamp        time.Time
	MAC              string
	RSSI             int
	Channel          uint8
	SecondaryChannel uint8
	Subcarriers      int
	RawIQ            []byte
	Amplitude        []byte
	Phase            []byte
	Significant      bool
}
