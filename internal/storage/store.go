package storage

import (
	"context"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roman-kulish/csi-collector/internal/csi"
)

// Store persists capture sessions and the CSI records collected during them.
// All write operations are atomic.
type Store interface {
	// CreateSession starts a new capture session and assigns it a unique run ID.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeouts
	//   - sourceType: Frame source type (e.g., "serial", "replay")
	//   - sourceID: Identifier of the source (e.g., port name or file path)
	//   - config: Optional collector configuration. Can be string, []byte, or JSON-serializable object
	CreateSession(ctx context.Context, sourceType, sourceID string, config any) (*Session, error)

	// Session retrieves a capture session by its ID
	Session(ctx context.Context, id int64) (*Session, error)

	// Sessions returns all capture sessions ordered by start time
	Sessions(ctx context.Context) ([]*Session, error)

	// StoreRecords saves a batch of records for a session in a single transaction
	StoreRecords(ctx context.Context, sessionID int64, records []*csi.Record) error

	// CountRecords returns the number of records stored for a session
	CountRecords(ctx context.Context, sessionID int64) (int64, error)

	// Close releases all database connections and resources.
	// It is safe to call Close multiple times.
	Close() error
}

var _ Store = (*SqliteStore)(nil)
