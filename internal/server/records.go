package server

import (
	"context"

	"github.com/google/uuid"

	"github.com/claude/splitlog/internal/remote"
)

// RecordStore is the record log behind the sync endpoints.
type RecordStore interface {
	// UpsertRecords applies a pushed batch with last-writer-wins per
	// record, ignoring stale writes. Returns the number accepted.
	UpsertRecords(ctx context.Context, records []remote.Record) (int, error)
	// RecordsSince returns records with a sequence number greater than
	// cursor, oldest first, at most limit of them, plus the cursor to
	// resume from.
	RecordsSince(ctx context.Context, cursor int64, limit int) ([]remote.Record, int64, error)
	// Tombstone marks one record deleted. Returns storage.ErrNotFound
	// for an unknown id.
	Tombstone(ctx context.Context, id uuid.UUID) error
}
