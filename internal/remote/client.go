package remote

import (
	"context"

	"github.com/google/uuid"
)

// Client is the remote store contract the coordinator drives. Push
// uploads local records, Pull pages remote changes from a cursor,
// Delete propagates a single tombstone. Implementations classify
// failures as *SyncError and never retry internally: retry policy
// belongs to the coordinator's trigger schedule.
type Client interface {
	Push(ctx context.Context, records []Record) error
	Pull(ctx context.Context, cursor string) (PullResult, error)
	Delete(ctx context.Context, id uuid.UUID) error
}
