package mcp

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/claude/splitlog/internal/models"
	"github.com/claude/splitlog/internal/store"
	"github.com/claude/splitlog/internal/syncer"
)

// Store is the slice of the local store the MCP surface reads. The
// concrete *store.Store satisfies it; tests run it on an in-memory
// database.
type Store interface {
	Splits(ctx context.Context) ([]models.Split, error)
	SplitByID(ctx context.Context, id uuid.UUID) (*models.Split, error)
	ActiveSplit(ctx context.Context) (*models.Split, error)
	TodayDay(ctx context.Context, now time.Time) (*models.Day, int, error)
	CompletedDaysBetween(ctx context.Context, from, to string) ([]models.CompletedDay, error)
	Profile(ctx context.Context) (models.Profile, error)
}

// Syncer triggers sync passes and reports their outcome. Nil is legal:
// a node without a configured server answers the sync tools with an
// explanatory error instead.
type Syncer interface {
	SyncNow(ctx context.Context) error
	Status(ctx context.Context) (syncer.Status, error)
}

// Compile-time checks: the real dependencies satisfy the interfaces.
var (
	_ Store  = (*store.Store)(nil)
	_ Syncer = (*syncer.Coordinator)(nil)
)
