// Package remote defines the sync wire contract: one record per entity,
// a client interface for push/pull/delete, and the error taxonomy the
// coordinator reacts to. Records are opaque to the transport; only the
// merge resolver decodes payloads.
package remote

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Record kinds. Application order is parent before child so a pulled
// batch can be applied in a single pass.
const (
	KindSplit        = "split"
	KindDay          = "day"
	KindExercise     = "exercise"
	KindSet          = "set"
	KindCompletedDay = "completed_day"
	KindProfile      = "profile"
)

// KindRank orders kinds parent-first for batch application. Unknown
// kinds sort last so they are seen only after the known graph.
func KindRank(kind string) int {
	switch kind {
	case KindProfile:
		return 0
	case KindSplit:
		return 1
	case KindDay:
		return 2
	case KindExercise:
		return 3
	case KindSet:
		return 4
	case KindCompletedDay:
		return 5
	}
	return 6
}

// Record is one entity on the wire. ParentID carries the owning
// relationship (day→split, exercise→day, set→exercise); the payload is
// the entity's JSON without its children, which travel as their own
// records. A deleted record is a tombstone and carries no payload.
type Record struct {
	ID        uuid.UUID       `json:"id"`
	Kind      string          `json:"kind"`
	ParentID  *uuid.UUID      `json:"parentId,omitempty"`
	UpdatedAt time.Time       `json:"updatedAt"`
	Deleted   bool            `json:"deleted,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// PullResult is one page of remote records plus the cursor to resume
// from on the next pull.
type PullResult struct {
	Records    []Record `json:"records"`
	NextCursor string   `json:"nextCursor"`
}
