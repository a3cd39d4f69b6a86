// Package merge reconciles pulled remote records with the local entity
// graph. The resolver is a pure function: it decides, the store applies.
// Policy: last-write-wins per record by modification timestamp, union by
// identifier for collections, and a remote tombstone never deletes a
// record carrying unsynced local edits.
package merge

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/claude/splitlog/internal/models"
	"github.com/claude/splitlog/internal/remote"
)

// Snapshot is the local state the resolver reconciles against. Dirty
// holds ids with unsynced local edits; Tombstones holds local deletes
// not yet pushed, keyed by deletion time.
type Snapshot struct {
	Splits        []models.Split
	CompletedDays []models.CompletedDay
	Profile       *models.Profile
	Dirty         map[uuid.UUID]bool
	Tombstones    map[uuid.UUID]time.Time
}

// Ref names one record by kind and id.
type Ref struct {
	Kind string
	ID   uuid.UUID
}

// SkippedRecord is a remote record excluded from the merge, with the
// reason. Skips are recoverable: the rest of the batch still applies.
type SkippedRecord struct {
	ID   uuid.UUID
	Kind string
	Err  error
}

// Result is the resolver's decision set. Upserts are grouped per type
// and carry scalar fields only (children travel as their own records,
// except CompletedDays, whose payload embeds the whole snapshot tree).
type Result struct {
	Splits        []models.Split
	Days          []models.Day
	Exercises     []models.Exercise
	Sets          []models.Set
	CompletedDays []models.CompletedDay
	Profile       *models.Profile

	// Deletes are local records to remove because a remote tombstone
	// won. DropTombstones are local tombstones superseded by a newer
	// remote edit (the record is resurrected). Dirty re-marks records
	// that must survive and be pushed again.
	Deletes        []Ref
	DropTombstones []uuid.UUID
	Dirty          []Ref

	Skipped []SkippedRecord
}

// Empty reports whether applying the result would change nothing.
func (r Result) Empty() bool {
	return len(r.Splits) == 0 && len(r.Days) == 0 && len(r.Exercises) == 0 &&
		len(r.Sets) == 0 && len(r.CompletedDays) == 0 && r.Profile == nil &&
		len(r.Deletes) == 0 && len(r.DropTombstones) == 0 && len(r.Dirty) == 0
}

// localRecord is the per-id view of the snapshot the resolver needs:
// existence, timestamp, and (for completed days) the date key.
type localRecord struct {
	kind      string
	updatedAt time.Time
	date      string
}

type index struct {
	records  map[uuid.UUID]localRecord
	children map[uuid.UUID][]uuid.UUID
	byDate   map[string]uuid.UUID
}

func buildIndex(local Snapshot) index {
	idx := index{
		records:  make(map[uuid.UUID]localRecord),
		children: make(map[uuid.UUID][]uuid.UUID),
		byDate:   make(map[string]uuid.UUID),
	}
	for _, s := range local.Splits {
		idx.records[s.ID] = localRecord{kind: remote.KindSplit, updatedAt: s.UpdatedAt}
		for _, d := range s.Days {
			idx.records[d.ID] = localRecord{kind: remote.KindDay, updatedAt: d.UpdatedAt}
			idx.children[s.ID] = append(idx.children[s.ID], d.ID)
			for _, e := range d.Exercises {
				idx.records[e.ID] = localRecord{kind: remote.KindExercise, updatedAt: e.UpdatedAt}
				idx.children[d.ID] = append(idx.children[d.ID], e.ID)
				for _, st := range e.Sets {
					idx.records[st.ID] = localRecord{kind: remote.KindSet, updatedAt: st.UpdatedAt}
					idx.children[e.ID] = append(idx.children[e.ID], st.ID)
				}
			}
		}
	}
	for _, cd := range local.CompletedDays {
		idx.records[cd.ID] = localRecord{kind: remote.KindCompletedDay, updatedAt: cd.UpdatedAt, date: cd.Date}
		idx.byDate[cd.Date] = cd.ID
	}
	if local.Profile != nil {
		idx.records[local.Profile.ID] = localRecord{kind: remote.KindProfile, updatedAt: local.Profile.UpdatedAt}
	}
	return idx
}

// dirtyDeep reports whether the record or anything under it carries
// unsynced local edits. Deleting such a record would take the edits
// down with it through the ownership cascade.
func (idx index) dirtyDeep(local Snapshot, id uuid.UUID) bool {
	if local.Dirty[id] {
		return true
	}
	for _, child := range idx.children[id] {
		if idx.dirtyDeep(local, child) {
			return true
		}
	}
	return false
}

// Resolve reconciles a pulled batch against the local snapshot. The
// batch is applied parent-first regardless of wire order. Records that
// fail to decode are skipped individually and never abort the rest.
func Resolve(local Snapshot, records []remote.Record) Result {
	idx := buildIndex(local)
	records = dedupeCompletedDays(records)

	sorted := make([]remote.Record, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		return remote.KindRank(sorted[i].Kind) < remote.KindRank(sorted[j].Kind)
	})

	var res Result
	// Ids upserted earlier in this batch count as present for the
	// orphan check, so a parent and child arriving together both land.
	arrived := make(map[uuid.UUID]bool)

	for _, rec := range sorted {
		if rec.Deleted {
			resolveTombstone(&res, idx, local, rec)
			continue
		}
		resolveUpsert(&res, idx, local, arrived, rec)
	}
	return res
}

func resolveTombstone(res *Result, idx index, local Snapshot, rec remote.Record) {
	lr, exists := idx.records[rec.ID]
	if !exists {
		return
	}
	if idx.dirtyDeep(local, rec.ID) {
		// Unsynced local edits in the subtree outlive the remote
		// delete. Re-mark the record for push with a fresh timestamp
		// so it comes back on the server and beats the tombstone on
		// every other device. Clean siblings still go: their own
		// tombstones land in Deletes below.
		res.Dirty = append(res.Dirty, Ref{Kind: lr.kind, ID: rec.ID})
		return
	}
	res.Deletes = append(res.Deletes, Ref{Kind: lr.kind, ID: rec.ID})
}

func resolveUpsert(res *Result, idx index, local Snapshot, arrived map[uuid.UUID]bool, rec remote.Record) {
	if deletedAt, tombstoned := local.Tombstones[rec.ID]; tombstoned {
		if !rec.UpdatedAt.After(deletedAt) {
			// The local delete is at least as recent; it stands and
			// will be pushed.
			return
		}
		if orphaned(idx, arrived, rec) {
			// The record's parent is gone locally too and the remote
			// edit does not bring it back. The subtree delete stands.
			return
		}
		// The remote edit postdates the local delete: resurrect.
		res.DropTombstones = append(res.DropTombstones, rec.ID)
	} else if lr, exists := idx.records[rec.ID]; exists {
		if !rec.UpdatedAt.After(lr.updatedAt) {
			// Local copy is newer or equally recent. Equal timestamps
			// mean converged (our own push come back), so applying the
			// same batch twice settles to zero actions.
			return
		}
	} else if orphaned(idx, arrived, rec) {
		res.Skipped = append(res.Skipped, SkippedRecord{
			ID:   rec.ID,
			Kind: rec.Kind,
			Err:  fmt.Errorf("parent %s not present locally", rec.ParentID),
		})
		return
	}

	if err := appendUpsert(res, idx, rec); err != nil {
		res.Skipped = append(res.Skipped, SkippedRecord{ID: rec.ID, Kind: rec.Kind, Err: err})
		return
	}
	arrived[rec.ID] = true
}

// orphaned reports whether rec needs a parent that neither the local
// graph nor the current batch provides. Splits, profiles, and snapshot
// days (nil parent) never need one.
func orphaned(idx index, arrived map[uuid.UUID]bool, rec remote.Record) bool {
	switch rec.Kind {
	case remote.KindDay, remote.KindExercise, remote.KindSet:
	default:
		return false
	}
	if rec.ParentID == nil {
		return rec.Kind != remote.KindDay
	}
	if _, ok := idx.records[*rec.ParentID]; ok {
		return false
	}
	return !arrived[*rec.ParentID]
}

func appendUpsert(res *Result, idx index, rec remote.Record) error {
	switch rec.Kind {
	case remote.KindSplit:
		var s models.Split
		if err := decodePayload(rec, &s); err != nil {
			return err
		}
		s.ID = rec.ID
		s.UpdatedAt = rec.UpdatedAt
		s.Days = nil
		res.Splits = append(res.Splits, s)

	case remote.KindDay:
		var d models.Day
		if err := decodePayload(rec, &d); err != nil {
			return err
		}
		d.ID = rec.ID
		d.UpdatedAt = rec.UpdatedAt
		d.Exercises = nil
		if rec.ParentID != nil {
			d.SplitID = *rec.ParentID
		} else {
			d.SplitID = uuid.Nil
		}
		res.Days = append(res.Days, d)

	case remote.KindExercise:
		var e models.Exercise
		if err := decodePayload(rec, &e); err != nil {
			return err
		}
		if rec.ParentID == nil {
			return fmt.Errorf("exercise record missing parent")
		}
		e.ID = rec.ID
		e.UpdatedAt = rec.UpdatedAt
		e.Sets = nil
		e.DayID = *rec.ParentID
		if e.MuscleGroup != "" {
			if g, ok := models.NormalizeMuscleGroup(string(e.MuscleGroup)); ok {
				e.MuscleGroup = g
			}
		}
		res.Exercises = append(res.Exercises, e)

	case remote.KindSet:
		var s models.Set
		if err := decodePayload(rec, &s); err != nil {
			return err
		}
		if rec.ParentID == nil {
			return fmt.Errorf("set record missing parent")
		}
		s.ID = rec.ID
		s.UpdatedAt = rec.UpdatedAt
		s.ExerciseID = *rec.ParentID
		res.Sets = append(res.Sets, s)

	case remote.KindCompletedDay:
		var cd models.CompletedDay
		if err := decodePayload(rec, &cd); err != nil {
			return err
		}
		if cd.Date == "" {
			return fmt.Errorf("completed day record missing date")
		}
		cd.ID = rec.ID
		cd.UpdatedAt = rec.UpdatedAt
		// One record per date: when another id already holds the date,
		// the later-updated record keeps it and the loser goes. Ties
		// break on id so every device converges on the same winner.
		if otherID, taken := idx.byDate[cd.Date]; taken && otherID != rec.ID {
			other := idx.records[otherID]
			if other.updatedAt.After(cd.UpdatedAt) ||
				(other.updatedAt.Equal(cd.UpdatedAt) && otherID.String() > rec.ID.String()) {
				return nil
			}
			res.Deletes = append(res.Deletes, Ref{Kind: remote.KindCompletedDay, ID: otherID})
		}
		res.CompletedDays = append(res.CompletedDays, cd)

	case remote.KindProfile:
		var p models.Profile
		if err := decodePayload(rec, &p); err != nil {
			return err
		}
		p.ID = rec.ID
		p.UpdatedAt = rec.UpdatedAt
		res.Profile = &p

	default:
		return fmt.Errorf("unknown record kind %q", rec.Kind)
	}
	return nil
}

func decodePayload(rec remote.Record, v any) error {
	if len(rec.Payload) == 0 {
		return fmt.Errorf("empty payload")
	}
	if err := json.Unmarshal(rec.Payload, v); err != nil {
		return fmt.Errorf("decoding %s payload: %w", rec.Kind, err)
	}
	return nil
}

// dedupeCompletedDays keeps one completed-day record per date within a
// batch: latest UpdatedAt wins, ties break on id, matching the rule
// used against local records so every device picks the same winner.
func dedupeCompletedDays(records []remote.Record) []remote.Record {
	type holder struct {
		pos int
		rec remote.Record
	}
	byDate := make(map[string]holder)
	drop := make(map[int]bool)
	for i, rec := range records {
		if rec.Kind != remote.KindCompletedDay || rec.Deleted {
			continue
		}
		var probe struct {
			Date string `json:"date"`
		}
		if err := json.Unmarshal(rec.Payload, &probe); err != nil || probe.Date == "" {
			continue // the main loop reports the decode failure
		}
		cur, ok := byDate[probe.Date]
		if !ok {
			byDate[probe.Date] = holder{pos: i, rec: rec}
			continue
		}
		if rec.UpdatedAt.After(cur.rec.UpdatedAt) ||
			(rec.UpdatedAt.Equal(cur.rec.UpdatedAt) && rec.ID.String() > cur.rec.ID.String()) {
			drop[cur.pos] = true
			byDate[probe.Date] = holder{pos: i, rec: rec}
		} else {
			drop[i] = true
		}
	}
	if len(drop) == 0 {
		return records
	}
	out := make([]remote.Record, 0, len(records)-len(drop))
	for i, rec := range records {
		if !drop[i] {
			out = append(out, rec)
		}
	}
	return out
}
