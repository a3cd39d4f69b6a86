package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/claude/splitlog/internal/remote"
)

// ErrNotFound is returned when a record id is not in the log.
var ErrNotFound = errors.New("record not found")

// Each accepted write takes a fresh seq so the record re-enters every
// device's change feed. Stale writes fail the WHERE clause and affect
// zero rows.
const upsertRecordSQL = `
INSERT INTO sync_records (id, kind, parent_id, updated_at, deleted, payload)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (id) DO UPDATE SET
    kind        = EXCLUDED.kind,
    parent_id   = EXCLUDED.parent_id,
    updated_at  = EXCLUDED.updated_at,
    deleted     = EXCLUDED.deleted,
    payload     = EXCLUDED.payload,
    received_at = now(),
    seq         = nextval('sync_records_seq_seq')
WHERE sync_records.updated_at < EXCLUDED.updated_at`

// UpsertRecords applies a pushed batch with last-writer-wins per record.
// The batch lands in one transaction, in slice order, so parents take
// lower sequence numbers than the children pushed with them. Returns
// the number of records accepted; the rest were stale.
func (db *DB) UpsertRecords(ctx context.Context, records []remote.Record) (int, error) {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("beginning batch: %w", err)
	}
	defer tx.Rollback(ctx)

	accepted := 0
	for _, rec := range records {
		tag, err := tx.Exec(ctx, upsertRecordSQL,
			rec.ID, rec.Kind, rec.ParentID, rec.UpdatedAt.UTC(), rec.Deleted, rec.Payload)
		if err != nil {
			return 0, fmt.Errorf("upserting record %s: %w", rec.ID, err)
		}
		accepted += int(tag.RowsAffected())
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("committing batch: %w", err)
	}
	return accepted, nil
}

// RecordsSince returns records with a sequence number greater than
// cursor, oldest first, at most limit of them, plus the cursor to
// resume from. When nothing is newer the input cursor comes back.
func (db *DB) RecordsSince(ctx context.Context, cursor int64, limit int) ([]remote.Record, int64, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT seq, id, kind, parent_id, updated_at, deleted, payload
		FROM sync_records
		WHERE seq > $1
		ORDER BY seq
		LIMIT $2`, cursor, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("querying records since %d: %w", cursor, err)
	}
	defer rows.Close()

	next := cursor
	var records []remote.Record
	for rows.Next() {
		var (
			seq int64
			rec remote.Record
		)
		if err := rows.Scan(&seq, &rec.ID, &rec.Kind, &rec.ParentID, &rec.UpdatedAt, &rec.Deleted, &rec.Payload); err != nil {
			return nil, 0, fmt.Errorf("scanning record: %w", err)
		}
		records = append(records, rec)
		next = seq
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterating records: %w", err)
	}
	return records, next, nil
}

// Tombstone marks one record deleted and drops its payload. The
// tombstone takes a fresh seq and the current server time, so it wins
// over anything written before it.
func (db *DB) Tombstone(ctx context.Context, id uuid.UUID) error {
	tag, err := db.Pool.Exec(ctx, `
		UPDATE sync_records
		SET deleted = TRUE, payload = NULL, updated_at = now(),
		    received_at = now(), seq = nextval('sync_records_seq_seq')
		WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("tombstoning record %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
