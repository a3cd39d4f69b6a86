package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/golang/snappy"
	"github.com/google/uuid"

	"github.com/claude/splitlog/internal/remote"
	"github.com/claude/splitlog/internal/storage"
)

const testKey = "test-key"

// memStore is an in-memory RecordStore with the same last-writer-wins
// and sequencing behavior as the Postgres implementation.
type memStore struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*memRow
	seq  int64
}

type memRow struct {
	seq int64
	rec remote.Record
}

func newMemStore() *memStore {
	return &memStore{rows: make(map[uuid.UUID]*memRow)}
}

func (m *memStore) UpsertRecords(ctx context.Context, records []remote.Record) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	accepted := 0
	for _, rec := range records {
		if row, ok := m.rows[rec.ID]; ok && !rec.UpdatedAt.After(row.rec.UpdatedAt) {
			continue
		}
		m.seq++
		m.rows[rec.ID] = &memRow{seq: m.seq, rec: rec}
		accepted++
	}
	return accepted, nil
}

func (m *memStore) RecordsSince(ctx context.Context, cursor int64, limit int) ([]remote.Record, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var rows []*memRow
	for _, row := range m.rows {
		if row.seq > cursor {
			rows = append(rows, row)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].seq < rows[j].seq })
	if len(rows) > limit {
		rows = rows[:limit]
	}
	next := cursor
	var records []remote.Record
	for _, row := range rows {
		records = append(records, row.rec)
		next = row.seq
	}
	return records, next, nil
}

func (m *memStore) Tombstone(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return storage.ErrNotFound
	}
	m.seq++
	row.seq = m.seq
	row.rec.Deleted = true
	row.rec.Payload = nil
	row.rec.UpdatedAt = time.Now().UTC()
	return nil
}

func newTestServer(t *testing.T) (*httptest.Server, *memStore) {
	t.Helper()
	ms := newMemStore()
	ts := httptest.NewServer(New(ms, testKey, slog.Default()))
	t.Cleanup(ts.Close)
	return ts, ms
}

func sampleRecord(kind string, at time.Time) remote.Record {
	return remote.Record{
		ID:        uuid.New(),
		Kind:      kind,
		UpdatedAt: at,
		Payload:   json.RawMessage(`{"name":"Bench Press"}`),
	}
}

// rawPush sends a push request without the sync client, so malformed
// bodies and headers can be exercised.
func rawPush(t *testing.T, url, key string, body []byte, snappyBody bool) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url+"/api/v1/sync/push", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if snappyBody {
		req.Header.Set("Content-Encoding", "snappy")
	}
	if key != "" {
		req.Header.Set("X-API-Key", key)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("push request: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodePushResult(t *testing.T, resp *http.Response) pushResult {
	t.Helper()
	var res pushResult
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		t.Fatalf("decoding push result: %v", err)
	}
	return res
}

// TestPushPullRoundTrip drives the real sync client against the server:
// a pushed batch comes back out of a pull with the cursor advanced, and
// a second pull from that cursor is empty.
func TestPushPullRoundTrip(t *testing.T) {
	ts, _ := newTestServer(t)
	client := remote.NewHTTPClient(ts.URL, testKey)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Millisecond)
	batch := []remote.Record{
		sampleRecord(remote.KindSplit, now),
		sampleRecord(remote.KindDay, now.Add(time.Second)),
		sampleRecord(remote.KindExercise, now.Add(2*time.Second)),
	}
	if err := client.Push(ctx, batch); err != nil {
		t.Fatalf("Push: %v", err)
	}

	res, err := client.Pull(ctx, "")
	if err != nil {
		t.Fatalf("Pull: %v", err)
	}
	if len(res.Records) != 3 {
		t.Fatalf("pulled %d records, want 3", len(res.Records))
	}
	if res.NextCursor != "3" {
		t.Errorf("next cursor = %q, want %q", res.NextCursor, "3")
	}
	for i, rec := range res.Records {
		if rec.ID != batch[i].ID {
			t.Errorf("record %d: id = %s, want %s", i, rec.ID, batch[i].ID)
		}
		if !rec.UpdatedAt.Equal(batch[i].UpdatedAt) {
			t.Errorf("record %d: updatedAt = %v, want %v", i, rec.UpdatedAt, batch[i].UpdatedAt)
		}
	}

	res, err = client.Pull(ctx, "3")
	if err != nil {
		t.Fatalf("Pull from cursor: %v", err)
	}
	if len(res.Records) != 0 {
		t.Errorf("pull past head returned %d records", len(res.Records))
	}
	if res.NextCursor != "3" {
		t.Errorf("caught-up cursor = %q, want %q", res.NextCursor, "3")
	}
}

// TestPushRejectsStale ignores a record older than the stored one and
// reports it in the push result.
func TestPushRejectsStale(t *testing.T) {
	ts, _ := newTestServer(t)
	client := remote.NewHTTPClient(ts.URL, testKey)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Millisecond)
	rec := sampleRecord(remote.KindSplit, now)
	if err := client.Push(ctx, []remote.Record{rec}); err != nil {
		t.Fatalf("Push: %v", err)
	}

	stale := rec
	stale.UpdatedAt = now.Add(-time.Minute)
	stale.Payload = json.RawMessage(`{"name":"Stale"}`)
	body, _ := json.Marshal([]remote.Record{stale})
	resp := rawPush(t, ts.URL, testKey, snappy.Encode(nil, body), true)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if res := decodePushResult(t, resp); res.Accepted != 0 || res.Ignored != 1 {
		t.Errorf("push result = %+v, want 0 accepted 1 ignored", res)
	}

	pulled, err := client.Pull(ctx, "")
	if err != nil {
		t.Fatalf("Pull: %v", err)
	}
	if len(pulled.Records) != 1 {
		t.Fatalf("pulled %d records, want 1", len(pulled.Records))
	}
	if string(pulled.Records[0].Payload) != `{"name":"Bench Press"}` {
		t.Errorf("stale write replaced payload: %s", pulled.Records[0].Payload)
	}
}

// TestPushNewerWins replaces a stored record with a newer version and
// moves it past the old cursor position.
func TestPushNewerWins(t *testing.T) {
	ts, _ := newTestServer(t)
	client := remote.NewHTTPClient(ts.URL, testKey)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Millisecond)
	rec := sampleRecord(remote.KindSplit, now)
	other := sampleRecord(remote.KindSplit, now)
	if err := client.Push(ctx, []remote.Record{rec, other}); err != nil {
		t.Fatalf("Push: %v", err)
	}

	newer := rec
	newer.UpdatedAt = now.Add(time.Minute)
	newer.Payload = json.RawMessage(`{"name":"Incline Press"}`)
	if err := client.Push(ctx, []remote.Record{newer}); err != nil {
		t.Fatalf("Push newer: %v", err)
	}

	// A device caught up to seq 2 still sees the update.
	res, err := client.Pull(ctx, "2")
	if err != nil {
		t.Fatalf("Pull: %v", err)
	}
	if len(res.Records) != 1 || res.Records[0].ID != rec.ID {
		t.Fatalf("pull after update = %+v, want the updated record", res.Records)
	}
	if string(res.Records[0].Payload) != `{"name":"Incline Press"}` {
		t.Errorf("payload = %s, want updated", res.Records[0].Payload)
	}
}

// TestPushValidation rejects malformed bodies and incomplete records.
func TestPushValidation(t *testing.T) {
	ts, _ := newTestServer(t)

	tests := []struct {
		name   string
		body   []byte
		snappy bool
		status int
	}{
		{"bad snappy", []byte("not snappy"), true, http.StatusBadRequest},
		{"bad json", snappy.Encode(nil, []byte(`{pork chop}`)), true, http.StatusBadRequest},
		{"plain bad json", []byte(`{pork chop}`), false, http.StatusBadRequest},
		{"missing id", snappy.Encode(nil, []byte(fmt.Sprintf(
			`[{"kind":"split","updatedAt":%q}]`, time.Now().UTC().Format(time.RFC3339)))), true, http.StatusBadRequest},
		{"missing kind", snappy.Encode(nil, []byte(fmt.Sprintf(
			`[{"id":%q,"updatedAt":%q}]`, uuid.New(), time.Now().UTC().Format(time.RFC3339)))), true, http.StatusBadRequest},
		{"missing updatedAt", snappy.Encode(nil, []byte(fmt.Sprintf(
			`[{"id":%q,"kind":"split"}]`, uuid.New()))), true, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := rawPush(t, ts.URL, testKey, tt.body, tt.snappy)
			if resp.StatusCode != tt.status {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.status)
			}
		})
	}
}

// TestPushPlainJSON accepts an uncompressed body when no
// Content-Encoding header is set.
func TestPushPlainJSON(t *testing.T) {
	ts, _ := newTestServer(t)

	body, _ := json.Marshal([]remote.Record{sampleRecord(remote.KindSplit, time.Now().UTC())})
	resp := rawPush(t, ts.URL, testKey, body, false)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if res := decodePushResult(t, resp); res.Accepted != 1 {
		t.Errorf("accepted = %d, want 1", res.Accepted)
	}
}

// TestPullPaging returns at most one page per request and resumes from
// the returned cursor.
func TestPullPaging(t *testing.T) {
	ts, _ := newTestServer(t)
	client := remote.NewHTTPClient(ts.URL, testKey)
	ctx := context.Background()

	now := time.Now().UTC()
	total := pullPageLimit + 10
	batch := make([]remote.Record, 0, total)
	for i := 0; i < total; i++ {
		batch = append(batch, sampleRecord(remote.KindSet, now.Add(time.Duration(i)*time.Millisecond)))
	}
	if err := client.Push(ctx, batch); err != nil {
		t.Fatalf("Push: %v", err)
	}

	first, err := client.Pull(ctx, "")
	if err != nil {
		t.Fatalf("Pull: %v", err)
	}
	if len(first.Records) != pullPageLimit {
		t.Fatalf("first page = %d records, want %d", len(first.Records), pullPageLimit)
	}

	second, err := client.Pull(ctx, first.NextCursor)
	if err != nil {
		t.Fatalf("Pull second page: %v", err)
	}
	if len(second.Records) != 10 {
		t.Fatalf("second page = %d records, want 10", len(second.Records))
	}
	if second.NextCursor == first.NextCursor {
		t.Error("cursor did not advance across pages")
	}
}

// TestPullBadCursor rejects a cursor that is not a number.
func TestPullBadCursor(t *testing.T) {
	ts, _ := newTestServer(t)

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/v1/sync/pull?cursor=abc", nil)
	req.Header.Set("X-API-Key", testKey)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("pull request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

// TestDeleteTombstone turns a record into a tombstone that devices
// behind the head still pull.
func TestDeleteTombstone(t *testing.T) {
	ts, _ := newTestServer(t)
	client := remote.NewHTTPClient(ts.URL, testKey)
	ctx := context.Background()

	rec := sampleRecord(remote.KindSplit, time.Now().UTC())
	if err := client.Push(ctx, []remote.Record{rec}); err != nil {
		t.Fatalf("Push: %v", err)
	}
	if err := client.Delete(ctx, rec.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	res, err := client.Pull(ctx, "1")
	if err != nil {
		t.Fatalf("Pull: %v", err)
	}
	if len(res.Records) != 1 {
		t.Fatalf("pulled %d records, want the tombstone", len(res.Records))
	}
	got := res.Records[0]
	if got.ID != rec.ID || !got.Deleted {
		t.Errorf("tombstone = %+v", got)
	}
	if len(got.Payload) != 0 {
		t.Errorf("tombstone kept payload: %s", got.Payload)
	}
	if !got.UpdatedAt.After(rec.UpdatedAt) {
		t.Error("tombstone is not newer than the record it deletes")
	}
}

// TestDeleteUnknown maps an unknown id to 404 and a bad id to 400.
func TestDeleteUnknown(t *testing.T) {
	ts, _ := newTestServer(t)

	for _, tt := range []struct {
		id     string
		status int
	}{
		{uuid.New().String(), http.StatusNotFound},
		{"not-a-uuid", http.StatusBadRequest},
	} {
		req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/api/v1/sync/records/"+tt.id, nil)
		req.Header.Set("X-API-Key", testKey)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("delete request: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != tt.status {
			t.Errorf("delete %q: status = %d, want %d", tt.id, resp.StatusCode, tt.status)
		}
	}
}

// TestAuthRequired locks the sync routes behind the API key but leaves
// the probe endpoint open.
func TestAuthRequired(t *testing.T) {
	ts, _ := newTestServer(t)

	body, _ := json.Marshal([]remote.Record{sampleRecord(remote.KindSplit, time.Now().UTC())})
	if resp := rawPush(t, ts.URL, "", body, false); resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("push without key: status = %d, want 401", resp.StatusCode)
	}
	if resp := rawPush(t, ts.URL, "wrong", body, false); resp.StatusCode != http.StatusForbidden {
		t.Errorf("push with wrong key: status = %d, want 403", resp.StatusCode)
	}

	resp, err := http.Get(ts.URL + "/api/v1/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("healthz status = %d, want 200", resp.StatusCode)
	}
	var health map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatalf("decoding healthz: %v", err)
	}
	if health["status"] != "ok" {
		t.Errorf("healthz body = %v", health)
	}
}
