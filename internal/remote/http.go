package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/golang/snappy"
	"github.com/google/uuid"
)

// HTTPClient talks to a splitlogd sync server. Push bodies and pull
// responses are snappy-compressed JSON. Calls honor their context
// deadline and are never retried here; a failed call is classified and
// returned for the coordinator to schedule.
type HTTPClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewHTTPClient creates a client for the sync server at baseURL.
func NewHTTPClient(baseURL, apiKey string) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// Push uploads a batch of records to the server.
func (c *HTTPClient) Push(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	data, err := json.Marshal(records)
	if err != nil {
		return &SyncError{Kind: Conflict, Op: "push", Err: fmt.Errorf("marshaling records: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/v1/sync/push", bytes.NewReader(snappy.Encode(nil, data)))
	if err != nil {
		return &SyncError{Kind: Transient, Op: "push", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Content-Encoding", "snappy")
	req.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &SyncError{Kind: Transient, Op: "push", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return c.statusError("push", resp)
	}
	return nil
}

// Pull fetches remote records changed since the cursor. An empty cursor
// pulls from the beginning of history.
func (c *HTTPClient) Pull(ctx context.Context, cursor string) (PullResult, error) {
	u := c.baseURL + "/api/v1/sync/pull"
	if cursor != "" {
		u += "?cursor=" + url.QueryEscape(cursor)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return PullResult{}, &SyncError{Kind: Transient, Op: "pull", Err: err}
	}
	req.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return PullResult{}, &SyncError{Kind: Transient, Op: "pull", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return PullResult{}, c.statusError("pull", resp)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return PullResult{}, &SyncError{Kind: Transient, Op: "pull", Err: fmt.Errorf("reading response: %w", err)}
	}
	if resp.Header.Get("Content-Encoding") == "snappy" {
		body, err = snappy.Decode(nil, body)
		if err != nil {
			return PullResult{}, &SyncError{Kind: Transient, Op: "pull", Err: fmt.Errorf("decoding snappy body: %w", err)}
		}
	}

	var result PullResult
	if err := json.Unmarshal(body, &result); err != nil {
		return PullResult{}, &SyncError{Kind: Transient, Op: "pull", Err: fmt.Errorf("decoding pull result: %w", err)}
	}
	return result, nil
}

// Delete propagates a tombstone for a single record.
func (c *HTTPClient) Delete(ctx context.Context, id uuid.UUID) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete,
		c.baseURL+"/api/v1/sync/records/"+id.String(), nil)
	if err != nil {
		return &SyncError{Kind: Transient, Op: "delete", Err: err}
	}
	req.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &SyncError{Kind: Transient, Op: "delete", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return c.statusError("delete", resp)
	}
	return nil
}

func (c *HTTPClient) statusError(op string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return &SyncError{
		Kind: classifyStatus(resp.StatusCode),
		Op:   op,
		Err:  fmt.Errorf("%s failed (status %d): %s", op, resp.StatusCode, body),
	}
}
