// Package apiclient is the HTTP client dlogctl uses to talk to a running
// dlogd's admin API (pkg/adminapi). It mirrors that package's response
// shapes directly rather than redeclaring them, so the wire contract can
// only drift in one place.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/dlogio/dlog/pkg/adminapi"
	"github.com/dlogio/dlog/pkg/position"
)

// Client calls one dlogd instance's admin API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// New returns a Client targeting baseURL (e.g. "http://localhost:9091").
func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// WithToken returns a copy of the client that sends token as a bearer
// credential on every request.
func (c *Client) WithToken(token string) *Client {
	clone := *c
	clone.token = token
	return &clone
}

// APIError is returned when the admin API responds with a non-2xx status.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("admin API returned %d: %s", e.StatusCode, e.Message)
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("apiclient: encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("apiclient: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("apiclient: %s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		var problem struct {
			Title  string `json:"title"`
			Detail string `json:"detail"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&problem)
		msg := problem.Detail
		if msg == "" {
			msg = problem.Title
		}
		if msg == "" {
			msg = resp.Status
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Healthz reports whether the server considers itself healthy.
func (c *Client) Healthz(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/healthz", nil, nil)
}

// ListStreams returns every stream registered in the remote catalog.
func (c *Client) ListStreams(ctx context.Context) ([]adminapi.StreamView, error) {
	var views []adminapi.StreamView
	if err := c.do(ctx, http.MethodGet, "/v1/streams", nil, &views); err != nil {
		return nil, err
	}
	return views, nil
}

// GetStream returns a single stream's metadata.
func (c *Client) GetStream(ctx context.Context, name string) (adminapi.StreamView, error) {
	var view adminapi.StreamView
	err := c.do(ctx, http.MethodGet, "/v1/streams/"+name, nil, &view)
	return view, err
}

// ListSegments returns name's segment metadata, ordered by segment sequence.
func (c *Client) ListSegments(ctx context.Context, name string) ([]adminapi.SegmentView, error) {
	var views []adminapi.SegmentView
	if err := c.do(ctx, http.MethodGet, "/v1/streams/"+name+"/segments", nil, &views); err != nil {
		return nil, err
	}
	return views, nil
}

// Truncate sets name's truncation low-water-mark to pos.
func (c *Client) Truncate(ctx context.Context, name string, pos position.Position) error {
	body := map[string]int64{"segment_seq": pos.SegmentSeq, "entry_id": pos.EntryID, "slot_id": pos.SlotID}
	return c.do(ctx, http.MethodPost, "/v1/streams/"+name+"/truncate", body, nil)
}

// MarkEndOfStream writes the terminal end-of-stream record on name.
func (c *Client) MarkEndOfStream(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodPost, "/v1/streams/"+name+"/mark-end-of-stream", struct{}{}, nil)
}

// ForceRoll rolls name to a new segment immediately.
func (c *Client) ForceRoll(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodPost, "/v1/streams/"+name+"/force-roll", struct{}{}, nil)
}
