// Package client provides a reusable REST load test client for the matchd
// matchmaking service. Each client simulates one authenticated user driving
// the seeking lifecycle: start, poll, accept or reject, cancel.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// StartResponse is the payload of POST /match/start and /match/accelerate.
type StartResponse struct {
	EstimatedWaitSeconds int  `json:"estimated_wait_seconds"`
	Accelerated          bool `json:"accelerated"`
	PointsConsumed       int  `json:"points_consumed"`
}

// ResultResponse is the payload of GET /match/result.
type ResultResponse struct {
	Matched bool `json:"matched"`
	User    *struct {
		ID          int64  `json:"id"`
		DisplayName string `json:"display_name"`
	} `json:"user,omitempty"`
	Score       int    `json:"score,omitempty"`
	Status      string `json:"status,omitempty"`
	OtherStatus string `json:"other_status,omitempty"`
	RoomID      string `json:"room_id,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

// AcceptResponse is the payload of POST /match/accept.
type AcceptResponse struct {
	BothAccepted bool `json:"both_accepted"`
}

// Metrics tracks per-client performance data.
type Metrics struct {
	StartLatency time.Duration
	TimeToMatch  time.Duration
	Polls        int
	Errors       int
}

// Client represents a single simulated user of the matchmaking API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	metrics Metrics
	started time.Time
}

// New creates a load test client for the given base URL authenticating with
// the given session token.
func New(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// Start enters the waiting pool. Records the call latency.
func (c *Client) Start(ctx context.Context, body map[string]interface{}) (*StartResponse, error) {
	begin := time.Now()
	var resp StartResponse
	if err := c.do(ctx, http.MethodPost, "/match/start", body, &resp); err != nil {
		c.metrics.Errors++
		return nil, err
	}
	c.metrics.StartLatency = time.Since(begin)
	c.started = begin
	return &resp, nil
}

// PollUntilMatched polls the result endpoint at the given interval until a
// match appears, the pairing is rejected, or the context expires.
func (c *Client) PollUntilMatched(ctx context.Context, interval time.Duration) (*ResultResponse, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			res, err := c.Result(ctx)
			if err != nil {
				c.metrics.Errors++
				continue
			}
			c.metrics.Polls++
			if res.Matched {
				c.metrics.TimeToMatch = time.Since(c.started)
				return res, nil
			}
			if res.Reason != "" {
				return res, nil
			}
		}
	}
}

// Result fetches the current match result state.
func (c *Client) Result(ctx context.Context) (*ResultResponse, error) {
	var resp ResultResponse
	if err := c.do(ctx, http.MethodGet, "/match/result", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Accept accepts the current pairing.
func (c *Client) Accept(ctx context.Context) (*AcceptResponse, error) {
	var resp AcceptResponse
	if err := c.do(ctx, http.MethodPost, "/match/accept", nil, &resp); err != nil {
		c.metrics.Errors++
		return nil, err
	}
	return &resp, nil
}

// Reject rejects the current pairing.
func (c *Client) Reject(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/match/reject", nil, nil)
}

// Cancel leaves the waiting pool.
func (c *Client) Cancel(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/match/cancel", nil, nil)
}

// GetMetrics returns a copy of the client's metrics.
func (c *Client) GetMetrics() Metrics {
	return c.metrics
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, data)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", method, path, err)
	}
	return nil
}
