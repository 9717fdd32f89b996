package console

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/samber/oops"
)

// Status mirrors the control API's /api/status payload.
type Status struct {
	Service       string `json:"service"`
	Uptime        string `json:"uptime"`
	Groups        int    `json:"groups"`
	Connections   int    `json:"connections"`
	LiveSessions  int    `json:"live_sessions"`
	TotalAcquired uint64 `json:"total_acquired"`
	TotalRejected uint64 `json:"total_rejected"`
	TotalReleased uint64 `json:"total_released"`
}

// Group mirrors one /api/groups entry. Limit pointers are nil when the
// scope inherits the server default.
type Group struct {
	Identifier         string `json:"identifier"`
	Name               string `json:"name"`
	Type               string `json:"type"`
	MaxSessions        *int   `json:"max_sessions"`
	MaxSessionsPerUser *int   `json:"max_sessions_per_user"`
	ActiveSessions     int    `json:"active_sessions"`
}

// Connection mirrors one /api/connections entry.
type Connection struct {
	Identifier         string `json:"identifier"`
	Name               string `json:"name"`
	MaxSessions        *int   `json:"max_sessions"`
	MaxSessionsPerUser *int   `json:"max_sessions_per_user"`
	ActiveSessions     int    `json:"active_sessions"`
}

// Snapshot is one complete poll of the control API.
type Snapshot struct {
	Status      Status
	Groups      []Group
	Connections []Connection
	TakenAt     time.Time
}

// Client fetches dashboard snapshots from a control server.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient builds a client for the control API at baseURL. An empty
// token sends no Authorization header.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: 5 * time.Second},
	}
}

// Fetch polls the three dashboard endpoints and assembles a snapshot.
func (c *Client) Fetch(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	if err := c.get(ctx, "/api/status", &snap.Status); err != nil {
		return snap, err
	}
	if err := c.get(ctx, "/api/groups", &snap.Groups); err != nil {
		return snap, err
	}
	if err := c.get(ctx, "/api/connections", &snap.Connections); err != nil {
		return snap, err
	}
	snap.TakenAt = time.Now()
	return snap, nil
}

func (c *Client) get(ctx context.Context, path string, v interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return oops.Wrapf(err, "failed to build request for %s", path)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return oops.Wrapf(err, "control API unreachable at %s", c.baseURL)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return oops.Errorf("control API returned %s for %s", resp.Status, path)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return oops.Wrapf(err, "failed to decode %s response", path)
	}
	return nil
}
