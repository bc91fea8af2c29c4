// Package steward implements the autonomous alliance steward.
// It observes the alliance world via the API, triages its health with
// fixed rules, and nudges it via the admin intervention endpoint.
package steward

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Snapshot holds all data collected during an observation cycle.
type Snapshot struct {
	Status    Status     `json:"status"`
	Groups    []Group    `json:"groups"`
	Alliances []Alliance `json:"alliances"`
	Factions  []Faction  `json:"factions"`
	Events    []Event    `json:"events"`
}

// Status mirrors GET /api/v1/status.
type Status struct {
	Name      string  `json:"name"`
	Day       int     `json:"day"`
	Date      string  `json:"date"`
	Speed     float64 `json:"speed"`
	Active    int     `json:"active"`
	Alliances int     `json:"alliances"`
	Groups    int     `json:"groups"`
	Intel     int     `json:"intel"`
}

// Group mirrors items from GET /api/v1/groups.
type Group struct {
	Group     uint64  `json:"group"`
	Alliances int     `json:"alliances"`
	Members   int     `json:"members"`
	Cohesion  float64 `json:"cohesion"`
}

// Alliance mirrors the fields of GET /api/v1/alliances the steward reads.
type Alliance struct {
	ID         string  `json:"id"`
	Initiator  uint64  `json:"initiator"`
	Target     uint64  `json:"target"`
	Strength   float64 `json:"strength"`
	Secrecy    float64 `json:"secrecy"`
	Trust      float64 `json:"trust"`
	GroupID    uint64  `json:"group_id"`
	CreatedDay int     `json:"created_day"`
}

// Faction mirrors items from GET /api/v1/factions.
type Faction struct {
	ID      uint64  `json:"id"`
	Name    string  `json:"name"`
	Kingdom uint64  `json:"kingdom"`
	Wealth  float64 `json:"wealth"`
}

// Event mirrors items from GET /api/v1/events.
type Event struct {
	Day         int    `json:"day"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

// Observer fetches alliance state from the API.
type Observer struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewObserver creates an Observer targeting the given API base URL.
func NewObserver(baseURL string) *Observer {
	return &Observer{
		BaseURL: baseURL,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Observe fetches every endpoint the steward reads and returns a Snapshot.
func (o *Observer) Observe(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{}

	if err := o.fetchJSON(ctx, "/api/v1/status", &snap.Status); err != nil {
		return nil, fmt.Errorf("fetch status: %w", err)
	}
	if err := o.fetchJSON(ctx, "/api/v1/groups", &snap.Groups); err != nil {
		return nil, fmt.Errorf("fetch groups: %w", err)
	}
	if err := o.fetchJSON(ctx, "/api/v1/alliances", &snap.Alliances); err != nil {
		return nil, fmt.Errorf("fetch alliances: %w", err)
	}
	if err := o.fetchJSON(ctx, "/api/v1/factions", &snap.Factions); err != nil {
		return nil, fmt.Errorf("fetch factions: %w", err)
	}
	if err := o.fetchJSON(ctx, "/api/v1/events?limit=200", &snap.Events); err != nil {
		return nil, fmt.Errorf("fetch events: %w", err)
	}

	return snap, nil
}

// Ready reports whether the status endpoint answers 200.
func (o *Observer) Ready(ctx context.Context) bool {
	var st Status
	return o.fetchJSON(ctx, "/api/v1/status", &st) == nil
}

// fetchJSON GETs a path and decodes the JSON response into target.
func (o *Observer) fetchJSON(ctx context.Context, path string, target any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.BaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	resp, err := o.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("GET %s returned %d: %s", path, resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
