package steward

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Result is the response from POST /api/v1/intervention.
type Result struct {
	Success bool   `json:"success"`
	Details string `json:"details,omitempty"`
}

// RefusedError is returned when the simulation refuses an intervention,
// for example because the alliance is cooling down or already exists.
type RefusedError struct {
	Status int
	Reason string
}

func (e *RefusedError) Error() string {
	return fmt.Sprintf("intervention refused (%d): %s", e.Status, e.Reason)
}

// Refused reports whether err is a refusal rather than a transport failure.
func Refused(err error) bool {
	var re *RefusedError
	return errors.As(err, &re)
}

// Actor executes interventions via the admin API.
type Actor struct {
	BaseURL    string
	AdminKey   string
	HTTPClient *http.Client
}

// NewActor creates an Actor targeting the given API base URL with admin auth.
func NewActor(baseURL, adminKey string) *Actor {
	return &Actor{
		BaseURL:    baseURL,
		AdminKey:   adminKey,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Validate checks that an intervention names what its type needs before
// it is sent.
func (iv *Intervention) Validate() error {
	switch iv.Type {
	case "form":
		if iv.A == 0 || iv.B == 0 || iv.A == iv.B {
			return fmt.Errorf("form needs two distinct factions, got %d and %d", iv.A, iv.B)
		}
		return nil
	case "leak", "reveal", "operation":
		if _, err := uuid.Parse(iv.Alliance); err != nil {
			return fmt.Errorf("%s needs an alliance id: %w", iv.Type, err)
		}
		if iv.Type == "operation" && iv.Operation == "" {
			return errors.New("operation needs a kind")
		}
		return nil
	}
	return fmt.Errorf("unknown intervention type %q", iv.Type)
}

// Act validates and sends an intervention. 4xx answers other than auth
// failures come back as *RefusedError.
func (a *Actor) Act(ctx context.Context, iv *Intervention) (*Result, error) {
	if err := iv.Validate(); err != nil {
		return nil, err
	}
	body, err := json.Marshal(iv)
	if err != nil {
		return nil, fmt.Errorf("marshal intervention: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.BaseURL+"/api/v1/intervention", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.AdminKey)

	resp, err := a.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", iv.Type, iv.Alliance, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		var result Result
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return nil, fmt.Errorf("decode result: %w", err)
		}
		return &result, nil
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("admin key rejected (%d)", resp.StatusCode)
	default:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		reason := string(bytes.TrimSpace(msg))
		if resp.StatusCode >= 500 {
			return nil, fmt.Errorf("intervention failed (%d): %s", resp.StatusCode, reason)
		}
		return nil, &RefusedError{Status: resp.StatusCode, Reason: reason}
	}
}
