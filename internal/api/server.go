// Package api provides the HTTP API for observing the alliance world.
// GET endpoints are public (read-only observation).
// POST endpoints require a bearer token (admin control plane).
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/talgya/shadow-pacts/internal/engine"
	"github.com/talgya/shadow-pacts/internal/persistence"
	"github.com/talgya/shadow-pacts/internal/social"
	"github.com/talgya/shadow-pacts/internal/world"
)

// Server serves the alliance state over HTTP.
type Server struct {
	Sim      *engine.Simulation
	Eng      *engine.Engine
	DB       *persistence.DB // nil disables /snapshot
	Metrics  http.Handler    // mounted at /metrics when set
	Port     int
	AdminKey string // Bearer token for POST endpoints. Empty = POST disabled.
	Logger   *slog.Logger
}

func (s *Server) log() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

// Handler builds the routed, CORS-wrapped handler.
func (s *Server) Handler() http.Handler {
	intelLimiter := NewRateLimiter(120, time.Minute)

	mux := http.NewServeMux()

	// Public endpoints (GET, read-only).
	mux.HandleFunc("/api/v1/status", s.handleStatus)
	mux.HandleFunc("/api/v1/alliances", s.handleAlliances)
	mux.HandleFunc("/api/v1/alliance/", s.handleAllianceDetail)
	mux.HandleFunc("/api/v1/intel", RateLimitMiddleware(intelLimiter, s.handleIntel))
	mux.HandleFunc("/api/v1/events", s.handleEvents)
	mux.HandleFunc("/api/v1/groups", s.handleGroups)
	mux.HandleFunc("/api/v1/factions", s.handleFactions)
	if s.Metrics != nil {
		mux.Handle("/metrics", s.Metrics)
	}

	// Admin endpoints (POST, require bearer token).
	mux.HandleFunc("/api/v1/speed", s.adminOnly(s.handleSpeed))
	mux.HandleFunc("/api/v1/snapshot", s.adminOnly(s.handleSnapshot))
	mux.HandleFunc("/api/v1/battle", s.adminOnly(s.handleBattle))
	mux.HandleFunc("/api/v1/intervention", s.adminOnly(s.handleIntervention))

	return corsMiddleware(mux)
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.log().Info("HTTP API starting", "addr", srv.Addr, "admin_auth", s.AdminKey != "")

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	select {
	case err := <-errc:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

// corsMiddleware adds CORS headers for allowed frontend origins.
// Set CORS_ORIGINS env var to a comma-separated list of allowed origins.
// Localhost dev servers are always allowed.
func corsMiddleware(next http.Handler) http.Handler {
	allowedOrigins := map[string]bool{
		"http://localhost:5173": true,
		"http://localhost:4173": true,
		"http://localhost:3000": true,
	}
	if env := os.Getenv("CORS_ORIGINS"); env != "" {
		for _, origin := range strings.Split(env, ",") {
			origin = strings.TrimSpace(origin)
			if origin != "" {
				allowedOrigins[origin] = true
			}
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// checkBearerToken returns true if the request has a valid admin bearer token.
func (s *Server) checkBearerToken(r *http.Request) bool {
	auth := r.Header.Get("Authorization")
	return strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.AdminKey
}

// adminOnly wraps a handler to require bearer token auth on POST requests.
// GET requests pass through (for endpoints that support both GET and POST).
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			if s.AdminKey == "" {
				http.Error(w, "admin endpoints disabled (no PACTSIM_ADMIN_KEY set)", http.StatusForbidden)
				return
			}
			if !s.checkBearerToken(r) {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}
		next(w, r)
	}
}

// writeError maps engine and store errors onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, social.ErrNotFound), errors.Is(err, world.ErrUnknownFaction):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, engine.ErrInactive),
		errors.Is(err, engine.ErrOperationCooldown),
		errors.Is(err, engine.ErrAlreadyAllied):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		http.Error(w, err.Error(), http.StatusBadRequest)
	}
}

func parseFaction(r *http.Request, key string) (world.FactionID, bool, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return 0, false, nil
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("%s must be a faction id", key)
	}
	return world.FactionID(n), true, nil
}

// queryLimit reads ?limit=, falling back to def when absent or outside 1..max.
func queryLimit(r *http.Request, def, max int) int {
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= max {
			return n
		}
	}
	return def
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	sum := s.Sim.Summary()
	status := map[string]any{
		"name":       "Shadow Pacts",
		"day":        sum.Day,
		"date":       sum.Date,
		"active":     sum.Active,
		"alliances":  sum.Alliances,
		"groups":     sum.Groups,
		"intel":      sum.Intel,
		"rejections": sum.Rejections,
		"events":     sum.Events,
	}
	if s.Eng != nil {
		status["speed"] = s.Eng.Speed()
		status["days_driven"] = s.Eng.Days()
	}
	writeJSON(w, status)
}

func (s *Server) handleAlliances(w http.ResponseWriter, r *http.Request) {
	var f engine.Filter
	faction, _, err := parseFaction(r, "faction")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f.Faction = faction
	if g := r.URL.Query().Get("group"); g != "" {
		n, err := strconv.ParseUint(g, 10, 64)
		if err != nil {
			http.Error(w, "group must be a number", http.StatusBadRequest)
			return
		}
		f.Group = n
	}

	alliances := s.Sim.ActiveAlliances(f)
	if alliances == nil {
		alliances = []*social.Alliance{}
	}
	writeJSON(w, alliances)
}

// handleAllianceDetail serves /api/v1/alliance/{id} and /api/v1/alliance/?a=&b=.
// The detail view carries the alliance's own intel trail.
func (s *Server) handleAllianceDetail(w http.ResponseWriter, r *http.Request) {
	var (
		al  *social.Alliance
		err error
	)
	if idStr := strings.TrimPrefix(r.URL.Path, "/api/v1/alliance/"); idStr != "" {
		id, perr := uuid.Parse(idStr)
		if perr != nil {
			http.Error(w, "invalid alliance id", http.StatusBadRequest)
			return
		}
		al, err = s.Sim.Alliance(id)
	} else {
		a, okA, errA := parseFaction(r, "a")
		b, okB, errB := parseFaction(r, "b")
		if errA != nil || errB != nil || !okA || !okB {
			http.Error(w, "alliance id or a and b faction ids required", http.StatusBadRequest)
			return
		}
		al, err = s.Sim.FindAlliance(a, b)
	}
	if err != nil {
		writeError(w, err)
		return
	}

	var trail []*social.Intel
	for _, ri := range s.Sim.IntelFor(al.Initiator, 0) {
		if ri.Intel.AllianceID == al.ID {
			trail = append(trail, ri.Intel)
		}
	}
	writeJSON(w, map[string]any{
		"alliance": al,
		"intel":    trail,
	})
}

func (s *Server) handleIntel(w http.ResponseWriter, r *http.Request) {
	observer, ok, err := parseFaction(r, "observer")
	if err != nil || !ok || observer == 0 {
		http.Error(w, "observer faction id required", http.StatusBadRequest)
		return
	}
	ranked := s.Sim.IntelFor(observer, queryLimit(r, 20, 100))
	if ranked == nil {
		ranked = []engine.RankedIntel{}
	}
	writeJSON(w, ranked)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := queryLimit(r, 50, 500)
	events := s.Sim.RecentEvents(0)

	// Optional category filter, e.g. ?category=betrayal.
	if cat := r.URL.Query().Get("category"); cat != "" {
		var filtered []engine.Event
		for _, e := range events {
			if e.Category == cat {
				filtered = append(filtered, e)
			}
		}
		events = filtered
	}

	start := 0
	if len(events) > limit {
		start = len(events) - limit
	}
	out := events[start:]
	if out == nil {
		out = []engine.Event{}
	}
	writeJSON(w, out)
}

func (s *Server) handleGroups(w http.ResponseWriter, r *http.Request) {
	groups := s.Sim.Groups()
	if groups == nil {
		groups = []engine.GroupMetrics{}
	}
	writeJSON(w, groups)
}

func (s *Server) handleFactions(w http.ResponseWriter, r *http.Request) {
	factions := s.Sim.Factions()
	if factions == nil {
		factions = []world.Faction{}
	}
	writeJSON(w, factions)
}

func (s *Server) handleSpeed(w http.ResponseWriter, r *http.Request) {
	if s.Eng == nil {
		http.Error(w, "engine not running", http.StatusServiceUnavailable)
		return
	}
	if r.Method == http.MethodPost {
		var req struct {
			Speed float64 `json:"speed"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if req.Speed < 0 || req.Speed > 1000 {
			http.Error(w, "speed must be 0-1000", http.StatusBadRequest)
			return
		}
		s.Eng.SetSpeed(req.Speed)
		s.log().Info("speed changed", "speed", req.Speed)
	}

	writeJSON(w, map[string]float64{"speed": s.Eng.Speed()})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.DB == nil {
		http.Error(w, "database not available", http.StatusServiceUnavailable)
		return
	}

	snap, err := s.Sim.Snapshot()
	if err == nil {
		err = s.DB.SaveSnapshot(snap)
	}
	if err != nil {
		s.log().Error("snapshot save failed", "error", err)
		http.Error(w, "snapshot failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]any{
		"day":     snap.Day,
		"message": "snapshot saved",
	})
}

// handleBattle reports a battle between two factions to the betrayal check.
func (s *Server) handleBattle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		A world.FactionID `json:"a"`
		B world.FactionID `json:"b"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.A == 0 || req.B == 0 {
		http.Error(w, "a and b required", http.StatusBadRequest)
		return
	}

	outcome, err := s.Sim.SignalBattle(req.A, req.B)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]any{"outcome": outcome.String()})
}

func (s *Server) handleIntervention(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Type         string          `json:"type"`
		Alliance     string          `json:"alliance,omitempty"`
		Operation    string          `json:"operation,omitempty"`
		A            world.FactionID `json:"a,omitempty"`
		B            world.FactionID `json:"b,omitempty"`
		TradePact    bool            `json:"trade_pact,omitempty"`
		MilitaryPact bool            `json:"military_pact,omitempty"`
		Origin       string          `json:"origin,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	allianceID := func() (uuid.UUID, bool) {
		id, err := uuid.Parse(req.Alliance)
		if err != nil {
			http.Error(w, "alliance id required for "+req.Type, http.StatusBadRequest)
			return uuid.Nil, false
		}
		return id, true
	}

	switch req.Type {
	case "leak":
		id, ok := allianceID()
		if !ok {
			return
		}
		if err := s.Sim.ForceLeak(id); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, map[string]any{"success": true, "details": "leak forced"})

	case "reveal":
		id, ok := allianceID()
		if !ok {
			return
		}
		if err := s.Sim.ForceReveal(id); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, map[string]any{"success": true, "details": "alliance revealed"})

	case "operation":
		id, ok := allianceID()
		if !ok {
			return
		}
		kind, ok := social.ParseOperation(req.Operation)
		if !ok {
			http.Error(w, fmt.Sprintf("unknown operation %q", req.Operation), http.StatusBadRequest)
			return
		}
		succeeded, err := s.Sim.ForceOperation(id, kind)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, map[string]any{"success": true, "operation": kind.String(), "succeeded": succeeded})

	case "form":
		if req.A == 0 || req.B == 0 {
			http.Error(w, "a and b required for form", http.StatusBadRequest)
			return
		}
		origin := req.Origin
		if origin == "" {
			origin = "intervention"
		}
		al, err := s.Sim.FormAlliance(req.A, req.B, engine.FormOptions{
			TradePact:    req.TradePact,
			MilitaryPact: req.MilitaryPact,
			Origin:       origin,
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, map[string]any{"success": true, "alliance": al})

	default:
		http.Error(w, "type must be leak, reveal, operation, or form", http.StatusBadRequest)
		return
	}

	s.log().Info("intervention applied", "type", req.Type, "alliance", req.Alliance, "operation", req.Operation)
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}
