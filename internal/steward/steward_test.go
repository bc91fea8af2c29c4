package steward

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/shadow-pacts/internal/api"
	"github.com/talgya/shadow-pacts/internal/config"
	"github.com/talgya/shadow-pacts/internal/engine"
	"github.com/talgya/shadow-pacts/internal/entropy"
	"github.com/talgya/shadow-pacts/internal/social"
	"github.com/talgya/shadow-pacts/internal/world"
)

func TestTriageLevels(t *testing.T) {
	factions := []Faction{{ID: 1, Kingdom: 1}, {ID: 2, Kingdom: 2}, {ID: 3, Kingdom: 3}, {ID: 4, Kingdom: 4}}
	th := DefaultThresholds()

	cases := []struct {
		name string
		snap Snapshot
		want string
	}{
		{
			name: "no alliances",
			snap: Snapshot{Status: Status{Day: 10}, Factions: factions},
			want: LevelDormant,
		},
		{
			name: "tight coalition",
			snap: Snapshot{
				Status:   Status{Day: 10, Active: 3},
				Factions: factions,
				Groups:   []Group{{Group: 2, Members: 4, Cohesion: 0.85}, {Group: 3, Members: 2, Cohesion: 0.7}},
			},
			want: LevelEntrenched,
		},
		{
			name: "nothing happened for a month",
			snap: Snapshot{
				Status:   Status{Day: 100, Active: 2},
				Factions: factions,
				Events:   []Event{{Day: 50, Category: "betrayal"}, {Day: 90, Category: "trade"}},
			},
			want: LevelQuiet,
		},
		{
			name: "recent leak",
			snap: Snapshot{
				Status:   Status{Day: 100, Active: 2},
				Factions: factions,
				Events:   []Event{{Day: 95, Category: "leak"}},
			},
			want: LevelHealthy,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Triage(&tc.snap, th).Level)
		})
	}
}

func TestTriagePicksTightestGroup(t *testing.T) {
	snap := &Snapshot{Groups: []Group{{Group: 2, Members: 4, Cohesion: 0.5}, {Group: 7, Members: 3, Cohesion: 0.7}}}
	h := Triage(snap, DefaultThresholds())
	assert.Equal(t, uint64(7), h.TopGroup)
	assert.Equal(t, 3, h.TopMembers)
}

func TestDecideLeaksMostSecretUntouchedMember(t *testing.T) {
	snap := &Snapshot{Alliances: []Alliance{
		{ID: "a", GroupID: 7, Secrecy: 0.9},
		{ID: "b", GroupID: 7, Secrecy: 0.6},
		{ID: "c", GroupID: 2, Secrecy: 0.99},
	}}
	h := &Health{Level: LevelEntrenched, TopGroup: 7}

	d := Decide(snap, h, &CycleMemory{})
	require.NotNil(t, d.Intervention)
	assert.Equal(t, "leak", d.Intervention.Type)
	assert.Equal(t, "a", d.Intervention.Alliance)

	mem := &CycleMemory{Records: []CycleRecord{{Alliance: "a"}}}
	assert.Equal(t, "b", Decide(snap, h, mem).Intervention.Alliance)

	mem.Record(CycleRecord{Alliance: "b"})
	assert.Equal(t, "none", Decide(snap, h, mem).Action)
}

func TestDecideQuietProbesStrongest(t *testing.T) {
	snap := &Snapshot{Alliances: []Alliance{{ID: "weak", Strength: 0.2}, {ID: "strong", Strength: 0.8}}}
	d := Decide(snap, &Health{Level: LevelQuiet}, nil)
	require.NotNil(t, d.Intervention)
	assert.Equal(t, "strong", d.Intervention.Alliance)
	assert.Equal(t, "spy_probe", d.Intervention.Operation)

	assert.Nil(t, Decide(snap, &Health{Level: LevelHealthy}, nil).Intervention)
}

func TestStrangersSkipsAlliedAndKinsmen(t *testing.T) {
	snap := &Snapshot{
		Factions:  []Faction{{ID: 3, Kingdom: 2}, {ID: 1, Kingdom: 1}, {ID: 2, Kingdom: 1}},
		Alliances: []Alliance{{Initiator: 3, Target: 1}},
	}
	a, b, ok := strangers(snap)
	require.True(t, ok)
	assert.Equal(t, [2]uint64{2, 3}, [2]uint64{a, b})

	snap.Alliances = append(snap.Alliances, Alliance{Initiator: 2, Target: 3})
	_, _, ok = strangers(snap)
	assert.False(t, ok)
}

func TestMemoryRing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "steward.json")
	mem := LoadMemory(path)
	for i := range 15 {
		mem.Record(CycleRecord{Day: i, Alliance: fmt.Sprint(i)})
	}
	require.Len(t, mem.Records, maxRecords)
	assert.Equal(t, 5, mem.Records[0].Day)
	assert.True(t, mem.Touched("14"))
	assert.True(t, mem.Touched("12"))
	assert.False(t, mem.Touched("11"))

	mem.Save()
	again := LoadMemory(path)
	assert.Equal(t, mem.Records, again.Records)
}

func TestActorReportsRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))
		http.Error(w, "operation on cooldown", http.StatusConflict)
	}))
	defer srv.Close()

	iv := &Intervention{Type: "operation", Alliance: uuid.NewString(), Operation: "spy_probe"}
	_, err := NewActor(srv.URL, "k").Act(context.Background(), iv)
	var refused *RefusedError
	require.ErrorAs(t, err, &refused)
	assert.Equal(t, http.StatusConflict, refused.Status)
	assert.Equal(t, "operation on cooldown", refused.Reason)
}

func TestActorValidatesBeforeSending(t *testing.T) {
	sent := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { sent = true }))
	defer srv.Close()

	cases := []*Intervention{
		{Type: "form", A: 3, B: 3},
		{Type: "leak", Alliance: "not-an-id"},
		{Type: "operation", Alliance: uuid.NewString()},
		{Type: "coronation"},
	}
	for _, iv := range cases {
		_, err := NewActor(srv.URL, "k").Act(context.Background(), iv)
		require.Error(t, err, iv.Type)
		assert.False(t, Refused(err))
	}
	assert.False(t, sent)
}

func TestRefusalDoesNotFailCycle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/intervention":
			http.Error(w, "already allied", http.StatusConflict)
		case "/api/v1/factions":
			_, _ = w.Write([]byte(`[{"id":1,"kingdom":1},{"id":2,"kingdom":2}]`))
		case "/api/v1/status":
			_, _ = w.Write([]byte(`{"day":3}`))
		default:
			_, _ = w.Write([]byte(`[]`))
		}
	}))
	defer srv.Close()

	st := &Steward{
		Observer:   NewObserver(srv.URL),
		Actor:      NewActor(srv.URL, "k"),
		Memory:     &CycleMemory{},
		Thresholds: DefaultThresholds(),
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	d, err := st.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "form", d.Action)
	require.Len(t, st.Memory.Records, 1)
	assert.True(t, st.Memory.Records[0].Failed)
}

func TestCycleAgainstLiveAPI(t *testing.T) {
	w := world.NewStatic()
	for id := world.FactionID(1); id <= 4; id++ {
		leader := world.AgentID(100 + id)
		w.AddFaction(
			world.Faction{ID: id, Name: fmt.Sprintf("House %d", id), Kingdom: world.KingdomID(id), Wealth: 10000, LeaderID: leader},
			world.Leader{ID: leader},
		)
	}
	cfg := config.Default()
	cfg.Sanitize()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sim := engine.New(cfg, w, social.NewStore(), engine.Options{Logger: logger, Source: entropy.Always(0.5)})

	apiSrv := &api.Server{Sim: sim, AdminKey: "k", Logger: logger}
	srv := httptest.NewServer(apiSrv.Handler())
	defer srv.Close()

	st := &Steward{
		Observer:   NewObserver(srv.URL),
		Actor:      NewActor(srv.URL, "k"),
		Memory:     LoadMemory(filepath.Join(t.TempDir(), "mem.json")),
		Thresholds: DefaultThresholds(),
		Logger:     logger,
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, st.WaitReady(ctx))

	d, err := st.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, "form", d.Action)

	al, err := sim.FindAlliance(1, 2)
	require.NoError(t, err)
	assert.True(t, al.TradePact)
	require.Len(t, st.Memory.Records, 1)
	assert.Equal(t, LevelDormant, st.Memory.Records[0].Level)
}
