package api

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/shadow-pacts/internal/config"
	"github.com/talgya/shadow-pacts/internal/engine"
	"github.com/talgya/shadow-pacts/internal/entropy"
	"github.com/talgya/shadow-pacts/internal/metrics"
	"github.com/talgya/shadow-pacts/internal/social"
	"github.com/talgya/shadow-pacts/internal/world"
)

const testKey = "s3cret"

type fixture struct {
	srv     *Server
	h       http.Handler
	pact    *social.Alliance // active 1/2
	retired *social.Alliance // dissolved 2/3
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	w := world.NewStatic()
	for id := world.FactionID(1); id <= 4; id++ {
		leader := world.AgentID(100 + id)
		w.AddFaction(
			world.Faction{ID: id, Name: fmt.Sprintf("House %d", id), Kingdom: world.KingdomID(id), Wealth: 10000, MilitaryStrength: 300, LeaderID: leader},
			world.Leader{ID: leader, Name: fmt.Sprintf("Lord %d", id)},
		)
	}

	store := social.NewStore()
	pact := &social.Alliance{ID: social.NewAllianceID(), Initiator: 1, Target: 2, Strength: 0.4, Secrecy: 0.8, Trust: 0.6, IsActive: true, GroupID: 5}
	retired := &social.Alliance{ID: social.NewAllianceID(), Initiator: 2, Target: 3, Strength: 0.2, Secrecy: 0.5, Trust: 0.1, DissolvedDay: 1, DissolveReason: "betrayal"}
	require.NoError(t, store.Add(pact))
	require.NoError(t, store.Add(retired))

	cfg := config.Default()
	cfg.Sanitize()
	reg := prometheus.NewRegistry()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sim := engine.New(cfg, w, store, engine.Options{
		Logger:  logger,
		Metrics: metrics.New(reg),
		Source:  entropy.Always(0.5),
	})

	srv := &Server{
		Sim:      sim,
		Eng:      engine.NewEngine(time.Second, logger),
		Metrics:  promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		AdminKey: testKey,
		Logger:   logger,
	}
	return &fixture{srv: srv, h: srv.Handler(), pact: pact, retired: retired}
}

func (f *fixture) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	f.h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func (f *fixture) post(t *testing.T, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestStatusReportsCounts(t *testing.T) {
	f := newFixture(t)
	rec := f.get(t, "/api/v1/status")
	require.Equal(t, http.StatusOK, rec.Code)

	status := decode[map[string]any](t, rec)
	assert.EqualValues(t, 1, status["active"])
	assert.EqualValues(t, 2, status["alliances"])
	assert.EqualValues(t, 1, status["speed"])
}

func TestAlliancesFilterByFaction(t *testing.T) {
	f := newFixture(t)

	all := decode[[]social.Alliance](t, f.get(t, "/api/v1/alliances"))
	require.Len(t, all, 1)
	assert.Equal(t, f.pact.ID, all[0].ID)

	none := decode[[]social.Alliance](t, f.get(t, "/api/v1/alliances?faction=4"))
	assert.Empty(t, none)

	byGroup := decode[[]social.Alliance](t, f.get(t, "/api/v1/alliances?group=5"))
	assert.Len(t, byGroup, 1)

	assert.Equal(t, http.StatusBadRequest, f.get(t, "/api/v1/alliances?faction=abc").Code)
}

func TestAllianceDetail(t *testing.T) {
	f := newFixture(t)

	byID := f.get(t, "/api/v1/alliance/"+f.pact.ID.String())
	require.Equal(t, http.StatusOK, byID.Code)
	detail := decode[struct {
		Alliance social.Alliance `json:"alliance"`
	}](t, byID)
	assert.Equal(t, 0.6, detail.Alliance.Trust)

	byPair := f.get(t, "/api/v1/alliance/?a=2&b=1")
	require.Equal(t, http.StatusOK, byPair.Code)

	assert.Equal(t, http.StatusBadRequest, f.get(t, "/api/v1/alliance/not-a-uuid").Code)
	assert.Equal(t, http.StatusBadRequest, f.get(t, "/api/v1/alliance/").Code)
	assert.Equal(t, http.StatusNotFound, f.get(t, "/api/v1/alliance/?a=1&b=4").Code)
}

func TestIntelRequiresObserver(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, http.StatusBadRequest, f.get(t, "/api/v1/intel").Code)
	assert.Equal(t, http.StatusBadRequest, f.get(t, "/api/v1/intel?observer=0").Code)

	rec := f.get(t, "/api/v1/intel?observer=1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]engine.RankedIntel](t, rec))
}

func TestFactionsListed(t *testing.T) {
	f := newFixture(t)
	factions := decode[[]world.Faction](t, f.get(t, "/api/v1/factions"))
	require.Len(t, factions, 4)
	assert.Equal(t, "House 1", factions[0].Name)
}

func TestAdminEndpointsRequireToken(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, http.StatusUnauthorized, f.post(t, "/api/v1/speed", "", `{"speed":2}`).Code)
	assert.Equal(t, http.StatusUnauthorized, f.post(t, "/api/v1/speed", "wrong", `{"speed":2}`).Code)

	f.srv.AdminKey = ""
	assert.Equal(t, http.StatusForbidden, f.post(t, "/api/v1/speed", testKey, `{"speed":2}`).Code)
}

func TestSpeedControl(t *testing.T) {
	f := newFixture(t)
	rec := f.post(t, "/api/v1/speed", testKey, `{"speed":4}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 4.0, f.srv.Eng.Speed())

	assert.Equal(t, http.StatusBadRequest, f.post(t, "/api/v1/speed", testKey, `{"speed":5000}`).Code)
	got := decode[map[string]float64](t, f.get(t, "/api/v1/speed"))
	assert.Equal(t, 4.0, got["speed"])
}

func TestSnapshotWithoutDatabase(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, http.StatusServiceUnavailable, f.post(t, "/api/v1/snapshot", testKey, "").Code)
}

func TestInterventionFormsAlliance(t *testing.T) {
	f := newFixture(t)
	rec := f.post(t, "/api/v1/intervention", testKey, `{"type":"form","a":3,"b":4,"trade_pact":true,"origin":"bribe"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	formed := decode[struct {
		Alliance social.Alliance `json:"alliance"`
	}](t, rec)
	assert.True(t, formed.Alliance.TradePact)
	assert.True(t, formed.Alliance.Involves(3))

	events := decode[[]engine.Event](t, f.get(t, "/api/v1/events?category=formation"))
	require.Len(t, events, 1)
	assert.Empty(t, decode[[]engine.Event](t, f.get(t, "/api/v1/events?category=betrayal")))

	again := f.post(t, "/api/v1/intervention", testKey, `{"type":"form","a":4,"b":3}`)
	assert.Equal(t, http.StatusConflict, again.Code)
}

func TestInterventionErrors(t *testing.T) {
	f := newFixture(t)
	cases := []struct {
		name string
		body string
		want int
	}{
		{"bad json", `{`, http.StatusBadRequest},
		{"unknown type", `{"type":"plague"}`, http.StatusBadRequest},
		{"missing alliance", `{"type":"leak"}`, http.StatusBadRequest},
		{"unknown alliance", `{"type":"reveal","alliance":"` + social.NewAllianceID().String() + `"}`, http.StatusNotFound},
		{"inactive alliance", `{"type":"leak","alliance":"` + f.retired.ID.String() + `"}`, http.StatusConflict},
		{"unknown operation", `{"type":"operation","alliance":"` + f.pact.ID.String() + `","operation":"assassination"}`, http.StatusBadRequest},
		{"unknown faction", `{"type":"form","a":1,"b":9}`, http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := f.post(t, "/api/v1/intervention", testKey, tc.body)
			assert.Equal(t, tc.want, rec.Code, rec.Body.String())
		})
	}
}

func TestInterventionOperationHonorsCooldown(t *testing.T) {
	f := newFixture(t)
	body := `{"type":"operation","alliance":"` + f.pact.ID.String() + `","operation":"spy_probe"}`

	first := f.post(t, "/api/v1/intervention", testKey, body)
	require.Equal(t, http.StatusOK, first.Code, first.Body.String())
	assert.Equal(t, "spy_probe", decode[map[string]any](t, first)["operation"])

	assert.Equal(t, http.StatusConflict, f.post(t, "/api/v1/intervention", testKey, body).Code)
}

func TestBattleWithoutAlliance(t *testing.T) {
	f := newFixture(t)
	rec := f.post(t, "/api/v1/battle", testKey, `{"a":3,"b":4}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, engine.OutcomeNone.String(), decode[map[string]string](t, rec)["outcome"])

	assert.Equal(t, http.StatusBadRequest, f.post(t, "/api/v1/battle", testKey, `{"a":3}`).Code)
	assert.Equal(t, http.StatusMethodNotAllowed, f.get(t, "/api/v1/battle").Code)
}

func TestMetricsMounted(t *testing.T) {
	f := newFixture(t)
	rec := f.get(t, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "pactsim_")
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/status", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rec := httptest.NewRecorder()
	f.h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
}
