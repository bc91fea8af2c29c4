// Package persistence provides SQLite-based storage for alliance state.
package persistence

import (
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/shadow-pacts/internal/engine"
	"github.com/talgya/shadow-pacts/internal/social"
	"github.com/talgya/shadow-pacts/internal/world"
)

// Meta keys written by SaveSnapshot.
const (
	metaLastDay  = "last_day"
	metaRNGState = "rng_state"
)

// DB wraps a SQLite connection for alliance state persistence.
type DB struct {
	conn *sqlx.DB
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// allianceColumns were added after the first schema. Saves made before
// them load with the zero value.
var allianceColumns = []struct{ name, decl string }{
	{"revealed", "INTEGER"},
	{"cross_war", "INTEGER"},
	{"group_id", "INTEGER"},
	{"group_strength", "REAL"},
	{"group_secrecy", "REAL"},
	{"group_members", "INTEGER"},
	{"suspicion_level", "REAL"},
	{"counter_intel_until_day", "INTEGER"},
	{"op_cooldown_json", "TEXT"},
	{"transfers_json", "TEXT"},
	{"cumulative_transfer", "REAL"},
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS alliances (
		row_id INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT,
		initiator INTEGER NOT NULL,
		target INTEGER NOT NULL,
		strength REAL NOT NULL,
		secrecy REAL NOT NULL,
		trust REAL NOT NULL,
		trade_pact INTEGER NOT NULL,
		military_pact INTEGER NOT NULL,
		is_active INTEGER NOT NULL,
		betrayal_revealed INTEGER NOT NULL,
		coup_attempted INTEGER NOT NULL,
		created_day INTEGER NOT NULL,
		last_interaction_day INTEGER NOT NULL,
		cooldown_days INTEGER NOT NULL,
		last_operation_day INTEGER NOT NULL,
		successful_operations INTEGER NOT NULL,
		leak_attempts INTEGER NOT NULL,
		days_without_leak INTEGER NOT NULL,
		betrayal_escalation REAL NOT NULL,
		defection_cooldown_days INTEGER NOT NULL,
		dissolved_day INTEGER NOT NULL DEFAULT 0,
		dissolve_reason TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS intel (
		id TEXT PRIMARY KEY,
		alliance_id TEXT,
		pair_a INTEGER NOT NULL,
		pair_b INTEGER NOT NULL,
		informer INTEGER NOT NULL,
		observer INTEGER NOT NULL,
		category TEXT NOT NULL,
		source TEXT NOT NULL,
		reliability REAL NOT NULL,
		severity REAL NOT NULL,
		days_old INTEGER NOT NULL,
		created_day INTEGER NOT NULL,
		is_confirmed INTEGER NOT NULL,
		broadcast INTEGER NOT NULL,
		kingdoms_json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS rejections (
		pair_a INTEGER NOT NULL,
		pair_b INTEGER NOT NULL,
		until_day INTEGER NOT NULL,
		PRIMARY KEY (pair_a, pair_b)
	);

	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		day INTEGER NOT NULL,
		description TEXT NOT NULL,
		category TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS world_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_events_day ON events(day);
	CREATE INDEX IF NOT EXISTS idx_intel_alliance ON intel(alliance_id);
	CREATE INDEX IF NOT EXISTS idx_alliances_pair ON alliances(initiator, target);
	`
	if _, err := db.conn.Exec(schema); err != nil {
		return err
	}
	return db.addMissingColumns()
}

// addMissingColumns upgrades an alliances table written by an older build.
func (db *DB) addMissingColumns() error {
	var cols []struct {
		CID     int            `db:"cid"`
		Name    string         `db:"name"`
		Type    string         `db:"type"`
		NotNull int            `db:"notnull"`
		Default sql.NullString `db:"dflt_value"`
		PK      int            `db:"pk"`
	}
	if err := db.conn.Select(&cols, "PRAGMA table_info(alliances)"); err != nil {
		return fmt.Errorf("inspect alliances: %w", err)
	}
	have := make(map[string]bool, len(cols))
	for _, c := range cols {
		have[c.Name] = true
	}
	for _, c := range allianceColumns {
		if have[c.name] {
			continue
		}
		if _, err := db.conn.Exec(fmt.Sprintf("ALTER TABLE alliances ADD COLUMN %s %s", c.name, c.decl)); err != nil {
			return fmt.Errorf("add column %s: %w", c.name, err)
		}
		slog.Info("added alliance column", "column", c.name)
	}
	return nil
}

// allianceRow mirrors the alliances table. Pointer fields are columns that
// older saves may lack.
type allianceRow struct {
	RowID                 int64    `db:"row_id"`
	ID                    *string  `db:"id"`
	Initiator             uint64   `db:"initiator"`
	Target                uint64   `db:"target"`
	Strength              float64  `db:"strength"`
	Secrecy               float64  `db:"secrecy"`
	Trust                 float64  `db:"trust"`
	TradePact             bool     `db:"trade_pact"`
	MilitaryPact          bool     `db:"military_pact"`
	IsActive              bool     `db:"is_active"`
	BetrayalRevealed      bool     `db:"betrayal_revealed"`
	CoupAttempted         bool     `db:"coup_attempted"`
	CreatedDay            int      `db:"created_day"`
	LastInteractionDay    int      `db:"last_interaction_day"`
	CooldownDays          int      `db:"cooldown_days"`
	LastOperationDay      int      `db:"last_operation_day"`
	SuccessfulOperations  int      `db:"successful_operations"`
	LeakAttempts          int      `db:"leak_attempts"`
	DaysWithoutLeak       int      `db:"days_without_leak"`
	BetrayalEscalation    float64  `db:"betrayal_escalation"`
	DefectionCooldownDays int      `db:"defection_cooldown_days"`
	DissolvedDay          int      `db:"dissolved_day"`
	DissolveReason        string   `db:"dissolve_reason"`
	Revealed              *bool    `db:"revealed"`
	CrossWar              *bool    `db:"cross_war"`
	GroupID               *int64   `db:"group_id"`
	GroupStrength         *float64 `db:"group_strength"`
	GroupSecrecy          *float64 `db:"group_secrecy"`
	GroupMembers          *int     `db:"group_members"`
	SuspicionLevel        *float64 `db:"suspicion_level"`
	CounterIntelUntilDay  *int     `db:"counter_intel_until_day"`
	OpCooldownJSON        *string  `db:"op_cooldown_json"`
	TransfersJSON         *string  `db:"transfers_json"`
	CumulativeTransfer    *float64 `db:"cumulative_transfer"`
}

func (r allianceRow) alliance() (*social.Alliance, error) {
	a := &social.Alliance{
		Initiator:             world.FactionID(r.Initiator),
		Target:                world.FactionID(r.Target),
		Strength:              r.Strength,
		Secrecy:               r.Secrecy,
		Trust:                 r.Trust,
		TradePact:             r.TradePact,
		MilitaryPact:          r.MilitaryPact,
		IsActive:              r.IsActive,
		BetrayalRevealed:      r.BetrayalRevealed,
		CoupAttempted:         r.CoupAttempted,
		CreatedDay:            r.CreatedDay,
		LastInteractionDay:    r.LastInteractionDay,
		CooldownDays:          r.CooldownDays,
		LastOperationDay:      r.LastOperationDay,
		SuccessfulOperations:  r.SuccessfulOperations,
		LeakAttempts:          r.LeakAttempts,
		DaysWithoutLeak:       r.DaysWithoutLeak,
		BetrayalEscalation:    r.BetrayalEscalation,
		DefectionCooldownDays: r.DefectionCooldownDays,
		DissolvedDay:          r.DissolvedDay,
		DissolveReason:        r.DissolveReason,
		Revealed:              deref(r.Revealed),
		CrossWar:              deref(r.CrossWar),
		GroupID:               uint64(deref(r.GroupID)),
		GroupStrength:         deref(r.GroupStrength),
		GroupSecrecy:          deref(r.GroupSecrecy),
		GroupMembers:          deref(r.GroupMembers),
		SuspicionLevel:        deref(r.SuspicionLevel),
		CounterIntelUntilDay:  deref(r.CounterIntelUntilDay),
		CumulativeTransfer:    deref(r.CumulativeTransfer),
	}
	if r.ID != nil && *r.ID != "" {
		id, err := uuid.Parse(*r.ID)
		if err != nil {
			return nil, fmt.Errorf("alliance row %d: %w", r.RowID, err)
		}
		a.ID = id
	}
	if s := deref(r.OpCooldownJSON); s != "" {
		if err := json.Unmarshal([]byte(s), &a.OpCooldownEnd); err != nil {
			return nil, fmt.Errorf("alliance row %d cooldowns: %w", r.RowID, err)
		}
	}
	if s := deref(r.TransfersJSON); s != "" {
		if err := json.Unmarshal([]byte(s), &a.Transfers); err != nil {
			return nil, fmt.Errorf("alliance row %d transfers: %w", r.RowID, err)
		}
	}
	return a, nil
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}

type intelRow struct {
	ID           string         `db:"id"`
	AllianceID   sql.NullString `db:"alliance_id"`
	PairA        uint64         `db:"pair_a"`
	PairB        uint64         `db:"pair_b"`
	Informer     uint64         `db:"informer"`
	Observer     uint64         `db:"observer"`
	Category     string         `db:"category"`
	Source       string         `db:"source"`
	Reliability  float64        `db:"reliability"`
	Severity     float64        `db:"severity"`
	DaysOld      int            `db:"days_old"`
	CreatedDay   int            `db:"created_day"`
	IsConfirmed  bool           `db:"is_confirmed"`
	Broadcast    bool           `db:"broadcast"`
	KingdomsJSON string         `db:"kingdoms_json"`
}

func (r intelRow) intel() (*social.Intel, error) {
	id, err := uuid.Parse(r.ID)
	if err != nil {
		return nil, fmt.Errorf("intel id %q: %w", r.ID, err)
	}
	rec := &social.Intel{
		ID:          id,
		Pair:        [2]world.FactionID{world.FactionID(r.PairA), world.FactionID(r.PairB)},
		Informer:    world.AgentID(r.Informer),
		Observer:    world.FactionID(r.Observer),
		Source:      social.Source(r.Source),
		Reliability: r.Reliability,
		Severity:    r.Severity,
		DaysOld:     r.DaysOld,
		CreatedDay:  r.CreatedDay,
		IsConfirmed: r.IsConfirmed,
		Broadcast:   r.Broadcast,
	}
	if r.AllianceID.Valid && r.AllianceID.String != "" {
		if rec.AllianceID, err = uuid.Parse(r.AllianceID.String); err != nil {
			return nil, fmt.Errorf("intel %s alliance: %w", r.ID, err)
		}
	}
	cat, ok := social.ParseCategory(r.Category)
	if !ok {
		slog.Warn("unknown intel category, loading as general rumor", "intel", r.ID, "category", r.Category)
	}
	rec.Category = cat
	if r.KingdomsJSON != "" {
		if err := json.Unmarshal([]byte(r.KingdomsJSON), &rec.Kingdoms); err != nil {
			return nil, fmt.Errorf("intel %s kingdoms: %w", r.ID, err)
		}
	}
	return rec, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullableID(id uuid.UUID) any {
	if id == uuid.Nil {
		return nil
	}
	return id.String()
}

// saveAlliances writes all alliances (full replace).
func saveAlliances(tx *sqlx.Tx, alliances []*social.Alliance) error {
	if _, err := tx.Exec("DELETE FROM alliances"); err != nil {
		return err
	}

	stmt, err := tx.Preparex(`INSERT INTO alliances
		(id, initiator, target, strength, secrecy, trust,
		 trade_pact, military_pact, is_active, betrayal_revealed, coup_attempted,
		 created_day, last_interaction_day, cooldown_days, last_operation_day,
		 successful_operations, leak_attempts, days_without_leak,
		 betrayal_escalation, defection_cooldown_days, dissolved_day, dissolve_reason,
		 revealed, cross_war, group_id, group_strength, group_secrecy, group_members,
		 suspicion_level, counter_intel_until_day, op_cooldown_json, transfers_json,
		 cumulative_transfer)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, a := range alliances {
		cooldownJSON, err := json.Marshal(a.OpCooldownEnd)
		if err != nil {
			return fmt.Errorf("encode cooldowns %s: %w", a.ID, err)
		}
		transfersJSON, err := json.Marshal(a.Transfers)
		if err != nil {
			return fmt.Errorf("encode transfers %s: %w", a.ID, err)
		}

		_, err = stmt.Exec(
			nullableID(a.ID), a.Initiator, a.Target, a.Strength, a.Secrecy, a.Trust,
			boolInt(a.TradePact), boolInt(a.MilitaryPact), boolInt(a.IsActive),
			boolInt(a.BetrayalRevealed), boolInt(a.CoupAttempted),
			a.CreatedDay, a.LastInteractionDay, a.CooldownDays, a.LastOperationDay,
			a.SuccessfulOperations, a.LeakAttempts, a.DaysWithoutLeak,
			a.BetrayalEscalation, a.DefectionCooldownDays, a.DissolvedDay, a.DissolveReason,
			boolInt(a.Revealed), boolInt(a.CrossWar), a.GroupID, a.GroupStrength, a.GroupSecrecy, a.GroupMembers,
			a.SuspicionLevel, a.CounterIntelUntilDay, string(cooldownJSON), string(transfersJSON),
			a.CumulativeTransfer,
		)
		if err != nil {
			return fmt.Errorf("insert alliance %s: %w", a.ID, err)
		}
	}
	return nil
}

// saveIntel writes all intel records (full replace).
func saveIntel(tx *sqlx.Tx, records []*social.Intel) error {
	if _, err := tx.Exec("DELETE FROM intel"); err != nil {
		return err
	}

	stmt, err := tx.Preparex(`INSERT INTO intel
		(id, alliance_id, pair_a, pair_b, informer, observer, category, source,
		 reliability, severity, days_old, created_day, is_confirmed, broadcast, kingdoms_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range records {
		kingdomsJSON, err := json.Marshal(r.Kingdoms)
		if err != nil {
			return fmt.Errorf("encode kingdoms %s: %w", r.ID, err)
		}
		_, err = stmt.Exec(
			r.ID.String(), nullableID(r.AllianceID), r.Pair[0], r.Pair[1],
			r.Informer, r.Observer, r.Category.String(), string(r.Source),
			r.Reliability, r.Severity, r.DaysOld, r.CreatedDay,
			boolInt(r.IsConfirmed), boolInt(r.Broadcast), string(kingdomsJSON),
		)
		if err != nil {
			return fmt.Errorf("insert intel %s: %w", r.ID, err)
		}
	}
	return nil
}

func saveRejections(tx *sqlx.Tx, rejections []social.Rejection) error {
	if _, err := tx.Exec("DELETE FROM rejections"); err != nil {
		return err
	}
	for _, r := range rejections {
		if _, err := tx.Exec("INSERT INTO rejections (pair_a, pair_b, until_day) VALUES (?, ?, ?)",
			r.Pair[0], r.Pair[1], r.UntilDay); err != nil {
			return fmt.Errorf("insert rejection %d/%d: %w", r.Pair[0], r.Pair[1], err)
		}
	}
	return nil
}

// saveEvents replaces the stored tail covered by the in-memory log, so
// repeated saves never duplicate an event and older history is kept.
func saveEvents(tx *sqlx.Tx, events []engine.Event) error {
	if len(events) == 0 {
		return nil
	}
	if _, err := tx.Exec("DELETE FROM events WHERE day >= ?", events[0].Day); err != nil {
		return err
	}
	for _, e := range events {
		_, err := tx.Exec(
			"INSERT INTO events (day, description, category) VALUES (?, ?, ?)",
			e.Day, e.Description, e.Category,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

func saveMeta(tx *sqlx.Tx, key, value string) error {
	_, err := tx.Exec("INSERT OR REPLACE INTO world_meta (key, value) VALUES (?, ?)", key, value)
	return err
}

// SaveSnapshot writes a full simulation snapshot in one transaction.
func (db *DB) SaveSnapshot(snap engine.Snapshot) error {
	slog.Info("saving alliance state", "day", snap.Day, "alliances", len(snap.Alliances), "intel", len(snap.Intel))

	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := saveAlliances(tx, snap.Alliances); err != nil {
		return fmt.Errorf("save alliances: %w", err)
	}
	if err := saveIntel(tx, snap.Intel); err != nil {
		return fmt.Errorf("save intel: %w", err)
	}
	if err := saveRejections(tx, snap.Rejections); err != nil {
		return fmt.Errorf("save rejections: %w", err)
	}
	if err := saveEvents(tx, snap.Events); err != nil {
		return fmt.Errorf("save events: %w", err)
	}
	if err := saveMeta(tx, metaLastDay, strconv.Itoa(snap.Day)); err != nil {
		return fmt.Errorf("save meta: %w", err)
	}
	if snap.RNGState != nil {
		if err := saveMeta(tx, metaRNGState, base64.StdEncoding.EncodeToString(snap.RNGState)); err != nil {
			return fmt.Errorf("save rng state: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	slog.Info("alliance state saved")
	return nil
}

// SaveMeta stores a key-value pair in world metadata.
func (db *DB) SaveMeta(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT OR REPLACE INTO world_meta (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta retrieves a metadata value.
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM world_meta WHERE key = ?", key)
	return value, err
}

// State is everything LoadState restores.
type State struct {
	Day      int
	Store    *social.Store
	Events   []engine.Event
	RNGState []byte
	Repaired int  // alliances that needed a surrogate ID
	Fresh    bool // nothing was saved yet
}

// LoadState reads the last snapshot back. A database that was never saved
// to yields an empty, Fresh state.
func (db *DB) LoadState(logger *slog.Logger) (*State, error) {
	if logger == nil {
		logger = slog.Default()
	}
	dayStr, err := db.GetMeta(metaLastDay)
	if errors.Is(err, sql.ErrNoRows) {
		return &State{Store: social.NewStore(), Fresh: true}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read last day: %w", err)
	}
	day, err := strconv.Atoi(dayStr)
	if err != nil {
		return nil, fmt.Errorf("parse last day %q: %w", dayStr, err)
	}

	var allianceRows []allianceRow
	if err := db.conn.Select(&allianceRows, "SELECT * FROM alliances ORDER BY row_id"); err != nil {
		return nil, fmt.Errorf("load alliances: %w", err)
	}
	alliances := make([]*social.Alliance, 0, len(allianceRows))
	for _, r := range allianceRows {
		a, err := r.alliance()
		if err != nil {
			return nil, err
		}
		alliances = append(alliances, a)
	}

	var intelRows []intelRow
	if err := db.conn.Select(&intelRows, "SELECT * FROM intel ORDER BY created_day, id"); err != nil {
		return nil, fmt.Errorf("load intel: %w", err)
	}
	records := make([]*social.Intel, 0, len(intelRows))
	for _, r := range intelRows {
		rec, err := r.intel()
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	var rejections []struct {
		PairA    uint64 `db:"pair_a"`
		PairB    uint64 `db:"pair_b"`
		UntilDay int    `db:"until_day"`
	}
	if err := db.conn.Select(&rejections, "SELECT pair_a, pair_b, until_day FROM rejections"); err != nil {
		return nil, fmt.Errorf("load rejections: %w", err)
	}
	rej := make([]social.Rejection, len(rejections))
	for i, r := range rejections {
		rej[i] = social.Rejection{
			Pair:     social.NewPairKey(world.FactionID(r.PairA), world.FactionID(r.PairB)),
			UntilDay: r.UntilDay,
		}
	}

	store := social.Restore(alliances, records, rej)
	st := &State{
		Day:      day,
		Store:    store,
		Repaired: store.RepairIDs(logger),
	}

	if st.Events, err = db.RecentEvents(1000); err != nil {
		return nil, fmt.Errorf("load events: %w", err)
	}
	// RecentEvents is newest first; the simulation log is oldest first.
	for i, j := 0, len(st.Events)-1; i < j; i, j = i+1, j-1 {
		st.Events[i], st.Events[j] = st.Events[j], st.Events[i]
	}

	if enc, err := db.GetMeta(metaRNGState); err == nil {
		if st.RNGState, err = base64.StdEncoding.DecodeString(enc); err != nil {
			return nil, fmt.Errorf("decode rng state: %w", err)
		}
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("read rng state: %w", err)
	}

	logger.Info("alliance state loaded",
		"day", day,
		"alliances", len(alliances),
		"intel", len(records),
		"repaired", st.Repaired,
	)
	return st, nil
}

// RecentEvents returns the most recent N events, newest first.
func (db *DB) RecentEvents(limit int) ([]engine.Event, error) {
	var events []engine.Event
	err := db.conn.Select(&events,
		"SELECT day, description, category FROM events ORDER BY id DESC LIMIT ?",
		limit,
	)
	return events, err
}
