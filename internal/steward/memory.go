package steward

import (
	"encoding/json"
	"log/slog"
	"os"
	"slices"
)

const (
	maxRecords    = 10
	touchedWindow = 3 // cycles an alliance is left alone after being touched
)

// CycleRecord captures what happened in a single steward cycle.
type CycleRecord struct {
	Day       int    `json:"day"`
	Action    string `json:"action"`
	Level     string `json:"level"`
	Alliance  string `json:"alliance,omitempty"`
	Rationale string `json:"rationale,omitempty"`
	Failed    bool   `json:"failed,omitempty"`
}

// CycleMemory manages a ring of recent steward cycle records.
type CycleMemory struct {
	Records []CycleRecord `json:"records"`

	path string
}

// LoadMemory reads the memory file from disk. Returns empty memory if not
// found. An empty path keeps the memory in process only.
func LoadMemory(path string) *CycleMemory {
	if path == "" {
		return &CycleMemory{}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return &CycleMemory{path: path}
	}
	var mem CycleMemory
	if err := json.Unmarshal(data, &mem); err != nil {
		slog.Warn("steward memory corrupted, starting fresh", "error", err)
		return &CycleMemory{path: path}
	}
	mem.path = path
	return &mem
}

// Save writes the memory to disk.
func (m *CycleMemory) Save() {
	if m.path == "" {
		return
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		slog.Error("failed to marshal steward memory", "error", err)
		return
	}
	if err := os.WriteFile(m.path, data, 0o644); err != nil {
		slog.Error("failed to write steward memory", "error", err)
	}
}

// Record adds a cycle record, trimming to maxRecords.
func (m *CycleMemory) Record(r CycleRecord) {
	m.Records = append(m.Records, r)
	if len(m.Records) > maxRecords {
		m.Records = m.Records[len(m.Records)-maxRecords:]
	}
}

// Touched reports whether the alliance was targeted in the last few cycles.
func (m *CycleMemory) Touched(allianceID string) bool {
	if m == nil || allianceID == "" {
		return false
	}
	recent := m.Records[max(0, len(m.Records)-touchedWindow):]
	return slices.ContainsFunc(recent, func(r CycleRecord) bool { return r.Alliance == allianceID })
}
