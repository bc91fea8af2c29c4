package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/shadow-pacts/internal/persistence"
)

func execute(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	require.NoError(t, rootCmd.Execute())
	return out.String()
}

func TestRunPersistsAndResumes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pacts.db")

	out := execute(t, "run", "--days", "3", "--db", path, "--log-level", "error", "--seed", "7")
	assert.Contains(t, out, "Spring Day 3, Year 1")

	out = execute(t, "run", "--days", "2", "--db", path, "--log-level", "error", "--seed", "7")
	assert.Contains(t, out, "Spring Day 5, Year 1")

	db, err := persistence.Open(path)
	require.NoError(t, err)
	defer db.Close()
	day, err := db.GetMeta("last_day")
	require.NoError(t, err)
	assert.Equal(t, "5", day)
}

func TestConfigPrintsYAML(t *testing.T) {
	out := execute(t, "config", "--log-level", "error")
	assert.Contains(t, out, "formation:")
	assert.Contains(t, out, "max_daily_delta:")
}

func TestBadLogFormatFails(t *testing.T) {
	rootCmd.SetArgs([]string{"config", "--log-format", "xml"})
	assert.Error(t, rootCmd.Execute())
	logFormat = "text"
}
