package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDayLabel(t *testing.T) {
	assert.Equal(t, "Spring Day 1, Year 1", DayLabel(1))
	assert.Equal(t, "Spring Day 90, Year 1", DayLabel(90))
	assert.Equal(t, "Summer Day 1, Year 1", DayLabel(91))
	assert.Equal(t, "Winter Day 90, Year 1", DayLabel(360))
	assert.Equal(t, "Spring Day 1, Year 2", DayLabel(361))
	assert.Equal(t, "before the first day", DayLabel(0))
}

func TestEngineRunStopsOnCancel(t *testing.T) {
	e := NewEngine(time.Millisecond, quietLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var seen []int
	e.OnDay = func(day int) {
		seen = append(seen, day)
		if day == 5 {
			cancel()
		}
	}

	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("engine did not stop")
	}
	assert.Equal(t, []int{1, 2, 3, 4, 5}, seen)
	assert.Equal(t, 5, e.Days())
}

func TestEngineSpeed(t *testing.T) {
	e := NewEngine(time.Second, nil)
	assert.Equal(t, 1.0, e.Speed())
	e.SetSpeed(0)
	assert.Zero(t, e.Speed())

	// A paused engine still honors cancellation.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.NoError(t, e.Run(ctx))
	assert.Zero(t, e.Days())
}
