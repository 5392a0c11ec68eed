package system

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestClockNowUTC(t *testing.T) {
	t.Parallel()

	clk := New(nil)
	before := time.Now().UTC().Add(-time.Second)
	got := clk.Now()
	after := time.Now().UTC().Add(time.Second)

	require.Equal(t, time.UTC, got.Location())
	require.True(t, got.After(before) && got.Before(after))
}

func TestDateInCrossesMidnightInEditionZone(t *testing.T) {
	t.Parallel()

	jst := time.FixedZone("JST", 9*60*60)
	// 2024-03-01 16:30 UTC is already 2024-03-02 in Tokyo.
	ts := time.Date(2024, 3, 1, 16, 30, 0, 0, time.UTC)

	require.Equal(t, "2024-03-02", DateIn(ts, jst))
	require.Equal(t, "2024-03-01", DateIn(ts, time.UTC))
}

func TestClockTodayUsesLocation(t *testing.T) {
	t.Parallel()

	clk := New(time.UTC)
	require.Equal(t, time.Now().UTC().Format(time.DateOnly), clk.Today())
	require.Equal(t, time.UTC, clk.Location())
}
