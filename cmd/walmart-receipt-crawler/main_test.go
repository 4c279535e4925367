package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseWindow(t *testing.T) {
	now := time.Date(2026, time.August, 21, 15, 30, 0, 0, time.UTC)

	t.Run("defaults to the last 90 days", func(t *testing.T) {
		w, err := parseWindow("", "", now)
		require.NoError(t, err)
		assert.Equal(t, "2026-05-23", w.Start.Format(dayFormat))
		assert.Equal(t, "2026-08-21", w.End.Format(dayFormat))
	})

	t.Run("explicit window", func(t *testing.T) {
		w, err := parseWindow("2026-05-01", "2026-08-01", now)
		require.NoError(t, err)
		assert.Equal(t, "2026-05-01", w.Start.Format(dayFormat))
		assert.Equal(t, "2026-08-01", w.End.Format(dayFormat))
	})

	t.Run("start anchors to given end", func(t *testing.T) {
		w, err := parseWindow("", "2026-06-30", now)
		require.NoError(t, err)
		assert.Equal(t, "2026-04-01", w.Start.Format(dayFormat))
		assert.Equal(t, "2026-06-30", w.End.Format(dayFormat))
	})

	t.Run("invalid start", func(t *testing.T) {
		_, err := parseWindow("05/01/2026", "", now)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "--start")
	})

	t.Run("invalid end", func(t *testing.T) {
		_, err := parseWindow("", "yesterday", now)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "--end")
	})

	t.Run("inverted window", func(t *testing.T) {
		_, err := parseWindow("2026-08-02", "2026-08-01", now)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "after end date")
	})
}
