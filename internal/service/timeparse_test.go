package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseScheduleTime(t *testing.T) {
	shanghai, err := time.LoadLocation("Asia/Shanghai")
	require.NoError(t, err)

	t.Run("rfc3339 with offset converts to utc", func(t *testing.T) {
		got, err := ParseScheduleTime("2025-06-02T18:30:00+08:00", shanghai)
		require.NoError(t, err)
		require.Equal(t, time.Date(2025, 6, 2, 10, 30, 0, 0, time.UTC), got)
	})

	t.Run("bare wall time uses account zone", func(t *testing.T) {
		got, err := ParseScheduleTime("2025-06-02T15:04", shanghai)
		require.NoError(t, err)
		require.Equal(t, time.Date(2025, 6, 2, 7, 4, 0, 0, time.UTC), got)
	})

	t.Run("seconds precision", func(t *testing.T) {
		got, err := ParseScheduleTime("2025-06-02T15:04:30", time.UTC)
		require.NoError(t, err)
		require.Equal(t, time.Date(2025, 6, 2, 15, 4, 30, 0, time.UTC), got)
	})

	t.Run("date only is local midnight", func(t *testing.T) {
		got, err := ParseScheduleTime("2025-06-02", shanghai)
		require.NoError(t, err)
		require.Equal(t, time.Date(2025, 6, 1, 16, 0, 0, 0, time.UTC), got)
	})

	t.Run("nil location falls back to utc", func(t *testing.T) {
		got, err := ParseScheduleTime("2025-06-02T08:00", nil)
		require.NoError(t, err)
		require.Equal(t, time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC), got)
	})

	t.Run("garbage rejected", func(t *testing.T) {
		_, err := ParseScheduleTime("yesterday", time.UTC)
		require.Error(t, err)
	})
}
