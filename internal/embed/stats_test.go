package embed

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okCall(task string, ms int) Call {
	return Call{Task: task, Outcome: outcomeOK, Tokens: 100, Duration: time.Duration(ms) * time.Millisecond}
}

func TestLatencyStats(t *testing.T) {
	t.Run("Should compute percentiles over recorded samples", func(t *testing.T) {
		stats := NewLatencyStats(time.Hour)
		for _, ms := range []int{100, 200, 300, 400, 500} {
			stats.Record(okCall(TaskPassage, ms))
		}

		snap := stats.Snapshot()
		assert.Equal(t, 5, snap.Count)
		assert.Equal(t, int64(100), snap.MinMs)
		assert.Equal(t, int64(500), snap.MaxMs)
		assert.Equal(t, 300.0, snap.AvgMs)
		assert.Equal(t, 300.0, snap.P50Ms)
		assert.InDelta(t, 480.0, snap.P95Ms, 1e-9)
		assert.InDelta(t, 496.0, snap.P99Ms, 1e-9)
		assert.Equal(t, 500, snap.Tokens)
		assert.InDelta(t, 3000.0, snap.MsPer1kToken, 1e-9)
	})

	t.Run("Should break latency down by task and count every outcome", func(t *testing.T) {
		stats := NewLatencyStats(time.Hour)
		stats.Record(okCall(TaskPassage, 400))
		stats.Record(okCall(TaskPassage, 600))
		stats.Record(okCall(TaskQuery, 50))
		stats.Record(Call{Task: TaskPassage, Outcome: outcomeOverflow, Tokens: 9000, Duration: 2 * time.Second})
		stats.Record(Call{Task: TaskQuery, Outcome: outcomeRetryable, Duration: 5 * time.Second})

		snap := stats.Snapshot()
		assert.Equal(t, 5, snap.Calls)
		assert.Equal(t, 3, snap.Count)
		assert.Equal(t, int64(600), snap.MaxMs)
		assert.Equal(t, 300, snap.Tokens)
		assert.Equal(t, map[string]int{outcomeOK: 3, outcomeOverflow: 1, outcomeRetryable: 1}, snap.Outcomes)

		require.Contains(t, snap.ByTask, TaskPassage)
		require.Contains(t, snap.ByTask, TaskQuery)
		assert.Equal(t, 2, snap.ByTask[TaskPassage].Count)
		assert.Equal(t, 500.0, snap.ByTask[TaskPassage].AvgMs)
		assert.Equal(t, 1, snap.ByTask[TaskQuery].Count)
		assert.Equal(t, int64(50), snap.ByTask[TaskQuery].MaxMs)
	})

	t.Run("Should leave latency empty when no call succeeded", func(t *testing.T) {
		stats := NewLatencyStats(time.Hour)
		stats.Record(Call{Task: TaskPassage, Outcome: outcomeError, Duration: time.Second})

		snap := stats.Snapshot()
		assert.Equal(t, 1, snap.Calls)
		assert.Zero(t, snap.Count)
		assert.Zero(t, snap.MsPer1kToken)
		assert.Empty(t, snap.ByTask)
		assert.Equal(t, 1, snap.Outcomes[outcomeError])
	})

	t.Run("Should prune samples older than the window", func(t *testing.T) {
		now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
		stats := NewLatencyStats(time.Minute)
		stats.now = func() time.Time { return now }

		stats.Record(okCall(TaskQuery, 100))
		now = now.Add(2 * time.Minute)
		assert.Zero(t, stats.Snapshot().Calls)

		stats.Record(okCall(TaskQuery, 200))
		snap := stats.Snapshot()
		assert.Equal(t, 1, snap.Count)
		assert.Equal(t, int64(200), snap.MinMs)
	})

	t.Run("Should tolerate a nil receiver", func(t *testing.T) {
		var stats *LatencyStats
		stats.Record(okCall(TaskQuery, 1000))
		assert.Equal(t, StatsSnapshot{}, stats.Snapshot())
	})
}
