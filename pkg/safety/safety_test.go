package safety

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/walteh/fixrc/pkg/probe"
	"github.com/walteh/fixrc/pkg/runlog"
)

func TestLoad_AbsentFileIsFirstRun(t *testing.T) {
	ctx := context.Background()
	m, err := Load(ctx, filepath.Join(t.TempDir(), "metrics.json"))
	require.NoError(t, err)
	assert.Equal(t, Defaults(), m)
	assert.Equal(t, 3, m.RecommendedBatchSize)
	assert.Zero(t, m.CurrentSafetyScore)
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state", "metrics.json")

	m := Metrics{
		TotalRuns:            7,
		SuccessfulRuns:       6,
		RegressionsDetected:  1,
		CurrentSafetyScore:   81.5,
		RecommendedBatchSize: 35,
	}
	require.NoError(t, Save(ctx, path, m))

	loaded, err := Load(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, m, loaded)
}

func successfulRun() runlog.RunResult {
	return runlog.RunResult{
		Timestamp:     time.Now(),
		FilesModified: 2,
		FixesApplied:  5,
		ErrorsBefore:  10,
		ErrorsAfter:   6,
	}
}

func TestUpdate(t *testing.T) {
	t.Run("successful_run_builds_trust", func(t *testing.T) {
		m := Update(Defaults(), successfulRun())
		assert.Equal(t, 1, m.TotalRuns)
		assert.Equal(t, 1, m.SuccessfulRuns)
		assert.Greater(t, m.CurrentSafetyScore, 0.0)
	})

	t.Run("regression_counts_and_lowers_score", func(t *testing.T) {
		m := Defaults()
		for i := 0; i < 10; i++ {
			m = Update(m, successfulRun())
		}
		before := m.CurrentSafetyScore

		rr := successfulRun()
		rr.ErrorsAfter = 12
		rr.RolledBack = []string{"a.ts", "b.ts"}
		m = Update(m, rr)

		assert.Equal(t, 1, m.RegressionsDetected)
		assert.Less(t, m.CurrentSafetyScore, before)
	})

	t.Run("corruption_counts_separately", func(t *testing.T) {
		rr := successfulRun()
		rr.CorruptionDetected = true
		m := Update(Defaults(), rr)
		assert.Equal(t, 1, m.CorruptionsDetected)
		assert.Equal(t, 0, m.SuccessfulRuns)
	})

	t.Run("unknown_post_count_is_not_a_success", func(t *testing.T) {
		rr := successfulRun()
		rr.ErrorsAfter = probe.UnknownTotal
		m := Update(Defaults(), rr)
		assert.Equal(t, 1, m.RegressionsDetected)
		assert.Equal(t, 0, m.SuccessfulRuns)
	})

	t.Run("dry_runs_accumulate_nothing", func(t *testing.T) {
		rr := successfulRun()
		rr.DryRun = true
		m := Update(Defaults(), rr)
		assert.Equal(t, Defaults(), m)
	})

	t.Run("aborted_runs_accumulate_nothing", func(t *testing.T) {
		rr := successfulRun()
		rr.Aborted = true
		m := Update(Defaults(), rr)
		assert.Equal(t, Defaults(), m)
	})
}

func TestScore_Range(t *testing.T) {
	assert.Zero(t, Score(Metrics{}))

	perfect := Metrics{TotalRuns: 50, SuccessfulRuns: 50}
	assert.InDelta(t, 100, Score(perfect), 0.01)

	disaster := Metrics{TotalRuns: 4, RegressionsDetected: 2, CorruptionsDetected: 2}
	s := Score(disaster)
	assert.GreaterOrEqual(t, s, 0.0)
	assert.Less(t, s, 40.0)
}

func TestRecommendBatchSize_Steps(t *testing.T) {
	tests := []struct {
		score float64
		want  int
	}{
		{0, 3},
		{39.9, 3},
		{40, 5},
		{54.9, 5},
		{55, 10},
		{69.9, 10},
		{70, 20},
		{80, 35},
		{89.9, 35},
		{90, 50},
		{100, 50},
	}

	for _, tt := range tests {
		got := RecommendBatchSize(Metrics{CurrentSafetyScore: tt.score})
		assert.Equal(t, tt.want, got, "score %.1f", tt.score)
	}
}

func TestRecommendBatchSize_MonotoneInScore(t *testing.T) {
	// A higher score must never shrink the recommended batch.
	prev := 0
	for score := 0.0; score <= 100; score += 0.5 {
		got := RecommendBatchSize(Metrics{CurrentSafetyScore: score})
		assert.GreaterOrEqual(t, got, prev, "score %.1f", score)
		prev = got
	}
}

func TestLowTrustKeepsBatchesSmall(t *testing.T) {
	// Below the lowest threshold the batch must stay at 5 files or fewer.
	for score := 0.0; score < 55; score += 1 {
		got := RecommendBatchSize(Metrics{CurrentSafetyScore: score})
		assert.LessOrEqual(t, got, 5, "score %.1f", score)
	}
}
