// Package safety tracks the accumulated trust score that gates how many
// files a run may touch. The score spans process invocations: it is loaded
// before a run, updated by pure functions, and persisted after, so trust
// builds up over days of separate CLI runs.
package safety

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/fixrc/pkg/runlog"
)

// Metrics is the persisted trust state. It is passed by value through pure
// functions; all file I/O stays at the driver boundary.
type Metrics struct {
	TotalRuns            int     `json:"total_runs"`
	SuccessfulRuns       int     `json:"successful_runs"`
	RegressionsDetected  int     `json:"regressions_detected"`
	CorruptionsDetected  int     `json:"corruptions_detected"`
	CurrentSafetyScore   float64 `json:"current_safety_score"`
	RecommendedBatchSize int     `json:"recommended_batch_size"`
}

// score component weights
const (
	successWeight    = 40.0
	regressionWeight = 25.0
	corruptionWeight = 25.0
	historyBonusMax  = 10.0
	historyBonusRuns = 20 // runs needed for the full bonus
)

// batch size thresholds: crossing each score step unlocks a larger batch
var batchSteps = []struct {
	minScore float64
	size     int
}{
	{90, 50},
	{80, 35},
	{70, 20},
	{55, 10},
	{40, 5},
	{0, 3},
}

// Defaults returns the conservative first-run state: zero trust, tiny batch
func Defaults() Metrics {
	return Metrics{RecommendedBatchSize: 3}
}

// Load reads metrics from path. An absent file is first-run, not an error.
func Load(ctx context.Context, path string) (Metrics, error) {
	logger := zerolog.Ctx(ctx)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Debug().Str("path", path).Msg("no metrics file, starting with defaults")
			return Defaults(), nil
		}
		return Metrics{}, errors.Errorf("reading metrics file: %w", err)
	}

	var m Metrics
	if err := json.Unmarshal(data, &m); err != nil {
		return Metrics{}, errors.Errorf("parsing metrics file: %w", err)
	}
	if m.RecommendedBatchSize <= 0 {
		m.RecommendedBatchSize = Defaults().RecommendedBatchSize
	}
	return m, nil
}

// Save writes metrics to path
func Save(ctx context.Context, path string, m Metrics) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Errorf("creating state dir: %w", err)
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return errors.Errorf("marshaling metrics: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Errorf("writing metrics file: %w", err)
	}
	return nil
}

// Update folds one run result into the metrics and recomputes the score.
// Dry runs and aborted runs accumulate no trust either way: nothing was
// mutated, so nothing was proven.
func Update(m Metrics, rr runlog.RunResult) Metrics {
	if rr.DryRun || rr.Aborted {
		return m
	}

	m.TotalRuns++
	switch {
	case rr.CorruptionDetected:
		m.CorruptionsDetected++
	case rr.Regressed(), rr.Unknown():
		m.RegressionsDetected++
	default:
		m.SuccessfulRuns++
	}

	m.CurrentSafetyScore = Score(m)
	m.RecommendedBatchSize = RecommendBatchSize(m)
	return m
}

// Score computes the 0-100 trust blend: success rate, regression avoidance,
// corruption avoidance, plus a small bonus for accumulated history.
func Score(m Metrics) float64 {
	if m.TotalRuns == 0 {
		return 0
	}

	runs := float64(m.TotalRuns)
	successRate := float64(m.SuccessfulRuns) / runs
	regressionAvoidance := 1 - float64(m.RegressionsDetected)/runs
	corruptionAvoidance := 1 - float64(m.CorruptionsDetected)/runs

	bonusRuns := m.TotalRuns
	if bonusRuns > historyBonusRuns {
		bonusRuns = historyBonusRuns
	}
	bonus := historyBonusMax * float64(bonusRuns) / float64(historyBonusRuns)

	score := successWeight*successRate +
		regressionWeight*regressionAvoidance +
		corruptionWeight*corruptionAvoidance +
		bonus

	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// RecommendBatchSize is a step function of the score. Higher scores only
// ever unlock larger batches.
func RecommendBatchSize(m Metrics) int {
	for _, step := range batchSteps {
		if m.CurrentSafetyScore >= step.minScore {
			return step.size
		}
	}
	return batchSteps[len(batchSteps)-1].size
}
