package operation

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/walteh/fixrc/pkg/backup"
	"github.com/walteh/fixrc/pkg/candidate"
	"github.com/walteh/fixrc/pkg/config"
	"github.com/walteh/fixrc/pkg/log"
	"github.com/walteh/fixrc/pkg/probe"
	"github.com/walteh/fixrc/pkg/rewrite"
	"github.com/walteh/fixrc/pkg/safety"
	"github.com/walteh/fixrc/pkg/validate"
)

// scriptedProbe replays canned results, one per invocation
type scriptedProbe struct {
	results []probe.Result
	calls   int
}

func (p *scriptedProbe) Count(ctx context.Context, scope []string) (probe.Result, error) {
	if p.calls >= len(p.results) {
		return probe.Result{}, errors.New("probe invoked more times than scripted")
	}
	r := p.results[p.calls]
	p.calls++
	return r, nil
}

type fixture struct {
	dir     string
	cfg     *config.Config
	rules   []rewrite.Rule
	console *log.Logger
	backup  backup.Strategy
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	dir := t.TempDir()

	for _, name := range []string{"a.ts", "b.ts", "c.ts"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("var x = 1\n"), 0o644))
	}

	cfg := &config.Config{
		Candidates: config.CandidateConfig{Root: dir},
		Backup:     config.BackupConfig{Strategy: "file_copy", Dir: filepath.Join(dir, ".fixrc", "backups")},
		StateDir:   filepath.Join(dir, ".fixrc"),
	}

	return fixture{
		dir:     dir,
		cfg:     cfg,
		rules:   []rewrite.Rule{rewrite.NewLiteralRule("var-to-let", "var ", "let ")},
		console: log.New(io.Discard, zerolog.Disabled),
		backup:  backup.NewFileCopyStrategy(cfg.Backup.Dir),
	}
}

func (f fixture) newRun(t *testing.T, p probe.Probe, dryRun bool, maxFiles int) *RunOperation {
	t.Helper()
	op, err := New(Options{
		Config:   f.cfg,
		Probe:    p,
		Rules:    f.rules,
		Selector: candidate.NewSelector(f.cfg.Candidates.Root, nil, nil),
		Backup:   f.backup,
		Console:  f.console,
		DryRun:   dryRun,
		MaxFiles: maxFiles,
	})
	require.NoError(t, err)
	return op
}

func (f fixture) readFile(t *testing.T, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(f.dir, name))
	require.NoError(t, err)
	return string(data)
}

func baselineTen() probe.Result {
	return probe.Result{Total: 10, PerFile: map[string]int{"a.ts": 5, "b.ts": 3, "c.ts": 2}}
}

func TestExecute_ImprovementCommits(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	p := &scriptedProbe{results: []probe.Result{
		baselineTen(),
		{Total: 6, PerFile: map[string]int{"a.ts": 2, "b.ts": 2, "c.ts": 2}},
	}}
	op := f.newRun(t, p, false, 2)

	outcome, err := op.Execute(ctx, safety.Defaults())
	require.NoError(t, err)

	assert.Equal(t, validate.VerdictOK, outcome.Verdict)
	assert.Equal(t, 2, p.calls)
	assert.Equal(t, 2, outcome.Result.FilesAttempted)
	assert.Equal(t, 2, outcome.Result.FilesModified)
	assert.Equal(t, 2, outcome.Result.FixesApplied)
	assert.Equal(t, 10, outcome.Result.ErrorsBefore)
	assert.Equal(t, 6, outcome.Result.ErrorsAfter)
	assert.Empty(t, outcome.Result.RolledBack)

	// Selector picked the two worst files and the rewrite landed.
	assert.Equal(t, "let x = 1\n", f.readFile(t, "a.ts"))
	assert.Equal(t, "let x = 1\n", f.readFile(t, "b.ts"))
	assert.Equal(t, "var x = 1\n", f.readFile(t, "c.ts"))

	assert.Equal(t, 1, outcome.Metrics.TotalRuns)
	assert.Equal(t, 1, outcome.Metrics.SuccessfulRuns)
}

func TestExecute_RegressionRollsBackWholeBatch(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	p := &scriptedProbe{results: []probe.Result{
		baselineTen(),
		{Total: 12, PerFile: map[string]int{"a.ts": 6, "b.ts": 4, "c.ts": 2}},
	}}
	op := f.newRun(t, p, false, 2)

	seed := safety.Metrics{TotalRuns: 5, SuccessfulRuns: 5}
	seed.CurrentSafetyScore = safety.Score(seed)
	seed.RecommendedBatchSize = safety.RecommendBatchSize(seed)

	outcome, err := op.Execute(ctx, seed)
	require.NoError(t, err)

	assert.Equal(t, validate.VerdictRegressed, outcome.Verdict)
	require.Len(t, outcome.Result.RolledBack, 2)
	assert.True(t, outcome.Result.Regressed())

	// Every touched file is back to its exact pre-run bytes.
	assert.Equal(t, "var x = 1\n", f.readFile(t, "a.ts"))
	assert.Equal(t, "var x = 1\n", f.readFile(t, "b.ts"))

	assert.Equal(t, 1, outcome.Metrics.RegressionsDetected)
	assert.Less(t, outcome.Metrics.CurrentSafetyScore, seed.CurrentSafetyScore)
}

func TestExecute_DryRunTouchesNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	p := &scriptedProbe{results: []probe.Result{baselineTen()}}
	op := f.newRun(t, p, true, 2)

	outcome, err := op.Execute(ctx, safety.Defaults())
	require.NoError(t, err)

	// The probe runs exactly once: nothing changed, so no re-measure.
	assert.Equal(t, 1, p.calls)
	assert.True(t, outcome.Result.DryRun)

	// Same report shape as a live run, minus any disk effects.
	assert.Equal(t, 2, outcome.Result.FilesAttempted)
	assert.Equal(t, 2, outcome.Result.FilesModified)
	assert.Equal(t, 2, outcome.Result.FixesApplied)
	assert.Equal(t, 10, outcome.Result.ErrorsBefore)
	assert.Equal(t, 10, outcome.Result.ErrorsAfter)

	assert.Equal(t, "var x = 1\n", f.readFile(t, "a.ts"))
	assert.Equal(t, "var x = 1\n", f.readFile(t, "b.ts"))

	// No backups were created.
	_, err = os.Stat(f.cfg.Backup.Dir)
	assert.True(t, os.IsNotExist(err))

	// Dry runs accumulate no trust.
	assert.Equal(t, safety.Defaults(), outcome.Metrics)
}

func TestExecute_AbortsWithoutBaseline(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	p := &scriptedProbe{results: []probe.Result{{Total: probe.UnknownTotal}}}
	op := f.newRun(t, p, false, 2)

	outcome, err := op.Execute(ctx, safety.Defaults())
	require.NoError(t, err)

	assert.True(t, outcome.Aborted)
	assert.Equal(t, 1, p.calls)
	assert.True(t, outcome.Result.Aborted)

	// Nothing was mutated.
	assert.Equal(t, "var x = 1\n", f.readFile(t, "a.ts"))
	// Aborted runs leave the metrics untouched.
	assert.Equal(t, safety.Defaults(), outcome.Metrics)
}

func TestExecute_UnknownPostProbeRollsBack(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	p := &scriptedProbe{results: []probe.Result{
		baselineTen(),
		{Total: probe.UnknownTotal},
	}}
	op := f.newRun(t, p, false, 2)

	outcome, err := op.Execute(ctx, safety.Defaults())
	require.NoError(t, err)

	assert.Equal(t, validate.VerdictRegressed, outcome.Verdict)
	assert.Equal(t, "var x = 1\n", f.readFile(t, "a.ts"))
	assert.Equal(t, "var x = 1\n", f.readFile(t, "b.ts"))
}

func TestExecute_CorruptionRollsBackWholeBatch(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	// b.ts gets bracketed content; the brace-eating rule trips the
	// corruption check there after a.ts was already written.
	require.NoError(t, os.WriteFile(filepath.Join(f.dir, "b.ts"), []byte("if (x) { var y = 1; }\n"), 0o644))
	f.rules = []rewrite.Rule{
		rewrite.NewLiteralRule("var-to-let", "var ", "let "),
		rewrite.NewLiteralRule("brace-eater", "; }", ";"),
	}

	p := &scriptedProbe{results: []probe.Result{baselineTen()}}
	op := f.newRun(t, p, false, 2)

	outcome, err := op.Execute(ctx, safety.Defaults())
	require.NoError(t, err)

	assert.True(t, outcome.Result.CorruptionDetected)
	assert.Equal(t, validate.VerdictRegressed, outcome.Verdict)
	assert.Equal(t, 1, p.calls)

	// a.ts was written before the corruption hit and must be restored.
	assert.Equal(t, "var x = 1\n", f.readFile(t, "a.ts"))
	assert.Equal(t, "if (x) { var y = 1; }\n", f.readFile(t, "b.ts"))

	assert.Equal(t, 1, outcome.Metrics.CorruptionsDetected)
}

func TestExecute_StaticFileListBypassesSelection(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	p := &scriptedProbe{results: []probe.Result{
		{Total: 3, PerFile: map[string]int{}},
		{Total: 1, PerFile: map[string]int{}},
	}}
	op, err := New(Options{
		Config:      f.cfg,
		Probe:       p,
		Rules:       f.rules,
		Selector:    candidate.NewSelector(f.cfg.Candidates.Root, nil, nil),
		Backup:      f.backup,
		Console:     f.console,
		StaticFiles: []string{"c.ts"},
		MaxFiles:    10,
	})
	require.NoError(t, err)

	outcome, err := op.Execute(ctx, safety.Defaults())
	require.NoError(t, err)

	assert.Equal(t, 1, outcome.Result.FilesAttempted)
	assert.Equal(t, "let x = 1\n", f.readFile(t, "c.ts"))
	assert.Equal(t, "var x = 1\n", f.readFile(t, "a.ts"))
}

func TestExecute_NoMatchesMeansNoSecondProbe(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.rules = []rewrite.Rule{rewrite.NewLiteralRule("miss", "nothing here", "x")}

	p := &scriptedProbe{results: []probe.Result{baselineTen()}}
	op := f.newRun(t, p, false, 3)

	outcome, err := op.Execute(ctx, safety.Defaults())
	require.NoError(t, err)

	assert.Equal(t, 1, p.calls)
	assert.Equal(t, validate.VerdictOK, outcome.Verdict)
	assert.Equal(t, 0, outcome.Result.FilesModified)
	assert.Equal(t, 10, outcome.Result.ErrorsAfter)
}

func TestNew_RequiredOptions(t *testing.T) {
	f := newFixture(t)

	_, err := New(Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config is required")

	_, err = New(Options{Config: f.cfg})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "probe is required")

	_, err = New(Options{
		Config:   f.cfg,
		Probe:    &scriptedProbe{},
		Rules:    f.rules,
		Selector: candidate.NewSelector(f.dir, nil, nil),
		Console:  f.console,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backup strategy is required")
}
