package probe

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// MultiProbe fans out to several oracles and merges their counts. The
// aggregate is only as trustworthy as its weakest member: any unknown
// sub-result poisons the whole aggregate.
type MultiProbe struct {
	probes []Probe
}

// NewMultiProbe creates a probe over the given oracles
func NewMultiProbe(probes ...Probe) *MultiProbe {
	return &MultiProbe{probes: probes}
}

// Count runs all oracles concurrently and sums their totals. File mutation
// never happens while probes run, so the fan-out cannot misattribute deltas.
func (m *MultiProbe) Count(ctx context.Context, scope []string) (Result, error) {
	if len(m.probes) == 1 {
		return m.probes[0].Count(ctx, scope)
	}

	results := make([]Result, len(m.probes))

	g, gctx := errgroup.WithContext(ctx)
	for i, p := range m.probes {
		i, p := i, p
		g.Go(func() error {
			r, err := p.Count(gctx, scope)
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{Total: UnknownTotal}, err
	}

	return merge(results), nil
}

func merge(results []Result) Result {
	out := Result{PerFile: map[string]int{}}
	for _, r := range results {
		if r.Unknown() {
			return Result{Total: UnknownTotal}
		}
		out.Total += r.Total
		for path, n := range r.PerFile {
			out.PerFile[path] += n
		}
	}
	return out
}
