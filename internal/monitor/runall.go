package monitor

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/changewatch/internal/apperr"
)

// RunAll runs Cycle for every source with bounded concurrency and returns
// one Result per source in input order. Failures are reported in
// Result.Err and never stop other sources. A source name listed twice
// fails its later occurrences, since one source must have a single writer.
func (m *Monitor) RunAll(ctx context.Context, sources []Source) []Result {
	results := make([]Result, len(sources))

	var g errgroup.Group
	g.SetLimit(m.concurrency)

	seen := make(map[string]bool, len(sources))
	for i, src := range sources {
		if seen[src.Name] {
			res, _ := m.finish(
				&Result{Source: src.Name, RunID: m.runIDs.Generate()},
				apperr.Validation("monitor.run_all", src.Name, "source listed more than once"),
			)
			results[i] = *res
			continue
		}
		seen[src.Name] = true

		g.Go(func() error {
			res, _ := m.Cycle(ctx, src)
			results[i] = *res
			return nil
		})
	}

	_ = g.Wait()
	return results
}

// Summary counts results by status.
func Summary(results []Result) map[Status]int {
	counts := make(map[Status]int, 4)
	for _, r := range results {
		counts[r.Status]++
	}
	return counts
}
