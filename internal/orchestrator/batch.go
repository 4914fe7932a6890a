package orchestrator

import (
	"context"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"netpol-verify/internal/scenario"
)

// RunAll executes the scenarios with at most parallelism in flight and
// records every result in the aggregator. Scenarios are independent by
// construction (each owns exclusively-named namespaces); within one scenario
// the steps stay strictly sequential. Cancellation stops launching new
// scenarios; in-flight ones still tear down.
func RunAll(ctx context.Context, runner *Runner, scenarios []scenario.Scenario, parallelism int, agg *Aggregator) {
	if parallelism < 1 {
		parallelism = 1
	}

	g := new(errgroup.Group)
	g.SetLimit(parallelism)

	for _, sc := range scenarios {
		sc := sc
		if ctx.Err() != nil {
			logrus.Warnf("batch cancelled, skipping scenario %s", sc.ID)
			agg.Record(ScenarioResult{
				ScenarioID:     sc.ID,
				Verdict:        VerdictFail,
				FailureReasons: []string{"batch cancelled before start: " + ctx.Err().Error()},
			})
			continue
		}
		g.Go(func() error {
			agg.Record(runner.Run(ctx, sc))
			return nil
		})
	}

	// Run never returns an error; Wait only synchronizes.
	_ = g.Wait()
}
