package orchestrator

import (
	"context"
	"errors"

	"github.com/compose-network/contract-deployer/internal/plan"
	"github.com/compose-network/contract-deployer/internal/profile"
	"golang.org/x/sync/errgroup"
)

// Job is one network run. Jobs must not share a gateway.
type Job struct {
	Orchestrator *Orchestrator
	Profile      profile.NetworkProfile
	Plan         *plan.DeploymentPlan
}

// RunAll runs jobs concurrently, at most parallelism at a time when it is
// positive. A failing network does not stop the others; the returned error
// joins the failure of every network.
func RunAll(ctx context.Context, jobs []Job, parallelism int) ([]*Result, error) {
	results := make([]*Result, len(jobs))
	errs := make([]error, len(jobs))

	var g errgroup.Group
	if parallelism > 0 {
		g.SetLimit(parallelism)
	}

	for i, job := range jobs {
		g.Go(func() error {
			results[i], errs[i] = job.Orchestrator.Run(ctx, job.Profile, job.Plan)
			return nil
		})
	}
	_ = g.Wait()

	return results, errors.Join(errs...)
}
