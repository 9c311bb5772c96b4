package pipeline

import (
	"context"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// VerifyPool runs signature verification across a worker pool (spec §5:
// "N worker pool for signature verification (CPU-bound; no shared mutable
// state)"), rate-limited so a burst of replicated envelopes cannot starve
// the node's other schedulers. Grounded on the teacher's arc.BaseConnector
// rate-limiting pattern (golang.org/x/time/rate), generalized from a
// per-connector ingress limiter to a pipeline-wide verification throttle.
type VerifyPool struct {
	Validator *Validator
	Limiter   *rate.Limiter
	Workers   int
}

// NewVerifyPool constructs a pool that admits at most r envelopes/sec
// (burst b) across workers concurrent goroutines.
func NewVerifyPool(v *Validator, r rate.Limit, b, workers int) *VerifyPool {
	if workers < 1 {
		workers = 1
	}
	return &VerifyPool{Validator: v, Limiter: rate.NewLimiter(r, b), Workers: workers}
}

// Run validates every envelope in envs concurrently, honoring ctx
// cancellation between records (spec §5: "cancellation is cooperative").
// It returns the first error encountered; other in-flight validations are
// allowed to drain (errgroup cancels ctx for the group on first error).
func (p *VerifyPool) Run(ctx context.Context, envs []Envelope) ([]Validation, error) {
	results := make([]Validation, len(envs))
	g, gctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, p.Workers)

	for i, env := range envs {
		i, env := i, env
		sem <- struct{}{}
		g.Go(func() error {
			defer func() { <-sem }()
			if err := p.Limiter.Wait(gctx); err != nil {
				return err
			}
			v, _, err := p.Validator.Validate(env)
			if err != nil {
				return err
			}
			results[i] = v
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
