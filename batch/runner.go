/*
Package batch settles many pensioners in parallel.

PURPOSE:
  A law firm files claims for a whole group of retirees of the same
  employer. Each pensioner's fold is sequential (year N depends on year
  N-1), but pensioners are independent of each other, so a batch fans out
  one goroutine per pensioner against a shared, read-only index table.

GUARANTEES:
  - Outcomes are returned in job order, one per job
  - A failing pensioner never aborts the others; its Outcome carries Err
  - Each job runs under its own timeout when Runner.Timeout > 0
  - Cancelling the parent context marks jobs not yet started with ctx.Err()

USAGE:
  runner := batch.NewRunner(8, 30*time.Second, logger)
  outcomes := runner.Run(ctx, jobs)
  for _, o := range outcomes {
      if o.Err != nil { ... }
  }

SEE ALSO:
  - settlement/engine.go: The per-pensioner fold
  - api/handlers.go: POST /api/batch/settle
*/
package batch

import (
	"context"
	"runtime"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/warp/liquidador/settlement"
)

// Job is one pensioner to settle.
type Job struct {
	CaseID       settlement.CaseID
	Observations []settlement.PaymentObservation
	Method       settlement.LegalMethod
	Index        settlement.IndexLookup
	Options      settlement.Options
}

// JobFromCase builds a job from a stored case.
func JobFromCase(c settlement.Case, index settlement.IndexLookup) (Job, error) {
	method, err := settlement.LookupMethod(string(c.Method))
	if err != nil {
		return Job{}, err
	}
	return Job{
		CaseID:       c.ID,
		Observations: c.Observations,
		Method:       method,
		Index:        index,
		Options:      c.Options,
	}, nil
}

// Outcome is the result of one job. Exactly one of Settlement and Err is set.
type Outcome struct {
	CaseID     settlement.CaseID
	Settlement *settlement.Settlement
	Err        error
	Duration   time.Duration
}

// Runner settles jobs with bounded concurrency.
type Runner struct {
	Concurrency int
	Timeout     time.Duration
	Logger      *zap.Logger
}

// NewRunner creates a runner. Concurrency <= 0 means GOMAXPROCS.
// A nil logger disables logging.
func NewRunner(concurrency int, timeout time.Duration, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{Concurrency: concurrency, Timeout: timeout, Logger: logger}
}

// Run settles every job and returns one outcome per job, in order.
func (r *Runner) Run(ctx context.Context, jobs []Job) []Outcome {
	logger := r.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	limit := r.Concurrency
	if limit <= 0 {
		limit = runtime.GOMAXPROCS(0)
	}

	outcomes := make([]Outcome, len(jobs))
	start := time.Now()

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(limit)

	for i, job := range jobs {
		i, job := i, job
		outcomes[i].CaseID = job.CaseID
		if err := egCtx.Err(); err != nil {
			outcomes[i].Err = err
			continue
		}
		eg.Go(func() error {
			outcomes[i] = r.runOne(egCtx, job, logger)
			return nil
		})
	}
	_ = eg.Wait()

	failed := 0
	for _, o := range outcomes {
		if o.Err != nil {
			failed++
		}
	}
	logger.Info("batch settled",
		zap.Int("jobs", len(jobs)),
		zap.Int("failed", failed),
		zap.Int("concurrency", limit),
		zap.Duration("duration", time.Since(start)),
	)
	return outcomes
}

func (r *Runner) runOne(ctx context.Context, job Job, logger *zap.Logger) Outcome {
	started := time.Now()
	out := Outcome{CaseID: job.CaseID}

	if err := ctx.Err(); err != nil {
		out.Err = err
		return out
	}
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	type result struct {
		s   *settlement.Settlement
		err error
	}
	done := make(chan result, 1)
	go func() {
		engine := settlement.NewEngine(job.Method, job.Index, job.Options)
		s, err := engine.Settle(job.Observations)
		done <- result{s, err}
	}()

	select {
	case res := <-done:
		out.Settlement, out.Err = res.s, res.err
	case <-ctx.Done():
		out.Err = ctx.Err()
	}
	out.Duration = time.Since(started)

	if out.Err != nil {
		logger.Warn("settlement failed",
			zap.String("case_id", string(job.CaseID)),
			zap.Int("years", len(job.Observations)),
			zap.Error(out.Err),
		)
	} else {
		logger.Debug("settlement computed",
			zap.String("case_id", string(job.CaseID)),
			zap.String("method", string(out.Settlement.Method)),
			zap.Int("years", len(out.Settlement.Rows)),
			zap.Duration("duration", out.Duration),
		)
	}
	return out
}
