package sandbox

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/isdmx/runbox/metrics"
)

// Batch is a named collection of programs sharing one execution environment.
type Batch struct {
	SubmissionID string         `json:"submission_id"`
	Environment  ComputeContext `json:"environment"`
	Programs     []Program      `json:"programs"`
}

// BatchStatus is the overall status of a batch run.
type BatchStatus string

const (
	// BatchStatusSuccess means every program in the batch executed.
	BatchStatusSuccess BatchStatus = "SUCCESS"
)

// BatchResult aggregates the per-program results of one batch. Results[i]
// always corresponds to Programs[i] of the input, regardless of completion
// order.
type BatchResult struct {
	SubmissionID string          `json:"submission_id"`
	Status       BatchStatus     `json:"status"`
	Results      []ProgramResult `json:"result"`
}

// RunBatch executes every program of the batch concurrently through the
// executor's backend and aggregates the results in input order. All
// per-program tasks belong to one group scoped to the call: the first task to
// fail with an infrastructure error cancels its siblings, and the whole call
// fails with that error; no partial batch result is ever returned. A program
// exiting nonzero is a normal result, not a group failure. Each program runs
// exactly once; there is no retry.
func (e *Executor) RunBatch(ctx context.Context, batch Batch) (BatchResult, error) {
	e.logger.Info("running batch",
		zap.String("submission_id", batch.SubmissionID),
		zap.Int("programs", len(batch.Programs)),
		zap.String("backend", e.backend.Name()))

	results := make([]ProgramResult, len(batch.Programs))

	g, gctx := errgroup.WithContext(ctx)
	if e.config.MaxParallel > 0 {
		g.SetLimit(e.config.MaxParallel)
	}

	for i, program := range batch.Programs {
		g.Go(func() error {
			result, err := e.Run(gctx, program, batch.Environment)
			if err != nil {
				return fmt.Errorf("program %d: %w", i, err)
			}
			results[i] = result
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		metrics.BatchesTotal.WithLabelValues("error").Inc()
		return BatchResult{}, fmt.Errorf("batch %s failed: %w", batch.SubmissionID, err)
	}

	metrics.BatchesTotal.WithLabelValues("success").Inc()

	return BatchResult{
		SubmissionID: batch.SubmissionID,
		Status:       BatchStatusSuccess,
		Results:      results,
	}, nil
}
