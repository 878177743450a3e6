package pipeline

import (
	"context"

	"golang.org/x/sync/errgroup"

	"chiko/internal/judge/sandbox"
	"chiko/internal/judge/sandbox/result"
)

const defaultBatchConcurrency = 4

// RunJob is one test of a batch. A job naming an input or output file runs
// in file mode, otherwise on standard streams.
type RunJob struct {
	Name string
	sandbox.FileRunRequest
}

// FileIO reports whether the job runs in file mode.
func (j RunJob) FileIO() bool {
	return j.InputFileName != "" || j.OutputFileName != ""
}

// BatchResult is the outcome of one job, at the same index as the job.
type BatchResult struct {
	Name   string
	Result result.RunResult
	Err    error
}

// RunBatch runs jobs with at most concurrency invocations in flight. Every
// job runs to completion; the first job error is also returned.
func (p *Pipeline) RunBatch(ctx context.Context, jobs []RunJob, concurrency int) ([]BatchResult, error) {
	if concurrency <= 0 {
		concurrency = defaultBatchConcurrency
	}
	results := make([]BatchResult, len(jobs))
	var g errgroup.Group
	g.SetLimit(concurrency)
	for i, job := range jobs {
		i, job := i, job
		g.Go(func() error {
			var (
				res result.RunResult
				err error
			)
			if job.FileIO() {
				res, err = p.RunFileIO(ctx, job.FileRunRequest)
			} else {
				res, err = p.RunStdIO(ctx, job.RunRequest)
			}
			results[i] = BatchResult{Name: job.Name, Result: res, Err: err}
			return err
		})
	}
	return results, g.Wait()
}
