package reactor

import (
	"context"

	"github.com/sourcegraph/conc/pool"
)

// BatchResult pairs a task with its outcome. Err carries setup and fatal endpoint
// errors exactly as Run returned them.
type BatchResult struct {
	Task   string
	Result *Result
	Err    error
}

// RunBatch runs independent tasks with at most WithBatchConcurrency of them in
// flight. Each task gets its own conversation and transcript; one task's failure
// never stops the others. Results are in task order.
func (c *Controller) RunBatch(ctx context.Context, tasks []string, opts ...Option) []BatchResult {
	s := c.settings
	for _, opt := range opts {
		opt(&s)
	}
	results := make([]BatchResult, len(tasks))
	if len(tasks) == 0 {
		return results
	}
	workers := max(s.batchConcurrency, 1)
	p := pool.New().WithMaxGoroutines(min(workers, len(tasks)))
	for i, task := range tasks {
		p.Go(func() {
			res, err := c.Run(ctx, task, opts...)
			results[i] = BatchResult{Task: task, Result: res, Err: err}
		})
	}
	p.Wait()
	return results
}
