package fanout

import (
	"context"
	"log/slog"
	"sync"
)

// run executes the jobs on a fixed pool of workers so that at most
// cfg.Parallelism sends are in flight at once, shared across both platforms.
// Every job is awaited to completion; a failing job never cancels siblings.
func (o *Orchestrator) run(ctx context.Context, runLogger *slog.Logger, jobs []sendJob) (delivered, failed int) {
	workers := o.cfg.Parallelism
	if workers > len(jobs) {
		workers = len(jobs)
	}

	queue := make(chan sendJob)
	results := make(chan bool, len(jobs))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range queue {
				results <- o.execute(ctx, runLogger, j)
			}
		}()
	}

	for _, j := range jobs {
		queue <- j
	}
	close(queue)
	wg.Wait()
	close(results)

	for ok := range results {
		if ok {
			delivered++
		} else {
			failed++
		}
	}
	return delivered, failed
}
