package worker

import (
	"context"
	"sync"
	"time"

	"github.com/weatherflows/weatherflows/internal/workflow"
)

// BatchResult summarises a TriggerAll call.
type BatchResult struct {
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
	Total     int
	Succeeded int
	Skipped   int
	Failed    int

	// Runs are in completion order.
	Runs   []*workflow.Run
	Errors []BatchError
}

// BatchError names a workflow whose run failed.
type BatchError struct {
	Workflow string
	Error    string
}

// TriggerAll runs every workflow once with a bounded worker pool. Cities are
// the definitions' defaults.
func (r *Runner) TriggerAll(ctx context.Context, trigger workflow.Trigger, cfg BatchConfig) *BatchResult {
	cfg = cfg.withDefaults()

	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	startTime := time.Now()
	result := &BatchResult{
		StartTime: startTime,
		Total:     len(r.names),
	}

	r.logger.Info().
		Int("workflows", result.Total).
		Int("concurrency", cfg.Concurrency).
		Msg("starting batch run")

	names := make(chan string, len(r.names))
	runs := make(chan *workflow.Run, len(r.names))

	var wg sync.WaitGroup
	for i := 0; i < cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.batchWorker(ctx, trigger, names, runs)
		}()
	}

	for _, name := range r.names {
		names <- name
	}
	close(names)

	go func() {
		wg.Wait()
		close(runs)
	}()

	for run := range runs {
		result.Runs = append(result.Runs, run)
		switch run.Status {
		case workflow.StatusSucceeded:
			result.Succeeded++
		case workflow.StatusSkipped:
			result.Skipped++
		default:
			result.Failed++
			result.Errors = append(result.Errors, BatchError{Workflow: run.Workflow, Error: run.Error})
		}
	}

	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(startTime)

	r.logger.Info().
		Dur("duration", result.Duration).
		Int("succeeded", result.Succeeded).
		Int("skipped", result.Skipped).
		Int("failed", result.Failed).
		Msg("batch run completed")

	return result
}

func (r *Runner) batchWorker(ctx context.Context, trigger workflow.Trigger, names <-chan string, runs chan<- *workflow.Run) {
	for name := range names {
		select {
		case <-ctx.Done():
			return
		default:
			run, err := r.Trigger(ctx, name, workflow.RunParams{Trigger: trigger})
			if err != nil {
				continue
			}
			runs <- run
		}
	}
}
