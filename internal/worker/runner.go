package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/weatherflows/weatherflows/internal/history"
	"github.com/weatherflows/weatherflows/internal/workflow"
)

// DefaultSaveTimeout bounds the history write after each run.
const DefaultSaveTimeout = 5 * time.Second

// ErrUnknownWorkflow is returned when no pipeline has the requested name.
var ErrUnknownWorkflow = errors.New("unknown workflow")

// RunnerConfig holds configuration for creating a Runner.
type RunnerConfig struct {
	Pipelines []*workflow.Pipeline

	// History receives every finished run. Optional.
	History history.Repository

	Logger zerolog.Logger

	// SaveTimeout bounds history writes. Default: DefaultSaveTimeout
	SaveTimeout time.Duration
}

// Runner owns the pipelines of a process and records their runs.
type Runner struct {
	pipelines   map[string]*workflow.Pipeline
	names       []string
	history     history.Repository
	logger      zerolog.Logger
	saveTimeout time.Duration
}

// NewRunner creates a runner. Pipeline names must be unique.
func NewRunner(cfg RunnerConfig) (*Runner, error) {
	if cfg.SaveTimeout <= 0 {
		cfg.SaveTimeout = DefaultSaveTimeout
	}

	r := &Runner{
		pipelines:   make(map[string]*workflow.Pipeline, len(cfg.Pipelines)),
		history:     cfg.History,
		logger:      cfg.Logger.With().Str("component", "runner").Logger(),
		saveTimeout: cfg.SaveTimeout,
	}
	for _, p := range cfg.Pipelines {
		if p == nil {
			return nil, errors.New("worker: nil pipeline")
		}
		if _, ok := r.pipelines[p.Name()]; ok {
			return nil, fmt.Errorf("%w: %s", workflow.ErrDuplicateWorkflow, p.Name())
		}
		r.pipelines[p.Name()] = p
		r.names = append(r.names, p.Name())
	}
	return r, nil
}

// Trigger runs the named workflow once and records the run. The error is
// non-nil only when the workflow does not exist; a failed run is reported
// through Run.Status.
func (r *Runner) Trigger(ctx context.Context, name string, params workflow.RunParams) (*workflow.Run, error) {
	p, ok := r.pipelines[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownWorkflow, name)
	}

	run := p.Run(ctx, params)
	r.save(ctx, run)
	return run, nil
}

// Names returns workflow names in registration order.
func (r *Runner) Names() []string {
	return append([]string(nil), r.names...)
}

// Definitions returns the definitions in registration order.
func (r *Runner) Definitions() []workflow.Definition {
	defs := make([]workflow.Definition, 0, len(r.names))
	for _, name := range r.names {
		defs = append(defs, r.pipelines[name].Definition())
	}
	return defs
}

// Definition looks up one definition by name.
func (r *Runner) Definition(name string) (workflow.Definition, bool) {
	p, ok := r.pipelines[name]
	if !ok {
		return workflow.Definition{}, false
	}
	return p.Definition(), true
}

// History returns the run store, or nil when none is configured.
func (r *Runner) History() history.Repository {
	return r.history
}

func (r *Runner) save(ctx context.Context, run *workflow.Run) {
	if r.history == nil {
		return
	}

	// The run already happened; record it even if the caller has gone away.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.saveTimeout)
	defer cancel()

	if err := r.history.Save(ctx, run); err != nil {
		r.logger.Warn().
			Err(err).
			Str("workflow", run.Workflow).
			Str("run_id", run.ID).
			Msg("failed to save run")
	}
}
