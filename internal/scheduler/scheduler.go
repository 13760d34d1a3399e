// Package scheduler starts scheduled workflows on their cron expressions.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/weatherflows/weatherflows/internal/workflow"
)

// DefaultJobTimeout bounds a single scheduled run.
const DefaultJobTimeout = 5 * time.Minute

// Errors returned by Register.
var (
	ErrNotScheduled      = errors.New("workflow has no schedule")
	ErrAlreadyRegistered = errors.New("workflow already registered")
)

// Trigger starts a workflow run by name.
type Trigger interface {
	Trigger(ctx context.Context, name string, params workflow.RunParams) (*workflow.Run, error)
}

// Config holds scheduler configuration.
type Config struct {
	Logger zerolog.Logger

	// JobTimeout bounds each run. Default: DefaultJobTimeout
	JobTimeout time.Duration

	// Now is used to compute next activations. Default: time.Now
	Now func() time.Time
}

// Entry describes one registered workflow.
type Entry struct {
	Workflow   string    `json:"workflow"`
	Expression string    `json:"expression"`
	Next       time.Time `json:"next"`
}

// Scheduler wraps a cron runner. A run that is still going when its next
// activation arrives causes that activation to be skipped.
type Scheduler struct {
	cron    *cron.Cron
	trigger Trigger
	logger  zerolog.Logger
	timeout time.Duration
	now     func() time.Time

	mu      sync.Mutex
	entries map[string]registered

	ctx    context.Context
	cancel context.CancelFunc
}

type registered struct {
	id         cron.EntryID
	expression string
}

// New creates a scheduler that starts runs through trigger.
func New(cfg Config, trigger Trigger) *Scheduler {
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = DefaultJobTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	logger := cfg.Logger.With().Str("component", "scheduler").Logger()
	cronLogger := cronLogger{logger: logger}

	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithLogger(cronLogger),
			cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
		),
		trigger: trigger,
		logger:  logger,
		timeout: cfg.JobTimeout,
		now:     cfg.Now,
		entries: make(map[string]registered),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Register adds a scheduled definition.
func (s *Scheduler) Register(def workflow.Definition) error {
	if !def.Schedule.IsScheduled() {
		return fmt.Errorf("%w: %s", ErrNotScheduled, def.Name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[def.Name]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, def.Name)
	}

	expression := def.Schedule.Expression()
	name := def.Name
	id, err := s.cron.AddFunc(expression, func() { s.run(name) })
	if err != nil {
		return fmt.Errorf("scheduling %s: %w", name, err)
	}

	s.entries[name] = registered{id: id, expression: expression}
	s.logger.Info().Str("workflow", name).Str("expression", expression).Msg("workflow scheduled")
	return nil
}

// RegisterAll registers every scheduled definition and skips the rest. It
// returns the number registered.
func (s *Scheduler) RegisterAll(defs []workflow.Definition) (int, error) {
	n := 0
	for _, def := range defs {
		if !def.Schedule.IsScheduled() {
			continue
		}
		if err := s.Register(def); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// Start runs the scheduler in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info().Int("workflows", len(s.Entries())).Msg("scheduler started")
}

// Stop prevents new activations and waits for running jobs. If ctx ends
// first, running jobs are cancelled and ctx.Err() is returned.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	defer s.cancel()

	select {
	case <-done.Done():
		s.logger.Info().Msg("scheduler stopped")
		return nil
	case <-ctx.Done():
		s.logger.Warn().Msg("scheduler stop timed out, cancelling running jobs")
		return ctx.Err()
	}
}

// Entries lists registered workflows sorted by name with their next activation.
func (s *Scheduler) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	entries := make([]Entry, 0, len(s.entries))
	for name, reg := range s.entries {
		entry := s.cron.Entry(reg.id)
		next := entry.Next
		if next.IsZero() && entry.Schedule != nil {
			next = entry.Schedule.Next(now)
		}
		entries = append(entries, Entry{Workflow: name, Expression: reg.expression, Next: next})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Workflow < entries[j].Workflow })
	return entries
}

// Next returns the next activation of a workflow.
func (s *Scheduler) Next(name string) (time.Time, bool) {
	for _, e := range s.Entries() {
		if e.Workflow == name {
			return e.Next, true
		}
	}
	return time.Time{}, false
}

func (s *Scheduler) run(name string) {
	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()

	run, err := s.trigger.Trigger(ctx, name, workflow.RunParams{Trigger: workflow.TriggerSchedule})
	if err != nil {
		s.logger.Error().Err(err).Str("workflow", name).Msg("scheduled trigger failed")
		return
	}
	s.logger.Debug().
		Str("workflow", name).
		Str("run_id", run.ID).
		Str("status", string(run.Status)).
		Msg("scheduled run completed")
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
