package scheduler_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weatherflows/weatherflows/internal/scheduler"
	"github.com/weatherflows/weatherflows/internal/workflow"
)

type recordingTrigger struct {
	mu    sync.Mutex
	calls []triggerCall
	block chan struct{}
}

type triggerCall struct {
	name   string
	params workflow.RunParams
}

func (r *recordingTrigger) Trigger(ctx context.Context, name string, params workflow.RunParams) (*workflow.Run, error) {
	r.mu.Lock()
	r.calls = append(r.calls, triggerCall{name: name, params: params})
	r.mu.Unlock()

	if r.block != nil {
		select {
		case <-r.block:
		case <-ctx.Done():
		}
	}
	return &workflow.Run{ID: "run", Workflow: name, Status: workflow.StatusSkipped}, nil
}

func (r *recordingTrigger) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func everySecond(name string) workflow.Definition {
	def := workflow.Umbrella()
	def.Name = name
	def.Schedule = workflow.Schedule{Cron: "@every 1s"}
	return def
}

func TestScheduler_RegisterAllSkipsManualWorkflows(t *testing.T) {
	s := scheduler.New(scheduler.Config{Logger: zerolog.Nop()}, &recordingTrigger{})

	n, err := s.RegisterAll(workflow.DefaultDefinitions())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	entries := s.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "snow", entries[0].Workflow)
	assert.Equal(t, "CRON_TZ=US/Pacific 0 18 * * 1-5", entries[0].Expression)
}

func TestScheduler_NextActivationForSnow(t *testing.T) {
	// Saturday 2024-01-06 12:00 UTC; the next weekday 18:00 Pacific is
	// Monday 2024-01-08 18:00 PST.
	now := time.Date(2024, 1, 6, 12, 0, 0, 0, time.UTC)
	s := scheduler.New(scheduler.Config{Logger: zerolog.Nop(), Now: func() time.Time { return now }}, &recordingTrigger{})

	require.NoError(t, s.Register(workflow.Snow()))

	next, ok := s.Next("snow")
	require.True(t, ok)
	pacific, err := time.LoadLocation("US/Pacific")
	require.NoError(t, err)
	assert.True(t, next.Equal(time.Date(2024, 1, 8, 18, 0, 0, 0, pacific)), "got %s", next)

	_, ok = s.Next("umbrella")
	assert.False(t, ok)
}

func TestScheduler_RegisterErrors(t *testing.T) {
	s := scheduler.New(scheduler.Config{Logger: zerolog.Nop()}, &recordingTrigger{})

	assert.ErrorIs(t, s.Register(workflow.Umbrella()), scheduler.ErrNotScheduled)

	require.NoError(t, s.Register(workflow.Snow()))
	assert.ErrorIs(t, s.Register(workflow.Snow()), scheduler.ErrAlreadyRegistered)

	bad := workflow.Snow()
	bad.Name = "bad"
	bad.Schedule.Cron = "every tuesday"
	assert.Error(t, s.Register(bad))
}

func TestScheduler_TriggersScheduledRuns(t *testing.T) {
	trigger := &recordingTrigger{}
	s := scheduler.New(scheduler.Config{Logger: zerolog.Nop()}, trigger)
	require.NoError(t, s.Register(everySecond("ticker")))

	s.Start()
	defer func() { _ = s.Stop(context.Background()) }()

	require.Eventually(t, func() bool { return trigger.count() > 0 }, 3*time.Second, 50*time.Millisecond)

	trigger.mu.Lock()
	defer trigger.mu.Unlock()
	assert.Equal(t, "ticker", trigger.calls[0].name)
	assert.Equal(t, workflow.TriggerSchedule, trigger.calls[0].params.Trigger)
}

func TestScheduler_SkipsWhileStillRunning(t *testing.T) {
	trigger := &recordingTrigger{block: make(chan struct{})}
	s := scheduler.New(scheduler.Config{Logger: zerolog.Nop()}, trigger)
	require.NoError(t, s.Register(everySecond("slow")))

	s.Start()
	require.Eventually(t, func() bool { return trigger.count() == 1 }, 3*time.Second, 50*time.Millisecond)

	// Two more activations pass while the first run is blocked.
	time.Sleep(2200 * time.Millisecond)
	assert.Equal(t, 1, trigger.count())

	close(trigger.block)
	require.NoError(t, s.Stop(context.Background()))
}

func TestScheduler_StopTimesOut(t *testing.T) {
	trigger := &recordingTrigger{block: make(chan struct{})}
	defer close(trigger.block)

	s := scheduler.New(scheduler.Config{Logger: zerolog.Nop()}, trigger)
	require.NoError(t, s.Register(everySecond("stuck")))

	s.Start()
	require.Eventually(t, func() bool { return trigger.count() == 1 }, 3*time.Second, 50*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, s.Stop(ctx), context.DeadlineExceeded)
}
