package history

import (
	"context"
	"sort"
	"sync"

	"github.com/weatherflows/weatherflows/internal/workflow"
)

// InMemoryRepository keeps runs in process memory. Used in tests and when no
// database is configured; history is lost on restart.
type InMemoryRepository struct {
	mu   sync.RWMutex
	runs map[string]*workflow.Run

	// capacity bounds memory use; the oldest runs are evicted first.
	capacity int
}

// NewInMemoryRepository creates a repository holding at most capacity runs.
// Zero means unbounded.
func NewInMemoryRepository(capacity int) *InMemoryRepository {
	return &InMemoryRepository{
		runs:     make(map[string]*workflow.Run),
		capacity: capacity,
	}
}

func (r *InMemoryRepository) Save(_ context.Context, run *workflow.Run) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.runs[run.ID] = copyRun(run)

	if r.capacity > 0 && len(r.runs) > r.capacity {
		oldest := ""
		for id, existing := range r.runs {
			if oldest == "" || existing.StartedAt.Before(r.runs[oldest].StartedAt) {
				oldest = id
			}
		}
		delete(r.runs, oldest)
	}
	return nil
}

func (r *InMemoryRepository) Get(_ context.Context, id string) (*workflow.Run, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	run, ok := r.runs[id]
	if !ok {
		return nil, ErrRunNotFound
	}
	return copyRun(run), nil
}

func (r *InMemoryRepository) List(_ context.Context, filter Filter) ([]*workflow.Run, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	runs := make([]*workflow.Run, 0, len(r.runs))
	for _, run := range r.runs {
		if filter.Workflow != "" && run.Workflow != filter.Workflow {
			continue
		}
		runs = append(runs, copyRun(run))
	}

	sort.Slice(runs, func(i, j int) bool {
		if runs[i].StartedAt.Equal(runs[j].StartedAt) {
			return runs[i].ID > runs[j].ID
		}
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})

	if limit := filter.limit(); len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

func (r *InMemoryRepository) Ping(context.Context) error {
	return nil
}

// Len returns the number of stored runs.
func (r *InMemoryRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.runs)
}

func copyRun(run *workflow.Run) *workflow.Run {
	cpy := *run
	if run.Decision != nil {
		d := *run.Decision
		cpy.Decision = &d
	}
	return &cpy
}
