// Package history stores the record of every workflow run.
package history

import (
	"context"
	"errors"

	"github.com/weatherflows/weatherflows/internal/workflow"
)

// ErrRunNotFound is returned when no run has the requested ID.
var ErrRunNotFound = errors.New("run not found")

// Default and maximum page sizes for List.
const (
	DefaultLimit = 50
	MaxLimit     = 500
)

// Filter narrows a List call.
type Filter struct {
	// Workflow restricts results to one workflow when non-empty.
	Workflow string

	// Limit caps the result size. Zero means DefaultLimit.
	Limit int
}

func (f Filter) limit() int {
	switch {
	case f.Limit <= 0:
		return DefaultLimit
	case f.Limit > MaxLimit:
		return MaxLimit
	default:
		return f.Limit
	}
}

// Repository defines the interface for run history persistence.
type Repository interface {
	// Save inserts a run, or replaces it if the ID already exists.
	Save(ctx context.Context, run *workflow.Run) error

	// Get retrieves a run by ID.
	Get(ctx context.Context, id string) (*workflow.Run, error)

	// List returns runs newest first.
	List(ctx context.Context, filter Filter) ([]*workflow.Run, error)

	// Ping reports whether the store is reachable.
	Ping(ctx context.Context) error
}
