package store

import (
	"context"
	"errors"
	"time"

	"github.com/docucast/api/internal/model"
)

// ErrNotFound is returned when a job id is unknown
var ErrNotFound = errors.New("job not found")

// Store persists job records keyed by job id. All implementations must
// serialize Update calls for the same id so two stage transitions can never
// interleave on one record.
type Store interface {
	// Create stores a new record. Fails if the id already exists.
	Create(ctx context.Context, job *model.Job) error

	// Get returns the current record for id, or ErrNotFound.
	Get(ctx context.Context, id string) (*model.Job, error)

	// Update applies mutate atomically with respect to other updates on the
	// same id and returns the record as persisted. An error from mutate
	// aborts the update and leaves the stored record untouched.
	Update(ctx context.Context, id string, mutate func(*model.Job) error) (*model.Job, error)

	// ScanStale returns non-terminal jobs whose last update is before cutoff.
	ScanStale(ctx context.Context, cutoff time.Time) ([]*model.Job, error)
}
