package store

import (
	"context"
	"errors"

	"github.com/tagforge/api/internal/model"
)

// ErrJobNotFound is returned when no record exists for a job id.
var ErrJobNotFound = errors.New("job not found")

// JobStore persists job records keyed by id. The pipeline is the only writer
// for a given id while its run executes; readers may observe any intermediate
// state at any time.
type JobStore interface {
	CreateJob(ctx context.Context, job *model.Job) error
	GetJob(ctx context.Context, id string) (*model.Job, error)
	UpdateJob(ctx context.Context, job *model.Job) error
	DeleteJob(ctx context.Context, id string) error
	ListJobs(ctx context.Context, ownerID string) ([]*model.Job, error)
}
