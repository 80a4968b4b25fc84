package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/trunov/mediafinalizer/internal/entities"
)

// Store persists jobs under a unique (media_asset_id, type) constraint.
type Store interface {
	// FindJob returns nil, nil when no job exists.
	FindJob(ctx context.Context, assetID string, jobType entities.JobType) (*entities.Job, error)
	// InsertJob returns entities.ErrDuplicateJob when the pair is taken.
	InsertJob(ctx context.Context, job entities.Job) (entities.Job, error)
	MarkDispatched(ctx context.Context, jobID, messageID string, at time.Time) error
}

// Registry guarantees at most one job per asset and type, even when
// several finalize calls race each other.
type Registry struct {
	store  Store
	logger *zap.Logger

	newID func() string
	now   func() time.Time
}

func New(store Store, logger *zap.Logger) *Registry {
	return &Registry{
		store:  store,
		logger: logger.Named("jobs"),
		newID:  uuid.NewString,
		now:    time.Now,
	}
}

// GetOrCreate returns the existing job for (assetID, jobType) or creates a
// queued one. created is true only for the caller whose insert won.
func (r *Registry) GetOrCreate(ctx context.Context, assetID, orgID string, jobType entities.JobType) (entities.Job, bool, error) {
	existing, err := r.store.FindJob(ctx, assetID, jobType)
	if err != nil {
		return entities.Job{}, false, fmt.Errorf("find job: %w", err)
	}
	if existing != nil {
		r.logger.Debug("job reused", zap.String("job_id", existing.ID), zap.String("media_id", assetID))
		return *existing, false, nil
	}

	job, err := r.store.InsertJob(ctx, entities.Job{
		ID:           r.newID(),
		MediaAssetID: assetID,
		OrgID:        orgID,
		Type:         jobType,
		State:        entities.JobStateQueued,
		CreatedAt:    r.now().UTC(),
	})
	switch {
	case err == nil:
		r.logger.Info("job created", zap.String("job_id", job.ID), zap.String("media_id", assetID), zap.String("type", string(jobType)))
		return job, true, nil
	case errors.Is(err, entities.ErrDuplicateJob):
		// lost the race, the winner's row is authoritative
		winner, ferr := r.store.FindJob(ctx, assetID, jobType)
		if ferr != nil {
			return entities.Job{}, false, fmt.Errorf("find job after conflict: %w", ferr)
		}
		if winner == nil {
			return entities.Job{}, false, fmt.Errorf("job for %s vanished after conflict: %w", assetID, err)
		}
		r.logger.Info("job insert lost race", zap.String("job_id", winner.ID), zap.String("media_id", assetID))
		return *winner, false, nil
	default:
		return entities.Job{}, false, fmt.Errorf("insert job: %w", err)
	}
}

// RecordDispatch stores the queue acknowledgement so later calls skip the send.
func (r *Registry) RecordDispatch(ctx context.Context, jobID, messageID string) error {
	if err := r.store.MarkDispatched(ctx, jobID, messageID, r.now().UTC()); err != nil {
		return fmt.Errorf("record dispatch: %w", err)
	}
	return nil
}
