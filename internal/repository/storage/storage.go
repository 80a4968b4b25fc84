package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/trunov/mediafinalizer/internal/entities"
)

const uniqueViolation = "23505"

type dbStorage struct {
	dbpool *pgxpool.Pool
}

func New(ctx context.Context, databaseDSN string) (*dbStorage, error) {
	pool, err := pgxpool.New(ctx, databaseDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	return &dbStorage{dbpool: pool}, nil
}

func (s *dbStorage) Ping(ctx context.Context) error {
	return s.dbpool.Ping(ctx)
}

func (s *dbStorage) Close() {
	s.dbpool.Close()
}

const assetColumns = `id, org_id, bucket, storage_path, status, created_at, updated_at`

func (s *dbStorage) GetMediaAsset(ctx context.Context, orgID, assetID string) (entities.MediaAsset, error) {
	row := s.dbpool.QueryRow(ctx,
		`SELECT `+assetColumns+` FROM media_assets WHERE id = $1 AND org_id = $2`,
		assetID, orgID,
	)

	var a entities.MediaAsset
	err := row.Scan(&a.ID, &a.OrgID, &a.Bucket, &a.StoragePath, &a.Status, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return a, entities.ErrAssetNotFound
	}
	if err != nil {
		return a, fmt.Errorf("select media asset: %w", err)
	}
	return a, nil
}

// MarkUploaded records the storage path and moves the asset to uploaded.
// A ready or failed asset keeps its status, and a different path already on
// the row is never overwritten.
func (s *dbStorage) MarkUploaded(ctx context.Context, orgID, assetID, storagePath string) error {
	tag, err := s.dbpool.Exec(ctx, `
		UPDATE media_assets
		SET storage_path = $3,
		    status = CASE WHEN status IN ('ready', 'failed') THEN status ELSE 'uploaded' END,
		    updated_at = now()
		WHERE id = $1 AND org_id = $2 AND (storage_path = '' OR storage_path = $3)`,
		assetID, orgID, storagePath,
	)
	if err != nil {
		return fmt.Errorf("mark uploaded: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	if _, err := s.GetMediaAsset(ctx, orgID, assetID); err != nil {
		return err
	}
	return entities.ErrStoragePathConflict
}

// MarkReady never touches a failed asset.
func (s *dbStorage) MarkReady(ctx context.Context, orgID, assetID string) error {
	tag, err := s.dbpool.Exec(ctx,
		`UPDATE media_assets SET status = 'ready', updated_at = now()
		WHERE id = $1 AND org_id = $2 AND status <> 'failed'`,
		assetID, orgID,
	)
	if err != nil {
		return fmt.Errorf("mark ready: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	if _, err := s.GetMediaAsset(ctx, orgID, assetID); err != nil {
		return err
	}
	return entities.ErrAssetFailed
}

const jobColumns = `id, media_asset_id, org_id, type, state, created_at, dispatched_at, dispatch_message_id`

func scanJob(row pgx.Row) (entities.Job, error) {
	var j entities.Job
	err := row.Scan(&j.ID, &j.MediaAssetID, &j.OrgID, &j.Type, &j.State, &j.CreatedAt, &j.DispatchedAt, &j.DispatchMessageID)
	return j, err
}

func (s *dbStorage) FindJob(ctx context.Context, assetID string, jobType entities.JobType) (*entities.Job, error) {
	j, err := scanJob(s.dbpool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE media_asset_id = $1 AND type = $2`,
		assetID, jobType,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select job: %w", err)
	}
	return &j, nil
}

// InsertJob relies on the (media_asset_id, type) unique constraint; losing
// the race surfaces as entities.ErrDuplicateJob.
func (s *dbStorage) InsertJob(ctx context.Context, job entities.Job) (entities.Job, error) {
	j, err := scanJob(s.dbpool.QueryRow(ctx, `
		INSERT INTO jobs (id, media_asset_id, org_id, type, state, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (media_asset_id, type) DO NOTHING
		RETURNING `+jobColumns,
		job.ID, job.MediaAssetID, job.OrgID, job.Type, job.State, job.CreatedAt,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return entities.Job{}, entities.ErrDuplicateJob
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return entities.Job{}, entities.ErrDuplicateJob
	}
	if err != nil {
		return entities.Job{}, fmt.Errorf("insert job: %w", err)
	}
	return j, nil
}

// MarkDispatched keeps the first acknowledgement if two callers race.
func (s *dbStorage) MarkDispatched(ctx context.Context, jobID, messageID string, at time.Time) error {
	_, err := s.dbpool.Exec(ctx,
		`UPDATE jobs SET dispatched_at = $2, dispatch_message_id = $3 WHERE id = $1 AND dispatched_at IS NULL`,
		jobID, at, messageID,
	)
	if err != nil {
		return fmt.Errorf("mark dispatched: %w", err)
	}
	return nil
}

// MembershipRole returns the caller's role in the org, or "" when the user
// is not a member.
func (s *dbStorage) MembershipRole(ctx context.Context, orgID, userID string) (entities.Role, error) {
	var role string
	err := s.dbpool.QueryRow(ctx,
		`SELECT role FROM org_members WHERE org_id = $1 AND user_id = $2`,
		orgID, userID,
	).Scan(&role)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("select membership: %w", err)
	}
	return entities.ParseRole(role), nil
}
