package storage

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trunov/mediafinalizer/cmd/migrate"
	"github.com/trunov/mediafinalizer/internal/entities"
)

// Runs against a real Postgres when TEST_DATABASE_URL is set.
func newTestStorage(t *testing.T) *dbStorage {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	require.NoError(t, migrate.Migrate(ctx, dsn, migrate.Migrations))

	s, err := New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	require.NoError(t, s.Ping(ctx))
	return s
}

func seedAsset(t *testing.T, s *dbStorage, orgID, path string) string {
	t.Helper()
	id := uuid.NewString()
	_, err := s.dbpool.Exec(context.Background(),
		`INSERT INTO media_assets (id, org_id, bucket, storage_path) VALUES ($1, $2, 'media', $3)`,
		id, orgID, path,
	)
	require.NoError(t, err)
	return id
}

func TestMediaAssetLifecycle(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	org := uuid.NewString()
	id := seedAsset(t, s, org, "")

	a, err := s.GetMediaAsset(ctx, org, id)
	require.NoError(t, err)
	assert.Equal(t, entities.MediaStatusUploading, a.Status)
	assert.Equal(t, "media", a.Bucket)

	_, err = s.GetMediaAsset(ctx, uuid.NewString(), id)
	assert.ErrorIs(t, err, entities.ErrAssetNotFound)

	path := "orgs/" + org + "/media/a1.mp4"
	require.NoError(t, s.MarkUploaded(ctx, org, id, path))
	a, err = s.GetMediaAsset(ctx, org, id)
	require.NoError(t, err)
	assert.Equal(t, entities.MediaStatusUploaded, a.Status)
	assert.Equal(t, path, a.StoragePath)

	assert.ErrorIs(t, s.MarkUploaded(ctx, org, id, "orgs/"+org+"/other.mp4"), entities.ErrStoragePathConflict)
	assert.ErrorIs(t, s.MarkUploaded(ctx, org, uuid.NewString(), path), entities.ErrAssetNotFound)

	require.NoError(t, s.MarkReady(ctx, org, id))
	// same path again never downgrades a ready asset
	require.NoError(t, s.MarkUploaded(ctx, org, id, path))
	a, err = s.GetMediaAsset(ctx, org, id)
	require.NoError(t, err)
	assert.Equal(t, entities.MediaStatusReady, a.Status)

	assert.ErrorIs(t, s.MarkReady(ctx, org, uuid.NewString()), entities.ErrAssetNotFound)
}

func TestFailedAssetIsNotRevived(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	org := uuid.NewString()
	path := "orgs/" + org + "/media/a1.mp4"
	id := seedAsset(t, s, org, path)

	_, err := s.dbpool.Exec(ctx, `UPDATE media_assets SET status = 'failed' WHERE id = $1`, id)
	require.NoError(t, err)

	require.NoError(t, s.MarkUploaded(ctx, org, id, path))
	assert.ErrorIs(t, s.MarkReady(ctx, org, id), entities.ErrAssetFailed)

	a, err := s.GetMediaAsset(ctx, org, id)
	require.NoError(t, err)
	assert.Equal(t, entities.MediaStatusFailed, a.Status)
}

func TestJobUniquenessAndDispatch(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	org := uuid.NewString()
	asset := seedAsset(t, s, org, "")

	none, err := s.FindJob(ctx, asset, entities.JobTypeTranscode)
	require.NoError(t, err)
	assert.Nil(t, none)

	job := entities.Job{
		ID:           uuid.NewString(),
		MediaAssetID: asset,
		OrgID:        org,
		Type:         entities.JobTypeTranscode,
		State:        entities.JobStateQueued,
		CreatedAt:    time.Now().UTC(),
	}
	inserted, err := s.InsertJob(ctx, job)
	require.NoError(t, err)
	assert.Equal(t, job.ID, inserted.ID)
	assert.Nil(t, inserted.DispatchedAt)

	dup := job
	dup.ID = uuid.NewString()
	_, err = s.InsertJob(ctx, dup)
	assert.ErrorIs(t, err, entities.ErrDuplicateJob)

	at := time.Now().UTC().Truncate(time.Microsecond)
	require.NoError(t, s.MarkDispatched(ctx, job.ID, "M1", at))
	require.NoError(t, s.MarkDispatched(ctx, job.ID, "M2", at.Add(time.Minute)))

	found, err := s.FindJob(ctx, asset, entities.JobTypeTranscode)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "M1", found.DispatchMessageID)
	require.NotNil(t, found.DispatchedAt)
	assert.True(t, at.Equal(*found.DispatchedAt))
	assert.True(t, found.Dispatched())
}

func TestMembershipRole(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	org, user := uuid.NewString(), uuid.NewString()

	role, err := s.MembershipRole(ctx, org, user)
	require.NoError(t, err)
	assert.Empty(t, role)

	_, err = s.dbpool.Exec(ctx, `INSERT INTO org_members (org_id, user_id, role) VALUES ($1, $2, 'Coach')`, org, user)
	require.NoError(t, err)

	role, err = s.MembershipRole(ctx, org, user)
	require.NoError(t, err)
	assert.Equal(t, entities.RoleCoach, role)
}
