package queue

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/trunov/mediafinalizer/internal/config"
	"github.com/trunov/mediafinalizer/internal/redisholder"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redisholder.Holder) {
	t.Helper()
	mr := miniredis.RunT(t)
	h := redisholder.NewHolder(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = h.Close() })
	return mr, h
}

func TestStreamDispatcherAppendsPayload(t *testing.T) {
	_, rc := newRedis(t)
	d := NewStreamDispatcher(rc, "media:jobs", 100, zap.NewNop(), nil)

	id, err := d.Dispatch(context.Background(), msg)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	entries, err := rc.Get().XRange(context.Background(), "media:jobs", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, id, entries[0].ID)
	assert.JSONEq(t, `{"job_id":"J1","media_asset_id":"A1","org_id":"O1","type":"transcode"}`, entries[0].Values["payload"].(string))
	assert.Equal(t, "0", entries[0].Values["attempt"])
}

func TestStreamDispatcherFailure(t *testing.T) {
	mr, rc := newRedis(t)
	mr.Close()

	d := NewStreamDispatcher(rc, "media:jobs", 100, zap.NewNop(), nil)
	_, err := d.Dispatch(context.Background(), msg)
	assert.ErrorIs(t, err, ErrDispatchFailed)
}

func TestNewSelectsBackend(t *testing.T) {
	_, rc := newRedis(t)

	d, err := New(&config.QueueConfig{Backend: config.QueueBackendSQS}, creds, nil, zap.NewNop(), nil)
	require.NoError(t, err)
	assert.IsType(t, &SQSDispatcher{}, d)

	d, err = New(&config.QueueConfig{Backend: config.QueueBackendRedis, Stream: "s"}, creds, rc, zap.NewNop(), nil)
	require.NoError(t, err)
	assert.IsType(t, &StreamDispatcher{}, d)

	_, err = New(&config.QueueConfig{Backend: config.QueueBackendRedis}, creds, nil, zap.NewNop(), nil)
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = New(&config.QueueConfig{Backend: "kafka"}, creds, nil, zap.NewNop(), nil)
	assert.Error(t, err)
}
