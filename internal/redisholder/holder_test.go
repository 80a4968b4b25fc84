package redisholder

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/trunov/mediafinalizer/internal/cache"
	"github.com/trunov/mediafinalizer/internal/config"
	"github.com/trunov/mediafinalizer/internal/entities"
	"github.com/trunov/mediafinalizer/internal/queue"
)

func nodeFor(t *testing.T, mr *miniredis.Miniredis) config.RedisNode {
	t.Helper()
	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)
	return config.RedisNode{Host: mr.Host(), Port: port}
}

func TestBuildConnects(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := config.Default().Redis
	cfg.Nodes = []config.RedisNode{nodeFor(t, mr)}

	h, err := Build(ctx, &cfg, zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, h.Get().Set(ctx, "k", "v", 0).Err())
	mr.CheckGet(t, "k", "v")
}

func TestBuildWithoutNodes(t *testing.T) {
	cfg := config.Default().Redis
	_, err := Build(context.Background(), &cfg, zap.NewNop())
	assert.Error(t, err)
}

func TestHolderSwap(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := config.Default().Redis
	cfg.Nodes = []config.RedisNode{nodeFor(t, mr)}

	first, err := newClient(context.Background(), &cfg)
	require.NoError(t, err)
	second, err := newClient(context.Background(), &cfg)
	require.NoError(t, err)

	h := NewHolder(first)
	assert.Same(t, first, h.swap(second))
	assert.Same(t, second, h.Get())
	assert.NoError(t, h.Close())
	assert.NoError(t, first.Close())
}

func TestConsumersFollowReconnect(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()
	cfg := config.Default().Redis
	cfg.Nodes = []config.RedisNode{nodeFor(t, mr)}

	first, err := newClient(ctx, &cfg)
	require.NoError(t, err)
	h := NewHolder(first)
	defer h.Close()

	roles := cache.NewCache("members", h)
	stream := queue.NewStreamDispatcher(h, "media:jobs", 100, zap.NewNop(), nil)

	// What the health loop does after a failed ping.
	second, err := newClient(ctx, &cfg)
	require.NoError(t, err)
	require.NoError(t, h.swap(second).Close())

	require.NoError(t, roles.Store(ctx, "O1:U1", time.Minute, "admin"))
	got, err := roles.Get(ctx, "O1:U1")
	require.NoError(t, err)
	assert.Equal(t, "admin", got)

	id, err := stream.Dispatch(ctx, entities.DispatchMessage{JobID: "J1", MediaAssetID: "A1", OrgID: "O1", Type: entities.JobTypeTranscode})
	require.NoError(t, err)
	assert.NotEmpty(t, id)
}
