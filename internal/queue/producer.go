package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/trunov/mediafinalizer/internal/entities"
	"github.com/trunov/mediafinalizer/internal/metrics"
)

const streamBackend = "redis"

// ClientSource yields the live Redis client, resolved per dispatch.
type ClientSource interface {
	Get() redis.UniversalClient
}

// StreamDispatcher appends jobs to a Redis Stream. The entry id is the
// delivery id.
type StreamDispatcher struct {
	r      ClientSource
	stream string
	maxLen int64

	logger  *zap.Logger
	metrics *metrics.Metrics
}

func NewStreamDispatcher(r ClientSource, stream string, maxLen int64, logger *zap.Logger, m *metrics.Metrics) *StreamDispatcher {
	return &StreamDispatcher{r: r, stream: stream, maxLen: maxLen, logger: logger.Named("queue"), metrics: m}
}

// Encodes the message as JSON and appends it to the stream, the same
// payload/attempt layout consumers already read.
func (p *StreamDispatcher) Dispatch(ctx context.Context, msg entities.DispatchMessage) (string, error) {
	raw, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("encode dispatch message: %w", err)
	}

	id, err := p.r.Get().XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: p.maxLen,
		Values: map[string]any{
			"payload": string(raw),
			"attempt": 0,
		},
	}).Result()
	if err != nil {
		p.metrics.Dispatch(streamBackend, "rejected")
		p.logger.Error("stream append failed", zap.String("stream", p.stream), zap.String("job_id", msg.JobID), zap.Error(err))
		return "", fmt.Errorf("%w: %v", ErrDispatchFailed, err)
	}

	p.metrics.Dispatch(streamBackend, "sent")
	p.logger.Info("stream accepted message", zap.String("stream", p.stream), zap.String("job_id", msg.JobID), zap.String("message_id", id))
	return id, nil
}
