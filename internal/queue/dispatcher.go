package queue

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/trunov/mediafinalizer/internal/config"
	"github.com/trunov/mediafinalizer/internal/entities"
	"github.com/trunov/mediafinalizer/internal/metrics"
	"github.com/trunov/mediafinalizer/internal/sigv4"
)

var (
	// ErrNotConfigured means the queue endpoint or its credentials are missing.
	ErrNotConfigured = errors.New("queue not configured")
	// ErrDispatchFailed means the queue rejected or never answered the send.
	ErrDispatchFailed = errors.New("queue dispatch failed")
)

// Dispatcher hands one message to the queue and returns its delivery id.
// Implementations never retry; an empty id with a nil error is still a
// successful send.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg entities.DispatchMessage) (string, error)
}

// New builds the dispatcher selected by cfg.Backend. rc is only used by the
// redis backend and may be nil otherwise.
func New(cfg *config.QueueConfig, creds sigv4.CredentialsProvider, rc ClientSource, logger *zap.Logger, m *metrics.Metrics) (Dispatcher, error) {
	switch cfg.Backend {
	case config.QueueBackendSQS, "":
		return NewSQSDispatcher(cfg, creds, logger, m), nil
	case config.QueueBackendRedis:
		if rc == nil {
			return nil, fmt.Errorf("%w: redis backend without redis client", ErrNotConfigured)
		}
		return NewStreamDispatcher(rc, cfg.Stream, cfg.MaxLen, logger, m), nil
	default:
		return nil, fmt.Errorf("unsupported queue backend %q", cfg.Backend)
	}
}
