package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	conf "github.com/trunov/mediafinalizer/internal/config"
	"github.com/trunov/mediafinalizer/internal/metrics"
	"github.com/trunov/mediafinalizer/internal/sigv4"
)

var (
	// ErrNotConfigured means credentials or endpoint are missing. Never retried.
	ErrNotConfigured = errors.New("object store not configured")
	// ErrObjectNotFound means the last probe still answered 404.
	ErrObjectNotFound = errors.New("object not found")
	// ErrProbeFailed means the last probe failed for any other reason.
	ErrProbeFailed = errors.New("object probe failed")
)

const service = "s3"

// ObjectInfo is what a successful metadata probe reports.
type ObjectInfo struct {
	Bucket      string
	Key         string
	Size        int64
	ContentType string
	ETag        string
	Attempts    int
}

// Verifier proves an object is readable, riding out replication lag with
// exponential backoff.
type Verifier struct {
	endpoint    *url.URL
	virtualHost bool

	MaxAttempts int
	BaseDelay   time.Duration

	creds  sigv4.CredentialsProvider
	signer *sigv4.Signer
	client *http.Client

	logger  *zap.Logger
	metrics *metrics.Metrics

	sleep func(ctx context.Context, d time.Duration) error
}

func NewVerifier(cfg *conf.ObjectStoreConfig, creds sigv4.CredentialsProvider, logger *zap.Logger, m *metrics.Metrics) *Verifier {
	v := &Verifier{
		virtualHost: cfg.VirtualHost,
		MaxAttempts: cfg.MaxAttempts,
		BaseDelay:   cfg.BackoffBase * time.Millisecond,
		creds:       creds,
		signer:      sigv4.New(service, cfg.Region),
		client:      &http.Client{Timeout: cfg.RequestTimeout * time.Second},
		logger:      logger.Named("objectstore"),
		metrics:     m,
		sleep:       sleepCtx,
	}
	if v.MaxAttempts < 1 {
		v.MaxAttempts = 1
	}
	if ep := strings.TrimSpace(cfg.Endpoint); ep != "" {
		if u, err := url.Parse(strings.TrimRight(ep, "/")); err == nil && u.Host != "" {
			v.endpoint = u
		} else {
			v.logger.Error("invalid object store endpoint", zap.String("endpoint", ep))
		}
	}
	return v
}

// Verify issues signed HEAD probes for bucket/key until one succeeds or the
// attempt ceiling is reached. Configuration problems fail before any request.
func (v *Verifier) Verify(ctx context.Context, bucket, key string) (ObjectInfo, error) {
	log := v.logger.With(zap.String("bucket", bucket), zap.String("key", key))

	if v.endpoint == nil {
		log.Error("object store endpoint missing")
		return ObjectInfo{}, fmt.Errorf("%w: endpoint missing", ErrNotConfigured)
	}
	if bucket == "" {
		log.Error("object store bucket missing")
		return ObjectInfo{}, fmt.Errorf("%w: bucket missing", ErrNotConfigured)
	}
	creds, err := v.creds.Retrieve(ctx)
	if err != nil || creds.Empty() {
		log.Error("object store credentials missing", zap.Error(err))
		return ObjectInfo{}, fmt.Errorf("%w: credentials missing", ErrNotConfigured)
	}

	var lastErr error
	for attempt := 1; attempt <= v.MaxAttempts; attempt++ {
		var delay time.Duration
		if attempt > 1 {
			delay = v.backoffDelay(attempt - 1)
			if err := v.sleep(ctx, delay); err != nil {
				log.Warn("object probe interrupted", zap.Int("attempt", attempt), zap.Error(err))
				return ObjectInfo{}, fmt.Errorf("object probe interrupted before attempt %d: %w", attempt, err)
			}
		}

		info, status, err := v.probe(ctx, bucket, key, creds)
		outcome := classify(status, err)
		v.metrics.ProbeAttempt(outcome)

		fields := []zap.Field{
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", v.MaxAttempts),
			zap.Duration("delay", delay),
			zap.Int("status", status),
			zap.String("outcome", outcome),
		}

		if outcome == "found" {
			info.Attempts = attempt
			log.Info("object probe attempt", append(fields, zap.Int64("size", info.Size))...)
			return info, nil
		}

		log.Warn("object probe attempt", append(fields, zap.Error(err))...)

		if ctxErr := ctx.Err(); ctxErr != nil {
			return ObjectInfo{}, fmt.Errorf("object probe aborted after attempt %d: %w", attempt, ctxErr)
		}

		if outcome == "not_found" {
			lastErr = fmt.Errorf("%w: %s/%s after %d attempts", ErrObjectNotFound, bucket, key, attempt)
		} else {
			lastErr = fmt.Errorf("%w: %s/%s after %d attempts: %v", ErrProbeFailed, bucket, key, attempt, err)
		}
	}

	log.Error("object probe exhausted", zap.Int("attempts", v.MaxAttempts), zap.Error(lastErr))
	return ObjectInfo{}, lastErr
}

// backoffDelay is the wait before the n-th retry: base * 2^(n-1).
func (v *Verifier) backoffDelay(retry int) time.Duration {
	return v.BaseDelay << (retry - 1)
}

func (v *Verifier) probe(ctx context.Context, bucket, key string, creds sigv4.Credentials) (ObjectInfo, int, error) {
	host, path := v.endpoint.Host, sigv4.EscapePath(bucket+"/"+key)
	if v.virtualHost {
		host, path = bucket+"."+v.endpoint.Host, sigv4.EscapePath(key)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, v.endpoint.Scheme+"://"+host+path, nil)
	if err != nil {
		return ObjectInfo{}, 0, fmt.Errorf("build probe request: %w", err)
	}

	headers, err := v.signer.Sign(sigv4.Request{
		Method:      http.MethodHead,
		Host:        host,
		Path:        path,
		PayloadHash: sigv4.UnsignedPayload,
	}, creds)
	if err != nil {
		return ObjectInfo{}, 0, err
	}
	for name, values := range headers {
		req.Header[name] = values
	}

	resp, err := v.client.Do(req)
	if err != nil {
		return ObjectInfo{}, 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return ObjectInfo{}, resp.StatusCode, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	return ObjectInfo{
		Bucket:      bucket,
		Key:         key,
		Size:        resp.ContentLength,
		ContentType: resp.Header.Get("Content-Type"),
		ETag:        strings.Trim(resp.Header.Get("ETag"), `"`),
	}, resp.StatusCode, nil
}

func classify(status int, err error) string {
	switch {
	case err == nil:
		return "found"
	case status == http.StatusNotFound:
		return "not_found"
	case status == 0:
		return "transport_error"
	default:
		return "http_error"
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
