package use_case

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	"go.uber.org/zap"

	"github.com/trunov/mediafinalizer/internal/auth"
	"github.com/trunov/mediafinalizer/internal/entities"
	"github.com/trunov/mediafinalizer/internal/metrics"
	"github.com/trunov/mediafinalizer/internal/objectstore"
	"github.com/trunov/mediafinalizer/internal/queue"
	"github.com/trunov/mediafinalizer/internal/transport/handler"
)

const (
	StepAuthorize      = "authorize"
	StepValidate       = "validate"
	StepLoadAsset      = "load_asset"
	StepVerifyObject   = "verify_object"
	StepMarkUploaded   = "mark_uploaded"
	StepRegisterJob    = "register_job"
	StepDispatch       = "dispatch"
	StepRecordDispatch = "record_dispatch"
	StepMarkReady      = "mark_ready"
)

// Bounds the writes that follow an acknowledged dispatch. They run detached
// from the request so a disconnecting caller cannot cut them short.
const bookkeepingTimeout = 5 * time.Second

type Authorizer interface {
	Resolve(ctx context.Context, bearer, orgID string) (entities.Caller, error)
}

type Storage interface {
	GetMediaAsset(ctx context.Context, orgID, assetID string) (entities.MediaAsset, error)
	MarkUploaded(ctx context.Context, orgID, assetID, storagePath string) error
	MarkReady(ctx context.Context, orgID, assetID string) error
}

type ObjectVerifier interface {
	Verify(ctx context.Context, bucket, key string) (objectstore.ObjectInfo, error)
}

type JobRegistry interface {
	GetOrCreate(ctx context.Context, assetID, orgID string, jobType entities.JobType) (entities.Job, bool, error)
	RecordDispatch(ctx context.Context, jobID, messageID string) error
}

type useCase struct {
	auth       Authorizer
	storage    Storage
	verifier   ObjectVerifier
	jobs       JobRegistry
	dispatcher queue.Dispatcher

	bucket  string
	jobType entities.JobType

	logger  *zap.Logger
	metrics *metrics.Metrics
}

func New(
	authorizer Authorizer,
	storage Storage,
	verifier ObjectVerifier,
	jobs JobRegistry,
	dispatcher queue.Dispatcher,
	bucket string,
	jobType entities.JobType,
	logger *zap.Logger,
	m *metrics.Metrics,
) *useCase {
	return &useCase{
		auth:       authorizer,
		storage:    storage,
		verifier:   verifier,
		jobs:       jobs,
		dispatcher: dispatcher,
		bucket:     bucket,
		jobType:    jobType,
		logger:     logger.Named("finalize"),
		metrics:    m,
	}
}

// FinalizeUpload runs the finalization pipeline for one uploaded object.
// Steps up to and including dispatch are fatal on failure; recording the
// dispatch and marking the asset ready are best-effort. A failed asset, or
// one whose job failed or was canceled, is never marked ready.
func (c *useCase) FinalizeUpload(ctx context.Context, params handler.FinalizeUploadParams) (res entities.FinalizeResult, err error) {
	log := c.logger.With(
		zap.String("request_id", params.RequestID),
		zap.String("media_id", params.MediaID),
		zap.String("org_id", params.OrgID),
	)
	started := time.Now()
	defer func() {
		result := "success"
		if err != nil {
			result = string(entities.KindOf(err))
		}
		c.metrics.Finalization(result)
		c.metrics.ObserveStep("total", started)
	}()

	// 1. authorize
	stepStart := time.Now()
	caller, err := c.auth.Resolve(ctx, params.BearerToken, params.OrgID)
	c.metrics.ObserveStep(StepAuthorize, stepStart)
	if err != nil {
		return res, c.fail(ctx, log, StepAuthorize, authKind(ctx, err), err)
	}
	if !caller.Role.AtLeast(entities.RoleMember) {
		return res, c.fail(ctx, log, StepAuthorize, entities.KindForbidden,
			fmt.Errorf("role %q is below %q", caller.Role, entities.RoleMember))
	}
	log = log.With(zap.String("user_id", caller.UserID))

	if err := validateStoragePath(params.OrgID, params.StoragePath); err != nil {
		return res, c.fail(ctx, log, StepValidate, entities.KindInvalidRequest, err)
	}

	// read-only pre-check, nothing is written before the object is verified
	stepStart = time.Now()
	asset, err := c.storage.GetMediaAsset(ctx, params.OrgID, params.MediaID)
	c.metrics.ObserveStep(StepLoadAsset, stepStart)
	switch {
	case errors.Is(err, entities.ErrAssetNotFound):
		return res, c.fail(ctx, log, StepLoadAsset, entities.KindAssetNotFound, err)
	case err != nil:
		return res, c.fail(ctx, log, StepLoadAsset, datastoreKind(ctx, err), err)
	case asset.StoragePath != "" && asset.StoragePath != params.StoragePath:
		return res, c.fail(ctx, log, StepLoadAsset, entities.KindStoragePathConflict,
			fmt.Errorf("%w: asset already stored at %s", entities.ErrStoragePathConflict, asset.StoragePath))
	}

	bucket := c.bucket
	if asset.Bucket != "" {
		bucket = asset.Bucket
	}

	// 2. verify object
	stepStart = time.Now()
	info, err := c.verifier.Verify(ctx, bucket, params.StoragePath)
	c.metrics.ObserveStep(StepVerifyObject, stepStart)
	if err != nil {
		return res, c.fail(ctx, log, StepVerifyObject, verifyKind(ctx, err), err)
	}
	log.Info("object verified", zap.String("bucket", bucket), zap.Int64("size", info.Size), zap.Int("attempts", info.Attempts))

	// 3. mark uploaded
	stepStart = time.Now()
	err = c.storage.MarkUploaded(ctx, params.OrgID, params.MediaID, params.StoragePath)
	c.metrics.ObserveStep(StepMarkUploaded, stepStart)
	switch {
	case errors.Is(err, entities.ErrStoragePathConflict):
		return res, c.fail(ctx, log, StepMarkUploaded, entities.KindStoragePathConflict, err)
	case errors.Is(err, entities.ErrAssetNotFound):
		return res, c.fail(ctx, log, StepMarkUploaded, entities.KindAssetNotFound, err)
	case err != nil:
		return res, c.fail(ctx, log, StepMarkUploaded, datastoreKind(ctx, err), err)
	}

	// 4. register job
	stepStart = time.Now()
	job, created, err := c.jobs.GetOrCreate(ctx, params.MediaID, params.OrgID, c.jobType)
	c.metrics.ObserveStep(StepRegisterJob, stepStart)
	if err != nil {
		return res, c.fail(ctx, log, StepRegisterJob, datastoreKind(ctx, err), err)
	}
	log = log.With(zap.String("job_id", job.ID))
	log.Info("job registered", zap.Bool("created", created), zap.String("state", string(job.State)))

	res = entities.FinalizeResult{MediaID: params.MediaID, JobID: job.ID}

	bctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), bookkeepingTimeout)
	defer cancel()

	// 5. dispatch
	if job.Dispatched() {
		res.MessageID = job.DispatchMessageID
		log.Info("job already dispatched, skipping send", zap.String("message_id", res.MessageID))
	} else {
		stepStart = time.Now()
		messageID, err := c.dispatcher.Dispatch(ctx, entities.NewDispatchMessage(job))
		c.metrics.ObserveStep(StepDispatch, stepStart)
		if err != nil {
			return entities.FinalizeResult{}, c.fail(ctx, log, StepDispatch, dispatchKind(ctx, err), err)
		}
		res.MessageID = messageID
		log.Info("job dispatched", zap.String("message_id", messageID))

		if err := c.jobs.RecordDispatch(bctx, job.ID, messageID); err != nil {
			log.Warn("could not record dispatch", zap.String("step", StepRecordDispatch), zap.Error(err))
		}
	}

	// 6. mark ready
	if job.Abandoned() {
		log.Warn("job ended without output, asset status left as is", zap.String("state", string(job.State)))
	} else {
		stepStart = time.Now()
		err = c.storage.MarkReady(bctx, params.OrgID, params.MediaID)
		c.metrics.ObserveStep(StepMarkReady, stepStart)
		if err != nil {
			log.Warn("could not mark asset ready, job was dispatched", zap.String("step", StepMarkReady), zap.Error(err))
		}
	}

	log.Info("upload finalized", zap.Duration("elapsed", time.Since(started)))
	return res, nil
}

func (c *useCase) fail(ctx context.Context, log *zap.Logger, step string, kind entities.ErrorKind, err error) error {
	fe := &entities.FinalizeError{Kind: kind, Step: step, Err: err}

	fields := []zap.Field{zap.String("step", step), zap.String("kind", string(kind)), zap.Error(err)}
	if kind.ServerSide() {
		log.Error("finalize failed", fields...)
		captureException(ctx, fe, step)
	} else {
		log.Info("finalize rejected", fields...)
	}
	return fe
}

func captureException(ctx context.Context, err error, step string) {
	hub := sentry.GetHubFromContext(ctx)
	if hub == nil {
		hub = sentry.CurrentHub()
	}
	hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("step", step)
		hub.CaptureException(err)
	})
}

// validateStoragePath keeps callers inside their own org's key space.
func validateStoragePath(orgID, path string) error {
	if strings.HasPrefix(path, "/") {
		return fmt.Errorf("storage_path must be relative: %q", path)
	}
	for _, seg := range strings.Split(path, "/") {
		if seg == ".." || seg == "." {
			return fmt.Errorf("storage_path must not contain %q segments", seg)
		}
	}
	prefix := "orgs/" + orgID + "/"
	if !strings.HasPrefix(path, prefix) || len(path) == len(prefix) {
		return fmt.Errorf("storage_path must be under %s", prefix)
	}
	return nil
}

func deadline(ctx context.Context, err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded)
}

func authKind(ctx context.Context, err error) entities.ErrorKind {
	switch {
	case errors.Is(err, auth.ErrUnauthenticated):
		return entities.KindUnauthenticated
	case errors.Is(err, auth.ErrForbidden):
		return entities.KindForbidden
	case deadline(ctx, err):
		return entities.KindTimeout
	default:
		return entities.KindDatastore
	}
}

func datastoreKind(ctx context.Context, err error) entities.ErrorKind {
	if deadline(ctx, err) {
		return entities.KindTimeout
	}
	return entities.KindDatastore
}

func verifyKind(ctx context.Context, err error) entities.ErrorKind {
	switch {
	case errors.Is(err, objectstore.ErrNotConfigured):
		return entities.KindStorageNotConfigured
	case deadline(ctx, err):
		return entities.KindTimeout
	case errors.Is(err, objectstore.ErrObjectNotFound):
		return entities.KindObjectNotFound
	case errors.Is(err, objectstore.ErrProbeFailed):
		return entities.KindObjectProbeFailed
	default:
		return entities.KindInternal
	}
}

func dispatchKind(ctx context.Context, err error) entities.ErrorKind {
	switch {
	case errors.Is(err, queue.ErrNotConfigured):
		return entities.KindQueueNotConfigured
	case deadline(ctx, err):
		return entities.KindTimeout
	case errors.Is(err, queue.ErrDispatchFailed):
		return entities.KindDispatchFailed
	default:
		return entities.KindInternal
	}
}
