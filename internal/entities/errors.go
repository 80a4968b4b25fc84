package entities

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind is the stable, machine readable identifier returned to clients.
type ErrorKind string

const (
	KindInvalidRequest       ErrorKind = "invalid_request"
	KindUnauthenticated      ErrorKind = "unauthenticated"
	KindForbidden            ErrorKind = "forbidden"
	KindAssetNotFound        ErrorKind = "asset_not_found"
	KindStoragePathConflict  ErrorKind = "storage_path_conflict"
	KindStorageNotConfigured ErrorKind = "storage_not_configured"
	KindObjectNotFound       ErrorKind = "object_not_found"
	KindObjectProbeFailed    ErrorKind = "object_probe_failed"
	KindDatastore            ErrorKind = "datastore_error"
	KindQueueNotConfigured   ErrorKind = "queue_not_configured"
	KindDispatchFailed       ErrorKind = "dispatch_failed"
	KindTimeout              ErrorKind = "timeout"
	KindInternal             ErrorKind = "internal"
)

var kindStatus = map[ErrorKind]int{
	KindInvalidRequest:       http.StatusBadRequest,
	KindUnauthenticated:      http.StatusUnauthorized,
	KindForbidden:            http.StatusForbidden,
	KindAssetNotFound:        http.StatusNotFound,
	KindStoragePathConflict:  http.StatusConflict,
	KindStorageNotConfigured: http.StatusInternalServerError,
	KindObjectNotFound:       http.StatusNotFound,
	KindObjectProbeFailed:    http.StatusBadGateway,
	KindDatastore:            http.StatusInternalServerError,
	KindQueueNotConfigured:   http.StatusInternalServerError,
	KindDispatchFailed:       http.StatusBadGateway,
	KindTimeout:              http.StatusGatewayTimeout,
	KindInternal:             http.StatusInternalServerError,
}

func (k ErrorKind) HTTPStatus() int {
	if s, ok := kindStatus[k]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// ServerSide reports whether the failure is ours rather than the caller's.
func (k ErrorKind) ServerSide() bool {
	return k.HTTPStatus() >= http.StatusInternalServerError
}

// FinalizeError tags a pipeline failure with its kind and the step that produced it.
type FinalizeError struct {
	Kind ErrorKind
	Step string
	Err  error
}

func (e *FinalizeError) Error() string {
	if e.Step == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Step, e.Kind, e.Err)
}

func (e *FinalizeError) Unwrap() error { return e.Err }

// KindOf extracts the kind from err, defaulting to KindInternal.
func KindOf(err error) ErrorKind {
	var fe *FinalizeError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindInternal
}

// Datastore sentinels, shared by the repository and the use case.
var (
	ErrAssetNotFound = errors.New("media asset not found")
	ErrDuplicateJob  = errors.New("job already exists")
	// ErrStoragePathConflict means the asset already points at a different object.
	ErrStoragePathConflict = errors.New("storage path conflict")
	// ErrAssetFailed means the asset was marked failed and is never revived.
	ErrAssetFailed = errors.New("media asset failed")
)
