package handler

import "github.com/trunov/mediafinalizer/internal/entities"

type FinalizeUploadParams struct {
	MediaID     string `json:"media_id" validate:"required,max=128"`
	OrgID       string `json:"org_id" validate:"required,max=128"`
	StoragePath string `json:"storage_path" validate:"required,max=1024"`

	// Set by the handler, never read from the body
	BearerToken string `json:"-"`
	RequestID   string `json:"-"`
}

type FinalizeUploadResponse struct {
	Success bool `json:"success"`
	entities.FinalizeResult
}

type ErrorBody struct {
	Kind    entities.ErrorKind `json:"kind"`
	Message string             `json:"message"`
	Step    string             `json:"step,omitempty"`
	Fields  map[string]string  `json:"fields,omitempty"`
}

type ErrorResponse struct {
	Success   bool      `json:"success"`
	Error     ErrorBody `json:"error"`
	RequestID string    `json:"request_id,omitempty"`
}
