package entities

import "time"

type MediaStatus string

const (
	MediaStatusUploading MediaStatus = "uploading"
	MediaStatusUploaded  MediaStatus = "uploaded"
	MediaStatusReady     MediaStatus = "ready"
	MediaStatusFailed    MediaStatus = "failed"
)

// MediaAsset mirrors a media_assets row. Status is only ever changed by the
// finalization use case.
type MediaAsset struct {
	ID          string      `json:"id"`
	OrgID       string      `json:"org_id"`
	Bucket      string      `json:"bucket,omitempty"`
	StoragePath string      `json:"storage_path,omitempty"`
	Status      MediaStatus `json:"status"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// FinalizeResult is returned to the client once the job has been handed to the queue.
type FinalizeResult struct {
	MediaID   string `json:"media_id"`
	JobID     string `json:"job_id"`
	MessageID string `json:"message_id"`
}
