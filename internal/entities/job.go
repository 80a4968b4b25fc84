package entities

import "time"

type JobType string

const JobTypeTranscode JobType = "transcode"

type JobState string

const (
	JobStateQueued    JobState = "queued"
	JobStateRunning   JobState = "running"
	JobStateSucceeded JobState = "succeeded"
	JobStateFailed    JobState = "failed"
	JobStateCanceled  JobState = "canceled"
)

// Job is a processing job. At most one exists per (MediaAssetID, Type).
type Job struct {
	ID           string    `json:"id"`
	MediaAssetID string    `json:"media_asset_id"`
	OrgID        string    `json:"org_id"`
	Type         JobType   `json:"type"`
	State        JobState  `json:"state"`
	CreatedAt    time.Time `json:"created_at"`

	// Set once the queue acknowledged a dispatch of this job.
	DispatchedAt      *time.Time `json:"dispatched_at,omitempty"`
	DispatchMessageID string     `json:"dispatch_message_id,omitempty"`
}

// Dispatched reports whether a worker has already been handed this job,
// either through a recorded queue acknowledgement or because it has moved
// past the queued state.
func (j Job) Dispatched() bool {
	return j.DispatchedAt != nil || j.State != JobStateQueued
}

// Abandoned reports whether the job ended without producing output.
func (j Job) Abandoned() bool {
	return j.State == JobStateFailed || j.State == JobStateCanceled
}

// DispatchMessage is the whole contract with the transcoding worker.
// It carries no dedup token; uniqueness is enforced by the job registry.
type DispatchMessage struct {
	JobID        string  `json:"job_id"`
	MediaAssetID string  `json:"media_asset_id"`
	OrgID        string  `json:"org_id"`
	Type         JobType `json:"type"`
}

func NewDispatchMessage(job Job) DispatchMessage {
	return DispatchMessage{
		JobID:        job.ID,
		MediaAssetID: job.MediaAssetID,
		OrgID:        job.OrgID,
		Type:         job.Type,
	}
}
