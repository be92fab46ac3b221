package model

import "time"

// SourceKind identifies where a job's audio comes from.
// Exactly one source is present on any job.
type SourceKind string

const (
	SourceUploadedFile SourceKind = "file"
	SourceVideoURL     SourceKind = "video"
	SourceYouTubeURL   SourceKind = "youtube"
)

// Job represents one tagged-MP3 production request and its persisted record.
//
// A job is in exactly one of three logical states: pending (both booleans
// false), completed, or failed. Transitions are one-directional and happen
// only inside the pipeline run that owns the job id.
type Job struct {
	ID           string     `json:"id"`
	OwnerID      string     `json:"ownerId"`
	Title        string     `json:"title"`
	Artist       string     `json:"artist"`
	Album        string     `json:"album,omitempty"`
	Grouping     string     `json:"grouping,omitempty"`
	SourceKind   SourceKind `json:"sourceKind"`
	SourceURL    string     `json:"sourceUrl,omitempty"` // empty for uploaded files
	ArtworkInput string     `json:"artworkInput,omitempty"`
	FilenameURL  *string    `json:"filenameUrl,omitempty"`
	DownloadURL  *string    `json:"downloadUrl,omitempty"`
	ArtworkURL   *string    `json:"artworkUrl,omitempty"`
	Completed    bool       `json:"completed"`
	Failed       bool       `json:"failed"`
	CreatedAt    time.Time  `json:"createdAt"`
	DeletedAt    *time.Time `json:"deletedAt,omitempty"`
}

// Terminal reports whether the job reached completed or failed.
func (j *Job) Terminal() bool {
	return j.Completed || j.Failed
}

// CreateJobRequest carries the fields of a job-creation call. The handler
// parses the multipart form into this struct; the service enforces the
// source-combination rules that validator tags cannot express.
type CreateJobRequest struct {
	OwnerID    string `validate:"required"`
	Title      string `validate:"required,max=200"`
	Artist     string `validate:"required,max=200"`
	Album      string `validate:"omitempty,max=200"`
	Grouping   string `validate:"omitempty,max=200"`
	File       []byte
	Filename   string
	VideoURL   string `validate:"omitempty,url"`
	YouTubeURL string `validate:"omitempty,url"`
	ArtworkURL string
}

// JobListResponse wraps an owner's jobs, newest first.
type JobListResponse struct {
	Jobs []*Job `json:"jobs"`
}
