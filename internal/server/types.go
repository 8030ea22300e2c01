// Package server provides the HTTP surface of the segmenter.
// It includes handlers, middleware, routes, and DTOs separated from domain types.
package server

import (
	"time"

	"github.com/maauso/acs-segmenter/internal/annotation"
)

// CreateJobRequest is the HTTP request body for creating a segmentation job.
type CreateJobRequest struct {
	// Documents are the source documents; only AudioDocuments are segmented.
	Documents []annotation.Document `json:"documents" validate:"required,min=1,dive"`
	// PushToS3 indicates whether to upload the result container to S3.
	PushToS3 bool `json:"push_to_s3"`
}

// CreateJobResponse is the HTTP response after creating a job.
type CreateJobResponse struct {
	// ID is the unique identifier for the created job.
	ID string `json:"id"`
	// Status is the initial job status.
	Status string `json:"status"`
	// Files is the number of audio files selected for segmentation.
	Files int `json:"files"`
}

// FileResponse reports the outcome of one segmented file.
type FileResponse struct {
	DocumentID  string  `json:"document_id"`
	Location    string  `json:"location"`
	Status      string  `json:"status"`
	Error       string  `json:"error,omitempty"`
	SpeechRatio float64 `json:"speech_ratio"`
	TimeFrames  int     `json:"time_frames"`
}

// JobResponse is the HTTP response for getting job details.
type JobResponse struct {
	// ID is the unique identifier for the job.
	ID string `json:"id"`
	// Status is the current job status.
	Status string `json:"status"`
	// Progress is the percentage of files finished (0-100).
	Progress int `json:"progress"`
	// Error contains any error message if the job failed.
	Error string `json:"error,omitempty"`
	// Files lists per-file outcomes.
	Files []FileResponse `json:"files"`
	// ResultURL is the S3 URL of the result container (if push_to_s3=true and completed).
	ResultURL string `json:"result_url,omitempty"`
	// Result is the annotated container once the job completed.
	Result *annotation.Container `json:"result,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// JobSummary is one entry of the job listing.
type JobSummary struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	Progress  int       `json:"progress"`
	Files     int       `json:"files"`
	CreatedAt time.Time `json:"created_at"`
}

// ListJobsResponse is the HTTP response for listing jobs.
type ListJobsResponse struct {
	Jobs []JobSummary `json:"jobs"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the human-readable error message.
	Error string `json:"error"`
	// Code is the error code for programmatic handling.
	Code string `json:"code"`
}

// HealthResponse is the HTTP response for the health check endpoint.
type HealthResponse struct {
	// Status is the health status of the service.
	Status string `json:"status"`
}
