// Package job provides the Job aggregate for managing segmentation jobs.
// It includes the Job entity with its state machine, per-file results,
// and repository interfaces for persistence.
package job

import (
	"errors"
	"sync"
	"time"

	"github.com/maauso/acs-segmenter/internal/annotation"
	"github.com/maauso/acs-segmenter/internal/job/id"
)

// Status represents the current state of a Job.
type Status string

const (
	// StatusInQueue indicates the job is waiting to be processed.
	StatusInQueue Status = "IN_QUEUE"
	// StatusRunning indicates the job's files are being segmented.
	StatusRunning Status = "RUNNING"
	// StatusCompleted indicates at least one file was segmented.
	StatusCompleted Status = "COMPLETED"
	// StatusFailed indicates every file failed or the job could not run.
	StatusFailed Status = "FAILED"
	// StatusCancelled indicates the job was manually cancelled.
	StatusCancelled Status = "CANCELLED"
	// StatusTimedOut indicates the job did not finish in time.
	StatusTimedOut Status = "TIMED_OUT"
)

// ErrInvalidTransition is returned when an invalid state transition is attempted.
var ErrInvalidTransition = errors.New("invalid state transition")

// validTransitions defines which state transitions are allowed.
var validTransitions = map[Status][]Status{
	StatusInQueue:   {StatusRunning, StatusCancelled, StatusTimedOut},
	StatusRunning:   {StatusCompleted, StatusFailed, StatusCancelled, StatusTimedOut},
	StatusCompleted: {},
	StatusFailed:    {},
	StatusCancelled: {},
	StatusTimedOut:  {},
}

// canTransition checks if a transition from one status to another is valid.
func canTransition(from, to Status) bool {
	allowed, ok := validTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// FileStatus represents the status of a single audio file within a job.
type FileStatus string

const (
	// FileStatusPending indicates the file is waiting to be processed.
	FileStatusPending FileStatus = "PENDING"
	// FileStatusProcessing indicates the file is being classified and segmented.
	FileStatusProcessing FileStatus = "PROCESSING"
	// FileStatusCompleted indicates the file's view was produced.
	FileStatusCompleted FileStatus = "COMPLETED"
	// FileStatusFailed indicates the file could not be segmented.
	FileStatusFailed FileStatus = "FAILED"
)

// File is one audio document of a job and its segmentation outcome.
type File struct {
	// Index is the position of the file in the job.
	Index int `json:"index"`
	// DocumentID is the id of the source AudioDocument.
	DocumentID string `json:"document_id"`
	// Location is the path of the audio file.
	Location string `json:"location"`
	// Status is the current processing status.
	Status FileStatus `json:"status"`
	// Error contains the failure reason when Status is FAILED.
	Error string `json:"error,omitempty"`
	// View holds the TimeFrame annotations when Status is COMPLETED and an
	// error view when it is FAILED.
	View *annotation.View `json:"view,omitempty"`
	// SpeechRatio is the fraction of frames labeled speech.
	SpeechRatio float64 `json:"speech_ratio"`
	// StartedAt is when file processing started.
	StartedAt time.Time `json:"started_at"`
	// CompletedAt is when file processing finished.
	CompletedAt time.Time `json:"completed_at"`
}

// Job represents a segmentation job aggregate.
type Job struct {
	mu sync.RWMutex

	// ID is the unique identifier for this job.
	ID string
	// Status is the current job state.
	Status Status
	// Documents are the documents submitted with the job, in order.
	Documents []annotation.Document
	// Files are the selected audio documents being segmented.
	Files []File
	// Progress is the percentage of completion (0-100).
	Progress int
	// Error contains any error message if the job failed.
	Error string
	// PushToS3 indicates whether to upload the result to S3.
	PushToS3 bool
	// ResultPath is the local path of the result container.
	ResultPath string
	// ResultURL is the S3 URL if PushToS3 was true.
	ResultURL string
	// TSVPath is the local path of the saved raw classifier output, if any.
	TSVPath string
	// CreatedAt is when the job was created.
	CreatedAt time.Time
	// UpdatedAt is when the job was last updated.
	UpdatedAt time.Time
	// StartedAt is when processing started.
	StartedAt time.Time
	// CompletedAt is when processing finished.
	CompletedAt time.Time
}

// New creates a new Job with a generated ID and initial IN_QUEUE status.
func New() *Job {
	return NewWithID(id.Generate())
}

// NewWithID creates a new Job with the specified ID and initial IN_QUEUE status.
// Useful for testing or when ID needs to be externally generated.
func NewWithID(jobID string) *Job {
	now := time.Now()
	return &Job{
		ID:        jobID,
		Status:    StatusInQueue,
		Files:     make([]File, 0),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// TransitionTo attempts to change the job status to the specified state.
// Returns ErrInvalidTransition if the transition is not allowed.
func (j *Job) TransitionTo(status Status) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if !canTransition(j.Status, status) {
		return ErrInvalidTransition
	}

	j.Status = status
	j.UpdatedAt = time.Now()

	switch status {
	case StatusRunning:
		j.StartedAt = j.UpdatedAt
	case StatusCompleted, StatusFailed, StatusCancelled, StatusTimedOut:
		j.CompletedAt = j.UpdatedAt
	}

	return nil
}

// Start transitions the job from IN_QUEUE to RUNNING.
func (j *Job) Start() error {
	return j.TransitionTo(StatusRunning)
}

// Complete transitions the job to COMPLETED state.
func (j *Job) Complete() error {
	return j.TransitionTo(StatusCompleted)
}

// Fail transitions the job to FAILED state with an error message.
func (j *Job) Fail(errMsg string) error {
	j.mu.Lock()
	j.Error = errMsg
	j.mu.Unlock()
	return j.TransitionTo(StatusFailed)
}

// Cancel transitions the job to CANCELLED state.
func (j *Job) Cancel() error {
	return j.TransitionTo(StatusCancelled)
}

// Timeout transitions the job to TIMED_OUT state.
func (j *Job) Timeout() error {
	return j.TransitionTo(StatusTimedOut)
}

// SetFiles sets the files for this job.
func (j *Job) SetFiles(files []File) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Files = files
	j.UpdatedAt = time.Now()
}

// UpdateFile replaces a file by index and recomputes progress.
func (j *Job) UpdateFile(index int, file File) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if index < 0 || index >= len(j.Files) {
		return
	}
	j.Files[index] = file

	done := 0
	for _, f := range j.Files {
		if f.Status == FileStatusCompleted || f.Status == FileStatusFailed {
			done++
		}
	}
	j.Progress = done * 100 / len(j.Files)
	j.UpdatedAt = time.Now()
}

// SetResult sets the result container path and optional S3 URL.
func (j *Job) SetResult(path, url string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.ResultPath = path
	j.ResultURL = url
	j.UpdatedAt = time.Now()
}

// SetTSV records the path of the saved raw classifier output.
func (j *Job) SetTSV(path string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.TSVPath = path
	j.UpdatedAt = time.Now()
}

// Counts returns the number of completed and failed files.
func (j *Job) Counts() (completed, failed int) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	for _, f := range j.Files {
		switch f.Status {
		case FileStatusCompleted:
			completed++
		case FileStatusFailed:
			failed++
		}
	}
	return completed, failed
}

// Container returns the job's documents and, in file order, the view of
// every finished file: TimeFrame views for completed files and error views
// for failed ones.
func (j *Job) Container() *annotation.Container {
	j.mu.RLock()
	defer j.mu.RUnlock()

	docs := make([]annotation.Document, len(j.Documents))
	copy(docs, j.Documents)

	views := make([]*annotation.View, 0, len(j.Files))
	for _, f := range j.Files {
		if (f.Status == FileStatusCompleted || f.Status == FileStatusFailed) && f.View != nil {
			views = append(views, f.View.Clone())
		}
	}
	return &annotation.Container{Documents: docs, Views: views}
}

// IsTerminal returns true if the job is in a terminal state.
func (j *Job) IsTerminal() bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status == StatusCompleted ||
		j.Status == StatusFailed ||
		j.Status == StatusCancelled ||
		j.Status == StatusTimedOut
}

// Clone creates a deep copy of the job for safe reads.
func (j *Job) Clone() *Job {
	j.mu.RLock()
	defer j.mu.RUnlock()

	docs := make([]annotation.Document, len(j.Documents))
	copy(docs, j.Documents)

	files := make([]File, len(j.Files))
	copy(files, j.Files)
	for i := range files {
		files[i].View = files[i].View.Clone()
	}

	return &Job{
		ID:          j.ID,
		Status:      j.Status,
		Documents:   docs,
		Files:       files,
		Progress:    j.Progress,
		Error:       j.Error,
		PushToS3:    j.PushToS3,
		ResultPath:  j.ResultPath,
		ResultURL:   j.ResultURL,
		TSVPath:     j.TSVPath,
		CreatedAt:   j.CreatedAt,
		UpdatedAt:   j.UpdatedAt,
		StartedAt:   j.StartedAt,
		CompletedAt: j.CompletedAt,
	}
}
