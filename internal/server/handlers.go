package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"

	"github.com/maauso/acs-segmenter/internal/annotation"
	"github.com/maauso/acs-segmenter/internal/job"
)

// maxBodyBytes caps request bodies; containers only carry document references.
const maxBodyBytes = 8 << 20

// Handlers contains the HTTP handlers for the API.
type Handlers struct {
	service            *job.SegmentService
	validator          *validator.Validate
	logger             *slog.Logger
	metadata           annotation.AppMetadata
	enableAsyncProcess bool
}

// HandlerOption is a function that configures a Handlers instance.
type HandlerOption func(*Handlers)

// WithAsyncProcessing enables or disables background processing.
// When disabled, CreateJob only creates the job and returns immediately
// without starting background processing.
func WithAsyncProcessing(enabled bool) HandlerOption {
	return func(h *Handlers) {
		h.enableAsyncProcess = enabled
	}
}

// WithAppMetadata sets the document served by GET /metadata.
func WithAppMetadata(md annotation.AppMetadata) HandlerOption {
	return func(h *Handlers) {
		h.metadata = md
	}
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(service *job.SegmentService, logger *slog.Logger, opts ...HandlerOption) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handlers{
		service:            service,
		validator:          validator.New(),
		logger:             logger,
		metadata:           annotation.NewAppMetadata("", annotation.Milliseconds),
		enableAsyncProcess: true,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Health handles GET /health requests.
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// Metadata handles GET /metadata requests.
func (h *Handlers) Metadata(w http.ResponseWriter, r *http.Request) {
	writeJSONIndent(w, http.StatusOK, h.metadata, wantPretty(r))
}

// CreateJob handles POST /jobs requests.
func (h *Handlers) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req CreateJobRequest
	if !h.decode(w, r, &req) {
		return
	}

	input := job.SegmentInput{Documents: req.Documents, PushToS3: req.PushToS3}

	createdJob, err := h.service.CreateJob(r.Context(), input)
	if err != nil {
		h.writeServiceError(w, err, "failed to create job", "JOB_CREATION_FAILED")
		return
	}

	// Detached context: processing outlives the request.
	if h.enableAsyncProcess {
		go func(ctx context.Context, jobID string) {
			if _, processErr := h.service.ProcessExistingJob(ctx, jobID); processErr != nil {
				h.logger.Error("background processing failed",
					slog.String("job_id", jobID),
					slog.String("error", processErr.Error()),
				)
			}
		}(context.WithoutCancel(r.Context()), createdJob.ID)
	}

	h.logger.Info("job created",
		slog.String("job_id", createdJob.ID),
		slog.Int("files", len(createdJob.Files)),
	)

	writeJSON(w, http.StatusAccepted, CreateJobResponse{
		ID:     createdJob.ID,
		Status: string(createdJob.Status),
		Files:  len(createdJob.Files),
	})
}

// ListJobs handles GET /jobs requests.
func (h *Handlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.service.ListJobs(r.Context())
	if err != nil {
		h.logger.Error("failed to list jobs", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list jobs", "JOB_LIST_FAILED")
		return
	}

	resp := ListJobsResponse{Jobs: make([]JobSummary, 0, len(jobs))}
	for _, j := range jobs {
		resp.Jobs = append(resp.Jobs, JobSummary{
			ID:        j.ID,
			Status:    string(j.Status),
			Progress:  j.Progress,
			Files:     len(j.Files),
			CreatedAt: j.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetJob handles GET /jobs/{id} requests.
func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "job ID is required", "MISSING_JOB_ID")
		return
	}

	foundJob, err := h.service.GetJob(r.Context(), jobID)
	if err != nil {
		h.writeJobError(w, jobID, err, "failed to get job", "JOB_FETCH_FAILED")
		return
	}

	writeJSONIndent(w, http.StatusOK, newJobResponse(foundJob), wantPretty(r))
}

// GetJobResult handles GET /jobs/{id}/result requests by streaming the
// stored result container.
func (h *Handlers) GetJobResult(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")

	rc, err := h.service.OpenResult(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, job.ErrNoResult) {
			writeError(w, http.StatusNotFound, "job has no stored result", "RESULT_NOT_FOUND")
			return
		}
		h.writeJobError(w, jobID, err, "failed to read result", "RESULT_FETCH_FAILED")
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		h.logger.Error("failed to stream result",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
	}
}

// DeleteJob handles DELETE /jobs/{id} requests.
func (h *Handlers) DeleteJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")

	if err := h.service.DeleteJob(r.Context(), jobID); err != nil {
		if errors.Is(err, job.ErrInvalidTransition) {
			writeError(w, http.StatusConflict, "job is still running", "JOB_NOT_TERMINAL")
			return
		}
		h.writeJobError(w, jobID, err, "failed to delete job", "JOB_DELETE_FAILED")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// FailedFilesHeader carries the number of files that got an error view
// instead of TimeFrames in a POST /annotate response.
const FailedFilesHeader = "X-Failed-Files"

// Annotate handles POST /annotate requests: the container is segmented
// synchronously and returned with one new view per audio file. A file that
// could not be segmented gets an error view.
func (h *Handlers) Annotate(w http.ResponseWriter, r *http.Request) {
	var req annotation.Container
	if !h.decode(w, r, &req) {
		return
	}

	out, err := h.service.Process(r.Context(), job.SegmentInput{Documents: req.Documents})
	if err != nil {
		h.writeServiceError(w, err, "failed to annotate", "ANNOTATION_FAILED")
		return
	}
	if out.Status != job.StatusCompleted {
		h.logger.Warn("annotation failed",
			slog.String("job_id", out.JobID),
			slog.String("error", out.Error),
		)
		writeError(w, http.StatusUnprocessableEntity, out.Error, "SEGMENTATION_FAILED")
		return
	}

	result := &annotation.Container{Documents: req.Documents, Views: req.Views}
	result.AddViews(out.Container.Views...)

	if failed := failedFiles(out.Files); failed > 0 {
		h.logger.Warn("annotation partially failed",
			slog.String("job_id", out.JobID),
			slog.Int("failed", failed),
		)
		w.Header().Set(FailedFilesHeader, strconv.Itoa(failed))
	}
	writeJSONIndent(w, http.StatusOK, result, wantPretty(r))
}

func failedFiles(files []job.File) int {
	n := 0
	for _, f := range files {
		if f.Status == job.FileStatusFailed {
			n++
		}
	}
	return n
}

// decode reads and validates a JSON body, writing the error response itself.
func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst); err != nil {
		h.logger.Warn("failed to decode request body",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
		return false
	}

	if err := h.validator.Struct(dst); err != nil {
		h.logger.Warn("request validation failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return false
	}
	return true
}

// writeServiceError maps document selection errors to 400 and anything else to 500.
func (h *Handlers) writeServiceError(w http.ResponseWriter, err error, msg, code string) {
	switch {
	case errors.Is(err, job.ErrNoAudioDocuments):
		writeError(w, http.StatusBadRequest, err.Error(), "NO_AUDIO_DOCUMENTS")
	case errors.Is(err, job.ErrDuplicateDocument):
		writeError(w, http.StatusBadRequest, err.Error(), "DUPLICATE_DOCUMENT")
	default:
		h.logger.Error(msg, slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, msg, code)
	}
}

func (h *Handlers) writeJobError(w http.ResponseWriter, jobID string, err error, msg, code string) {
	if errors.Is(err, job.ErrJobNotFound) {
		writeError(w, http.StatusNotFound, "job not found", "JOB_NOT_FOUND")
		return
	}
	h.logger.Error(msg,
		slog.String("job_id", jobID),
		slog.String("error", err.Error()),
	)
	writeError(w, http.StatusInternalServerError, msg, code)
}

func newJobResponse(j *job.Job) JobResponse {
	resp := JobResponse{
		ID:        j.ID,
		Status:    string(j.Status),
		Progress:  j.Progress,
		Error:     j.Error,
		Files:     make([]FileResponse, 0, len(j.Files)),
		ResultURL: j.ResultURL,
		CreatedAt: j.CreatedAt,
	}
	for _, f := range j.Files {
		fr := FileResponse{
			DocumentID:  f.DocumentID,
			Location:    f.Location,
			Status:      string(f.Status),
			Error:       f.Error,
			SpeechRatio: f.SpeechRatio,
		}
		if f.View != nil {
			fr.TimeFrames = len(f.View.Annotations)
		}
		resp.Files = append(resp.Files, fr)
	}
	if !j.CompletedAt.IsZero() {
		completed := j.CompletedAt
		resp.CompletedAt = &completed
	}
	if j.Status == job.StatusCompleted {
		resp.Result = j.Container()
	}
	return resp
}

// wantPretty reports whether the caller asked for indented output.
func wantPretty(r *http.Request) bool {
	pretty, _ := strconv.ParseBool(r.URL.Query().Get("pretty"))
	return pretty
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	writeJSONIndent(w, status, data, false)
}

func writeJSONIndent(w http.ResponseWriter, status int, data any, pretty bool) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	if pretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeError writes an error response in the standard format.
func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
