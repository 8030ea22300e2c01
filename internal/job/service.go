package job

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/maauso/acs-segmenter/internal/annotation"
	"github.com/maauso/acs-segmenter/internal/classifier"
	"github.com/maauso/acs-segmenter/internal/segment"
	"github.com/maauso/acs-segmenter/internal/storage"
)

// Static errors for document selection.
var (
	// ErrNoAudioDocuments is returned when no submitted document can be segmented.
	ErrNoAudioDocuments = errors.New("no audio documents with an accepted extension")
	// ErrDuplicateDocument is returned when two documents share an id.
	ErrDuplicateDocument = errors.New("duplicate document id")
	// ErrNoResult is returned when a job has no stored result container.
	ErrNoResult = errors.New("no stored result")
)

// DefaultAcceptedExtensions are the audio formats handed to the classifier.
var DefaultAcceptedExtensions = []string{".mp3", ".wav"}

// SegmentInput contains the input parameters for a segmentation job.
type SegmentInput struct {
	// Documents are the source documents; only AudioDocuments are segmented.
	Documents []annotation.Document
	// PushToS3 indicates whether to upload the result container to S3.
	PushToS3 bool
}

// SegmentOutput contains the result of a segmentation job.
type SegmentOutput struct {
	// JobID is the unique identifier for the job.
	JobID string
	// Status is the final job status.
	Status Status
	// Container holds the documents and one view per segmented file.
	Container *annotation.Container
	// Files reports the outcome of every selected file.
	Files []File
	// ResultPath is the local path of the stored result container.
	ResultPath string
	// ResultURL is the S3 URL of the result container (if pushed to S3).
	ResultURL string
	// TSVPath is the local path of the saved raw classifier output.
	TSVPath string
	// Error contains any error message if the job failed.
	Error string
}

// SegmentService orchestrates the segmentation workflow: document selection,
// per-file classification, interval reconstruction and view emission.
type SegmentService struct {
	repo       Repository
	classifier classifier.Classifier
	store      storage.Storage
	logger     *slog.Logger

	app                string
	unit               annotation.TimeUnit
	acceptedExtensions []string
	// maxConcurrentFiles limits parallel classifier runs.
	maxConcurrentFiles int
	// jobTimeout bounds a whole job run; zero means no limit.
	jobTimeout time.Duration
	saveTSV    bool
	now        func() time.Time
}

// ServiceOption configures a SegmentService.
type ServiceOption func(*SegmentService)

// WithMaxConcurrentFiles sets how many files are processed in parallel.
func WithMaxConcurrentFiles(n int) ServiceOption {
	return func(s *SegmentService) {
		if n > 0 {
			s.maxConcurrentFiles = n
		}
	}
}

// WithJobTimeout limits how long a job may run before it is TIMED_OUT.
// Zero or negative disables the limit.
func WithJobTimeout(d time.Duration) ServiceOption {
	return func(s *SegmentService) {
		if d > 0 {
			s.jobTimeout = d
		}
	}
}

// WithSaveTSV keeps the raw classifier TSV of each job next to its result.
func WithSaveTSV(save bool) ServiceOption {
	return func(s *SegmentService) {
		s.saveTSV = save
	}
}

// WithAcceptedExtensions sets the file extensions handed to the classifier.
func WithAcceptedExtensions(exts []string) ServiceOption {
	return func(s *SegmentService) {
		if len(exts) > 0 {
			s.acceptedExtensions = normalizeExtensions(exts)
		}
	}
}

// WithTimeUnit sets the unit of emitted TimeFrame boundaries.
func WithTimeUnit(u annotation.TimeUnit) ServiceOption {
	return func(s *SegmentService) {
		if u != "" {
			s.unit = u
		}
	}
}

// WithApp sets the application identifier stamped on every view.
func WithApp(app string) ServiceOption {
	return func(s *SegmentService) {
		s.app = app
	}
}

// WithClock overrides the view timestamp source.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *SegmentService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewSegmentService creates a new SegmentService. store may be nil, in which
// case result containers are kept only in the job repository.
func NewSegmentService(repo Repository, cls classifier.Classifier, store storage.Storage, logger *slog.Logger, opts ...ServiceOption) *SegmentService {
	if logger == nil {
		logger = slog.Default()
	}
	s := &SegmentService{
		repo:               repo,
		classifier:         cls,
		store:              store,
		logger:             logger,
		unit:               annotation.Milliseconds,
		acceptedExtensions: DefaultAcceptedExtensions,
		maxConcurrentFiles: 3,
		now:                time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SelectDocuments returns one pending File per AudioDocument that has a
// location with an accepted extension, in document order.
func SelectDocuments(docs []annotation.Document, acceptedExts []string) ([]File, error) {
	accepted := make(map[string]struct{}, len(acceptedExts))
	for _, ext := range normalizeExtensions(acceptedExts) {
		accepted[ext] = struct{}{}
	}

	seen := make(map[string]struct{}, len(docs))
	files := make([]File, 0, len(docs))
	for _, doc := range docs {
		if _, dup := seen[doc.ID]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateDocument, doc.ID)
		}
		seen[doc.ID] = struct{}{}

		if doc.Type != annotation.TypeAudioDocument || doc.Location == "" {
			continue
		}
		if _, ok := accepted[strings.ToLower(filepath.Ext(doc.Location))]; !ok {
			continue
		}
		files = append(files, File{
			Index:      len(files),
			DocumentID: doc.ID,
			Location:   doc.Location,
			Status:     FileStatusPending,
		})
	}

	if len(files) == 0 {
		return nil, ErrNoAudioDocuments
	}
	return files, nil
}

func normalizeExtensions(exts []string) []string {
	out := make([]string, 0, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		out = append(out, ext)
	}
	return out
}

// CreateJob selects the audio documents, creates a job and persists it.
// The job is created in IN_QUEUE status, ready for processing.
func (s *SegmentService) CreateJob(ctx context.Context, input SegmentInput) (*Job, error) {
	files, err := SelectDocuments(input.Documents, s.acceptedExtensions)
	if err != nil {
		return nil, err
	}

	job := New()
	job.Documents = append([]annotation.Document(nil), input.Documents...)
	job.PushToS3 = input.PushToS3
	job.SetFiles(files)

	s.logger.Info("creating new job",
		slog.String("job_id", job.ID),
		slog.Int("documents", len(input.Documents)),
		slog.Int("files", len(files)),
		slog.Bool("push_to_s3", input.PushToS3),
	)

	if err := s.repo.Save(ctx, job); err != nil {
		s.logger.Error("failed to save job",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	return job, nil
}

// GetJob retrieves a job by ID.
func (s *SegmentService) GetJob(ctx context.Context, id string) (*Job, error) {
	return s.repo.FindByID(ctx, id)
}

// ListJobs returns every known job, oldest first.
func (s *SegmentService) ListJobs(ctx context.Context) ([]*Job, error) {
	return s.repo.List(ctx)
}

// DeleteJob removes a job and its stored result files.
func (s *SegmentService) DeleteJob(ctx context.Context, id string) error {
	job, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if !job.IsTerminal() {
		return fmt.Errorf("delete job %s: %w", id, ErrInvalidTransition)
	}
	var paths []string
	for _, p := range []string{job.ResultPath, job.TSVPath} {
		if p != "" {
			paths = append(paths, p)
		}
	}
	if len(paths) > 0 && s.store != nil {
		if err := s.store.RemoveResults(ctx, paths); err != nil {
			s.logger.Warn("failed to remove result files",
				slog.String("job_id", id),
				slog.Any("paths", paths),
				slog.String("error", err.Error()),
			)
		}
	}
	return s.repo.Delete(ctx, id)
}

// OpenResult opens the stored result container of a completed job.
func (s *SegmentService) OpenResult(ctx context.Context, id string) (io.ReadCloser, error) {
	job, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.store == nil || job.ResultPath == "" {
		return nil, fmt.Errorf("job %s: %w", id, ErrNoResult)
	}
	return s.store.OpenResult(ctx, job.ResultPath)
}

// Process creates a job and runs it to completion.
func (s *SegmentService) Process(ctx context.Context, input SegmentInput) (*SegmentOutput, error) {
	job, err := s.CreateJob(ctx, input)
	if err != nil {
		return nil, err
	}
	return s.ProcessExistingJob(ctx, job.ID)
}

// ProcessExistingJob segments every file of an IN_QUEUE job.
//
// Files are processed in parallel, bounded by maxConcurrentFiles, and never
// share state. A failing file is marked FAILED with its error and yields no
// view; the other files are unaffected. The job fails only when every file
// failed. A job still running when the job timeout expires is TIMED_OUT.
func (s *SegmentService) ProcessExistingJob(ctx context.Context, jobID string) (*SegmentOutput, error) {
	job, err := s.repo.FindByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if err := job.Start(); err != nil {
		return nil, fmt.Errorf("start job %s: %w", jobID, err)
	}
	s.save(ctx, job)

	logger := s.logger.With(slog.String("job_id", jobID))
	logger.Info("processing job", slog.Int("files", len(job.Files)))

	if s.jobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.jobTimeout)
		defer cancel()
	}

	files := job.Clone().Files
	tsv := make([][]byte, len(files))
	sem := make(chan struct{}, s.maxConcurrentFiles)
	var wg sync.WaitGroup

	for _, f := range files {
		wg.Add(1)
		go func(f File) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				f.Status = FileStatusFailed
				f.Error = ctx.Err().Error()
				f.View = s.errorView(f)
				job.UpdateFile(f.Index, f)
				return
			}
			defer func() { <-sem }()

			f.Status = FileStatusProcessing
			f.StartedAt = time.Now()
			job.UpdateFile(f.Index, f)

			done, raw := s.processFile(ctx, logger, f)
			tsv[f.Index] = raw
			job.UpdateFile(done.Index, done)
			s.save(ctx, job)
		}(f)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			_ = job.Timeout()
			logger.Error("job timed out", slog.Duration("timeout", s.jobTimeout))
		} else {
			_ = job.Cancel()
		}
		s.save(context.WithoutCancel(ctx), job)
		return s.output(job), err
	}

	completed, failed := job.Counts()
	if completed == 0 {
		_ = job.Fail(fmt.Sprintf("all %d files failed", failed))
		s.save(ctx, job)
		logger.Error("job failed", slog.Int("failed", failed))
		return s.output(job), nil
	}

	if err := s.storeResult(ctx, job, bytes.Join(tsv, nil)); err != nil {
		_ = job.Fail(err.Error())
		s.save(ctx, job)
		logger.Error("failed to store result", slog.String("error", err.Error()))
		return s.output(job), err
	}

	_ = job.Complete()
	s.save(ctx, job)
	logger.Info("job completed",
		slog.Int("completed", completed),
		slog.Int("failed", failed),
	)
	return s.output(job), nil
}

// processFile classifies one file, reconstructs its intervals and emits them
// into a new frozen view. It also returns the raw classifier TSV, if any.
func (s *SegmentService) processFile(ctx context.Context, logger *slog.Logger, f File) (File, []byte) {
	fail := func(stage string, err error) (File, []byte) {
		logger.Warn("file failed",
			slog.String("document_id", f.DocumentID),
			slog.String("stage", stage),
			slog.String("error", err.Error()),
		)
		f.Status = FileStatusFailed
		f.Error = fmt.Sprintf("%s: %v", stage, err)
		f.View = s.errorView(f)
		f.CompletedAt = time.Now()
		return f, nil
	}

	res, err := s.classifier.Classify(ctx, f.Location)
	if err != nil {
		return fail("classify", err)
	}

	intervals, err := segment.Reconstruct(res.Spans, res.TotalFrames)
	if err != nil {
		return fail("reconstruct", err)
	}

	view := annotation.NewView(fmt.Sprintf("v_%d", f.Index))
	err = annotation.Emit(view, intervals, annotation.EmitOptions{
		App:           s.app,
		DocumentID:    f.DocumentID,
		Unit:          s.unit,
		FrameDuration: res.FrameDuration,
		Now:           s.now,
	})
	if err != nil {
		return fail("emit", err)
	}
	view.Freeze()

	f.Status = FileStatusCompleted
	f.Error = ""
	f.View = view
	f.SpeechRatio = segment.SpeechRatio(intervals)
	f.CompletedAt = time.Now()

	logger.Info("file segmented",
		slog.String("document_id", f.DocumentID),
		slog.Int("intervals", len(intervals)),
		slog.Int("speech_spans", len(res.Spans)),
		slog.Float64("speech_ratio", f.SpeechRatio),
	)
	return f, res.TSV
}

// errorView records the failure of f as a frozen view without annotations.
func (s *SegmentService) errorView(f File) *annotation.View {
	view := annotation.NewView(fmt.Sprintf("v_%d", f.Index))
	err := annotation.EmitError(view, f.Error, annotation.EmitOptions{
		App:        s.app,
		DocumentID: f.DocumentID,
		Now:        s.now,
	})
	if err != nil {
		return nil
	}
	view.Freeze()
	return view
}

// storeResult writes the result container and uploads it when requested.
// The raw classifier TSV is saved alongside when enabled.
func (s *SegmentService) storeResult(ctx context.Context, job *Job, tsv []byte) error {
	if s.store == nil {
		return nil
	}

	if s.saveTSV && len(tsv) > 0 {
		path, err := s.store.SaveResult(ctx, job.ID+"_segmented.tsv", bytes.NewReader(tsv))
		if err != nil {
			return fmt.Errorf("save tsv: %w", err)
		}
		job.SetTSV(path)
	}

	data, err := json.Marshal(job.Container())
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}

	path, err := s.store.SaveResult(ctx, job.ID+"_result", bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("save result: %w", err)
	}

	var url string
	if job.PushToS3 {
		url, err = s.store.Upload(ctx, "results/"+job.ID+".json", bytes.NewReader(data))
		if err != nil {
			return fmt.Errorf("upload result: %w", err)
		}
	}
	job.SetResult(path, url)
	return nil
}

func (s *SegmentService) save(ctx context.Context, job *Job) {
	if err := s.repo.Save(ctx, job); err != nil {
		s.logger.Error("failed to save job",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *SegmentService) output(job *Job) *SegmentOutput {
	snap := job.Clone()
	return &SegmentOutput{
		JobID:      snap.ID,
		Status:     snap.Status,
		Container:  snap.Container(),
		Files:      snap.Files,
		ResultPath: snap.ResultPath,
		ResultURL:  snap.ResultURL,
		TSVPath:    snap.TSVPath,
		Error:      snap.Error,
	}
}
