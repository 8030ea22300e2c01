package job

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/maauso/acs-segmenter/internal/annotation"
	"github.com/maauso/acs-segmenter/internal/classifier"
	"github.com/maauso/acs-segmenter/internal/segment"
	"github.com/maauso/acs-segmenter/internal/storage"
)

type mockClassifier struct {
	mock.Mock
}

func (m *mockClassifier) Classify(ctx context.Context, path string) (*classifier.Result, error) {
	args := m.Called(ctx, path)
	res, _ := args.Get(0).(*classifier.Result)
	return res, args.Error(1)
}

type mockStorage struct {
	mock.Mock
}

func (m *mockStorage) SaveResult(ctx context.Context, name string, data io.Reader) (string, error) {
	b, _ := io.ReadAll(data)
	args := m.Called(ctx, name, b)
	return args.String(0), args.Error(1)
}

func (m *mockStorage) OpenResult(ctx context.Context, path string) (io.ReadCloser, error) {
	args := m.Called(ctx, path)
	rc, _ := args.Get(0).(io.ReadCloser)
	return rc, args.Error(1)
}

func (m *mockStorage) RemoveResults(ctx context.Context, paths []string) error {
	return m.Called(ctx, paths).Error(0)
}

func (m *mockStorage) Upload(ctx context.Context, key string, data io.Reader) (string, error) {
	b, _ := io.ReadAll(data)
	args := m.Called(ctx, key, b)
	return args.String(0), args.Error(1)
}

var _ storage.Storage = (*mockStorage)(nil)

// classifierFunc adapts a function to classifier.Classifier.
type classifierFunc func(ctx context.Context, path string) (*classifier.Result, error)

func (f classifierFunc) Classify(ctx context.Context, path string) (*classifier.Result, error) {
	return f(ctx, path)
}

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func audioDoc(id, location string) annotation.Document {
	return annotation.Document{Type: annotation.TypeAudioDocument, ID: id, Location: location}
}

func result(path string, spans segment.SpanMap, total int) *classifier.Result {
	return &classifier.Result{Path: path, Spans: spans, TotalFrames: total, FrameDuration: 10 * time.Millisecond}
}

func newTestService(cls classifier.Classifier, store storage.Storage, opts ...ServiceOption) (*SegmentService, *MemoryRepository) {
	repo := NewMemoryRepository()
	opts = append([]ServiceOption{WithApp("http://apps.example/acs-segmenter/v1"), WithClock(func() time.Time { return fixedNow })}, opts...)
	return NewSegmentService(repo, cls, store, quietLogger(), opts...), repo
}

func TestNewSegmentService_Defaults(t *testing.T) {
	repo := NewMemoryRepository()
	svc := NewSegmentService(repo, &mockClassifier{}, nil, nil)

	assert.Equal(t, 3, svc.maxConcurrentFiles)
	assert.Equal(t, annotation.Milliseconds, svc.unit)
	assert.Equal(t, DefaultAcceptedExtensions, svc.acceptedExtensions)
	assert.NotNil(t, svc.logger)

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	svc = NewSegmentService(repo, &mockClassifier{}, nil, logger,
		WithMaxConcurrentFiles(0),
		WithMaxConcurrentFiles(5),
		WithMaxConcurrentFiles(-1),
		WithAcceptedExtensions([]string{"FLAC", " .Wav "}),
		WithTimeUnit(annotation.Seconds),
	)
	assert.Same(t, logger, svc.logger)
	assert.Equal(t, 5, svc.maxConcurrentFiles)
	assert.Equal(t, []string{".flac", ".wav"}, svc.acceptedExtensions)
	assert.Equal(t, annotation.Seconds, svc.unit)
}

func TestSelectDocuments(t *testing.T) {
	docs := []annotation.Document{
		audioDoc("a1", "/data/one.wav"),
		{Type: "http://mmif.clams.ai/vocabulary/VideoDocument/v1", ID: "v1", Location: "/data/clip.mp4"},
		audioDoc("a2", "/data/two.MP3"),
		audioDoc("a3", "/data/three.ogg"),
		audioDoc("a4", ""),
	}

	files, err := SelectDocuments(docs, DefaultAcceptedExtensions)
	require.NoError(t, err)
	require.Len(t, files, 2)

	assert.Equal(t, File{Index: 0, DocumentID: "a1", Location: "/data/one.wav", Status: FileStatusPending}, files[0])
	assert.Equal(t, 1, files[1].Index)
	assert.Equal(t, "a2", files[1].DocumentID)
}

func TestSelectDocuments_NoAudio(t *testing.T) {
	_, err := SelectDocuments([]annotation.Document{audioDoc("a1", "/data/x.ogg")}, DefaultAcceptedExtensions)
	assert.ErrorIs(t, err, ErrNoAudioDocuments)

	_, err = SelectDocuments(nil, DefaultAcceptedExtensions)
	assert.ErrorIs(t, err, ErrNoAudioDocuments)
}

func TestSelectDocuments_DuplicateID(t *testing.T) {
	_, err := SelectDocuments([]annotation.Document{
		audioDoc("a1", "/data/x.wav"),
		audioDoc("a1", "/data/y.wav"),
	}, DefaultAcceptedExtensions)
	assert.ErrorIs(t, err, ErrDuplicateDocument)
	assert.ErrorContains(t, err, "a1")
}

func TestSegmentService_CreateJob(t *testing.T) {
	svc, repo := newTestService(&mockClassifier{}, nil)
	ctx := context.Background()

	job, err := svc.CreateJob(ctx, SegmentInput{
		Documents: []annotation.Document{audioDoc("a1", "/data/one.wav")},
		PushToS3:  true,
	})
	require.NoError(t, err)

	assert.NotEmpty(t, job.ID)
	assert.Equal(t, StatusInQueue, job.Status)
	assert.True(t, job.PushToS3)
	require.Len(t, job.Files, 1)
	assert.Equal(t, FileStatusPending, job.Files[0].Status)

	saved, err := repo.FindByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, saved.ID)
}

func TestSegmentService_CreateJob_Rejected(t *testing.T) {
	svc, repo := newTestService(&mockClassifier{}, nil)
	ctx := context.Background()

	_, err := svc.CreateJob(ctx, SegmentInput{Documents: []annotation.Document{audioDoc("a1", "/x.txt")}})
	assert.ErrorIs(t, err, ErrNoAudioDocuments)

	jobs, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestSegmentService_GetJob_NotFound(t *testing.T) {
	svc, _ := newTestService(&mockClassifier{}, nil)

	_, err := svc.GetJob(context.Background(), "nonexistent")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestSegmentService_Process(t *testing.T) {
	cls := &mockClassifier{}
	cls.On("Classify", mock.Anything, "/data/one.wav").
		Return(result("/data/one.wav", segment.SpanMap{40: 50, 10: 20}, 60), nil).Once()

	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	svc, repo := newTestService(cls, store)
	ctx := context.Background()

	out, err := svc.Process(ctx, SegmentInput{Documents: []annotation.Document{audioDoc("a1", "/data/one.wav")}})
	require.NoError(t, err)
	cls.AssertExpectations(t)

	assert.Equal(t, StatusCompleted, out.Status)
	assert.Empty(t, out.Error)
	require.Len(t, out.Files, 1)
	assert.Equal(t, FileStatusCompleted, out.Files[0].Status)
	assert.InDelta(t, 22.0/61.0, out.Files[0].SpeechRatio, 1e-9)

	require.Len(t, out.Container.Views, 1)
	view := out.Container.Views[0]
	assert.Equal(t, "v_0", view.ID)
	assert.True(t, view.IsFrozen())
	assert.Equal(t, "http://apps.example/acs-segmenter/v1", view.Metadata.App)
	assert.Equal(t, fixedNow, view.Metadata.Timestamp)
	assert.Equal(t, annotation.Contain{Unit: annotation.Milliseconds, Document: "a1"}, view.Metadata.Contains[annotation.TypeTimeFrame])

	want := []annotation.Properties{
		{Start: 0, End: 90, FrameType: segment.LabelNonSpeech},
		{Start: 100, End: 200, FrameType: segment.LabelSpeech},
		{Start: 210, End: 390, FrameType: segment.LabelNonSpeech},
		{Start: 400, End: 500, FrameType: segment.LabelSpeech},
		{Start: 510, End: 600, FrameType: segment.LabelNonSpeech},
	}
	require.Len(t, view.Annotations, len(want))
	for i, rec := range view.Annotations {
		assert.Equal(t, annotation.TimeFrameID(i+1), rec.ID)
		assert.Equal(t, annotation.TypeTimeFrame, rec.Type)
		assert.Equal(t, want[i], rec.Properties)
	}

	require.NotEmpty(t, out.ResultPath)
	rc, err := svc.OpenResult(ctx, out.JobID)
	require.NoError(t, err)
	defer rc.Close()
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"tf5"`)

	saved, err := repo.FindByID(ctx, out.JobID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, saved.Status)
	assert.Equal(t, 100, saved.Progress)
}

func TestSegmentService_Process_SecondsUnit(t *testing.T) {
	cls := &mockClassifier{}
	cls.On("Classify", mock.Anything, "/data/one.wav").Return(result("/data/one.wav", segment.SpanMap{}, 100), nil)
	svc, _ := newTestService(cls, nil, WithTimeUnit(annotation.Seconds))

	out, err := svc.Process(context.Background(), SegmentInput{Documents: []annotation.Document{audioDoc("a1", "/data/one.wav")}})
	require.NoError(t, err)

	require.Len(t, out.Container.Views, 1)
	recs := out.Container.Views[0].Annotations
	require.Len(t, recs, 1)
	assert.Equal(t, annotation.Properties{Start: 0, End: 1, FrameType: segment.LabelNonSpeech}, recs[0].Properties)
	assert.Empty(t, out.ResultPath, "no storage configured")
}

func TestSegmentService_Process_PartialFailure(t *testing.T) {
	cls := &mockClassifier{}
	cls.On("Classify", mock.Anything, "/data/good.wav").Return(result("/data/good.wav", segment.SpanMap{0: 4}, 10), nil)
	cls.On("Classify", mock.Anything, "/data/crash.wav").Return(nil, errors.New("exit status 1"))
	cls.On("Classify", mock.Anything, "/data/bad.wav").Return(result("/data/bad.wav", segment.SpanMap{0: 5, 6: 8}, 10), nil)
	svc, _ := newTestService(cls, nil)

	out, err := svc.Process(context.Background(), SegmentInput{Documents: []annotation.Document{
		audioDoc("good", "/data/good.wav"),
		audioDoc("crash", "/data/crash.wav"),
		audioDoc("bad", "/data/bad.wav"),
	}})
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, out.Status)
	require.Len(t, out.Files, 3)

	assert.Equal(t, FileStatusCompleted, out.Files[0].Status)
	assert.NotNil(t, out.Files[0].View)

	assert.Equal(t, FileStatusFailed, out.Files[1].Status)
	assert.Equal(t, "classify: exit status 1", out.Files[1].Error)

	assert.Equal(t, FileStatusFailed, out.Files[2].Status)
	assert.True(t, strings.HasPrefix(out.Files[2].Error, "reconstruct: "), out.Files[2].Error)

	require.Len(t, out.Container.Views, 3, "failed files yield error views")
	assert.Len(t, out.Container.Documents, 3)

	good := out.Container.Views[0]
	assert.False(t, good.IsError())
	assert.Equal(t, "good", good.Metadata.Contains[annotation.TypeTimeFrame].Document)

	for i, doc := range map[int]string{1: "crash", 2: "bad"} {
		v := out.Container.Views[i]
		assert.Equal(t, fmt.Sprintf("v_%d", i), v.ID)
		assert.True(t, v.IsError())
		assert.True(t, v.IsFrozen())
		assert.Empty(t, v.Annotations)
		assert.Equal(t, "http://apps.example/acs-segmenter/v1", v.Metadata.App)
		assert.Equal(t, fixedNow, v.Metadata.Timestamp)
		assert.Equal(t, doc, v.Metadata.Error.Document)
		assert.Equal(t, out.Files[i].Error, v.Metadata.Error.Message)
	}
}

func TestSegmentService_Process_AllFailed(t *testing.T) {
	cls := &mockClassifier{}
	cls.On("Classify", mock.Anything, mock.Anything).Return(nil, classifier.ErrNoOutput)
	store := &mockStorage{}
	svc, _ := newTestService(cls, store)

	out, err := svc.Process(context.Background(), SegmentInput{Documents: []annotation.Document{
		audioDoc("a", "/data/a.wav"),
		audioDoc("b", "/data/b.wav"),
	}})
	require.NoError(t, err)

	assert.Equal(t, StatusFailed, out.Status)
	assert.Equal(t, "all 2 files failed", out.Error)
	require.Len(t, out.Container.Views, 2)
	for _, v := range out.Container.Views {
		assert.True(t, v.IsError())
		assert.Contains(t, v.Metadata.Error.Message, classifier.ErrNoOutput.Error())
	}
	store.AssertNotCalled(t, "SaveResult", mock.Anything, mock.Anything, mock.Anything)
}

func TestSegmentService_Process_InvalidFrameCount(t *testing.T) {
	cls := &mockClassifier{}
	cls.On("Classify", mock.Anything, "/data/empty.wav").Return(result("/data/empty.wav", nil, 0), nil)
	svc, _ := newTestService(cls, nil)

	out, err := svc.Process(context.Background(), SegmentInput{Documents: []annotation.Document{audioDoc("e", "/data/empty.wav")}})
	require.NoError(t, err)

	assert.Equal(t, StatusFailed, out.Status)
	assert.Contains(t, out.Files[0].Error, segment.ErrInvalidFrameCount.Error())
}

func TestSegmentService_Process_PushToS3(t *testing.T) {
	cls := &mockClassifier{}
	cls.On("Classify", mock.Anything, "/data/a.wav").Return(result("/data/a.wav", segment.SpanMap{2: 3}, 5), nil)

	store := &mockStorage{}
	store.On("SaveResult", mock.Anything, mock.MatchedBy(func(name string) bool {
		return strings.HasSuffix(name, "_result")
	}), mock.Anything).Return("/tmp/results/r.json", nil).Once()
	store.On("Upload", mock.Anything, mock.MatchedBy(func(key string) bool {
		return strings.HasPrefix(key, "results/seg-") && strings.HasSuffix(key, ".json")
	}), mock.MatchedBy(func(b []byte) bool {
		return bytes.Contains(b, []byte(`"frameType":"speech"`))
	})).Return("https://bucket.s3.us-east-1.amazonaws.com/results/x.json", nil).Once()

	svc, _ := newTestService(cls, store)

	out, err := svc.Process(context.Background(), SegmentInput{
		Documents: []annotation.Document{audioDoc("a", "/data/a.wav")},
		PushToS3:  true,
	})
	require.NoError(t, err)
	store.AssertExpectations(t)

	assert.Equal(t, StatusCompleted, out.Status)
	assert.Equal(t, "/tmp/results/r.json", out.ResultPath)
	assert.Equal(t, "https://bucket.s3.us-east-1.amazonaws.com/results/x.json", out.ResultURL)
}

func TestSegmentService_Process_UploadFails(t *testing.T) {
	cls := &mockClassifier{}
	cls.On("Classify", mock.Anything, "/data/a.wav").Return(result("/data/a.wav", segment.SpanMap{}, 5), nil)

	store := &mockStorage{}
	store.On("SaveResult", mock.Anything, mock.Anything, mock.Anything).Return("/tmp/results/r.json", nil)
	store.On("Upload", mock.Anything, mock.Anything, mock.Anything).Return("", storage.ErrS3NotConfigured)
	svc, _ := newTestService(cls, store)

	out, err := svc.Process(context.Background(), SegmentInput{
		Documents: []annotation.Document{audioDoc("a", "/data/a.wav")},
		PushToS3:  true,
	})
	require.ErrorIs(t, err, storage.ErrS3NotConfigured)
	assert.Equal(t, StatusFailed, out.Status)
	assert.Contains(t, out.Error, "upload result")
}

func TestSegmentService_Process_ConcurrencyLimit(t *testing.T) {
	var running, peak atomic.Int32
	cls := classifierFunc(func(_ context.Context, path string) (*classifier.Result, error) {
		n := running.Add(1)
		defer running.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		return result(path, segment.SpanMap{1: 2}, 4), nil
	})
	svc, _ := newTestService(cls, nil, WithMaxConcurrentFiles(2))

	docs := make([]annotation.Document, 6)
	for i := range docs {
		docs[i] = audioDoc(string(rune('a'+i)), "/data/"+string(rune('a'+i))+".wav")
	}

	out, err := svc.Process(context.Background(), SegmentInput{Documents: docs})
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, out.Status)
	assert.Len(t, out.Container.Views, 6)
	assert.LessOrEqual(t, peak.Load(), int32(2))
	for i, f := range out.Files {
		assert.Equal(t, i, f.Index)
		assert.Equal(t, FileStatusCompleted, f.Status)
	}
}

func TestSegmentService_ProcessExistingJob_Cancelled(t *testing.T) {
	cls := classifierFunc(func(ctx context.Context, _ string) (*classifier.Result, error) {
		return nil, ctx.Err()
	})
	svc, repo := newTestService(cls, nil)

	job, err := svc.CreateJob(context.Background(), SegmentInput{Documents: []annotation.Document{audioDoc("a", "/data/a.wav")}})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out, err := svc.ProcessExistingJob(ctx, job.ID)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StatusCancelled, out.Status)

	saved, err := repo.FindByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, saved.Status)
	assert.Equal(t, FileStatusFailed, saved.Files[0].Status)
}

func TestSegmentService_ProcessExistingJob_TimedOut(t *testing.T) {
	cls := classifierFunc(func(ctx context.Context, _ string) (*classifier.Result, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	svc, repo := newTestService(cls, nil, WithJobTimeout(20*time.Millisecond))

	job, err := svc.CreateJob(context.Background(), SegmentInput{Documents: []annotation.Document{audioDoc("a", "/data/a.wav")}})
	require.NoError(t, err)

	out, err := svc.ProcessExistingJob(context.Background(), job.ID)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, StatusTimedOut, out.Status)

	saved, err := repo.FindByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusTimedOut, saved.Status)
	assert.False(t, saved.CompletedAt.IsZero())
	assert.Equal(t, FileStatusFailed, saved.Files[0].Status)
	assert.Contains(t, saved.Files[0].Error, context.DeadlineExceeded.Error())
}

func TestWithJobTimeout_IgnoresNonPositive(t *testing.T) {
	svc, _ := newTestService(&mockClassifier{}, nil, WithJobTimeout(time.Minute), WithJobTimeout(0), WithJobTimeout(-time.Second))
	assert.Equal(t, time.Minute, svc.jobTimeout)
}

func TestSegmentService_Process_SaveTSV(t *testing.T) {
	cls := &mockClassifier{}
	withTSV := func(path, row string) *classifier.Result {
		r := result(path, segment.SpanMap{1: 2}, 4)
		r.TSV = []byte(row)
		return r
	}
	cls.On("Classify", mock.Anything, "/data/a.wav").Return(withTSV("/data/a.wav", "a.wav\t0.01\t0.03\t0.5\n"), nil)
	cls.On("Classify", mock.Anything, "/data/b.wav").Return(withTSV("/data/b.wav", "b.wav\t0.01\t0.03\t0.5\n"), nil)

	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	svc, repo := newTestService(cls, store, WithSaveTSV(true), WithMaxConcurrentFiles(1))
	ctx := context.Background()

	out, err := svc.Process(ctx, SegmentInput{Documents: []annotation.Document{
		audioDoc("a", "/data/a.wav"),
		audioDoc("b", "/data/b.wav"),
	}})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, out.Status)

	require.NotEmpty(t, out.TSVPath)
	assert.Equal(t, store.Dir(), filepath.Dir(out.TSVPath))
	assert.True(t, strings.HasPrefix(filepath.Base(out.TSVPath), out.JobID+"_segmented_"))
	assert.Equal(t, ".tsv", filepath.Ext(out.TSVPath))
	data, err := os.ReadFile(out.TSVPath)
	require.NoError(t, err)
	assert.Equal(t, "a.wav\t0.01\t0.03\t0.5\nb.wav\t0.01\t0.03\t0.5\n", string(data))

	saved, err := repo.FindByID(ctx, out.JobID)
	require.NoError(t, err)
	assert.Equal(t, out.TSVPath, saved.TSVPath)

	require.NoError(t, svc.DeleteJob(ctx, out.JobID))
	_, err = os.Stat(out.TSVPath)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(out.ResultPath)
	assert.True(t, os.IsNotExist(err))
}

func TestSegmentService_Process_SaveTSVDisabled(t *testing.T) {
	cls := &mockClassifier{}
	r := result("/data/a.wav", segment.SpanMap{1: 2}, 4)
	r.TSV = []byte("a.wav\t0.5\n")
	cls.On("Classify", mock.Anything, "/data/a.wav").Return(r, nil)

	store := &mockStorage{}
	store.On("SaveResult", mock.Anything, mock.MatchedBy(func(name string) bool {
		return strings.HasSuffix(name, "_result")
	}), mock.Anything).Return("/tmp/results/r.json", nil).Once()
	svc, _ := newTestService(cls, store)

	out, err := svc.Process(context.Background(), SegmentInput{Documents: []annotation.Document{audioDoc("a", "/data/a.wav")}})
	require.NoError(t, err)
	store.AssertExpectations(t)
	assert.Empty(t, out.TSVPath)
}

func TestSegmentService_ProcessExistingJob_NotQueued(t *testing.T) {
	cls := &mockClassifier{}
	cls.On("Classify", mock.Anything, mock.Anything).Return(result("/data/a.wav", nil, 3), nil)
	svc, _ := newTestService(cls, nil)
	ctx := context.Background()

	out, err := svc.Process(ctx, SegmentInput{Documents: []annotation.Document{audioDoc("a", "/data/a.wav")}})
	require.NoError(t, err)

	_, err = svc.ProcessExistingJob(ctx, out.JobID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestSegmentService_DeleteJob(t *testing.T) {
	cls := &mockClassifier{}
	cls.On("Classify", mock.Anything, mock.Anything).Return(result("/data/a.wav", nil, 3), nil)
	store := &mockStorage{}
	store.On("SaveResult", mock.Anything, mock.Anything, mock.Anything).Return("/tmp/results/r.json", nil)
	store.On("RemoveResults", mock.Anything, []string{"/tmp/results/r.json"}).Return(nil).Once()
	svc, _ := newTestService(cls, store)
	ctx := context.Background()

	out, err := svc.Process(ctx, SegmentInput{Documents: []annotation.Document{audioDoc("a", "/data/a.wav")}})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteJob(ctx, out.JobID))
	store.AssertExpectations(t)

	_, err = svc.GetJob(ctx, out.JobID)
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestSegmentService_DeleteJob_Running(t *testing.T) {
	svc, _ := newTestService(&mockClassifier{}, nil)
	ctx := context.Background()

	job, err := svc.CreateJob(ctx, SegmentInput{Documents: []annotation.Document{audioDoc("a", "/data/a.wav")}})
	require.NoError(t, err)

	assert.ErrorIs(t, svc.DeleteJob(ctx, job.ID), ErrInvalidTransition)
}

func TestSegmentService_OpenResult_NoResult(t *testing.T) {
	svc, _ := newTestService(&mockClassifier{}, nil)
	ctx := context.Background()

	job, err := svc.CreateJob(ctx, SegmentInput{Documents: []annotation.Document{audioDoc("a", "/data/a.wav")}})
	require.NoError(t, err)

	_, err = svc.OpenResult(ctx, job.ID)
	assert.ErrorIs(t, err, ErrNoResult)
}

func TestSegmentService_ListJobs(t *testing.T) {
	svc, _ := newTestService(&mockClassifier{}, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = svc.CreateJob(ctx, SegmentInput{Documents: []annotation.Document{audioDoc("a", "/data/a.wav")}})
		}()
	}
	wg.Wait()

	jobs, err := svc.ListJobs(ctx)
	require.NoError(t, err)
	assert.Len(t, jobs, 3)
}
