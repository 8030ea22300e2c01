package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Static errors for storage operations.
var (
	// ErrS3NotConfigured is returned when S3 operations are attempted
	// without proper configuration.
	ErrS3NotConfigured = errors.New("S3 storage is not configured")
	// ErrOutsideResultsDir is returned when a path does not belong to the results directory.
	ErrOutsideResultsDir = errors.New("path is outside the results directory")
)

// LocalStorage implements the Storage interface using local disk.
// Results are JSON files in a single directory; Upload is not supported
// unless wrapped with S3Storage.
type LocalStorage struct {
	dir string
}

// Compile-time check that LocalStorage implements Storage.
var _ Storage = (*LocalStorage)(nil)

// NewLocalStorage creates a new LocalStorage instance.
// Results are stored in baseDir/results. If baseDir is empty,
// os.TempDir()/acs-segmenter is used. The directory is created if needed.
func NewLocalStorage(baseDir string) (*LocalStorage, error) {
	if baseDir == "" {
		baseDir = filepath.Join(os.TempDir(), "acs-segmenter")
	}
	dir := filepath.Join(baseDir, "results")

	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("create results directory: %w", err)
	}

	return &LocalStorage{dir: dir}, nil
}

// Dir returns the results directory path.
func (s *LocalStorage) Dir() string {
	return s.dir
}

// SaveResult writes data to <name>_<random><ext> in the results directory.
// ext is the extension of name, ".json" when name has none.
func (s *LocalStorage) SaveResult(ctx context.Context, name string, data io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("context cancelled: %w", err)
	}

	ext := filepath.Ext(name)
	if ext == "" {
		ext = ".json"
	}
	f, err := os.CreateTemp(s.dir, strings.TrimSuffix(name, ext)+"_*"+ext)
	if err != nil {
		return "", fmt.Errorf("create result file: %w", err)
	}

	fileName := f.Name()
	if _, err := io.Copy(f, data); err != nil {
		_ = f.Close()
		_ = os.Remove(fileName)
		return "", fmt.Errorf("write result file: %w", err)
	}

	if err := f.Close(); err != nil {
		_ = os.Remove(fileName)
		return "", fmt.Errorf("close result file: %w", err)
	}

	return fileName, nil
}

// OpenResult opens a result file previously written by SaveResult.
func (s *LocalStorage) OpenResult(ctx context.Context, path string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context cancelled: %w", err)
	}
	if err := s.contains(path); err != nil {
		return nil, err
	}

	f, err := os.Open(path) // #nosec G304 - path is checked against the results directory
	if err != nil {
		return nil, fmt.Errorf("open result file: %w", err)
	}

	return f, nil
}

// RemoveResults deletes result files, returning the first error encountered.
// Missing files are ignored.
func (s *LocalStorage) RemoveResults(ctx context.Context, paths []string) error {
	var firstErr error
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("context cancelled: %w", err)
		}
		if err := s.contains(p); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}

		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			if firstErr == nil {
				firstErr = fmt.Errorf("remove result file %s: %w", p, err)
			}
		}
	}
	return firstErr
}

// Upload is not supported by LocalStorage and returns ErrS3NotConfigured.
func (s *LocalStorage) Upload(_ context.Context, _ string, _ io.Reader) (string, error) {
	return "", ErrS3NotConfigured
}

// contains checks that path lies inside the results directory.
func (s *LocalStorage) contains(path string) error {
	rel, err := filepath.Rel(s.dir, filepath.Clean(path))
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") || filepath.IsAbs(rel) {
		return fmt.Errorf("%w: %s", ErrOutsideResultsDir, path)
	}
	return nil
}
