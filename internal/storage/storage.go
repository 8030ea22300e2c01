// Package storage persists segmentation result containers on local disk and,
// optionally, publishes them to S3.
package storage

import (
	"context"
	"io"
)

// Storage defines the interface for result file storage.
type Storage interface {
	// SaveResult writes data to a new file in the results directory and
	// returns its path. The name parameter is used as a hint for the filename.
	SaveResult(ctx context.Context, name string, data io.Reader) (path string, err error)

	// OpenResult opens a stored result file.
	// The caller is responsible for closing the returned ReadCloser.
	OpenResult(ctx context.Context, path string) (io.ReadCloser, error)

	// RemoveResults deletes the specified result files.
	// It continues even if some files fail to delete.
	RemoveResults(ctx context.Context, paths []string) error

	// Upload publishes data under key and returns its URL.
	// Returns ErrS3NotConfigured if S3 is not configured.
	Upload(ctx context.Context, key string, data io.Reader) (url string, err error)
}
