// Package bootstrap wires configuration into the segmenter's dependencies.
package bootstrap

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/maauso/acs-segmenter/internal/annotation"
	"github.com/maauso/acs-segmenter/internal/classifier"
	"github.com/maauso/acs-segmenter/internal/config"
	"github.com/maauso/acs-segmenter/internal/job"
	"github.com/maauso/acs-segmenter/internal/storage"
)

// Dependencies holds all initialized dependencies for the server and CLI.
type Dependencies struct {
	Service  *job.SegmentService
	Metadata annotation.AppMetadata

	closers []io.Closer
}

// Close releases resources held by the dependencies, such as the job database.
func (d *Dependencies) Close() error {
	var errs []error
	for _, c := range d.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NewDependencies creates and initializes all dependencies for the application.
func NewDependencies(cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	unit, err := annotation.ParseTimeUnit(cfg.TimeUnit)
	if err != nil {
		return nil, err
	}

	store, err := initStorage(cfg, logger)
	if err != nil {
		return nil, err
	}

	cls, err := initClassifier(cfg, logger)
	if err != nil {
		return nil, err
	}

	deps := &Dependencies{Metadata: annotation.NewAppMetadata(cfg.AppIRI, unit)}

	repo, err := initRepository(cfg, logger, deps)
	if err != nil {
		return nil, err
	}

	deps.Service = job.NewSegmentService(
		repo,
		cls,
		store,
		logger,
		job.WithApp(cfg.AppIRI),
		job.WithTimeUnit(unit),
		job.WithAcceptedExtensions(cfg.AcceptedExtensions),
		job.WithMaxConcurrentFiles(cfg.MaxConcurrentFiles),
		job.WithJobTimeout(cfg.JobTimeout),
		job.WithSaveTSV(cfg.ACSSaveTSV),
	)
	return deps, nil
}

// initClassifier builds the classifier selected by CLASSIFIER.
func initClassifier(cfg *config.Config, logger *slog.Logger) (classifier.Classifier, error) {
	cls, err := classifier.New(classifier.Kind(cfg.Classifier), classifier.Options{
		FrameDuration:   cfg.FrameDuration,
		FFmpegPath:      cfg.FFmpegPath,
		WorkDir:         filepath.Join(cfg.TempDir, "stage"),
		Python:          cfg.ACSPython,
		Script:          cfg.ACSScript,
		ModelRoot:       cfg.ACSModelRoot,
		SilenceThreshDB: cfg.ThresholdDB(),
		MinSilence:      cfg.MinSilence(),
		MinSpeech:       cfg.MinSpeech(),
	})
	if err != nil {
		return nil, fmt.Errorf("create classifier: %w", err)
	}
	logger.Info("classifier configured",
		slog.String("kind", cfg.Classifier),
		slog.Duration("frame_duration", cfg.FrameDuration),
	)
	return cls, nil
}

// initRepository opens the job store selected by JOB_STORE.
func initRepository(cfg *config.Config, logger *slog.Logger, deps *Dependencies) (job.Repository, error) {
	if cfg.JobStore != "sqlite" {
		return job.NewMemoryRepository(), nil
	}

	repo, err := job.OpenSQLiteRepository(cfg.SQLitePath)
	if err != nil {
		return nil, fmt.Errorf("open job database: %w", err)
	}
	deps.closers = append(deps.closers, repo)
	logger.Info("sqlite job store configured", slog.String("path", cfg.SQLitePath))
	return repo, nil
}

// initStorage creates the appropriate storage backend based on configuration.
func initStorage(cfg *config.Config, logger *slog.Logger) (storage.Storage, error) {
	if cfg.S3Enabled() {
		s3Cfg := storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		}
		s3Store, err := storage.NewS3Storage(cfg.TempDir, s3Cfg)
		if err != nil {
			return nil, fmt.Errorf("create S3 storage: %w", err)
		}
		logger.Info("S3 storage configured",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("region", cfg.S3Region),
		)
		return s3Store, nil
	}

	localStore, err := storage.NewLocalStorage(cfg.TempDir)
	if err != nil {
		return nil, fmt.Errorf("create local storage: %w", err)
	}
	logger.Info("local storage configured",
		slog.String("results_dir", localStore.Dir()),
	)
	return localStore, nil
}
