// Package config provides configuration loading from environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sethvargo/go-envconfig"
)

// ErrInvalidConfig is returned when a loaded value fails validation.
var ErrInvalidConfig = errors.New("config: invalid configuration")

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	Port int `env:"PORT, default=8080" json:"port" validate:"min=1,max=65535"`

	// Storage settings
	TempDir  string `env:"TEMP_DIR, default=/tmp/acs-segmenter" json:"temp_dir" validate:"required"`
	JobStore string `env:"JOB_STORE, default=memory" json:"job_store" validate:"oneof=memory sqlite"`
	// SQLitePath is the job database file used when JobStore is "sqlite".
	SQLitePath string `env:"SQLITE_PATH, default=/tmp/acs-segmenter/jobs.db" json:"sqlite_path" validate:"required_if=JobStore sqlite"`

	// Processing settings
	MaxConcurrentFiles int      `env:"MAX_CONCURRENT_FILES, default=3" json:"max_concurrent_files" validate:"min=1"`
	AcceptedExtensions []string `env:"ACCEPTED_EXTENSIONS, default=.mp3,.wav" json:"accepted_extensions" validate:"min=1"`
	TimeUnit           string   `env:"TIME_UNIT, default=milliseconds" json:"time_unit" validate:"oneof=milliseconds seconds"`
	AppIRI             string   `env:"APP_IRI, default=http://apps.clams.ai/acs-segmenter/v0.3.0" json:"app_iri" validate:"required"`
	// JobTimeout bounds a whole job run; 0 disables the limit.
	JobTimeout time.Duration `env:"JOB_TIMEOUT, default=30m" json:"job_timeout" validate:"gte=0"`

	// Classifier settings
	Classifier    string        `env:"CLASSIFIER, default=acs" json:"classifier" validate:"oneof=acs silence energy"`
	FrameDuration time.Duration `env:"FRAME_DURATION, default=10ms" json:"frame_duration" validate:"gt=0"`
	FFmpegPath    string        `env:"FFMPEG_PATH, default=ffmpeg" json:"ffmpeg_path"`
	ACSPython     string        `env:"ACS_PYTHON, default=python3" json:"acs_python"`
	ACSScript     string        `env:"ACS_SCRIPT" json:"acs_script" validate:"required_if=Classifier acs"`
	ACSModelRoot  string        `env:"ACS_MODEL_ROOT" json:"acs_model_root" validate:"required_if=Classifier acs"`
	SilenceThresh float64       `env:"SILENCE_THRESH_DB, default=-40" json:"silence_thresh_db" validate:"lte=0"`
	EnergyThresh  float64       `env:"ENERGY_THRESH_DB, default=-35" json:"energy_thresh_db" validate:"lte=0"`
	MinSilenceMs  int           `env:"MIN_SILENCE_MS, default=500" json:"min_silence_ms" validate:"min=0"`
	MinSpeechMs   int           `env:"MIN_SPEECH_MS, default=200" json:"min_speech_ms" validate:"min=0"`
	// ACSSaveTSV keeps the tool's raw TSV next to each job result.
	ACSSaveTSV bool `env:"ACS_SAVE_TSV, default=false" json:"acs_save_tsv"`

	// Optional S3 settings
	S3Bucket           string `env:"S3_BUCKET" json:"s3_bucket,omitempty"`
	S3Region           string `env:"S3_REGION" json:"s3_region,omitempty"`
	S3Endpoint         string `env:"S3_ENDPOINT" json:"s3_endpoint,omitempty" validate:"omitempty,url"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID" json:"-"`     // Masked in JSON
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" json:"-"` // Masked in JSON

	// Logging settings
	LogFormat string `env:"LOG_FORMAT, default=text" json:"log_format" validate:"oneof=json text JSON TEXT"`
	LogLevel  string `env:"LOG_LEVEL, default=info" json:"log_level"` // "debug", "info", "warn", "error"
}

// S3Enabled returns true if S3 configuration is provided.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != "" && c.S3Region != ""
}

// MinSilence returns MIN_SILENCE_MS as a duration.
func (c *Config) MinSilence() time.Duration {
	return time.Duration(c.MinSilenceMs) * time.Millisecond
}

// MinSpeech returns MIN_SPEECH_MS as a duration.
func (c *Config) MinSpeech() time.Duration {
	return time.Duration(c.MinSpeechMs) * time.Millisecond
}

// ThresholdDB returns the level threshold for the configured classifier.
func (c *Config) ThresholdDB() float64 {
	if c.Classifier == "energy" {
		return c.EnergyThresh
	}
	return c.SilenceThresh
}

// Load reads configuration from environment variables using go-envconfig
// and validates it.
func Load() (*Config, error) {
	return LoadWith(context.Background(), nil)
}

// LoadWith is Load with an explicit lookuper; a nil lookuper reads the
// process environment.
func LoadWith(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	cfg := &Config{}

	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   cfg,
		Lookuper: lookuper,
	}); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges and the settings each classifier requires.
func (c *Config) Validate() error {
	err := validator.New().Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
	}
	return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(msgs, ", "))
}

// NewLogger creates a structured logger writing to stdout.
func (c *Config) NewLogger() *slog.Logger {
	return c.NewLoggerTo(os.Stdout)
}

// NewLoggerTo creates a structured logger writing to w.
// When LogFormat is "json", it outputs JSON logs suitable for production.
// Otherwise, it outputs human-readable text logs.
func (c *Config) NewLoggerTo(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(c.LogLevel)}

	var handler slog.Handler
	if strings.ToLower(c.LogFormat) == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}

// String returns a string representation of the config with sensitive values masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Port: %d, TempDir: %s, JobStore: %s, Classifier: %s, FrameDuration: %s, MaxConcurrentFiles: %d, TimeUnit: %s, S3Bucket: %s, S3Region: %s, LogFormat: %s, LogLevel: %s}",
		c.Port,
		c.TempDir,
		c.JobStore,
		c.Classifier,
		c.FrameDuration,
		c.MaxConcurrentFiles,
		c.TimeUnit,
		c.S3Bucket,
		c.S3Region,
		c.LogFormat,
		c.LogLevel,
	)
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
