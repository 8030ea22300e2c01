package job

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/maauso/acs-segmenter/internal/annotation"
)

// Compile-time check that SQLiteRepository implements Repository.
var _ Repository = (*SQLiteRepository)(nil)

const createJobsTable = `CREATE TABLE IF NOT EXISTS jobs (
    id          TEXT PRIMARY KEY,
    status      TEXT NOT NULL,
    created_at  TEXT NOT NULL,
    updated_at  TEXT NOT NULL,
    data        TEXT NOT NULL
)`

// sortableTime keeps created_at lexically ordered.
const sortableTime = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteRepository persists jobs in a SQLite database, one JSON document per job.
type SQLiteRepository struct {
	db   *sql.DB
	path string
}

// jobRecord is the serialized form of a Job.
type jobRecord struct {
	ID          string                `json:"id"`
	Status      Status                `json:"status"`
	Documents   []annotation.Document `json:"documents"`
	Files       []File                `json:"files"`
	Progress    int                   `json:"progress"`
	Error       string                `json:"error,omitempty"`
	PushToS3    bool                  `json:"push_to_s3"`
	ResultPath  string                `json:"result_path,omitempty"`
	ResultURL   string                `json:"result_url,omitempty"`
	TSVPath     string                `json:"tsv_path,omitempty"`
	CreatedAt   time.Time             `json:"created_at"`
	UpdatedAt   time.Time             `json:"updated_at"`
	StartedAt   time.Time             `json:"started_at"`
	CompletedAt time.Time             `json:"completed_at"`
}

// OpenSQLiteRepository opens or creates the job database at path.
func OpenSQLiteRepository(path string) (*SQLiteRepository, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// a single connection keeps per-connection pragmas in effect and serializes writers
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	if _, err := db.Exec(createJobsTable); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create jobs table: %w", err)
	}

	return &SQLiteRepository{db: db, path: path}, nil
}

// Close closes the underlying database connection.
func (r *SQLiteRepository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// Save inserts or replaces a job.
func (r *SQLiteRepository) Save(ctx context.Context, job *Job) error {
	snap := job.Clone()
	rec := jobRecord{
		ID:          snap.ID,
		Status:      snap.Status,
		Documents:   snap.Documents,
		Files:       snap.Files,
		Progress:    snap.Progress,
		Error:       snap.Error,
		PushToS3:    snap.PushToS3,
		ResultPath:  snap.ResultPath,
		ResultURL:   snap.ResultURL,
		TSVPath:     snap.TSVPath,
		CreatedAt:   snap.CreatedAt,
		UpdatedAt:   snap.UpdatedAt,
		StartedAt:   snap.StartedAt,
		CompletedAt: snap.CompletedAt,
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO jobs (id, status, created_at, updated_at, data) VALUES (?, ?, ?, ?, ?)
         ON CONFLICT(id) DO UPDATE SET status = excluded.status, updated_at = excluded.updated_at, data = excluded.data`,
		rec.ID,
		string(rec.Status),
		rec.CreatedAt.UTC().Format(sortableTime),
		rec.UpdatedAt.UTC().Format(sortableTime),
		string(data),
	)
	if err != nil {
		return fmt.Errorf("save job %s: %w", rec.ID, err)
	}
	return nil
}

// FindByID retrieves a job by its ID.
func (r *SQLiteRepository) FindByID(ctx context.Context, id string) (*Job, error) {
	var data string
	err := r.db.QueryRowContext(ctx, `SELECT data FROM jobs WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find job %s: %w", id, err)
	}
	return decodeJob(data)
}

// List returns all jobs ordered by creation time, oldest first.
func (r *SQLiteRepository) List(ctx context.Context) ([]*Job, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT data FROM jobs ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	jobs := make([]*Job, 0)
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		job, err := decodeJob(data)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate jobs: %w", err)
	}
	return jobs, nil
}

// Delete removes a job.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete job %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrJobNotFound
	}
	return nil
}

func decodeJob(data string) (*Job, error) {
	var rec jobRecord
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return nil, fmt.Errorf("decode job: %w", err)
	}
	files := rec.Files
	if files == nil {
		files = make([]File, 0)
	}
	return &Job{
		ID:          rec.ID,
		Status:      rec.Status,
		Documents:   rec.Documents,
		Files:       files,
		Progress:    rec.Progress,
		Error:       rec.Error,
		PushToS3:    rec.PushToS3,
		ResultPath:  rec.ResultPath,
		ResultURL:   rec.ResultURL,
		TSVPath:     rec.TSVPath,
		CreatedAt:   rec.CreatedAt,
		UpdatedAt:   rec.UpdatedAt,
		StartedAt:   rec.StartedAt,
		CompletedAt: rec.CompletedAt,
	}, nil
}
