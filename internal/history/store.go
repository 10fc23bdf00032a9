// Package history records filter jobs in a SQLite database so past runs
// can be listed from the command line.
package history

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Status is the outcome of a job.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Job is one recorded run.
type Job struct {
	ID        uuid.UUID
	Input     string
	Output    string
	Filters   []string
	Workers   int
	Width     int
	Height    int
	Channels  int
	Duration  time.Duration
	Status    Status
	Error     string
	CreatedAt time.Time
}

// Store is a job history backed by SQLite.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

// Open opens or creates the database at path and brings its schema up to date.
func Open(ctx context.Context, path string, logger *zap.Logger) (*Store, error) {
	if path == "" {
		return nil, errors.New("history: database path is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("history: open %s: %w", path, err)
	}
	// one writer; the CLI never records concurrently
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			db.Close()
			return nil, fmt.Errorf("history: %s: %w", p, err)
		}
	}

	version, err := migrateUp(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	logger.Debug("history schema ready", zap.String("path", path), zap.Uint("version", version))
	return &Store{db: db, logger: logger}, nil
}

func migrateUp(db *sql.DB) (uint, error) {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return 0, fmt.Errorf("history: load migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(db, &sqlite.Config{DatabaseName: "main"})
	if err != nil {
		return 0, fmt.Errorf("history: create sqlite driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return 0, fmt.Errorf("history: create migrator: %w", err)
	}
	// m.Close would close db as well; the store keeps using it

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, fmt.Errorf("history: apply migrations: %w", err)
	}
	version, dirty, err := m.Version()
	if err != nil {
		return 0, fmt.Errorf("history: read schema version: %w", err)
	}
	if dirty {
		return 0, fmt.Errorf("history: schema version %d is dirty", version)
	}
	return version, nil
}

// Record inserts job, assigning an id and timestamp when unset.
func (s *Store) Record(ctx context.Context, job Job) (Job, error) {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO jobs (id, input, output, filters, workers, width, height, channels,
			duration_ms, status, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID.String(), job.Input, job.Output, strings.Join(job.Filters, " "),
		job.Workers, job.Width, job.Height, job.Channels,
		job.Duration.Milliseconds(), string(job.Status), job.Error, job.CreatedAt.UnixMilli())
	if err != nil {
		return Job{}, fmt.Errorf("history: record job %s: %w", job.ID, err)
	}
	s.logger.Debug("job recorded", zap.String("job_id", job.ID.String()), zap.String("status", string(job.Status)))
	return job, nil
}

// Recent returns up to limit jobs, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Job, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, input, output, filters, workers, width, height, channels,
			duration_ms, status, error, created_at
		FROM jobs
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("history: query jobs: %w", err)
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		var (
			job        Job
			id         string
			filters    string
			status     string
			durationMS int64
			createdMS  int64
		)
		if err := rows.Scan(&id, &job.Input, &job.Output, &filters, &job.Workers, &job.Width, &job.Height,
			&job.Channels, &durationMS, &status, &job.Error, &createdMS); err != nil {
			return nil, fmt.Errorf("history: scan job: %w", err)
		}
		if job.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("history: job id %q: %w", id, err)
		}
		job.Filters = strings.Fields(filters)
		job.Status = Status(status)
		job.Duration = time.Duration(durationMS) * time.Millisecond
		job.CreatedAt = time.UnixMilli(createdMS)
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
