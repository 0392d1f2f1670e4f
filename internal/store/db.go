// Package store persists validation history and bulk jobs in PostgreSQL.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"mailaudit/internal/apperr"
	"mailaudit/internal/models"
)

const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 500
)

var ErrJobNotFound = apperr.New(apperr.RecordNotFound, "Job not found")

// Store wraps a pgx pool. It is created once at startup and closed on shutdown.
type Store struct {
	pool *pgxpool.Pool
}

// Open connects to Postgres, verifies the connection and runs migrations.
func Open(ctx context.Context, connString string) (*Store, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	s := &Store{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() { s.pool.Close() }

func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

func (s *Store) migrate(ctx context.Context) error {
	migrations := []struct{ name, sql string }{
		{"validations", `
		CREATE TABLE IF NOT EXISTS validations (
			id BIGSERIAL PRIMARY KEY,
			email TEXT NOT NULL,
			client_ip TEXT NOT NULL DEFAULT '',
			is_valid_syntax BOOLEAN NOT NULL,
			is_valid_dns BOOLEAN NOT NULL,
			is_valid_smtp BOOLEAN NOT NULL,
			is_disposable BOOLEAN NOT NULL,
			data JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);`},
		{"validations_created_at", `CREATE INDEX IF NOT EXISTS validations_created_at_idx ON validations (created_at DESC);`},
		{"jobs", `
		CREATE TABLE IF NOT EXISTS jobs (
			id TEXT PRIMARY KEY,
			status TEXT NOT NULL,
			total_count INT NOT NULL DEFAULT 0,
			processed_count INT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			completed_at TIMESTAMPTZ
		);`},
		{"job_results", `
		CREATE TABLE IF NOT EXISTS job_results (
			id BIGSERIAL PRIMARY KEY,
			job_id TEXT NOT NULL REFERENCES jobs(id),
			email TEXT NOT NULL,
			data JSONB NOT NULL
		);`},
		{"job_results_job_id", `CREATE INDEX IF NOT EXISTS job_results_job_id_idx ON job_results (job_id);`},
	}
	for _, m := range migrations {
		if _, err := s.pool.Exec(ctx, m.sql); err != nil {
			return fmt.Errorf("migration failed (%s): %w", m.name, err)
		}
	}
	return nil
}

// SaveValidation records one email check in the audit trail.
func (s *Store) SaveValidation(ctx context.Context, res models.ValidationResult, clientIP string) error {
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("encode validation: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO validations (email, client_ip, is_valid_syntax, is_valid_dns, is_valid_smtp, is_disposable, data)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, res.Email, clientIP, res.IsValidSyntax, res.IsValidDNS, res.IsValidSMTP, res.IsDisposable, data)
	if err != nil {
		return fmt.Errorf("save validation: %w", err)
	}
	return nil
}

// ClampLimit applies the history page bounds.
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultHistoryLimit
	case limit > MaxHistoryLimit:
		return MaxHistoryLimit
	}
	return limit
}

// History returns the most recent validations, newest first.
func (s *Store) History(ctx context.Context, limit int) ([]models.ValidationRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, client_ip, created_at, data
		FROM validations
		ORDER BY created_at DESC, id DESC
		LIMIT $1
	`, ClampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	records := []models.ValidationRecord{}
	for rows.Next() {
		var rec models.ValidationRecord
		var data []byte
		if err := rows.Scan(&rec.ID, &rec.ClientIP, &rec.CreatedAt, &data); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		if err := json.Unmarshal(data, &rec.ValidationResult); err != nil {
			return nil, apperr.Wrap(apperr.ParseError, "stored validation is corrupt", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Stats aggregates the audit trail. Valid means syntax and DNS both passed.
func (s *Store) Stats(ctx context.Context) (models.ValidationStats, error) {
	var total, valid, disposable int64
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE is_valid_syntax AND is_valid_dns),
		       COUNT(*) FILTER (WHERE is_disposable)
		FROM validations
	`).Scan(&total, &valid, &disposable)
	if err != nil {
		return models.ValidationStats{}, fmt.Errorf("query stats: %w", err)
	}
	return NewStats(total, valid, disposable), nil
}

// NewStats derives the invalid count and success rate, rounded to two decimals.
func NewStats(total, valid, disposable int64) models.ValidationStats {
	st := models.ValidationStats{
		TotalValidations: total,
		ValidEmails:      valid,
		InvalidEmails:    total - valid,
		DisposableEmails: disposable,
	}
	if total > 0 {
		st.SuccessRate = math.Round(float64(valid)/float64(total)*10000) / 100
	}
	return st
}

// CreateJob inserts a pending bulk job.
func (s *Store) CreateJob(ctx context.Context, total int) (models.Job, error) {
	job := models.Job{
		ID:         uuid.New().String(),
		Status:     models.JobPending,
		TotalCount: total,
		CreatedAt:  time.Now().UTC(),
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO jobs (id, status, total_count, created_at) VALUES ($1, $2, $3, $4)`,
		job.ID, job.Status, job.TotalCount, job.CreatedAt)
	if err != nil {
		return models.Job{}, fmt.Errorf("create job: %w", err)
	}
	return job, nil
}

func (s *Store) GetJob(ctx context.Context, id string) (models.Job, error) {
	var job models.Job
	err := s.pool.QueryRow(ctx, `
		SELECT id, status, total_count, processed_count, created_at, completed_at
		FROM jobs
		WHERE id = $1
	`, id).Scan(&job.ID, &job.Status, &job.TotalCount, &job.ProcessedCount, &job.CreatedAt, &job.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Job{}, ErrJobNotFound
	}
	if err != nil {
		return models.Job{}, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// JobResults returns a job's results in the order they were saved.
func (s *Store) JobResults(ctx context.Context, id string) ([]models.JobResult, error) {
	rows, err := s.pool.Query(ctx, `SELECT email, data FROM job_results WHERE job_id = $1 ORDER BY id ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}
	defer rows.Close()

	results := []models.JobResult{}
	for rows.Next() {
		var r models.JobResult
		var data []byte
		if err := rows.Scan(&r.Email, &data); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		if err := json.Unmarshal(data, &r.Result); err != nil {
			return nil, apperr.Wrap(apperr.ParseError, "stored result is corrupt", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// SaveJobResult stores one bulk result and advances the job in the same
// transaction, completing it when the last email lands.
func (s *Store) SaveJobResult(ctx context.Context, jobID string, res models.ValidationResult) error {
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`INSERT INTO job_results (job_id, email, data) VALUES ($1, $2, $3)`,
		jobID, res.Email, data); err != nil {
		return fmt.Errorf("save result: %w", err)
	}

	tag, err := tx.Exec(ctx, `
		UPDATE jobs
		SET processed_count = processed_count + 1,
		    status = CASE WHEN processed_count + 1 >= total_count THEN 'completed' ELSE 'processing' END,
		    completed_at = CASE WHEN processed_count + 1 >= total_count THEN NOW() ELSE completed_at END
		WHERE id = $1
	`, jobID)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrJobNotFound
	}
	return tx.Commit(ctx)
}
