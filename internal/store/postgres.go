// Package store persists jobs and content embeddings in Postgres. The job
// queue in Redis carries only IDs; these rows are the system of record.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvector "github.com/pgvector/pgvector-go/pgx"

	"ai-content-pipeline/internal/models"
)

// Store wraps pgxpool for Postgres persistence.
type Store struct {
	pool      *pgxpool.Pool
	dimension int
}

// New creates a pooled connection and registers the pgvector codec on every
// connection. dimension fixes the embedding vector length the store accepts.
func New(ctx context.Context, dsn string, dimension int) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvector.RegisterTypes(ctx, conn)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if dimension <= 0 {
		dimension = 384
	}
	return &Store{pool: pool, dimension: dimension}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Dimension returns the fixed embedding vector length.
func (s *Store) Dimension() int {
	return s.dimension
}

// CreateJob inserts a waiting job row and returns it.
func (s *Store) CreateJob(ctx context.Context, queueName, jobName string, payload json.RawMessage) (models.Job, error) {
	if !models.KnownQueue(queueName) {
		return models.Job{}, fmt.Errorf("%w: %q", models.ErrUnknownQueue, queueName)
	}
	if payload == nil {
		payload = json.RawMessage("{}")
	}

	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx, `
		INSERT INTO jobs (id, queue_name, job_name, payload, status, progress, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 0, $6, $6)
	`, id, queueName, jobName, payload, models.StatusWaiting, now)
	if err != nil {
		return models.Job{}, fmt.Errorf("insert job: %w", err)
	}

	return models.Job{
		ID:        id,
		QueueName: queueName,
		JobName:   jobName,
		Payload:   payload,
		Status:    models.StatusWaiting,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// GetJob fetches a job by id.
func (s *Store) GetJob(ctx context.Context, id string) (models.Job, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, queue_name, job_name, payload, status, progress, result, failure_reason, created_at, updated_at
		FROM jobs WHERE id = $1
	`, id)

	var job models.Job
	var result []byte
	var reason pgtype.Text

	err := row.Scan(&job.ID, &job.QueueName, &job.JobName, &job.Payload, &job.Status,
		&job.Progress, &result, &reason, &job.CreatedAt, &job.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Job{}, models.ErrJobNotFound
	}
	if err != nil {
		return models.Job{}, fmt.Errorf("scan job: %w", err)
	}

	job.Result = result
	if reason.Valid {
		job.FailureReason = &reason.String
	}
	return job, nil
}

// GetJobInQueue fetches a job by id and verifies it belongs to the named
// queue, guarding pollers against misrouted lookups.
func (s *Store) GetJobInQueue(ctx context.Context, queueName, id string) (models.Job, error) {
	if !models.KnownQueue(queueName) {
		return models.Job{}, fmt.Errorf("%w: %q", models.ErrUnknownQueue, queueName)
	}
	job, err := s.GetJob(ctx, id)
	if err != nil {
		return models.Job{}, err
	}
	if job.QueueName != queueName {
		return models.Job{}, models.ErrJobNotFound
	}
	return job, nil
}

// MarkActive transitions a waiting job to active. The WHERE clause keeps
// terminal states immutable even if a stale queue entry is replayed.
func (s *Store) MarkActive(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE jobs SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status = $3
	`, id, models.StatusActive, models.StatusWaiting)
	return err
}

// SetProgress records progress on an active job. Progress never moves
// backwards; GREATEST enforces monotonicity at the row.
func (s *Store) SetProgress(ctx context.Context, id string, progress int) error {
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	_, err := s.pool.Exec(ctx, `
		UPDATE jobs SET progress = GREATEST(progress, $2), updated_at = NOW()
		WHERE id = $1 AND status = $3
	`, id, progress, models.StatusActive)
	return err
}

// MarkCompleted writes the terminal completed state with the job's result.
func (s *Store) MarkCompleted(ctx context.Context, id string, result json.RawMessage) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE jobs SET status = $2, progress = 100, result = $3, updated_at = NOW()
		WHERE id = $1 AND status = $4
	`, id, models.StatusCompleted, result, models.StatusActive)
	return err
}

// MarkFailed writes the terminal failed state with a human-readable reason.
// Waiting jobs may fail too: a job whose enqueue never reached Redis must not
// sit in waiting forever. Terminal states stay immutable.
func (s *Store) MarkFailed(ctx context.Context, id string, reason string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE jobs SET status = $2, failure_reason = $3, updated_at = NOW()
		WHERE id = $1 AND status IN ($4, $5)
	`, id, models.StatusFailed, reason, models.StatusWaiting, models.StatusActive)
	return err
}
