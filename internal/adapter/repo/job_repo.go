package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"taleweaver/internal/domain"
)

// JobRepositoryPG implements domain.JobRepository.
type JobRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewJobRepository creates a new job repository backed by PostgreSQL.
func NewJobRepository(pool *pgxpool.Pool) *JobRepositoryPG {
	return &JobRepositoryPG{pool: pool}
}

// Create inserts a new job record.
func (r *JobRepositoryPG) Create(ctx context.Context, job *domain.Job) error {
	query := `
INSERT INTO jobs (id, story_id, kind, status, progress, error_message, result, params)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8);
`
	_, err := r.pool.Exec(ctx, query,
		job.ID,
		job.StoryID,
		job.Kind,
		job.Status,
		job.Progress,
		job.ErrorMessage,
		nullableBytes(job.Result),
		nullableBytes(job.Params),
	)
	return err
}

// GetByID fetches a job by its identifier.
func (r *JobRepositoryPG) GetByID(ctx context.Context, jobID string) (*domain.Job, error) {
	query := `
SELECT id, story_id, kind, status, progress, error_message, result, params, created_at, updated_at
FROM jobs
WHERE id = $1;
`
	row := r.pool.QueryRow(ctx, query, jobID)
	return scanJob(row)
}

// ListByStory fetches all jobs for a story, oldest first.
func (r *JobRepositoryPG) ListByStory(ctx context.Context, storyID string) ([]domain.Job, error) {
	query := `
SELECT id, story_id, kind, status, progress, error_message, result, params, created_at, updated_at
FROM jobs
WHERE story_id = $1
ORDER BY created_at ASC;
`
	rows, err := r.pool.Query(ctx, query, storyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// ClaimProcessing atomically moves a job to processing while no sibling job
// of the same story is processing. A job already in processing may be
// re-claimed: redelivery after a lease expiry is the crash recovery path, and
// the queue's single-outstanding-lease guarantee serializes re-entry.
func (r *JobRepositoryPG) ClaimProcessing(ctx context.Context, jobID string) error {
	query := `
UPDATE jobs j
SET status = 'processing', updated_at = NOW()
WHERE j.id = $1
  AND j.status IN ('queued', 'processing')
  AND NOT EXISTS (
      SELECT 1 FROM jobs s
      WHERE s.story_id = j.story_id
        AND s.status = 'processing'
        AND s.id <> j.id
  );
`
	tag, err := r.pool.Exec(ctx, query, jobID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	// The claim did not apply; inspect the record to classify why.
	job, err := r.GetByID(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status.Terminal() {
		return fmt.Errorf("job %s is %s: %w", jobID, job.Status, domain.ErrInvalidState)
	}
	return domain.ErrContentBusy
}

// SetProgress raises the progress checkpoint. The guard keeps progress
// monotone under redelivery races.
func (r *JobRepositoryPG) SetProgress(ctx context.Context, jobID string, progress int) error {
	query := `
UPDATE jobs
SET progress = $2, updated_at = NOW()
WHERE id = $1 AND progress < $2;
`
	_, err := r.pool.Exec(ctx, query, jobID, progress)
	return err
}

// Finish moves the job to a terminal status with its error or result payload.
func (r *JobRepositoryPG) Finish(ctx context.Context, jobID string, status domain.JobStatus, errMsg string, result json.RawMessage) error {
	query := `
UPDATE jobs
SET status = $2,
    error_message = $3,
    result = COALESCE($4, result),
    progress = CASE WHEN $2 = 'completed' THEN 100 ELSE progress END,
    updated_at = NOW()
WHERE id = $1;
`
	_, err := r.pool.Exec(ctx, query, jobID, status, errMsg, nullableBytes(result))
	return err
}

// DeleteTerminalBefore sweeps terminal jobs older than the cutoff.
func (r *JobRepositoryPG) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `
DELETE FROM jobs
WHERE status IN ('completed', 'failed') AND created_at < $1;
`
	tag, err := r.pool.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func scanJob(row pgx.Row) (*domain.Job, error) {
	var job domain.Job
	if err := row.Scan(
		&job.ID,
		&job.StoryID,
		&job.Kind,
		&job.Status,
		&job.Progress,
		&job.ErrorMessage,
		&job.Result,
		&job.Params,
		&job.CreatedAt,
		&job.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &job, nil
}

func nullableBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	return b
}
