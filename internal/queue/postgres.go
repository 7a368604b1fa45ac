package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresQueue is a Queue backed by the queue_messages table. Claims use
// FOR UPDATE SKIP LOCKED so concurrent workers never double-claim, and an
// expired lease makes the message claimable again without any janitor
// process.
type PostgresQueue struct {
	pool         *pgxpool.Pool
	leaseTimeout time.Duration
	pollInterval time.Duration
}

// NewPostgresQueue creates a Postgres-backed queue.
func NewPostgresQueue(pool *pgxpool.Pool, leaseTimeout, pollInterval time.Duration) *PostgresQueue {
	if leaseTimeout <= 0 {
		leaseTimeout = 5 * time.Minute
	}
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	return &PostgresQueue{pool: pool, leaseTimeout: leaseTimeout, pollInterval: pollInterval}
}

// Publish enqueues a job id for processing.
func (q *PostgresQueue) Publish(ctx context.Context, jobID string) error {
	query := `
INSERT INTO queue_messages (id, job_id, visible_at)
VALUES ($1, $2, NOW());
`
	_, err := q.pool.Exec(ctx, query, uuid.NewString(), jobID)
	if err != nil {
		return fmt.Errorf("queue publish: %w", err)
	}
	return nil
}

// Consume polls for the next visible message until one is claimed or ctx is
// done.
func (q *PostgresQueue) Consume(ctx context.Context) (*Lease, error) {
	for {
		lease, err := q.tryClaim(ctx)
		if err == nil {
			return lease, nil
		}
		if !errors.Is(err, ErrEmpty) {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(q.pollInterval):
		}
	}
}

func (q *PostgresQueue) tryClaim(ctx context.Context) (*Lease, error) {
	token := uuid.NewString()
	query := `
WITH next_msg AS (
    SELECT id
    FROM queue_messages
    WHERE visible_at <= NOW()
      AND (leased_until IS NULL OR leased_until < NOW())
    ORDER BY created_at ASC
    FOR UPDATE SKIP LOCKED
    LIMIT 1
)
UPDATE queue_messages m
SET leased_until = $1,
    lease_token  = $2,
    attempts     = m.attempts + 1
FROM next_msg
WHERE m.id = next_msg.id
RETURNING m.id, m.job_id, m.attempts;
`
	row := q.pool.QueryRow(ctx, query, time.Now().Add(q.leaseTimeout), token)
	lease := &Lease{token: token}
	if err := row.Scan(&lease.messageID, &lease.JobID, &lease.Attempts); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEmpty
		}
		return nil, fmt.Errorf("queue claim: %w", err)
	}
	return lease, nil
}

// Ack deletes the leased message. The lease token guards against settling a
// message whose lease already expired and was re-claimed elsewhere.
func (q *PostgresQueue) Ack(ctx context.Context, lease *Lease) error {
	query := `
DELETE FROM queue_messages
WHERE id = $1 AND lease_token = $2;
`
	_, err := q.pool.Exec(ctx, query, lease.messageID, lease.token)
	if err != nil {
		return fmt.Errorf("queue ack: %w", err)
	}
	return nil
}

// Nack releases the lease and schedules redelivery after delay.
func (q *PostgresQueue) Nack(ctx context.Context, lease *Lease, delay time.Duration) error {
	query := `
UPDATE queue_messages
SET leased_until = NULL,
    lease_token  = NULL,
    visible_at   = $3
WHERE id = $1 AND lease_token = $2;
`
	_, err := q.pool.Exec(ctx, query, lease.messageID, lease.token, time.Now().Add(delay))
	if err != nil {
		return fmt.Errorf("queue nack: %w", err)
	}
	return nil
}
