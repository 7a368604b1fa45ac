package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memoryMessage struct {
	id          string
	jobID       string
	visibleAt   time.Time
	leasedUntil time.Time
	leaseToken  string
	attempts    int
	createdAt   time.Time
}

// MemoryQueue is an in-process Queue with the same lease semantics as the
// Postgres implementation. It backs tests and single-process development
// runs where the API and worker share a binary.
type MemoryQueue struct {
	mu           sync.Mutex
	messages     []*memoryMessage
	leaseTimeout time.Duration
	pollInterval time.Duration
	now          func() time.Time
}

// NewMemoryQueue creates an in-memory queue.
func NewMemoryQueue(leaseTimeout, pollInterval time.Duration) *MemoryQueue {
	if leaseTimeout <= 0 {
		leaseTimeout = 5 * time.Minute
	}
	if pollInterval <= 0 {
		pollInterval = 10 * time.Millisecond
	}
	return &MemoryQueue{leaseTimeout: leaseTimeout, pollInterval: pollInterval, now: time.Now}
}

// Publish enqueues a job id for processing.
func (q *MemoryQueue) Publish(_ context.Context, jobID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	now := q.now()
	q.messages = append(q.messages, &memoryMessage{
		id:        uuid.NewString(),
		jobID:     jobID,
		visibleAt: now,
		createdAt: now,
	})
	return nil
}

// Consume polls for the next visible message until one is claimed or ctx is
// done.
func (q *MemoryQueue) Consume(ctx context.Context) (*Lease, error) {
	for {
		if lease, err := q.TryClaim(); err == nil {
			return lease, nil
		} else if !errors.Is(err, ErrEmpty) {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(q.pollInterval):
		}
	}
}

// TryClaim performs a single non-blocking claim attempt.
func (q *MemoryQueue) TryClaim() (*Lease, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	now := q.now()
	var oldest *memoryMessage
	for _, m := range q.messages {
		if m.visibleAt.After(now) {
			continue
		}
		if !m.leasedUntil.IsZero() && m.leasedUntil.After(now) {
			continue
		}
		if oldest == nil || m.createdAt.Before(oldest.createdAt) {
			oldest = m
		}
	}
	if oldest == nil {
		return nil, ErrEmpty
	}
	oldest.leasedUntil = now.Add(q.leaseTimeout)
	oldest.leaseToken = uuid.NewString()
	oldest.attempts++
	return &Lease{
		JobID:     oldest.jobID,
		Attempts:  oldest.attempts,
		messageID: oldest.id,
		token:     oldest.leaseToken,
	}, nil
}

// Ack permanently removes the leased message.
func (q *MemoryQueue) Ack(_ context.Context, lease *Lease) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, m := range q.messages {
		if m.id == lease.messageID && m.leaseToken == lease.token {
			q.messages = append(q.messages[:i], q.messages[i+1:]...)
			return nil
		}
	}
	return nil
}

// Nack releases the lease and schedules redelivery after delay.
func (q *MemoryQueue) Nack(_ context.Context, lease *Lease, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, m := range q.messages {
		if m.id == lease.messageID && m.leaseToken == lease.token {
			m.leasedUntil = time.Time{}
			m.leaseToken = ""
			m.visibleAt = q.now().Add(delay)
			return nil
		}
	}
	return nil
}

// Depth reports the number of outstanding messages, leased or not.
func (q *MemoryQueue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.messages)
}
