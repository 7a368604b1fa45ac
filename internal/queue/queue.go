// Package queue provides the durable, at-least-once work channel between the
// submission API and the pipeline workers. Messages carry job ids; a consumed
// message is held under a lease and redelivered if the lease expires before
// the consumer acknowledges it.
package queue

import (
	"context"
	"errors"
	"time"
)

// ErrEmpty is returned by a single claim attempt when no message is visible.
var ErrEmpty = errors.New("queue: no message available")

// Lease is a temporary ownership grant over one message. It must be settled
// with Ack or Nack; an unsettled lease expires and the message is redelivered.
type Lease struct {
	JobID    string
	Attempts int

	messageID string
	token     string
}

// Queue is the work queue contract.
type Queue interface {
	// Publish enqueues a job id for processing.
	Publish(ctx context.Context, jobID string) error
	// Consume blocks until a message is available (polling) or ctx is done.
	Consume(ctx context.Context) (*Lease, error)
	// Ack permanently removes the leased message.
	Ack(ctx context.Context, lease *Lease) error
	// Nack releases the lease and makes the message visible again after delay.
	Nack(ctx context.Context, lease *Lease, delay time.Duration) error
}

const (
	backoffBase = 5 * time.Second
	backoffMax  = 5 * time.Minute
)

// Backoff returns the redelivery delay for a message on its nth attempt,
// doubling from backoffBase up to backoffMax.
func Backoff(attempts int) time.Duration {
	d := backoffBase
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= backoffMax {
			return backoffMax
		}
	}
	return d
}
