package pipeline

import (
	"context"
	"errors"
	"sync"

	"taleweaver/internal/domain"
	"taleweaver/internal/infra"
	"taleweaver/internal/queue"
)

// Worker pulls messages from the queue and runs the orchestrator to
// completion before acknowledging. Each worker goroutine handles one message
// at a time; backend calls may block for the duration of their timeout.
type Worker struct {
	queue        queue.Queue
	orchestrator *Orchestrator
	count        int
	logger       infra.Logger
}

// NewWorker creates a worker pool of the given size.
func NewWorker(q queue.Queue, orchestrator *Orchestrator, count int, logger infra.Logger) *Worker {
	if count <= 0 {
		count = 1
	}
	return &Worker{queue: q, orchestrator: orchestrator, count: count, logger: logger}
}

// Run consumes until ctx is done.
func (w *Worker) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < w.count; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			w.loop(ctx, n)
		}(i)
	}
	wg.Wait()
}

func (w *Worker) loop(ctx context.Context, n int) {
	logger := w.logger.With().Int("worker", n).Logger()
	logger.Info().Msg("worker: started")
	for {
		lease, err := w.queue.Consume(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				logger.Info().Msg("worker: stopped")
				return
			}
			logger.Error().Err(err).Msg("worker: consume failed")
			continue
		}
		w.handle(ctx, logger, lease)
	}
}

// handle settles exactly one lease: ack on a terminal result, nack for
// redelivery when the story is busy or infrastructure failed.
func (w *Worker) handle(ctx context.Context, logger infra.Logger, lease *queue.Lease) {
	result, err := w.orchestrator.Run(ctx, lease.JobID)
	switch {
	case err == nil:
		logger.Info().Str("job_id", lease.JobID).Str("status", string(result.Status)).Msg("worker: job settled")
		if ackErr := w.queue.Ack(ctx, lease); ackErr != nil {
			logger.Error().Err(ackErr).Str("job_id", lease.JobID).Msg("worker: ack failed")
		}
	case errors.Is(err, domain.ErrNotFound):
		// A message for a job that does not exist can never succeed; drop it
		// instead of looping forever.
		logger.Error().Err(err).Str("job_id", lease.JobID).Msg("worker: dropping message for missing job")
		if ackErr := w.queue.Ack(ctx, lease); ackErr != nil {
			logger.Error().Err(ackErr).Str("job_id", lease.JobID).Msg("worker: ack failed")
		}
	case errors.Is(err, domain.ErrContentBusy):
		logger.Debug().Str("job_id", lease.JobID).Msg("worker: story busy, redelivering")
		if nackErr := w.queue.Nack(ctx, lease, queue.Backoff(lease.Attempts)); nackErr != nil {
			logger.Error().Err(nackErr).Str("job_id", lease.JobID).Msg("worker: nack failed")
		}
	default:
		logger.Error().Err(err).Str("job_id", lease.JobID).Msg("worker: transient failure, redelivering")
		if nackErr := w.queue.Nack(ctx, lease, queue.Backoff(lease.Attempts)); nackErr != nil {
			logger.Error().Err(nackErr).Str("job_id", lease.JobID).Msg("worker: nack failed")
		}
	}
}
