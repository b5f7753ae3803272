package relay

import (
	"context"
	"errors"
	"sync"

	"telegram-translator/internal/logging"
)

// ErrQueueClosed is returned by Enqueue after Shutdown.
var ErrQueueClosed = errors.New("queue is shut down")

// Processor runs a job to completion.
type Processor interface {
	Process(ctx context.Context, job Job) Outcome
}

// MemoryQueue runs every job on its own goroutine. With a positive limit at most that many
// pipelines run at once; the rest wait without blocking Enqueue.
type MemoryQueue struct {
	ctx    context.Context
	proc   Processor
	slots  chan struct{}
	logger logging.Logger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewMemoryQueue creates an in-process queue. Jobs run with ctx, so cancelling it aborts
// pipelines that are still waiting.
func NewMemoryQueue(ctx context.Context, proc Processor, maxInFlight int, logger logging.Logger) *MemoryQueue {
	if logger == nil {
		logger = logging.Discard()
	}
	q := &MemoryQueue{ctx: ctx, proc: proc, logger: logger}
	if maxInFlight > 0 {
		q.slots = make(chan struct{}, maxInFlight)
	}
	return q
}

// Enqueue starts job in the background.
func (q *MemoryQueue) Enqueue(_ context.Context, job Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	q.wg.Add(1)
	go q.run(job)
	return nil
}

func (q *MemoryQueue) run(job Job) {
	defer q.wg.Done()
	if q.slots != nil {
		select {
		case q.slots <- struct{}{}:
			defer func() { <-q.slots }()
		case <-q.ctx.Done():
			q.logger.WithField("correlation_id", job.ID).Warn("Shutdown before post could start")
			return
		}
	}
	q.proc.Process(q.ctx, job)
}

// Shutdown stops accepting jobs and waits for running ones until ctx is done.
func (q *MemoryQueue) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
