package relay

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	"telegram-translator/internal/logging"
)

// TaskTypeRelayPost is the asynq task carrying a Job.
const TaskTypeRelayPost = "relay:post"

// AsynqQueue enqueues jobs on Redis so a worker process can run them.
type AsynqQueue struct {
	client *asynq.Client
}

// NewAsynqQueue wraps an asynq client.
func NewAsynqQueue(client *asynq.Client) *AsynqQueue {
	return &AsynqQueue{client: client}
}

// NewRelayPostTask encodes job as a task. Tasks are never retried: the post is already marked
// processed and a retry could deliver it twice.
func NewRelayPostTask(job Job) (*asynq.Task, error) {
	payload, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("failed to encode job %s: %w", job.ID, err)
	}
	return asynq.NewTask(TaskTypeRelayPost, payload, asynq.MaxRetry(0), asynq.TaskID(job.ID)), nil
}

// Enqueue implements Queue.
func (q *AsynqQueue) Enqueue(ctx context.Context, job Job) error {
	task, err := NewRelayPostTask(job)
	if err != nil {
		return err
	}
	if _, err := q.client.EnqueueContext(ctx, task); err != nil {
		return fmt.Errorf("failed to enqueue job %s: %w", job.ID, err)
	}
	return nil
}

// AsynqWorker consumes relay tasks and runs them through a Processor.
type AsynqWorker struct {
	server *asynq.Server
	proc   Processor
	logger logging.Logger
}

// NewAsynqWorker creates a worker with the given concurrency.
func NewAsynqWorker(redis asynq.RedisClientOpt, concurrency int, proc Processor, logger logging.Logger) *AsynqWorker {
	if logger == nil {
		logger = logging.Discard()
	}
	server := asynq.NewServer(redis, asynq.Config{
		Concurrency: concurrency,
		Logger:      logger,
	})
	return &AsynqWorker{server: server, proc: proc, logger: logger}
}

// HandleRelayPostTask decodes and processes one task. Undecodable payloads are dropped.
func (w *AsynqWorker) HandleRelayPostTask(ctx context.Context, task *asynq.Task) error {
	var job Job
	if err := json.Unmarshal(task.Payload(), &job); err != nil {
		w.logger.WithError(err).Error("Dropping undecodable relay task")
		return fmt.Errorf("decode relay task: %v: %w", err, asynq.SkipRetry)
	}
	w.proc.Process(ctx, job)
	return nil
}

// Run serves tasks until ctx is done.
func (w *AsynqWorker) Run(ctx context.Context) error {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskTypeRelayPost, w.HandleRelayPostTask)

	w.logger.Info("Starting the Asynq worker...")
	if err := w.server.Start(mux); err != nil {
		return fmt.Errorf("could not start asynq worker: %w", err)
	}
	<-ctx.Done()
	w.server.Shutdown()
	return nil
}
