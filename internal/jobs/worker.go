package jobs

import (
	"context"
	"log/slog"
	"time"
)

// Handler executes one job. A returned error marks the job failed with the
// error recorded on the row; the queue's own retry policy (if any) is an
// external concern and is not driven here.
type Handler func(ctx context.Context, job *Job) error

// Worker drains one queue sequentially. Run one Worker per queue.
type Worker struct {
	queue        *Queue
	queueName    string
	handlers     map[Kind]Handler
	pollInterval time.Duration
	logger       *slog.Logger
}

// NewWorker creates a worker for the named queue.
func NewWorker(queue *Queue, queueName string, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		queue:        queue,
		queueName:    queueName,
		handlers:     make(map[Kind]Handler),
		pollInterval: time.Second,
		logger:       logger,
	}
}

// Register installs the handler for a job kind.
func (w *Worker) Register(kind Kind, h Handler) {
	w.handlers[kind] = h
}

// Run polls for due jobs until ctx is cancelled. Jobs are processed one at
// a time; a job runs to completion or failure, never cancelled mid-flight.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	w.logger.Info("jobs: worker starting", "queue", w.queueName)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("jobs: worker stopping", "queue", w.queueName)
			return
		case <-ticker.C:
			// Drain everything currently due before the next tick.
			for {
				processed, err := w.processNext(ctx)
				if err != nil {
					w.logger.Error("jobs: poll", "queue", w.queueName, "error", err)
					break
				}
				if !processed {
					break
				}
			}
		}
	}
}

// processNext claims and runs one job. Returns false when the queue has
// nothing due.
func (w *Worker) processNext(ctx context.Context) (bool, error) {
	job, err := w.queue.Poll(ctx, w.queueName)
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}

	h, ok := w.handlers[job.Kind]
	if !ok {
		w.logger.Error("jobs: no handler", "kind", job.Kind, "id", job.ID)
		if err := w.queue.Fail(ctx, job.ID, "no handler registered for kind "+string(job.Kind)); err != nil {
			w.logger.Error("jobs: record failure", "id", job.ID, "error", err)
		}
		return true, nil
	}

	w.logger.Info("jobs: processing", "queue", w.queueName, "kind", job.Kind,
		"id", job.ID, "triggered_by", job.TriggeredBy)

	start := time.Now()
	if err := h(ctx, job); err != nil {
		w.logger.Warn("jobs: failed", "kind", job.Kind, "id", job.ID,
			"duration", time.Since(start), "error", err)
		if ferr := w.queue.Fail(ctx, job.ID, err.Error()); ferr != nil {
			w.logger.Error("jobs: record failure", "id", job.ID, "error", ferr)
		}
		return true, nil
	}

	if err := w.queue.Complete(ctx, job.ID); err != nil {
		w.logger.Error("jobs: record completion", "id", job.ID, "error", err)
	}
	w.logger.Info("jobs: completed", "kind", job.Kind, "id", job.ID,
		"duration", time.Since(start))
	return true, nil
}
