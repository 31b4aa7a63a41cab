package jobs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"taskhive/internal/config"
	"taskhive/internal/logging"
	"taskhive/internal/observability"
)

// HandlerFunc executes one job. The payload is the job's raw JSON. Returning
// OutcomeRetry or an error routes the job through backoff; OutcomeSuccess
// and OutcomeSkipped complete it.
type HandlerFunc func(ctx context.Context, payload []byte) (Outcome, error)

// Worker polls the queue and runs handlers until its context is cancelled.
type Worker struct {
	queue    *Queue
	cfg      config.WorkerConfig
	logger   logging.Logger
	metrics  *observability.MetricsCollector
	workerID string

	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

// NewWorker builds a worker with a unique id for lock attribution.
func NewWorker(queue *Queue, cfg config.WorkerConfig, logger logging.Logger, metrics *observability.MetricsCollector) (*Worker, error) {
	if queue == nil {
		return nil, errors.New("worker requires queue")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.StaleLockTimeout <= 0 {
		cfg.StaleLockTimeout = 600 * time.Second
	}
	host, _ := os.Hostname()
	return &Worker{
		queue:    queue,
		cfg:      cfg,
		logger:   logging.OrNop(logger),
		metrics:  metrics,
		workerID: fmt.Sprintf("%s-%s", host, uuid.NewString()[:8]),
		handlers: make(map[string]HandlerFunc),
	}, nil
}

// Register binds a handler to a job type. Jobs with no handler go straight
// to the dead letter state.
func (w *Worker) Register(jobType string, h HandlerFunc) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers[jobType] = h
}

func (w *Worker) handler(jobType string) (HandlerFunc, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	h, ok := w.handlers[jobType]
	return h, ok
}

// Run is the worker loop. It claims and executes jobs until ctx is
// cancelled; an in-flight job always finishes before Run returns.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("worker %s starting, poll=%s batch=%d", w.workerID, w.cfg.PollInterval, w.cfg.BatchSize)
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("worker %s stopping", w.workerID)
			return ctx.Err()
		case <-timer.C:
		}

		if released, err := w.queue.ReleaseStale(ctx, w.cfg.StaleLockTimeout); err != nil {
			w.logger.Error("release stale locks: %v", err)
		} else if released > 0 {
			w.logger.Warn("released %d stale job locks", released)
		}

		claimed := 0
		for claimed < w.cfg.BatchSize && ctx.Err() == nil {
			job, err := w.queue.Claim(ctx, w.workerID)
			if err != nil {
				w.logger.Error("claim job: %v", err)
				break
			}
			if job == nil {
				break
			}
			claimed++
			w.execute(ctx, job)
		}

		if ctx.Err() != nil {
			w.logger.Info("worker %s stopping", w.workerID)
			return ctx.Err()
		}
		if claimed == w.cfg.BatchSize {
			timer.Reset(0)
		} else {
			timer.Reset(w.cfg.PollInterval)
		}
	}
}

// execute runs one claimed job through its handler and settles the queue
// row. Completion runs on context.Background so shutdown cannot strand a
// finished job in processing.
func (w *Worker) execute(ctx context.Context, job *Job) {
	start := time.Now()
	settleCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	h, ok := w.handler(job.Type)
	if !ok {
		w.logger.Error("no handler for job type %s, dead-lettering %s", job.Type, job.ID)
		job.Attempts = job.MaxAttempts
		if _, err := w.queue.Retry(settleCtx, job, fmt.Errorf("no handler registered for %s", job.Type)); err != nil {
			w.logger.Error("dead-letter job %s: %v", job.ID, err)
		}
		w.metrics.RecordDeadJob(settleCtx, job.Type)
		return
	}

	outcome, err := w.runHandler(ctx, h, job)
	switch {
	case err == nil && (outcome == OutcomeSuccess || outcome == OutcomeSkipped):
		if cerr := w.queue.Complete(settleCtx, job.ID, outcome); cerr != nil {
			w.logger.Error("complete job %s: %v", job.ID, cerr)
		}
	default:
		if err == nil {
			err = fmt.Errorf("handler requested retry")
		}
		outcome = OutcomeRetry
		dead, rerr := w.queue.Retry(settleCtx, job, err)
		if rerr != nil {
			w.logger.Error("requeue job %s: %v", job.ID, rerr)
		}
		if dead {
			outcome = OutcomeError
			w.logger.Error("job %s (%s) dead after %d attempts: %v", job.ID, job.Type, job.Attempts, err)
			w.metrics.RecordDeadJob(settleCtx, job.Type)
		} else {
			w.logger.Warn("job %s (%s) attempt %d failed, retrying: %v", job.ID, job.Type, job.Attempts, err)
		}
	}
	w.metrics.RecordJob(settleCtx, job.Type, string(outcome), time.Since(start))
}

// runHandler isolates handler panics so one bad job cannot take the worker
// down.
func (w *Worker) runHandler(ctx context.Context, h HandlerFunc, job *Job) (outcome Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			outcome = OutcomeError
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(ctx, job.Payload)
}
