// Package worker drains the job queues and executes registered handlers.
// Handler errors become terminal failed jobs; the loop itself never dies on
// a bad job.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"ai-content-pipeline/internal/models"
	"ai-content-pipeline/internal/queue"
	"ai-content-pipeline/internal/telemetry"
)

// JobStore is the slice of the Postgres store the processor mutates.
// *store.Store implements it; tests substitute an in-memory store.
type JobStore interface {
	GetJob(ctx context.Context, id string) (models.Job, error)
	MarkActive(ctx context.Context, id string) error
	SetProgress(ctx context.Context, id string, progress int) error
	MarkCompleted(ctx context.Context, id string, result json.RawMessage) error
	MarkFailed(ctx context.Context, id string, reason string) error
}

// Handler executes one job and returns its result document. Progress may be
// reported through report at any point while the job is active.
type Handler func(ctx context.Context, job models.Job, report ProgressFunc) (json.RawMessage, error)

// ProgressFunc records progress (0-100) on the running job.
type ProgressFunc func(progress int)

// Processor drives the worker execution loop over the configured queues.
type Processor struct {
	queue        *queue.RedisQueue
	store        JobStore
	handlers     map[string]Handler
	queueNames   []string
	pollInterval time.Duration
	workerID     string
	logger       *slog.Logger
}

// New creates a processor draining queueNames. An empty queueNames drains
// every known queue, which is the single-worker deployment default.
func New(q *queue.RedisQueue, st JobStore, queueNames []string, pollInterval time.Duration, workerID string) *Processor {
	if len(queueNames) == 0 {
		queueNames = models.Queues
	}
	if pollInterval == 0 {
		pollInterval = time.Second
	}
	return &Processor{
		queue:        q,
		store:        st,
		handlers:     make(map[string]Handler),
		queueNames:   queueNames,
		pollInterval: pollInterval,
		workerID:     workerID,
		logger:       slog.Default().With("component", "worker", "worker_id", workerID),
	}
}

// RegisterHandler binds a handler to a job name.
func (p *Processor) RegisterHandler(jobName string, handler Handler) {
	if jobName == "" || handler == nil {
		return
	}
	p.handlers[jobName] = handler
}

// Run polls the queues until context cancellation. Distinct jobs may run
// concurrently across processor instances; a single job is only ever held by
// the worker that leased it.
func (p *Processor) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		p.sweepExpired(ctx)

		jobID, err := p.queue.DequeueWithLease(ctx, p.queueNames...)
		if err != nil || jobID == "" {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.pollInterval):
			}
			continue
		}

		p.processOne(ctx, jobID)
	}
}

// sweepExpired reclaims abandoned leases and refreshes the depth gauge.
// Reclaims are counted, not gauged: the worker that leased the job may be
// gone, so there is no local Inc to undo.
func (p *Processor) sweepExpired(ctx context.Context) {
	if reclaimed, _ := p.queue.RequeueExpired(ctx, time.Now(), 100); len(reclaimed) > 0 {
		p.logger.Warn("requeued expired leases", "count", len(reclaimed))
		telemetry.LeasesReclaimed.Add(float64(len(reclaimed)))
	}
	if depth, err := p.queue.ReadyDepth(ctx); err == nil {
		telemetry.QueueDepthGauge.Set(float64(depth))
	}
}

// heartbeat extends the job's lease while its handler runs, so a handler
// slower than the visibility timeout is not reclaimed and handed to a second
// worker mid-flight.
func (p *Processor) heartbeat(ctx context.Context, jobID string) {
	visibility := p.queue.Visibility()
	ticker := time.NewTicker(visibility / 3)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.queue.ExtendLease(ctx, jobID, visibility); err != nil {
				p.logger.Warn("lease extension failed", "job_id", jobID, "err", err)
			}
		}
	}
}

// processOne executes a single leased job through to a terminal state.
func (p *Processor) processOne(ctx context.Context, jobID string) {
	job, err := p.store.GetJob(ctx, jobID)
	if err != nil {
		// Queue entry without a row; drop it rather than spin on it.
		p.logger.Error("leased job has no record", "job_id", jobID, "err", err)
		_ = p.queue.Ack(ctx, jobID)
		return
	}
	if job.Terminal() {
		_ = p.queue.Ack(ctx, jobID)
		return
	}

	_ = p.store.MarkActive(ctx, job.ID)
	telemetry.InFlightGauge.Inc()
	defer telemetry.InFlightGauge.Dec()

	hbCtx, stopHeartbeat := context.WithCancel(ctx)
	go p.heartbeat(hbCtx, job.ID)
	result, err := p.runJob(ctx, job)
	stopHeartbeat()
	if err != nil {
		p.logger.Warn("job failed", "job_id", job.ID, "job_name", job.JobName, "err", err)
		_ = p.store.MarkFailed(ctx, job.ID, err.Error())
		_ = p.queue.Ack(ctx, job.ID)
		telemetry.JobsFailed.Inc()
		return
	}

	_ = p.store.MarkCompleted(ctx, job.ID, result)
	_ = p.queue.Ack(ctx, job.ID)
	telemetry.JobsCompleted.Inc()
	p.logger.Info("job completed", "job_id", job.ID, "job_name", job.JobName)
}

// runJob dispatches on job name. An unknown name within a known queue is a
// fatal, non-retryable condition for that job: it guards against payload or
// queue misrouting.
func (p *Processor) runJob(ctx context.Context, job models.Job) (json.RawMessage, error) {
	handler, ok := p.handlers[job.JobName]
	if !ok {
		return nil, fmt.Errorf("no handler registered for job %q", job.JobName)
	}
	report := func(progress int) {
		_ = p.store.SetProgress(ctx, job.ID, progress)
	}
	return handler(ctx, job, report)
}
