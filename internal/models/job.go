package models

import (
	"encoding/json"
	"time"
)

// Job states persisted in Postgres. The lifecycle is
// waiting -> active -> completed | failed, with the terminal states immutable.
const (
	StatusWaiting   = "waiting"
	StatusActive    = "active"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Queue names. The article queue carries only article generation; content-ops
// carries SEO and embedding jobs, which are cheap by comparison.
const (
	QueueArticle    = "article"
	QueueContentOps = "content-ops"
)

// Job names dispatched by the worker.
const (
	JobGenerateArticle    = "generate-article"
	JobGenerateSEO        = "generate-seo"
	JobGenerateEmbeddings = "generate-embeddings"
)

// Queues lists every queue the worker drains.
var Queues = []string{QueueArticle, QueueContentOps}

// KnownQueue reports whether name is one of the fixed queues.
func KnownQueue(name string) bool {
	for _, q := range Queues {
		if q == name {
			return true
		}
	}
	return false
}

// JobsForQueue maps each queue to the job names it accepts.
func JobsForQueue(queue string) []string {
	switch queue {
	case QueueArticle:
		return []string{JobGenerateArticle}
	case QueueContentOps:
		return []string{JobGenerateSEO, JobGenerateEmbeddings}
	default:
		return nil
	}
}

// Job is a unit of asynchronous work persisted in Postgres. The queue in Redis
// carries only job IDs; this row is the system of record.
type Job struct {
	ID            string          `json:"id"`
	QueueName     string          `json:"queue_name"`
	JobName       string          `json:"job_name"`
	Payload       json.RawMessage `json:"payload"`
	Status        string          `json:"status"`
	Progress      int             `json:"progress"`
	Result        json.RawMessage `json:"result,omitempty"`
	FailureReason *string         `json:"failure_reason,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Terminal reports whether the job is in a final state.
func (j Job) Terminal() bool {
	return j.Status == StatusCompleted || j.Status == StatusFailed
}

// JobStatus is the read-only view returned to pollers.
type JobStatus struct {
	ID       string          `json:"id"`
	State    string          `json:"state"`
	Progress int             `json:"progress"`
	Result   json.RawMessage `json:"result,omitempty"`
	Reason   *string         `json:"failure_reason,omitempty"`
}

// StatusView projects a Job into its polling shape.
func (j Job) StatusView() JobStatus {
	return JobStatus{
		ID:       j.ID,
		State:    j.Status,
		Progress: j.Progress,
		Result:   j.Result,
		Reason:   j.FailureReason,
	}
}
