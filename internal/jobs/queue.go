// Package jobs provides the priority job queue, its workers, the background
// scheduler, and the processor that executes scraping jobs.
//
// Two logical queues share one jobs table: the foreground queue serves
// on-demand refreshes, the background queue serves maintenance. Each queue
// is drained by its own single worker so a long catalog scan never blocks an
// on-demand refresh, while per-queue concurrency stays at one to remain
// polite to the scraped site.
package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hazyhaar/vitrine/dbopen"
	"github.com/hazyhaar/vitrine/idgen"
)

// Status is the lifecycle state of a job.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether the status is completed or failed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Kind identifies what a job does.
type Kind string

const (
	KindRefreshNavigation Kind = "refresh-navigation"
	KindRefreshCategory   Kind = "refresh-category"
	KindRefreshStale      Kind = "refresh-stale"
	KindFullScan          Kind = "full-scan"
)

// TargetType returns the entity type the kind operates on.
func (k Kind) TargetType() string {
	switch k {
	case KindRefreshNavigation:
		return "navigation"
	default:
		return "category"
	}
}

// Priority orders jobs within a queue. Lower value drains first.
type Priority int

const (
	PriorityHigh   Priority = 0
	PriorityMedium Priority = 1
	PriorityLow    Priority = 2
)

// Trigger records what caused a job to be enqueued. Observability only,
// except that user-triggered category refreshes are always high priority.
type Trigger string

const (
	TriggerSystem    Trigger = "system"
	TriggerUser      Trigger = "user"
	TriggerScheduler Trigger = "scheduler"
)

// Queue names.
const (
	QueueForeground = "foreground"
	QueueBackground = "background"
)

// Job is one unit of scheduled or on-demand scraping work.
type Job struct {
	ID          string         `json:"id"`
	Kind        Kind           `json:"kind"`
	TargetType  string         `json:"target_type"`
	TargetURL   string         `json:"target_url"`
	Queue       string         `json:"queue"`
	Priority    Priority       `json:"priority"`
	TriggeredBy Trigger        `json:"triggered_by"`
	Status      Status         `json:"status"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	ErrorLog    string         `json:"error_log,omitempty"`
	RunAfter    time.Time      `json:"run_after"`
	CreatedAt   time.Time      `json:"created_at"`
	StartedAt   *time.Time     `json:"started_at,omitempty"`
	FinishedAt  *time.Time     `json:"finished_at,omitempty"`
}

// Queue is the SQLite-backed job queue. Delays are declared at submit time
// (run_after), so startup staggering needs no wall-clock sleeps.
type Queue struct {
	db  *sql.DB
	id  idgen.Generator
	now func() time.Time
}

// NewQueue creates a queue over an already-opened database whose schema
// includes the jobs table.
func NewQueue(db *sql.DB) *Queue {
	return &Queue{
		db:  db,
		id:  idgen.Prefixed("job_", idgen.UUIDv7()),
		now: time.Now,
	}
}

// Submit enqueues a pending job after the declared delay. The job's Queue
// defaults by kind: user-facing category refreshes go foreground, everything
// else background. Returns the job id.
func (q *Queue) Submit(ctx context.Context, job *Job, delay time.Duration) (string, error) {
	if job.ID == "" {
		job.ID = q.id()
	}
	if job.TargetType == "" {
		job.TargetType = job.Kind.TargetType()
	}
	if job.Queue == "" {
		if job.Kind == KindRefreshCategory && job.TriggeredBy == TriggerUser {
			job.Queue = QueueForeground
		} else {
			job.Queue = QueueBackground
		}
	}
	if job.TriggeredBy == "" {
		job.TriggeredBy = TriggerSystem
	}
	// User-triggered category refreshes are always high priority.
	if job.Kind == KindRefreshCategory && job.TriggeredBy == TriggerUser {
		job.Priority = PriorityHigh
	}

	metadata := "{}"
	if len(job.Metadata) > 0 {
		raw, err := json.Marshal(job.Metadata)
		if err != nil {
			return "", fmt.Errorf("jobs: marshal metadata: %w", err)
		}
		metadata = string(raw)
	}

	now := q.now()
	job.Status = StatusPending
	job.CreatedAt = now
	job.RunAfter = now.Add(delay)

	_, err := dbopen.Exec(ctx, q.db, `
		INSERT INTO jobs (id, kind, target_type, target_url, queue, priority,
			triggered_by, status, metadata_json, run_after, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, string(job.Kind), job.TargetType, job.TargetURL, job.Queue, int(job.Priority),
		string(job.TriggeredBy), string(StatusPending), metadata,
		job.RunAfter.UnixMilli(), now.UnixMilli())
	if err != nil {
		return "", fmt.Errorf("jobs: insert job: %w", err)
	}
	return job.ID, nil
}

// Poll claims the next due pending job on the named queue, highest priority
// first, oldest first within a priority. Returns nil, nil when the queue has
// nothing due.
func (q *Queue) Poll(ctx context.Context, queue string) (*Job, error) {
	now := q.now()

	var job *Job
	err := dbopen.RunTx(ctx, q.db, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `
			SELECT id, kind, target_type, target_url, queue, priority,
				triggered_by, metadata_json, run_after, created_at
			FROM jobs
			WHERE queue = ? AND status = ? AND run_after <= ?
			ORDER BY priority ASC, created_at ASC
			LIMIT 1`, queue, string(StatusPending), now.UnixMilli())

		j, err := scanPending(row)
		if err != nil || j == nil {
			return err
		}

		started := now
		j.Status = StatusProcessing
		j.StartedAt = &started

		if _, err := tx.ExecContext(ctx,
			`UPDATE jobs SET status = ?, started_at = ? WHERE id = ?`,
			string(StatusProcessing), started.UnixMilli(), j.ID); err != nil {
			return err
		}
		job = j
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("jobs: poll %s: %w", queue, err)
	}
	return job, nil
}

// Complete marks a job completed and stamps finished_at.
func (q *Queue) Complete(ctx context.Context, id string) error {
	_, err := dbopen.Exec(ctx, q.db,
		`UPDATE jobs SET status = ?, finished_at = ? WHERE id = ?`,
		string(StatusCompleted), q.now().UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("jobs: complete %s: %w", id, err)
	}
	return nil
}

// Fail marks a job failed with its error message and stamps finished_at.
func (q *Queue) Fail(ctx context.Context, id, errMsg string) error {
	_, err := dbopen.Exec(ctx, q.db,
		`UPDATE jobs SET status = ?, error_log = ?, finished_at = ? WHERE id = ?`,
		string(StatusFailed), errMsg, q.now().UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("jobs: fail %s: %w", id, err)
	}
	return nil
}

// HasActive reports whether a pending or processing job of the given kind
// exists. The scheduler uses it to avoid stacking identical maintenance jobs.
func (q *Queue) HasActive(ctx context.Context, kind Kind) (bool, error) {
	var count int
	err := q.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM jobs WHERE kind = ? AND status IN (?, ?)`,
		string(kind), string(StatusPending), string(StatusProcessing)).Scan(&count)
	return count > 0, err
}

// PendingCount returns the number of jobs not yet in a terminal state,
// across both queues.
func (q *Queue) PendingCount(ctx context.Context) (int, error) {
	var n int
	err := q.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM jobs WHERE status IN (?, ?)`,
		string(StatusPending), string(StatusProcessing)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("jobs: pending count: %w", err)
	}
	return n, nil
}

// Get retrieves a job by id. Returns nil, nil when absent.
func (q *Queue) Get(ctx context.Context, id string) (*Job, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT id, kind, target_type, target_url, queue, priority, triggered_by,
			status, metadata_json, error_log, run_after, created_at, started_at, finished_at
		FROM jobs WHERE id = ?`, id)

	var j Job
	var metadata string
	var errLog sql.NullString
	var runAfter, createdAt int64
	var startedAt, finishedAt sql.NullInt64

	err := row.Scan(&j.ID, &j.Kind, &j.TargetType, &j.TargetURL, &j.Queue, &j.Priority,
		&j.TriggeredBy, &j.Status, &metadata, &errLog, &runAfter, &createdAt,
		&startedAt, &finishedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("jobs: get %s: %w", id, err)
	}

	if metadata != "" && metadata != "{}" {
		if err := json.Unmarshal([]byte(metadata), &j.Metadata); err != nil {
			return nil, fmt.Errorf("jobs: unmarshal metadata: %w", err)
		}
	}
	j.ErrorLog = errLog.String
	j.RunAfter = time.UnixMilli(runAfter)
	j.CreatedAt = time.UnixMilli(createdAt)
	if startedAt.Valid {
		t := time.UnixMilli(startedAt.Int64)
		j.StartedAt = &t
	}
	if finishedAt.Valid {
		t := time.UnixMilli(finishedAt.Int64)
		j.FinishedAt = &t
	}
	return &j, nil
}

func scanPending(row *sql.Row) (*Job, error) {
	var j Job
	var metadata string
	var runAfter, createdAt int64

	err := row.Scan(&j.ID, &j.Kind, &j.TargetType, &j.TargetURL, &j.Queue,
		&j.Priority, &j.TriggeredBy, &metadata, &runAfter, &createdAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan job: %w", err)
	}

	if metadata != "" && metadata != "{}" {
		if err := json.Unmarshal([]byte(metadata), &j.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	j.Status = StatusPending
	j.RunAfter = time.UnixMilli(runAfter)
	j.CreatedAt = time.UnixMilli(createdAt)
	return &j, nil
}
