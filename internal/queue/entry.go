// Package queue is the durable work queue for intelligence processing. Every
// entry is persisted before the caller is acknowledged, so a crash between
// enqueue and processing loses no work; the dispatcher resumes from pending
// and stale processing entries on restart.
package queue

import (
	"time"

	"github.com/google/uuid"
)

// Kind discriminates the two entry variants sharing the queue.
type Kind string

const (
	// KindActivity is one activity awaiting its pipeline run.
	KindActivity Kind = "activity"
	// KindReprocessing is an opportunity-wide replay. At most one live
	// reprocessing entry exists per opportunity; rescheduling updates the
	// existing row in place.
	KindReprocessing Kind = "opportunity_reprocessing"
)

// Status is the lifecycle state of a queue entry.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusDone       Status = "done"
	StatusFailed     Status = "failed"
)

// Entry is one unit of queued work.
type Entry struct {
	ID            uuid.UUID
	Kind          Kind
	ProspectID    uuid.UUID
	OpportunityID uuid.UUID

	// ActivityID and EventDate are set for activity entries only. EventDate
	// is denormalized from the activity so eligibility ordering happens in
	// one query.
	ActivityID *uuid.UUID
	EventDate  *time.Time

	// ScheduledFor is set for reprocessing entries only: the debounce
	// horizon before which the entry is not eligible.
	ScheduledFor *time.Time

	Status     Status
	EnqueuedAt time.Time
	StartedAt  *time.Time
	RetryCount int

	// Processed/Total mirror a running sweep's progress so the status
	// surface works across processes.
	Processed int
	Total     int

	LastError *string
}

// Due reports whether the entry is eligible to run at the given instant.
func (e Entry) Due(now time.Time) bool {
	if e.Status != StatusPending {
		return false
	}
	if e.Kind == KindReprocessing && e.ScheduledFor != nil {
		return !now.Before(*e.ScheduledFor)
	}
	return true
}
