// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"time"

	"dealpulse_backend/platform/events"

	"github.com/google/uuid"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// =============================================================================
// Activity Domain Events
// =============================================================================

// ActivityCreated is published when any interaction activity is recorded,
// regardless of source (webhook, user action, sync).
type ActivityCreated struct {
	BaseEvent
	ActivityID    uuid.UUID `json:"activityId"`
	ProspectID    uuid.UUID `json:"prospectId"`
	OpportunityID uuid.UUID `json:"opportunityId"`
	EventDate     time.Time `json:"eventDate"`
}

func (e ActivityCreated) EventName() string { return "activities.created" }

// ActivityProcessed is published after the pipeline committed intelligence
// derived from one activity.
type ActivityProcessed struct {
	BaseEvent
	ActivityID    uuid.UUID `json:"activityId"`
	OpportunityID uuid.UUID `json:"opportunityId"`
}

func (e ActivityProcessed) EventName() string { return "intelligence.activity.processed" }

// =============================================================================
// Reprocessing Domain Events
// =============================================================================

// ReprocessingScheduled is published when a debounced opportunity-wide
// reprocessing run is scheduled or rescheduled.
type ReprocessingScheduled struct {
	BaseEvent
	ProspectID    uuid.UUID `json:"prospectId"`
	OpportunityID uuid.UUID `json:"opportunityId"`
	ScheduledFor  time.Time `json:"scheduledFor"`
}

func (e ReprocessingScheduled) EventName() string { return "reprocessing.scheduled" }

// ReprocessingCompleted is published after a full chronological replay of an
// opportunity's activities finished.
type ReprocessingCompleted struct {
	BaseEvent
	OpportunityID uuid.UUID `json:"opportunityId"`
	Processed     int       `json:"processed"`
}

func (e ReprocessingCompleted) EventName() string { return "reprocessing.completed" }

// =============================================================================
// Failure Events
// =============================================================================

// PipelineFailed is published when an activity pipeline run or a reprocessing
// sweep fails terminally. Consumed by the operator alert notifier so that
// failures are never silent.
type PipelineFailed struct {
	BaseEvent
	ActivityID    *uuid.UUID `json:"activityId,omitempty"`
	OpportunityID uuid.UUID  `json:"opportunityId"`
	Batch         bool       `json:"batch"`
	Reason        string     `json:"reason"`
}

func (e PipelineFailed) EventName() string { return "intelligence.pipeline.failed" }
