// Package engine contains the queue dispatcher and the routing decision for
// incoming activities: process now, append to a running sweep, or schedule a
// full re-derivation.
package engine

import (
	"context"
	"time"

	"dealpulse_backend/internal/queue"
	"dealpulse_backend/internal/reprocess"
	"dealpulse_backend/platform/apperr"
	"dealpulse_backend/platform/logger"

	"github.com/google/uuid"
)

// BatchController is the slice of the reprocessing controller the decision
// service uses.
type BatchController interface {
	Status(ctx context.Context, opportunityID uuid.UUID) (reprocess.State, error)
	Schedule(ctx context.Context, prospectID, opportunityID uuid.UUID) error
	Restart(ctx context.Context, prospectID, opportunityID uuid.UUID) error
	AppendToRunning(opportunityID, activityID uuid.UUID) bool
}

// Pipeline runs the per-activity derivation.
type Pipeline interface {
	ProcessActivityForIntelligence(ctx context.Context, activityID, opportunityID uuid.UUID) error
}

// Decisions classifies a dequeued activity as real-time or historical and
// routes it. It holds no mutable state of its own: every schedule or restart
// goes through the queue store's reprocessing upsert.
type Decisions struct {
	controller BatchController
	pipeline   Pipeline
	window     time.Duration
	clock      func() time.Time
	log        *logger.Logger
}

func NewDecisions(controller BatchController, pipeline Pipeline, realtimeWindow time.Duration, log *logger.Logger) *Decisions {
	return &Decisions{
		controller: controller,
		pipeline:   pipeline,
		window:     realtimeWindow,
		clock:      time.Now,
		log:        log,
	}
}

// IsHistorical reports whether the event timestamp falls in the past beyond
// the real-time window. Future-dated events (scheduled meetings) are
// real-time: they do not invalidate previously derived ordering.
func (d *Decisions) IsHistorical(eventDate time.Time) bool {
	return eventDate.Before(d.clock().Add(-d.window))
}

// Route applies the decision table to one claimed activity entry:
//
//	real-time, no batch  -> run the pipeline now
//	real-time, batch     -> append to the running sweep's worklist
//	historical, no batch -> schedule a debounced reprocessing
//	historical, batch    -> restart the reprocessing
func (d *Decisions) Route(ctx context.Context, entry queue.Entry) error {
	if entry.Kind != queue.KindActivity || entry.ActivityID == nil || entry.EventDate == nil {
		return apperr.Internal("decision service received a non-activity entry")
	}
	activityID := *entry.ActivityID

	if d.IsHistorical(*entry.EventDate) {
		state, err := d.controller.Status(ctx, entry.OpportunityID)
		if err != nil {
			return err
		}
		if state.Phase == reprocess.PhaseRunning {
			d.log.Info("historical activity during batch, restarting reprocessing",
				"activityId", activityID, "opportunityId", entry.OpportunityID)
			return d.controller.Restart(ctx, entry.ProspectID, entry.OpportunityID)
		}
		d.log.Info("historical activity, scheduling reprocessing",
			"activityId", activityID, "opportunityId", entry.OpportunityID)
		return d.controller.Schedule(ctx, entry.ProspectID, entry.OpportunityID)
	}

	if d.controller.AppendToRunning(entry.OpportunityID, activityID) {
		return nil
	}

	return d.pipeline.ProcessActivityForIntelligence(ctx, activityID, entry.OpportunityID)
}
