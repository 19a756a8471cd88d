// Package reprocess owns the lifecycle of opportunity-wide reprocessing
// runs: debounced scheduling, restart, cooperative cancellation and the
// ordered replay itself.
package reprocess

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"dealpulse_backend/internal/activities"
	"dealpulse_backend/internal/events"
	"dealpulse_backend/internal/queue"
	"dealpulse_backend/platform/logger"

	"github.com/google/uuid"
)

// ErrRestarted is returned by Execute when a restart superseded the running
// sweep. The queue row was already re-pended by the restart's upsert, so the
// dispatcher must not finalize it.
var ErrRestarted = errors.New("reprocessing restarted")

// Phase is the controller state for one opportunity.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseScheduled Phase = "scheduled"
	PhaseRunning   Phase = "running"
)

// State is the externally observable controller state.
type State struct {
	Phase        Phase
	Processed    int
	Total        int
	ScheduledFor *time.Time
}

// QueueStore is the slice of the queue store the controller needs.
type QueueStore interface {
	UpsertReprocessing(ctx context.Context, prospectID, opportunityID uuid.UUID, scheduledFor time.Time) (queue.Entry, error)
	CancelReprocessing(ctx context.Context, opportunityID uuid.UUID) error
	GetReprocessingEntry(ctx context.Context, opportunityID uuid.UUID) (queue.Entry, bool, error)
	UpdateReprocessingProgress(ctx context.Context, entryID uuid.UUID, processed, total int) error
}

// IntelligenceStore wipes derived state and lists the replay worklist.
type IntelligenceStore interface {
	WipeOpportunityIntelligence(ctx context.Context, opportunityID uuid.UUID) error
	ListActivityRefs(ctx context.Context, opportunityID uuid.UUID) ([]activities.ActivityRef, error)
}

// Pipeline runs the per-activity derivation.
type Pipeline interface {
	ProcessActivityForIntelligence(ctx context.Context, activityID, opportunityID uuid.UUID) error
}

// WakeScheduler schedules a dispatcher wake-up at the debounce horizon so a
// due entry is picked up without polling latency. Optional.
type WakeScheduler interface {
	ScheduleReprocessingWake(ctx context.Context, opportunityID uuid.UUID, at time.Time) error
}

// run is the in-memory state of one executing sweep. The worklist is the
// ordered replay; real-time activities arriving mid-sweep are appended to
// its tail rather than queued separately.
type run struct {
	mu        sync.Mutex
	cancelled bool
	closed    bool
	worklist  []uuid.UUID
	index     int
	processed int
}

func (r *run) cancel() {
	r.mu.Lock()
	r.cancelled = true
	r.mu.Unlock()
}

func (r *run) isCancelled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cancelled
}

func (r *run) setWorklist(ids []uuid.UUID) {
	r.mu.Lock()
	r.worklist = ids
	r.mu.Unlock()
}

// append adds to the worklist tail. Returns false once the sweep stopped
// consuming it: an append accepted then would never be replayed.
func (r *run) append(id uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false
	}
	r.worklist = append(r.worklist, id)
	return true
}

// next pops the next activity, or false when the worklist (including any
// mid-sweep appends) is exhausted. Exhaustion closes the run: the sweep is
// completing and will not look at the worklist again.
func (r *run) next() (uuid.UUID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.index >= len(r.worklist) {
		r.closed = true
		return uuid.Nil, false
	}
	id := r.worklist[r.index]
	r.index++
	return id, true
}

func (r *run) progress() (processed, total int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.processed, len(r.worklist)
}

func (r *run) markProcessed() {
	r.mu.Lock()
	r.processed++
	r.mu.Unlock()
}

// Controller drives the idle -> scheduled -> running -> idle state machine
// per opportunity, with running -> scheduled via Restart.
type Controller struct {
	queue     QueueStore
	store     IntelligenceStore
	pipeline  Pipeline
	scheduler WakeScheduler
	bus       events.Bus
	debounce  time.Duration
	clock     func() time.Time
	log       *logger.Logger

	mu   sync.Mutex
	runs map[uuid.UUID]*run
}

func NewController(q QueueStore, store IntelligenceStore, pipeline Pipeline, scheduler WakeScheduler, bus events.Bus, debounce time.Duration, log *logger.Logger) *Controller {
	return &Controller{
		queue:     q,
		store:     store,
		pipeline:  pipeline,
		scheduler: scheduler,
		bus:       bus,
		debounce:  debounce,
		clock:     time.Now,
		log:       log,
		runs:      make(map[uuid.UUID]*run),
	}
}

// Schedule upserts the opportunity's reprocessing entry with a fresh debounce
// horizon. Bursts of historical backfill coalesce into one run carrying the
// latest horizon.
func (c *Controller) Schedule(ctx context.Context, prospectID, opportunityID uuid.UUID) error {
	scheduledFor := c.clock().Add(c.debounce)

	entry, err := c.queue.UpsertReprocessing(ctx, prospectID, opportunityID, scheduledFor)
	if err != nil {
		return fmt.Errorf("schedule reprocessing: %w", err)
	}

	if c.scheduler != nil {
		if err := c.scheduler.ScheduleReprocessingWake(ctx, opportunityID, scheduledFor); err != nil {
			c.log.Warn("reprocessing wake scheduling failed, relying on poll interval",
				"opportunityId", opportunityID, "error", err)
		}
	}

	c.bus.Publish(ctx, events.ReprocessingScheduled{
		BaseEvent:     events.NewBaseEvent(),
		ProspectID:    prospectID,
		OpportunityID: opportunityID,
		ScheduledFor:  scheduledFor,
	})

	c.log.Info("reprocessing scheduled",
		"opportunityId", opportunityID, "entryId", entry.ID, "scheduledFor", scheduledFor)
	return nil
}

// Restart cancels the running sweep's further progress and re-enters
// scheduled with a fresh debounce window. Per-activity commits that already
// landed stay valid; only uncommitted progress is discarded.
func (c *Controller) Restart(ctx context.Context, prospectID, opportunityID uuid.UUID) error {
	c.mu.Lock()
	if r, ok := c.runs[opportunityID]; ok {
		r.cancel()
	}
	c.mu.Unlock()

	return c.Schedule(ctx, prospectID, opportunityID)
}

// Cancel removes a pending reprocessing entry. A running sweep is not
// affected; use Restart to supersede one.
func (c *Controller) Cancel(ctx context.Context, opportunityID uuid.UUID) error {
	return c.queue.CancelReprocessing(ctx, opportunityID)
}

// AppendToRunning adds a real-time activity to the tail of the running
// sweep's worklist. Returns false when no sweep is running in this process.
func (c *Controller) AppendToRunning(opportunityID, activityID uuid.UUID) bool {
	c.mu.Lock()
	r, ok := c.runs[opportunityID]
	c.mu.Unlock()
	if !ok || r.isCancelled() {
		return false
	}
	if !r.append(activityID) {
		return false
	}
	c.log.Info("activity appended to running sweep",
		"opportunityId", opportunityID, "activityId", activityID)
	return true
}

// RunningOpportunities lists the opportunities with a sweep executing in
// this process.
func (c *Controller) RunningOpportunities() []uuid.UUID {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]uuid.UUID, 0, len(c.runs))
	for id := range c.runs {
		out = append(out, id)
	}
	return out
}

// Status reports idle|scheduled|running plus progress counters.
func (c *Controller) Status(ctx context.Context, opportunityID uuid.UUID) (State, error) {
	c.mu.Lock()
	if r, ok := c.runs[opportunityID]; ok {
		processed, total := r.progress()
		c.mu.Unlock()
		return State{Phase: PhaseRunning, Processed: processed, Total: total}, nil
	}
	c.mu.Unlock()

	entry, found, err := c.queue.GetReprocessingEntry(ctx, opportunityID)
	if err != nil {
		return State{}, err
	}
	if !found {
		return State{Phase: PhaseIdle}, nil
	}

	switch entry.Status {
	case queue.StatusProcessing:
		// Claimed by another process; mirror its persisted progress.
		return State{Phase: PhaseRunning, Processed: entry.Processed, Total: entry.Total}, nil
	default:
		return State{Phase: PhaseScheduled, ScheduledFor: entry.ScheduledFor}, nil
	}
}

// Execute runs the full sweep for a claimed reprocessing entry: wipe all
// intelligence scoped to the opportunity, then replay every activity in
// ascending eventDate order through the pipeline, one at a time. The
// cancellation flag is honored at per-activity boundaries only; an AI call
// in flight finishes, but nothing further is committed after a restart.
func (c *Controller) Execute(ctx context.Context, entry queue.Entry) error {
	opportunityID := entry.OpportunityID

	r := &run{}
	c.mu.Lock()
	c.runs[opportunityID] = r
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.runs, opportunityID)
		c.mu.Unlock()
	}()

	if err := c.store.WipeOpportunityIntelligence(ctx, opportunityID); err != nil {
		return c.fail(ctx, opportunityID, fmt.Errorf("wipe intelligence: %w", err))
	}

	refs, err := c.store.ListActivityRefs(ctx, opportunityID)
	if err != nil {
		return c.fail(ctx, opportunityID, fmt.Errorf("list activities: %w", err))
	}

	ids := make([]uuid.UUID, len(refs))
	for i, ref := range refs {
		ids[i] = ref.ID
	}
	r.setWorklist(ids)

	processed, total := r.progress()
	_ = c.queue.UpdateReprocessingProgress(ctx, entry.ID, processed, total)

	c.log.Info("reprocessing sweep started", "opportunityId", opportunityID, "total", total)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if r.isCancelled() {
			c.log.Info("reprocessing sweep superseded by restart", "opportunityId", opportunityID)
			return ErrRestarted
		}

		activityID, ok := r.next()
		if !ok {
			break
		}

		if err := c.pipeline.ProcessActivityForIntelligence(ctx, activityID, opportunityID); err != nil {
			return c.fail(ctx, opportunityID, fmt.Errorf("replay activity %s: %w", activityID, err))
		}

		r.markProcessed()
		processed, total = r.progress()
		_ = c.queue.UpdateReprocessingProgress(ctx, entry.ID, processed, total)
	}

	c.bus.Publish(ctx, events.ReprocessingCompleted{
		BaseEvent:     events.NewBaseEvent(),
		OpportunityID: opportunityID,
		Processed:     processed,
	})

	c.log.Info("reprocessing sweep completed", "opportunityId", opportunityID, "processed", processed)
	return nil
}

// fail records the terminal failure and publishes the alert event. The
// controller reverts to idle; the next qualifying activity re-triggers
// scheduling, there is no automatic retry of a sweep.
func (c *Controller) fail(ctx context.Context, opportunityID uuid.UUID, err error) error {
	c.bus.Publish(ctx, events.PipelineFailed{
		BaseEvent:     events.NewBaseEvent(),
		OpportunityID: opportunityID,
		Batch:         true,
		Reason:        err.Error(),
	})
	c.log.Error("reprocessing sweep failed", "opportunityId", opportunityID, "error", err)
	return err
}
