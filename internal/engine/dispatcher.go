package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"dealpulse_backend/internal/events"
	"dealpulse_backend/internal/queue"
	"dealpulse_backend/internal/reprocess"
	"dealpulse_backend/platform/apperr"
	"dealpulse_backend/platform/logger"

	"github.com/google/uuid"
)

// QueueStore is the slice of the queue store the dispatcher needs.
type QueueStore interface {
	ClaimNext(ctx context.Context, busyProspects []uuid.UUID) (queue.Entry, bool, error)
	ClaimNextForOpportunities(ctx context.Context, opportunityIDs []uuid.UUID) (queue.Entry, bool, error)
	MarkDone(ctx context.Context, entryID uuid.UUID) error
	MarkFailed(ctx context.Context, entryID uuid.UUID, cause string, retry bool, maxRetries int) (terminal bool, err error)
	Requeue(ctx context.Context, entryID uuid.UUID) error
	ResetStale(ctx context.Context, olderThan time.Duration) (int64, error)
}

// Executor is the slice of the reprocessing controller the dispatcher needs.
type Executor interface {
	Execute(ctx context.Context, entry queue.Entry) error
	Restart(ctx context.Context, prospectID, opportunityID uuid.UUID) error
	AppendToRunning(opportunityID, activityID uuid.UUID) bool
	RunningOpportunities() []uuid.UUID
}

// Options are the injected dispatcher knobs.
type Options struct {
	PollInterval   time.Duration
	StaleThreshold time.Duration
	MaxRetries     int
}

// Dispatcher is the single polling loop per process. It enforces at most one
// active job per prospect (the serialization key is the prospect, not the
// opportunity, since opportunities can share one) and claims entries in
// eligibility order: due reprocessing first, then activities by eventDate.
//
// The busy set is process-local, so the per-prospect guarantee holds only
// with a single worker process. Concurrency scales inside that process via
// the claim loop, not via worker replicas.
type Dispatcher struct {
	queue      QueueStore
	decisions  *Decisions
	controller Executor
	bus        events.Bus
	opts       Options
	log        *logger.Logger

	mu   sync.Mutex
	busy map[uuid.UUID]struct{}
	kick chan struct{}
	wg   sync.WaitGroup
}

func NewDispatcher(q QueueStore, decisions *Decisions, controller Executor, bus events.Bus, opts Options, log *logger.Logger) *Dispatcher {
	return &Dispatcher{
		queue:      q,
		decisions:  decisions,
		controller: controller,
		bus:        bus,
		opts:       opts,
		log:        log,
		busy:       make(map[uuid.UUID]struct{}),
		kick:       make(chan struct{}, 1),
	}
}

// Kick nudges the loop to dispatch now instead of waiting for the next poll
// tick. Non-blocking; a pending kick coalesces.
func (d *Dispatcher) Kick() {
	select {
	case d.kick <- struct{}{}:
	default:
	}
}

// Run polls until the context is canceled. On startup it sweeps entries
// stuck in processing beyond the staleness threshold back to pending, which
// is what guarantees resumption after a crash.
func (d *Dispatcher) Run(ctx context.Context) {
	reset, err := d.queue.ResetStale(ctx, d.opts.StaleThreshold)
	if err != nil {
		d.log.Error("stale entry sweep failed", "error", err)
	} else if reset > 0 {
		d.log.Info("stale processing entries requeued", "count", reset)
	}

	ticker := time.NewTicker(d.opts.PollInterval)
	defer ticker.Stop()

	for {
		d.dispatch(ctx)

		select {
		case <-ctx.Done():
			d.wg.Wait()
			return
		case <-ticker.C:
		case <-d.kick:
		}
	}
}

// dispatch drains everything currently claimable.
func (d *Dispatcher) dispatch(ctx context.Context) {
	d.feedRunningSweeps(ctx)

	for {
		if ctx.Err() != nil {
			return
		}

		entry, ok, err := d.queue.ClaimNext(ctx, d.busyProspects())
		if err != nil {
			d.log.DatabaseError("queue claim", err)
			return
		}
		if !ok {
			return
		}

		d.markBusy(entry.ProspectID)
		d.wg.Add(1)
		go d.handle(ctx, entry)
	}
}

// feedRunningSweeps claims pending activity entries whose opportunity has a
// sweep executing right now and merges them into it. Their prospect is busy
// with that very sweep, so the normal claim path would never reach them
// before the sweep ends.
func (d *Dispatcher) feedRunningSweeps(ctx context.Context) {
	for {
		running := d.controller.RunningOpportunities()
		if len(running) == 0 {
			return
		}

		entry, ok, err := d.queue.ClaimNextForOpportunities(ctx, running)
		if err != nil {
			d.log.DatabaseError("queue claim for sweep", err)
			return
		}
		if !ok {
			return
		}

		if entry.ActivityID == nil || entry.EventDate == nil {
			d.finalize(ctx, entry, apperr.Internal("activity entry without activity reference"))
			continue
		}

		if d.decisions.IsHistorical(*entry.EventDate) {
			// Historical during batch: discard further progress, reschedule.
			d.finalize(ctx, entry, d.controller.Restart(ctx, entry.ProspectID, entry.OpportunityID))
			continue
		}

		if d.controller.AppendToRunning(entry.OpportunityID, *entry.ActivityID) {
			if err := d.queue.MarkDone(ctx, entry.ID); err != nil {
				d.log.DatabaseError("queue mark done", err)
			}
			continue
		}

		// Sweep finished between claim and append; let the normal path take it.
		if err := d.queue.Requeue(ctx, entry.ID); err != nil {
			d.log.DatabaseError("queue requeue", err)
		}
		return
	}
}

func (d *Dispatcher) handle(ctx context.Context, entry queue.Entry) {
	defer d.wg.Done()
	defer func() {
		d.freeBusy(entry.ProspectID)
		d.Kick()
	}()

	d.log.QueueEvent("claimed", entry.ID.String(), entry.ProspectID.String())

	var err error
	switch entry.Kind {
	case queue.KindActivity:
		err = d.decisions.Route(ctx, entry)
	case queue.KindReprocessing:
		err = d.controller.Execute(ctx, entry)
	default:
		err = apperr.Internal("unknown queue entry kind")
	}

	if errors.Is(err, reprocess.ErrRestarted) {
		// The restart's upsert already re-pended the row.
		d.log.QueueEvent("superseded", entry.ID.String(), entry.ProspectID.String())
		return
	}

	d.finalize(ctx, entry, err)
}

func (d *Dispatcher) finalize(ctx context.Context, entry queue.Entry, err error) {
	if err == nil {
		if markErr := d.queue.MarkDone(ctx, entry.ID); markErr != nil {
			d.log.DatabaseError("queue mark done", markErr)
		}
		d.log.QueueEvent("done", entry.ID.String(), entry.ProspectID.String())
		return
	}

	if ctx.Err() != nil {
		// Shutdown, not failure: leave the entry in processing so the
		// startup stale sweep requeues it.
		return
	}

	d.log.PipelineError("dispatch", refString(entry.ActivityID), entry.OpportunityID.String(), err)

	// Only activity entries get the retry budget. A failed sweep lands
	// terminally; the next qualifying activity re-triggers scheduling.
	retry := entry.Kind == queue.KindActivity && apperr.Retryable(err)
	terminal, markErr := d.queue.MarkFailed(ctx, entry.ID, err.Error(), retry, d.opts.MaxRetries)
	if markErr != nil {
		d.log.DatabaseError("queue mark failed", markErr)
	}

	// The operator alert fires once, when the failure is final. Attempts the
	// budget re-pends stay queue-internal.
	if terminal && entry.Kind == queue.KindActivity {
		d.bus.Publish(ctx, events.PipelineFailed{
			BaseEvent:     events.NewBaseEvent(),
			ActivityID:    entry.ActivityID,
			OpportunityID: entry.OpportunityID,
			Reason:        err.Error(),
		})
	}
}

func (d *Dispatcher) busyProspects() []uuid.UUID {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]uuid.UUID, 0, len(d.busy))
	for id := range d.busy {
		out = append(out, id)
	}
	return out
}

func (d *Dispatcher) markBusy(prospectID uuid.UUID) {
	d.mu.Lock()
	d.busy[prospectID] = struct{}{}
	d.mu.Unlock()
}

func (d *Dispatcher) freeBusy(prospectID uuid.UUID) {
	d.mu.Lock()
	delete(d.busy, prospectID)
	d.mu.Unlock()
}

func refString(id *uuid.UUID) string {
	if id == nil {
		return ""
	}
	return id.String()
}
