package reprocess

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"dealpulse_backend/internal/activities"
	"dealpulse_backend/internal/events"
	"dealpulse_backend/internal/queue"
	"dealpulse_backend/platform/logger"

	"github.com/google/uuid"
)

type fakeQueueStore struct {
	mu        sync.Mutex
	upserts   []time.Time
	entry     queue.Entry
	entryOK   bool
	cancelled []uuid.UUID
	progress  [][2]int
}

func (q *fakeQueueStore) UpsertReprocessing(ctx context.Context, prospectID, opportunityID uuid.UUID, scheduledFor time.Time) (queue.Entry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.upserts = append(q.upserts, scheduledFor)
	return queue.Entry{ID: uuid.New(), Kind: queue.KindReprocessing, OpportunityID: opportunityID, ScheduledFor: &scheduledFor}, nil
}

func (q *fakeQueueStore) CancelReprocessing(ctx context.Context, opportunityID uuid.UUID) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.cancelled = append(q.cancelled, opportunityID)
	return nil
}

func (q *fakeQueueStore) GetReprocessingEntry(ctx context.Context, opportunityID uuid.UUID) (queue.Entry, bool, error) {
	return q.entry, q.entryOK, nil
}

func (q *fakeQueueStore) UpdateReprocessingProgress(ctx context.Context, entryID uuid.UUID, processed, total int) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.progress = append(q.progress, [2]int{processed, total})
	return nil
}

type fakeIntelStore struct {
	mu     sync.Mutex
	wipes  []uuid.UUID
	refs   []activities.ActivityRef
	listed int
}

func (s *fakeIntelStore) WipeOpportunityIntelligence(ctx context.Context, opportunityID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wipes = append(s.wipes, opportunityID)
	return nil
}

func (s *fakeIntelStore) ListActivityRefs(ctx context.Context, opportunityID uuid.UUID) ([]activities.ActivityRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listed++
	return s.refs, nil
}

type scriptedPipeline struct {
	mu     sync.Mutex
	calls  []uuid.UUID
	onCall func(call int, activityID uuid.UUID) error
}

func (p *scriptedPipeline) ProcessActivityForIntelligence(ctx context.Context, activityID, opportunityID uuid.UUID) error {
	p.mu.Lock()
	call := len(p.calls)
	p.calls = append(p.calls, activityID)
	fn := p.onCall
	p.mu.Unlock()
	if fn != nil {
		return fn(call, activityID)
	}
	return nil
}

func (p *scriptedPipeline) processed() []uuid.UUID {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]uuid.UUID(nil), p.calls...)
}

type recordingBus struct {
	mu        sync.Mutex
	published []events.Event
}

func (b *recordingBus) Publish(ctx context.Context, event events.Event) {
	b.mu.Lock()
	b.published = append(b.published, event)
	b.mu.Unlock()
}

func (b *recordingBus) PublishSync(ctx context.Context, event events.Event) error {
	b.Publish(ctx, event)
	return nil
}

func (b *recordingBus) Subscribe(eventName string, handler events.Handler) {}

func (b *recordingBus) byName(name string) []events.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []events.Event
	for _, e := range b.published {
		if e.EventName() == name {
			out = append(out, e)
		}
	}
	return out
}

func refList(n int) []activities.ActivityRef {
	base := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	out := make([]activities.ActivityRef, n)
	for i := range out {
		out[i] = activities.ActivityRef{ID: uuid.New(), EventDate: base.Add(time.Duration(i) * time.Hour)}
	}
	return out
}

func newTestController(q *fakeQueueStore, store *fakeIntelStore, pipeline *scriptedPipeline, bus *recordingBus, debounce time.Duration) *Controller {
	return NewController(q, store, pipeline, nil, bus, debounce, logger.New("development"))
}

func TestScheduleCoalescesWithLatestHorizon(t *testing.T) {
	q := &fakeQueueStore{}
	bus := &recordingBus{}
	c := newTestController(q, &fakeIntelStore{}, &scriptedPipeline{}, bus, 5*time.Minute)

	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	c.clock = func() time.Time { return now }

	prospectID, opportunityID := uuid.New(), uuid.New()
	if err := c.Schedule(context.Background(), prospectID, opportunityID); err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	now = now.Add(2 * time.Minute)
	if err := c.Schedule(context.Background(), prospectID, opportunityID); err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	if len(q.upserts) != 2 {
		t.Fatalf("upserts = %d, want 2", len(q.upserts))
	}
	want := now.Add(5 * time.Minute)
	if !q.upserts[1].Equal(want) {
		t.Errorf("second horizon = %v, want %v", q.upserts[1], want)
	}
	if got := bus.byName("reprocessing.scheduled"); len(got) != 2 {
		t.Errorf("scheduled events = %d, want 2", len(got))
	}
}

func TestExecuteReplaysInOrder(t *testing.T) {
	refs := refList(3)
	q := &fakeQueueStore{}
	store := &fakeIntelStore{refs: refs}
	pipeline := &scriptedPipeline{}
	bus := &recordingBus{}
	c := newTestController(q, store, pipeline, bus, time.Minute)

	opportunityID := uuid.New()
	entry := queue.Entry{ID: uuid.New(), Kind: queue.KindReprocessing, OpportunityID: opportunityID}

	if err := c.Execute(context.Background(), entry); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if len(store.wipes) != 1 || store.wipes[0] != opportunityID {
		t.Fatalf("wipes = %v, want one for %s", store.wipes, opportunityID)
	}
	got := pipeline.processed()
	if len(got) != 3 {
		t.Fatalf("processed %d activities, want 3", len(got))
	}
	for i, ref := range refs {
		if got[i] != ref.ID {
			t.Errorf("replay[%d] = %s, want %s", i, got[i], ref.ID)
		}
	}
	// Initial 0/3 plus one progress row per activity.
	if len(q.progress) != 4 {
		t.Fatalf("progress updates = %d, want 4", len(q.progress))
	}
	if q.progress[3] != [2]int{3, 3} {
		t.Errorf("final progress = %v, want [3 3]", q.progress[3])
	}

	completed := bus.byName("reprocessing.completed")
	if len(completed) != 1 {
		t.Fatalf("completed events = %d, want 1", len(completed))
	}
	if e := completed[0].(events.ReprocessingCompleted); e.Processed != 3 {
		t.Errorf("completed.Processed = %d, want 3", e.Processed)
	}
	if len(c.RunningOpportunities()) != 0 {
		t.Error("run still registered after completion")
	}
}

func TestRestartDuringRunStopsAtActivityBoundary(t *testing.T) {
	refs := refList(3)
	q := &fakeQueueStore{}
	store := &fakeIntelStore{refs: refs}
	bus := &recordingBus{}

	pipeline := &scriptedPipeline{}
	c := newTestController(q, store, pipeline, bus, time.Minute)

	prospectID, opportunityID := uuid.New(), uuid.New()
	pipeline.onCall = func(call int, activityID uuid.UUID) error {
		if call == 0 {
			// A historical activity landed mid-sweep.
			if err := c.Restart(context.Background(), prospectID, opportunityID); err != nil {
				t.Errorf("Restart: %v", err)
			}
		}
		return nil
	}

	entry := queue.Entry{ID: uuid.New(), Kind: queue.KindReprocessing, OpportunityID: opportunityID}
	err := c.Execute(context.Background(), entry)
	if !errors.Is(err, ErrRestarted) {
		t.Fatalf("Execute err = %v, want ErrRestarted", err)
	}

	if got := pipeline.processed(); len(got) != 1 {
		t.Errorf("processed %d activities after restart, want 1", len(got))
	}
	if len(q.upserts) != 1 {
		t.Errorf("upserts = %d, want the restart to re-pend the entry", len(q.upserts))
	}
}

func TestAppendToRunningExtendsWorklist(t *testing.T) {
	refs := refList(2)
	appended := uuid.New()
	q := &fakeQueueStore{}
	store := &fakeIntelStore{refs: refs}
	bus := &recordingBus{}

	pipeline := &scriptedPipeline{}
	c := newTestController(q, store, pipeline, bus, time.Minute)

	opportunityID := uuid.New()
	pipeline.onCall = func(call int, activityID uuid.UUID) error {
		if call == 0 {
			if !c.AppendToRunning(opportunityID, appended) {
				t.Error("AppendToRunning returned false during a run")
			}
		}
		return nil
	}

	entry := queue.Entry{ID: uuid.New(), Kind: queue.KindReprocessing, OpportunityID: opportunityID}
	if err := c.Execute(context.Background(), entry); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	got := pipeline.processed()
	if len(got) != 3 {
		t.Fatalf("processed %d, want original 2 plus the appended one", len(got))
	}
	if got[2] != appended {
		t.Errorf("appended activity replayed at %s, want tail position", got[2])
	}
}

func TestAppendAfterWorklistExhaustedIsRejected(t *testing.T) {
	// Completion window: the worklist is drained but the run is still
	// registered until Execute returns. An append accepted here would never
	// be replayed, so it must be refused and take the individual path.
	c := newTestController(&fakeQueueStore{}, &fakeIntelStore{}, &scriptedPipeline{}, &recordingBus{}, time.Minute)

	opportunityID := uuid.New()
	r := &run{}
	r.setWorklist([]uuid.UUID{uuid.New()})
	c.runs[opportunityID] = r

	for {
		if _, ok := r.next(); !ok {
			break
		}
	}

	if c.AppendToRunning(opportunityID, uuid.New()) {
		t.Error("append accepted after the worklist was exhausted")
	}
}

func TestAppendToRunningWithoutRun(t *testing.T) {
	c := newTestController(&fakeQueueStore{}, &fakeIntelStore{}, &scriptedPipeline{}, &recordingBus{}, time.Minute)
	if c.AppendToRunning(uuid.New(), uuid.New()) {
		t.Error("AppendToRunning accepted an activity with no sweep running")
	}
}

func TestExecuteFailurePublishesBatchAlert(t *testing.T) {
	refs := refList(2)
	q := &fakeQueueStore{}
	store := &fakeIntelStore{refs: refs}
	bus := &recordingBus{}

	boom := errors.New("model unavailable")
	pipeline := &scriptedPipeline{onCall: func(call int, activityID uuid.UUID) error {
		if call == 1 {
			return boom
		}
		return nil
	}}
	c := newTestController(q, store, pipeline, bus, time.Minute)

	entry := queue.Entry{ID: uuid.New(), Kind: queue.KindReprocessing, OpportunityID: uuid.New()}
	err := c.Execute(context.Background(), entry)
	if !errors.Is(err, boom) {
		t.Fatalf("Execute err = %v, want %v", err, boom)
	}

	failed := bus.byName("intelligence.pipeline.failed")
	if len(failed) != 1 {
		t.Fatalf("failure events = %d, want 1", len(failed))
	}
	if e := failed[0].(events.PipelineFailed); !e.Batch {
		t.Error("sweep failure not flagged as batch")
	}
	if len(bus.byName("reprocessing.completed")) != 0 {
		t.Error("completed event published for a failed sweep")
	}
}

func TestStatusPrecedence(t *testing.T) {
	scheduledFor := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		queue     *fakeQueueStore
		wantPhase Phase
	}{
		{
			name:      "no entry is idle",
			queue:     &fakeQueueStore{},
			wantPhase: PhaseIdle,
		},
		{
			name: "pending entry is scheduled",
			queue: &fakeQueueStore{
				entry:   queue.Entry{Status: queue.StatusPending, ScheduledFor: &scheduledFor},
				entryOK: true,
			},
			wantPhase: PhaseScheduled,
		},
		{
			name: "processing entry mirrors another process",
			queue: &fakeQueueStore{
				entry:   queue.Entry{Status: queue.StatusProcessing, Processed: 4, Total: 9},
				entryOK: true,
			},
			wantPhase: PhaseRunning,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestController(tt.queue, &fakeIntelStore{}, &scriptedPipeline{}, &recordingBus{}, time.Minute)
			state, err := c.Status(context.Background(), uuid.New())
			if err != nil {
				t.Fatalf("Status: %v", err)
			}
			if state.Phase != tt.wantPhase {
				t.Errorf("phase = %s, want %s", state.Phase, tt.wantPhase)
			}
			if tt.wantPhase == PhaseRunning && (state.Processed != 4 || state.Total != 9) {
				t.Errorf("progress = %d/%d, want 4/9", state.Processed, state.Total)
			}
			if tt.wantPhase == PhaseScheduled && (state.ScheduledFor == nil || !state.ScheduledFor.Equal(scheduledFor)) {
				t.Errorf("scheduledFor = %v, want %v", state.ScheduledFor, scheduledFor)
			}
		})
	}
}

func TestStatusPrefersLocalRunOverQueue(t *testing.T) {
	refs := refList(1)
	q := &fakeQueueStore{entry: queue.Entry{Status: queue.StatusProcessing}, entryOK: true}
	store := &fakeIntelStore{refs: refs}
	bus := &recordingBus{}

	pipeline := &scriptedPipeline{}
	c := newTestController(q, store, pipeline, bus, time.Minute)

	opportunityID := uuid.New()
	pipeline.onCall = func(call int, activityID uuid.UUID) error {
		state, err := c.Status(context.Background(), opportunityID)
		if err != nil {
			t.Errorf("Status: %v", err)
		}
		if state.Phase != PhaseRunning || state.Total != 1 {
			t.Errorf("mid-run state = %+v, want running with total 1", state)
		}
		return nil
	}

	entry := queue.Entry{ID: uuid.New(), Kind: queue.KindReprocessing, OpportunityID: opportunityID}
	if err := c.Execute(context.Background(), entry); err != nil {
		t.Fatalf("Execute: %v", err)
	}
}
