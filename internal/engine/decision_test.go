package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"dealpulse_backend/internal/queue"
	"dealpulse_backend/internal/reprocess"
	"dealpulse_backend/platform/logger"

	"github.com/google/uuid"
)

type fakeController struct {
	state        reprocess.State
	statusErr    error
	scheduled    int
	restarted    int
	appendResult bool
	appended     int
	running      []uuid.UUID
	executeFn    func(ctx context.Context, entry queue.Entry) error
}

func (f *fakeController) Status(ctx context.Context, opportunityID uuid.UUID) (reprocess.State, error) {
	return f.state, f.statusErr
}

func (f *fakeController) Schedule(ctx context.Context, prospectID, opportunityID uuid.UUID) error {
	f.scheduled++
	return nil
}

func (f *fakeController) Restart(ctx context.Context, prospectID, opportunityID uuid.UUID) error {
	f.restarted++
	return nil
}

func (f *fakeController) AppendToRunning(opportunityID, activityID uuid.UUID) bool {
	if f.appendResult {
		f.appended++
	}
	return f.appendResult
}

func (f *fakeController) RunningOpportunities() []uuid.UUID {
	return f.running
}

func (f *fakeController) Execute(ctx context.Context, entry queue.Entry) error {
	if f.executeFn != nil {
		return f.executeFn(ctx, entry)
	}
	return nil
}

type fakePipeline struct {
	calls []uuid.UUID
	err   error
}

func (f *fakePipeline) ProcessActivityForIntelligence(ctx context.Context, activityID, opportunityID uuid.UUID) error {
	f.calls = append(f.calls, activityID)
	return f.err
}

func activityEntry(eventDate time.Time) queue.Entry {
	activityID := uuid.New()
	return queue.Entry{
		ID:            uuid.New(),
		Kind:          queue.KindActivity,
		ProspectID:    uuid.New(),
		OpportunityID: uuid.New(),
		ActivityID:    &activityID,
		EventDate:     &eventDate,
		Status:        queue.StatusProcessing,
	}
}

func TestIsHistorical(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	window := 24 * time.Hour

	d := NewDecisions(&fakeController{}, &fakePipeline{}, window, logger.New("development"))
	d.clock = func() time.Time { return now }

	tests := []struct {
		name      string
		eventDate time.Time
		want      bool
	}{
		{"just now", now, false},
		{"inside window", now.Add(-23 * time.Hour), false},
		{"exactly at boundary", now.Add(-window), false},
		{"beyond window", now.Add(-window - time.Second), true},
		{"future scheduled meeting", now.Add(72 * time.Hour), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := d.IsHistorical(tt.eventDate); got != tt.want {
				t.Errorf("IsHistorical(%v) = %v, want %v", tt.eventDate, got, tt.want)
			}
		})
	}
}

func TestRouteDecisionTable(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	window := 24 * time.Hour
	realtime := now.Add(-time.Hour)
	historical := now.Add(-48 * time.Hour)

	tests := []struct {
		name          string
		eventDate     time.Time
		batchPhase    reprocess.Phase
		appendResult  bool
		wantPipeline  int
		wantScheduled int
		wantRestarted int
		wantAppended  int
	}{
		{
			name:         "realtime no batch runs pipeline",
			eventDate:    realtime,
			batchPhase:   reprocess.PhaseIdle,
			wantPipeline: 1,
		},
		{
			name:         "realtime during batch appends to sweep",
			eventDate:    realtime,
			batchPhase:   reprocess.PhaseRunning,
			appendResult: true,
			wantAppended: 1,
		},
		{
			name:          "historical no batch schedules reprocessing",
			eventDate:     historical,
			batchPhase:    reprocess.PhaseIdle,
			wantScheduled: 1,
		},
		{
			name:          "historical during batch restarts reprocessing",
			eventDate:     historical,
			batchPhase:    reprocess.PhaseRunning,
			wantRestarted: 1,
		},
		{
			name:          "historical while scheduled reschedules",
			eventDate:     historical,
			batchPhase:    reprocess.PhaseScheduled,
			wantScheduled: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			controller := &fakeController{
				state:        reprocess.State{Phase: tt.batchPhase},
				appendResult: tt.appendResult,
			}
			pipeline := &fakePipeline{}
			d := NewDecisions(controller, pipeline, window, logger.New("development"))
			d.clock = func() time.Time { return now }

			if err := d.Route(context.Background(), activityEntry(tt.eventDate)); err != nil {
				t.Fatalf("Route: %v", err)
			}

			if len(pipeline.calls) != tt.wantPipeline {
				t.Errorf("pipeline calls = %d, want %d", len(pipeline.calls), tt.wantPipeline)
			}
			if controller.scheduled != tt.wantScheduled {
				t.Errorf("scheduled = %d, want %d", controller.scheduled, tt.wantScheduled)
			}
			if controller.restarted != tt.wantRestarted {
				t.Errorf("restarted = %d, want %d", controller.restarted, tt.wantRestarted)
			}
			if controller.appended != tt.wantAppended {
				t.Errorf("appended = %d, want %d", controller.appended, tt.wantAppended)
			}
		})
	}
}

func TestRouteRejectsNonActivityEntry(t *testing.T) {
	d := NewDecisions(&fakeController{}, &fakePipeline{}, time.Hour, logger.New("development"))

	entry := queue.Entry{Kind: queue.KindReprocessing, ID: uuid.New()}
	if err := d.Route(context.Background(), entry); err == nil {
		t.Fatal("expected error for non-activity entry")
	}
}

func TestRouteStatusErrorPropagates(t *testing.T) {
	now := time.Now()
	statusErr := errors.New("status unavailable")
	controller := &fakeController{statusErr: statusErr}
	d := NewDecisions(controller, &fakePipeline{}, time.Hour, logger.New("development"))
	d.clock = func() time.Time { return now }

	err := d.Route(context.Background(), activityEntry(now.Add(-48*time.Hour)))
	if !errors.Is(err, statusErr) {
		t.Fatalf("err = %v, want %v", err, statusErr)
	}
}
