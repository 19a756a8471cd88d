package reprocess

import (
	"context"
	"testing"
	"time"

	"dealpulse_backend/internal/queue"

	"github.com/google/uuid"
)

type fakeStatusQueue struct {
	reprocessing   queue.Entry
	reprocessingOK bool
	latest         queue.Entry
	latestOK       bool
	pending        []queue.Entry
}

func (q *fakeStatusQueue) GetReprocessingEntry(ctx context.Context, opportunityID uuid.UUID) (queue.Entry, bool, error) {
	return q.reprocessing, q.reprocessingOK, nil
}

func (q *fakeStatusQueue) GetLatestEntry(ctx context.Context, opportunityID uuid.UUID) (queue.Entry, bool, error) {
	return q.latest, q.latestOK, nil
}

func (q *fakeStatusQueue) PendingActivityEntries(ctx context.Context, opportunityID uuid.UUID) ([]queue.Entry, error) {
	return q.pending, nil
}

func TestGetProcessingStatus(t *testing.T) {
	horizon := time.Date(2026, 3, 5, 14, 0, 0, 0, time.UTC)
	cause := "model unavailable"

	tests := []struct {
		name        string
		queue       *fakeStatusQueue
		wantType    string
		wantStatus  string
		wantPending int
		wantError   string
	}{
		{
			name: "running sweep wins over everything",
			queue: &fakeStatusQueue{
				reprocessing:   queue.Entry{Kind: queue.KindReprocessing, Status: queue.StatusProcessing, Processed: 3, Total: 7},
				reprocessingOK: true,
				pending:        []queue.Entry{{Status: queue.StatusPending}},
			},
			wantType:   "batch",
			wantStatus: "processing",
		},
		{
			name: "pending sweep reports scheduled",
			queue: &fakeStatusQueue{
				reprocessing:   queue.Entry{Kind: queue.KindReprocessing, Status: queue.StatusPending, ScheduledFor: &horizon},
				reprocessingOK: true,
			},
			wantType:   "batch",
			wantStatus: "scheduled",
		},
		{
			name: "failed activity entry surfaces its error",
			queue: &fakeStatusQueue{
				pending: []queue.Entry{
					{Status: queue.StatusPending},
					{Status: queue.StatusFailed, LastError: &cause},
				},
			},
			wantType:   "individual",
			wantStatus: "failed",
			wantError:  cause,
		},
		{
			name: "in-flight activity reports processing with backlog",
			queue: &fakeStatusQueue{
				pending: []queue.Entry{
					{Status: queue.StatusProcessing},
					{Status: queue.StatusPending},
					{Status: queue.StatusPending},
				},
			},
			wantType:    "individual",
			wantStatus:  "processing",
			wantPending: 2,
		},
		{
			name: "queued activities report pending",
			queue: &fakeStatusQueue{
				pending: []queue.Entry{{Status: queue.StatusPending}},
			},
			wantType:    "individual",
			wantStatus:  "pending",
			wantPending: 1,
		},
		{
			name: "finished sweep reports batch completed",
			queue: &fakeStatusQueue{
				latest:   queue.Entry{Kind: queue.KindReprocessing, Status: queue.StatusDone},
				latestOK: true,
			},
			wantType:   "batch",
			wantStatus: "completed",
		},
		{
			name: "terminally failed activity reports failed",
			queue: &fakeStatusQueue{
				latest:   queue.Entry{Kind: queue.KindActivity, Status: queue.StatusFailed, LastError: &cause},
				latestOK: true,
			},
			wantType:   "individual",
			wantStatus: "failed",
			wantError:  cause,
		},
		{
			name:       "nothing on record is idle",
			queue:      &fakeStatusQueue{},
			wantType:   "individual",
			wantStatus: "idle",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reader := NewStatusReader(tt.queue)
			got, err := reader.GetProcessingStatus(context.Background(), uuid.New())
			if err != nil {
				t.Fatalf("GetProcessingStatus: %v", err)
			}
			if got.Type != tt.wantType || got.Status != tt.wantStatus {
				t.Errorf("status = %s/%s, want %s/%s", got.Type, got.Status, tt.wantType, tt.wantStatus)
			}
			if tt.wantStatus == "processing" && tt.wantType == "batch" {
				if got.Processed == nil || got.Total == nil || *got.Processed != 3 || *got.Total != 7 {
					t.Errorf("progress = %v/%v, want 3/7", got.Processed, got.Total)
				}
			}
			if tt.wantPending > 0 {
				if got.Pending == nil || *got.Pending != tt.wantPending {
					t.Errorf("pending = %v, want %d", got.Pending, tt.wantPending)
				}
			}
			if tt.wantError != "" {
				if got.Error == nil || *got.Error != tt.wantError {
					t.Errorf("error = %v, want %q", got.Error, tt.wantError)
				}
			}
			if tt.wantStatus == "scheduled" {
				if got.ScheduledFor == nil || !got.ScheduledFor.Equal(horizon) {
					t.Errorf("scheduledFor = %v, want %v", got.ScheduledFor, horizon)
				}
			}
		})
	}
}
