package reprocess

import (
	"context"
	"time"

	"dealpulse_backend/internal/queue"

	"github.com/google/uuid"
)

// ProcessingStatus is the shape consumed by the UI/API layer.
type ProcessingStatus struct {
	Type         string     `json:"type"` // batch | individual
	Status       string     `json:"status"`
	Processed    *int       `json:"processed,omitempty"`
	Total        *int       `json:"total,omitempty"`
	Pending      *int       `json:"pending,omitempty"`
	ScheduledFor *time.Time `json:"scheduledFor,omitempty"`
	Error        *string    `json:"error,omitempty"`
}

// StatusQueue is the slice of the queue store the status reader needs.
type StatusQueue interface {
	GetReprocessingEntry(ctx context.Context, opportunityID uuid.UUID) (queue.Entry, bool, error)
	GetLatestEntry(ctx context.Context, opportunityID uuid.UUID) (queue.Entry, bool, error)
	PendingActivityEntries(ctx context.Context, opportunityID uuid.UUID) ([]queue.Entry, error)
}

// StatusReader derives the processing status purely from the persisted queue
// so the API process can answer without sharing memory with the worker;
// running sweeps mirror their progress onto the entry row.
type StatusReader struct {
	queue StatusQueue
}

func NewStatusReader(q StatusQueue) *StatusReader {
	return &StatusReader{queue: q}
}

// GetProcessingStatus reports what is happening to an opportunity's
// intelligence right now.
func (s *StatusReader) GetProcessingStatus(ctx context.Context, opportunityID uuid.UUID) (ProcessingStatus, error) {
	if entry, found, err := s.queue.GetReprocessingEntry(ctx, opportunityID); err != nil {
		return ProcessingStatus{}, err
	} else if found {
		switch entry.Status {
		case queue.StatusProcessing:
			return ProcessingStatus{
				Type:      "batch",
				Status:    "processing",
				Processed: &entry.Processed,
				Total:     &entry.Total,
			}, nil
		default:
			return ProcessingStatus{
				Type:         "batch",
				Status:       "scheduled",
				ScheduledFor: entry.ScheduledFor,
			}, nil
		}
	}

	live, err := s.queue.PendingActivityEntries(ctx, opportunityID)
	if err != nil {
		return ProcessingStatus{}, err
	}

	pendingCount := 0
	processing := false
	for _, e := range live {
		switch e.Status {
		case queue.StatusFailed:
			return ProcessingStatus{Type: "individual", Status: "failed", Error: e.LastError}, nil
		case queue.StatusProcessing:
			processing = true
		case queue.StatusPending:
			pendingCount++
		}
	}
	if processing {
		return ProcessingStatus{Type: "individual", Status: "processing", Pending: &pendingCount}, nil
	}
	if pendingCount > 0 {
		return ProcessingStatus{Type: "individual", Status: "pending", Pending: &pendingCount}, nil
	}

	latest, found, err := s.queue.GetLatestEntry(ctx, opportunityID)
	if err != nil {
		return ProcessingStatus{}, err
	}
	if found {
		switch latest.Status {
		case queue.StatusDone:
			statusType := "individual"
			if latest.Kind == queue.KindReprocessing {
				statusType = "batch"
			}
			return ProcessingStatus{Type: statusType, Status: "completed"}, nil
		case queue.StatusFailed:
			statusType := "individual"
			if latest.Kind == queue.KindReprocessing {
				statusType = "batch"
			}
			return ProcessingStatus{Type: statusType, Status: "failed", Error: latest.LastError}, nil
		}
	}

	return ProcessingStatus{Type: "individual", Status: "idle"}, nil
}
