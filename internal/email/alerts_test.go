package email

import (
	"strings"
	"testing"

	"dealpulse_backend/internal/events"

	"github.com/google/uuid"
)

func TestRenderFailureAlert(t *testing.T) {
	oppID := uuid.MustParse("3f6f9a0e-9f6a-4a7f-8a2f-0c5f6c0d1a22")
	actID := uuid.MustParse("9b1deb4d-3b7d-4bad-9bdd-2b0d7b3dcb6d")

	t.Run("activity failure", func(t *testing.T) {
		subject, body := renderFailureAlert(events.PipelineFailed{
			BaseEvent:     events.NewBaseEvent(),
			ActivityID:    &actID,
			OpportunityID: oppID,
			Reason:        "commit failed",
		})
		if !strings.Contains(subject, "activity pipeline") {
			t.Errorf("subject = %q", subject)
		}
		if !strings.Contains(body, actID.String()) {
			t.Error("body missing activity id")
		}
		if !strings.Contains(body, "commit failed") {
			t.Error("body missing reason")
		}
	})

	t.Run("batch failure", func(t *testing.T) {
		subject, body := renderFailureAlert(events.PipelineFailed{
			BaseEvent:     events.NewBaseEvent(),
			OpportunityID: oppID,
			Batch:         true,
			Reason:        "sweep aborted",
		})
		if !strings.Contains(subject, "reprocessing sweep") {
			t.Errorf("subject = %q", subject)
		}
		if strings.Contains(body, "Activity:") {
			t.Error("batch alert should not name an activity")
		}
	})
}
