package intelligence

import (
	"context"

	"dealpulse_backend/internal/activities"
	"dealpulse_backend/internal/crm"

	"github.com/google/uuid"
)

// CommitSet is everything Phase 5 lands in one transaction: the in-memory
// opportunity and contact mutations plus the processed-for-opportunity
// marker on the activity.
type CommitSet struct {
	ActivityID    uuid.UUID
	OpportunityID uuid.UUID
	Opportunity   crm.Opportunity
	Contacts      []crm.ContactIntelligence
}

// Store is the persistence surface the pipeline consumes. Outside
// CommitIntelligence everything is a read-only snapshot private to one
// pipeline invocation.
type Store interface {
	GetActivity(ctx context.Context, id uuid.UUID) (activities.Activity, error)
	SaveActivitySummary(ctx context.Context, id uuid.UUID, summary string) error
	ContactsForActivity(ctx context.Context, activityID uuid.UUID) ([]crm.Contact, error)
	GetOpportunity(ctx context.Context, id uuid.UUID) (crm.Opportunity, error)
	ContactIntelligenceSnapshot(ctx context.Context, opportunityID uuid.UUID, contactIDs []uuid.UUID) (map[uuid.UUID]crm.ContactIntelligence, error)
	CommitIntelligence(ctx context.Context, set CommitSet) error
}
