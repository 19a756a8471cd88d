package intelligence

import (
	"context"

	"dealpulse_backend/internal/activities"
	"dealpulse_backend/internal/crm"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository implements Store and the reprocessing wipe. It composes the
// activities and crm repositories for reads and owns the intelligence write
// path, which is why the Phase 5 transaction lives here and nowhere else.
type Repository struct {
	pool       *pgxpool.Pool
	activities *activities.Repository
	crm        *crm.Repository
}

func NewRepository(pool *pgxpool.Pool, activitiesRepo *activities.Repository, crmRepo *crm.Repository) *Repository {
	return &Repository{
		pool:       pool,
		activities: activitiesRepo,
		crm:        crmRepo,
	}
}

func (r *Repository) GetActivity(ctx context.Context, id uuid.UUID) (activities.Activity, error) {
	return r.activities.GetByID(ctx, id)
}

func (r *Repository) SaveActivitySummary(ctx context.Context, id uuid.UUID, summary string) error {
	return r.activities.SaveSummary(ctx, id, summary)
}

func (r *Repository) ContactsForActivity(ctx context.Context, activityID uuid.UUID) ([]crm.Contact, error) {
	ids, err := r.activities.ContactIDsForActivity(ctx, activityID)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	return r.crm.ContactsByIDs(ctx, ids)
}

func (r *Repository) GetOpportunity(ctx context.Context, id uuid.UUID) (crm.Opportunity, error) {
	return r.crm.GetOpportunity(ctx, id)
}

// ListActivityRefs returns the opportunity's activities in replay order.
func (r *Repository) ListActivityRefs(ctx context.Context, opportunityID uuid.UUID) ([]activities.ActivityRef, error) {
	return r.activities.ListRefsByOpportunity(ctx, opportunityID)
}

// ContactIntelligenceSnapshot fetches the current intelligence rows for the
// given contacts scoped to one opportunity.
func (r *Repository) ContactIntelligenceSnapshot(ctx context.Context, opportunityID uuid.UUID, contactIDs []uuid.UUID) (map[uuid.UUID]crm.ContactIntelligence, error) {
	if len(contactIDs) == 0 {
		return map[uuid.UUID]crm.ContactIntelligence{}, nil
	}

	rows, err := r.pool.Query(ctx, `
		SELECT contact_id, opportunity_id, role, responsiveness, signals,
		       engagement, communication, narrative, updated_at
		FROM contact_opportunity_intelligence
		WHERE opportunity_id = $1 AND contact_id = ANY($2)
	`, opportunityID, contactIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	snapshot := make(map[uuid.UUID]crm.ContactIntelligence, len(contactIDs))
	for rows.Next() {
		var ci crm.ContactIntelligence
		if err := rows.Scan(&ci.ContactID, &ci.OpportunityID, &ci.Role, &ci.Responsiveness,
			&ci.Signals, &ci.Engagement, &ci.Communication, &ci.Narrative, &ci.UpdatedAt); err != nil {
			return nil, err
		}
		snapshot[ci.ContactID] = ci
	}
	return snapshot, rows.Err()
}

// CommitIntelligence lands every in-memory mutation in one transaction and
// marks the activity processed for the opportunity. A failure anywhere rolls
// everything back; the activity stays eligible for reprocessing.
func (r *Repository) CommitIntelligence(ctx context.Context, set CommitSet) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		UPDATE opportunities
		SET qualification = $2, health = $3, narrative = $4, updated_at = now()
		WHERE id = $1
	`, set.Opportunity.ID, set.Opportunity.Qualification, set.Opportunity.Health, set.Opportunity.Narrative); err != nil {
		return err
	}

	for _, ci := range set.Contacts {
		if _, err := tx.Exec(ctx, `
			INSERT INTO contact_opportunity_intelligence
				(contact_id, opportunity_id, role, responsiveness, signals, engagement, communication, narrative, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
			ON CONFLICT (contact_id, opportunity_id) DO UPDATE SET
				role = EXCLUDED.role,
				responsiveness = EXCLUDED.responsiveness,
				signals = EXCLUDED.signals,
				engagement = EXCLUDED.engagement,
				communication = EXCLUDED.communication,
				narrative = EXCLUDED.narrative,
				updated_at = now()
		`, ci.ContactID, set.OpportunityID, ci.Role, ci.Responsiveness, ci.Signals,
			ci.Engagement, ci.Communication, ci.Narrative); err != nil {
			return err
		}
	}

	if _, err := tx.Exec(ctx, `
		UPDATE activities
		SET processed_for_opportunities = array_append(processed_for_opportunities, $2)
		WHERE id = $1 AND NOT ($2 = ANY(processed_for_opportunities))
	`, set.ActivityID, set.OpportunityID); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// WipeOpportunityIntelligence discards every derived field scoped to the
// opportunity and clears the processed markers so a reprocessing sweep
// re-derives from scratch. Phase 0 summaries survive: they are
// order-independent and per-activity.
func (r *Repository) WipeOpportunityIntelligence(ctx context.Context, opportunityID uuid.UUID) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		UPDATE opportunities
		SET qualification = '{}'::jsonb, health = '{}'::jsonb, narrative = NULL, updated_at = now()
		WHERE id = $1
	`, opportunityID); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `
		UPDATE contact_opportunity_intelligence
		SET role = NULL, responsiveness = NULL, signals = NULL, engagement = NULL,
		    communication = NULL, narrative = NULL, updated_at = now()
		WHERE opportunity_id = $1
	`, opportunityID); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `
		UPDATE activities
		SET processed_for_opportunities = array_remove(processed_for_opportunities, $1)
		WHERE opportunity_id = $1
	`, opportunityID); err != nil {
		return err
	}

	return tx.Commit(ctx)
}
