package activities

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"dealpulse_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists activities and their contact links.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func detailsJSON(a Activity) ([]byte, error) {
	switch a.Kind {
	case KindEmail:
		return json.Marshal(a.Email)
	case KindCalendar:
		return json.Marshal(a.Calendar)
	case KindGeneric:
		return json.Marshal(a.Generic)
	default:
		return nil, fmt.Errorf("unknown activity kind %q", a.Kind)
	}
}

func scanDetails(a *Activity, raw []byte) error {
	switch a.Kind {
	case KindEmail:
		a.Email = &EmailDetails{}
		return json.Unmarshal(raw, a.Email)
	case KindCalendar:
		a.Calendar = &CalendarDetails{}
		return json.Unmarshal(raw, a.Calendar)
	case KindGeneric:
		a.Generic = &GenericDetails{}
		return json.Unmarshal(raw, a.Generic)
	default:
		return fmt.Errorf("unknown activity kind %q", a.Kind)
	}
}

// Create inserts the activity and its contact links in one transaction.
func (r *Repository) Create(ctx context.Context, a Activity, contactIDs []uuid.UUID) (Activity, error) {
	details, err := detailsJSON(a)
	if err != nil {
		return Activity{}, err
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Activity{}, err
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx, `
		INSERT INTO activities (kind, prospect_id, opportunity_id, event_date, details)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`, a.Kind, a.ProspectID, a.OpportunityID, a.EventDate, details).Scan(&a.ID, &a.CreatedAt)
	if err != nil {
		return Activity{}, err
	}

	for _, contactID := range contactIDs {
		if _, err := tx.Exec(ctx, `
			INSERT INTO activity_contacts (activity_id, contact_id)
			VALUES ($1, $2)
			ON CONFLICT DO NOTHING
		`, a.ID, contactID); err != nil {
			return Activity{}, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Activity{}, err
	}
	return a, nil
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (Activity, error) {
	var a Activity
	var details []byte
	err := r.pool.QueryRow(ctx, `
		SELECT id, kind, prospect_id, opportunity_id, event_date, ai_summary,
		       processed_for_opportunities, details, created_at
		FROM activities
		WHERE id = $1
	`, id).Scan(&a.ID, &a.Kind, &a.ProspectID, &a.OpportunityID, &a.EventDate,
		&a.AISummary, &a.ProcessedFor, &details, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Activity{}, apperr.NotFound("activity not found")
	}
	if err != nil {
		return Activity{}, err
	}
	if err := scanDetails(&a, details); err != nil {
		return Activity{}, err
	}
	return a, nil
}

// ActivityRef is a lightweight (id, eventDate) pair for replay ordering.
type ActivityRef struct {
	ID        uuid.UUID
	EventDate time.Time
}

// ListRefsByOpportunity returns all activity refs of an opportunity in
// ascending eventDate order, the replay order of a reprocessing sweep.
func (r *Repository) ListRefsByOpportunity(ctx context.Context, opportunityID uuid.UUID) ([]ActivityRef, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, event_date
		FROM activities
		WHERE opportunity_id = $1
		ORDER BY event_date ASC, created_at ASC
	`, opportunityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	refs := make([]ActivityRef, 0)
	for rows.Next() {
		var ref ActivityRef
		if err := rows.Scan(&ref.ID, &ref.EventDate); err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

// ContactIDsForActivity returns the contacts linked to the activity.
func (r *Repository) ContactIDsForActivity(ctx context.Context, activityID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT contact_id FROM activity_contacts WHERE activity_id = $1
	`, activityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make([]uuid.UUID, 0)
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SaveSummary persists the Phase 0 summary. Deliberately outside the commit
// transaction: the summary is descriptive and order-independent, so it is
// safe to be visible early.
func (r *Repository) SaveSummary(ctx context.Context, activityID uuid.UUID, summary string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE activities SET ai_summary = $2 WHERE id = $1
	`, activityID, summary)
	return err
}
