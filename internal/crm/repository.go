package crm

import (
	"context"
	"errors"

	"dealpulse_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides access to prospects, opportunities and contacts.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) GetProspect(ctx context.Context, id uuid.UUID) (Prospect, error) {
	var p Prospect
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, domain, created_at, updated_at
		FROM prospects
		WHERE id = $1
	`, id).Scan(&p.ID, &p.Name, &p.Domain, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Prospect{}, apperr.NotFound("prospect not found")
	}
	if err != nil {
		return Prospect{}, err
	}
	return p, nil
}

func (r *Repository) GetOpportunity(ctx context.Context, id uuid.UUID) (Opportunity, error) {
	var o Opportunity
	err := r.pool.QueryRow(ctx, `
		SELECT id, prospect_id, name, status, qualification, health, narrative, created_at, updated_at
		FROM opportunities
		WHERE id = $1
	`, id).Scan(&o.ID, &o.ProspectID, &o.Name, &o.Status, &o.Qualification, &o.Health, &o.Narrative, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Opportunity{}, apperr.NotFound("opportunity not found")
	}
	if err != nil {
		return Opportunity{}, err
	}
	return o, nil
}

// ResolveRoutingOpportunity returns the opportunity new activities for the
// prospect should attach to: the most recently created open opportunity, or,
// when none is open, the most recent one overall (a closed opportunity keeps
// receiving retroactive updates until a successor exists).
func (r *Repository) ResolveRoutingOpportunity(ctx context.Context, prospectID uuid.UUID) (Opportunity, error) {
	var o Opportunity
	err := r.pool.QueryRow(ctx, `
		SELECT id, prospect_id, name, status, qualification, health, narrative, created_at, updated_at
		FROM opportunities
		WHERE prospect_id = $1
		ORDER BY (status = 'open') DESC, created_at DESC
		LIMIT 1
	`, prospectID).Scan(&o.ID, &o.ProspectID, &o.Name, &o.Status, &o.Qualification, &o.Health, &o.Narrative, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Opportunity{}, apperr.NotFound("prospect has no opportunity")
	}
	if err != nil {
		return Opportunity{}, err
	}
	return o, nil
}

// ListOpportunityIDs returns the IDs of all opportunities of a prospect.
func (r *Repository) ListOpportunityIDs(ctx context.Context, prospectID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id FROM opportunities WHERE prospect_id = $1
	`, prospectID)
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

// FindContactByEmail looks a contact up by prospect and normalized email.
func (r *Repository) FindContactByEmail(ctx context.Context, prospectID uuid.UUID, email string) (Contact, bool, error) {
	var c Contact
	err := r.pool.QueryRow(ctx, `
		SELECT id, prospect_id, name, email, phone, created_at
		FROM contacts
		WHERE prospect_id = $1 AND email = $2
	`, prospectID, email).Scan(&c.ID, &c.ProspectID, &c.Name, &c.Email, &c.Phone, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Contact{}, false, nil
	}
	if err != nil {
		return Contact{}, false, err
	}
	return c, true, nil
}

// CreateContact inserts a contact and seeds empty intelligence rows for every
// existing opportunity of the prospect, so that a newly observed counterpart
// is associated with all of them by default.
func (r *Repository) CreateContact(ctx context.Context, c Contact) (Contact, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Contact{}, err
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx, `
		INSERT INTO contacts (prospect_id, name, email, phone)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (prospect_id, email) DO UPDATE SET name = EXCLUDED.name
		RETURNING id, prospect_id, name, email, phone, created_at
	`, c.ProspectID, c.Name, c.Email, c.Phone).Scan(&c.ID, &c.ProspectID, &c.Name, &c.Email, &c.Phone, &c.CreatedAt)
	if err != nil {
		return Contact{}, err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO contact_opportunity_intelligence (contact_id, opportunity_id)
		SELECT $1, o.id FROM opportunities o WHERE o.prospect_id = $2
		ON CONFLICT (contact_id, opportunity_id) DO NOTHING
	`, c.ID, c.ProspectID)
	if err != nil {
		return Contact{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Contact{}, err
	}
	return c, nil
}

// ContactsByIDs fetches contacts in one round trip.
func (r *Repository) ContactsByIDs(ctx context.Context, ids []uuid.UUID) ([]Contact, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, prospect_id, name, email, phone, created_at
		FROM contacts
		WHERE id = ANY($1)
	`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	contacts := make([]Contact, 0, len(ids))
	for rows.Next() {
		var c Contact
		if err := rows.Scan(&c.ID, &c.ProspectID, &c.Name, &c.Email, &c.Phone, &c.CreatedAt); err != nil {
			return nil, err
		}
		contacts = append(contacts, c)
	}
	return contacts, rows.Err()
}
