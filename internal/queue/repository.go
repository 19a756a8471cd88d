package queue

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const entryColumns = `
	id, kind, prospect_id, opportunity_id, activity_id, event_date,
	scheduled_for, status, enqueued_at, started_at, retry_count,
	processed, total, last_error`

// Repository is the Postgres-backed queue store. All writes are durable
// before they return.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanEntry(row pgx.Row) (Entry, error) {
	var e Entry
	err := row.Scan(&e.ID, &e.Kind, &e.ProspectID, &e.OpportunityID, &e.ActivityID,
		&e.EventDate, &e.ScheduledFor, &e.Status, &e.EnqueuedAt, &e.StartedAt,
		&e.RetryCount, &e.Processed, &e.Total, &e.LastError)
	return e, err
}

// EnqueueActivity appends an activity entry.
func (r *Repository) EnqueueActivity(ctx context.Context, prospectID, opportunityID, activityID uuid.UUID, eventDate time.Time) (Entry, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO queue_entries (kind, prospect_id, opportunity_id, activity_id, event_date, status)
		VALUES ('activity', $1, $2, $3, $4, 'pending')
		RETURNING`+entryColumns,
		prospectID, opportunityID, activityID, eventDate)
	return scanEntry(row)
}

// UpsertReprocessing schedules (or reschedules) the single reprocessing entry
// for an opportunity. The upsert is keyed by opportunity, not appended: a
// burst of historical backfill coalesces into one entry, and restarting a
// running sweep re-pends its row rather than duplicating it.
func (r *Repository) UpsertReprocessing(ctx context.Context, prospectID, opportunityID uuid.UUID, scheduledFor time.Time) (Entry, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO queue_entries (kind, prospect_id, opportunity_id, scheduled_for, status)
		VALUES ('opportunity_reprocessing', $1, $2, $3, 'pending')
		ON CONFLICT (opportunity_id) WHERE kind = 'opportunity_reprocessing' AND status IN ('pending', 'processing')
		DO UPDATE SET
			scheduled_for = EXCLUDED.scheduled_for,
			status = 'pending',
			enqueued_at = now(),
			started_at = NULL,
			retry_count = 0,
			processed = 0,
			total = 0,
			last_error = NULL
		RETURNING`+entryColumns,
		prospectID, opportunityID, scheduledFor)
	return scanEntry(row)
}

// CancelReprocessing removes the pending reprocessing entry, if any.
func (r *Repository) CancelReprocessing(ctx context.Context, opportunityID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		DELETE FROM queue_entries
		WHERE kind = 'opportunity_reprocessing' AND opportunity_id = $1 AND status = 'pending'
	`, opportunityID)
	return err
}

// GetReprocessingEntry returns the live reprocessing entry for an opportunity.
func (r *Repository) GetReprocessingEntry(ctx context.Context, opportunityID uuid.UUID) (Entry, bool, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT`+entryColumns+`
		FROM queue_entries
		WHERE kind = 'opportunity_reprocessing' AND opportunity_id = $1 AND status IN ('pending', 'processing')
	`, opportunityID)
	e, err := scanEntry(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}
	return e, true, nil
}

// ClaimNext atomically claims the next eligible entry, skipping prospects
// that already have an active job. Due reprocessing entries take precedence
// over activity entries for the same eligibility window; activity entries
// are ordered by eventDate, which is what yields the per-prospect
// chronological invariant.
func (r *Repository) ClaimNext(ctx context.Context, busyProspects []uuid.UUID) (Entry, bool, error) {
	if busyProspects == nil {
		busyProspects = []uuid.UUID{}
	}
	row := r.pool.QueryRow(ctx, `
		WITH next AS (
			SELECT id
			FROM queue_entries
			WHERE status = 'pending'
			  AND (kind = 'activity' OR scheduled_for <= now())
			  AND NOT (prospect_id = ANY($1))
			ORDER BY
				CASE WHEN kind = 'opportunity_reprocessing' THEN 0 ELSE 1 END,
				COALESCE(event_date, scheduled_for) ASC,
				enqueued_at ASC
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		UPDATE queue_entries q
		SET status = 'processing', started_at = now()
		FROM next
		WHERE q.id = next.id
		RETURNING`+entryColumns,
		busyProspects)
	e, err := scanEntry(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}
	return e, true, nil
}

// ClaimNextForOpportunities claims the earliest pending activity entry whose
// opportunity is among the given ones, ignoring prospect busyness. Used to
// feed activities into a sweep already running for their opportunity.
func (r *Repository) ClaimNextForOpportunities(ctx context.Context, opportunityIDs []uuid.UUID) (Entry, bool, error) {
	if len(opportunityIDs) == 0 {
		return Entry{}, false, nil
	}
	row := r.pool.QueryRow(ctx, `
		WITH next AS (
			SELECT id
			FROM queue_entries
			WHERE status = 'pending' AND kind = 'activity' AND opportunity_id = ANY($1)
			ORDER BY event_date ASC, enqueued_at ASC
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		UPDATE queue_entries q
		SET status = 'processing', started_at = now()
		FROM next
		WHERE q.id = next.id
		RETURNING`+entryColumns,
		opportunityIDs)
	e, err := scanEntry(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}
	return e, true, nil
}

// Requeue puts a claimed entry back to pending without touching its retry
// budget, for entries that turned out not to be runnable yet.
func (r *Repository) Requeue(ctx context.Context, entryID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE queue_entries SET status = 'pending', started_at = NULL WHERE id = $1
	`, entryID)
	return err
}

// MarkDone finalizes an entry.
func (r *Repository) MarkDone(ctx context.Context, entryID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE queue_entries SET status = 'done', last_error = NULL WHERE id = $1
	`, entryID)
	return err
}

// MarkFailed records a failure. When retry is true and the retry budget is
// not exhausted the entry goes back to pending for a later dispatch;
// otherwise it lands in failed and stays visible to the status surface.
// Reports whether the entry landed terminally in failed.
func (r *Repository) MarkFailed(ctx context.Context, entryID uuid.UUID, cause string, retry bool, maxRetries int) (bool, error) {
	if retry {
		tag, err := r.pool.Exec(ctx, `
			UPDATE queue_entries
			SET status = 'pending', started_at = NULL, retry_count = retry_count + 1, last_error = $2
			WHERE id = $1 AND retry_count < $3
		`, entryID, cause, maxRetries)
		if err != nil {
			return false, err
		}
		if tag.RowsAffected() > 0 {
			return false, nil
		}
	}
	_, err := r.pool.Exec(ctx, `
		UPDATE queue_entries SET status = 'failed', last_error = $2 WHERE id = $1
	`, entryID, cause)
	return true, err
}

// ResetStale sweeps entries stuck in processing beyond the staleness
// threshold back to pending. Called once on dispatcher startup; idempotency
// of the pipeline itself protects against duplicate side effects.
func (r *Repository) ResetStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE queue_entries
		SET status = 'pending', started_at = NULL
		WHERE status = 'processing' AND started_at < now() - $1::interval
	`, olderThan)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// UpdateReprocessingProgress mirrors sweep progress onto the entry row.
func (r *Repository) UpdateReprocessingProgress(ctx context.Context, entryID uuid.UUID, processed, total int) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE queue_entries SET processed = $2, total = $3 WHERE id = $1
	`, entryID, processed, total)
	return err
}

// GetLatestEntry returns the most recently enqueued entry of any kind and
// status for an opportunity, for the status surface.
func (r *Repository) GetLatestEntry(ctx context.Context, opportunityID uuid.UUID) (Entry, bool, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT`+entryColumns+`
		FROM queue_entries
		WHERE opportunity_id = $1
		ORDER BY enqueued_at DESC
		LIMIT 1
	`, opportunityID)
	e, err := scanEntry(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}
	return e, true, nil
}

// PendingActivityEntries returns the live activity entries for an
// opportunity, for the status surface.
func (r *Repository) PendingActivityEntries(ctx context.Context, opportunityID uuid.UUID) ([]Entry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT`+entryColumns+`
		FROM queue_entries
		WHERE kind = 'activity' AND opportunity_id = $1 AND status IN ('pending', 'processing', 'failed')
		ORDER BY event_date ASC
	`, opportunityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]Entry, 0)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
