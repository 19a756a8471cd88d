package activities

import (
	"context"
	"fmt"
	"time"

	"dealpulse_backend/internal/crm"
	"dealpulse_backend/internal/events"
	"dealpulse_backend/internal/queue"
	"dealpulse_backend/platform/apperr"
	"dealpulse_backend/platform/logger"

	"github.com/google/uuid"
)

// Enqueuer is the slice of the queue store the intake path needs.
type Enqueuer interface {
	EnqueueActivity(ctx context.Context, prospectID, opportunityID, activityID uuid.UUID, eventDate time.Time) (queue.Entry, error)
}

// Waker nudges the dispatcher process so a fresh entry is picked up without
// waiting for the next poll tick. Optional; polling alone is correct.
type Waker interface {
	WakeDispatcher(ctx context.Context) error
}

// Service is the trigger surface: every activity created by any external
// source (webhook, user action, dataroom visit, email/calendar sync) flows
// through CreateActivity.
type Service struct {
	repo     *Repository
	crm      *crm.Repository
	contacts *crm.ContactService
	queue    Enqueuer
	waker    Waker
	bus      events.Bus
	log      *logger.Logger
}

func NewService(repo *Repository, crmRepo *crm.Repository, contacts *crm.ContactService, q Enqueuer, waker Waker, bus events.Bus, log *logger.Logger) *Service {
	return &Service{
		repo:     repo,
		crm:      crmRepo,
		contacts: contacts,
		queue:    q,
		waker:    waker,
		bus:      bus,
		log:      log,
	}
}

// CreateInput carries one incoming activity. OpportunityID is optional and
// resolved lazily to the prospect's routing opportunity when absent.
type CreateInput struct {
	Kind          Kind
	ProspectID    uuid.UUID
	OpportunityID *uuid.UUID
	EventDate     time.Time
	Email         *EmailDetails
	Calendar      *CalendarDetails
	Generic       *GenericDetails
	Counterparts  []crm.ObservedCounterpart
}

// CreateActivity persists the activity, auto-creates newly observed
// counterpart contacts, and enqueues it for intelligence processing. The
// queue write is durable before this returns.
func (s *Service) CreateActivity(ctx context.Context, input CreateInput) (Activity, error) {
	if _, err := s.crm.GetProspect(ctx, input.ProspectID); err != nil {
		return Activity{}, err
	}

	opportunityID, err := s.resolveOpportunity(ctx, input)
	if err != nil {
		return Activity{}, err
	}

	contactIDs, err := s.ensureContacts(ctx, input)
	if err != nil {
		return Activity{}, err
	}

	activity := Activity{
		Kind:          input.Kind,
		ProspectID:    input.ProspectID,
		OpportunityID: opportunityID,
		EventDate:     input.EventDate.UTC(),
		Email:         input.Email,
		Calendar:      input.Calendar,
		Generic:       input.Generic,
	}

	created, err := s.repo.Create(ctx, activity, contactIDs)
	if err != nil {
		return Activity{}, fmt.Errorf("create activity: %w", err)
	}

	if _, err := s.queue.EnqueueActivity(ctx, created.ProspectID, created.OpportunityID, created.ID, created.EventDate); err != nil {
		return Activity{}, fmt.Errorf("enqueue activity: %w", err)
	}

	s.bus.Publish(ctx, events.ActivityCreated{
		BaseEvent:     events.NewBaseEvent(),
		ActivityID:    created.ID,
		ProspectID:    created.ProspectID,
		OpportunityID: created.OpportunityID,
		EventDate:     created.EventDate,
	})

	if s.waker != nil {
		if err := s.waker.WakeDispatcher(ctx); err != nil {
			s.log.Warn("dispatcher wake failed, relying on poll interval", "error", err)
		}
	}

	return created, nil
}

// GetActivity returns one recorded activity with its processing markers.
func (s *Service) GetActivity(ctx context.Context, id uuid.UUID) (Activity, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) resolveOpportunity(ctx context.Context, input CreateInput) (uuid.UUID, error) {
	if input.OpportunityID != nil {
		opp, err := s.crm.GetOpportunity(ctx, *input.OpportunityID)
		if err != nil {
			return uuid.Nil, err
		}
		if opp.ProspectID != input.ProspectID {
			return uuid.Nil, apperr.Validation("opportunity does not belong to prospect")
		}
		return opp.ID, nil
	}

	opp, err := s.crm.ResolveRoutingOpportunity(ctx, input.ProspectID)
	if err != nil {
		return uuid.Nil, err
	}
	return opp.ID, nil
}

func (s *Service) ensureContacts(ctx context.Context, input CreateInput) ([]uuid.UUID, error) {
	seen := make(map[string]struct{}, len(input.Counterparts))
	ids := make([]uuid.UUID, 0, len(input.Counterparts))

	for _, obs := range input.Counterparts {
		if obs.Email == "" {
			continue
		}
		if _, dup := seen[obs.Email]; dup {
			continue
		}
		seen[obs.Email] = struct{}{}

		contact, err := s.contacts.EnsureContact(ctx, input.ProspectID, obs)
		if err != nil {
			return nil, err
		}
		ids = append(ids, contact.ID)
	}

	return ids, nil
}
