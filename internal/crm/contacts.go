package crm

import (
	"context"
	"strings"

	"dealpulse_backend/platform/config"
	"dealpulse_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/nyaruka/phonenumbers"
)

// ContactService creates contacts when a new counterpart is observed on a
// monitored channel (inbox thread, meeting attendee list, dataroom access).
type ContactService struct {
	repo   *Repository
	region string
	log    *logger.Logger
}

func NewContactService(repo *Repository, cfg config.ContactConfig, log *logger.Logger) *ContactService {
	return &ContactService{
		repo:   repo,
		region: cfg.GetDefaultPhoneRegion(),
		log:    log,
	}
}

// ObservedCounterpart describes a person seen on an activity.
type ObservedCounterpart struct {
	Name  string
	Email string
	Phone string
}

// EnsureContact returns the contact for an observed counterpart, creating it
// (and its default opportunity associations) when not yet known.
func (s *ContactService) EnsureContact(ctx context.Context, prospectID uuid.UUID, obs ObservedCounterpart) (Contact, error) {
	email := strings.ToLower(strings.TrimSpace(obs.Email))

	if existing, found, err := s.repo.FindContactByEmail(ctx, prospectID, email); err != nil {
		return Contact{}, err
	} else if found {
		return existing, nil
	}

	name := strings.TrimSpace(obs.Name)
	if name == "" {
		name = email
	}

	contact := Contact{
		ProspectID: prospectID,
		Name:       name,
		Email:      email,
		Phone:      NormalizePhone(obs.Phone, s.region),
	}

	created, err := s.repo.CreateContact(ctx, contact)
	if err != nil {
		return Contact{}, err
	}

	s.log.Info("contact auto-created", "contactId", created.ID, "prospectId", prospectID, "email", email)
	return created, nil
}

// NormalizePhone parses a raw phone number and formats it as E.164.
// Returns nil when the input is blank or unparseable.
func NormalizePhone(raw, region string) *string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil
	}

	num, err := phonenumbers.Parse(trimmed, region)
	if err != nil || !phonenumbers.IsValidNumber(num) {
		return nil
	}

	formatted := phonenumbers.Format(num, phonenumbers.E164)
	return &formatted
}
