package activities

import (
	"time"

	"dealpulse_backend/internal/crm"

	"github.com/google/uuid"
)

// CreateActivityRequest is the intake payload. Exactly one details object
// must be present, matching kind.
type CreateActivityRequest struct {
	Kind          string             `json:"kind" validate:"required,oneof=email calendar generic"`
	ProspectID    uuid.UUID          `json:"prospectId" validate:"required"`
	OpportunityID *uuid.UUID         `json:"opportunityId"`
	EventDate     time.Time          `json:"eventDate" validate:"required"`
	Email         *EmailDetails      `json:"email"`
	Calendar      *CalendarDetails   `json:"calendar"`
	Generic       *GenericDetails    `json:"generic"`
	Counterparts  []CounterpartInput `json:"counterparts" validate:"dive"`
}

// CounterpartInput is an observed external participant on the activity.
type CounterpartInput struct {
	Name  string `json:"name"`
	Email string `json:"email" validate:"required,email"`
	Phone string `json:"phone"`
}

// ActivityResponse is the API shape of a recorded activity.
type ActivityResponse struct {
	ID            uuid.UUID        `json:"id"`
	Kind          Kind             `json:"kind"`
	ProspectID    uuid.UUID        `json:"prospectId"`
	OpportunityID uuid.UUID        `json:"opportunityId"`
	EventDate     time.Time        `json:"eventDate"`
	AISummary     *string          `json:"aiSummary,omitempty"`
	ProcessedFor  []uuid.UUID      `json:"processedForOpportunities,omitempty"`
	Email         *EmailDetails    `json:"email,omitempty"`
	Calendar      *CalendarDetails `json:"calendar,omitempty"`
	Generic       *GenericDetails  `json:"generic,omitempty"`
	CreatedAt     time.Time        `json:"createdAt"`
}

func toResponse(a Activity) ActivityResponse {
	return ActivityResponse{
		ID:            a.ID,
		Kind:          a.Kind,
		ProspectID:    a.ProspectID,
		OpportunityID: a.OpportunityID,
		EventDate:     a.EventDate,
		AISummary:     a.AISummary,
		ProcessedFor:  a.ProcessedFor,
		Email:         a.Email,
		Calendar:      a.Calendar,
		Generic:       a.Generic,
		CreatedAt:     a.CreatedAt,
	}
}

func (r CreateActivityRequest) toInput() CreateInput {
	counterparts := make([]crm.ObservedCounterpart, 0, len(r.Counterparts))
	for _, c := range r.Counterparts {
		counterparts = append(counterparts, crm.ObservedCounterpart{
			Name:  c.Name,
			Email: c.Email,
			Phone: c.Phone,
		})
	}
	return CreateInput{
		Kind:          Kind(r.Kind),
		ProspectID:    r.ProspectID,
		OpportunityID: r.OpportunityID,
		EventDate:     r.EventDate,
		Email:         r.Email,
		Calendar:      r.Calendar,
		Generic:       r.Generic,
		Counterparts:  counterparts,
	}
}

// validateDetails enforces the tagged-union shape: one details object, and
// it must match kind.
func (r CreateActivityRequest) validateDetails() bool {
	count := 0
	if r.Email != nil {
		count++
	}
	if r.Calendar != nil {
		count++
	}
	if r.Generic != nil {
		count++
	}
	if count != 1 {
		return false
	}
	switch Kind(r.Kind) {
	case KindEmail:
		return r.Email != nil
	case KindCalendar:
		return r.Calendar != nil
	case KindGeneric:
		return r.Generic != nil
	default:
		return false
	}
}
