// Package activities owns interaction records (emails, meetings, notes and
// calls) and the intake path that turns an incoming event into queued work.
package activities

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Kind discriminates the activity variants sharing one queue.
type Kind string

const (
	KindEmail    Kind = "email"
	KindCalendar Kind = "calendar"
	KindGeneric  Kind = "generic"
)

// EmailDetails is the payload of an email activity.
type EmailDetails struct {
	Subject   string   `json:"subject"`
	Body      string   `json:"body"`
	FromEmail string   `json:"fromEmail"`
	ToEmails  []string `json:"toEmails"`
	ThreadID  *string  `json:"threadId,omitempty"`
}

// CalendarDetails is the payload of a calendar meeting activity.
type CalendarDetails struct {
	Title       string    `json:"title"`
	Description *string   `json:"description,omitempty"`
	StartTime   time.Time `json:"startTime"`
	EndTime     time.Time `json:"endTime"`
	Attendees   []string  `json:"attendees"`
	Location    *string   `json:"location,omitempty"`
}

// GenericDetails is the payload of a note or call activity.
type GenericDetails struct {
	Title   string `json:"title"`
	Note    string `json:"note"`
	Channel string `json:"channel"`
}

// Activity is one recorded interaction. Exactly one of the details fields is
// set, matching Kind; dispatch happens via a switch on Kind rather than
// inheritance.
type Activity struct {
	ID            uuid.UUID
	Kind          Kind
	ProspectID    uuid.UUID
	OpportunityID uuid.UUID
	// EventDate is when the interaction actually happened, distinct from
	// CreatedAt (when it was recorded). Ordering and the historical
	// classification both key off EventDate.
	EventDate    time.Time
	AISummary    *string
	ProcessedFor []uuid.UUID // opportunity IDs this activity was committed for
	Email        *EmailDetails
	Calendar     *CalendarDetails
	Generic      *GenericDetails
	CreatedAt    time.Time
}

// ProcessedForOpportunity reports whether the pipeline already committed
// intelligence for this activity on the given opportunity.
func (a Activity) ProcessedForOpportunity(opportunityID uuid.UUID) bool {
	for _, id := range a.ProcessedFor {
		if id == opportunityID {
			return true
		}
	}
	return false
}

// ContentText renders the variant payload as plain text for model prompts.
func (a Activity) ContentText() string {
	switch a.Kind {
	case KindEmail:
		if a.Email == nil {
			return ""
		}
		return fmt.Sprintf("Email from %s to %s\nSubject: %s\n\n%s",
			a.Email.FromEmail, strings.Join(a.Email.ToEmails, ", "), a.Email.Subject, a.Email.Body)
	case KindCalendar:
		if a.Calendar == nil {
			return ""
		}
		desc := ""
		if a.Calendar.Description != nil {
			desc = *a.Calendar.Description
		}
		return fmt.Sprintf("Meeting: %s (%s - %s)\nAttendees: %s\n\n%s",
			a.Calendar.Title,
			a.Calendar.StartTime.Format(time.RFC3339),
			a.Calendar.EndTime.Format(time.RFC3339),
			strings.Join(a.Calendar.Attendees, ", "),
			desc)
	case KindGeneric:
		if a.Generic == nil {
			return ""
		}
		return fmt.Sprintf("%s (%s)\n\n%s", a.Generic.Title, a.Generic.Channel, a.Generic.Note)
	default:
		return ""
	}
}

// Counterparts lists the external addresses observed on the activity, used
// for contact auto-creation. Internal addresses are filtered upstream by the
// provider integration; this only extracts.
func (a Activity) Counterparts() []string {
	switch a.Kind {
	case KindEmail:
		if a.Email == nil {
			return nil
		}
		out := make([]string, 0, len(a.Email.ToEmails)+1)
		if a.Email.FromEmail != "" {
			out = append(out, a.Email.FromEmail)
		}
		out = append(out, a.Email.ToEmails...)
		return out
	case KindCalendar:
		if a.Calendar == nil {
			return nil
		}
		return a.Calendar.Attendees
	default:
		return nil
	}
}
