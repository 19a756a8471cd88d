// Package crm owns the prospect, opportunity and contact records together
// with the intelligence aggregates derived from activities. Intelligence
// fields are mutated exclusively by the pipeline under the single-writer
// discipline enforced by the queue dispatcher.
package crm

import (
	"time"

	"github.com/google/uuid"
)

// OpportunityStatus is the lifecycle state of a sales cycle.
type OpportunityStatus string

const (
	OpportunityOpen       OpportunityStatus = "open"
	OpportunityClosedWon  OpportunityStatus = "closed_won"
	OpportunityClosedLost OpportunityStatus = "closed_lost"
)

// Prospect is a company being pursued as a sales target.
type Prospect struct {
	ID        uuid.UUID
	Name      string
	Domain    *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Qualification holds the MEDDPICC deal-qualification framework fields.
// All fields are nullable: they fill in as intelligence accumulates.
type Qualification struct {
	Metrics          *string `json:"metrics,omitempty"`
	EconomicBuyer    *string `json:"economicBuyer,omitempty"`
	DecisionCriteria *string `json:"decisionCriteria,omitempty"`
	DecisionProcess  *string `json:"decisionProcess,omitempty"`
	PaperProcess     *string `json:"paperProcess,omitempty"`
	IdentifiedPain   *string `json:"identifiedPain,omitempty"`
	Champion         *string `json:"champion,omitempty"`
	Competition      *string `json:"competition,omitempty"`
}

// DealHealth aggregates deal-level health indicators.
type DealHealth struct {
	Score    *int     `json:"score,omitempty"` // 0-100
	Momentum *string  `json:"momentum,omitempty"`
	Risks    []string `json:"risks,omitempty"`
}

// Opportunity is one sales cycle associated with a prospect. It owns the
// mutable deal-level intelligence aggregate.
type Opportunity struct {
	ID            uuid.UUID
	ProspectID    uuid.UUID
	Name          string
	Status        OpportunityStatus
	Qualification Qualification
	Health        DealHealth
	Narrative     *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Contact is a counterpart person at a prospect, created automatically when
// first observed on a monitored channel.
type Contact struct {
	ID         uuid.UUID
	ProspectID uuid.UUID
	Name       string
	Email      string
	Phone      *string
	CreatedAt  time.Time
}

// Responsiveness describes how quickly and reliably a contact replies.
type Responsiveness struct {
	Score         *int     `json:"score,omitempty"` // 0-100
	AvgReplyHours *float64 `json:"avgReplyHours,omitempty"`
	Trend         *string  `json:"trend,omitempty"`
}

// Engagement describes the contact's engagement level on this opportunity.
type Engagement struct {
	Level *string `json:"level,omitempty"`
	Notes *string `json:"notes,omitempty"`
}

// Communication describes observed communication patterns.
type Communication struct {
	Tone             *string `json:"tone,omitempty"`
	Cadence          *string `json:"cadence,omitempty"`
	PreferredChannel *string `json:"preferredChannel,omitempty"`
}

// ContactIntelligence is the per-opportunity intelligence aggregate for one
// contact, keyed by (contact, opportunity).
type ContactIntelligence struct {
	ContactID      uuid.UUID
	OpportunityID  uuid.UUID
	Role           *string
	Responsiveness *Responsiveness
	Signals        []string
	Engagement     *Engagement
	Communication  *Communication
	Narrative      *string
	UpdatedAt      time.Time
}
