// Package intelligence implements the staged, transactionally-committed AI
// derivation that turns one activity into durable contact and deal
// intelligence.
package intelligence

import (
	"context"
	"time"

	"dealpulse_backend/internal/crm"

	"github.com/google/uuid"
)

// ActivityContext is the activity-derived input shared by all analyses.
type ActivityContext struct {
	ActivityID uuid.UUID
	Kind       string
	EventDate  time.Time
	Content    string
	Summary    string
}

// ContactAnalysisInput feeds one Phase 1 contact analysis.
type ContactAnalysisInput struct {
	Activity ActivityContext
	Contact  crm.Contact
}

// NarrativeInput feeds the Phase 3 relationship narrative, which depends on
// the contact intelligence state after the Phase 1 deltas were applied.
type NarrativeInput struct {
	Activity     ActivityContext
	Contact      crm.Contact
	Intelligence crm.ContactIntelligence
}

// DealInput feeds the Phase 4 deal-level synthesis.
type DealInput struct {
	Activity    ActivityContext
	Opportunity crm.Opportunity
	Contacts    []crm.ContactIntelligence
}

// Analyst is the model-invocation layer: each call is an opaque asynchronous
// function with a typed input and output. Retry and timeout policy live
// behind this interface; the pipeline only consumes success or failure.
type Analyst interface {
	// Phase 0
	SummarizeActivity(ctx context.Context, in ActivityContext) (string, error)

	// Phase 1 (independent, fan out)
	AnalyzeEngagement(ctx context.Context, in ContactAnalysisInput) (*crm.Engagement, error)
	AnalyzeBehavioralSignals(ctx context.Context, in ContactAnalysisInput) ([]string, error)
	AnalyzeResponsiveness(ctx context.Context, in ContactAnalysisInput) (*crm.Responsiveness, error)
	AssignRole(ctx context.Context, in ContactAnalysisInput) (*string, error)
	AnalyzeCommunicationPatterns(ctx context.Context, in ContactAnalysisInput) (*crm.Communication, error)

	// Phase 3
	WriteRelationshipNarrative(ctx context.Context, in NarrativeInput) (string, error)

	// Phase 4
	QualifyDeal(ctx context.Context, in DealInput) (crm.Qualification, error)
	AssessDealHealth(ctx context.Context, in DealInput) (crm.DealHealth, error)
	SummarizeDeal(ctx context.Context, in DealInput) (string, error)
}

// ContactDelta is the pure data result of the Phase 1 analyses for one
// contact. Nothing here touches persisted state.
type ContactDelta struct {
	ContactID      uuid.UUID
	Engagement     *crm.Engagement
	Signals        []string
	Responsiveness *crm.Responsiveness
	Role           *string
	Communication  *crm.Communication
}

// applyTo merges the delta into the in-memory intelligence snapshot. Only
// fields the analyses produced are overwritten; signals accumulate without
// duplicates.
func (d ContactDelta) applyTo(intel *crm.ContactIntelligence) {
	if d.Engagement != nil {
		intel.Engagement = d.Engagement
	}
	if d.Responsiveness != nil {
		intel.Responsiveness = d.Responsiveness
	}
	if d.Role != nil {
		intel.Role = d.Role
	}
	if d.Communication != nil {
		intel.Communication = d.Communication
	}
	if len(d.Signals) > 0 {
		seen := make(map[string]struct{}, len(intel.Signals))
		for _, s := range intel.Signals {
			seen[s] = struct{}{}
		}
		for _, s := range d.Signals {
			if _, dup := seen[s]; !dup {
				intel.Signals = append(intel.Signals, s)
			}
		}
	}
}
