package intelligence

import (
	"context"
	"fmt"
	"time"

	"dealpulse_backend/internal/activities"
	"dealpulse_backend/internal/crm"
	"dealpulse_backend/internal/events"
	"dealpulse_backend/platform/apperr"
	"dealpulse_backend/platform/logger"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Options are the injected pipeline knobs.
type Options struct {
	// FanoutLimit bounds the number of concurrent Phase 1 analyses.
	FanoutLimit int
	// CommitTimeout bounds the Phase 5 transaction.
	CommitTimeout time.Duration
}

// Pipeline runs the five-phase derivation for exactly one activity at a
// time. Callers (the dispatcher and the reprocessing controller) guarantee
// that no two invocations for the same prospect run concurrently.
type Pipeline struct {
	store   Store
	analyst Analyst
	bus     events.Bus
	opts    Options
	log     *logger.Logger
}

func NewPipeline(store Store, analyst Analyst, bus events.Bus, opts Options, log *logger.Logger) *Pipeline {
	if opts.FanoutLimit < 1 {
		opts.FanoutLimit = 1
	}
	return &Pipeline{
		store:   store,
		analyst: analyst,
		bus:     bus,
		opts:    opts,
		log:     log,
	}
}

// ProcessActivityForIntelligence derives intelligence from one activity and
// commits it atomically. Either all Phase 1-4 results land together in Phase
// 5 or none do; the lone exception is the Phase 0 summary, which is
// idempotent and safe to be visible early.
func (p *Pipeline) ProcessActivityForIntelligence(ctx context.Context, activityID, opportunityID uuid.UUID) error {
	activity, err := p.store.GetActivity(ctx, activityID)
	if err != nil {
		return err
	}

	actx, err := p.runSummaryPhase(ctx, &activity)
	if err != nil {
		return err
	}

	// Skip condition: already committed for this opportunity.
	if activity.ProcessedForOpportunity(opportunityID) {
		p.log.Debug("activity already processed for opportunity, skipping",
			"activityId", activityID, "opportunityId", opportunityID)
		return nil
	}

	contacts, err := p.store.ContactsForActivity(ctx, activityID)
	if err != nil {
		return err
	}

	// Phase 1: independent analyses, bounded fan-out, pure deltas.
	deltas, err := p.runContactAnalyses(ctx, actx, contacts)
	if err != nil {
		return err
	}

	// Phase 2: fetch the documents the deltas apply to. Mutated only in
	// memory from here until the commit.
	opportunity, err := p.store.GetOpportunity(ctx, opportunityID)
	if err != nil {
		return err
	}

	contactIDs := make([]uuid.UUID, len(contacts))
	for i, c := range contacts {
		contactIDs[i] = c.ID
	}
	snapshot, err := p.store.ContactIntelligenceSnapshot(ctx, opportunityID, contactIDs)
	if err != nil {
		return err
	}

	// Phase 3: apply deltas, then the narrative call that needs them.
	updated, err := p.runNarrativePhase(ctx, actx, contacts, opportunityID, snapshot, deltas)
	if err != nil {
		return err
	}

	// Phase 4: deal-level synthesis over the updated contact state.
	if err := p.runDealSynthesis(ctx, actx, &opportunity, updated); err != nil {
		return err
	}

	// Phase 5: one transaction, all or nothing.
	commitCtx := ctx
	if p.opts.CommitTimeout > 0 {
		var cancel context.CancelFunc
		commitCtx, cancel = context.WithTimeout(ctx, p.opts.CommitTimeout)
		defer cancel()
	}
	if err := p.store.CommitIntelligence(commitCtx, CommitSet{
		ActivityID:    activityID,
		OpportunityID: opportunityID,
		Opportunity:   opportunity,
		Contacts:      updated,
	}); err != nil {
		return apperr.Transient("commit intelligence", err).WithOp("pipeline.commit")
	}

	p.bus.Publish(ctx, events.ActivityProcessed{
		BaseEvent:     events.NewBaseEvent(),
		ActivityID:    activityID,
		OpportunityID: opportunityID,
	})

	return nil
}

// runSummaryPhase is Phase 0: summarize once, persist immediately.
func (p *Pipeline) runSummaryPhase(ctx context.Context, activity *activities.Activity) (ActivityContext, error) {
	actx := ActivityContext{
		ActivityID: activity.ID,
		Kind:       string(activity.Kind),
		EventDate:  activity.EventDate,
		Content:    activity.ContentText(),
	}

	if activity.AISummary == nil {
		summary, err := p.analyst.SummarizeActivity(ctx, actx)
		if err != nil {
			return ActivityContext{}, fmt.Errorf("summarize activity: %w", err)
		}
		if err := p.store.SaveActivitySummary(ctx, activity.ID, summary); err != nil {
			return ActivityContext{}, err
		}
		activity.AISummary = &summary
	}

	actx.Summary = *activity.AISummary
	return actx, nil
}

func (p *Pipeline) runContactAnalyses(ctx context.Context, actx ActivityContext, contacts []crm.Contact) (map[uuid.UUID]*ContactDelta, error) {
	deltas := make(map[uuid.UUID]*ContactDelta, len(contacts))
	sem := semaphore.NewWeighted(int64(p.opts.FanoutLimit))
	g, gctx := errgroup.WithContext(ctx)

	for _, contact := range contacts {
		delta := &ContactDelta{ContactID: contact.ID}
		deltas[contact.ID] = delta
		in := ContactAnalysisInput{Activity: actx, Contact: contact}

		// Each analysis writes a distinct delta field; the errgroup wait
		// is the synchronization point before anyone reads them.
		runs := []func() error{
			func() error { out, err := p.analyst.AnalyzeEngagement(gctx, in); delta.Engagement = out; return err },
			func() error { out, err := p.analyst.AnalyzeBehavioralSignals(gctx, in); delta.Signals = out; return err },
			func() error { out, err := p.analyst.AnalyzeResponsiveness(gctx, in); delta.Responsiveness = out; return err },
			func() error { out, err := p.analyst.AssignRole(gctx, in); delta.Role = out; return err },
			func() error {
				out, err := p.analyst.AnalyzeCommunicationPatterns(gctx, in)
				delta.Communication = out
				return err
			},
		}
		for _, run := range runs {
			run := run
			g.Go(func() error {
				if err := sem.Acquire(gctx, 1); err != nil {
					return err
				}
				defer sem.Release(1)
				return run()
			})
		}
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("contact analyses: %w", err)
	}
	return deltas, nil
}

func (p *Pipeline) runNarrativePhase(ctx context.Context, actx ActivityContext, contacts []crm.Contact, opportunityID uuid.UUID, snapshot map[uuid.UUID]crm.ContactIntelligence, deltas map[uuid.UUID]*ContactDelta) ([]crm.ContactIntelligence, error) {
	updated := make([]crm.ContactIntelligence, 0, len(contacts))

	for _, contact := range contacts {
		intel, ok := snapshot[contact.ID]
		if !ok {
			intel = crm.ContactIntelligence{ContactID: contact.ID, OpportunityID: opportunityID}
		}

		if delta := deltas[contact.ID]; delta != nil {
			delta.applyTo(&intel)
		}

		narrative, err := p.analyst.WriteRelationshipNarrative(ctx, NarrativeInput{
			Activity:     actx,
			Contact:      contact,
			Intelligence: intel,
		})
		if err != nil {
			return nil, fmt.Errorf("relationship narrative: %w", err)
		}
		intel.Narrative = &narrative

		updated = append(updated, intel)
	}

	return updated, nil
}

func (p *Pipeline) runDealSynthesis(ctx context.Context, actx ActivityContext, opportunity *crm.Opportunity, contacts []crm.ContactIntelligence) error {
	in := DealInput{Activity: actx, Opportunity: *opportunity, Contacts: contacts}

	qualification, err := p.analyst.QualifyDeal(ctx, in)
	if err != nil {
		return fmt.Errorf("qualify deal: %w", err)
	}

	health, err := p.analyst.AssessDealHealth(ctx, in)
	if err != nil {
		return fmt.Errorf("assess deal health: %w", err)
	}

	summary, err := p.analyst.SummarizeDeal(ctx, in)
	if err != nil {
		return fmt.Errorf("summarize deal: %w", err)
	}

	opportunity.Qualification = qualification
	opportunity.Health = health
	opportunity.Narrative = &summary
	return nil
}
