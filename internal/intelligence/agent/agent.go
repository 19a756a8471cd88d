package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"dealpulse_backend/internal/crm"
	"dealpulse_backend/internal/intelligence"
	"dealpulse_backend/platform/apperr"
	"dealpulse_backend/platform/config"
	"dealpulse_backend/platform/logger"

	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

// Agent is the Gemini-backed Analyst. One shared rate limiter throttles all
// calls across the fan-out so parallel contact analyses cannot exceed the
// provider's request budget.
type Agent struct {
	client      *genai.Client
	profiles    Profiles
	limiter     *rate.Limiter
	callTimeout time.Duration
	maxAttempts int
	log         *logger.Logger
}

var _ intelligence.Analyst = (*Agent)(nil)

func New(ctx context.Context, cfg config.AIConfig, log *logger.Logger) (*Agent, error) {
	if cfg.GetGeminiAPIKey() == "" {
		return nil, fmt.Errorf("gemini api key not configured")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GetGeminiAPIKey(),
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("genai client: %w", err)
	}

	profiles, err := LoadProfiles(cfg.GetModelProfilesPath())
	if err != nil {
		return nil, err
	}

	rps := cfg.GetAIRequestsPerSecond()
	if rps <= 0 {
		rps = 1
	}
	maxAttempts := cfg.GetAIMaxAttempts()
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	callTimeout := cfg.GetAICallTimeout()
	if callTimeout <= 0 {
		callTimeout = 90 * time.Second
	}

	return &Agent{
		client:      client,
		profiles:    profiles,
		limiter:     rate.NewLimiter(rate.Limit(rps), 1),
		callTimeout: callTimeout,
		maxAttempts: maxAttempts,
		log:         log,
	}, nil
}

// invoke runs one model call with rate limiting, a per-attempt timeout and
// bounded retries. Failures after the retry budget surface as transient so
// the queue's retry policy applies.
func (a *Agent) invoke(ctx context.Context, phase, operation, system, user string, jsonMode bool) (string, error) {
	profile := a.profiles.For(phase)

	genCfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
		Temperature:       profile.Temperature,
	}
	if jsonMode {
		genCfg.ResponseMIMEType = "application/json"
	}

	start := time.Now()
	var lastErr error
	for attempt := 1; attempt <= a.maxAttempts; attempt++ {
		if err := a.limiter.Wait(ctx); err != nil {
			return "", err
		}

		text, err := a.generate(ctx, profile.Model, user, genCfg)
		if err == nil {
			a.log.AICall(operation, attempt, float64(time.Since(start).Milliseconds()), nil)
			return text, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return "", ctx.Err()
		}

		// Linear backoff between attempts, abandoned on cancellation.
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(time.Duration(attempt) * time.Second):
		}
	}

	a.log.AICall(operation, a.maxAttempts, float64(time.Since(start).Milliseconds()), lastErr)
	return "", apperr.Transient(fmt.Sprintf("%s: model invocation failed", operation), lastErr)
}

func (a *Agent) generate(ctx context.Context, model, user string, genCfg *genai.GenerateContentConfig) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, a.callTimeout)
	defer cancel()

	resp, err := a.client.Models.GenerateContent(callCtx, model, genai.Text(user), genCfg)
	if err != nil {
		return "", err
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", fmt.Errorf("empty model output")
	}
	return text, nil
}

// invokeJSON runs a JSON-mode call and decodes the result. Decode errors
// surface as transient so the queue's retry policy gets another attempt.
func invokeJSON[T any](ctx context.Context, a *Agent, phase, operation, system, user string) (T, error) {
	var out T
	text, err := a.invoke(ctx, phase, operation, system, user, true)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal([]byte(stripFences(text)), &out); err != nil {
		return out, apperr.Transient(fmt.Sprintf("%s: malformed model output", operation), err)
	}
	return out, nil
}

// stripFences removes a markdown code fence the model may wrap JSON in
// despite the response MIME type.
func stripFences(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}

// =============================================================================
// Analyst implementation
// =============================================================================

func (a *Agent) SummarizeActivity(ctx context.Context, in intelligence.ActivityContext) (string, error) {
	system, user := summaryPrompt(in)
	return a.invoke(ctx, PhaseSummary, "summarize_activity", system, user, false)
}

func (a *Agent) AnalyzeEngagement(ctx context.Context, in intelligence.ContactAnalysisInput) (*crm.Engagement, error) {
	system, user := engagementPrompt(in)
	out, err := invokeJSON[crm.Engagement](ctx, a, PhaseContact, "analyze_engagement", system, user)
	if err != nil {
		return nil, err
	}
	if out.Level == nil && out.Notes == nil {
		return nil, nil
	}
	return &out, nil
}

func (a *Agent) AnalyzeBehavioralSignals(ctx context.Context, in intelligence.ContactAnalysisInput) ([]string, error) {
	system, user := signalsPrompt(in)
	out, err := invokeJSON[struct {
		Signals []string `json:"signals"`
	}](ctx, a, PhaseContact, "analyze_signals", system, user)
	if err != nil {
		return nil, err
	}
	return out.Signals, nil
}

func (a *Agent) AnalyzeResponsiveness(ctx context.Context, in intelligence.ContactAnalysisInput) (*crm.Responsiveness, error) {
	system, user := responsivenessPrompt(in)
	out, err := invokeJSON[crm.Responsiveness](ctx, a, PhaseContact, "analyze_responsiveness", system, user)
	if err != nil {
		return nil, err
	}
	if out.Score == nil && out.AvgReplyHours == nil && out.Trend == nil {
		return nil, nil
	}
	return &out, nil
}

func (a *Agent) AssignRole(ctx context.Context, in intelligence.ContactAnalysisInput) (*string, error) {
	system, user := rolePrompt(in)
	out, err := invokeJSON[struct {
		Role *string `json:"role"`
	}](ctx, a, PhaseContact, "assign_role", system, user)
	if err != nil {
		return nil, err
	}
	if out.Role != nil && (*out.Role == "" || strings.EqualFold(*out.Role, "unknown")) {
		return nil, nil
	}
	return out.Role, nil
}

func (a *Agent) AnalyzeCommunicationPatterns(ctx context.Context, in intelligence.ContactAnalysisInput) (*crm.Communication, error) {
	system, user := communicationPrompt(in)
	out, err := invokeJSON[crm.Communication](ctx, a, PhaseContact, "analyze_communication", system, user)
	if err != nil {
		return nil, err
	}
	if out.Tone == nil && out.Cadence == nil && out.PreferredChannel == nil {
		return nil, nil
	}
	return &out, nil
}

func (a *Agent) WriteRelationshipNarrative(ctx context.Context, in intelligence.NarrativeInput) (string, error) {
	system, user := narrativePrompt(in)
	return a.invoke(ctx, PhaseNarrative, "write_narrative", system, user, false)
}

func (a *Agent) QualifyDeal(ctx context.Context, in intelligence.DealInput) (crm.Qualification, error) {
	system, user := qualificationPrompt(in)
	return invokeJSON[crm.Qualification](ctx, a, PhaseDeal, "qualify_deal", system, user)
}

func (a *Agent) AssessDealHealth(ctx context.Context, in intelligence.DealInput) (crm.DealHealth, error) {
	system, user := healthPrompt(in)
	return invokeJSON[crm.DealHealth](ctx, a, PhaseDeal, "assess_health", system, user)
}

func (a *Agent) SummarizeDeal(ctx context.Context, in intelligence.DealInput) (string, error) {
	system, user := dealSummaryPrompt(in)
	return a.invoke(ctx, PhaseDeal, "summarize_deal", system, user, false)
}
