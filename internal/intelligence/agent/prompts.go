package agent

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"dealpulse_backend/internal/intelligence"
)

const maxContentChars = 8000

func sanitize(text string, limit int) string {
	text = strings.TrimSpace(text)
	if len(text) > limit {
		// Back off to a rune boundary so the cut never produces invalid UTF-8.
		for limit > 0 && !utf8.RuneStart(text[limit]) {
			limit--
		}
		text = text[:limit] + "…"
	}
	return text
}

func writeActivityContext(sb *strings.Builder, in intelligence.ActivityContext) {
	fmt.Fprintf(sb, "ACTIVITY (%s, %s):\n", in.Kind, in.EventDate.Format(time.RFC3339))
	if in.Summary != "" {
		sb.WriteString("Summary: " + sanitize(in.Summary, 1000) + "\n")
	}
	sb.WriteString(sanitize(in.Content, maxContentChars) + "\n\n")
}

func writeContact(sb *strings.Builder, in intelligence.ContactAnalysisInput) {
	fmt.Fprintf(sb, "CONTACT: %s <%s>\n\n", in.Contact.Name, in.Contact.Email)
	writeActivityContext(sb, in.Activity)
}

func summaryPrompt(in intelligence.ActivityContext) (system, user string) {
	system = "You summarize one sales interaction in two to three sentences. " +
		"State who interacted, what was discussed and any commitments made. Respond with plain text only."

	var sb strings.Builder
	writeActivityContext(&sb, in)
	return system, sb.String()
}

func engagementPrompt(in intelligence.ContactAnalysisInput) (system, user string) {
	system = "You assess how engaged a contact is in an active sales cycle based on one interaction. " +
		`Respond with JSON: {"level": "high"|"medium"|"low"|null, "notes": string|null}. ` +
		"Use null when the interaction carries no engagement signal."

	var sb strings.Builder
	writeContact(&sb, in)
	return system, sb.String()
}

func signalsPrompt(in intelligence.ContactAnalysisInput) (system, user string) {
	system = "You extract behavioral signals about a contact from one sales interaction: " +
		"buying intent, hesitation, urgency, deferral to others, budget mentions. " +
		`Respond with JSON: {"signals": [string]}. Each signal is a short phrase. Empty array when none.`

	var sb strings.Builder
	writeContact(&sb, in)
	return system, sb.String()
}

func responsivenessPrompt(in intelligence.ContactAnalysisInput) (system, user string) {
	system = "You assess a contact's responsiveness from one interaction. " +
		`Respond with JSON: {"score": int 0-100|null, "avgReplyHours": number|null, "trend": "improving"|"steady"|"declining"|null}. ` +
		"Use null for anything the interaction does not evidence."

	var sb strings.Builder
	writeContact(&sb, in)
	return system, sb.String()
}

func rolePrompt(in intelligence.ContactAnalysisInput) (system, user string) {
	system = "You infer a contact's role in the buying process from one interaction: " +
		"decision maker, champion, influencer, blocker, end user, procurement, or unknown. " +
		`Respond with JSON: {"role": string|null}. Use null when the interaction gives no role signal.`

	var sb strings.Builder
	writeContact(&sb, in)
	return system, sb.String()
}

func communicationPrompt(in intelligence.ContactAnalysisInput) (system, user string) {
	system = "You describe a contact's communication patterns from one interaction. " +
		`Respond with JSON: {"tone": string|null, "cadence": string|null, "preferredChannel": string|null}.`

	var sb strings.Builder
	writeContact(&sb, in)
	return system, sb.String()
}

func narrativePrompt(in intelligence.NarrativeInput) (system, user string) {
	system = "You maintain a running narrative of the relationship with one contact on one deal. " +
		"Rewrite the narrative to incorporate the latest interaction and the current intelligence. " +
		"Three to five sentences, plain text only."

	var sb strings.Builder
	fmt.Fprintf(&sb, "CONTACT: %s <%s>\n", in.Contact.Name, in.Contact.Email)
	if in.Intelligence.Role != nil {
		sb.WriteString("Role: " + *in.Intelligence.Role + "\n")
	}
	if in.Intelligence.Engagement != nil && in.Intelligence.Engagement.Level != nil {
		sb.WriteString("Engagement: " + *in.Intelligence.Engagement.Level + "\n")
	}
	if len(in.Intelligence.Signals) > 0 {
		sb.WriteString("Signals: " + strings.Join(in.Intelligence.Signals, "; ") + "\n")
	}
	if in.Intelligence.Narrative != nil {
		sb.WriteString("\nPREVIOUS NARRATIVE:\n" + sanitize(*in.Intelligence.Narrative, 2000) + "\n")
	}
	sb.WriteString("\n")
	writeActivityContext(&sb, in.Activity)
	return system, sb.String()
}

func writeDeal(sb *strings.Builder, in intelligence.DealInput) {
	fmt.Fprintf(sb, "OPPORTUNITY: %s (%s)\n\n", in.Opportunity.Name, in.Opportunity.Status)
	if len(in.Contacts) > 0 {
		sb.WriteString("CONTACT INTELLIGENCE:\n")
		for _, c := range in.Contacts {
			fmt.Fprintf(sb, "- contact %s", c.ContactID)
			if c.Role != nil {
				fmt.Fprintf(sb, ", role: %s", *c.Role)
			}
			if len(c.Signals) > 0 {
				fmt.Fprintf(sb, ", signals: %s", strings.Join(c.Signals, "; "))
			}
			if c.Narrative != nil {
				fmt.Fprintf(sb, "\n  %s", sanitize(*c.Narrative, 600))
			}
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}
	writeActivityContext(sb, in.Activity)
}

func qualificationPrompt(in intelligence.DealInput) (system, user string) {
	system = "You qualify a deal using the MEDDPICC framework, updating the current state with the latest interaction. " +
		`Respond with JSON: {"metrics": string|null, "economicBuyer": string|null, "decisionCriteria": string|null, ` +
		`"decisionProcess": string|null, "paperProcess": string|null, "identifiedPain": string|null, ` +
		`"champion": string|null, "competition": string|null}. Keep known values unless the interaction changes them.`

	var sb strings.Builder
	writeQualificationState(&sb, in)
	writeDeal(&sb, in)
	return system, sb.String()
}

func writeQualificationState(sb *strings.Builder, in intelligence.DealInput) {
	q := in.Opportunity.Qualification
	pairs := []struct {
		label string
		value *string
	}{
		{"Metrics", q.Metrics},
		{"Economic buyer", q.EconomicBuyer},
		{"Decision criteria", q.DecisionCriteria},
		{"Decision process", q.DecisionProcess},
		{"Paper process", q.PaperProcess},
		{"Identified pain", q.IdentifiedPain},
		{"Champion", q.Champion},
		{"Competition", q.Competition},
	}
	sb.WriteString("CURRENT QUALIFICATION:\n")
	for _, p := range pairs {
		if p.value != nil {
			fmt.Fprintf(sb, "- %s: %s\n", p.label, *p.value)
		}
	}
	sb.WriteString("\n")
}

func healthPrompt(in intelligence.DealInput) (system, user string) {
	system = "You assess the health of a deal from its contact intelligence and the latest interaction. " +
		`Respond with JSON: {"score": int 0-100|null, "momentum": "accelerating"|"steady"|"stalling"|null, "risks": [string]}.`

	var sb strings.Builder
	writeDeal(&sb, in)
	return system, sb.String()
}

func dealSummaryPrompt(in intelligence.DealInput) (system, user string) {
	system = "You write an executive summary of where a deal stands: state, momentum, open risks, next steps. " +
		"Three to five sentences, plain text only."

	var sb strings.Builder
	writeDeal(&sb, in)
	return system, sb.String()
}
