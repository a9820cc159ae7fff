// Package pipeline orchestrates classification, the guardrail policy gate,
// and template rendering into one decision per claimed message.
package pipeline

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/leaseos/leaseline/internal/classifier"
	"github.com/leaseos/leaseline/internal/db"
	"github.com/leaseos/leaseline/internal/domain"
	"github.com/leaseos/leaseline/internal/guardrails"
	"github.com/leaseos/leaseline/internal/template"
)

// maxSlotOptions caps the normalized candidate list handed to the template
// and to the slot-confirmation arbitration step.
const maxSlotOptions = 4

// Input is everything the pipeline needs to decide on one claimed message.
type Input struct {
	PlatformAccountID uuid.UUID
	PlatformActive    bool
	SendMode          domain.SendMode
	Body              string
	HasRecentOutbound bool
	FallbackIntent    classifier.Intent
	Candidates        []domain.CandidateSlot
	PendingSlot       *domain.PendingSlotConfirmation
	AI                classifier.AIClassifier
	AIEnabled         bool
	AIRequest         classifier.AIRequest
	TemplateContext   map[string]string
}

// Output is the pipeline's full decision for one message.
type Output struct {
	Intent                classifier.Intent
	EffectiveIntent       classifier.Intent
	FollowUp              bool
	Outcome               guardrails.Outcome
	ReplyBody             string
	WorkflowOutcome       classifier.WorkflowOutcome
	Confidence            float64
	RiskLevel             classifier.RiskLevel
	EscalationReasonCode  string
	SelectedSlotIndex     *int
	GuardrailReasons      []string
	ReviewStatus          string
	ActionQueue           string
	Eligibility           guardrails.Eligibility
	PendingSlotToStore    *domain.PendingSlotConfirmation
	ClearPendingSlot      bool
}

// Pipeline runs the decision pipeline against a store of rules and templates.
type Pipeline struct {
	queries *db.Queries
}

// New creates a Pipeline bound to a query layer (pool-scoped or
// transaction-scoped, per the caller's needs).
func New(queries *db.Queries) *Pipeline {
	return &Pipeline{queries: queries}
}

// Run classifies the message, resolves its rule and template, runs the
// guardrail gate, and renders a reply body, then layers slot-confirmation
// arbitration on top of the result.
func (p *Pipeline) Run(ctx context.Context, in Input) (Output, error) {
	originalIntent := classifier.ClassifyIntent(in.Body)
	followUp := classifier.DetectFollowUp(in.Body, in.HasRecentOutbound)

	judgment, _ := classifier.Classify(ctx, in.AI, in.AIEnabled, in.Body, in.HasRecentOutbound, in.FallbackIntent, in.AIRequest)
	effectiveIntent := judgment.Intent

	rule, ruleFound, err := p.queries.FindRuleByIntent(ctx, in.PlatformAccountID, string(effectiveIntent))
	if err != nil {
		return Output{}, fmt.Errorf("looking up automation rule: %w", err)
	}

	var tmpl db.Template
	templateFound := false
	if ruleFound {
		tmpl, templateFound, err = p.queries.FindTemplate(ctx, in.PlatformAccountID, rule.TemplateName)
		if err != nil {
			return Output{}, fmt.Errorf("looking up template: %w", err)
		}
	}

	candidates := normalizeCandidates(in.Candidates)

	gr := guardrails.Evaluate(guardrails.Input{
		PlatformActive:    in.PlatformActive,
		SendMode:          in.SendMode,
		Body:              in.Body,
		Intent:            effectiveIntent,
		RuleFound:         ruleFound,
		RuleEnabled:       ruleFound && rule.IsEnabled,
		TemplateFound:     templateFound,
		HasCandidateSlots: len(candidates) > 0,
		AIOutcome:         judgment.WorkflowOutcome,
		Confidence:        judgment.Confidence,
		RiskLevel:         judgment.RiskLevel,
	})

	out := Output{
		Intent:               originalIntent,
		EffectiveIntent:       effectiveIntent,
		FollowUp:              followUp,
		Outcome:               gr.Outcome,
		WorkflowOutcome:       judgment.WorkflowOutcome,
		Confidence:            judgment.Confidence,
		RiskLevel:             judgment.RiskLevel,
		EscalationReasonCode:  gr.EscalationReasonCode,
		GuardrailReasons:      gr.Reasons,
		ReviewStatus:          gr.ReviewStatus,
		ActionQueue:           gr.ActionQueue,
		Eligibility:           gr.Eligibility,
	}
	if gr.CoercedWorkflowOutcome != "" {
		out.WorkflowOutcome = gr.CoercedWorkflowOutcome
	}

	if gr.Eligibility.Eligible && templateFound {
		out.ReplyBody = template.Render(tmpl.Body, in.TemplateContext)
	}

	applySlotConfirmationArbitration(&out, in, candidates)

	return out, nil
}

// normalizeCandidates sorts candidates by (assignmentMode active-first,
// priority ascending, startsAt ascending) and caps the list at
// maxSlotOptions.
func normalizeCandidates(candidates []domain.CandidateSlot) []domain.CandidateSlot {
	out := make([]domain.CandidateSlot, len(candidates))
	copy(out, candidates)

	sort.SliceStable(out, func(i, j int) bool {
		if (out[i].Mode == domain.AssignmentActive) != (out[j].Mode == domain.AssignmentActive) {
			return out[i].Mode == domain.AssignmentActive
		}
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		if !out[i].StartsAt.Equal(out[j].StartsAt) {
			return out[i].StartsAt.Before(out[j].StartsAt)
		}
		if out[i].EndsAt != out[j].EndsAt {
			return out[i].EndsAt.Before(out[j].EndsAt)
		}
		if out[i].AgentName != out[j].AgentName {
			return out[i].AgentName < out[j].AgentName
		}
		return out[i].AgentID.String() < out[j].AgentID.String()
	})

	if len(out) > maxSlotOptions {
		out = out[:maxSlotOptions]
	}
	return out
}

// applySlotConfirmationArbitration implements the two branches of §4.7's
// slot confirmation logic on top of the base pipeline result.
func applySlotConfirmationArbitration(out *Output, in Input, candidates []domain.CandidateSlot) {
	if in.PendingSlot != nil && out.WorkflowOutcome == classifier.OutcomeShowingConfirmed &&
		classifier.MatchesPositiveConfirmation(in.Body) {
		out.ClearPendingSlot = true
		out.ReplyBody = confirmationReply(*in.PendingSlot)
		return
	}

	if in.PendingSlot == nil && out.WorkflowOutcome == classifier.OutcomeShowingConfirmed && len(candidates) >= 2 {
		chosen := candidates[0]
		out.WorkflowOutcome = classifier.OutcomeGeneralQuestion
		out.PendingSlotToStore = &domain.PendingSlotConfirmation{
			StartsAt:  chosen.StartsAt,
			EndsAt:    chosen.EndsAt,
			AgentID:   chosen.AgentID,
			AgentName: chosen.AgentName,
			Label:     chosen.Label,
		}
		out.SelectedSlotIndex = intPtr(0)
		out.ReplyBody = confirmationPrompt(chosen)
	}
}

func confirmationReply(slot domain.PendingSlotConfirmation) string {
	return fmt.Sprintf("Great, you're confirmed for %s with %s.", slot.StartsAt.Format("Mon Jan 2 3:04pm"), slot.AgentName)
}

func confirmationPrompt(slot domain.CandidateSlot) string {
	return fmt.Sprintf("Does %s with %s work for you?", slot.StartsAt.Format("Mon Jan 2 3:04pm"), slot.AgentName)
}

func intPtr(i int) *int { return &i }
