// Package guardrails runs the ordered policy gate between classification
// and dispatch: the first stage that finds a reason to intervene wins.
package guardrails

import (
	"regexp"
	"strings"

	"github.com/leaseos/leaseline/internal/classifier"
	"github.com/leaseos/leaseline/internal/domain"
)

// Outcome is the policy gate's verdict for a claimed message.
type Outcome string

const (
	OutcomeSend     Outcome = "send"
	OutcomeDraft    Outcome = "draft"
	OutcomeEscalate Outcome = "escalate"
	OutcomeBlocked  Outcome = "blocked"
)

// Eligibility reports whether a message is eligible for automated dispatch
// at all, independent of send vs draft.
type Eligibility struct {
	Eligible bool
	Reason   string
}

// Input is everything a guardrail stage needs to evaluate one message.
type Input struct {
	PlatformActive   bool
	SendMode         domain.SendMode
	Body             string
	Intent           classifier.Intent
	RuleFound        bool
	RuleEnabled      bool
	TemplateFound    bool
	HasCandidateSlots bool
	AIOutcome        classifier.WorkflowOutcome
	Confidence       float64
	RiskLevel        classifier.RiskLevel
}

// Result is the policy gate's full verdict.
type Result struct {
	Outcome               Outcome
	Reasons               []string
	ReviewStatus          string
	ActionQueue           string
	EscalationReasonCode  string
	CoercedWorkflowOutcome classifier.WorkflowOutcome
	Eligibility           Eligibility
}

var unsafePatterns = []struct {
	name string
	re   *regexp.Regexp
}{
	{"legal_threat", regexp.MustCompile(`(?i)\b(lawsuit|sue you|lawyer|attorney|legal action|fair housing complaint)\b`)},
	{"abusive_language", regexp.MustCompile(`(?i)\b(f+u+c+k|asshole|idiot|shut up|screw you)\b`)},
}

// Evaluate runs the eight guardrail stages in order against one message's
// classification and account context. The first stage that finds a reason
// to intervene determines the result; later stages never run.
func Evaluate(in Input) Result {
	// 1. Platform policy inactive.
	if !in.PlatformActive {
		return Result{
			Outcome:     OutcomeBlocked,
			Reasons:     []string{"policy_platform_inactive"},
			Eligibility: Eligibility{Eligible: false, Reason: "policy_platform_inactive"},
		}
	}

	// 2. Unsubscribe intent.
	if in.Intent == classifier.IntentUnsubscribe {
		return Result{
			Outcome:              OutcomeEscalate,
			Reasons:              []string{"escalate_unsubscribe_requested"},
			EscalationReasonCode: "escalate_unsubscribe_requested",
			Eligibility:          Eligibility{Eligible: false, Reason: "escalate_unsubscribe_requested"},
		}
	}

	// 3. Unsafe content patterns.
	if pattern, ok := matchUnsafePattern(in.Body); ok {
		reason := "escalate_" + pattern
		return Result{
			Outcome:              OutcomeEscalate,
			Reasons:              []string{reason},
			ReviewStatus:         "hold",
			ActionQueue:          "agent_action",
			EscalationReasonCode: reason,
			Eligibility:          Eligibility{Eligible: false, Reason: reason},
		}
	}

	// 4. Non-tour intent without a matching rule or template.
	if in.Intent != classifier.IntentTourRequest && (!in.RuleFound || !in.TemplateFound) {
		return Result{
			Outcome:              OutcomeEscalate,
			Reasons:              []string{"escalate_non_tour_intent"},
			EscalationReasonCode: "escalate_non_tour_intent",
			Eligibility:          Eligibility{Eligible: false, Reason: "escalate_non_tour_intent"},
		}
	}

	// 5. Tour intent without any candidate slot.
	if in.Intent == classifier.IntentTourRequest && !in.HasCandidateSlots {
		return Result{
			Outcome:              OutcomeEscalate,
			Reasons:              []string{"escalate_no_slot_candidates"},
			EscalationReasonCode: "escalate_no_slot_candidates",
			Eligibility:          Eligibility{Eligible: false, Reason: "escalate_no_slot_candidates"},
		}
	}

	reasons := []string{}

	// 6. AI human_required, low confidence, or high/critical risk coerces
	// the outcome to human_required and holds for agent review.
	if in.AIOutcome == classifier.OutcomeHumanRequired || in.Confidence < 0.5 ||
		in.RiskLevel == classifier.RiskHigh || in.RiskLevel == classifier.RiskCritical {
		return Result{
			Outcome:                OutcomeEscalate,
			Reasons:                append(reasons, "human_required_coerced"),
			ReviewStatus:           "hold",
			ActionQueue:            "agent_action",
			CoercedWorkflowOutcome: classifier.OutcomeHumanRequired,
			Eligibility:            Eligibility{Eligible: false, Reason: "human_required_coerced"},
		}
	}

	// 7. Draft-only platform or disabled rule.
	if in.SendMode == domain.SendModeDraftOnly || (in.RuleFound && !in.RuleEnabled) {
		return Result{
			Outcome:     OutcomeDraft,
			Reasons:     append(reasons, "policy_draft_required"),
			Eligibility: Eligibility{Eligible: true, Reason: "policy_draft_required"},
		}
	}

	// 8. Otherwise, eligible to send.
	return Result{
		Outcome:     OutcomeSend,
		Reasons:     reasons,
		Eligibility: Eligibility{Eligible: true, Reason: "policy_ok"},
	}
}

func matchUnsafePattern(body string) (string, bool) {
	lower := strings.ToLower(body)
	for _, p := range unsafePatterns {
		if p.re.MatchString(lower) {
			return p.name, true
		}
	}
	return "", false
}
