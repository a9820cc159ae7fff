// Package classifier turns an inbound message body into an intent and,
// optionally, a full workflow-outcome judgment, heuristically or via an
// injected AI classifier.
package classifier

import (
	"context"
	"regexp"
	"strings"
)

// Intent is the heuristic classification of an inbound message.
type Intent string

const (
	IntentTourRequest         Intent = "tour_request"
	IntentPricingQuestion     Intent = "pricing_question"
	IntentAvailabilityQuestion Intent = "availability_question"
	IntentUnsubscribe         Intent = "unsubscribe"
	IntentUnknown             Intent = "unknown"
)

// WorkflowOutcome is the fixed outcome taxonomy an AI (or heuristic
// fallback) judgment can reach.
type WorkflowOutcome string

const (
	OutcomeGeneralQuestion  WorkflowOutcome = "general_question"
	OutcomeHumanRequired    WorkflowOutcome = "human_required"
	OutcomeNoReply          WorkflowOutcome = "no_reply"
	OutcomeNotInterested    WorkflowOutcome = "not_interested"
	OutcomeShowingConfirmed WorkflowOutcome = "showing_confirmed"
	OutcomeWantsReschedule  WorkflowOutcome = "wants_reschedule"
)

// RiskLevel is the AI classifier's assessed risk of the conversation.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// Judgment is the full classification result, from either the heuristic
// path or an AI classifier, normalized to one shape.
type Judgment struct {
	Intent          Intent
	Provider        string
	Ambiguity       float64
	SuggestedReply  string
	ReasonCode      string
	WorkflowOutcome WorkflowOutcome
	Confidence      float64
	RiskLevel       RiskLevel
}

// AIRequest is the input an AI classifier receives.
type AIRequest struct {
	InboundBody        string
	HasRecentOutbound  bool
	ConversationContext []string
	FewShotExamples    []string
	Playbook           string
	GeminiModel        string
}

// AIClassifier is the injected AI decision provider contract. Generation
// failure is the caller's signal to fall back to the heuristic path.
type AIClassifier interface {
	Classify(ctx context.Context, req AIRequest) (Judgment, error)
}

var tourTokens = []string{"tour", "showing", "see the place", "see the unit", "visit the apartment", "come see", "view the unit", "walkthrough"}
var pricingTokens = []string{"price", "pricing", "rent", "cost", "how much", "deposit", "fee"}
var availabilityTokens = []string{"available", "availability", "vacant", "move-in date", "when can i", "still open"}
var unsubscribeTokens = []string{"unsubscribe", "stop texting", "stop messaging", "remove me", "opt out", "do not contact"}
var followUpTokens = []string{"just checking", "checking in", "any update", "following up", "still there", "haven't heard"}

// ClassifyIntent classifies an inbound body by token-pattern matching, in
// the fixed priority order unsubscribe > tour > pricing > availability.
func ClassifyIntent(body string) Intent {
	lower := strings.ToLower(body)

	if containsAny(lower, unsubscribeTokens) {
		return IntentUnsubscribe
	}
	if containsAny(lower, tourTokens) {
		return IntentTourRequest
	}
	if containsAny(lower, pricingTokens) {
		return IntentPricingQuestion
	}
	if containsAny(lower, availabilityTokens) {
		return IntentAvailabilityQuestion
	}
	return IntentUnknown
}

// DetectFollowUp reports whether body reads as a check-in AND an outbound
// message was already sent earlier in the same thread.
func DetectFollowUp(body string, hasRecentOutbound bool) bool {
	if !hasRecentOutbound {
		return false
	}
	return containsAny(strings.ToLower(body), followUpTokens)
}

// EffectiveIntent is the original intent unless followUp is true, in which
// case the caller-provided fallback intent (typically the rule or template
// lookup key for check-in replies) is used.
func EffectiveIntent(original Intent, followUp bool, fallback Intent) Intent {
	if followUp {
		return fallback
	}
	return original
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}

var (
	positiveConfirmationRe = regexp.MustCompile(`(?i)\b(yes|confirm|confirmed|works for me|sounds good|that works|see you then|i'll be there|ill be there)\b`)
	negativeModifierRe     = regexp.MustCompile(`(?i)\b(not|no|can't|cant|doesn't work|reschedule|another time|different time)\b`)
)

// MatchesPositiveConfirmation reports whether body reads as an unambiguous
// affirmative confirmation: it matches the positive pattern and carries no
// negative modifier.
func MatchesPositiveConfirmation(body string) bool {
	return positiveConfirmationRe.MatchString(body) && !negativeModifierRe.MatchString(body)
}

// heuristicOutcome is the non-AI fallback's best guess at a workflow
// outcome: an unambiguous positive confirmation always reads as a
// confirmed showing, an unsubscribe intent reads as lost interest, and
// everything else defaults to a general question for the rule/template
// layer to resolve.
func heuristicOutcome(body string, intent Intent) WorkflowOutcome {
	if MatchesPositiveConfirmation(body) {
		return OutcomeShowingConfirmed
	}
	if intent == IntentUnsubscribe {
		return OutcomeNotInterested
	}
	return OutcomeGeneralQuestion
}

// Classify runs the heuristic classifier, and if ai is non-nil and enabled,
// layers the AI judgment on top: AI intent overrides heuristic, and a
// generation failure falls back to the heuristic result tagged
// provider="heuristic".
func Classify(ctx context.Context, ai AIClassifier, aiEnabled bool, body string, hasRecentOutbound bool, fallbackIntent Intent, aiCtx AIRequest) (Judgment, bool) {
	intent := ClassifyIntent(body)
	followUp := DetectFollowUp(body, hasRecentOutbound)
	effective := EffectiveIntent(intent, followUp, fallbackIntent)

	heuristic := Judgment{
		Intent:          effective,
		Provider:        "heuristic",
		Confidence:      1,
		RiskLevel:       RiskLow,
		WorkflowOutcome: heuristicOutcome(body, effective),
	}

	if ai == nil || !aiEnabled {
		return heuristic, followUp
	}

	aiCtx.InboundBody = body
	aiCtx.HasRecentOutbound = hasRecentOutbound
	judgment, err := ai.Classify(ctx, aiCtx)
	if err != nil {
		return heuristic, followUp
	}
	judgment.Provider = "gemini"
	return judgment, followUp
}
