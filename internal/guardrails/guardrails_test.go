package guardrails

import (
	"testing"

	"github.com/leaseos/leaseline/internal/classifier"
	"github.com/leaseos/leaseline/internal/domain"
)

func baseInput() Input {
	return Input{
		PlatformActive:    true,
		SendMode:          domain.SendModeAutoSend,
		Body:              "what's the rent on this unit?",
		Intent:            classifier.IntentPricingQuestion,
		RuleFound:         true,
		RuleEnabled:       true,
		TemplateFound:     true,
		HasCandidateSlots: true,
		AIOutcome:         classifier.OutcomeGeneralQuestion,
		Confidence:        0.9,
		RiskLevel:         classifier.RiskLow,
	}
}

func TestEvaluateInactivePlatformBlocksFirst(t *testing.T) {
	in := baseInput()
	in.PlatformActive = false
	result := Evaluate(in)
	if result.Outcome != OutcomeBlocked || result.Eligibility.Reason != "policy_platform_inactive" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestEvaluateUnsubscribeEscalates(t *testing.T) {
	in := baseInput()
	in.Intent = classifier.IntentUnsubscribe
	result := Evaluate(in)
	if result.Outcome != OutcomeEscalate || result.EscalationReasonCode != "escalate_unsubscribe_requested" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestEvaluateUnsafeContentHoldsForAgent(t *testing.T) {
	in := baseInput()
	in.Body = "I'm going to sue you and call my lawyer"
	result := Evaluate(in)
	if result.Outcome != OutcomeEscalate || result.ReviewStatus != "hold" || result.ActionQueue != "agent_action" {
		t.Fatalf("unexpected result: %+v", result)
	}
	if result.EscalationReasonCode != "escalate_legal_threat" {
		t.Fatalf("expected legal_threat pattern, got %q", result.EscalationReasonCode)
	}
}

func TestEvaluateNonTourIntentWithoutRuleEscalates(t *testing.T) {
	in := baseInput()
	in.RuleFound = false
	result := Evaluate(in)
	if result.Outcome != OutcomeEscalate || result.EscalationReasonCode != "escalate_non_tour_intent" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestEvaluateTourIntentWithoutSlotsEscalates(t *testing.T) {
	in := baseInput()
	in.Intent = classifier.IntentTourRequest
	in.HasCandidateSlots = false
	result := Evaluate(in)
	if result.Outcome != OutcomeEscalate || result.EscalationReasonCode != "escalate_no_slot_candidates" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestEvaluateLowConfidenceCoercesHumanRequired(t *testing.T) {
	in := baseInput()
	in.Confidence = 0.2
	result := Evaluate(in)
	if result.Outcome != OutcomeEscalate || result.CoercedWorkflowOutcome != classifier.OutcomeHumanRequired {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestEvaluateHighRiskCoercesHumanRequired(t *testing.T) {
	in := baseInput()
	in.RiskLevel = classifier.RiskHigh
	result := Evaluate(in)
	if result.Outcome != OutcomeEscalate || result.CoercedWorkflowOutcome != classifier.OutcomeHumanRequired {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestEvaluateDraftOnlyPlatformProducesDraft(t *testing.T) {
	in := baseInput()
	in.SendMode = domain.SendModeDraftOnly
	result := Evaluate(in)
	if result.Outcome != OutcomeDraft || !result.Eligibility.Eligible {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestEvaluateDisabledRuleProducesDraft(t *testing.T) {
	in := baseInput()
	in.RuleEnabled = false
	result := Evaluate(in)
	if result.Outcome != OutcomeDraft {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestEvaluateDefaultsToSend(t *testing.T) {
	result := Evaluate(baseInput())
	if result.Outcome != OutcomeSend || !result.Eligibility.Eligible {
		t.Fatalf("unexpected result: %+v", result)
	}
}
