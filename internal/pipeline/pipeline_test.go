package pipeline

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/leaseos/leaseline/internal/classifier"
	"github.com/leaseos/leaseline/internal/db"
	"github.com/leaseos/leaseline/internal/domain"
)

// fixtureDBTX answers FindRuleByIntent/FindTemplate lookups with canned
// rows, dispatching on a substring of the query text since both methods
// share the same QueryRow-based shape.
type fixtureDBTX struct {
	ruleFound     bool
	ruleEnabled   bool
	templateFound bool
	templateBody  string
}

func (f fixtureDBTX) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	panic("not used by the pipeline")
}

func (f fixtureDBTX) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	panic("not used by the pipeline")
}

func (f fixtureDBTX) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	switch {
	case strings.Contains(sql, "automation_rules"):
		return fixtureRow{
			found: f.ruleFound,
			scan: func(dest ...any) error {
				*(dest[0].(*uuid.UUID)) = uuid.New()
				*(dest[1].(*uuid.UUID)) = uuid.New()
				*(dest[2].(*string)) = "inbound_message"
				*(dest[3].(*string)) = "send_reply"
				*(dest[4].(*string)) = "tour_request"
				*(dest[5].(*string)) = "tour_offer"
				*(dest[6].(*int)) = 0
				*(dest[7].(*bool)) = f.ruleEnabled
				return nil
			},
		}
	case strings.Contains(sql, "templates"):
		return fixtureRow{
			found: f.templateFound,
			scan: func(dest ...any) error {
				*(dest[0].(*uuid.UUID)) = uuid.New()
				*(dest[1].(**uuid.UUID)) = nil
				*(dest[2].(*string)) = "tour_offer"
				*(dest[3].(*string)) = "en"
				*(dest[4].(*string)) = f.templateBody
				*(dest[5].(*[]string)) = nil
				*(dest[6].(*bool)) = true
				return nil
			},
		}
	default:
		panic("unexpected query: " + sql)
	}
}

type fixtureRow struct {
	found bool
	scan  func(dest ...any) error
}

func (r fixtureRow) Scan(dest ...any) error {
	if !r.found {
		return pgx.ErrNoRows
	}
	return r.scan(dest...)
}

func baseInput() Input {
	return Input{
		PlatformAccountID: uuid.New(),
		PlatformActive:    true,
		SendMode:          domain.SendModeAutoSend,
		Body:              "Would love to see the unit this week!",
		FallbackIntent:    classifier.IntentUnknown,
		TemplateContext:   map[string]string{},
	}
}

func TestRunEscalatesTourRequestWithoutCandidateSlots(t *testing.T) {
	q := db.New(fixtureDBTX{ruleFound: true, ruleEnabled: true, templateFound: true, templateBody: "Here are some times: {{slots}}"})
	p := New(q)

	out, err := p.Run(context.Background(), baseInput())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Eligibility.Eligible {
		t.Fatal("a tour request with no candidate slots must not be eligible")
	}
	if out.EscalationReasonCode != "escalate_no_slot_candidates" {
		t.Errorf("EscalationReasonCode = %q, want escalate_no_slot_candidates", out.EscalationReasonCode)
	}
}

func TestRunSendsTourRequestWithCandidateAndTemplate(t *testing.T) {
	q := db.New(fixtureDBTX{ruleFound: true, ruleEnabled: true, templateFound: true, templateBody: "Does {{time}} work?"})
	p := New(q)

	in := baseInput()
	in.Candidates = []domain.CandidateSlot{
		{AgentID: uuid.New(), AgentName: "Jamie", StartsAt: time.Date(2026, 8, 10, 14, 0, 0, 0, time.UTC), EndsAt: time.Date(2026, 8, 10, 14, 30, 0, 0, time.UTC), Mode: domain.AssignmentActive},
	}

	out, err := p.Run(context.Background(), in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.Eligibility.Eligible {
		t.Fatalf("expected eligible dispatch, got reason %q", out.Eligibility.Reason)
	}
	if out.ReplyBody == "" {
		t.Error("expected a rendered reply body")
	}
}

func TestRunEscalatesNonTourIntentWithoutRule(t *testing.T) {
	q := db.New(fixtureDBTX{ruleFound: false})
	p := New(q)

	in := baseInput()
	in.Body = "What's the monthly rent on this place?"

	out, err := p.Run(context.Background(), in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Eligibility.Eligible {
		t.Fatal("a pricing question with no matching rule must escalate")
	}
	if out.EscalationReasonCode != "escalate_non_tour_intent" {
		t.Errorf("EscalationReasonCode = %q, want escalate_non_tour_intent", out.EscalationReasonCode)
	}
}

func TestRunAutoSelectsEarliestCandidateWhenConfirmedWithoutPendingSlot(t *testing.T) {
	q := db.New(fixtureDBTX{ruleFound: true, ruleEnabled: true, templateFound: true, templateBody: "ok"})
	p := New(q)

	early := time.Date(2026, 8, 10, 10, 0, 0, 0, time.UTC)
	late := time.Date(2026, 8, 11, 10, 0, 0, 0, time.UTC)

	in := baseInput()
	in.Body = "Yes, see you then"
	in.Candidates = []domain.CandidateSlot{
		{AgentID: uuid.New(), AgentName: "Priya", StartsAt: late, EndsAt: late.Add(30 * time.Minute), Mode: domain.AssignmentActive},
		{AgentID: uuid.New(), AgentName: "Sam", StartsAt: early, EndsAt: early.Add(30 * time.Minute), Mode: domain.AssignmentActive},
	}

	out, err := p.Run(context.Background(), in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.PendingSlotToStore == nil {
		t.Fatal("expected a pending slot to be stored when multiple candidates are ambiguous")
	}
	if !out.PendingSlotToStore.StartsAt.Equal(early) {
		t.Errorf("expected the earliest candidate to be selected, got %v", out.PendingSlotToStore.StartsAt)
	}
	if out.WorkflowOutcome != classifier.OutcomeGeneralQuestion {
		t.Errorf("WorkflowOutcome = %q, want general_question after downgrade", out.WorkflowOutcome)
	}
}

func TestRunAcceptsPendingSlotOnPositiveConfirmation(t *testing.T) {
	q := db.New(fixtureDBTX{ruleFound: true, ruleEnabled: true, templateFound: true, templateBody: "ok"})
	p := New(q)

	start := time.Date(2026, 8, 10, 10, 0, 0, 0, time.UTC)
	in := baseInput()
	in.Body = "Yes that works for me"
	in.PendingSlot = &domain.PendingSlotConfirmation{
		StartsAt:  start,
		EndsAt:    start.Add(30 * time.Minute),
		AgentID:   uuid.New(),
		AgentName: "Priya",
	}

	out, err := p.Run(context.Background(), in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.ClearPendingSlot {
		t.Error("expected the pending slot to be cleared on positive confirmation")
	}
	if out.ReplyBody == "" {
		t.Error("expected a confirmation reply body")
	}
}
