package db

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// conversationFixture is a hand-rolled DBTX fake standing in for a locked
// conversations row: QueryRow returns the scripted current workflow state,
// Exec is recorded (with an optional canned CommandTag) for assertions.
type conversationFixture struct {
	currentState string
	commandTag   pgconn.CommandTag
	execs        []struct {
		sql  string
		args []any
	}
}

func (f *conversationFixture) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.execs = append(f.execs, struct {
		sql  string
		args []any
	}{sql, args})
	return f.commandTag, nil
}

func (f *conversationFixture) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	panic("not used by TransitionConversationWorkflow/RecoverFromNoReply")
}

func (f *conversationFixture) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return workflowStateRow{state: f.currentState}
}

type workflowStateRow struct{ state string }

func (r workflowStateRow) Scan(dest ...any) error {
	*(dest[0].(*string)) = r.state
	return nil
}

func TestForbiddenTransitionRejectsShowingConfirmedRegression(t *testing.T) {
	if forbiddenTransition("showing_confirmed", "follow_up_1") != true {
		t.Error("expected showing_confirmed -> follow_up_1 to be forbidden")
	}
	if forbiddenTransition("showing_confirmed", "follow_up_2") != true {
		t.Error("expected showing_confirmed -> follow_up_2 to be forbidden")
	}
	if forbiddenTransition("closed", "lead") != false {
		t.Error("expected closed -> lead to be permitted (the explicit reopen path)")
	}
	if forbiddenTransition("closed", "follow_up_1") != true {
		t.Error("expected closed -> follow_up_1 to be forbidden without going through ReopenConversation")
	}
	if forbiddenTransition("lead", "lead") != false {
		t.Error("a same-state transition is never forbidden")
	}
}

func TestTransitionConversationWorkflowRejectsForbiddenTransition(t *testing.T) {
	fixture := &conversationFixture{currentState: "showing_confirmed"}
	q := New(fixture)

	err := q.TransitionConversationWorkflow(context.Background(), TransitionWorkflowParams{
		ID:            uuid.New(),
		WorkflowState: "follow_up_1",
	})
	var forbidden *ErrForbiddenTransition
	if err == nil {
		t.Fatal("expected a forbidden transition error")
	}
	if !errors.As(err, &forbidden) {
		t.Fatalf("expected an ErrForbiddenTransition, got %v", err)
	}
	if len(fixture.execs) != 0 {
		t.Error("a rejected transition must not write any row")
	}
}

func TestTransitionConversationWorkflowWritesPermittedTransition(t *testing.T) {
	fixture := &conversationFixture{currentState: "lead"}
	q := New(fixture)

	if err := q.TransitionConversationWorkflow(context.Background(), TransitionWorkflowParams{
		ID:            uuid.New(),
		WorkflowState: "follow_up_1",
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fixture.execs) != 1 {
		t.Fatalf("expected one write, got %d", len(fixture.execs))
	}
}

func TestRecoverFromNoReplyReportsWhetherARowWasRecovered(t *testing.T) {
	recovered := &conversationFixture{commandTag: pgconn.NewCommandTag("UPDATE 1")}
	q := New(recovered)
	ok, err := q.RecoverFromNoReply(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Error("expected a matching no_reply conversation to report recovered=true")
	}

	untouched := &conversationFixture{commandTag: pgconn.NewCommandTag("UPDATE 0")}
	q2 := New(untouched)
	ok2, err := q2.RecoverFromNoReply(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok2 {
		t.Error("expected a conversation not in no_reply to report recovered=false")
	}
}
