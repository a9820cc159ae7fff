package db

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// dispatchFixture is a hand-rolled DBTX fake standing in for a locked
// messages row: QueryRow always returns the scripted prior dispatch state,
// and every Exec is recorded so a test can assert on the written state.
type dispatchFixture struct {
	existing []byte
	execs    []struct {
		sql  string
		args []any
	}
}

func (f *dispatchFixture) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.execs = append(f.execs, struct {
		sql  string
		args []any
	}{sql, args})
	return pgconn.CommandTag{}, nil
}

func (f *dispatchFixture) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	panic("not used by BeginDispatchAttempt/FailDispatchAttempt/CompleteDispatchAttempt")
}

func (f *dispatchFixture) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return dispatchStateRow{raw: f.existing}
}

type dispatchStateRow struct{ raw []byte }

func (r dispatchStateRow) Scan(dest ...any) error {
	*(dest[0].(*json.RawMessage)) = r.raw
	return nil
}

func priorDispatch(t *testing.T, key, state string) []byte {
	t.Helper()
	encoded, err := json.Marshal(map[string]any{"key": key, "state": state})
	if err != nil {
		t.Fatalf("marshaling prior dispatch fixture: %v", err)
	}
	return encoded
}

func TestBeginDispatchAttemptWinsWhenNoPriorState(t *testing.T) {
	fixture := &dispatchFixture{existing: []byte("null")}
	q := New(fixture)

	result, err := q.BeginDispatchAttempt(context.Background(), uuid.New(), "key-a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.ShouldDispatch {
		t.Error("expected the first attempt on a message with no dispatch state to win")
	}
	if len(fixture.execs) != 1 {
		t.Fatalf("expected one write of the in-progress dispatch state, got %d", len(fixture.execs))
	}
}

func TestBeginDispatchAttemptSuppressesSameKeyInProgress(t *testing.T) {
	fixture := &dispatchFixture{existing: priorDispatch(t, "key-a", "in_progress")}
	q := New(fixture)

	result, err := q.BeginDispatchAttempt(context.Background(), uuid.New(), "key-a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.ShouldDispatch {
		t.Error("expected a concurrent in-progress attempt with the same key to be suppressed")
	}
	if len(fixture.execs) != 0 {
		t.Error("a suppressed attempt must not write any new dispatch state")
	}
}

func TestBeginDispatchAttemptSuppressesSameKeyCompleted(t *testing.T) {
	fixture := &dispatchFixture{existing: priorDispatch(t, "key-a", "completed")}
	q := New(fixture)

	result, err := q.BeginDispatchAttempt(context.Background(), uuid.New(), "key-a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.ShouldDispatch {
		t.Error("expected a replay of an already-completed key to be suppressed")
	}
	if result.PriorDispatch == nil {
		t.Error("expected the suppressed replay to return the prior delivery record")
	}
}

func TestBeginDispatchAttemptRetriesAfterFailedState(t *testing.T) {
	fixture := &dispatchFixture{existing: priorDispatch(t, "key-a", "failed")}
	q := New(fixture)

	result, err := q.BeginDispatchAttempt(context.Background(), uuid.New(), "key-a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.ShouldDispatch {
		t.Error("expected a retry of a previously failed attempt with the same key to win")
	}
}

func TestBeginDispatchAttemptDispatchesWhenKeyDiffers(t *testing.T) {
	fixture := &dispatchFixture{existing: priorDispatch(t, "key-old", "in_progress")}
	q := New(fixture)

	result, err := q.BeginDispatchAttempt(context.Background(), uuid.New(), "key-new")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.ShouldDispatch {
		t.Error("expected a dispatch key change (e.g. an edited reply body) to start a fresh attempt")
	}
}

func TestFailDispatchAttemptMarksDLQOnlyWhenRetriesExhausted(t *testing.T) {
	fixture := &dispatchFixture{}
	q := New(fixture)

	if err := q.FailDispatchAttempt(context.Background(), FailDispatchAttemptParams{
		MessageID:   uuid.New(),
		FailedStage: "dispatch_send",
		LastError:   "timeout",
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fixture.execs) != 1 || fixture.execs[0].args[1] != "failed" {
		t.Fatalf("expected state=failed when retries are not exhausted, got %+v", fixture.execs)
	}

	fixture2 := &dispatchFixture{}
	q2 := New(fixture2)
	if err := q2.FailDispatchAttempt(context.Background(), FailDispatchAttemptParams{
		MessageID:      uuid.New(),
		FailedStage:    "dispatch_send",
		LastError:      "timeout",
		RetryExhausted: true,
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fixture2.execs) != 1 || fixture2.execs[0].args[1] != "dlq" {
		t.Fatalf("expected state=dlq once retries are exhausted, got %+v", fixture2.execs)
	}
}

func TestCompleteDispatchAttemptWritesDeliveryRecord(t *testing.T) {
	fixture := &dispatchFixture{}
	q := New(fixture)

	delivery := json.RawMessage(`{"externalMessageId":"ext-1"}`)
	if err := q.CompleteDispatchAttempt(context.Background(), uuid.New(), delivery); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fixture.execs) != 1 {
		t.Fatalf("expected one write, got %d", len(fixture.execs))
	}
	if string(fixture.execs[0].args[1].(json.RawMessage)) != string(delivery) {
		t.Error("expected the delivery record to be written verbatim")
	}
}
