package booking

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/leaseos/leaseline/internal/db"
)

func TestHTTPStatusMapsEveryKind(t *testing.T) {
	cases := map[Kind]int{
		KindCreated:             200,
		KindReplayed:            200,
		KindIdempotencyConflict: 409,
		KindSlotUnavailable:     409,
		KindBookingConflict:     409,
		KindFailed:              403,
	}
	for kind, want := range cases {
		if got := (Result{Kind: kind}).HTTPStatus(); got != want {
			t.Errorf("HTTPStatus(%s) = %d, want %d", kind, got, want)
		}
	}
}

func TestCoveredByCandidateRequiresFullCoverage(t *testing.T) {
	agentID := uuid.New()
	start := time.Date(2026, 8, 10, 14, 0, 0, 0, time.UTC)
	end := start.Add(30 * time.Minute)

	payload := Payload{AgentID: agentID, StartsAt: start, EndsAt: end}

	candidates := []db.CandidateSlotRow{
		{AgentID: agentID, StartsAt: start.Add(-15 * time.Minute), EndsAt: end.Add(15 * time.Minute)},
	}
	if !coveredByCandidate(candidates, payload) {
		t.Error("a wider candidate window should cover the requested interval")
	}

	narrow := []db.CandidateSlotRow{
		{AgentID: agentID, StartsAt: start.Add(10 * time.Minute), EndsAt: end},
	}
	if coveredByCandidate(narrow, payload) {
		t.Error("a candidate that starts after the requested start should not cover it")
	}

	wrongAgent := []db.CandidateSlotRow{
		{AgentID: uuid.New(), StartsAt: start.Add(-time.Hour), EndsAt: end.Add(time.Hour)},
	}
	if coveredByCandidate(wrongAgent, payload) {
		t.Error("a candidate for a different agent should never cover the request")
	}
}

func TestSameBookingComparesIntervalAndParties(t *testing.T) {
	unitID, agentID := uuid.New(), uuid.New()
	start := time.Date(2026, 8, 10, 14, 0, 0, 0, time.UTC)
	end := start.Add(30 * time.Minute)

	existing := db.ShowingAppointment{UnitID: unitID, AgentID: agentID, StartsAt: start, EndsAt: end}
	payload := Payload{UnitID: unitID, AgentID: agentID, StartsAt: start, EndsAt: end}

	if !sameBooking(existing, payload) {
		t.Error("identical unit/agent/interval should be the same booking")
	}

	payload.EndsAt = end.Add(time.Minute)
	if sameBooking(existing, payload) {
		t.Error("a different end time must not be treated as the same booking")
	}
}
