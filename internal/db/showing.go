package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ShowingAppointment is the row shape for a booked or pending showing.
type ShowingAppointment struct {
	ID                 uuid.UUID
	UnitID             uuid.UUID
	AgentID            uuid.UUID
	ConversationID     *uuid.UUID
	StartsAt           time.Time
	EndsAt             time.Time
	Timezone           string
	Status             string
	IdempotencyKey     string
	ExternalBookingRef *string
	CreatedAt          time.Time
}

var showingColumns = `id, unit_id, agent_id, conversation_id, starts_at, ends_at, timezone, status, idempotency_key, external_booking_ref, created_at`

// FindShowingByIdempotencyKey looks up a showing by its globally unique
// idempotency key, used to detect replays before slot validation.
func (q *Queries) FindShowingByIdempotencyKey(ctx context.Context, key string) (ShowingAppointment, bool, error) {
	var s ShowingAppointment
	err := q.db.QueryRow(ctx, `
		SELECT `+showingColumns+` FROM showing_appointments WHERE idempotency_key = $1`, key,
	).Scan(&s.ID, &s.UnitID, &s.AgentID, &s.ConversationID, &s.StartsAt, &s.EndsAt, &s.Timezone,
		&s.Status, &s.IdempotencyKey, &s.ExternalBookingRef, &s.CreatedAt)
	if err != nil {
		if isNoRows(err) {
			return ShowingAppointment{}, false, nil
		}
		return ShowingAppointment{}, false, fmt.Errorf("finding showing by idempotency key: %w", err)
	}
	return s, true, nil
}

// InsertShowingParams describes a new showing appointment insert.
type InsertShowingParams struct {
	UnitID         uuid.UUID
	AgentID        uuid.UUID
	ConversationID *uuid.UUID
	StartsAt       time.Time
	EndsAt         time.Time
	Timezone       string
	Status         string
	IdempotencyKey string
}

// InsertShowing inserts a new appointment under the exclusion constraint
// on (unitId, [startsAt,endsAt)) for status in {pending, confirmed}. The
// caller must inspect db.IsExclusionViolation(err) to detect a booking
// conflict.
func (q *Queries) InsertShowing(ctx context.Context, p InsertShowingParams) (ShowingAppointment, error) {
	var s ShowingAppointment
	err := q.db.QueryRow(ctx, `
		INSERT INTO showing_appointments
			(id, unit_id, agent_id, conversation_id, starts_at, ends_at, timezone, status, idempotency_key, created_at)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6, $7, $8, now())
		RETURNING `+showingColumns,
		p.UnitID, p.AgentID, p.ConversationID, p.StartsAt, p.EndsAt, p.Timezone, p.Status, p.IdempotencyKey,
	).Scan(&s.ID, &s.UnitID, &s.AgentID, &s.ConversationID, &s.StartsAt, &s.EndsAt, &s.Timezone,
		&s.Status, &s.IdempotencyKey, &s.ExternalBookingRef, &s.CreatedAt)
	if err != nil {
		return ShowingAppointment{}, err
	}
	return s, nil
}

// OverlappingShowings returns existing pending/confirmed showings for a
// unit that overlap the given interval, used to build the `alternatives`
// list for slot_unavailable and booking_conflict results.
func (q *Queries) OverlappingShowings(ctx context.Context, unitID uuid.UUID, startsAt, endsAt time.Time) ([]ShowingAppointment, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+showingColumns+`
		FROM showing_appointments
		WHERE unit_id = $1 AND status IN ('pending', 'confirmed')
		  AND starts_at < $3 AND ends_at > $2
		ORDER BY starts_at ASC`, unitID, startsAt, endsAt)
	if err != nil {
		return nil, fmt.Errorf("querying overlapping showings: %w", err)
	}
	defer rows.Close()

	var out []ShowingAppointment
	for rows.Next() {
		var s ShowingAppointment
		if err := rows.Scan(&s.ID, &s.UnitID, &s.AgentID, &s.ConversationID, &s.StartsAt, &s.EndsAt,
			&s.Timezone, &s.Status, &s.IdempotencyKey, &s.ExternalBookingRef, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning overlapping showing: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
