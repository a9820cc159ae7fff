// Package booking implements the showing-appointment booking service:
// idempotency replay detection, candidate-slot coverage validation, and
// anti-double-booking via the store's exclusion constraint.
package booking

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/leaseos/leaseline/internal/db"
	"github.com/leaseos/leaseline/internal/queue"
)

// Kind is the tagged outcome of a booking attempt, replacing exceptions
// used for control flow with an explicit result variant.
type Kind string

const (
	KindCreated             Kind = "created"
	KindReplayed            Kind = "replayed"
	KindIdempotencyConflict Kind = "idempotency_conflict"
	KindSlotUnavailable     Kind = "slot_unavailable"
	KindBookingConflict     Kind = "booking_conflict"
	KindFailed              Kind = "failed"
)

// Result is the outcome of a booking attempt.
type Result struct {
	Kind                Kind
	Appointment         *db.ShowingAppointment
	Alternatives        []db.ShowingAppointment
	AdminReviewRequired bool
	Reason              string
}

// HTTPStatus maps a Result's Kind to the HTTP status code the showing
// endpoint returns.
func (r Result) HTTPStatus() int {
	switch r.Kind {
	case KindCreated, KindReplayed:
		return http.StatusOK
	case KindIdempotencyConflict, KindSlotUnavailable, KindBookingConflict:
		return http.StatusConflict
	case KindFailed:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// Payload is the booking request.
type Payload struct {
	IdempotencyKey    string
	PlatformAccountID uuid.UUID
	ConversationID    *uuid.UUID
	UnitID            uuid.UUID
	ListingID         *uuid.UUID
	AgentID           uuid.UUID
	StartsAt          time.Time
	EndsAt            time.Time
	Timezone          string
}

// Actor is the session actor making the booking request.
type Actor struct {
	Role    string
	AgentID *uuid.UUID
}

// Service implements the showing booking contract.
type Service struct {
	pool  *pgxpool.Pool
	audit queue.AuditEmitter
}

// NewService creates a booking Service.
func NewService(pool *pgxpool.Pool, audit queue.AuditEmitter) *Service {
	return &Service{pool: pool, audit: audit}
}

// Book runs the booking contract's ordered checks: agent scope, then
// idempotency lookup (which precedes slot validation so that availability
// drift after a retry never produces a false negative), then candidate-slot
// coverage, then an exclusion-constrained insert.
func (s *Service) Book(ctx context.Context, actor Actor, payload Payload) (Result, error) {
	if actor.Role == "agent" && (actor.AgentID == nil || *actor.AgentID != payload.AgentID) {
		result := Result{Kind: KindFailed, Reason: "forbidden"}
		s.emit(ctx, "showing_booking_failed", payload, result)
		return result, nil
	}

	q := db.New(s.pool)

	if payload.IdempotencyKey != "" {
		existing, found, err := q.FindShowingByIdempotencyKey(ctx, payload.IdempotencyKey)
		if err != nil {
			return Result{}, fmt.Errorf("looking up idempotency key: %w", err)
		}
		if found {
			if sameBooking(existing, payload) {
				result := Result{Kind: KindReplayed, Appointment: &existing}
				s.emit(ctx, "showing_booking_replayed", payload, result)
				return result, nil
			}
			result := Result{Kind: KindIdempotencyConflict, Appointment: &existing, AdminReviewRequired: true, Reason: "idempotency_conflict"}
			s.emit(ctx, "showing_booking_idempotency_conflict", payload, result)
			return result, nil
		}
	}

	candidates, err := q.FetchCandidateSlots(ctx, payload.UnitID, payload.StartsAt, true)
	if err != nil {
		return Result{}, fmt.Errorf("fetching candidate slots: %w", err)
	}

	if !coveredByCandidate(candidates, payload) {
		alternatives, err := q.OverlappingShowings(ctx, payload.UnitID, payload.StartsAt, payload.EndsAt)
		if err != nil {
			return Result{}, fmt.Errorf("fetching alternatives: %w", err)
		}
		result := Result{Kind: KindSlotUnavailable, Alternatives: alternatives, AdminReviewRequired: true, Reason: "slot_unavailable"}
		s.emit(ctx, "showing_booking_slot_unavailable", payload, result)
		return result, nil
	}

	appointment, err := q.InsertShowing(ctx, db.InsertShowingParams{
		UnitID:         payload.UnitID,
		AgentID:        payload.AgentID,
		ConversationID: payload.ConversationID,
		StartsAt:       payload.StartsAt,
		EndsAt:         payload.EndsAt,
		Timezone:       payload.Timezone,
		Status:         "pending",
		IdempotencyKey: payload.IdempotencyKey,
	})
	if err != nil {
		if db.IsExclusionViolation(err) {
			alternatives, aerr := q.OverlappingShowings(ctx, payload.UnitID, payload.StartsAt, payload.EndsAt)
			if aerr != nil {
				return Result{}, fmt.Errorf("fetching alternatives after conflict: %w", aerr)
			}
			result := Result{Kind: KindBookingConflict, Alternatives: alternatives, Reason: "booking_conflict"}
			s.emit(ctx, "showing_booking_conflict", payload, result)
			return result, nil
		}
		return Result{}, fmt.Errorf("inserting showing appointment: %w", err)
	}

	result := Result{Kind: KindCreated, Appointment: &appointment}
	s.emit(ctx, "showing_booking_created", payload, result)
	return result, nil
}

// coveredByCandidate reports whether the requested interval is entirely
// covered by some candidate slot for the requested agent.
func coveredByCandidate(candidates []db.CandidateSlotRow, payload Payload) bool {
	for _, c := range candidates {
		if c.AgentID != payload.AgentID {
			continue
		}
		if !c.StartsAt.After(payload.StartsAt) && !c.EndsAt.Before(payload.EndsAt) {
			return true
		}
	}
	return false
}

func sameBooking(existing db.ShowingAppointment, payload Payload) bool {
	return existing.UnitID == payload.UnitID &&
		existing.AgentID == payload.AgentID &&
		existing.StartsAt.Equal(payload.StartsAt) &&
		existing.EndsAt.Equal(payload.EndsAt)
}

func (s *Service) emit(ctx context.Context, action string, payload Payload, result Result) {
	if s.audit == nil {
		return
	}
	attrs := map[string]any{
		"entityType": "showing",
		"unitId":     payload.UnitID.String(),
		"agentId":    payload.AgentID.String(),
	}
	if payload.ConversationID != nil {
		attrs["conversationId"] = payload.ConversationID.String()
	}
	if result.Appointment != nil {
		attrs["entityId"] = result.Appointment.ID.String()
	}
	if result.Reason != "" {
		attrs["reason"] = result.Reason
	}
	s.audit.Emit(ctx, action, attrs)
}
