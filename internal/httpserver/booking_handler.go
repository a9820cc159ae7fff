package httpserver

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/leaseos/leaseline/internal/booking"
	"github.com/leaseos/leaseline/internal/telemetry"
)

// BookingHandler exposes the showing-appointment booking contract over HTTP.
type BookingHandler struct {
	service *booking.Service
}

// NewBookingHandler creates a BookingHandler.
func NewBookingHandler(service *booking.Service) *BookingHandler {
	return &BookingHandler{service: service}
}

// createShowingRequest is the wire shape of a POST /v1/showings request.
type createShowingRequest struct {
	IdempotencyKey    string     `json:"idempotencyKey" validate:"required"`
	PlatformAccountID uuid.UUID  `json:"platformAccountId" validate:"required"`
	ConversationID    *uuid.UUID `json:"conversationId,omitempty"`
	UnitID            uuid.UUID  `json:"unitId" validate:"required"`
	ListingID         *uuid.UUID `json:"listingId,omitempty"`
	AgentID           uuid.UUID  `json:"agentId" validate:"required"`
	StartsAt          time.Time  `json:"startsAt" validate:"required"`
	EndsAt            time.Time  `json:"endsAt" validate:"required,gtfield=StartsAt"`
	Timezone          string     `json:"timezone" validate:"required"`
}

type showingResponse struct {
	Kind                string `json:"kind"`
	Appointment         any    `json:"appointment,omitempty"`
	Alternatives        any    `json:"alternatives,omitempty"`
	AdminReviewRequired bool   `json:"adminReviewRequired,omitempty"`
	Reason              string `json:"reason,omitempty"`
}

// sessionActor reads the caller's role and agentId from request headers set
// by the upstream auth middleware.
func sessionActor(r *http.Request) booking.Actor {
	actor := booking.Actor{Role: r.Header.Get("X-Actor-Role")}
	if raw := r.Header.Get("X-Actor-Agent-Id"); raw != "" {
		if id, err := uuid.Parse(raw); err == nil {
			actor.AgentID = &id
		}
	}
	return actor
}

// CreateShowing handles POST /v1/showings.
func (h *BookingHandler) CreateShowing(w http.ResponseWriter, r *http.Request) {
	var req createShowingRequest
	if !DecodeAndValidate(w, r, &req) {
		return
	}

	result, err := h.service.Book(r.Context(), sessionActor(r), booking.Payload{
		IdempotencyKey:    req.IdempotencyKey,
		PlatformAccountID: req.PlatformAccountID,
		ConversationID:    req.ConversationID,
		UnitID:            req.UnitID,
		ListingID:         req.ListingID,
		AgentID:           req.AgentID,
		StartsAt:          req.StartsAt,
		EndsAt:            req.EndsAt,
		Timezone:          req.Timezone,
	})
	if err != nil {
		telemetry.BookingAttemptsTotal.WithLabelValues("error").Inc()
		RespondError(w, r, http.StatusInternalServerError, "booking_failed", err.Error())
		return
	}

	telemetry.BookingAttemptsTotal.WithLabelValues(string(result.Kind)).Inc()

	Respond(w, result.HTTPStatus(), showingResponse{
		Kind:                string(result.Kind),
		Appointment:         result.Appointment,
		Alternatives:        result.Alternatives,
		AdminReviewRequired: result.AdminReviewRequired,
		Reason:              result.Reason,
	})
}
