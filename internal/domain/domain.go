// Package domain holds the core entity types of the leasing-inquiry
// dispatch pipeline, independent of how they are persisted.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Platform is one of the five supported listing platforms.
type Platform string

const (
	PlatformSpareroom       Platform = "spareroom"
	PlatformRoomies         Platform = "roomies"
	PlatformLeasebreak      Platform = "leasebreak"
	PlatformRenthop         Platform = "renthop"
	PlatformFurnishedfinder Platform = "furnishedfinder"
)

// AllPlatforms lists every supported platform, in a fixed order.
var AllPlatforms = []Platform{
	PlatformSpareroom,
	PlatformRoomies,
	PlatformLeasebreak,
	PlatformRenthop,
	PlatformFurnishedfinder,
}

// SendMode governs whether a platform account may dispatch automatically.
type SendMode string

const (
	SendModeAutoSend  SendMode = "auto_send"
	SendModeDraftOnly SendMode = "draft_only"
)

// PlatformAccount is a leasing team's presence on one listing platform.
type PlatformAccount struct {
	ID              uuid.UUID
	Platform        Platform
	IsActive        bool
	SendMode        SendMode
	IntegrationMode string
	Credentials     map[string]string
}

// ConversationStatus is the coarse open/archived lifecycle of a thread.
type ConversationStatus string

const (
	ConversationOpen     ConversationStatus = "open"
	ConversationArchived ConversationStatus = "archived"
)

// WorkflowState is the fine-grained lifecycle state of a conversation.
type WorkflowState string

const (
	WorkflowStateLead            WorkflowState = "lead"
	WorkflowStateFollowUp1       WorkflowState = "follow_up_1"
	WorkflowStateFollowUp2       WorkflowState = "follow_up_2"
	WorkflowStateShowingPending  WorkflowState = "showing_pending"
	WorkflowStateShowingConfirm  WorkflowState = "showing_confirmed"
	WorkflowStateRescheduleAsked WorkflowState = "reschedule_requested"
	WorkflowStateClosed          WorkflowState = "closed"
)

// WorkflowOutcome is the coarse lifecycle marker produced by the classifier
// that governs downstream showing and follow-up side effects.
type WorkflowOutcome string

const (
	WorkflowOutcomeGeneralQuestion WorkflowOutcome = "general_question"
	WorkflowOutcomeHumanRequired   WorkflowOutcome = "human_required"
	WorkflowOutcomeNoReply         WorkflowOutcome = "no_reply"
	WorkflowOutcomeNotInterested   WorkflowOutcome = "not_interested"
	WorkflowOutcomeShowingConfirm  WorkflowOutcome = "showing_confirmed"
	WorkflowOutcomeWantsReschedule WorkflowOutcome = "wants_reschedule"
)

// ShowingState mirrors the showing side effect of a workflow outcome.
type ShowingState string

const (
	ShowingStateConfirmed           ShowingState = "confirmed"
	ShowingStateRescheduleRequested ShowingState = "reschedule_requested"
	ShowingStateCancelled           ShowingState = "cancelled"
)

// Conversation is a single thread between a lead and a platform account.
type Conversation struct {
	ID                uuid.UUID
	PlatformAccountID uuid.UUID
	ExternalThreadID  string
	AssignedAgentID   *uuid.UUID
	LeadName          *string
	Status            ConversationStatus
	WorkflowState     WorkflowState
	WorkflowOutcome   *WorkflowOutcome
	ShowingState      *ShowingState
	FollowUpStage     *string
	PendingSlot       *PendingSlotConfirmation
	LastMessageAt     time.Time
}

// PendingSlotConfirmation records a single candidate slot the pipeline has
// offered and is waiting on the lead to confirm or reject.
type PendingSlotConfirmation struct {
	StartsAt  time.Time `json:"startsAt"`
	EndsAt    time.Time `json:"endsAt"`
	AgentID   uuid.UUID `json:"agentId"`
	AgentName string    `json:"agentName,omitempty"`
	Label     string    `json:"label,omitempty"`
}

// MessageDirection is inbound (from the lead) or outbound (to the lead).
type MessageDirection string

const (
	MessageInbound  MessageDirection = "inbound"
	MessageOutbound MessageDirection = "outbound"
)

// WorkerClaim is the soft lease a worker holds on an inbound message while
// it is being processed.
type WorkerClaim struct {
	WorkerID       string    `json:"workerId"`
	ClaimedAt      time.Time `json:"claimedAt"`
	ClaimExpiresAt time.Time `json:"claimExpiresAt"`
}

// DispatchStateValue is the terminal/in-flight label of an outbound dispatch attempt.
type DispatchStateValue string

const (
	DispatchInProgress DispatchStateValue = "in_progress"
	DispatchCompleted  DispatchStateValue = "completed"
	DispatchFailed     DispatchStateValue = "failed"
	DispatchDLQ        DispatchStateValue = "dlq"
)

// DeliveryRecord is the connector's successful send result.
type DeliveryRecord struct {
	ExternalMessageID string `json:"externalMessageId"`
	Channel           string `json:"channel"`
	ProviderStatus    string `json:"providerStatus"`
}

// RetryRecord summarizes the retry history of a dispatch attempt.
type RetryRecord struct {
	Attempts       int  `json:"attempts"`
	RetryExhausted bool `json:"retryExhausted"`
}

// DispatchState is the compare-and-set state machine embedded in a
// Message's metadata column.
type DispatchState struct {
	Key               string              `json:"key"`
	State             DispatchStateValue  `json:"state"`
	Attempts          int                 `json:"attempts"`
	LastAttemptAt     *time.Time          `json:"lastAttemptAt,omitempty"`
	CompletedAt       *time.Time          `json:"completedAt,omitempty"`
	Delivery          *DeliveryRecord     `json:"delivery,omitempty"`
	FailedStage       string              `json:"failedStage,omitempty"`
	LastError         string              `json:"lastError,omitempty"`
	Retry             *RetryRecord        `json:"retry,omitempty"`
	EscalationReason  string              `json:"escalationReasonCode,omitempty"`
}

// MessageMetadata is the JSON document stored alongside a Message row,
// carrying the claim lease, dispatch state, and AI decision trail.
type MessageMetadata struct {
	WorkerClaim    *WorkerClaim    `json:"workerClaim,omitempty"`
	Dispatch       *DispatchState  `json:"dispatch,omitempty"`
	AIProcessedAt  *time.Time      `json:"aiProcessedAt,omitempty"`
	Intent         string          `json:"intent,omitempty"`
	EffectiveIntent string         `json:"effectiveIntent,omitempty"`
	FollowUp       bool            `json:"followUp,omitempty"`
	Extra          map[string]any  `json:"extra,omitempty"`
}

// Message is a single inbound or outbound message within a conversation.
type Message struct {
	ID                 uuid.UUID
	ConversationID     uuid.UUID
	Direction          MessageDirection
	ExternalMessageID  *string
	Body               string
	Metadata           MessageMetadata
	ReviewStatus       string
	SentAt             time.Time
	CreatedAt          time.Time
}

// ClaimedMessage is the joined projection a worker receives from the
// claim-lease query: the inbound message plus the account/platform
// policy context it needs to process it.
type ClaimedMessage struct {
	Message           Message
	Conversation      Conversation
	PlatformAccount   PlatformAccount
	UnitID            *uuid.UUID
	ListingID         *uuid.UUID
}

// AutomationRule maps an intent to a template for one platform account.
type AutomationRule struct {
	ID                uuid.UUID
	PlatformAccountID uuid.UUID
	TriggerType       string
	ActionType        string
	Intent            string
	TemplateName      string
	Priority          int
	IsEnabled         bool
	CreatedAt         time.Time
}

// Template is a named reply body with {{variable}} placeholders.
type Template struct {
	ID                uuid.UUID
	PlatformAccountID *uuid.UUID
	Name              string
	Locale            string
	Body              string
	Variables         []string
	IsActive          bool
}

// AssignmentMode distinguishes the agent currently on duty for a unit from
// agents who may only be consulted as a fallback.
type AssignmentMode string

const (
	AssignmentActive  AssignmentMode = "active"
	AssignmentPassive AssignmentMode = "passive"
)

// UnitAgentAssignment links an agent to a unit with a priority ordering.
type UnitAgentAssignment struct {
	UnitID         uuid.UUID
	AgentID        uuid.UUID
	AssignmentMode AssignmentMode
	Priority       int
}

// SlotStatus describes whether an availability interval can be booked.
type SlotStatus string

const (
	SlotAvailable   SlotStatus = "available"
	SlotUnavailable SlotStatus = "unavailable"
)

// AvailabilitySlot is a unit-level availability window.
type AvailabilitySlot struct {
	ID        uuid.UUID
	UnitID    uuid.UUID
	StartsAt  time.Time
	EndsAt    time.Time
	Timezone  string
	Status    SlotStatus
	Source    string
	Notes     string
}

// AgentAvailabilitySlot is an agent-level availability window.
type AgentAvailabilitySlot struct {
	ID       uuid.UUID
	AgentID  uuid.UUID
	StartsAt time.Time
	EndsAt   time.Time
	Timezone string
	Status   SlotStatus
	Source   string
	Notes    string
}

// CandidateSlot is an interval intersecting unit and agent availability,
// ranked by assignment mode then priority then start time.
type CandidateSlot struct {
	UnitID    uuid.UUID
	AgentID   uuid.UUID
	AgentName string
	StartsAt  time.Time
	EndsAt    time.Time
	Timezone  string
	Mode      AssignmentMode
	Priority  int
	Label     string
}

// ShowingStatus is the lifecycle of a booked appointment.
type ShowingStatus string

const (
	ShowingPending   ShowingStatus = "pending"
	ShowingConfirmed ShowingStatus = "confirmed"
	ShowingCancelled ShowingStatus = "cancelled"
	ShowingNoShow    ShowingStatus = "no_show"
	ShowingCompleted ShowingStatus = "completed"
)

// ShowingAppointment is a booked (or pending) property showing.
type ShowingAppointment struct {
	ID                uuid.UUID
	UnitID            uuid.UUID
	AgentID           uuid.UUID
	ConversationID    *uuid.UUID
	StartsAt          time.Time
	EndsAt            time.Time
	Timezone          string
	Status            ShowingStatus
	IdempotencyKey    string
	ExternalBookingRef *string
	CreatedAt         time.Time
}

// AuditLog is an append-only record of a pipeline-visible event.
type AuditLog struct {
	ID         uuid.UUID
	ActorType  string
	ActorID    *string
	EntityType string
	EntityID   string
	Action     string
	Details    map[string]any
	CreatedAt  time.Time
}
