package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Conversation is the row shape for a conversation.
type Conversation struct {
	ID                uuid.UUID
	PlatformAccountID uuid.UUID
	ExternalThreadID  string
	AssignedAgentID   *uuid.UUID
	LeadName          *string
	Status            string
	WorkflowState     string
	WorkflowOutcome   *string
	ShowingState      *string
	FollowUpStage     *string
	PendingSlot       json.RawMessage
	LastMessageAt     time.Time
}

var conversationColumns = `id, platform_account_id, external_thread_id, assigned_agent_id, lead_name,
	status, workflow_state, workflow_outcome, showing_state, follow_up_stage, pending_slot, last_message_at`

func scanConversation(row pgx.Row) (Conversation, error) {
	var c Conversation
	err := row.Scan(&c.ID, &c.PlatformAccountID, &c.ExternalThreadID, &c.AssignedAgentID, &c.LeadName,
		&c.Status, &c.WorkflowState, &c.WorkflowOutcome, &c.ShowingState, &c.FollowUpStage, &c.PendingSlot,
		&c.LastMessageAt)
	if err != nil {
		return Conversation{}, err
	}
	return c, nil
}

// FindConversationByExternalThread looks up a conversation by its natural
// key, creating it implicitly is the caller's responsibility on miss.
func (q *Queries) FindConversationByExternalThread(ctx context.Context, platformAccountID uuid.UUID, externalThreadID string) (Conversation, error) {
	c, err := scanConversation(q.db.QueryRow(ctx, `
		SELECT `+conversationColumns+`
		FROM conversations WHERE platform_account_id = $1 AND external_thread_id = $2`,
		platformAccountID, externalThreadID))
	if err != nil {
		return Conversation{}, fmt.Errorf("finding conversation: %w", err)
	}
	return c, nil
}

// FindConversationByID looks up a conversation by its primary key, used by
// the worker loop once it has a claimed message's conversationId in hand.
func (q *Queries) FindConversationByID(ctx context.Context, id uuid.UUID) (Conversation, error) {
	c, err := scanConversation(q.db.QueryRow(ctx, `
		SELECT `+conversationColumns+`
		FROM conversations WHERE id = $1`, id))
	if err != nil {
		return Conversation{}, fmt.Errorf("finding conversation by id: %w", err)
	}
	return c, nil
}

// CreateConversationParams is the input to CreateConversation.
type CreateConversationParams struct {
	PlatformAccountID uuid.UUID
	ExternalThreadID  string
	LeadName          *string
}

// CreateConversation inserts a new open, lead-state conversation.
func (q *Queries) CreateConversation(ctx context.Context, p CreateConversationParams) (Conversation, error) {
	c, err := scanConversation(q.db.QueryRow(ctx, `
		INSERT INTO conversations (id, platform_account_id, external_thread_id, lead_name, status, workflow_state, last_message_at)
		VALUES (gen_random_uuid(), $1, $2, $3, 'open', 'lead', now())
		RETURNING `+conversationColumns,
		p.PlatformAccountID, p.ExternalThreadID, p.LeadName))
	if err != nil {
		return Conversation{}, fmt.Errorf("creating conversation: %w", err)
	}
	return c, nil
}

// ReopenConversation transitions an archived conversation back to open,
// used when an archived thread receives a new inbound message.
func (q *Queries) ReopenConversation(ctx context.Context, id uuid.UUID) error {
	_, err := q.db.Exec(ctx, `UPDATE conversations SET status = 'open' WHERE id = $1 AND status = 'archived'`, id)
	if err != nil {
		return fmt.Errorf("reopening conversation: %w", err)
	}
	return nil
}

// forbiddenTransition reports workflow-state transitions the source system
// never performs and which must be rejected as invariant violations.
func forbiddenTransition(from, to string) bool {
	if from == to {
		return false
	}
	// A confirmed showing never regresses to an earlier follow-up stage.
	if from == "showing_confirmed" && (to == "follow_up_1" || to == "follow_up_2") {
		return true
	}
	// A closed conversation never reopens its workflow state directly;
	// it must go through ReopenConversation first.
	if from == "closed" && to != "lead" {
		return true
	}
	return false
}

// ErrForbiddenTransition is returned when a workflow state transition
// violates the state machine.
type ErrForbiddenTransition struct {
	From, To string
}

func (e *ErrForbiddenTransition) Error() string {
	return fmt.Sprintf("forbidden workflow transition: %s -> %s", e.From, e.To)
}

// TransitionWorkflowParams describes the fields a workflow transition updates.
type TransitionWorkflowParams struct {
	ID              uuid.UUID
	WorkflowState   string
	WorkflowOutcome *string
	ShowingState    *string
	FollowUpStage   *string
}

// TransitionConversationWorkflow atomically validates and applies a
// workflow-state transition, rejecting forbidden transitions at the
// persistence layer per the state machine.
func (q *Queries) TransitionConversationWorkflow(ctx context.Context, p TransitionWorkflowParams) error {
	var currentState string
	if err := q.db.QueryRow(ctx, `SELECT workflow_state FROM conversations WHERE id = $1 FOR UPDATE`, p.ID).Scan(&currentState); err != nil {
		return fmt.Errorf("locking conversation for transition: %w", err)
	}

	if forbiddenTransition(currentState, p.WorkflowState) {
		return &ErrForbiddenTransition{From: currentState, To: p.WorkflowState}
	}

	_, err := q.db.Exec(ctx, `
		UPDATE conversations
		SET workflow_state = $2, workflow_outcome = $3, showing_state = $4, follow_up_stage = $5
		WHERE id = $1`,
		p.ID, p.WorkflowState, p.WorkflowOutcome, p.ShowingState, p.FollowUpStage)
	if err != nil {
		return fmt.Errorf("updating conversation workflow: %w", err)
	}
	return nil
}

// RecoverFromNoReply transitions a conversation whose workflowOutcome is
// no_reply back to the lead state, the explicit recovery trigger fired by
// any new inbound message.
func (q *Queries) RecoverFromNoReply(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := q.db.Exec(ctx, `
		UPDATE conversations
		SET workflow_state = 'lead', workflow_outcome = NULL
		WHERE id = $1 AND workflow_outcome = 'no_reply'`, id)
	if err != nil {
		return false, fmt.Errorf("recovering conversation from no_reply: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// SetPendingSlotConfirmation stores or clears the candidate slot a
// conversation is waiting on the lead to confirm.
func (q *Queries) SetPendingSlotConfirmation(ctx context.Context, id uuid.UUID, pending json.RawMessage) error {
	_, err := q.db.Exec(ctx, `UPDATE conversations SET pending_slot = $2 WHERE id = $1`, id, pending)
	if err != nil {
		return fmt.Errorf("setting pending slot confirmation: %w", err)
	}
	return nil
}

// BumpLastMessageAt advances a conversation's last_message_at to now.
func (q *Queries) BumpLastMessageAt(ctx context.Context, id uuid.UUID) error {
	_, err := q.db.Exec(ctx, `UPDATE conversations SET last_message_at = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("bumping last_message_at: %w", err)
	}
	return nil
}
