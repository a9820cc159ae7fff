package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Message is the row shape for an inbound or outbound message.
type Message struct {
	ID                uuid.UUID
	ConversationID    uuid.UUID
	Direction         string
	ExternalMessageID *string
	Body              string
	Metadata          json.RawMessage
	ReviewStatus      string
	SentAt            time.Time
	CreatedAt         time.Time
}

var messageColumns = `id, conversation_id, direction, external_message_id, body, metadata, review_status, sent_at, created_at`

func scanMessage(row pgx.Row) (Message, error) {
	var m Message
	err := row.Scan(&m.ID, &m.ConversationID, &m.Direction, &m.ExternalMessageID, &m.Body, &m.Metadata,
		&m.ReviewStatus, &m.SentAt, &m.CreatedAt)
	if err != nil {
		return Message{}, err
	}
	return m, nil
}

// ClaimedMessageRow is the joined projection returned by ClaimPendingMessages:
// the inbound message plus the account/platform context a worker needs.
type ClaimedMessageRow struct {
	Message
	PlatformAccountID   uuid.UUID
	Platform            string
	IsActive            bool
	SendMode            string
	ExternalThreadID    string
	ConversationStatus  string
	ConversationOutcome *string
	UnitID              *uuid.UUID
	ListingID           *uuid.UUID
}

// ClaimPendingMessages selects up to limit unclaimed (or claim-expired)
// inbound messages in sentAt order, locks them with skip-locked semantics,
// and writes a fresh workerClaim into each row's metadata, all inside one
// transaction. The caller must commit.
func (q *Queries) ClaimPendingMessages(ctx context.Context, tx pgx.Tx, workerID string, limit int, claimTTL time.Duration) ([]ClaimedMessageRow, error) {
	rows, err := tx.Query(ctx, `
		SELECT m.id, m.conversation_id, m.direction, m.external_message_id, m.body, m.metadata,
			m.review_status, m.sent_at, m.created_at,
			pa.id, pa.platform, pa.is_active, pa.send_mode,
			c.external_thread_id, c.status, c.workflow_outcome, c.unit_id, c.listing_id
		FROM messages m
		JOIN conversations c ON c.id = m.conversation_id
		JOIN platform_accounts pa ON pa.id = c.platform_account_id
		WHERE m.direction = 'inbound'
		  AND (m.metadata -> 'aiProcessedAt') IS NULL
		  AND (
			(m.metadata -> 'workerClaim' -> 'claimExpiresAt') IS NULL
			OR (m.metadata -> 'workerClaim' ->> 'claimExpiresAt')::timestamptz <= now()
		  )
		ORDER BY m.sent_at ASC, m.created_at ASC
		LIMIT $1
		FOR UPDATE OF m SKIP LOCKED`, limit)
	if err != nil {
		return nil, fmt.Errorf("selecting claimable messages: %w", err)
	}

	var claimed []ClaimedMessageRow
	var ids []uuid.UUID
	for rows.Next() {
		var r ClaimedMessageRow
		if err := rows.Scan(&r.ID, &r.ConversationID, &r.Direction, &r.ExternalMessageID, &r.Body, &r.Metadata,
			&r.ReviewStatus, &r.SentAt, &r.CreatedAt,
			&r.PlatformAccountID, &r.Platform, &r.IsActive, &r.SendMode,
			&r.ExternalThreadID, &r.ConversationStatus, &r.ConversationOutcome, &r.UnitID, &r.ListingID); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning claimable message: %w", err)
		}
		claimed = append(claimed, r)
		ids = append(ids, r.ID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating claimable messages: %w", err)
	}

	now := time.Now().UTC()
	expiresAt := now.Add(claimTTL)
	claimJSON, err := json.Marshal(map[string]any{
		"workerId":       workerID,
		"claimedAt":      now,
		"claimExpiresAt": expiresAt,
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling claim: %w", err)
	}

	for _, id := range ids {
		_, err := tx.Exec(ctx, `
			UPDATE messages SET metadata = jsonb_set(metadata, '{workerClaim}', $2::jsonb, true)
			WHERE id = $1`, id, claimJSON)
		if err != nil {
			return nil, fmt.Errorf("writing claim lease for message %s: %w", id, err)
		}
	}

	return claimed, nil
}

// MarkInboundProcessed patches an inbound message's metadata with the
// final AI decision trail and removes the workerClaim entry.
func (q *Queries) MarkInboundProcessed(ctx context.Context, id uuid.UUID, metadata json.RawMessage) error {
	_, err := q.db.Exec(ctx, `
		UPDATE messages
		SET metadata = (metadata || $2::jsonb) - 'workerClaim'
		WHERE id = $1`, id, metadata)
	if err != nil {
		return fmt.Errorf("marking inbound message processed: %w", err)
	}
	return nil
}

// BeginDispatchAttemptResult reports whether the caller won the
// compare-and-set and, if not, the prior delivery record to reuse.
type BeginDispatchAttemptResult struct {
	ShouldDispatch  bool
	PriorDispatch   *json.RawMessage
}

// BeginDispatchAttempt atomically promotes an outbound attempt's dispatch
// state to in_progress, but only when the existing dispatch key differs
// from dispatchKey or the existing state is not in {in_progress, completed}.
// A false ShouldDispatch means a concurrent or prior attempt already owns
// this dispatchKey; its delivery record is returned for reuse.
func (q *Queries) BeginDispatchAttempt(ctx context.Context, messageID uuid.UUID, dispatchKey string) (BeginDispatchAttemptResult, error) {
	var existing json.RawMessage
	err := q.db.QueryRow(ctx, `SELECT metadata -> 'dispatch' FROM messages WHERE id = $1 FOR UPDATE`, messageID).Scan(&existing)
	if err != nil {
		return BeginDispatchAttemptResult{}, fmt.Errorf("locking message for dispatch attempt: %w", err)
	}

	var prior struct {
		Key   string `json:"key"`
		State string `json:"state"`
	}
	hasPrior := len(existing) > 0 && string(existing) != "null"
	if hasPrior {
		if err := json.Unmarshal(existing, &prior); err != nil {
			return BeginDispatchAttemptResult{}, fmt.Errorf("decoding existing dispatch state: %w", err)
		}
	}

	if hasPrior && prior.Key == dispatchKey && (prior.State == "in_progress" || prior.State == "completed") {
		return BeginDispatchAttemptResult{ShouldDispatch: false, PriorDispatch: &existing}, nil
	}

	next, err := json.Marshal(map[string]any{
		"key":           dispatchKey,
		"state":         "in_progress",
		"attempts":      0,
		"lastAttemptAt": time.Now().UTC(),
	})
	if err != nil {
		return BeginDispatchAttemptResult{}, fmt.Errorf("marshaling dispatch state: %w", err)
	}

	_, err = q.db.Exec(ctx, `
		UPDATE messages SET metadata = jsonb_set(metadata, '{dispatch}', $2::jsonb, true)
		WHERE id = $1`, messageID, next)
	if err != nil {
		return BeginDispatchAttemptResult{}, fmt.Errorf("writing in-progress dispatch state: %w", err)
	}

	return BeginDispatchAttemptResult{ShouldDispatch: true}, nil
}

// CompleteDispatchAttempt records a successful delivery and marks the
// dispatch state completed.
func (q *Queries) CompleteDispatchAttempt(ctx context.Context, messageID uuid.UUID, delivery json.RawMessage) error {
	_, err := q.db.Exec(ctx, `
		UPDATE messages
		SET metadata = jsonb_set(
			jsonb_set(metadata, '{dispatch,state}', '"completed"', true),
			'{dispatch,delivery}', $2::jsonb, true)
		WHERE id = $1`, messageID, delivery)
	if err != nil {
		return fmt.Errorf("completing dispatch attempt: %w", err)
	}
	return nil
}

// FailDispatchAttemptParams describes a failed or exhausted dispatch attempt.
type FailDispatchAttemptParams struct {
	MessageID        uuid.UUID
	FailedStage      string
	LastError        string
	Attempts         int
	RetryExhausted   bool
	EscalationReason string
}

// FailDispatchAttempt marks the dispatch state failed, or dlq when retries
// are exhausted, recording the failure stage, error, and retry record.
func (q *Queries) FailDispatchAttempt(ctx context.Context, p FailDispatchAttemptParams) error {
	state := "failed"
	if p.RetryExhausted {
		state = "dlq"
	}
	retry, err := json.Marshal(map[string]any{
		"attempts":       p.Attempts,
		"retryExhausted": p.RetryExhausted,
	})
	if err != nil {
		return fmt.Errorf("marshaling retry record: %w", err)
	}

	_, err = q.db.Exec(ctx, `
		UPDATE messages
		SET metadata = jsonb_set(jsonb_set(jsonb_set(jsonb_set(jsonb_set(
			metadata, '{dispatch,state}', to_jsonb($2::text), true),
			'{dispatch,failedStage}', to_jsonb($3::text), true),
			'{dispatch,lastError}', to_jsonb($4::text), true),
			'{dispatch,retry}', $5::jsonb, true),
			'{dispatch,escalationReasonCode}', to_jsonb($6::text), true)
		WHERE id = $1`,
		p.MessageID, state, p.FailedStage, p.LastError, retry, p.EscalationReason)
	if err != nil {
		return fmt.Errorf("failing dispatch attempt: %w", err)
	}
	return nil
}

// InsertOutboundParams describes a new outbound message.
type InsertOutboundParams struct {
	ConversationID    uuid.UUID
	ExternalMessageID *string
	Body              string
	ReviewStatus      string
	Metadata          json.RawMessage
	SentAt            time.Time
}

// InsertOutboundMessage inserts an outbound message, relying on the
// (conversationId, externalMessageId) uniqueness constraint for
// idempotency: a conflicting retry inserts nothing and Inserted is false.
// On success it also bumps the conversation's last_message_at.
func (q *Queries) InsertOutboundMessage(ctx context.Context, p InsertOutboundParams) (id uuid.UUID, inserted bool, err error) {
	err = q.db.QueryRow(ctx, `
		INSERT INTO messages (id, conversation_id, direction, external_message_id, body, metadata, review_status, sent_at, created_at)
		VALUES (gen_random_uuid(), $1, 'outbound', $2, $3, $4, $5, $6, now())
		ON CONFLICT (conversation_id, external_message_id) WHERE external_message_id IS NOT NULL DO NOTHING
		RETURNING id`,
		p.ConversationID, p.ExternalMessageID, p.Body, p.Metadata, p.ReviewStatus, p.SentAt,
	).Scan(&id)
	if err != nil {
		if err == pgx.ErrNoRows {
			return uuid.Nil, false, nil
		}
		return uuid.Nil, false, fmt.Errorf("inserting outbound message: %w", err)
	}

	if err := q.BumpLastMessageAt(ctx, p.ConversationID); err != nil {
		return id, true, err
	}
	return id, true, nil
}

// FindInboundByExternalID looks up an inbound message by its natural
// idempotency key, the (conversationId, externalMessageId) pair, used by
// ingest dedup's Postgres fallback path.
func (q *Queries) FindInboundByExternalID(ctx context.Context, conversationID uuid.UUID, externalMessageID string) (Message, error) {
	m, err := scanMessage(q.db.QueryRow(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE conversation_id = $1 AND external_message_id = $2 AND direction = 'inbound'`,
		conversationID, externalMessageID))
	if err != nil {
		return Message{}, err
	}
	return m, nil
}

// InsertInboundParams describes a newly ingested inbound message.
type InsertInboundParams struct {
	ConversationID    uuid.UUID
	ExternalMessageID *string
	Body              string
	SentAt            time.Time
}

// InsertInboundMessage inserts a freshly ingested inbound message with
// empty metadata (no claim, no aiProcessedAt yet).
func (q *Queries) InsertInboundMessage(ctx context.Context, p InsertInboundParams) (Message, error) {
	m, err := scanMessage(q.db.QueryRow(ctx, `
		INSERT INTO messages (id, conversation_id, direction, external_message_id, body, metadata, review_status, sent_at, created_at)
		VALUES (gen_random_uuid(), $1, 'inbound', $2, $3, '{}'::jsonb, '', $4, now())
		RETURNING `+messageColumns,
		p.ConversationID, p.ExternalMessageID, p.Body, p.SentAt))
	if err != nil {
		return Message{}, fmt.Errorf("inserting inbound message: %w", err)
	}
	return m, nil
}

// HasEarlierOutbound reports whether an outbound message already exists in
// the conversation with sentAt strictly before beforeSentAt — the
// "outbound exists earlier in the same thread" definition of
// hasRecentOutbound, computed before the current message's own row would
// be counted.
func (q *Queries) HasEarlierOutbound(ctx context.Context, conversationID uuid.UUID, beforeSentAt time.Time) (bool, error) {
	var exists bool
	err := q.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM messages
			WHERE conversation_id = $1 AND direction = 'outbound' AND sent_at < $2
		)`, conversationID, beforeSentAt).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking for earlier outbound: %w", err)
	}
	return exists, nil
}

// RecentConversationMessages returns the most recent messages in a
// conversation, newest first, for building AI classifier context.
func (q *Queries) RecentConversationMessages(ctx context.Context, conversationID uuid.UUID, limit int) ([]Message, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+messageColumns+`
		FROM messages WHERE conversation_id = $1
		ORDER BY sent_at DESC LIMIT $2`, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying recent messages: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning recent message: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
