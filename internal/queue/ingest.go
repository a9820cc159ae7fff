package queue

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/leaseos/leaseline/internal/connector"
	"github.com/leaseos/leaseline/internal/db"
)

// AuditEmitter records a structured audit action. Implemented by the audit
// writer; kept as a narrow interface here to avoid a package cycle.
type AuditEmitter interface {
	Emit(ctx context.Context, action string, attrs map[string]any)
}

// IngestResult tallies the outcome of ingesting one account's batch.
type IngestResult struct {
	Inserted              int
	Duplicates            int
	ConversationsCreated  int
	ConversationsReopened int
}

// Ingestor turns connector-level InboundMessage batches into persisted
// conversations and messages, resolving conversation linkage, reopening
// archived threads, and suppressing duplicates by natural key.
type Ingestor struct {
	pool   *pgxpool.Pool
	dedup  *Deduplicator
	audit  AuditEmitter
}

// NewIngestor creates an Ingestor.
func NewIngestor(pool *pgxpool.Pool, dedup *Deduplicator, audit AuditEmitter) *Ingestor {
	return &Ingestor{pool: pool, dedup: dedup, audit: audit}
}

// IngestAccount persists a batch of inbound messages observed for one
// platform account, one message per transaction so a single bad row never
// blocks the rest of the batch.
func (ing *Ingestor) IngestAccount(ctx context.Context, accountID uuid.UUID, messages []connector.InboundMessage) (IngestResult, error) {
	var result IngestResult
	var errs []error

	for _, msg := range messages {
		inserted, created, reopened, err := ing.ingestOne(ctx, accountID, msg)
		if err != nil {
			errs = append(errs, fmt.Errorf("ingesting message on thread %s: %w", msg.ExternalThreadID, err))
			continue
		}
		if created {
			result.ConversationsCreated++
		}
		if reopened {
			result.ConversationsReopened++
		}
		if inserted {
			result.Inserted++
		} else {
			result.Duplicates++
		}
	}

	return result, errors.Join(errs...)
}

func (ing *Ingestor) ingestOne(ctx context.Context, accountID uuid.UUID, msg connector.InboundMessage) (inserted, created, reopened bool, err error) {
	tx, err := ing.pool.Begin(ctx)
	if err != nil {
		return false, false, false, fmt.Errorf("beginning ingest transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	q := db.New(tx)

	conv, err := q.FindConversationByExternalThread(ctx, accountID, msg.ExternalThreadID)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		var leadName *string
		if msg.LeadName != "" {
			leadName = &msg.LeadName
		}
		conv, err = q.CreateConversation(ctx, db.CreateConversationParams{
			PlatformAccountID: accountID,
			ExternalThreadID:  msg.ExternalThreadID,
			LeadName:          leadName,
		})
		if err != nil {
			return false, false, false, fmt.Errorf("creating conversation: %w", err)
		}
		created = true
		ing.emit(ctx, "ingest_conversation_linkage_unresolved", map[string]any{
			"externalThreadId": msg.ExternalThreadID,
			"conversationId":   conv.ID,
		})
	case err != nil:
		return false, false, false, fmt.Errorf("finding conversation: %w", err)
	default:
		ing.emit(ctx, "ingest_conversation_linkage_resolved", map[string]any{
			"externalThreadId": msg.ExternalThreadID,
			"conversationId":   conv.ID,
		})
	}

	if conv.Status == "archived" {
		if err := q.ReopenConversation(ctx, conv.ID); err != nil {
			return false, created, false, fmt.Errorf("reopening conversation: %w", err)
		}
		reopened = true
	}

	isDuplicate, err := ing.dedup.Check(ctx, tx, conv.ID, msg.ExternalMessageID)
	if err != nil {
		return false, created, reopened, fmt.Errorf("checking ingest dedup: %w", err)
	}
	if isDuplicate {
		if err := tx.Commit(ctx); err != nil {
			return false, created, reopened, fmt.Errorf("committing ingest (duplicate): %w", err)
		}
		return false, created, reopened, nil
	}

	var externalMessageID *string
	if msg.ExternalMessageID != "" {
		externalMessageID = &msg.ExternalMessageID
	}
	if _, err := q.InsertInboundMessage(ctx, db.InsertInboundParams{
		ConversationID:    conv.ID,
		ExternalMessageID: externalMessageID,
		Body:              msg.Body,
		SentAt:            msg.SentAt,
	}); err != nil {
		return false, created, reopened, fmt.Errorf("inserting inbound message: %w", err)
	}
	if err := q.BumpLastMessageAt(ctx, conv.ID); err != nil {
		return false, created, reopened, fmt.Errorf("bumping last_message_at: %w", err)
	}
	recovered, err := q.RecoverFromNoReply(ctx, conv.ID)
	if err != nil {
		return false, created, reopened, fmt.Errorf("checking no_reply recovery: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, created, reopened, fmt.Errorf("committing ingest: %w", err)
	}

	if recovered {
		ing.emit(ctx, "workflow_no_reply_recovered", map[string]any{
			"entityType":     "conversation",
			"entityId":       conv.ID.String(),
			"conversationId": conv.ID.String(),
		})
	}

	ing.dedup.RecordNew(ctx, conv.ID, msg.ExternalMessageID)
	return true, created, reopened, nil
}

func (ing *Ingestor) emit(ctx context.Context, action string, attrs map[string]any) {
	if ing.audit == nil {
		return
	}
	ing.audit.Emit(ctx, action, attrs)
}
