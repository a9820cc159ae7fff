package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AuditLogEntry is a single append-only audit row.
type AuditLogEntry struct {
	ActorType  string
	ActorID    *string
	EntityType string
	EntityID   string
	Action     string
	Details    json.RawMessage
	CreatedAt  time.Time
}

// InsertAuditLogBatch appends a batch of audit entries in one round trip,
// used by the async buffered audit writer's periodic flush.
func (q *Queries) InsertAuditLogBatch(ctx context.Context, entries []AuditLogEntry) error {
	if len(entries) == 0 {
		return nil
	}

	batch := make([][]any, 0, len(entries))
	for _, e := range entries {
		createdAt := e.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		batch = append(batch, []any{uuid.New(), e.ActorType, e.ActorID, e.EntityType, e.EntityID, e.Action, e.Details, createdAt})
	}

	for _, row := range batch {
		_, err := q.db.Exec(ctx, `
			INSERT INTO audit_log (id, actor_type, actor_id, entity_type, entity_id, action, details, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`, row...)
		if err != nil {
			return fmt.Errorf("inserting audit log entry: %w", err)
		}
	}
	return nil
}
