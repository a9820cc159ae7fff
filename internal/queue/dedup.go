// Package queue implements ingest deduplication and conversation linkage
// for inbound messages. The claim-lease, dispatch-state, and outbound-insert
// persistence operations are in package db.
package queue

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"

	"github.com/leaseos/leaseline/internal/db"
)

const (
	dedupTTL       = 24 * time.Hour
	redisKeyPrefix = "msg:dedup:"
)

// Deduplicator checks whether an inbound message's natural idempotency key,
// (conversationId, externalMessageId), has already been ingested. Redis is
// the fast path; Postgres is the fallback of record when Redis misses or
// errors.
type Deduplicator struct {
	rdb    *redis.Client
	logger *slog.Logger
}

// NewDeduplicator creates a Deduplicator.
func NewDeduplicator(rdb *redis.Client, logger *slog.Logger) *Deduplicator {
	return &Deduplicator{rdb: rdb, logger: logger}
}

func redisKey(conversationID uuid.UUID, externalMessageID string) string {
	return redisKeyPrefix + conversationID.String() + ":" + externalMessageID
}

// Check reports whether the given external message has already been
// recorded for this conversation. A Redis hit short-circuits the Postgres
// lookup; a Redis miss or error falls through to the database, which is
// authoritative.
func (d *Deduplicator) Check(ctx context.Context, dbtx db.DBTX, conversationID uuid.UUID, externalMessageID string) (bool, error) {
	if externalMessageID == "" {
		return false, nil
	}

	key := redisKey(conversationID, externalMessageID)
	if d.rdb != nil {
		_, err := d.rdb.Get(ctx, key).Result()
		if err == nil {
			return true, nil
		}
		if !errors.Is(err, redis.Nil) {
			d.logger.Warn("redis ingest dedup lookup failed, falling back to postgres", "error", err)
		}
	}

	q := db.New(dbtx)
	_, err := q.FindInboundByExternalID(ctx, conversationID, externalMessageID)
	if err == nil {
		d.recordNew(ctx, conversationID, externalMessageID)
		return true, nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	return false, err
}

// RecordNew caches a newly ingested message's idempotency key.
func (d *Deduplicator) RecordNew(ctx context.Context, conversationID uuid.UUID, externalMessageID string) {
	d.recordNew(ctx, conversationID, externalMessageID)
}

func (d *Deduplicator) recordNew(ctx context.Context, conversationID uuid.UUID, externalMessageID string) {
	if d.rdb == nil || externalMessageID == "" {
		return
	}
	key := redisKey(conversationID, externalMessageID)
	if err := d.rdb.Set(ctx, key, "1", dedupTTL).Err(); err != nil {
		d.logger.Warn("failed to set ingest dedup cache", "error", err, "key", key)
	}
}
