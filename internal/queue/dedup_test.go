package queue

import (
	"context"
	"log/slog"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
)

func TestRedisKeyIsDeterministicAndKeyed(t *testing.T) {
	convA := uuid.New()
	convB := uuid.New()

	k1 := redisKey(convA, "ext-1")
	k2 := redisKey(convA, "ext-1")
	if k1 != k2 {
		t.Fatalf("redisKey should be deterministic: %q != %q", k1, k2)
	}
	if redisKey(convA, "ext-1") == redisKey(convB, "ext-1") {
		t.Fatal("different conversations should produce different keys")
	}
	if redisKey(convA, "ext-1") == redisKey(convA, "ext-2") {
		t.Fatal("different external ids should produce different keys")
	}
}

func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("starting miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func TestDeduplicatorRedisHotPath(t *testing.T) {
	client := setupTestRedis(t)
	d := NewDeduplicator(client, slog.Default())
	conversationID := uuid.New()

	d.RecordNew(context.Background(), conversationID, "ext-1")

	isDup, err := d.Check(context.Background(), noopDBTX{}, conversationID, "ext-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !isDup {
		t.Fatal("expected a Redis-cached message to be reported as a duplicate without touching Postgres")
	}
}

func TestDeduplicatorSkipsEmptyExternalID(t *testing.T) {
	client := setupTestRedis(t)
	d := NewDeduplicator(client, slog.Default())

	isDup, err := d.Check(context.Background(), noopDBTX{}, uuid.New(), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if isDup {
		t.Fatal("a message with no external id can never be deduplicated by natural key")
	}
}

// noopDBTX panics if ever actually queried; it stands in for a real
// connection in tests that only exercise the Redis hot path.
type noopDBTX struct{}

func (noopDBTX) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	panic("noopDBTX: Exec should not be called when the Redis hot path hits")
}
func (noopDBTX) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	panic("noopDBTX: Query should not be called when the Redis hot path hits")
}
func (noopDBTX) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	panic("noopDBTX: QueryRow should not be called when the Redis hot path hits")
}
