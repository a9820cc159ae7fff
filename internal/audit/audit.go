// Package audit is an async, buffered append-only audit log writer:
// entries are sent to an internal channel and flushed in batches by a
// background goroutine, so emitting an audit action never blocks the
// worker or pipeline step that raised it.
package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/leaseos/leaseline/internal/db"
)

// Entry is a single audit log entry to be written.
type Entry struct {
	ActorType  string
	ActorID    *string
	EntityType string
	EntityID   string
	Action     string
	Detail     map[string]any
	CreatedAt  time.Time
}

// Recorder receives a copy of every emitted audit entry, alongside the
// durable write — used to feed an in-memory admin snapshot.
type Recorder interface {
	RecordAudit(action, entityType, entityID string, detail map[string]any)
}

// Writer is an async, buffered audit log writer. Call Start to begin
// processing entries and Close to drain and stop.
type Writer struct {
	pool     *pgxpool.Pool
	logger   *slog.Logger
	entries  chan Entry
	wg       sync.WaitGroup
	recorder Recorder
}

const (
	bufferSize    = 1024
	flushInterval = 2 * time.Second
	flushBatch    = 64
)

// NewWriter creates an audit Writer.
func NewWriter(pool *pgxpool.Pool, logger *slog.Logger) *Writer {
	return &Writer{
		pool:    pool,
		logger:  logger,
		entries: make(chan Entry, bufferSize),
	}
}

// Attach wires a Recorder that receives every entry Emit raises, in
// addition to the durable write. Call before Start.
func (w *Writer) Attach(r Recorder) {
	w.recorder = r
}

// Start begins the background flush loop in its own goroutine and returns
// immediately. The loop exits once Close is called (or ctx is done) and
// every pending entry has been flushed.
func (w *Writer) Start(ctx context.Context) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.run(ctx)
	}()
}

// Close stops accepting new entries and waits for the background loop to
// flush everything buffered.
func (w *Writer) Close() {
	close(w.entries)
	w.wg.Wait()
}

// Log enqueues an audit entry. It never blocks the caller; when the buffer
// is full the entry is dropped and a warning is logged, since an audit
// backlog must never stall message processing.
func (w *Writer) Log(entry Entry) {
	select {
	case w.entries <- entry:
	default:
		w.logger.Warn("audit log buffer full, dropping entry", "action", entry.Action, "entityType", entry.EntityType)
	}
}

// Emit implements queue.AuditEmitter (and the equivalent contract used by
// the pipeline, worker, and booking service): it is the one call site
// every component uses to raise a named audit action with free-form
// attributes.
func (w *Writer) Emit(ctx context.Context, action string, attrs map[string]any) {
	entry := Entry{
		ActorType: "system",
		Action:    action,
		Detail:    attrs,
		CreatedAt: time.Now().UTC(),
	}
	if entityType, ok := attrs["entityType"].(string); ok {
		entry.EntityType = entityType
	}
	if entityID, ok := attrs["entityId"].(string); ok {
		entry.EntityID = entityID
	} else if conversationID, ok := attrs["conversationId"]; ok {
		entry.EntityType = "conversation"
		entry.EntityID = toString(conversationID)
	}
	if w.recorder != nil {
		w.recorder.RecordAudit(action, entry.EntityType, entry.EntityID, attrs)
	}
	w.Log(entry)
}

func toString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case interface{ String() string }:
		return t.String()
	default:
		return ""
	}
}

func (w *Writer) run(ctx context.Context) {
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]Entry, 0, flushBatch)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		w.flush(batch)
		batch = batch[:0]
	}

	for {
		select {
		case entry, ok := <-w.entries:
			if !ok {
				flush()
				return
			}
			batch = append(batch, entry)
			if len(batch) >= flushBatch {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-ctx.Done():
			for {
				select {
				case entry, ok := <-w.entries:
					if !ok {
						flush()
						return
					}
					batch = append(batch, entry)
				default:
					flush()
					return
				}
			}
		}
	}
}

func (w *Writer) flush(entries []Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	rows := make([]db.AuditLogEntry, 0, len(entries))
	for _, e := range entries {
		detail, err := json.Marshal(e.Detail)
		if err != nil {
			w.logger.Error("marshaling audit detail", "error", err, "action", e.Action)
			continue
		}
		rows = append(rows, db.AuditLogEntry{
			ActorType:  e.ActorType,
			ActorID:    e.ActorID,
			EntityType: e.EntityType,
			EntityID:   e.EntityID,
			Action:     e.Action,
			Details:    detail,
			CreatedAt:  e.CreatedAt,
		})
	}

	q := db.New(w.pool)
	if err := q.InsertAuditLogBatch(ctx, rows); err != nil {
		w.logger.Error("flushing audit log batch", "error", err, "count", len(rows))
	}
}
