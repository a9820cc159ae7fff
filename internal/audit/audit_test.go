package audit

import (
	"log/slog"
	"testing"
)

func TestLogDropsWhenFull(t *testing.T) {
	logger := slog.Default()
	w := NewWriter(nil, logger)
	// Don't start the background goroutine — nothing drains the channel.

	for i := 0; i < bufferSize; i++ {
		w.Log(Entry{Action: "test", EntityType: "conversation"})
	}

	w.Log(Entry{Action: "dropped", EntityType: "conversation"})

	if len(w.entries) != bufferSize {
		t.Errorf("buffer size = %d, want %d", len(w.entries), bufferSize)
	}
}

func TestEmitExtractsConversationEntity(t *testing.T) {
	w := NewWriter(nil, slog.Default())

	w.Emit(nil, "ai_reply_decision", map[string]any{"conversationId": "conv-123", "intent": "tour_request"})

	entry := <-w.entries
	if entry.Action != "ai_reply_decision" {
		t.Errorf("Action = %q, want ai_reply_decision", entry.Action)
	}
	if entry.EntityType != "conversation" || entry.EntityID != "conv-123" {
		t.Errorf("entity = %q/%q, want conversation/conv-123", entry.EntityType, entry.EntityID)
	}
	if entry.Detail["intent"] != "tour_request" {
		t.Errorf("detail not preserved: %+v", entry.Detail)
	}
}

func TestEmitPrefersExplicitEntityID(t *testing.T) {
	w := NewWriter(nil, slog.Default())

	w.Emit(nil, "showing_booking_created", map[string]any{"entityType": "showing", "entityId": "showing-9", "conversationId": "conv-1"})

	entry := <-w.entries
	if entry.EntityType != "showing" || entry.EntityID != "showing-9" {
		t.Errorf("entity = %q/%q, want showing/showing-9", entry.EntityType, entry.EntityID)
	}
}
