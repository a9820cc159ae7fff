// Package worker runs the poll-claim-process loop that turns claimed
// inbound messages into classified, guardrail-gated, and (when eligible)
// dispatched replies.
package worker

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/leaseos/leaseline/internal/classifier"
	"github.com/leaseos/leaseline/internal/connector"
	"github.com/leaseos/leaseline/internal/db"
	"github.com/leaseos/leaseline/internal/domain"
	"github.com/leaseos/leaseline/internal/guardrails"
	"github.com/leaseos/leaseline/internal/notify"
	"github.com/leaseos/leaseline/internal/pipeline"
	"github.com/leaseos/leaseline/internal/queue"
	"github.com/leaseos/leaseline/internal/telemetry"
)

// Config tunes the worker loop's polling, claiming, and eligibility policy.
type Config struct {
	PollInterval       time.Duration
	BatchSize          int
	ClaimTTL           time.Duration
	WorkerID           string
	RunOnce            bool
	AllowLeadNames     []string
	MaxMessageAge      time.Duration
	SlotOptionLimit    int
	CandidateLookDays  int
	Concurrency        int
	AI                 classifier.AIClassifier
	AIEnabled          bool
}

// Loop is the worker's ingest-then-claim-process cycle.
type Loop struct {
	pool     *pgxpool.Pool
	adapters *connector.Registry
	ingestor *queue.Ingestor
	audit    queue.AuditEmitter
	notifier *notify.Notifier
	logger   *slog.Logger
	cfg      Config

	running atomic.Bool
}

// New creates a worker Loop.
func New(pool *pgxpool.Pool, adapters *connector.Registry, ingestor *queue.Ingestor, audit queue.AuditEmitter, notifier *notify.Notifier, logger *slog.Logger, cfg Config) *Loop {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.SlotOptionLimit <= 0 {
		cfg.SlotOptionLimit = 4
	}
	if cfg.CandidateLookDays <= 0 {
		cfg.CandidateLookDays = 3
	}
	if cfg.Concurrency <= 0 {
		// Chosen degree: claimed messages belong to independent
		// conversations, so a handful of workers in flight at once is safe
		// without risking a burst of simultaneous platform dispatches.
		cfg.Concurrency = 4
	}
	return &Loop{pool: pool, adapters: adapters, ingestor: ingestor, audit: audit, notifier: notifier, logger: logger, cfg: cfg}
}

// Run ticks the loop until ctx is cancelled, skipping any tick that would
// overlap a cycle still in flight. With cfg.RunOnce it runs a single cycle
// and returns.
func (l *Loop) Run(ctx context.Context) error {
	if l.cfg.RunOnce {
		l.tick(ctx)
		return nil
	}

	l.logger.Info("worker loop started", "pollInterval", l.cfg.PollInterval, "batchSize", l.cfg.BatchSize)
	ticker := time.NewTicker(l.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("worker loop stopped")
			return nil
		case <-ticker.C:
			l.tick(ctx)
		}
	}
}

func (l *Loop) tick(ctx context.Context) {
	if !l.running.CompareAndSwap(false, true) {
		telemetry.WorkerCyclesTotal.WithLabelValues("skipped_overlap").Inc()
		l.logger.Warn("skipping worker cycle: previous cycle still running")
		return
	}
	defer l.running.Store(false)

	start := time.Now()
	defer func() { telemetry.WorkerCycleDuration.Observe(time.Since(start).Seconds()) }()

	l.ingestAllAccounts(ctx)

	claimed, err := l.claimBatch(ctx)
	if err != nil {
		telemetry.WorkerCyclesTotal.WithLabelValues("error").Inc()
		l.logger.Error("claiming message batch", "error", err)
		return
	}
	telemetry.WorkerCyclesTotal.WithLabelValues("ran").Inc()
	telemetry.QueueClaimedGauge.Set(float64(len(claimed)))

	l.processBatch(ctx, claimed)
}

// processBatch runs processOne over every claimed message, bounded to
// cfg.Concurrency workers in flight at once. Messages are grouped by
// conversation first: the claim query already orders by sentAt ASC, so each
// conversation's group is processed strictly in order on a single goroutine,
// while distinct conversations run concurrently. This keeps the per-thread
// ordering guarantee while still letting unrelated conversations overlap.
func (l *Loop) processBatch(ctx context.Context, claimed []db.ClaimedMessageRow) {
	groups := make(map[uuid.UUID][]db.ClaimedMessageRow)
	var order []uuid.UUID
	for _, msg := range claimed {
		if _, seen := groups[msg.ConversationID]; !seen {
			order = append(order, msg.ConversationID)
		}
		groups[msg.ConversationID] = append(groups[msg.ConversationID], msg)
	}

	sem := make(chan struct{}, l.cfg.Concurrency)
	var wg sync.WaitGroup

	for _, convID := range order {
		msgs := groups[convID]
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			for _, msg := range msgs {
				if err := l.processOne(ctx, msg); err != nil {
					l.logger.Error("processing claimed message", "messageId", msg.ID, "error", err)
				}
			}
		}()
	}
	wg.Wait()
}

// ingestAllAccounts pulls fresh inbound messages from every active platform
// account before each claim cycle, so a reply never waits past this
// worker's own poll interval to be noticed. One account's ingest failure is
// logged and skipped rather than aborting the rest of the batch.
func (l *Loop) ingestAllAccounts(ctx context.Context) {
	q := db.New(l.pool)
	accounts, err := q.ListActivePlatformAccounts(ctx, "")
	if err != nil {
		l.logger.Error("listing active platform accounts for ingest", "error", err)
		return
	}

	for _, acct := range accounts {
		adapter, err := l.adapters.Get(domain.Platform(acct.Platform))
		if err != nil {
			l.logger.Warn("no adapter registered for platform", "platform", acct.Platform)
			continue
		}

		creds := map[string]string{}
		if err := json.Unmarshal(acct.Credentials, &creds); err != nil {
			l.logger.Error("decoding platform account credentials", "accountId", acct.ID, "error", err)
			continue
		}

		inbound, err := adapter.Ingest(ctx, connector.Account{ID: acct.ID, Platform: domain.Platform(acct.Platform), Credentials: creds})
		if err != nil {
			l.logger.Error("ingesting platform account", "accountId", acct.ID, "platform", acct.Platform, "error", err)
			continue
		}
		if len(inbound) == 0 {
			continue
		}

		result, err := l.ingestor.IngestAccount(ctx, acct.ID, inbound)
		if err != nil {
			l.logger.Error("persisting ingested messages", "accountId", acct.ID, "error", err)
			continue
		}
		telemetry.MessagesIngestedTotal.WithLabelValues(acct.Platform).Add(float64(result.Inserted))
		telemetry.MessagesDeduplicatedTotal.WithLabelValues(acct.Platform).Add(float64(result.Duplicates))
	}
}

func (l *Loop) claimBatch(ctx context.Context) ([]db.ClaimedMessageRow, error) {
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning claim transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	q := db.New(l.pool)
	claimed, err := q.ClaimPendingMessages(ctx, tx, l.cfg.WorkerID, l.cfg.BatchSize, l.cfg.ClaimTTL)
	if err != nil {
		return nil, fmt.Errorf("claiming pending messages: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing claim: %w", err)
	}
	return claimed, nil
}

// processOne runs the ten ordered steps of a single claimed message's
// decision-and-dispatch cycle.
func (l *Loop) processOne(ctx context.Context, claimed db.ClaimedMessageRow) error {
	q := db.New(l.pool)
	failureStage := ""

	defer func() {
		if failureStage != "" {
			l.emit(ctx, "ai_reply_error", map[string]any{
				"entityType":     "message",
				"entityId":       claimed.ID.String(),
				"conversationId": claimed.ConversationID.String(),
				"failureStage":   failureStage,
			})
		}
	}()

	// 1. Platform policy check.
	if !claimed.IsActive {
		failureStage = "policy_platform_inactive"
		return l.finish(ctx, claimed)
	}

	// 2. Dev allowlist / message age check.
	conv, err := l.findConversation(ctx, q, claimed.ConversationID)
	if err != nil {
		failureStage = "conversation_lookup"
		return err
	}
	if !l.isEligibleForAutoreply(conv, claimed) {
		return l.finish(ctx, claimed)
	}

	// 3. Slot fetch, when the conversation has an assigned unit.
	var candidates []domain.CandidateSlot
	if claimed.UnitID != nil {
		rows, err := l.loadCandidates(ctx, q, *claimed.UnitID)
		if err != nil {
			failureStage = "slot_fetch"
			return err
		}
		candidates = rows
	}

	// 4. Pipeline run.
	pendingSlot, err := decodePendingSlot(conv.PendingSlot)
	if err != nil {
		failureStage = "pending_slot_decode"
		return err
	}

	p := pipeline.New(q)
	out, err := p.Run(ctx, pipeline.Input{
		PlatformAccountID: claimed.PlatformAccountID,
		PlatformActive:    claimed.IsActive,
		SendMode:          domain.SendMode(claimed.SendMode),
		Body:              claimed.Body,
		HasRecentOutbound: l.hasEarlierOutbound(ctx, q, claimed),
		Candidates:        candidates,
		PendingSlot:       pendingSlot,
		AI:                l.cfg.AI,
		AIEnabled:         l.cfg.AIEnabled,
		TemplateContext:   map[string]string{},
	})
	if err != nil {
		failureStage = "pipeline_run"
		return err
	}

	telemetry.ConversationsClassifiedTotal.WithLabelValues(string(out.EffectiveIntent), string(out.WorkflowOutcome)).Inc()
	if out.Outcome == guardrails.OutcomeEscalate || out.Outcome == guardrails.OutcomeBlocked {
		telemetry.GuardrailBlocksTotal.WithLabelValues(string(out.Outcome)).Inc()
	}

	// 5. Workflow transition + showing sync.
	if err := l.applyWorkflowTransition(ctx, q, conv, out); err != nil {
		failureStage = "workflow_transition"
		return err
	}

	// 6. ai_reply_decision audit.
	l.emit(ctx, "ai_reply_decision", map[string]any{
		"entityType":      "message",
		"entityId":        claimed.ID.String(),
		"conversationId":  claimed.ConversationID.String(),
		"intent":          string(out.Intent),
		"effectiveIntent": string(out.EffectiveIntent),
		"outcome":         string(out.Outcome),
		"workflowOutcome": string(out.WorkflowOutcome),
		"confidence":      out.Confidence,
		"riskLevel":       string(out.RiskLevel),
	})

	// 7. Escalation emission.
	if out.Outcome == guardrails.OutcomeEscalate {
		l.notifyEscalation(ctx, claimed, out)
	}

	// 8-9. Dispatch (if eligible) + mark inbound processed.
	var dispatchErr error
	if out.Eligibility.Eligible && out.Outcome == guardrails.OutcomeSend && out.ReplyBody != "" {
		dispatchErr = l.dispatchReply(ctx, q, claimed, out)
	}

	if err := l.markProcessed(ctx, q, claimed, out); err != nil {
		failureStage = "mark_processed"
		return err
	}

	// 10. Final audit.
	if dispatchErr != nil {
		l.emit(ctx, "ai_reply_skipped", map[string]any{
			"entityType":     "message",
			"entityId":       claimed.ID.String(),
			"conversationId": claimed.ConversationID.String(),
			"reason":         dispatchErr.Error(),
		})
		return dispatchErr
	}
	l.emit(ctx, "ai_reply_created", map[string]any{
		"entityType":     "message",
		"entityId":       claimed.ID.String(),
		"conversationId": claimed.ConversationID.String(),
		"outcome":        string(out.Outcome),
	})
	return nil
}

func (l *Loop) findConversation(ctx context.Context, q *db.Queries, id uuid.UUID) (db.Conversation, error) {
	conv, err := q.FindConversationByID(ctx, id)
	if err != nil {
		return db.Conversation{}, fmt.Errorf("finding conversation: %w", err)
	}
	return conv, nil
}

func (l *Loop) finish(ctx context.Context, claimed db.ClaimedMessageRow) error {
	meta, err := json.Marshal(map[string]any{"aiProcessedAt": time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("marshaling skip metadata: %w", err)
	}
	q := db.New(l.pool)
	if err := q.MarkInboundProcessed(ctx, claimed.ID, meta); err != nil {
		return fmt.Errorf("marking skipped message processed: %w", err)
	}
	l.emit(ctx, "ai_reply_skipped", map[string]any{
		"entityType":     "message",
		"entityId":       claimed.ID.String(),
		"conversationId": claimed.ConversationID.String(),
	})
	return nil
}

func (l *Loop) isEligibleForAutoreply(conv db.Conversation, claimed db.ClaimedMessageRow) bool {
	if len(l.cfg.AllowLeadNames) > 0 {
		if conv.LeadName == nil || !containsFold(l.cfg.AllowLeadNames, *conv.LeadName) {
			return false
		}
	}
	if l.cfg.MaxMessageAge > 0 && time.Since(claimed.SentAt) > l.cfg.MaxMessageAge {
		return false
	}
	return true
}

func containsFold(list []string, needle string) bool {
	for _, v := range list {
		if strings.EqualFold(v, needle) {
			return true
		}
	}
	return false
}

func (l *Loop) loadCandidates(ctx context.Context, q *db.Queries, unitID uuid.UUID) ([]domain.CandidateSlot, error) {
	var out []domain.CandidateSlot
	now := time.Now().UTC()
	for i := 0; i < l.cfg.CandidateLookDays; i++ {
		rows, err := q.FetchCandidateSlots(ctx, unitID, now.AddDate(0, 0, i), true)
		if err != nil {
			return nil, fmt.Errorf("fetching candidate slots: %w", err)
		}
		for _, r := range rows {
			out = append(out, domain.CandidateSlot{
				UnitID:    r.UnitID,
				AgentID:   r.AgentID,
				AgentName: r.AgentName,
				StartsAt:  r.StartsAt,
				EndsAt:    r.EndsAt,
				Timezone:  r.Timezone,
				Mode:      domain.AssignmentMode(r.Mode),
				Priority:  r.Priority,
			})
		}
	}
	if len(out) > l.cfg.SlotOptionLimit {
		out = out[:l.cfg.SlotOptionLimit]
	}
	return out, nil
}

func (l *Loop) hasEarlierOutbound(ctx context.Context, q *db.Queries, claimed db.ClaimedMessageRow) bool {
	has, err := q.HasEarlierOutbound(ctx, claimed.ConversationID, claimed.SentAt)
	if err != nil {
		l.logger.Warn("checking earlier outbound", "error", err)
		return false
	}
	return has
}

func decodePendingSlot(raw []byte) (*domain.PendingSlotConfirmation, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var p domain.PendingSlotConfirmation
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decoding pending slot confirmation: %w", err)
	}
	return &p, nil
}

// applyWorkflowTransition maps a pipeline Output to its persisted
// conversation workflow state and showing-state side effect, per the
// fixed outcome-to-state mapping.
func (l *Loop) applyWorkflowTransition(ctx context.Context, q *db.Queries, conv db.Conversation, out pipeline.Output) error {
	params := db.TransitionWorkflowParams{ID: conv.ID, WorkflowState: conv.WorkflowState}

	outcome := string(out.WorkflowOutcome)
	params.WorkflowOutcome = &outcome

	switch out.WorkflowOutcome {
	case classifier.OutcomeHumanRequired:
		// workflow state unchanged; workflowOutcome recorded for agent review.
	case classifier.OutcomeShowingConfirmed:
		params.WorkflowState = "showing_confirmed"
		state := "confirmed"
		params.ShowingState = &state
	case classifier.OutcomeWantsReschedule:
		params.WorkflowState = "reschedule_requested"
		state := "reschedule_requested"
		params.ShowingState = &state
	case classifier.OutcomeNoReply:
		// left to the follow-up scheduler; no showing side effect here.
	case classifier.OutcomeNotInterested:
		state := "cancelled"
		params.ShowingState = &state
	case classifier.OutcomeGeneralQuestion:
		// no persisted side effect beyond the outcome marker itself.
	}

	if err := q.TransitionConversationWorkflow(ctx, params); err != nil {
		return fmt.Errorf("transitioning conversation workflow: %w", err)
	}

	l.emit(ctx, "workflow_state_transitioned", map[string]any{
		"entityType":      "conversation",
		"entityId":        conv.ID.String(),
		"fromState":       conv.WorkflowState,
		"toState":         params.WorkflowState,
		"workflowOutcome": string(out.WorkflowOutcome),
	})

	if out.ClearPendingSlot {
		if err := q.SetPendingSlotConfirmation(ctx, conv.ID, []byte("null")); err != nil {
			return fmt.Errorf("clearing pending slot: %w", err)
		}
	} else if out.PendingSlotToStore != nil {
		encoded, err := json.Marshal(out.PendingSlotToStore)
		if err != nil {
			return fmt.Errorf("encoding pending slot: %w", err)
		}
		if err := q.SetPendingSlotConfirmation(ctx, conv.ID, encoded); err != nil {
			return fmt.Errorf("storing pending slot: %w", err)
		}
	}
	return nil
}

func (l *Loop) markProcessed(ctx context.Context, q *db.Queries, claimed db.ClaimedMessageRow, out pipeline.Output) error {
	meta := domain.MessageMetadata{
		Intent:          string(out.Intent),
		EffectiveIntent: string(out.EffectiveIntent),
		FollowUp:        out.FollowUp,
	}
	now := time.Now().UTC()
	meta.AIProcessedAt = &now

	encoded, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshaling processed metadata: %w", err)
	}
	if err := q.MarkInboundProcessed(ctx, claimed.ID, encoded); err != nil {
		return fmt.Errorf("marking inbound processed: %w", err)
	}
	return nil
}

// dispatchReply computes the dispatch key, wins the compare-and-set, sends
// through the platform adapter, and records the delivery or failure.
func (l *Loop) dispatchReply(ctx context.Context, q *db.Queries, claimed db.ClaimedMessageRow, out pipeline.Output) error {
	key := dispatchKey(claimed, out)

	cas, err := q.BeginDispatchAttempt(ctx, claimed.ID, key)
	if err != nil {
		return fmt.Errorf("beginning dispatch attempt: %w", err)
	}
	if !cas.ShouldDispatch {
		telemetry.DispatchDuplicatesSuppressedTotal.WithLabelValues(claimed.Platform).Inc()
		l.emit(ctx, "ai_reply_dispatch_duplicate_suppressed", map[string]any{
			"entityType":     "message",
			"entityId":       claimed.ID.String(),
			"conversationId": claimed.ConversationID.String(),
			"platform":       claimed.Platform,
		})
		return nil
	}

	l.emit(ctx, "ai_reply_send_attempted", map[string]any{
		"entityType":     "message",
		"entityId":       claimed.ID.String(),
		"conversationId": claimed.ConversationID.String(),
		"platform":       claimed.Platform,
	})

	adapter, err := l.adapters.Get(domain.Platform(claimed.Platform))
	if err != nil {
		_ = q.FailDispatchAttempt(ctx, db.FailDispatchAttemptParams{MessageID: claimed.ID, FailedStage: "adapter_lookup", LastError: err.Error()})
		l.emitDispatchFailure(ctx, claimed, "adapter_lookup", err, false)
		return err
	}

	account := connector.Account{ID: claimed.PlatformAccountID, Platform: domain.Platform(claimed.Platform)}
	result, err := adapter.Send(ctx, account, connector.Outbound{Body: out.ReplyBody})
	if err != nil {
		telemetry.DispatchAttemptsTotal.WithLabelValues(claimed.Platform, "failed").Inc()
		retryExhausted := strings.Contains(err.Error(), "retries exhausted")
		failErr := q.FailDispatchAttempt(ctx, db.FailDispatchAttemptParams{
			MessageID:      claimed.ID,
			FailedStage:    "dispatch_send",
			LastError:      err.Error(),
			RetryExhausted: retryExhausted,
		})
		if failErr != nil {
			l.logger.Error("recording dispatch failure", "error", failErr)
		}
		l.emitDispatchFailure(ctx, claimed, "dispatch_send", err, retryExhausted)
		if retryExhausted {
			telemetry.DeadLetterTotal.WithLabelValues(claimed.Platform).Inc()
			l.notifyDLQ(ctx, claimed, err)
		}
		return err
	}

	telemetry.DispatchAttemptsTotal.WithLabelValues(claimed.Platform, "sent").Inc()

	delivery, err := json.Marshal(map[string]any{
		"externalMessageId": result.ExternalMessageID,
		"channel":           result.Channel,
		"providerStatus":    result.ProviderStatus,
	})
	if err != nil {
		return fmt.Errorf("marshaling delivery record: %w", err)
	}
	if err := q.CompleteDispatchAttempt(ctx, claimed.ID, delivery); err != nil {
		return fmt.Errorf("completing dispatch attempt: %w", err)
	}

	externalID := result.ExternalMessageID
	reviewStatus := ""
	if _, inserted, err := q.InsertOutboundMessage(ctx, db.InsertOutboundParams{
		ConversationID:    claimed.ConversationID,
		ExternalMessageID: &externalID,
		Body:              out.ReplyBody,
		ReviewStatus:      reviewStatus,
		Metadata:          []byte("{}"),
		SentAt:            time.Now().UTC(),
	}); err != nil {
		return fmt.Errorf("recording outbound message: %w", err)
	} else if !inserted {
		l.logger.Info("outbound message already recorded for this dispatch key", "messageId", claimed.ID)
	}

	return nil
}

// dispatchKey is the SHA-256 digest of a canonical JSON document over the
// fixed field set that makes a reply attempt idempotent — messageId,
// conversationId, externalThreadId, platformAccountId, platform, status,
// body, intent, effectiveIntent — in this declared order. The JSON encoder
// serializes struct fields in declaration order, so the hash is a fixed
// external contract independent of map iteration order: changing the field
// set or order changes every existing dispatch key.
func dispatchKey(claimed db.ClaimedMessageRow, out pipeline.Output) string {
	type canonical struct {
		MessageID         string `json:"messageId"`
		ConversationID    string `json:"conversationId"`
		ExternalThreadID  string `json:"externalThreadId"`
		PlatformAccountID string `json:"platformAccountId"`
		Platform          string `json:"platform"`
		Status            string `json:"status"`
		Body              string `json:"body"`
		Intent            string `json:"intent"`
		EffectiveIntent   string `json:"effectiveIntent"`
	}
	encoded, _ := json.Marshal(canonical{
		MessageID:         claimed.ID.String(),
		ConversationID:    claimed.ConversationID.String(),
		ExternalThreadID:  claimed.ExternalThreadID,
		PlatformAccountID: claimed.PlatformAccountID.String(),
		Platform:          claimed.Platform,
		Status:            claimed.ConversationStatus,
		Body:              out.ReplyBody,
		Intent:            string(out.Intent),
		EffectiveIntent:   string(out.EffectiveIntent),
	})
	sum := sha256.Sum256(encoded)
	return hex.EncodeToString(sum[:])
}

// emitDispatchFailure raises the exception-path audit trail for a failed
// dispatch attempt: ai_reply_error always, platform_dispatch_error whenever
// the failed stage is itself a dispatch stage, and platform_dispatch_dlq
// plus ai_reply_dispatch_escalated once retries are exhausted.
func (l *Loop) emitDispatchFailure(ctx context.Context, claimed db.ClaimedMessageRow, stage string, err error, retryExhausted bool) {
	attrs := map[string]any{
		"entityType":     "message",
		"entityId":       claimed.ID.String(),
		"conversationId": claimed.ConversationID.String(),
		"failureStage":   stage,
		"platform":       claimed.Platform,
		"error":          err.Error(),
	}
	l.emit(ctx, "ai_reply_error", attrs)
	if strings.HasPrefix(stage, "dispatch_") {
		l.emit(ctx, "platform_dispatch_error", attrs)
	}
	if retryExhausted {
		l.emit(ctx, "platform_dispatch_dlq", attrs)
		l.emit(ctx, "ai_reply_dispatch_escalated", attrs)
	}
}

func (l *Loop) notifyEscalation(ctx context.Context, claimed db.ClaimedMessageRow, out pipeline.Output) {
	telemetry.OpsNotificationsTotal.WithLabelValues(out.EscalationReasonCode).Inc()
	if l.notifier == nil {
		return
	}
	if err := l.notifier.NotifyEscalation(ctx, notify.Escalation{
		Reason:         out.EscalationReasonCode,
		ConversationID: claimed.ConversationID.String(),
		Platform:       claimed.Platform,
	}); err != nil {
		l.logger.Error("posting escalation notification", "error", err)
	}
}

func (l *Loop) notifyDLQ(ctx context.Context, claimed db.ClaimedMessageRow, dispatchErr error) {
	telemetry.OpsNotificationsTotal.WithLabelValues("platform_dispatch_dlq").Inc()
	if l.notifier == nil {
		return
	}
	if err := l.notifier.NotifyEscalation(ctx, notify.Escalation{
		Reason:         "platform_dispatch_dlq",
		ConversationID: claimed.ConversationID.String(),
		Platform:       claimed.Platform,
		Detail:         dispatchErr.Error(),
	}); err != nil {
		l.logger.Error("posting dlq notification", "error", err)
	}
}

func (l *Loop) emit(ctx context.Context, action string, attrs map[string]any) {
	if l.audit == nil {
		return
	}
	l.audit.Emit(ctx, action, attrs)
}
