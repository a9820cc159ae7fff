package connector

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// MockRunner is a non-production RPARunner: it never drives a real browser,
// Ingest always returns no new messages, and Send always succeeds,
// recording the would-be delivery for local development and tests. The
// corpus this project was built from carries no browser-automation
// dependency, so a genuine Playwright (or equivalent) driver is left for a
// future runner implementation. RequireRealRuntimeInProduction rejects a
// LEASE_BOT_RPA_RUNTIME other than "playwright" in production; it does not
// inspect which runner is wired, and buildConnectorRegistry wires this
// MockRunner for every platform whatever that setting says.
type MockRunner struct {
	logger *slog.Logger
}

// NewMockRunner creates a MockRunner.
func NewMockRunner(logger *slog.Logger) *MockRunner {
	return &MockRunner{logger: logger}
}

func (m *MockRunner) Ingest(ctx context.Context, account Account, credentials map[string]string) ([]InboundMessage, error) {
	m.logger.Debug("mock runner ingest", "platform", account.Platform, "accountId", account.ID)
	return nil, nil
}

func (m *MockRunner) Send(ctx context.Context, account Account, credentials map[string]string, outbound Outbound) (SendResult, error) {
	m.logger.Info("mock runner send", "platform", account.Platform, "accountId", account.ID, "threadId", outbound.ExternalThreadID)
	return SendResult{
		ExternalMessageID: fmt.Sprintf("mock-%d", time.Now().UnixNano()),
		Channel:           string(account.Platform),
		ProviderStatus:    "sent",
	}, nil
}
