package connector

import "context"

// RefreshReason is passed to SessionManager.Refresh to explain why a
// refresh was requested.
type RefreshReason string

const (
	RefreshReasonSessionExpired RefreshReason = "session_expired"
	RefreshReasonCaptcha        RefreshReason = "captcha"
)

// SessionManager refreshes a platform account's browser-automation session
// after a session-expired or captcha error, so the next attempt uses a
// live session.
type SessionManager interface {
	Refresh(ctx context.Context, account Account, reason RefreshReason) error
}

// NoopSessionManager is a SessionManager that does nothing, used by
// adapters (or tests) with no session state to refresh.
type NoopSessionManager struct{}

// Refresh implements SessionManager.
func (NoopSessionManager) Refresh(context.Context, Account, RefreshReason) error { return nil }
