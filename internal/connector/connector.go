// Package connector loads per-platform adapters, resolves symbolic
// credential references, and enforces anti-bot pacing and circuit-breaker
// policy around every call into a listing platform.
package connector

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/leaseos/leaseline/internal/domain"
)

// Normalized error codes, per the connector adapter contract.
const (
	ErrCodeCaptchaRequired          = "CAPTCHA_REQUIRED"
	ErrCodeBotChallenge             = "BOT_CHALLENGE"
	ErrCodeSessionExpired           = "SESSION_EXPIRED"
	ErrCodeCircuitOpen              = "CIRCUIT_OPEN"
	ErrCodeCredentialMissing        = "CREDENTIAL_MISSING"
	ErrCodeCredentialPlaintextBanned = "CREDENTIAL_PLAINTEXT_FORBIDDEN"
)

// NormalizedError is a connector error carrying one of the fixed codes
// above, plus whether it is retryable and, for CIRCUIT_OPEN, a suggested
// backoff.
type NormalizedError struct {
	Code         string
	Message      string
	retryable    bool
	RetryAfterMs int64
}

func (e *NormalizedError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return e.Code
}

// Retryable satisfies backoff.Retryable.
func (e *NormalizedError) Retryable() bool { return e.retryable }

// InboundMessage is a message observed on an external platform during ingest.
type InboundMessage struct {
	ExternalThreadID  string
	ExternalMessageID string
	Body              string
	LeadName          string
	LeadContact       string
	Channel           string
	SentAt            time.Time
	Metadata          map[string]any
}

// Outbound is the payload handed to an adapter's Send operation.
type Outbound struct {
	ExternalThreadID string
	Body             string
}

// SendResult is the adapter's report of a successful send.
type SendResult struct {
	ExternalMessageID string
	Channel           string
	ProviderStatus    string
}

// Account is the minimal account context an adapter needs.
type Account struct {
	ID          uuid.UUID
	Platform    domain.Platform
	Credentials map[string]string
}

// Adapter is the per-platform connector contract — the only external
// surface the decision-and-dispatch pipeline depends on.
type Adapter interface {
	Platform() domain.Platform
	Ingest(ctx context.Context, account Account) ([]InboundMessage, error)
	Send(ctx context.Context, account Account, outbound Outbound) (SendResult, error)
}

// Registry holds the fixed set of supported platform adapters.
type Registry struct {
	adapters map[domain.Platform]Adapter
}

// NewRegistry creates an empty adapter registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[domain.Platform]Adapter)}
}

// Register adds an adapter to the registry.
func (r *Registry) Register(a Adapter) {
	r.adapters[a.Platform()] = a
}

// Get returns the adapter for a platform. Unknown platforms fail fast, per
// the fixed supported-platform set.
func (r *Registry) Get(platform domain.Platform) (Adapter, error) {
	a, ok := r.adapters[platform]
	if !ok {
		return nil, fmt.Errorf("unknown platform %q: not in the supported adapter set", platform)
	}
	return a, nil
}

// All returns every registered adapter.
func (r *Registry) All() []Adapter {
	out := make([]Adapter, 0, len(r.adapters))
	for _, a := range r.adapters {
		out = append(out, a)
	}
	return out
}
