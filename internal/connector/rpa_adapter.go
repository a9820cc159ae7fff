package connector

import (
	"context"
	"fmt"
	"time"

	"github.com/leaseos/leaseline/internal/backoff"
	"github.com/leaseos/leaseline/internal/circuitbreaker"
	"github.com/leaseos/leaseline/internal/domain"
)

// RPARunner is the browser-automation capability a generic platform
// adapter drives. None of the five listing platforms exposes a public
// API, so this plays the role the connector adapter contract's low-level
// client would in a platform with a real SDK.
type RPARunner interface {
	Ingest(ctx context.Context, account Account, credentials map[string]string) ([]InboundMessage, error)
	Send(ctx context.Context, account Account, credentials map[string]string, outbound Outbound) (SendResult, error)
}

// StatusCoder is implemented by runner errors that carry an HTTP-ish status.
type StatusCoder interface {
	StatusCode() int
}

// RPAAdapter is the one generic adapter used for every listing platform,
// parametrized by platform enum and an injected RPARunner, rather than
// five near-duplicate adapter files.
type RPAAdapter struct {
	platform          domain.Platform
	runner            RPARunner
	pacer             *Pacer
	breakers          *circuitbreaker.Registry
	sessions          SessionManager
	resolveCredential func(ref string) (string, error)
	retries           int
}

// NewRPAAdapter creates a platform adapter backed by a shared RPARunner.
func NewRPAAdapter(platform domain.Platform, runner RPARunner, pacer *Pacer, breakers *circuitbreaker.Registry, sessions SessionManager, resolveCredential func(ref string) (string, error), retries int) *RPAAdapter {
	if sessions == nil {
		sessions = NoopSessionManager{}
	}
	return &RPAAdapter{
		platform:          platform,
		runner:            runner,
		pacer:             pacer,
		breakers:          breakers,
		sessions:          sessions,
		resolveCredential: resolveCredential,
		retries:           retries,
	}
}

// Platform implements Adapter.
func (a *RPAAdapter) Platform() domain.Platform { return a.platform }

func (a *RPAAdapter) key(accountID, action string) string {
	return fmt.Sprintf("%s:%s:%s", a.platform, accountID, action)
}

func statusOf(err error) int {
	if coder, ok := err.(StatusCoder); ok {
		return coder.StatusCode()
	}
	return 0
}

// shouldRetryWithCaptchaBudget composes the base retryability classifier
// with: session-expired always retryable; captcha retryable only while
// below the platform's maxCaptchaRetries.
func shouldRetryWithCaptchaBudget(maxCaptchaRetries int, captchaAttempts *int) func(err error, attempt int) bool {
	return func(err error, attempt int) bool {
		if ne, ok := err.(*NormalizedError); ok {
			switch ne.Code {
			case ErrCodeSessionExpired:
				return true
			case ErrCodeCaptchaRequired:
				if *captchaAttempts < maxCaptchaRetries {
					*captchaAttempts++
					return true
				}
				return false
			case ErrCodeBotChallenge, ErrCodeCredentialMissing, ErrCodeCredentialPlaintextBanned:
				return false
			}
		}
		return backoff.DefaultShouldRetry(err, attempt)
	}
}

// callWithResilience wraps fn in the full per-(platform,account,action)
// resilience stack: circuit breaker, pacing, and retry with backoff. Before
// each retry, if the last error was session-expired or captcha, the session
// manager is asked to refresh before the next attempt runs.
func (a *RPAAdapter) callWithResilience(ctx context.Context, account Account, action string, fn func(ctx context.Context) (any, error)) (any, error) {
	policy, ok := DefaultPacing[string(a.platform)]
	if !ok {
		policy = PlatformPacing{MinIntervalMs: 1200, JitterMs: 300, MaxCaptchaRetries: 1}
	}
	key := a.key(account.ID.String(), action)
	captchaAttempts := 0

	return a.breakers.Execute(ctx, key, func(ctx context.Context) (any, error) {
		return backoff.Do(ctx, backoff.Config{
			Retries:     a.retries,
			BaseDelayMs: 200,
			MaxDelayMs:  5000,
			Factor:      2,
			JitterRatio: 0.2,
			ShouldRetry: shouldRetryWithCaptchaBudget(policy.MaxCaptchaRetries, &captchaAttempts),
			OnRetry: func(attempt int, delay time.Duration, err error) {
				if ne, ok := err.(*NormalizedError); ok && (ne.Code == ErrCodeSessionExpired || ne.Code == ErrCodeCaptchaRequired) {
					_ = a.sessions.Refresh(ctx, account, RefreshReason(ne.Code))
				}
			},
		}, func(ctx context.Context, attempt int) (any, error) {
			if err := a.pacer.Wait(ctx, key, policy); err != nil {
				return nil, err
			}
			result, err := fn(ctx)
			if err != nil {
				if ne, ok := err.(*NormalizedError); ok {
					return nil, ne
				}
				return nil, NormalizeError(err.Error(), statusOf(err))
			}
			return result, nil
		})
	})
}

// Ingest implements Adapter.
func (a *RPAAdapter) Ingest(ctx context.Context, account Account) ([]InboundMessage, error) {
	creds, err := ResolveCredentials(string(a.platform), account.Credentials, a.resolveCredential)
	if err != nil {
		return nil, err
	}

	result, err := a.callWithResilience(ctx, account, "ingest", func(ctx context.Context) (any, error) {
		return a.runner.Ingest(ctx, account, creds)
	})
	if err != nil {
		return nil, unwrapCircuitOpen(err)
	}
	return result.([]InboundMessage), nil
}

// Send implements Adapter.
func (a *RPAAdapter) Send(ctx context.Context, account Account, outbound Outbound) (SendResult, error) {
	creds, err := ResolveCredentials(string(a.platform), account.Credentials, a.resolveCredential)
	if err != nil {
		return SendResult{}, err
	}

	result, err := a.callWithResilience(ctx, account, "send", func(ctx context.Context) (any, error) {
		return a.runner.Send(ctx, account, creds, outbound)
	})
	if err != nil {
		return SendResult{}, unwrapCircuitOpen(err)
	}
	return result.(SendResult), nil
}

func unwrapCircuitOpen(err error) error {
	if openErr, ok := err.(*circuitbreaker.ErrOpen); ok {
		return &NormalizedError{Code: ErrCodeCircuitOpen, Message: openErr.Error(), RetryAfterMs: openErr.RetryAfterMs}
	}
	if exhausted, ok := err.(*backoff.ExhaustedError); ok {
		return exhausted.Err
	}
	return err
}
