package connector

import "strings"

// NormalizeError maps a raw adapter error message and optional HTTP status
// into one of the fixed connector error codes, per the captcha/challenge
// and session-expired detection patterns.
func NormalizeError(message string, statusCode int) *NormalizedError {
	lower := strings.ToLower(message)

	switch {
	case containsAny(lower, "cloudflare", "challenge"):
		return &NormalizedError{Code: ErrCodeBotChallenge, Message: message, retryable: false}
	case containsAny(lower, "captcha"):
		return &NormalizedError{Code: ErrCodeCaptchaRequired, Message: message, retryable: true}
	case statusCode == 401 || statusCode == 419 || containsAny(lower, "session expired", "not authenticated"):
		return &NormalizedError{Code: ErrCodeSessionExpired, Message: message, retryable: true}
	case statusCode == 429 || statusCode >= 500:
		return &NormalizedError{Code: "", Message: message, retryable: true}
	default:
		return &NormalizedError{Code: "", Message: message, retryable: false}
	}
}

func containsAny(haystack string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}
