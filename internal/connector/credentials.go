package connector

import "strings"

// RequiredCredentialKeys lists per-platform the credential keys an adapter
// needs resolved before it can call out.
var RequiredCredentialKeys = map[string][]string{
	"spareroom":       {"api_key"},
	"roomies":         {"username", "password"},
	"leasebreak":      {"api_key"},
	"renthop":         {"username", "password"},
	"furnishedfinder": {"api_key"},
}

// ResolveCredentials validates that every required key for a platform is
// present and is a symbolic `env:` or `secret:` reference, never an inline
// literal, then resolves each to its underlying value via resolve.
func ResolveCredentials(platform string, raw map[string]string, resolve func(ref string) (string, error)) (map[string]string, error) {
	required, ok := RequiredCredentialKeys[platform]
	if !ok {
		return nil, &NormalizedError{Code: ErrCodeCredentialMissing, Message: "no credential schema for platform " + platform}
	}

	resolved := make(map[string]string, len(required))
	for _, key := range required {
		ref, present := raw[key]
		if !present || ref == "" {
			return nil, &NormalizedError{Code: ErrCodeCredentialMissing, Message: "missing credential " + key}
		}
		if !strings.HasPrefix(ref, "env:") && !strings.HasPrefix(ref, "secret:") {
			return nil, &NormalizedError{Code: ErrCodeCredentialPlaintextBanned, Message: "credential " + key + " must be an env: or secret: reference"}
		}
		value, err := resolve(ref)
		if err != nil {
			return nil, &NormalizedError{Code: ErrCodeCredentialMissing, Message: "resolving " + key + ": " + err.Error()}
		}
		resolved[key] = value
	}
	return resolved, nil
}
