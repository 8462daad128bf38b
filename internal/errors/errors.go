// Package errors defines the error taxonomy for provider integration.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Flow errors.
var (
	// ErrCSRF marks a callback whose state parameter is missing,
	// mismatched, or expired. Fatal to the current attempt.
	ErrCSRF = errors.New("authorization state validation failed")

	// ErrNotConnected marks operations that require a token record
	// when none is stored. Read paths return empty results instead
	// of surfacing this.
	ErrNotConnected = errors.New("no provider connection")
)

// Transport errors.
var (
	// ErrNetwork marks transport-level failures, as opposed to a
	// structurally successful response with a non-zero status.
	ErrNetwork = errors.New("network request failed")
)

// ConfigError reports missing or malformed configuration. Fatal: the
// flow must not start until the operator fixes it.
type ConfigError struct {
	Field    string
	Reason   string
	Guidance string
}

func (e *ConfigError) Error() string {
	if e.Guidance != "" {
		return fmt.Sprintf("configuration error: %s: %s (%s)", e.Field, e.Reason, e.Guidance)
	}
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}

// ProviderError is a structurally successful API response whose status
// field is non-zero. Code and Text come from the provider envelope.
type ProviderError struct {
	Code int
	Text string
}

func (e *ProviderError) Error() string {
	if e.Text == "" {
		return fmt.Sprintf("provider error %d", e.Code)
	}
	return fmt.Sprintf("provider error %d: %s", e.Code, e.Text)
}

// providerStatusInvalidParams is the envelope status the provider uses
// for malformed request parameters, including redirect_uri mismatches.
const providerStatusInvalidParams = 601

// IsRedirectMismatch reports whether the provider error describes a
// redirect_uri mismatch, the most common integration failure.
func (e *ProviderError) IsRedirectMismatch() bool {
	text := strings.ToLower(e.Text)
	if strings.Contains(text, "redirect_uri") || strings.Contains(text, "redirect uri") {
		return true
	}
	return e.Code == providerStatusInvalidParams && strings.Contains(text, "mismatch")
}

// RedirectMismatchError wraps a ProviderError for redirect_uri mismatch
// failures, carrying the configured URI and remediation steps.
type RedirectMismatchError struct {
	Provider      *ProviderError
	ConfiguredURI string
}

func (e *RedirectMismatchError) Error() string {
	return fmt.Sprintf(
		"redirect_uri mismatch: the provider rejected %q (%v); "+
			"register exactly this URI in the provider's developer console: "+
			"same scheme, same host, same path, no trailing slash",
		e.ConfiguredURI, e.Provider)
}

func (e *RedirectMismatchError) Unwrap() error { return e.Provider }
