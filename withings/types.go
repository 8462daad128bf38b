// Package withings implements a client for the Withings health-data
// API: the signed request scheme (nonce + HMAC), the interactive
// authorization-code flow, token lifecycle with rotation, measurement
// fetching with normalization into canonical metrics, and best-effort
// webhook subscription.
package withings

import (
	"encoding/json"

	"github.com/alexjbarnes/healthsync/internal/models"
)

//go:generate mockgen -source=types.go -destination=mock_repos_test.go -package=withings

// TokenRepository persists the durable token record. Implemented by
// internal/state over bbolt; tests use in-memory fakes.
type TokenRepository interface {
	LoadRecord() (*models.TokenRecord, error)
	SaveRecord(*models.TokenRecord) error
	ClearRecord() error
}

// PendingRepository persists the single in-progress authorization
// state slot.
type PendingRepository interface {
	LoadPending() (*models.PendingAuthState, error)
	SavePending(*models.PendingAuthState) error
	ClearPending() error
}

// envelope is the provider's uniform response wrapper. A non-zero
// status is an application-level error regardless of the HTTP status.
type envelope struct {
	Status    int             `json:"status"`
	Body      json.RawMessage `json:"body,omitempty"`
	Error     string          `json:"error,omitempty"`
	ErrorText string          `json:"error_text,omitempty"`
}

// errorText merges the envelope's two error fields into one message.
func (e *envelope) errorText() string {
	switch {
	case e.Error != "" && e.ErrorText != "":
		return e.Error + ": " + e.ErrorText
	case e.ErrorText != "":
		return e.ErrorText
	default:
		return e.Error
	}
}

// tokenBody is the body of a successful requesttoken response.
// The provider reports userid as a number on some endpoints and a
// string on others, hence json.Number.
type tokenBody struct {
	UserID       json.Number `json:"userid"`
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
	Scope        string      `json:"scope"`
	ExpiresIn    int64       `json:"expires_in"`
	TokenType    string      `json:"token_type"`
}

// nonceBody is the body of a getnonce response.
type nonceBody struct {
	Nonce string `json:"nonce"`
}
