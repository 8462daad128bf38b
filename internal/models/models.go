// Package models defines types shared across internal packages.
package models

import "time"

// TokenRecord holds the credentials issued by the provider for one
// connected account. Mutated in place by refresh; destroyed on disconnect.
type TokenRecord struct {
	AccessToken    string    `json:"access_token"`
	RefreshToken   string    `json:"refresh_token"`
	ExpiresAt      time.Time `json:"expires_at"`
	Scope          string    `json:"scope,omitempty"`
	ProviderUserID string    `json:"provider_user_id,omitempty"`
}

// Valid reports whether the access token can still be used at the given
// instant, keeping a safety buffer so a token never expires mid-flight.
func (t *TokenRecord) Valid(now time.Time, buffer time.Duration) bool {
	return t.AccessToken != "" && t.ExpiresAt.After(now.Add(buffer))
}

// PendingAuthState tracks an in-progress authorization attempt. At most
// one exists at a time; starting a new flow overwrites any stale one.
type PendingAuthState struct {
	State            string    `json:"state"`
	RequestedMetrics []string  `json:"requested_metrics"`
	CreatedAt        time.Time `json:"created_at"`
}

// Expired reports whether the pending state is older than ttl.
func (p *PendingAuthState) Expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(p.CreatedAt) > ttl
}

// Sample is a single normalized measurement.
type Sample struct {
	Value     float64    `json:"value"`
	Unit      string     `json:"unit"`
	StartDate time.Time  `json:"start_date"`
	EndDate   *time.Time `json:"end_date,omitempty"`
	Source    string     `json:"source"`
}

// MetricPayload groups normalized samples for one canonical metric key.
// Ephemeral: constructed per fetch call, never persisted by this module.
type MetricPayload struct {
	Provider    string   `json:"provider"`
	MetricKey   string   `json:"metric_key"`
	DisplayName string   `json:"display_name"`
	Unit        string   `json:"unit"`
	Samples     []Sample `json:"samples"`
}
