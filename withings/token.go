package withings

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/alexjbarnes/healthsync/internal/logging"
	"github.com/alexjbarnes/healthsync/internal/models"
)

// refreshBuffer is the safety margin before expiry at which a token is
// refreshed rather than used, so it never expires mid-flight.
const refreshBuffer = 5 * time.Minute

// TokenManager keeps the stored token usable indefinitely by rotating
// it before expiry. Refreshes are coalesced: concurrent callers inside
// the same refresh window share one provider call, because reusing an
// already-rotated refresh token would be rejected.
type TokenManager struct {
	client *Client
	repo   TokenRepository
	logger *slog.Logger

	group singleflight.Group

	// mu serializes the record writers. A disconnect must wait out an
	// in-flight refresh, or the rotated record gets written back after
	// the clear and resurrects revoked credentials.
	mu  sync.Mutex
	now func() time.Time
}

// NewTokenManager creates a token lifecycle manager.
func NewTokenManager(client *Client, repo TokenRepository, logger *slog.Logger) *TokenManager {
	if logger == nil {
		logger = logging.Discard()
	}

	return &TokenManager{
		client: client,
		repo:   repo,
		logger: logger,
		now:    time.Now,
	}
}

// GetValidAccessToken returns a bearer token good for at least the
// refresh buffer, refreshing first when needed. An empty string with a
// nil error means "not connected": the record is absent or the refresh
// failed, both expected states for callers that poll opportunistically.
// Refresh failures are logged, never raised, so background syncs
// degrade instead of crashing. The error return covers storage faults
// only.
func (m *TokenManager) GetValidAccessToken(ctx context.Context) (string, error) {
	rec, err := m.repo.LoadRecord()
	if err != nil {
		return "", fmt.Errorf("loading token record: %w", err)
	}

	if rec == nil {
		return "", nil
	}

	if rec.Valid(m.now(), refreshBuffer) {
		return rec.AccessToken, nil
	}

	token, err, _ := m.group.Do("refresh", func() (any, error) {
		return m.refresh(ctx)
	})
	if err != nil {
		return "", err
	}

	return token.(string), nil
}

// refresh runs inside the singleflight critical section; the re-read
// catches records another caller already rotated while this one waited.
func (m *TokenManager) refresh(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, err := m.repo.LoadRecord()
	if err != nil {
		return "", fmt.Errorf("loading token record: %w", err)
	}

	if rec == nil {
		return "", nil
	}

	if rec.Valid(m.now(), refreshBuffer) {
		return rec.AccessToken, nil
	}

	if rec.RefreshToken == "" {
		m.logger.Warn("token expired and no refresh token stored")
		return "", nil
	}

	body, err := m.client.RefreshToken(ctx, rec.RefreshToken)
	if err != nil {
		m.logger.Warn("token refresh failed", slog.String("error", err.Error()))
		return "", nil
	}

	updated := &models.TokenRecord{
		AccessToken: body.AccessToken,
		// A response without a new refresh token keeps the old one:
		// the provider only sometimes rotates it, and discarding the
		// stored value would strand the connection.
		RefreshToken:   rec.RefreshToken,
		ExpiresAt:      m.now().Add(time.Duration(body.ExpiresIn) * time.Second),
		Scope:          rec.Scope,
		ProviderUserID: rec.ProviderUserID,
	}

	if body.RefreshToken != "" {
		updated.RefreshToken = body.RefreshToken
	}

	if body.Scope != "" {
		updated.Scope = body.Scope
	}

	if err := m.repo.SaveRecord(updated); err != nil {
		return "", fmt.Errorf("saving refreshed token record: %w", err)
	}

	m.logger.Debug("token refreshed", slog.Time("expires_at", updated.ExpiresAt))

	return updated.AccessToken, nil
}

// Connected reports whether a token record is stored. It never fails:
// absence of connection is an expected state for read paths.
func (m *TokenManager) Connected() bool {
	rec, err := m.repo.LoadRecord()
	return err == nil && rec != nil && rec.AccessToken != ""
}

// Disconnect revokes the connection server-side (best-effort) and
// destroys the stored record. The local clear happens regardless of
// the revoke outcome so a dead connection can always be removed.
func (m *TokenManager) Disconnect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, err := m.repo.LoadRecord()
	if err != nil {
		return fmt.Errorf("loading token record: %w", err)
	}

	if rec != nil && rec.ProviderUserID != "" {
		if err := m.client.Revoke(ctx, rec.ProviderUserID); err != nil {
			m.logger.Warn("revoke failed, clearing local record anyway", slog.String("error", err.Error()))
		}
	}

	if err := m.repo.ClearRecord(); err != nil {
		return fmt.Errorf("clearing token record: %w", err)
	}

	return nil
}
