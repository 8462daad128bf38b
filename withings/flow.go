package withings

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/alexjbarnes/healthsync/internal/catalog"
	herrors "github.com/alexjbarnes/healthsync/internal/errors"
	"github.com/alexjbarnes/healthsync/internal/logging"
	"github.com/alexjbarnes/healthsync/internal/models"
)

const (
	// pendingStateTTL bounds how long a started flow stays valid.
	pendingStateTTL = 10 * time.Minute

	// stateBytes is the entropy of the CSRF state parameter
	// (hex-encoded to twice this length).
	stateBytes = 32
)

// Flow drives the interactive authorization-code flow:
// Idle -> AwaitingRedirect -> ValidatingCallback -> ExchangingCode ->
// Authenticated, with failures surfacing from any non-terminal step.
// The interactive session itself (browser, in-app webview) is the
// caller's concern; Flow hands out the authorization URL and consumes
// the redirect URL the session produces.
type Flow struct {
	client  *Client
	catalog *catalog.Catalog
	tokens  TokenRepository
	pending PendingRepository
	logger  *slog.Logger

	// OnAuthenticated fires asynchronously after a successful code
	// exchange with the new record and the fetch categories the user
	// opted into. Subscription registration hangs off this hook so
	// its failures never touch the flow's success path.
	OnAuthenticated func(rec *models.TokenRecord, categories []string)

	now func() time.Time
}

// NewFlow creates an authorization flow controller.
func NewFlow(client *Client, cat *catalog.Catalog, tokens TokenRepository, pending PendingRepository, logger *slog.Logger) *Flow {
	if logger == nil {
		logger = logging.Discard()
	}

	return &Flow{
		client:  client,
		catalog: cat,
		tokens:  tokens,
		pending: pending,
		logger:  logger,
		now:     time.Now,
	}
}

// randomHex generates a cryptographically random hex string of the given byte length.
func randomHex(byteLen int) string {
	b := make([]byte, byteLen)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}
	return hex.EncodeToString(b)
}

// StartAuth validates configuration, resolves the scopes covering the
// requested metrics, persists a fresh pending state (overwriting any
// stale one), and returns the authorization URL to open interactively.
func (f *Flow) StartAuth(requestedMetrics []string) (string, error) {
	if err := f.client.cfg.validate(); err != nil {
		return "", err
	}

	scopes := f.catalog.ScopesFor(requestedMetrics)
	if len(scopes) == 0 {
		return "", &herrors.ConfigError{
			Field:    "metrics",
			Reason:   "no requested metric maps to a provider scope",
			Guidance: fmt.Sprintf("known keys: %s", strings.Join(f.catalog.Keys(), ", ")),
		}
	}

	state := randomHex(stateBytes)

	err := f.pending.SavePending(&models.PendingAuthState{
		State:            state,
		RequestedMetrics: requestedMetrics,
		CreatedAt:        f.now(),
	})
	if err != nil {
		return "", fmt.Errorf("saving pending auth state: %w", err)
	}

	params := url.Values{}
	params.Set("response_type", "code")
	params.Set("client_id", f.client.cfg.ClientID)
	params.Set("scope", strings.Join(scopes, ","))
	params.Set("redirect_uri", f.client.cfg.RedirectURI)
	params.Set("state", state)

	f.logger.Info("starting authorization flow",
		slog.String("scopes", strings.Join(scopes, ",")),
		slog.Int("metrics", len(requestedMetrics)),
	)

	return f.client.cfg.AuthorizeURL + "?" + params.Encode(), nil
}

// Cancel aborts an in-progress flow. User cancellation is an expected
// outcome, not an error; it only clears the pending state.
func (f *Flow) Cancel() error {
	if err := f.pending.ClearPending(); err != nil {
		return fmt.Errorf("clearing pending auth state: %w", err)
	}

	return nil
}

// HandleCallback consumes the redirect URL produced by the interactive
// session. The pending state is one-shot: it is cleared on this
// transition whatever the outcome, so a replayed callback never
// validates twice. On success the token record is persisted and
// returned, and the OnAuthenticated hook fires asynchronously.
func (f *Flow) HandleCallback(ctx context.Context, rawURL string) (*models.TokenRecord, error) {
	// Consume the pending state before anything else: even a mangled
	// callback spends the attempt.
	pending, loadErr := f.pending.LoadPending()

	if clearErr := f.pending.ClearPending(); clearErr != nil {
		f.logger.Warn("failed to clear pending auth state", slog.String("error", clearErr.Error()))
	}

	cb, err := ParseCallback(rawURL)
	if err != nil {
		return nil, err
	}

	if loadErr != nil {
		return nil, fmt.Errorf("loading pending auth state: %w", loadErr)
	}

	switch {
	case pending == nil:
		return nil, fmt.Errorf("%w: no authorization in progress", herrors.ErrCSRF)
	case pending.Expired(f.now(), pendingStateTTL):
		return nil, fmt.Errorf("%w: authorization attempt expired, start again", herrors.ErrCSRF)
	case cb.State == "" || subtle.ConstantTimeCompare([]byte(cb.State), []byte(pending.State)) != 1:
		return nil, fmt.Errorf("%w: state parameter mismatch", herrors.ErrCSRF)
	}

	if cb.Error != "" {
		perr := &herrors.ProviderError{Text: callbackErrorText(cb)}
		if perr.IsRedirectMismatch() {
			return nil, &herrors.RedirectMismatchError{Provider: perr, ConfiguredURI: f.client.cfg.RedirectURI}
		}

		return nil, perr
	}

	if cb.Code == "" {
		return nil, fmt.Errorf("callback carries neither code nor error")
	}

	body, err := f.client.ExchangeCode(ctx, cb.Code)
	if err != nil {
		return nil, f.wrapExchangeError(err)
	}

	rec := &models.TokenRecord{
		AccessToken:    body.AccessToken,
		RefreshToken:   body.RefreshToken,
		ExpiresAt:      f.now().Add(time.Duration(body.ExpiresIn) * time.Second),
		Scope:          body.Scope,
		ProviderUserID: body.UserID.String(),
	}

	if err := f.tokens.SaveRecord(rec); err != nil {
		return nil, fmt.Errorf("saving token record: %w", err)
	}

	f.logger.Info("authorization complete",
		slog.String("provider_user", rec.ProviderUserID),
		slog.Time("expires_at", rec.ExpiresAt),
	)

	if f.OnAuthenticated != nil {
		categories := f.catalog.CategoriesFor(pending.RequestedMetrics)
		go f.OnAuthenticated(rec, categories)
	}

	return rec, nil
}

// wrapExchangeError attaches remediation context to the most common
// integration failure: a redirect_uri the provider does not recognize.
func (f *Flow) wrapExchangeError(err error) error {
	var perr *herrors.ProviderError
	if errors.As(err, &perr) && perr.IsRedirectMismatch() {
		return &herrors.RedirectMismatchError{Provider: perr, ConfiguredURI: f.client.cfg.RedirectURI}
	}

	return err
}

func callbackErrorText(cb CallbackParams) string {
	if cb.ErrorDescription == "" {
		return cb.Error
	}

	return cb.Error + ": " + cb.ErrorDescription
}
