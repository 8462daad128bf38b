package withings

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	herrors "github.com/alexjbarnes/healthsync/internal/errors"
	"github.com/alexjbarnes/healthsync/internal/logging"
)

// API endpoints, relative to the configured base URL.
const (
	endpointSignature = "/v2/signature"
	endpointOAuth2    = "/v2/oauth2"
	endpointMeasure   = "/measure"
	endpointHeart     = "/v2/heart"
	endpointSleep     = "/v2/sleep"
	endpointActivity  = "/v2/measure"
	endpointNotify    = "/notify"
)

// Config holds the provider credentials and endpoints for a Client.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string

	// APIBaseURL is the measurement/token API host.
	APIBaseURL string

	// AuthorizeURL is the interactive authorization page.
	AuthorizeURL string

	// NotifyCallbackURL receives webhook notifications. Optional.
	NotifyCallbackURL string
}

// validate checks the fields every flow start depends on. The env
// loader performs the same checks; this one covers programmatic
// construction.
func (c Config) validate() error {
	if c.ClientID == "" {
		return &herrors.ConfigError{Field: "ClientID", Reason: "not set"}
	}

	if c.ClientSecret == "" {
		return &herrors.ConfigError{Field: "ClientSecret", Reason: "not set"}
	}

	u, err := url.Parse(c.RedirectURI)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return &herrors.ConfigError{Field: "RedirectURI", Reason: "must be an absolute URL"}
	}

	if u.Scheme != "https" {
		return &herrors.ConfigError{
			Field:    "RedirectURI",
			Reason:   fmt.Sprintf("scheme %q not allowed", u.Scheme),
			Guidance: "the provider only delivers authorization codes over https",
		}
	}

	return nil
}

// Client talks to the Withings API. It owns the transport, the
// response envelope handling, and the signed request construction.
type Client struct {
	httpClient *http.Client
	cfg        Config
	signer     *Signer
	logger     *slog.Logger

	// now is stubbed in tests; the getnonce signature covers a
	// client-side timestamp.
	now func() time.Time
}

// NewClient creates an API client. If httpClient is nil,
// http.DefaultClient is used; if logger is nil, logs are discarded.
func NewClient(cfg Config, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	if logger == nil {
		logger = logging.Discard()
	}

	return &Client{
		httpClient: httpClient,
		cfg:        cfg,
		signer:     NewSigner(cfg.ClientSecret),
		logger:     logger,
		now:        time.Now,
	}
}

// postForm sends a form-encoded POST and unwraps the provider's
// response envelope. A non-zero envelope status becomes a
// *errors.ProviderError; transport and decode failures wrap
// errors.ErrNetwork. On success the envelope body is decoded into
// result when result is non-nil.
func (c *Client) postForm(ctx context.Context, endpoint, bearer string, form url.Values, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.APIBaseURL+endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("creating request for %s: %w", endpoint, err)
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("posting to %s: %w: %v", endpoint, herrors.ErrNetwork, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response from %s: %w: %v", endpoint, herrors.ErrNetwork, err)
	}

	// The provider signals errors through the envelope status, not
	// the HTTP status, so the envelope is parsed unconditionally.
	var env envelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return fmt.Errorf("decoding envelope from %s (HTTP %d): %w: %v", endpoint, resp.StatusCode, herrors.ErrNetwork, err)
	}

	if env.Status != 0 {
		return &herrors.ProviderError{Code: env.Status, Text: env.errorText()}
	}

	if result != nil && len(env.Body) > 0 {
		if err := json.Unmarshal(env.Body, result); err != nil {
			return fmt.Errorf("decoding body from %s: %w: %v", endpoint, herrors.ErrNetwork, err)
		}
	}

	return nil
}

// GetNonce obtains a one-time server nonce for the next signed call.
// This is the one action whose signature covers a timestamp instead of
// a nonce; every other signed call signs {action, client_id, nonce}.
// Nonces are single-use and never cached: each signed operation is two
// sequential round trips.
func (c *Client) GetNonce(ctx context.Context) (string, error) {
	ts := strconv.FormatInt(c.now().Unix(), 10)

	sig := c.signer.Sign(map[string]string{
		"action":    "getnonce",
		"client_id": c.cfg.ClientID,
		"timestamp": ts,
	})

	form := url.Values{}
	form.Set("action", "getnonce")
	form.Set("client_id", c.cfg.ClientID)
	form.Set("timestamp", ts)
	form.Set("signature", sig)

	var body nonceBody
	if err := c.postForm(ctx, endpointSignature, "", form, &body); err != nil {
		return "", fmt.Errorf("getting nonce: %w", err)
	}

	if body.Nonce == "" {
		return "", fmt.Errorf("getting nonce: %w: empty nonce in response", herrors.ErrNetwork)
	}

	return body.Nonce, nil
}

// signedForm fetches a fresh nonce and builds the base form for a
// signed action: action, client_id, nonce, signature. Action-specific
// fields are added by the caller and are not covered by the signature.
func (c *Client) signedForm(ctx context.Context, action string) (url.Values, error) {
	nonce, err := c.GetNonce(ctx)
	if err != nil {
		return nil, err
	}

	sig := c.signer.Sign(map[string]string{
		"action":    action,
		"client_id": c.cfg.ClientID,
		"nonce":     nonce,
	})

	form := url.Values{}
	form.Set("action", action)
	form.Set("client_id", c.cfg.ClientID)
	form.Set("nonce", nonce)
	form.Set("signature", sig)

	return form, nil
}

// ExchangeCode swaps an authorization code for tokens. The
// redirect_uri must equal the value used to start the flow
// byte-for-byte or the provider rejects the exchange.
func (c *Client) ExchangeCode(ctx context.Context, code string) (*tokenBody, error) {
	form, err := c.signedForm(ctx, "requesttoken")
	if err != nil {
		return nil, err
	}

	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", c.cfg.RedirectURI)

	var body tokenBody
	if err := c.postForm(ctx, endpointOAuth2, "", form, &body); err != nil {
		return nil, fmt.Errorf("exchanging code: %w", err)
	}

	return &body, nil
}

// RefreshToken rotates the token pair using the stored refresh token.
func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (*tokenBody, error) {
	form, err := c.signedForm(ctx, "requesttoken")
	if err != nil {
		return nil, err
	}

	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)

	var body tokenBody
	if err := c.postForm(ctx, endpointOAuth2, "", form, &body); err != nil {
		return nil, fmt.Errorf("refreshing token: %w", err)
	}

	return &body, nil
}

// Revoke invalidates the connection server-side for the given provider
// user. Signed like the token calls; resource calls use bearer auth
// instead.
func (c *Client) Revoke(ctx context.Context, providerUserID string) error {
	form, err := c.signedForm(ctx, "revoke")
	if err != nil {
		return err
	}

	form.Set("userid", providerUserID)

	if err := c.postForm(ctx, endpointOAuth2, "", form, nil); err != nil {
		return fmt.Errorf("revoking access: %w", err)
	}

	return nil
}

// NotifySubscribe registers webhook interest for one appli category,
// delivered to the configured callback URL.
func (c *Client) NotifySubscribe(ctx context.Context, accessToken string, appli int) error {
	form := url.Values{}
	form.Set("action", "subscribe")
	form.Set("callbackurl", c.cfg.NotifyCallbackURL)
	form.Set("appli", strconv.Itoa(appli))

	if err := c.postForm(ctx, endpointNotify, accessToken, form, nil); err != nil {
		return fmt.Errorf("subscribing appli %d: %w", appli, err)
	}

	return nil
}

// getRaw issues a bearer-authenticated resource call and returns the
// raw envelope body for tolerant field extraction.
func (c *Client) getRaw(ctx context.Context, endpoint, accessToken string, form url.Values) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := c.postForm(ctx, endpoint, accessToken, form, &raw); err != nil {
		return nil, err
	}

	return raw, nil
}
