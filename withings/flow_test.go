package withings

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	herrors "github.com/alexjbarnes/healthsync/internal/errors"
	"github.com/alexjbarnes/healthsync/internal/models"
)

const exchangeResponse = `{"status":0,"body":{"userid":42,"access_token":"at-1","refresh_token":"rt-1","scope":"user.metrics","expires_in":10800,"token_type":"Bearer"}}`

// exchangeMux serves a successful nonce + token exchange.
func exchangeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc(endpointSignature, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(nonceResponse))
	})
	mux.HandleFunc(endpointOAuth2, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(exchangeResponse))
	})
	return mux
}

func newTestFlow(t *testing.T, handler http.Handler) (*Flow, *memRepo) {
	t.Helper()

	client, _ := newTestClient(t, handler)
	repo := &memRepo{}
	return NewFlow(client, loadCatalog(t), repo, repo, nil), repo
}

// startedFlow starts an authorization and returns the flow together
// with the state parameter embedded in the returned URL.
func startedFlow(t *testing.T, handler http.Handler, metrics ...string) (*Flow, *memRepo, string) {
	t.Helper()

	if len(metrics) == 0 {
		metrics = []string{"weight"}
	}

	flow, repo := newTestFlow(t, handler)

	authURL, err := flow.StartAuth(metrics)
	require.NoError(t, err)

	u, err := url.Parse(authURL)
	require.NoError(t, err)

	return flow, repo, u.Query().Get("state")
}

func callbackURL(state, code string) string {
	return "https://example.com/withings/callback?code=" + code + "&state=" + state
}

// --- StartAuth ---

func TestStartAuth_BuildsAuthorizeURL(t *testing.T) {
	flow, repo := newTestFlow(t, http.NewServeMux())

	authURL, err := flow.StartAuth([]string{"weight", "heart_rate", "steps"})
	require.NoError(t, err)

	u, err := url.Parse(authURL)
	require.NoError(t, err)
	assert.Equal(t, "account.example.com", u.Host)
	assert.Equal(t, "/authorize", u.Path)

	q := u.Query()
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "cid", q.Get("client_id"))
	assert.Equal(t, "user.metrics,user.activity", q.Get("scope"))
	assert.Equal(t, "https://example.com/withings/callback", q.Get("redirect_uri"))
	assert.Regexp(t, "^[0-9a-f]{64}$", q.Get("state"))

	// The same state must be waiting in the pending store.
	pending, err := repo.LoadPending()
	require.NoError(t, err)
	require.NotNil(t, pending)
	assert.Equal(t, q.Get("state"), pending.State)
	assert.Equal(t, []string{"weight", "heart_rate", "steps"}, pending.RequestedMetrics)
}

func TestStartAuth_FreshStatePerAttempt(t *testing.T) {
	flow, _ := newTestFlow(t, http.NewServeMux())

	first, err := flow.StartAuth([]string{"weight"})
	require.NoError(t, err)
	second, err := flow.StartAuth([]string{"weight"})
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestStartAuth_NoResolvableScopes(t *testing.T) {
	flow, repo := newTestFlow(t, http.NewServeMux())

	_, err := flow.StartAuth([]string{"blood_glucose"})
	require.Error(t, err)

	var cerr *herrors.ConfigError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, "metrics", cerr.Field)
	assert.Contains(t, cerr.Guidance, "weight")

	pending, err := repo.LoadPending()
	require.NoError(t, err)
	assert.Nil(t, pending, "a failed start must not leave pending state behind")
}

func TestStartAuth_InvalidConfigRejected(t *testing.T) {
	client, _ := newTestClient(t, http.NewServeMux())
	client.cfg.RedirectURI = "http://example.com/cb"

	repo := &memRepo{}
	flow := NewFlow(client, loadCatalog(t), repo, repo, nil)

	_, err := flow.StartAuth([]string{"weight"})

	var cerr *herrors.ConfigError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, "RedirectURI", cerr.Field)
}

// --- HandleCallback: CSRF validation ---

func TestHandleCallback_NoPendingState(t *testing.T) {
	flow, _ := newTestFlow(t, exchangeMux())

	_, err := flow.HandleCallback(context.Background(), callbackURL("anything", "c1"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, herrors.ErrCSRF))
}

func TestHandleCallback_StateMismatch(t *testing.T) {
	flow, _, _ := startedFlow(t, exchangeMux())

	_, err := flow.HandleCallback(context.Background(), callbackURL(strings.Repeat("f", 64), "c1"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, herrors.ErrCSRF))
	assert.Contains(t, err.Error(), "state parameter mismatch")
}

func TestHandleCallback_MissingState(t *testing.T) {
	flow, _, _ := startedFlow(t, exchangeMux())

	_, err := flow.HandleCallback(context.Background(), "https://example.com/withings/callback?code=c1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, herrors.ErrCSRF))
}

func TestHandleCallback_ExpiredPending(t *testing.T) {
	flow, _, state := startedFlow(t, exchangeMux())
	flow.now = func() time.Time { return time.Now().Add(11 * time.Minute) }

	_, err := flow.HandleCallback(context.Background(), callbackURL(state, "c1"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, herrors.ErrCSRF))
	assert.Contains(t, err.Error(), "expired")
}

func TestHandleCallback_PendingIsOneShot(t *testing.T) {
	flow, repo, state := startedFlow(t, exchangeMux())

	_, err := flow.HandleCallback(context.Background(), callbackURL(state, "c1"))
	require.NoError(t, err)

	pending, err := repo.LoadPending()
	require.NoError(t, err)
	assert.Nil(t, pending)

	// A replay of the same callback must fail CSRF validation.
	_, err = flow.HandleCallback(context.Background(), callbackURL(state, "c1"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, herrors.ErrCSRF))
}

func TestHandleCallback_MalformedURLConsumesPending(t *testing.T) {
	flow, repo, state := startedFlow(t, exchangeMux())

	_, err := flow.HandleCallback(context.Background(), "   ")
	require.Error(t, err)

	pending, err2 := repo.LoadPending()
	require.NoError(t, err2)
	assert.Nil(t, pending, "an unparseable callback still spends the attempt")

	// The state from the consumed attempt no longer validates.
	_, err = flow.HandleCallback(context.Background(), callbackURL(state, "c1"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, herrors.ErrCSRF))
}

func TestHandleCallback_PendingClearedOnFailureToo(t *testing.T) {
	flow, repo, _ := startedFlow(t, exchangeMux())

	_, err := flow.HandleCallback(context.Background(), callbackURL("0000", "c1"))
	require.Error(t, err)

	pending, err := repo.LoadPending()
	require.NoError(t, err)
	assert.Nil(t, pending)
}

// --- HandleCallback: provider denial ---

func TestHandleCallback_ProviderDenial(t *testing.T) {
	oauthCalls := 0
	mux := http.NewServeMux()
	mux.HandleFunc(endpointOAuth2, func(w http.ResponseWriter, r *http.Request) {
		oauthCalls++
	})

	flow, _, state := startedFlow(t, mux)

	_, err := flow.HandleCallback(context.Background(),
		"https://example.com/withings/callback?error=access_denied&error_description=user+declined&state="+state)
	require.Error(t, err)

	var perr *herrors.ProviderError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "access_denied: user declined", perr.Text)
	assert.Zero(t, oauthCalls, "a denied callback must not attempt an exchange")
}

func TestHandleCallback_NeitherCodeNorError(t *testing.T) {
	flow, _, state := startedFlow(t, exchangeMux())

	_, err := flow.HandleCallback(context.Background(), "https://example.com/withings/callback?state="+state)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "neither code nor error")
}

// --- HandleCallback: redirect mismatch remediation ---

func TestHandleCallback_RedirectMismatchOnExchange(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc(endpointSignature, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(nonceResponse))
	})
	mux.HandleFunc(endpointOAuth2, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":601,"error":"redirect_uri mismatch"}`))
	})

	flow, _, state := startedFlow(t, mux)

	_, err := flow.HandleCallback(context.Background(), callbackURL(state, "c1"))
	require.Error(t, err)

	var rerr *herrors.RedirectMismatchError
	require.True(t, errors.As(err, &rerr))
	assert.Contains(t, rerr.Error(), "https://example.com/withings/callback")
	assert.Contains(t, rerr.Error(), "developer console")

	var perr *herrors.ProviderError
	assert.True(t, errors.As(err, &perr))
	assert.Equal(t, 601, perr.Code)
}

func TestHandleCallback_RedirectMismatchInCallbackError(t *testing.T) {
	flow, _, state := startedFlow(t, exchangeMux())

	_, err := flow.HandleCallback(context.Background(),
		"https://example.com/withings/callback?error=invalid_request&error_description=redirect_uri+not+registered&state="+state)
	require.Error(t, err)

	var rerr *herrors.RedirectMismatchError
	require.True(t, errors.As(err, &rerr))
	assert.Contains(t, rerr.Error(), "https://example.com/withings/callback")
}

// --- HandleCallback: success path ---

func TestHandleCallback_PersistsTokenRecord(t *testing.T) {
	flow, repo, state := startedFlow(t, exchangeMux())

	start := time.Unix(1700000000, 0)
	flow.now = func() time.Time { return start }

	rec, err := flow.HandleCallback(context.Background(), callbackURL(state, "c1"))
	require.NoError(t, err)
	require.NotNil(t, rec)

	assert.Equal(t, "at-1", rec.AccessToken)
	assert.Equal(t, "rt-1", rec.RefreshToken)
	assert.Equal(t, "42", rec.ProviderUserID)
	assert.Equal(t, "user.metrics", rec.Scope)
	assert.Equal(t, start.Add(3*time.Hour), rec.ExpiresAt)

	stored, err := repo.LoadRecord()
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, rec.AccessToken, stored.AccessToken)
}

func TestHandleCallback_FiresOnAuthenticated(t *testing.T) {
	flow, _, state := startedFlow(t, exchangeMux(), "weight", "steps", "sleep_duration")

	type hookCall struct {
		rec        *models.TokenRecord
		categories []string
	}
	called := make(chan hookCall, 1)
	flow.OnAuthenticated = func(rec *models.TokenRecord, categories []string) {
		called <- hookCall{rec, categories}
	}

	_, err := flow.HandleCallback(context.Background(), callbackURL(state, "c1"))
	require.NoError(t, err)

	select {
	case got := <-called:
		assert.Equal(t, "at-1", got.rec.AccessToken)
		assert.Equal(t, []string{"body", "activity", "sleep"}, got.categories)
	case <-time.After(time.Second):
		t.Fatal("OnAuthenticated hook never fired")
	}
}

func TestHandleCallback_SaveFailureSurfaces(t *testing.T) {
	ctrl := gomock.NewController(t)

	tokens := NewMockTokenRepository(ctrl)
	tokens.EXPECT().SaveRecord(gomock.Any()).Return(errors.New("disk full"))

	client, _ := newTestClient(t, exchangeMux())
	repo := &memRepo{}
	flow := NewFlow(client, loadCatalog(t), tokens, repo, nil)

	authURL, err := flow.StartAuth([]string{"weight"})
	require.NoError(t, err)
	u, err := url.Parse(authURL)
	require.NoError(t, err)

	_, err = flow.HandleCallback(context.Background(), callbackURL(u.Query().Get("state"), "c1"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}

// --- Cancel ---

func TestCancel_ClearsPendingState(t *testing.T) {
	flow, repo, _ := startedFlow(t, exchangeMux())

	require.NoError(t, flow.Cancel())

	pending, err := repo.LoadPending()
	require.NoError(t, err)
	assert.Nil(t, pending)
}

func TestCancel_WithoutStartIsHarmless(t *testing.T) {
	flow, _ := newTestFlow(t, http.NewServeMux())
	assert.NoError(t, flow.Cancel())
}
