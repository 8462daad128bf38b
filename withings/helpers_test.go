package withings

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/alexjbarnes/healthsync/internal/catalog"
	"github.com/alexjbarnes/healthsync/internal/models"
	"github.com/stretchr/testify/require"
)

// testConfig returns a client config pointed at the given server.
func testConfig(apiURL string) Config {
	return Config{
		ClientID:          "cid",
		ClientSecret:      "csecret",
		RedirectURI:       "https://example.com/withings/callback",
		APIBaseURL:        apiURL,
		AuthorizeURL:      "https://account.example.com/authorize",
		NotifyCallbackURL: "https://example.com/withings/notify",
	}
}

// newTestClient spins up an httptest server with the given handler and
// returns a Client talking to it.
func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewClient(testConfig(srv.URL), srv.Client(), nil), srv
}

// nonceResponse is the canned getnonce reply used across tests.
const nonceResponse = `{"status":0,"body":{"nonce":"nonce-1"}}`

// memRepo is an in-memory implementation of both repository
// interfaces, mirroring the two slots of the bbolt store.
type memRepo struct {
	mu      sync.Mutex
	rec     *models.TokenRecord
	pending *models.PendingAuthState

	saveRecordCalls int
}

func (m *memRepo) LoadRecord() (*models.TokenRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.rec == nil {
		return nil, nil
	}

	cp := *m.rec

	return &cp, nil
}

func (m *memRepo) SaveRecord(rec *models.TokenRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *rec
	m.rec = &cp
	m.saveRecordCalls++

	return nil
}

func (m *memRepo) ClearRecord() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.rec = nil

	return nil
}

func (m *memRepo) LoadPending() (*models.PendingAuthState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.pending == nil {
		return nil, nil
	}

	cp := *m.pending

	return &cp, nil
}

func (m *memRepo) SavePending(pending *models.PendingAuthState) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *pending
	m.pending = &cp

	return nil
}

func (m *memRepo) ClearPending() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.pending = nil

	return nil
}

// loadCatalog loads the embedded catalog, failing the test on error.
func loadCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()

	cat, err := catalog.Load()
	require.NoError(t, err)

	return cat
}
