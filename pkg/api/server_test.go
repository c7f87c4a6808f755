package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepresearch-labs/agent/pkg/api"
	"github.com/deepresearch-labs/agent/pkg/apikeys"
	"github.com/deepresearch-labs/agent/pkg/checkpoint"
	"github.com/deepresearch-labs/agent/pkg/config"
	"github.com/deepresearch-labs/agent/pkg/events"
	"github.com/deepresearch-labs/agent/pkg/session"
	"github.com/deepresearch-labs/agent/pkg/state"
	"github.com/deepresearch-labs/agent/test/util"
)

// stubPool is a no-op session.Pool: Enqueue always succeeds and
// CancelSession reports that nothing was running, mirroring a session
// that has already finished by the time the handler runs.
type stubPool struct {
	enqueueErr error
}

func (p *stubPool) Enqueue(ctx context.Context, sess *state.Session) error { return p.enqueueErr }
func (p *stubPool) CancelSession(sessionID string) bool                   { return false }

func newTestServer(t *testing.T, pool session.Pool) (*httptest.Server, *checkpoint.Store, *apikeys.Store) {
	t.Helper()
	store, err := checkpoint.Open(context.Background(), util.NewTestDSN(t))
	require.NoError(t, err)
	t.Cleanup(store.Close)

	mgr := session.NewManager(store, pool)
	bus := events.NewBus(t.TempDir())

	keys, err := apikeys.Load(filepath.Join(t.TempDir(), "apikeys.json"))
	require.NoError(t, err)
	key, err := keys.Create("test", false)
	require.NoError(t, err)

	srv, err := api.NewServer(mgr, bus, keys, nil, config.APIConfig{RateLimitPerMin: 1000})
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, store, keys
}

func doRequest(t *testing.T, ts *httptest.Server, method, path, apiKey string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, ts.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	return resp
}

func TestHealthIsUnauthenticated(t *testing.T) {
	ts, _, _ := newTestServer(t, &stubPool{})
	resp := doRequest(t, ts, http.MethodGet, "/health", "", nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCreateSessionRequiresAPIKey(t *testing.T) {
	ts, _, _ := newTestServer(t, &stubPool{})
	resp := doRequest(t, ts, http.MethodPost, "/api/sessions", "", map[string]string{"query": "hi"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestCreateSessionThenGet(t *testing.T) {
	ts, _, keys := newTestServer(t, &stubPool{})
	key, err := keys.Create("caller", false)
	require.NoError(t, err)

	resp := doRequest(t, ts, http.MethodPost, "/api/sessions", key.Key, map[string]any{
		"query":  "what is the capital of France?",
		"budget": 2.5,
	})
	defer resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var created state.Session
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, 2.5, created.BudgetUSD)

	getResp := doRequest(t, ts, http.MethodGet, "/api/sessions/"+created.ID, key.Key, nil)
	defer getResp.Body.Close()
	require.Equal(t, http.StatusOK, getResp.StatusCode)

	var fetched state.Session
	require.NoError(t, json.NewDecoder(getResp.Body).Decode(&fetched))
	assert.Equal(t, created.ID, fetched.ID)
}

func TestGetUnknownSessionReturnsNotFound(t *testing.T) {
	ts, _, keys := newTestServer(t, &stubPool{})
	key, err := keys.Create("caller", false)
	require.NoError(t, err)

	resp := doRequest(t, ts, http.MethodGet, "/api/sessions/does-not-exist", key.Key, nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestReportNotReadyWhileSessionRunning(t *testing.T) {
	ts, store, keys := newTestServer(t, &stubPool{})
	key, err := keys.Create("caller", false)
	require.NoError(t, err)

	sess := state.NewSession("running-session", "q")
	require.NoError(t, store.Enqueue(context.Background(), sess))

	resp := doRequest(t, ts, http.MethodGet, "/api/sessions/running-session/report", key.Key, nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestReportReturnsMarkdownByDefault(t *testing.T) {
	ts, store, keys := newTestServer(t, &stubPool{})
	key, err := keys.Create("caller", false)
	require.NoError(t, err)

	sess := state.NewSession("done-session", "q")
	require.NoError(t, store.Enqueue(context.Background(), sess))
	sess.Status = state.StatusCompleted
	sess.FinalReport = "# Report\n\nbody text"
	require.NoError(t, store.MarkTerminal(context.Background(), sess))

	resp := doRequest(t, ts, http.MethodGet, "/api/sessions/done-session/report", key.Key, nil)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/markdown")
}

func TestReportRendersPDFOnRequest(t *testing.T) {
	ts, store, keys := newTestServer(t, &stubPool{})
	key, err := keys.Create("caller", false)
	require.NoError(t, err)

	sess := state.NewSession("pdf-session", "q")
	sess.OutputFormat = "pdf"
	require.NoError(t, store.Enqueue(context.Background(), sess))
	sess.Status = state.StatusCompleted
	sess.FinalReport = "# Report\n\nbody text"
	require.NoError(t, store.MarkTerminal(context.Background(), sess))

	resp := doRequest(t, ts, http.MethodGet, "/api/sessions/pdf-session/report", key.Key, nil)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/pdf", resp.Header.Get("Content-Type"))
}

func TestCancelSession(t *testing.T) {
	ts, store, keys := newTestServer(t, &stubPool{})
	key, err := keys.Create("caller", false)
	require.NoError(t, err)

	sess := state.NewSession("cancel-me", "q")
	require.NoError(t, store.Enqueue(context.Background(), sess))

	resp := doRequest(t, ts, http.MethodDelete, "/api/sessions/cancel-me", key.Key, nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	loaded, err := store.Load(context.Background(), "cancel-me")
	require.NoError(t, err)
	assert.Equal(t, state.StatusCancelled, loaded.Status)
}

func TestRevokedAPIKeyIsRejected(t *testing.T) {
	ts, _, keys := newTestServer(t, &stubPool{})
	key, err := keys.Create("caller", false)
	require.NoError(t, err)
	require.NoError(t, keys.Revoke(key.ID))

	resp := doRequest(t, ts, http.MethodGet, "/api/sessions", key.Key, nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
