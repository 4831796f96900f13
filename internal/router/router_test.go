package router

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sleeplog-backend/internal/docstore"
	"sleeplog-backend/internal/handlers"
	"sleeplog-backend/internal/middleware"
	"sleeplog-backend/internal/notify"
	"sleeplog-backend/internal/push"
	"sleeplog-backend/internal/repository"
	"sleeplog-backend/internal/services"
	"sleeplog-backend/internal/websocket"
)

type utcZone struct{}

func (utcZone) Zone(lat, lng float64) string { return "UTC" }

func newTestRouter(t *testing.T) http.Handler {
	dir := t.TempDir()
	auth := middleware.NewAuth("test-key", "test-secret")
	ledger := repository.NewDocumentLedger(docstore.NewFileStore(filepath.Join(dir, "sleep-entries.json")))
	hub := websocket.NewHub(nil, auth.ParseToken)

	return New(
		auth,
		handlers.NewAuthHandler(auth),
		handlers.NewSleepHandler(services.NewSleepLogService(ledger, utcZone{}, nil, hub, time.UTC)),
		handlers.NewPushHandler(push.NewStore(docstore.NewFileStore(filepath.Join(dir, "subs.json")), 10), "BKEY"),
		handlers.NewNotificationHandler(notify.NewHistory(docstore.NewFileStore(filepath.Join(dir, "history.json")))),
		hub,
		"http://localhost:5173",
	)
}

func serve(r http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestRouter_PublicEndpoints(t *testing.T) {
	r := newTestRouter(t)

	rec := serve(r, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = serve(r, httptest.NewRequest(http.MethodGet, "/api/v1/push/vapid-public-key", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serve(r, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "sleeplog_requests_total")

	rec = serve(r, httptest.NewRequest(http.MethodGet, "/api/v1/ws", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRouter_SleepRoutesRequireAuth(t *testing.T) {
	r := newTestRouter(t)

	rec := serve(r, httptest.NewRequest(http.MethodGet, "/api/v1/sleep", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sleep", nil)
	req.Header.Set("X-API-Key", "test-key")
	rec = serve(r, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serve(r, httptest.NewRequest(http.MethodPost, "/api/v1/push/subscribe", bytes.NewBufferString(`{}`)))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRouter_TokenFlow(t *testing.T) {
	r := newTestRouter(t)

	rec := serve(r, httptest.NewRequest(http.MethodPost, "/api/v1/auth/token", bytes.NewBufferString(`{"apiKey":"test-key"}`)))
	require.Equal(t, http.StatusOK, rec.Code)
	var tok struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tok))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sleep/last", nil)
	req.Header.Set("Authorization", "Bearer "+tok.Token)
	rec = serve(r, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouter_CORSPreflight(t *testing.T) {
	r := newTestRouter(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/sleep", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rec := serve(r, req)
	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
}
