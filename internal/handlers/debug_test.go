package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStateSource struct {
	state map[string]any
}

func (f fakeStateSource) DebugState() map[string]any { return f.state }

func serve(router *gin.Engine, method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := NewDebugRouter("chat-client", nil, nil, false)

	rec := serve(router, http.MethodGet, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestDebugStateSnapshot(t *testing.T) {
	gin.SetMode(gin.TestMode)
	source := fakeStateSource{state: map[string]any{"state": "connected", "username": "alice"}}
	router := NewDebugRouter("chat-client", source, nil, false)

	rec := serve(router, http.MethodGet, "/debug/state")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "connected", resp["state"])
	assert.Equal(t, "alice", resp["username"])
}

func TestDebugStateWithoutSession(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := NewDebugRouter("chat-client", nil, nil, false)

	rec := serve(router, http.MethodGet, "/debug/state")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestAuditRoutesDisabledByDefault(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := NewDebugRouter("chat-client", nil, nil, false)

	rec := serve(router, http.MethodGet, "/debug/audit-test")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAuditTestWithoutEmitter(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := NewDebugRouter("chat-client", nil, nil, true)

	rec := serve(router, http.MethodGet, "/debug/audit-test")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := NewDebugRouter("chat-client", nil, nil, false)

	rec := serve(router, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "chat_client_reconnects_total")
}
