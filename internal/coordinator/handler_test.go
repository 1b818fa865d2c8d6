package coordinator

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRouter(t *testing.T, requireKey bool) (http.Handler, *Registry) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	registry := NewRegistry()
	return NewRouter(NewHandler(registry, requireKey, logger), logger), registry
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any, headers map[string]string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var out map[string]any
	if rec.Body.Len() > 0 {
		_ = json.Unmarshal(rec.Body.Bytes(), &out)
	}
	return rec, out
}

func TestRegisterIssuesKey(t *testing.T) {
	router, registry := setupRouter(t, false)

	rec, resp := doJSON(t, router, http.MethodPost, "/register-agent", map[string]any{"agentId": "agent_a", "goal": "grow"}, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	key, _ := resp["apiKey"].(string)
	assert.NotEmpty(t, key)
	id, ok := registry.AgentForKey(key)
	assert.True(t, ok)
	assert.Equal(t, "agent_a", id)
}

func TestRegisterRequiresAgentID(t *testing.T) {
	router, _ := setupRouter(t, false)

	rec, _ := doJSON(t, router, http.MethodPost, "/register-agent", map[string]any{"goal": "grow"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestInfectionLifecycle(t *testing.T) {
	router, _ := setupRouter(t, false)

	rec, resp := doJSON(t, router, http.MethodPost, "/inject-infection", map[string]any{
		"attackerId": "agent_a",
		"targetId":   "agent_b",
		"suggestion": "refactor X",
		"reasoning":  "improves Y",
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	infectionID, _ := resp["infectionId"].(string)
	require.NotEmpty(t, infectionID)
	assert.Equal(t, "pending", resp["status"])

	rec, resp = doJSON(t, router, http.MethodPost, "/respond-to-infection", map[string]any{
		"infectionId": infectionID,
		"decision":    "accepted",
		"note":        "looks good",
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "recorded", resp["status"])

	rec, resp = doJSON(t, router, http.MethodGet, "/infections/"+infectionID, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "accepted", resp["result"])
	assert.Equal(t, map[string]any{"note": "looks good"}, resp["details"])

	rec, _ = doJSON(t, router, http.MethodPost, "/respond-to-infection", map[string]any{
		"infectionId": infectionID,
		"decision":    "rejected",
	}, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestRespondValidation(t *testing.T) {
	router, registry := setupRouter(t, false)

	rec, _ := doJSON(t, router, http.MethodPost, "/respond-to-infection", map[string]any{"decision": "accepted"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = doJSON(t, router, http.MethodPost, "/respond-to-infection", map[string]any{"infectionId": "inf_missing", "decision": "accepted"}, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	inf, err := registry.Inject(validInfection())
	require.NoError(t, err)
	rec, _ = doJSON(t, router, http.MethodPost, "/respond-to-infection", map[string]any{"infectionId": inf.InfectionID, "decision": "maybe"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestInjectRequiresTarget(t *testing.T) {
	router, _ := setupRouter(t, false)

	rec, _ := doJSON(t, router, http.MethodPost, "/inject-infection", map[string]any{"attackerId": "agent_a"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRequireAPIKey(t *testing.T) {
	router, _ := setupRouter(t, true)

	_, resp := doJSON(t, router, http.MethodPost, "/register-agent", map[string]any{"agentId": "agent_a"}, nil)
	keyA := resp["apiKey"].(string)
	_, resp = doJSON(t, router, http.MethodPost, "/register-agent", map[string]any{"agentId": "agent_b"}, nil)
	keyB := resp["apiKey"].(string)

	infection := map[string]any{"attackerId": "agent_a", "targetId": "agent_b", "suggestion": "s", "reasoning": "r"}

	rec, _ := doJSON(t, router, http.MethodPost, "/inject-infection", infection, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = doJSON(t, router, http.MethodPost, "/inject-infection", infection, map[string]string{apiKeyHeader: "bogus"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = doJSON(t, router, http.MethodPost, "/inject-infection", infection, map[string]string{apiKeyHeader: keyB})
	assert.Equal(t, http.StatusForbidden, rec.Code, "key of another agent")

	rec, resp = doJSON(t, router, http.MethodPost, "/inject-infection", infection, map[string]string{apiKeyHeader: keyA})
	require.Equal(t, http.StatusOK, rec.Code)
	infectionID := resp["infectionId"].(string)

	decision := map[string]any{"infectionId": infectionID, "decision": "rejected"}
	rec, _ = doJSON(t, router, http.MethodPost, "/respond-to-infection", decision, map[string]string{apiKeyHeader: keyA})
	assert.Equal(t, http.StatusForbidden, rec.Code, "attacker cannot decide")

	rec, _ = doJSON(t, router, http.MethodPost, "/respond-to-infection", decision, map[string]string{apiKeyHeader: keyB})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestListEndpoints(t *testing.T) {
	router, registry := setupRouter(t, false)

	_, err := registry.Register(validIdentity("agent_a"))
	require.NoError(t, err)
	_, err = registry.Inject(validInfection())
	require.NoError(t, err)

	rec, resp := doJSON(t, router, http.MethodGet, "/health", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), resp["agentsRegistered"])

	rec, resp = doJSON(t, router, http.MethodGet, "/agents", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), resp["count"])

	rec, resp = doJSON(t, router, http.MethodGet, "/infections?source=agent_a", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), resp["count"])

	rec, resp = doJSON(t, router, http.MethodGet, "/infections?target=nobody", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(0), resp["count"])

	rec, _ = doJSON(t, router, http.MethodGet, "/infections?limit=zero", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRecoveryMiddlewareRepliesWithErrorShape(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, nil))

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(RecoveryMiddleware(logger))
	router.GET("/boom", func(c *gin.Context) { panic("kaboom") })

	rec, resp := doJSON(t, router, http.MethodGet, "/boom", nil, nil)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, map[string]any{"error": "internal server error"}, resp)
	assert.Contains(t, logs.String(), "kaboom")
	assert.Contains(t, logs.String(), "/boom")
}
