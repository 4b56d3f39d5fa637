package api

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nodpt/llmserve/internal/config"
	"github.com/nodpt/llmserve/internal/engine"
	"github.com/nodpt/llmserve/internal/metrics"
	"github.com/nodpt/llmserve/internal/usage"
)

func newTestHandler(t *testing.T, cfg *config.Config, runner engine.Runner, store *usage.Store) *Handler {
	t.Helper()
	if cfg == nil {
		cfg = config.Default()
	}
	logger := log.New(io.Discard, "", 0)
	return NewHandler(cfg, engine.New(runner), store, metrics.New(), logger)
}

func doRequest(h *Handler, method, path, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	rr := httptest.NewRecorder()
	h.Routes().ServeHTTP(rr, req)
	return rr
}

func TestRoot(t *testing.T) {
	h := newTestHandler(t, nil, nil, nil)
	rr := doRequest(h, http.MethodGet, "/", "")

	require.Equal(t, http.StatusOK, rr.Code)
	var resp RootResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))

	assert.Equal(t, ServiceName, resp.Name)
	assert.Equal(t, Version, resp.Version)
	assert.Equal(t, "running", resp.Status)
	assert.Contains(t, resp.Endpoints, "POST /v1/chat/completions")
	assert.Contains(t, resp.Endpoints, "GET /health")
}

func TestHealth(t *testing.T) {
	t.Run("no engine", func(t *testing.T) {
		h := newTestHandler(t, nil, nil, nil)
		rr := doRequest(h, http.MethodGet, "/health", "")

		require.Equal(t, http.StatusOK, rr.Code)
		var resp HealthResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.Equal(t, "healthy", resp.Status)
		assert.False(t, resp.ModelLoaded)
	})

	t.Run("engine probed", func(t *testing.T) {
		runner := engine.Probe(t.TempDir(), log.New(io.Discard, "", 0))
		h := newTestHandler(t, nil, runner, nil)
		rr := doRequest(h, http.MethodGet, "/health", "")

		var resp HealthResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.True(t, resp.ModelLoaded)
	})
}

func TestListModels(t *testing.T) {
	cfg := config.Default()
	cfg.ModelName = "llama-7b"
	h := newTestHandler(t, cfg, nil, nil)
	rr := doRequest(h, http.MethodGet, "/v1/models", "")

	require.Equal(t, http.StatusOK, rr.Code)
	var resp ModelList
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))

	assert.Equal(t, "list", resp.Object)
	require.Len(t, resp.Data, 1)
	m := resp.Data[0]
	assert.Equal(t, "llama-7b", m.ID)
	assert.Equal(t, "model", m.Object)
	assert.NotZero(t, m.Created)
	assert.NotNil(t, m.Permission)
	assert.Empty(t, m.Permission)
	assert.Equal(t, "llama-7b", m.Root)
	assert.Nil(t, m.Parent)
}

func TestCompletions(t *testing.T) {
	h := newTestHandler(t, nil, nil, nil)
	rr := doRequest(h, http.MethodPost, "/v1/completions", `{"prompt": "Once upon a time"}`)

	require.Equal(t, http.StatusOK, rr.Code)
	var resp CompletionResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))

	assert.True(t, strings.HasPrefix(resp.ID, "cmpl-"))
	assert.Equal(t, "text_completion", resp.Object)
	assert.Equal(t, config.DefaultModelName, resp.Model)
	require.Len(t, resp.Choices, 1)
	assert.Equal(t, 0, resp.Choices[0].Index)
	assert.Nil(t, resp.Choices[0].Logprobs)
	assert.Equal(t, "length", resp.Choices[0].FinishReason)
	assert.Contains(t, resp.Choices[0].Text, "[Model not loaded]")

	// Word-count usage: prompt has 4 words; total is always the sum.
	assert.Equal(t, 4, resp.Usage.PromptTokens)
	assert.Equal(t, len(strings.Fields(resp.Choices[0].Text)), resp.Usage.CompletionTokens)
	assert.Equal(t, resp.Usage.PromptTokens+resp.Usage.CompletionTokens, resp.Usage.TotalTokens)
}

func TestCompletionsWithEngine(t *testing.T) {
	runner := engine.Probe(t.TempDir(), log.New(io.Discard, "", 0))
	h := newTestHandler(t, nil, runner, nil)
	rr := doRequest(h, http.MethodPost, "/v1/completions", `{"prompt": "Hello there"}`)

	require.Equal(t, http.StatusOK, rr.Code)
	var resp CompletionResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "[Generated response for: Hello there...]", resp.Choices[0].Text)
}

func TestCompletionsMissingPrompt(t *testing.T) {
	h := newTestHandler(t, nil, nil, nil)

	for _, body := range []string{`{}`, `{"prompt": ""}`} {
		rr := doRequest(h, http.MethodPost, "/v1/completions", body)
		assert.Equal(t, http.StatusBadRequest, rr.Code, "body %s", body)

		var resp ErrorResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.Equal(t, "invalid_request_error", resp.Error.Type)
		assert.Contains(t, resp.Error.Message, "prompt")
	}
}

func TestCompletionsMalformedBody(t *testing.T) {
	h := newTestHandler(t, nil, nil, nil)
	rr := doRequest(h, http.MethodPost, "/v1/completions", `{"prompt": `)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestCompletionsOptionalDefaults(t *testing.T) {
	// Omitted optional params must not error; explicit values are accepted.
	h := newTestHandler(t, nil, nil, nil)

	bodies := []string{
		`{"prompt": "hi"}`,
		`{"prompt": "hi", "max_tokens": 5}`,
		`{"prompt": "hi", "temperature": 0.2, "top_p": 0.9, "n": 2}`,
	}
	for _, body := range bodies {
		rr := doRequest(h, http.MethodPost, "/v1/completions", body)
		assert.Equal(t, http.StatusOK, rr.Code, "body %s", body)
	}
}

func TestChatCompletions(t *testing.T) {
	h := newTestHandler(t, nil, nil, nil)
	body := `{"messages": [{"role":"system","content":"Be terse."},{"role":"user","content":"Hi"}]}`
	rr := doRequest(h, http.MethodPost, "/v1/chat/completions", body)

	require.Equal(t, http.StatusOK, rr.Code)
	var resp ChatCompletionResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))

	assert.True(t, strings.HasPrefix(resp.ID, "chatcmpl-"))
	assert.Equal(t, "chat.completion", resp.Object)
	require.Len(t, resp.Choices, 1)
	assert.Equal(t, "assistant", resp.Choices[0].Message.Role)
	assert.NotEmpty(t, resp.Choices[0].Message.Content)
	assert.Equal(t, "length", resp.Choices[0].FinishReason)
	assert.Equal(t, resp.Usage.PromptTokens+resp.Usage.CompletionTokens, resp.Usage.TotalTokens)
}

func TestChatCompletionsFlattensHistory(t *testing.T) {
	runner := engine.Probe(t.TempDir(), log.New(io.Discard, "", 0))
	h := newTestHandler(t, nil, runner, nil)
	body := `{"messages": [{"role":"user","content":"Hi"}]}`
	rr := doRequest(h, http.MethodPost, "/v1/chat/completions", body)

	require.Equal(t, http.StatusOK, rr.Code)
	var resp ChatCompletionResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))

	// The echoed prefix proves the role-labelled flattening reached the engine.
	assert.Contains(t, resp.Choices[0].Message.Content, "User: Hi\nAssistant:")
}

func TestChatCompletionsEmptyMessages(t *testing.T) {
	h := newTestHandler(t, nil, nil, nil)

	for _, body := range []string{`{"messages": []}`, `{}`} {
		rr := doRequest(h, http.MethodPost, "/v1/chat/completions", body)
		assert.Equal(t, http.StatusBadRequest, rr.Code, "body %s", body)

		var resp ErrorResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.Contains(t, resp.Error.Message, "messages")
	}
}

func TestUnknownRoute(t *testing.T) {
	h := newTestHandler(t, nil, nil, nil)
	rr := doRequest(h, http.MethodGet, "/v2/oops", "")

	require.Equal(t, http.StatusNotFound, rr.Code)
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "not_found_error", resp.Error.Type)
}

func TestWrongMethod(t *testing.T) {
	// Wrong-method requests fall through to the catch-all, like any other
	// unroutable request.
	h := newTestHandler(t, nil, nil, nil)
	rr := doRequest(h, http.MethodGet, "/v1/completions", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestLocalModels(t *testing.T) {
	cfg := config.Default()
	cfg.ModelDir = t.TempDir()
	h := newTestHandler(t, cfg, nil, nil)
	rr := doRequest(h, http.MethodGet, "/v1/local-models", "")

	require.Equal(t, http.StatusOK, rr.Code)
	var models []engine.LocalModel
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &models))
	assert.Empty(t, models)
}

func TestInfo(t *testing.T) {
	cfg := config.Default()
	cfg.EngineDir = "/engines/a"
	h := newTestHandler(t, cfg, nil, nil)
	rr := doRequest(h, http.MethodGet, "/info", "")

	require.Equal(t, http.StatusOK, rr.Code)
	var resp InfoResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, Version, resp.Version)
	assert.Equal(t, "/engines/a", resp.EngineDir)
	assert.False(t, resp.ModelLoaded)
	assert.NotEmpty(t, resp.Features)
}

func TestMetricsEndpoint(t *testing.T) {
	h := newTestHandler(t, nil, nil, nil)
	rr := doRequest(h, http.MethodGet, "/metrics", "")

	require.Equal(t, http.StatusOK, rr.Code)
	var snap metrics.Snapshot
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &snap))
}

func TestCompletionsRecordUsage(t *testing.T) {
	store, err := usage.Open(filepath.Join(t.TempDir(), "usage.db"))
	require.NoError(t, err)
	defer store.Close()

	h := newTestHandler(t, nil, nil, store)
	rr := doRequest(h, http.MethodPost, "/v1/completions", `{"prompt": "count these four words"}`)
	require.Equal(t, http.StatusOK, rr.Code)

	recs, err := store.Recent(1)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "/v1/completions", recs[0].Endpoint)
	assert.Equal(t, 4, recs[0].PromptTokens)
	assert.Equal(t, recs[0].PromptTokens+recs[0].CompletionTokens, recs[0].TotalTokens)
	assert.True(t, strings.HasPrefix(recs[0].RequestID, "cmpl-"))
}
