// Package api implements the OpenAI-compatible HTTP surface.
package api

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nodpt/llmserve/internal/config"
	"github.com/nodpt/llmserve/internal/engine"
	"github.com/nodpt/llmserve/internal/metrics"
	"github.com/nodpt/llmserve/internal/prompt"
	"github.com/nodpt/llmserve/internal/usage"
)

// ServiceName appears in the root endpoint's metadata.
const ServiceName = "llmserve OpenAI-Compatible API"

const modelOwner = "llmserve"

// Handler serves every route. All request handling is stateless; the only
// shared state is the immutable config and the injected components.
type Handler struct {
	cfg     *config.Config
	engine  *engine.Engine
	store   *usage.Store // nil disables usage logging
	metrics *metrics.Metrics
	logger  *log.Logger
}

// NewHandler wires the route handlers. store may be nil.
func NewHandler(cfg *config.Config, eng *engine.Engine, store *usage.Store, m *metrics.Metrics, logger *log.Logger) *Handler {
	return &Handler{
		cfg:     cfg,
		engine:  eng,
		store:   store,
		metrics: m,
		logger:  logger,
	}
}

// Routes returns the service mux. Anything off the route table, including
// wrong-method requests, falls through to the catch-all JSON 404.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", h.handleRoot)
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("GET /info", h.handleInfo)
	mux.Handle("GET /metrics", h.metrics.Handler(h.logger))
	mux.HandleFunc("GET /v1/models", h.handleListModels)
	mux.HandleFunc("GET /v1/local-models", h.handleLocalModels)
	mux.HandleFunc("POST /v1/completions", h.handleCompletions)
	mux.HandleFunc("POST /v1/chat/completions", h.handleChatCompletions)
	mux.HandleFunc("/", h.handleNotFound)
	return mux
}

func (h *Handler) handleRoot(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, RootResponse{
		Name:    ServiceName,
		Version: Version,
		Status:  "running",
		Endpoints: []string{
			"GET /health",
			"GET /info",
			"GET /metrics",
			"GET /v1/models",
			"GET /v1/local-models",
			"POST /v1/completions",
			"POST /v1/chat/completions",
		},
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, HealthResponse{
		Status:      "healthy",
		ModelLoaded: h.engine.Loaded(),
	})
}

func (h *Handler) handleInfo(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, InfoResponse{
		Version:     Version,
		ModelName:   h.cfg.ModelName,
		ModelLoaded: h.engine.Loaded(),
		EngineDir:   h.cfg.EngineDir,
		ModelDir:    h.cfg.ModelDir,
		Features: []string{
			"OpenAI-compatible completions",
			"OpenAI-compatible chat completions",
			"Usage accounting",
		},
	})
}

func (h *Handler) handleListModels(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, ModelList{
		Object: "list",
		Data: []ModelInfo{
			{
				ID:         h.cfg.ModelName,
				Object:     "model",
				Created:    time.Now().Unix(),
				OwnedBy:    modelOwner,
				Permission: []string{},
				Root:       h.cfg.ModelName,
				Parent:     nil,
			},
		},
	})
}

func (h *Handler) handleLocalModels(w http.ResponseWriter, r *http.Request) {
	models, err := engine.ScanModels(h.cfg.ModelDir)
	if err != nil {
		h.logger.Printf("Failed to scan model directory %s: %v", h.cfg.ModelDir, err)
		h.writeError(w, http.StatusInternalServerError, errTypeAPI, "Failed to scan model directory: "+err.Error())
		return
	}
	h.logger.Printf("Found %d models in %s", len(models), h.cfg.ModelDir)
	h.writeJSON(w, http.StatusOK, models)
}

func (h *Handler) handleCompletions(w http.ResponseWriter, r *http.Request) {
	var req CompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, errTypeInvalidRequest, "Failed to parse request body")
		return
	}
	if req.Prompt == "" {
		h.writeError(w, http.StatusBadRequest, errTypeInvalidRequest, "Missing 'prompt' field")
		return
	}

	text, err := h.engine.Complete(r.Context(), req.Prompt, completionParams(req.MaxTokens, req.Temperature, req.TopP))
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, errTypeAPI, "Internal server error: "+err.Error())
		return
	}

	id := completionID("cmpl")
	u := usageFor(req.Prompt, text)
	h.logUsage(id, r.URL.Path, u)

	h.writeJSON(w, http.StatusOK, CompletionResponse{
		ID:      id,
		Object:  "text_completion",
		Created: time.Now().Unix(),
		Model:   h.cfg.ModelName,
		Choices: []CompletionChoice{
			{
				Text:         text,
				Index:        0,
				Logprobs:     nil,
				FinishReason: "length",
			},
		},
		Usage: u,
	})
}

func (h *Handler) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	var req ChatCompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, errTypeInvalidRequest, "Failed to parse request body")
		return
	}
	if len(req.Messages) == 0 {
		h.writeError(w, http.StatusBadRequest, errTypeInvalidRequest, "Missing 'messages' field")
		return
	}

	flat := prompt.Flatten(toPromptMessages(req.Messages))

	text, err := h.engine.Complete(r.Context(), flat, completionParams(req.MaxTokens, req.Temperature, req.TopP))
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, errTypeAPI, "Internal server error: "+err.Error())
		return
	}

	id := completionID("chatcmpl")
	u := usageFor(flat, text)
	h.logUsage(id, r.URL.Path, u)

	h.writeJSON(w, http.StatusOK, ChatCompletionResponse{
		ID:      id,
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   h.cfg.ModelName,
		Choices: []ChatChoice{
			{
				Index:        0,
				Message:      ChatMessage{Role: prompt.RoleAssistant, Content: text},
				FinishReason: "length",
			},
		},
		Usage: u,
	})
}

func (h *Handler) handleNotFound(w http.ResponseWriter, r *http.Request) {
	h.writeError(w, http.StatusNotFound, errTypeNotFound, "Not Found")
}

// logUsage records accounting for a completed request. Failures are logged
// and never surface to the client.
func (h *Handler) logUsage(id, endpoint string, u Usage) {
	if h.store == nil {
		return
	}
	err := h.store.Log(usage.Record{
		RequestID:        id,
		Endpoint:         endpoint,
		Model:            h.cfg.ModelName,
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		TotalTokens:      u.TotalTokens,
	})
	if err != nil {
		h.logger.Printf("Failed to record usage for %s: %v", id, err)
	}
}

// completionParams resolves optional sampling fields to their defaults.
// A requested n is accepted but only one candidate is ever produced; real
// multi-candidate sampling needs a real backend.
func completionParams(maxTokens *int, temperature, topP *float64) engine.Params {
	p := engine.Params{
		MaxTokens:   defaultMaxTokens,
		Temperature: defaultTemperature,
		TopP:        defaultTopP,
	}
	if maxTokens != nil {
		p.MaxTokens = *maxTokens
	}
	if temperature != nil {
		p.Temperature = *temperature
	}
	if topP != nil {
		p.TopP = *topP
	}
	return p
}

func usageFor(promptText, completionText string) Usage {
	pt := prompt.CountTokens(promptText)
	ct := prompt.CountTokens(completionText)
	return Usage{
		PromptTokens:     pt,
		CompletionTokens: ct,
		TotalTokens:      pt + ct,
	}
}

func toPromptMessages(messages []ChatMessage) []prompt.Message {
	out := make([]prompt.Message, len(messages))
	for i, m := range messages {
		out[i] = prompt.Message{Role: m.Role, Content: m.Content}
	}
	return out
}

func completionID(prefix string) string {
	return prefix + "-" + strings.ReplaceAll(uuid.NewString(), "-", "")
}
