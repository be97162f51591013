// Package httpapi implements the HTTP front-end: a thin shell over the
// decision engine that authenticates, shapes the mock chat-completion
// response, and reports outcomes to the metrics reporter. It owns no rate-
// limit state of its own.
package httpapi

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/blueberrycongee/ratelimiter/internal/httputil"
	"github.com/blueberrycongee/ratelimiter/internal/keys"
	"github.com/blueberrycongee/ratelimiter/internal/metrics"
	"github.com/blueberrycongee/ratelimiter/internal/ratelimit"
)

const (
	defaultModel        = "gpt-4o-mini"
	defaultMaxTokens    = 128
	maxCompletionTokens = 512
	maxRequestBodyBytes = 1 << 20 // 1MB; these are small chat payloads, not uploads.
)

// Handler serves the rate limiter's HTTP surface.
type Handler struct {
	registry *keys.Manager
	engine   *ratelimit.Engine
	reporter *metrics.Reporter
	logger   *slog.Logger

	serviceName   string
	windowSeconds int
}

// HandlerConfig configures a Handler.
type HandlerConfig struct {
	Registry      *keys.Manager
	Engine        *ratelimit.Engine
	Reporter      *metrics.Reporter
	Logger        *slog.Logger
	ServiceName   string
	WindowSeconds int
}

// NewHandler creates a Handler from cfg.
func NewHandler(cfg HandlerConfig) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		registry:      cfg.Registry,
		engine:        cfg.Engine,
		reporter:      cfg.Reporter,
		logger:        logger,
		serviceName:   cfg.ServiceName,
		windowSeconds: cfg.WindowSeconds,
	}
}

// Healthz implements GET /healthz. It always returns 200 and never touches
// the store.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:        "ok",
		Service:       h.serviceName,
		WindowSeconds: h.windowSeconds,
		APIKeys:       h.registry.Get().Count(),
	}
	writeJSON(w, http.StatusOK, resp)
}

// ChatCompletions implements POST /v1/chat/completions.
func (h *Handler) ChatCompletions(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.New().String()
	logger := h.logger.With("request_id", requestID)

	apiKey, limits, ok := h.authenticate(r)
	if !ok {
		logger.Warn("authentication failed")
		writeSimpleError(w, http.StatusUnauthorized, "Missing or invalid API key")
		return
	}

	body, err := httputil.ReadLimitedBody(r.Body, maxRequestBodyBytes)
	if err != nil {
		writeSimpleError(w, http.StatusBadRequest, "request body too large")
		return
	}
	defer r.Body.Close()

	if len(body) == 0 {
		body = []byte("{}")
	}

	var req chatCompletionRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeSimpleError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if len(req.Messages) == 0 {
		writeSimpleError(w, http.StatusBadRequest, "messages must be a non-empty list")
		return
	}

	model := req.Model
	if model == "" {
		model = defaultModel
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}

	promptTokens := estimateTokens(req.Messages)
	completionTokens := clampCompletionTokens(maxTokens)

	decisionStart := time.Now()
	outcome, err := h.engine.CheckAndConsume(r.Context(), apiKey, limits, promptTokens, completionTokens)
	metrics.DecisionLatency.Observe(time.Since(decisionStart).Seconds())
	if err != nil {
		logger.Error("store error during admission", "error", err)
		h.reporter.RecordFailed()
		writeSimpleError(w, http.StatusInternalServerError, "internal error")
		return
	}

	if !outcome.Allowed {
		h.reporter.RecordThrottled()
		w.Header().Set("Retry-After", strconv.Itoa(h.windowSeconds))
		writeJSON(w, http.StatusTooManyRequests, rateLimitErrorBody{Error: rateLimitErrorDetail{
			Message: "Rate limit exceeded",
			Type:    "rate_limit",
			Code:    int(outcome.LimitFlag),
		}})
		return
	}

	h.reporter.RecordSuccess()
	resp := chatCompletionResponse{
		ID:      "chatcmpl-" + strings.ReplaceAll(uuid.New().String(), "-", "")[:24],
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   model,
		Choices: []choice{{
			Index: 0,
			Message: choiceMessage{
				Role:    "assistant",
				Content: buildMockContent(req.Messages, completionTokens),
			},
			FinishReason: "stop",
		}},
		Usage: usage{
			PromptTokens:     promptTokens,
			CompletionTokens: completionTokens,
			TotalTokens:      promptTokens + completionTokens,
		},
		RateLimitState: rateLimitState{
			RPM:           dimensionState{Used: outcome.RPMUsage, Limit: limits.RPM},
			InputTPM:      dimensionState{Used: outcome.InputUsage, Limit: limits.InputTPM},
			OutputTPM:     dimensionState{Used: outcome.OutputUsage, Limit: limits.OutputTPM},
			WindowSeconds: h.windowSeconds,
		},
		Node: h.serviceName,
	}
	writeJSON(w, http.StatusOK, resp)
}

// authenticate extracts and validates the bearer token against the key
// registry. It never touches the store.
func (h *Handler) authenticate(r *http.Request) (string, keys.Limits, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || token == "" {
		return "", keys.Limits{}, false
	}
	if !strings.EqualFold(scheme, "bearer") {
		return "", keys.Limits{}, false
	}
	apiKey := strings.TrimSpace(token)
	limits, ok := h.registry.Get().Lookup(apiKey)
	if !ok {
		return "", keys.Limits{}, false
	}
	return apiKey, limits, true
}

func clampCompletionTokens(maxTokens int) int64 {
	tokens := maxTokens
	if tokens < 1 {
		tokens = 1
	}
	if tokens > maxCompletionTokens {
		tokens = maxCompletionTokens
	}
	return int64(tokens)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeSimpleError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, simpleErrorBody{Error: message})
}
