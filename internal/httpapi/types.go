package httpapi

import "github.com/goccy/go-json"

// chatMessage mirrors the original schema's ChatMessage: content is a
// tagged variant (a plain string, or a list of strings/{type,text}
// objects) rather than a fixed shape, so it is decoded as raw JSON and
// walked by extractContentText.
type chatMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

// chatCompletionRequest mirrors the original ChatCompletionRequest.
// Model and MaxTokens are optional; the handler applies the same defaults
// the original endpoint does when they are absent.
type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type usage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	TotalTokens      int64 `json:"total_tokens"`
}

type choiceMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type choice struct {
	Index        int           `json:"index"`
	Message      choiceMessage `json:"message"`
	FinishReason string        `json:"finish_reason"`
}

type dimensionState struct {
	Used  int64 `json:"used"`
	Limit int64 `json:"limit"`
}

type rateLimitState struct {
	RPM           dimensionState `json:"rpm"`
	InputTPM      dimensionState `json:"input_tpm"`
	OutputTPM     dimensionState `json:"output_tpm"`
	WindowSeconds int            `json:"window_seconds"`
}

type chatCompletionResponse struct {
	ID             string         `json:"id"`
	Object         string         `json:"object"`
	Created        int64          `json:"created"`
	Model          string         `json:"model"`
	Choices        []choice       `json:"choices"`
	Usage          usage          `json:"usage"`
	RateLimitState rateLimitState `json:"rate_limit_state"`
	Node           string         `json:"node"`
}

// rateLimitErrorBody is the shape for 429 responses:
// {"error": {"message", "type", "code"}}.
type rateLimitErrorBody struct {
	Error rateLimitErrorDetail `json:"error"`
}

type rateLimitErrorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    int    `json:"code"`
}

// simpleErrorBody is the shape for 400/401/5xx responses, matching the
// original's plain {"error": "message"} for everything other than a
// rate-limit rejection.
type simpleErrorBody struct {
	Error string `json:"error"`
}

type healthResponse struct {
	Status        string `json:"status"`
	Service       string `json:"service"`
	WindowSeconds int    `json:"window_seconds"`
	APIKeys       int    `json:"api_keys"`
}
