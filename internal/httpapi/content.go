package httpapi

import (
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

// contentPart is one element of a multi-part content array, as produced by
// OpenAI-style multimodal messages: {"type": "text", "text": "..."}.
type contentPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// extractContentText walks a chatMessage.Content tagged variant (a plain
// string, or an array mixing bare strings and {type,text} objects) and
// returns the concatenated text. An unrecognized shape contributes nothing
// rather than erroring.
func extractContentText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return asString
	}

	var asParts []contentPart
	if err := json.Unmarshal(raw, &asParts); err == nil {
		var sb strings.Builder
		for _, part := range asParts {
			if part.Text == "" {
				continue
			}
			sb.WriteString(part.Text)
		}
		return sb.String()
	}

	var asStrings []string
	if err := json.Unmarshal(raw, &asStrings); err == nil {
		return strings.Join(asStrings, "")
	}

	var asMixed []json.RawMessage
	if err := json.Unmarshal(raw, &asMixed); err == nil {
		var sb strings.Builder
		for _, elem := range asMixed {
			var s string
			var part contentPart
			if json.Unmarshal(elem, &s) == nil {
				sb.WriteString(s)
			} else if json.Unmarshal(elem, &part) == nil {
				sb.WriteString(part.Text)
			}
		}
		return sb.String()
	}

	return ""
}

// estimateTokens implements the hot-path heuristic from the original
// _estimate_tokens: sum the character count of every message's content and
// divide by 4, floored at 1 regardless of how small total_chars is.
func estimateTokens(messages []chatMessage) int64 {
	var totalChars int64
	for _, msg := range messages {
		totalChars += int64(len([]rune(extractContentText(msg.Content))))
	}
	tokens := totalChars / 4
	if tokens < 1 {
		tokens = 1
	}
	return tokens
}

// lastUserMessage returns the text content of the last message with
// role "user", or "Hello" if none is present, matching _build_mock_content.
func lastUserMessage(messages []chatMessage) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role != "user" {
			continue
		}
		if text := extractContentText(messages[i].Content); text != "" {
			return text
		}
	}
	return "Hello"
}

// truncateRunes truncates s to at most n runes, matching Python's s[:120]
// slicing (which operates on code points, not bytes).
func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

// buildMockContent synthesizes the assistant's reply, echoing the last user
// message truncated to 120 runes.
func buildMockContent(messages []chatMessage, completionTokens int64) string {
	excerpt := truncateRunes(lastUserMessage(messages), 120)
	return "Mock response (" + strconv.FormatInt(completionTokens, 10) + " tokens) to: " + excerpt
}
