package loadgen

import (
	"math/rand"

	"github.com/goccy/go-json"
)

// prompts mirrors load_client.py's PROMPTS pool: a handful of realistic
// chat requests to rotate through so the mock server's token heuristic sees
// varied content lengths.
var prompts = []string{
	"Explain the significance of distributed rate limiting in microservices.",
	"List three ways to optimize token usage when calling LLM APIs.",
	"Draft an email announcing a new AI assistant feature for our app.",
	"Summarize the latest sprint planning decisions in bullet points.",
	"Generate three creative marketing slogans for a coffee brand.",
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatPayload struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

// buildPayloadCache pre-generates size request bodies so workers spend
// their time on the network round trip rather than on JSON marshaling,
// matching load_client.py's build_payload_cache.
func buildPayloadCache(rng *rand.Rand, size int) [][]byte {
	if size < 1 {
		size = 1
	}
	cache := make([][]byte, size)
	for i := range cache {
		payload := chatPayload{
			Model: "gpt-4o-mini",
			Messages: []chatMessage{
				{Role: "system", Content: "You are a concise assistant."},
				{Role: "user", Content: prompts[rng.Intn(len(prompts))]},
			},
			MaxTokens:   32 + rng.Intn(256-32+1),
			Temperature: roundTo2(0.2 + rng.Float64()*0.8),
		}
		body, _ := json.Marshal(payload)
		cache[i] = body
	}
	return cache
}
