package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/blueberrycongee/ratelimiter/internal/keys"
)

// Engine is the decision engine: it derives the Redis key layout for an
// API key, evaluates the admission script through a Store, and translates
// the raw script result into an Outcome.
type Engine struct {
	store         *Store
	windowSeconds int64
	now           func() time.Time
	bypass        bool
}

// EngineConfig configures an Engine.
type EngineConfig struct {
	Store         *Store
	WindowSeconds int64

	// now, when set, overrides the wall clock. Intended for deterministic
	// tests only; left nil in production so time.Now is used.
	now func() time.Time
}

// NewEngine creates a decision engine bound to store, enforcing windows of
// windowSeconds.
func NewEngine(cfg EngineConfig) *Engine {
	nowFn := cfg.now
	if nowFn == nil {
		nowFn = time.Now
	}
	return &Engine{
		store:         cfg.Store,
		windowSeconds: cfg.WindowSeconds,
		now:           nowFn,
	}
}

// WithBypass returns a copy of the engine with the test-harness bypass
// switch enabled or disabled. It exists for test harnesses and is disabled
// by default; nothing in production configuration can turn it on.
func (e *Engine) WithBypass(enabled bool) *Engine {
	clone := *e
	clone.bypass = enabled
	return &clone
}

// CheckAndConsume performs one atomic admission for apiKey against limits.
// Negative token counts are clamped to 0. If allowed is false, no
// dimension's state has been mutated.
func (e *Engine) CheckAndConsume(ctx context.Context, apiKey string, limits keys.Limits, inputTokens, outputTokens int64) (Outcome, error) {
	if e.bypass {
		return Outcome{Allowed: true}, nil
	}

	inputTokens = clampNonNegative(inputTokens)
	outputTokens = clampNonNegative(outputTokens)

	nowMS := e.now().UnixMilli()
	ttl := e.windowSeconds + 5

	result, err := e.store.Eval(ctx, redisKeys(apiKey),
		e.windowSeconds, nowMS, limits.RPM, limits.InputTPM, limits.OutputTPM,
		inputTokens, outputTokens, ttl,
	)
	if err != nil {
		return Outcome{}, fmt.Errorf("check and consume for key: %w", err)
	}

	return parseOutcome(result)
}

// redisKeys returns the nine store keys for apiKey in the fixed order the
// Lua script expects: rpm(zset,hash,total), input(...), output(...).
func redisKeys(apiKey string) []string {
	prefix := "rl:" + apiKey
	return []string{
		prefix + ":rpm:z", prefix + ":rpm:h", prefix + ":rpm:total",
		prefix + ":input:z", prefix + ":input:h", prefix + ":input:total",
		prefix + ":output:z", prefix + ":output:h", prefix + ":output:total",
	}
}

func clampNonNegative(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}

func parseOutcome(result []any) (Outcome, error) {
	if len(result) != 5 {
		return Outcome{}, fmt.Errorf("unexpected admission result length %d", len(result))
	}

	allowed, err := toInt64(result[0])
	if err != nil {
		return Outcome{}, err
	}
	rpmUsage, err := toInt64(result[1])
	if err != nil {
		return Outcome{}, err
	}
	inputUsage, err := toInt64(result[2])
	if err != nil {
		return Outcome{}, err
	}
	outputUsage, err := toInt64(result[3])
	if err != nil {
		return Outcome{}, err
	}
	limitFlag, err := toInt64(result[4])
	if err != nil {
		return Outcome{}, err
	}

	return Outcome{
		Allowed:     allowed == 1,
		RPMUsage:    rpmUsage,
		InputUsage:  inputUsage,
		OutputUsage: outputUsage,
		LimitFlag:   Dimension(limitFlag),
	}, nil
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	default:
		return 0, fmt.Errorf("unexpected admission result element type %T", v)
	}
}
