package ratelimit

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/redis/go-redis/v9"
)

// Store is the thin adapter to the shared coordinator. It registers
// the admission script once at startup and addresses it by its content
// hash thereafter; on a NOSCRIPT reply (the store restarted, or evicted its
// script cache) it re-registers and retries exactly once. Any other store
// error propagates to the caller, wrapped with %w.
//
// It wraps redis.UniversalClient rather than *redis.Client so the same code
// exercises a single node, a cluster, or (in tests) a miniredis instance.
type Store struct {
	client redis.UniversalClient
	sha    atomic.Pointer[string]
}

// NewStore creates a Store client around an already-configured redis
// connection. Call Initialize before the first Eval.
func NewStore(client redis.UniversalClient) *Store {
	return &Store{client: client}
}

// Initialize loads the admission script into the store and caches its SHA.
func (s *Store) Initialize(ctx context.Context) error {
	sha, err := s.client.ScriptLoad(ctx, luaScript).Result()
	if err != nil {
		return fmt.Errorf("load admission script: %w", err)
	}
	s.sha.Store(&sha)
	return nil
}

// Close releases the underlying store connection(s).
func (s *Store) Close() error {
	return s.client.Close()
}

// Eval runs the admission script against keys/args, re-registering and
// retrying exactly once on NOSCRIPT. It never falls back to a local
// decision: a store error that survives the retry propagates to the
// caller, who must treat it as a 5xx with no admission granted.
func (s *Store) Eval(ctx context.Context, keys []string, args ...any) ([]any, error) {
	shaPtr := s.sha.Load()
	if shaPtr == nil {
		if err := s.Initialize(ctx); err != nil {
			return nil, err
		}
		shaPtr = s.sha.Load()
	}

	result, err := s.client.EvalSha(ctx, *shaPtr, keys, args...).Result()
	if err == nil {
		return asSlice(result)
	}

	if !redis.HasErrorPrefix(err, "NOSCRIPT") {
		return nil, fmt.Errorf("eval admission script: %w", err)
	}

	if initErr := s.Initialize(ctx); initErr != nil {
		return nil, fmt.Errorf("re-register admission script after NOSCRIPT: %w", initErr)
	}
	shaPtr = s.sha.Load()

	result, err = s.client.EvalSha(ctx, *shaPtr, keys, args...).Result()
	if err != nil {
		return nil, fmt.Errorf("eval admission script after re-register: %w", err)
	}
	return asSlice(result)
}

func asSlice(result any) ([]any, error) {
	values, ok := result.([]any)
	if !ok {
		return nil, fmt.Errorf("unexpected admission script result type %T", result)
	}
	return values, nil
}
