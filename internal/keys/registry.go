// Package keys implements the API-key registry: a read-mostly map from
// API key to its three rate-limit dimensions, loaded from a YAML document.
package keys

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Limits holds the immutable per-key quota configuration. A limit of 0 means
// the dimension is disabled and can never be the reason a request is
// rejected.
type Limits struct {
	APIKey    string
	RPM       int64
	InputTPM  int64
	OutputTPM int64
}

// document mirrors the expected YAML shape:
//
//	keys:
//	  sk-abc123:
//	    request_per_minute: 60
//	    input_tokens_per_minute: 10000
//	    output_tokens_per_minute: 5000
type document struct {
	Keys map[string]keyEntry `yaml:"keys"`
}

type keyEntry struct {
	RequestsPerMinute     *int64 `yaml:"request_per_minute"`
	InputTokensPerMinute  *int64 `yaml:"input_tokens_per_minute"`
	OutputTokensPerMinute *int64 `yaml:"output_tokens_per_minute"`
}

// Registry is an immutable snapshot of the key configuration. Build a new
// one with Load and swap it into a Manager; Registry itself has no mutable
// state and needs no locking.
type Registry struct {
	limits map[string]Limits
}

// Load reads and parses the key registry file at path. It fails fast on a
// missing file, malformed YAML, a missing required field, or a non-integer
// value.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read api keys file %q: %w", path, err)
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse api keys file %q: %w", path, err)
	}

	limits := make(map[string]Limits, len(doc.Keys))
	for apiKey, entry := range doc.Keys {
		parsed, err := entry.toLimits(apiKey)
		if err != nil {
			return nil, fmt.Errorf("api key %q: %w", apiKey, err)
		}
		limits[apiKey] = parsed
	}

	return &Registry{limits: limits}, nil
}

func (e keyEntry) toLimits(apiKey string) (Limits, error) {
	if e.RequestsPerMinute == nil {
		return Limits{}, fmt.Errorf("missing request_per_minute")
	}
	if e.InputTokensPerMinute == nil {
		return Limits{}, fmt.Errorf("missing input_tokens_per_minute")
	}
	if e.OutputTokensPerMinute == nil {
		return Limits{}, fmt.Errorf("missing output_tokens_per_minute")
	}
	if *e.RequestsPerMinute < 0 || *e.InputTokensPerMinute < 0 || *e.OutputTokensPerMinute < 0 {
		return Limits{}, fmt.Errorf("limits must be non-negative")
	}
	return Limits{
		APIKey:    apiKey,
		RPM:       *e.RequestsPerMinute,
		InputTPM:  *e.InputTokensPerMinute,
		OutputTPM: *e.OutputTokensPerMinute,
	}, nil
}

// Lookup returns the limits for an API key and whether it is registered.
func (r *Registry) Lookup(apiKey string) (Limits, bool) {
	if r == nil {
		return Limits{}, false
	}
	l, ok := r.limits[apiKey]
	return l, ok
}

// All returns every configured key's limits. The caller must not mutate the
// returned slice's backing data beyond its own use.
func (r *Registry) All() []Limits {
	if r == nil {
		return nil
	}
	out := make([]Limits, 0, len(r.limits))
	for _, l := range r.limits {
		out = append(out, l)
	}
	return out
}

// Count returns the number of configured keys.
func (r *Registry) Count() int {
	if r == nil {
		return 0
	}
	return len(r.limits)
}
