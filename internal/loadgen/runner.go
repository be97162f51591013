// Package loadgen implements the load generator: an external stress
// tool that rotates across nodes and API keys, firing chat-completion
// requests for a fixed duration and reporting a success/throttled/failed
// summary. It is ported from the reference implementation's
// scripts/load_client.py, with Go goroutines standing in for the original's
// asyncio tasks (and Go's lightweight goroutines make the Python script's
// multiprocess fan-out unnecessary — see DESIGN.md).
package loadgen

import (
	"bytes"
	"context"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/blueberrycongee/ratelimiter/internal/httputil"
)

// Config configures a load-generator run.
type Config struct {
	Nodes            []string
	APIKeys          []string
	Duration         time.Duration
	Concurrency      int
	PayloadCacheSize int
	MaxConnections   int
}

// Runner drives one load-generator run against a fleet of rate limiter
// nodes.
type Runner struct {
	cfg    Config
	client *http.Client
}

// NewRunner builds a Runner whose HTTP client's connection pool is sized to
// cfg.MaxConnections, matching load_client.py's httpx.Limits tuning.
func NewRunner(cfg Config) *Runner {
	return &Runner{
		cfg: cfg,
		client: &http.Client{
			Timeout: 10 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        cfg.MaxConnections,
				MaxIdleConnsPerHost: cfg.MaxConnections,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// Run fires requests from cfg.Concurrency workers until cfg.Duration
// elapses and returns the aggregate Stats.
func (r *Runner) Run(ctx context.Context) *Stats {
	stats := NewStats()
	rng := rand.New(rand.NewSource(1))
	payloadCache := buildPayloadCache(rng, r.cfg.PayloadCacheSize)

	deadline := time.Now().Add(r.cfg.Duration)

	var wg sync.WaitGroup
	wg.Add(r.cfg.Concurrency)
	for i := 0; i < r.cfg.Concurrency; i++ {
		go func(seed int64) {
			defer wg.Done()
			r.worker(ctx, rand.New(rand.NewSource(seed)), payloadCache, deadline, stats)
		}(int64(i) + 1)
	}
	wg.Wait()

	return stats
}

func (r *Runner) worker(ctx context.Context, rng *rand.Rand, payloadCache [][]byte, deadline time.Time, stats *Stats) {
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return
		default:
		}

		node := r.cfg.Nodes[rng.Intn(len(r.cfg.Nodes))]
		apiKey := r.cfg.APIKeys[rng.Intn(len(r.cfg.APIKeys))]
		body := payloadCache[rng.Intn(len(payloadCache))]

		start := time.Now()
		statusCode := r.sendRequest(ctx, node, apiKey, body)
		latency := time.Since(start)

		stats.Record(node, statusCode, latency.Seconds())
	}
}

// sendRequest fires one request and returns its status code, or -1 on a
// transport-level failure (connection refused, timeout), matching
// load_client.py's status_code = -1 sentinel for httpx.HTTPError.
func (r *Runner) sendRequest(ctx context.Context, node, apiKey string, body []byte) int {
	url := strings.TrimRight(node, "/") + "/v1/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return -1
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := r.client.Do(req)
	if err != nil {
		return -1
	}
	defer func() { _ = resp.Body.Close() }()

	if _, err := httputil.ReadLimitedBody(resp.Body, httputil.DefaultMaxResponseBodyBytes); err != nil && err != httputil.ErrResponseBodyTooLarge {
		return -1
	}
	return resp.StatusCode
}
