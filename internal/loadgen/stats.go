package loadgen

import "sync"

// Stats accumulates outcome counts for a load-generator run, mirroring the
// original load_client.py's Stats dataclass: per-node success/throttled
// breakdowns plus aggregate success/throttled/failed totals and the running
// sum of successful-request latency (for an average, not a distribution).
type Stats struct {
	mu sync.Mutex

	Success          int64            `json:"success"`
	Throttled        int64            `json:"throttled"`
	Failed           int64            `json:"failed"`
	TotalLatencySecs float64          `json:"-"`
	PerNodeSuccess   map[string]int64 `json:"per_node_success"`
	PerNodeThrottled map[string]int64 `json:"per_node_throttled"`
}

// NewStats returns an empty Stats ready for concurrent use.
func NewStats() *Stats {
	return &Stats{
		PerNodeSuccess:   make(map[string]int64),
		PerNodeThrottled: make(map[string]int64),
	}
}

// Record tallies one request's outcome. statusCode -1 marks a transport
// failure (connection refused, timeout, etc.), matching the Python client's
// sentinel for an httpx.HTTPError.
func (s *Stats) Record(node string, statusCode int, latencySecs float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch statusCode {
	case 200:
		s.Success++
		s.TotalLatencySecs += latencySecs
		s.PerNodeSuccess[node]++
	case 429:
		s.Throttled++
		s.PerNodeThrottled[node]++
	default:
		s.Failed++
	}
}

// Summary is the JSON-serializable view of a completed run, matching the
// shape of load_client.py's final print(json.dumps(...)).
type Summary struct {
	TotalRequests       int64            `json:"total_requests"`
	Success             int64            `json:"success"`
	Throttled           int64            `json:"throttled"`
	Failed              int64            `json:"failed"`
	SuccessAvgLatencyMS float64          `json:"success_avg_latency_ms"`
	PerNodeSuccess      map[string]int64 `json:"per_node_success"`
	PerNodeThrottled    map[string]int64 `json:"per_node_throttled"`
}

// Summarize reduces the accumulated counts to the final report.
func (s *Stats) Summarize() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	var avgMS float64
	if s.Success > 0 {
		avgMS = (s.TotalLatencySecs / float64(s.Success)) * 1000
	}

	return Summary{
		TotalRequests:       s.Success + s.Throttled + s.Failed,
		Success:             s.Success,
		Throttled:           s.Throttled,
		Failed:              s.Failed,
		SuccessAvgLatencyMS: roundTo2(avgMS),
		PerNodeSuccess:      s.PerNodeSuccess,
		PerNodeThrottled:    s.PerNodeThrottled,
	}
}

func roundTo2(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}
