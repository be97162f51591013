package loadgen

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStats_RecordClassifiesByStatusCode(t *testing.T) {
	s := NewStats()
	s.Record("node-a", 200, 0.01)
	s.Record("node-a", 429, 0.0)
	s.Record("node-b", 500, 0.0)
	s.Record("node-b", -1, 0.0)

	summary := s.Summarize()
	assert.Equal(t, int64(1), summary.Success)
	assert.Equal(t, int64(1), summary.Throttled)
	assert.Equal(t, int64(2), summary.Failed)
	assert.Equal(t, int64(4), summary.TotalRequests)
	assert.Equal(t, int64(1), summary.PerNodeSuccess["node-a"])
	assert.Equal(t, int64(1), summary.PerNodeThrottled["node-a"])
}

func TestStats_SummarizeAveragesOnlySuccesses(t *testing.T) {
	s := NewStats()
	s.Record("node-a", 200, 0.1)
	s.Record("node-a", 200, 0.3)

	summary := s.Summarize()
	assert.InDelta(t, 200.0, summary.SuccessAvgLatencyMS, 0.01)
}

func TestStats_SummarizeWithNoSuccessesIsZero(t *testing.T) {
	s := NewStats()
	s.Record("node-a", 500, 0)
	summary := s.Summarize()
	assert.Equal(t, 0.0, summary.SuccessAvgLatencyMS)
}
