package metrics

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Reporter tallies admission outcomes with lock-free counters and flushes
// them once a second to the structured log, mirroring the original
// _metrics_reporter coroutine's snapshot-and-reset loop. Each Record call
// also increments the matching Prometheus counter immediately.
type Reporter struct {
	success   atomic.Int64
	throttled atomic.Int64
	failed    atomic.Int64

	serviceName string
	logger      *slog.Logger
}

// ReporterConfig configures a Reporter.
type ReporterConfig struct {
	ServiceName string
	Logger      *slog.Logger
}

// NewReporter creates a Reporter. Call Run in its own goroutine to start
// the periodic flush.
func NewReporter(cfg ReporterConfig) *Reporter {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Reporter{serviceName: cfg.ServiceName, logger: logger}
}

// RecordSuccess records an admitted request.
func (r *Reporter) RecordSuccess() {
	r.success.Add(1)
	AdmissionOutcomes.WithLabelValues("success").Inc()
}

// RecordThrottled records a rejected (quota-exceeded) request.
func (r *Reporter) RecordThrottled() {
	r.throttled.Add(1)
	AdmissionOutcomes.WithLabelValues("throttled").Inc()
}

// RecordFailed records a request that failed due to a store error.
func (r *Reporter) RecordFailed() {
	r.failed.Add(1)
	AdmissionOutcomes.WithLabelValues("failed").Inc()
}

// Run blocks, flushing the counters once a second until ctx is cancelled.
// Losing the in-flight tally on crash is acceptable; the reporter is
// best-effort.
func (r *Reporter) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.flush()
		}
	}
}

func (r *Reporter) flush() {
	success := r.success.Swap(0)
	throttled := r.throttled.Swap(0)
	failed := r.failed.Swap(0)

	total := success + throttled + failed
	if total == 0 {
		return
	}
	r.logger.Info("throughput report",
		"node", r.serviceName,
		"throughput", total,
		"success", success,
		"throttled", throttled,
		"failed", failed,
	)
}
