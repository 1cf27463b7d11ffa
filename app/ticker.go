package app

import (
	"context"
	"time"

	"github.com/moontrade/backbone/coordinator"
	"github.com/moontrade/backbone/logger"
)

// runTicker is a background routine that logs the coordinator state every
// delay until ctx is done.
func runTicker(ctx context.Context, delay time.Duration, co *coordinator.Coordinator, log *logger.Logger) {
	t := time.NewTicker(delay)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
		s := co.Snapshot()
		log.Info(
			"executed", s.Totals.Executed,
			"malformed", s.Totals.Malformed,
			"active_pairs", len(s.ActivePairs),
			"queue", s.Queue,
			"paused", s.Backpressure.Paused,
			"latency_p50_ms", s.Latency.P50,
			"latency_p99_ms", s.Latency.P99,
			"stats",
		)
	}
}
