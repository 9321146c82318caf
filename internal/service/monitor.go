package service

import (
	"context"
	"log"
	"time"

	"github.com/docucast/api/internal/store"
)

// StaleMonitor periodically scans for jobs stuck in a non-terminal state
// past the grace period and logs them. Stuck jobs are reported, never
// resumed: a half-finished pipeline stage cannot be safely re-entered.
type StaleMonitor struct {
	store    store.Store
	grace    time.Duration
	interval time.Duration
}

func NewStaleMonitor(st store.Store, grace, interval time.Duration) *StaleMonitor {
	return &StaleMonitor{store: st, grace: grace, interval: interval}
}

// Run blocks until ctx is cancelled, scanning once per interval
func (m *StaleMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.scan(ctx)
		}
	}
}

func (m *StaleMonitor) scan(ctx context.Context) {
	cutoff := time.Now().Add(-m.grace)
	stale, err := m.store.ScanStale(ctx, cutoff)
	if err != nil {
		log.Printf("[StaleMonitor] Scan failed: %v", err)
		return
	}

	for _, job := range stale {
		log.Printf("[StaleMonitor] Job %s stuck in %s since %s (last update %s)",
			job.ID, job.Status, job.CreatedAt.Format(time.RFC3339), job.UpdatedAt.Format(time.RFC3339))
	}
}
