package relay

import (
	"context"
	"log/slog"
	"time"
)

// HeartbeatMonitor periodically sweeps the registry for silent peers.
type HeartbeatMonitor struct {
	registry *Registry
	interval time.Duration
	logger   *slog.Logger
	onSweep  func(ctx context.Context, evicted []string) // optional, runs after every sweep
}

// NewHeartbeatMonitor creates a monitor that sweeps registry every interval.
func NewHeartbeatMonitor(registry *Registry, interval time.Duration, logger *slog.Logger) *HeartbeatMonitor {
	return &HeartbeatMonitor{
		registry: registry,
		interval: interval,
		logger:   logger,
	}
}

// SweepOnce runs a single sweep at now.
func (m *HeartbeatMonitor) SweepOnce(ctx context.Context, now time.Time) []string {
	evicted := m.registry.Sweep(now)
	if len(evicted) > 0 {
		m.logger.Info("heartbeat_sweep",
			"evicted", len(evicted),
			"remaining", m.registry.Count(""),
		)
	}
	if m.onSweep != nil {
		m.onSweep(ctx, evicted)
	}
	return evicted
}

// Run sweeps on every tick until ctx is cancelled.
func (m *HeartbeatMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C:
			m.SweepOnce(ctx, now)
		case <-ctx.Done():
			return
		}
	}
}
