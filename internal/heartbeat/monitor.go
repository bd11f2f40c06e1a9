// Package heartbeat detects dead realtime connections via periodic probes.
package heartbeat

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/artpromedia/aivo-sub003/internal/registry"
)

const (
	defaultProbeInterval    = 30 * time.Second
	probeTimeoutMultiplier  = 3
	defaultGracePeriodScans = 1
)

// Prober sends a liveness probe frame to one connection. Implemented by the
// realtime gateway; probe failures are treated as silence, not faults.
type Prober interface {
	Probe(ctx context.Context, connID string) error
}

// Monitor is the sole writer of timeout-driven connection state transitions:
// ACTIVE connections that miss the probe window become STALE, and STALE
// connections with no further response are closed and evicted.
type Monitor struct {
	registry *registry.Registry
	prober   Prober
	logger   *zap.Logger

	interval     time.Duration
	probeTimeout time.Duration
	now          func() time.Time

	onEviction func(conn registry.Connection)
}

func NewMonitor(reg *registry.Registry, prober Prober, interval time.Duration, logger *zap.Logger) (*Monitor, error) {
	if interval <= 0 {
		interval = defaultProbeInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Monitor{
		registry:     reg,
		prober:       prober,
		logger:       logger,
		interval:     interval,
		probeTimeout: interval * probeTimeoutMultiplier,
		now:          time.Now,
	}, nil
}

// SetEvictionHook installs a callback invoked for every connection the
// monitor closes, after removal from the registry.
func (m *Monitor) SetEvictionHook(hook func(conn registry.Connection)) {
	m.onEviction = hook
}

// Start runs scan cycles until context cancellation.
func (m *Monitor) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.Scan(ctx)
		}
	}
}

// Scan runs one monitor cycle over every tracked connection.
func (m *Monitor) Scan(ctx context.Context) {
	now := m.now()

	for _, conn := range m.registry.Snapshot() {
		silentFor := now.Sub(conn.LastHeartbeatAt)

		switch conn.State {
		case registry.ConnActive:
			if silentFor >= m.probeTimeout {
				if err := m.registry.MarkStale(conn.ID); err != nil {
					continue
				}
				m.logger.Debug("connection marked stale",
					zap.String("connectionId", conn.ID),
					zap.String("userId", conn.UserID),
					zap.Duration("silentFor", silentFor),
				)
				continue
			}
			if m.prober != nil {
				if err := m.prober.Probe(ctx, conn.ID); err != nil {
					m.logger.Debug("probe send failed",
						zap.String("connectionId", conn.ID),
						zap.Error(err),
					)
				}
			}

		case registry.ConnConnecting:
			// A handshake that never completes still counts against the
			// probe window; no connection outlives its last activity by
			// more than a cycle.
			if silentFor < m.probeTimeout {
				continue
			}
			if err := m.registry.Close(conn.ID); err != nil {
				continue
			}
			m.logger.Info("connection evicted before handshake completed",
				zap.String("connectionId", conn.ID),
				zap.String("userId", conn.UserID),
			)
			if m.onEviction != nil {
				conn.State = registry.ConnClosed
				m.onEviction(conn)
			}

		case registry.ConnStale:
			// Grace period: one more full probe window beyond the stale cutoff.
			if silentFor < m.probeTimeout+m.interval*defaultGracePeriodScans {
				continue
			}
			if err := m.registry.Close(conn.ID); err != nil {
				continue
			}
			m.logger.Info("connection evicted after heartbeat timeout",
				zap.String("connectionId", conn.ID),
				zap.String("userId", conn.UserID),
				zap.String("deviceId", conn.DeviceID),
			)
			if m.onEviction != nil {
				conn.State = registry.ConnClosed
				m.onEviction(conn)
			}
		}
	}
}
