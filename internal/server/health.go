package server

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const probeTimeout = 15 * time.Second

// Check is one dependency the service reports on.
type Check struct {
	Name  string
	Probe func(ctx context.Context) bool
}

// HealthMonitor drives gRPC serving status from periodic dependency probes.
// Each check is published under its own service name; "" is SERVING only
// when every check passes.
type HealthMonitor struct {
	hs       *health.Server
	logger   *slog.Logger
	interval time.Duration
	checks   []Check
}

func NewHealthMonitor(hs *health.Server, logger *slog.Logger, interval time.Duration, checks ...Check) *HealthMonitor {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &HealthMonitor{hs: hs, logger: logger, interval: interval, checks: checks}
}

// Run probes immediately and then on every tick until ctx is done.
func (m *HealthMonitor) Run(ctx context.Context) {
	m.ProbeOnce(ctx)
	t := time.NewTicker(m.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			m.ProbeOnce(ctx)
		}
	}
}

// ProbeOnce runs every check and publishes the results.
func (m *HealthMonitor) ProbeOnce(ctx context.Context) bool {
	all := true
	for _, c := range m.checks {
		pctx, cancel := context.WithTimeout(ctx, probeTimeout)
		ok := c.Probe(pctx)
		cancel()

		st := healthpb.HealthCheckResponse_SERVING
		if !ok {
			st = healthpb.HealthCheckResponse_NOT_SERVING
			all = false
			m.logger.Warn("health.check.failed", "check", c.Name)
		}
		m.hs.SetServingStatus(c.Name, st)
	}
	overall := healthpb.HealthCheckResponse_SERVING
	if !all {
		overall = healthpb.HealthCheckResponse_NOT_SERVING
	}
	m.hs.SetServingStatus("", overall)
	return all
}
