// Package monitor watches host CPU utilization and triggers a restart
// action when it stays above a threshold.
package monitor

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
)

const defaultInterval = 10 * time.Second

// Sampler returns the current CPU utilization in percent (0-100).
type Sampler func(ctx context.Context) (float64, error)

// RestartFunc is invoked when utilization crosses the threshold.
type RestartFunc func(ctx context.Context) error

// CPUMonitor samples CPU utilization on an interval. At most one restart
// runs at a time; samples taken while one is in progress are skipped.
type CPUMonitor struct {
	threshold  float64
	interval   time.Duration
	sample     Sampler
	restart    RestartFunc
	restarting atomic.Bool
}

// Option configures a CPUMonitor.
type Option func(*CPUMonitor)

// WithSampler replaces the gopsutil sampler.
func WithSampler(s Sampler) Option {
	return func(m *CPUMonitor) { m.sample = s }
}

// New creates a monitor that calls restart once utilization exceeds
// threshold percent.
func New(threshold int, interval time.Duration, restart RestartFunc, opts ...Option) *CPUMonitor {
	if interval <= 0 {
		interval = defaultInterval
	}
	m := &CPUMonitor{
		threshold: float64(threshold),
		interval:  interval,
		sample:    HostCPU,
		restart:   restart,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// HostCPU reports utilization across all CPUs since the previous call.
func HostCPU(ctx context.Context) (float64, error) {
	pct, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return 0, err
	}
	if len(pct) == 0 {
		return 0, errors.New("no cpu sample")
	}
	return pct[0], nil
}

// Run samples until ctx is cancelled.
func (m *CPUMonitor) Run(ctx context.Context) {
	slog.Info("cpu monitor started", "threshold", m.threshold, "interval", m.interval)

	// Prime the sampler: the first gopsutil reading has no baseline.
	if _, err := m.sample(ctx); err != nil {
		slog.Debug("cpu monitor baseline sample failed", "error", err)
	}

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("cpu monitor stopped")
			return
		case <-ticker.C:
			m.Check(ctx)
		}
	}
}

// Check takes one sample and starts a restart if it is over threshold.
// It reports whether a restart was started.
func (m *CPUMonitor) Check(ctx context.Context) bool {
	if m.restarting.Load() {
		return false
	}

	usage, err := m.sample(ctx)
	if err != nil {
		slog.Warn("cpu sample failed", "error", err)
		return false
	}
	slog.Debug("cpu usage", "percent", usage)

	if usage <= m.threshold {
		return false
	}
	if !m.restarting.CompareAndSwap(false, true) {
		return false
	}

	slog.Warn("cpu over threshold, initiating restart", "percent", usage, "threshold", m.threshold)
	go func() {
		defer m.restarting.Store(false)
		if err := m.restart(ctx); err != nil {
			slog.Error("restart failed", "error", err)
			return
		}
		slog.Info("restart initiated")
	}()
	return true
}

// Restarting reports whether a restart is in progress.
func (m *CPUMonitor) Restarting() bool {
	return m.restarting.Load()
}
