package sandbox

import (
	"context"
	"os/exec"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/wonop-io/wonopcore/internal/bus"
)

const (
	defaultMemoryThreshold = 0.90
	defaultCPUThreshold    = 0.95
)

var (
	memoryUsageGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "wonopcore",
		Subsystem: "sandbox",
		Name:      "memory_used_bytes",
		Help:      "Sandbox container memory usage in bytes.",
	}, []string{"sandbox_id"})

	cpuUsageGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "wonopcore",
		Subsystem: "sandbox",
		Name:      "cpu_usage_percent",
		Help:      "Sandbox container CPU usage percentage.",
	}, []string{"sandbox_id"})
)

func init() {
	prometheus.MustRegister(memoryUsageGauge, cpuUsageGauge)
}

// ResourceMonitor periodically polls a container's resource usage via
// `docker stats` and publishes MemoryWarning/CpuWarning events when
// configured thresholds are exceeded, per §4.4.
type ResourceMonitor struct {
	sandboxID       string
	containerID     string
	bus             *bus.Bus
	memoryThreshold float64
	cpuThreshold    float64
	interval        time.Duration

	statsFn func(ctx context.Context, containerID string) (ContainerStats, error)
}

// NewResourceMonitor creates a monitor for containerID, publishing
// warnings on b with the default 90%/95% thresholds polled every 5s.
func NewResourceMonitor(sandboxID, containerID string, b *bus.Bus) *ResourceMonitor {
	return &ResourceMonitor{
		sandboxID:       sandboxID,
		containerID:     containerID,
		bus:             b,
		memoryThreshold: defaultMemoryThreshold,
		cpuThreshold:    defaultCPUThreshold,
		interval:        5 * time.Second,
		statsFn:         fetchDockerStats,
	}
}

// SetThresholds overrides the default 90%/95% memory/CPU thresholds.
func (m *ResourceMonitor) SetThresholds(memory, cpu float64) {
	m.memoryThreshold = memory
	m.cpuThreshold = cpu
}

// Run polls until ctx is cancelled.
func (m *ResourceMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.poll(ctx)
		}
	}
}

func (m *ResourceMonitor) poll(ctx context.Context) {
	stats, err := m.statsFn(ctx, m.containerID)
	if err != nil {
		return
	}

	memoryUsageGauge.WithLabelValues(m.sandboxID).Set(float64(stats.MemBytes))
	cpuUsageGauge.WithLabelValues(m.sandboxID).Set(stats.CPUPerc)

	if stats.MemLimit > 0 {
		fraction := float64(stats.MemBytes) / float64(stats.MemLimit)
		if fraction >= m.memoryThreshold && m.bus != nil {
			m.bus.Publish(bus.MemoryWarning{
				SandboxID:  m.sandboxID,
				UsedBytes:  stats.MemBytes,
				LimitBytes: stats.MemLimit,
				Fraction:   fraction,
			})
		}
	}

	if stats.CPUPerc/100.0 >= m.cpuThreshold && m.bus != nil {
		m.bus.Publish(bus.CpuWarning{SandboxID: m.sandboxID, Percent: stats.CPUPerc})
	}
}

func fetchDockerStats(ctx context.Context, containerID string) (ContainerStats, error) {
	cmd := exec.CommandContext(ctx, "docker", "stats", "--no-stream", "--format", "{{json .}}", containerID)
	out, err := cmd.Output()
	if err != nil {
		return ContainerStats{}, err
	}
	return ParseDockerStatsJSON(strings.TrimSpace(string(out)))
}
