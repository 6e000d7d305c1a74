package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"
)

// systemCollectInterval is how often the system gauges are refreshed.
const systemCollectInterval = 5 * time.Second

// SystemMetrics publishes host resource usage alongside the execution
// counters so saturation of the runner host is visible next to its workload.
type SystemMetrics struct {
	CPUUsage   prometheus.Gauge
	MemoryUsed prometheus.Gauge
	DiskUsed   prometheus.Gauge
}

// NewSystemMetrics registers the system gauges.
func NewSystemMetrics() *SystemMetrics {
	return &SystemMetrics{
		CPUUsage: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "runbox_system_cpu_usage_percent",
			Help: "Total CPU usage percentage across all cores",
		}),
		MemoryUsed: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "runbox_system_memory_used_bytes",
			Help: "Total used memory in bytes",
		}),
		DiskUsed: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "runbox_system_disk_used_bytes",
			Help: "Total disk usage in bytes for the root filesystem",
		}),
	}
}

// Collect starts a goroutine refreshing the gauges until ctx is cancelled.
func (m *SystemMetrics) Collect(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(systemCollectInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			cpuPercent, _ := cpu.Percent(0, false)
			if len(cpuPercent) > 0 {
				m.CPUUsage.Set(cpuPercent[0])
			}

			if vmStat, err := mem.VirtualMemory(); err == nil {
				m.MemoryUsed.Set(float64(vmStat.Used))
			}

			if diskStat, err := disk.Usage("/"); err == nil {
				m.DiskUsed.Set(float64(diskStat.Used))
			}
		}
	}()
}
