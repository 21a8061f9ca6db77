package observability

import (
	"context"
	"log/slog"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/process"
)

// MonitoringStats is the health snapshot served to operators.
type MonitoringStats struct {
	Uptime         string  `json:"uptime"`
	Goroutines     int     `json:"goroutines"`
	AllocMemMb     uint64  `json:"alloc_mem_mb"`
	NumGC          uint32  `json:"num_gc"`
	RSSMb          uint64  `json:"rss_mb"`
	CPUPercent     float64 `json:"cpu_percent"`
	ActiveChannels int     `json:"active_channels"`
	ActiveRooms    int     `json:"active_rooms"`
}

// RealtimeStats reports the live channel and room counts.
type RealtimeStats func() (channels, rooms int)

type MonitoringManager struct {
	log      *slog.Logger
	started  time.Time
	realtime RealtimeStats
}

func NewMonitoringManager(log *slog.Logger, realtime RealtimeStats) *MonitoringManager {
	return &MonitoringManager{log: log, started: time.Now(), realtime: realtime}
}

// Snapshot collects runtime and process metrics. Process metrics are best
// effort: a failure to read them is logged and leaves the fields at zero.
func (mm *MonitoringManager) Snapshot(ctx context.Context) MonitoringStats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	stats := MonitoringStats{
		Uptime:     time.Since(mm.started).Truncate(time.Second).String(),
		Goroutines: runtime.NumGoroutine(),
		AllocMemMb: m.Alloc / 1024 / 1024,
		NumGC:      m.NumGC,
	}

	if mm.realtime != nil {
		stats.ActiveChannels, stats.ActiveRooms = mm.realtime()
	}

	p, err := process.NewProcessWithContext(ctx, int32(os.Getpid()))
	if err != nil {
		mm.log.Debug("Process metrics unavailable", "error", err)
		return stats
	}
	if mem, err := p.MemoryInfoWithContext(ctx); err == nil && mem != nil {
		stats.RSSMb = mem.RSS / 1024 / 1024
	}
	if cpu, err := p.CPUPercentWithContext(ctx); err == nil {
		stats.CPUPercent = cpu
	}
	return stats
}
