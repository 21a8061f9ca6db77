package workers

import (
	"chat-core/observability"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// HealthMonitoringWorker samples process and realtime health on a fixed
// interval and keeps the latest snapshot for the health endpoint.
type HealthMonitoringWorker struct {
	mu             sync.Mutex
	log            *slog.Logger
	monitoring     *observability.MonitoringManager
	metricInterval time.Duration
	last           observability.MonitoringStats
}

func NewHealthMonitoringWorker(log *slog.Logger, monitoring *observability.MonitoringManager,
	metricInterval time.Duration) *HealthMonitoringWorker {
	if metricInterval <= 0 {
		metricInterval = 10 * time.Second
	}
	return &HealthMonitoringWorker{
		log:            log,
		monitoring:     monitoring,
		metricInterval: metricInterval,
	}
}

func (w *HealthMonitoringWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.metricInterval)
	defer ticker.Stop()
	w.sample(ctx)
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping health monitoring")
			return nil
		case <-ticker.C:
			w.sample(ctx)
		}
	}
}

// Last returns the most recent snapshot, zero before the first sample.
func (w *HealthMonitoringWorker) Last() observability.MonitoringStats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.last
}

func (w *HealthMonitoringWorker) sample(ctx context.Context) {
	stats := w.monitoring.Snapshot(ctx)
	w.mu.Lock()
	w.last = stats
	w.mu.Unlock()
	w.log.Debug(fmt.Sprintf("Health : %d goroutines, %d MB rss, %d channels in %d rooms",
		stats.Goroutines, stats.RSSMb, stats.ActiveChannels, stats.ActiveRooms))
}
