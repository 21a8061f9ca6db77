// Package runtime handles realtime delivery and the lifecycle of background
// workers. It orchestrates the system without containing business logic or
// domain rules.
package runtime

import (
	"chat-core/contract"
	"chat-core/moderation"
	"chat-core/observability"
	"chat-core/runtime/workers"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

type OrchestratorConfig struct {
	BufferSize      int
	RelayTimeout    time.Duration
	MetricInterval  time.Duration
	CharReplacement rune
}

// Orchestrator owns the process-wide pieces shared by every chat service:
// the moderator, the notification relay and the supervised workers.
type Orchestrator struct {
	mu         sync.Mutex
	log        *slog.Logger
	config     OrchestratorConfig
	supervisor contract.ISupervisor
	hub        *Hub
	relay      *workers.NotificationRelay
	health     *workers.HealthMonitoringWorker
	moderator  *moderation.Moderator
	extra      []contract.Worker
}

func NewOrchestrator(log *slog.Logger, supervisor contract.ISupervisor, hub *Hub,
	publisher workers.NotificationPublisher, metrics *observability.Metrics, config OrchestratorConfig) *Orchestrator {
	if config.CharReplacement == 0 {
		config.CharReplacement = moderation.DefaultCensoredChar
	}
	monitoring := observability.NewMonitoringManager(log, hub.Stats)
	return &Orchestrator{
		log:        log,
		config:     config,
		supervisor: supervisor,
		hub:        hub,
		relay:      workers.NewNotificationRelay(log, publisher, metrics, config.BufferSize, config.RelayTimeout),
		health:     workers.NewHealthMonitoringWorker(log, monitoring, config.MetricInterval),
	}
}

// Prepare loads the censored words and builds the Aho-Corasick automaton.
// It is called by Start when needed; calling it earlier lets the moderator
// be handed to services before the workers run.
func (o *Orchestrator) Prepare() (*moderation.Moderator, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.moderator != nil {
		return o.moderator, nil
	}

	data, err := moderation.NewCensoredLoader(nil).LoadAll(moderation.DefaultCensoredPath)
	if err != nil {
		return nil, err
	}
	o.log.Info(fmt.Sprintf("%d censored files loaded %v, %d unique words", len(data.Languages), data.Languages, len(data.Words)))

	moderator, err := moderation.NewModerator(data.Words, o.config.CharReplacement, o.log)
	if err != nil {
		return nil, err
	}
	o.moderator = &moderator
	return o.moderator, nil
}

// Notifier is the sink services hand stored notifications to.
func (o *Orchestrator) Notifier() contract.NotificationSink {
	return o.relay
}

// Health returns the latest health snapshot.
func (o *Orchestrator) Health() observability.MonitoringStats {
	return o.health.Last()
}

// Add registers extra workers, such as the HTTP server, started with the
// built-in ones.
func (o *Orchestrator) Add(w ...contract.Worker) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.extra = append(o.extra, w...)
}

// Start prepares the moderation then runs every worker under the supervisor.
// It blocks until the context is canceled or Stop is called.
func (o *Orchestrator) Start(ctx context.Context) error {
	if _, err := o.Prepare(); err != nil {
		return err
	}

	o.mu.Lock()
	o.supervisor.Add(o.relay, o.health)
	o.supervisor.Add(o.extra...)
	o.mu.Unlock()

	o.log.Info("Starting orchestrator and all supervised workers")
	o.supervisor.Run(ctx)
	return nil
}

// Stop cancels the supervised context. Start returns once every worker did.
func (o *Orchestrator) Stop() {
	o.log.Info("Requesting orchestrator shutdown")
	o.supervisor.Stop()
}
