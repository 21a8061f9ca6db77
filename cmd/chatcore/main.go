package main

import (
	"chat-core/access"
	"chat-core/auth"
	"chat-core/errors"
	"chat-core/infrastructure/broker"
	"chat-core/infrastructure/gateway"
	"chat-core/infrastructure/storage"
	"chat-core/internal"
	"chat-core/observability"
	"chat-core/runtime"
	"chat-core/runtime/workers"
	"chat-core/services"
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Exit codes to provide meaningful status to the operating system or service manager (e.g., systemd).
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "chat-core terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run wires every component and blocks until a signal or a fatal error.
// Deferred closes run before the process exits.
func run() (int, error) {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	config, err := internal.Load()
	if err != nil {
		return exitConfig, err
	}

	charReplacement, err := internal.CharacterRune(config.CharReplacement)
	if err != nil {
		return exitConfig, err
	}

	logger := logs.GetLoggerFromString(config.LogLevel)
	ctx := context.Background()

	// 2. Storage (BadgerDB + Bluge)
	db, err := badger.Open(buildBadgerOpts(config, logger, ctx))
	if err != nil {
		return exitRuntime, fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		logger.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	index, err := storage.OpenSearchIndex(config.BlugeFilepath, logger)
	if err != nil {
		return exitRuntime, fmt.Errorf("failed to open search index: %w", err)
	}
	defer func() {
		logger.Info("Closing Bluge...")
		_ = index.Close()
	}()

	// 3. Metrics & realtime hub
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(registry)

	hub := runtime.NewHub(logger,
		runtime.WithMetrics(metrics),
		runtime.WithChannelBuffer(config.ChannelBufferSize),
		runtime.WithDeliveryTimeout(config.DeliveryTimeout),
	)

	// 4. Notifications leave the process through the broker when configured
	var publisher workers.NotificationPublisher = workers.LogPublisher{Log: logger}
	if config.AMQPURL != "" {
		amqpPublisher, err := broker.NewPublisher(config.AMQPURL, config.AMQPExchange, logger)
		if err != nil {
			return exitRuntime, fmt.Errorf("broker connection failed: %w", err)
		}
		defer func() {
			logger.Info("Closing broker connection...")
			_ = amqpPublisher.Close()
		}()
		publisher = amqpPublisher
	}

	// 5. Supervision & Orchestration
	supervisor := workers.NewSupervisor(logger, config.RestartInterval)
	orchestrator := runtime.NewOrchestrator(logger, supervisor, hub, publisher, metrics, runtime.OrchestratorConfig{
		BufferSize:      config.BufferSize,
		RelayTimeout:    config.SinkTimeout,
		MetricInterval:  config.MetricInterval,
		CharReplacement: charReplacement,
	})
	moderator, err := orchestrator.Prepare()
	if err != nil {
		return exitRuntime, fmt.Errorf("moderation setup failed: %w", err)
	}

	if logger.Enabled(ctx, slog.LevelDebug) {
		debugAddress := fmt.Sprintf("%s:%d", config.Host, config.DebugPort)
		logger.Info("Debug Badger inspector available", "url", fmt.Sprintf("http://localhost:%d/inspect", config.DebugPort))
		inspector := &http.Server{
			Addr: debugAddress,
			Handler: internal.NewInspectHandler(db, nil, func() map[string]any {
				health := orchestrator.Health()
				return map[string]any{"Uptime": health.Uptime, "Goroutines": health.Goroutines, "Channels": health.ActiveChannels}
			}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		orchestrator.Add(workers.NewHTTPServerWorker(logger, inspector, config.ShutdownTimeout))
	}

	// 6. Services & Gateway
	issuer, err := auth.NewTokenIssuer(config.JWTSecret, config.AuthTokenDuration)
	if err != nil {
		return exitConfig, err
	}
	limiter, err := gateway.NewRateLimiter(config.RateLimit, config.RateBurst, logger)
	if err != nil {
		return exitConfig, err
	}

	deps := services.Dependencies{
		Messages:      storage.NewMessageRepository(db, index, hub, logger, config.PageSize),
		Reactions:     storage.NewReactionRepository(db, logger),
		Notifications: storage.NewNotificationRepository(db, logger),
		Profiles:      storage.NewProfileRepository(db, logger),
		Access:        access.NewController(storage.NewRoomRepository(db, logger), logger),
		Hub:           hub,
		Moderator:     moderator,
		Notifier:      orchestrator.Notifier(),
		Metrics:       metrics,
	}
	options := services.Options{
		MaxSubscriptions: config.MaxSubscriptions,
		ProfileCacheSize: config.ProfileCacheSize,
		MessageCacheSize: config.MessageCacheSize,
		PageSize:         config.PageSize,
		MaxContentLength: config.MaxContentLength,
	}
	api, err := gateway.New(logger, deps, options, gateway.Config{
		Issuer:   issuer,
		Limiter:  limiter,
		Gatherer: registry,
		Health:   orchestrator.Health,
	})
	if err != nil {
		return exitRuntime, fmt.Errorf("gateway setup failed: %w", err)
	}
	defer api.Close()

	// 7. Context & Signals
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errChan := make(chan error, 2)

	go func() {
		logger.Info("Starting orchestrator...")
		if err := orchestrator.Start(ctx); err != nil {
			errChan <- fmt.Errorf("orchestrator error: %w", err)
		}
	}()

	address := config.Address()
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return exitRuntime, fmt.Errorf("failed to listen on %s: %w", address, err)
	}
	server := &http.Server{Handler: api.Router(), ReadHeaderTimeout: 10 * time.Second}

	go func() {
		logger.Info("Starting HTTP gateway", "address", address, "at", time.Now().UTC())
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("http server error: %w", err)
		}
	}()

	// 8. Wait for Stop or Error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-errChan:
		orchestrator.Stop()
		return exitRuntime, err
	}

	// 9. Final Cleanup (Graceful Shutdown)
	logger.Info("Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown incomplete", "error", err)
	}
	orchestrator.Stop()
	logger.Info("Program stopped cleanly")

	return exitOK, nil
}

func buildBadgerOpts(config internal.Config, logger *slog.Logger, ctx context.Context) badger.Options {
	options := badger.DefaultOptions(config.BadgerFilepath)

	if logger.Enabled(ctx, slog.LevelDebug) {
		options = options.WithLoggingLevel(badger.DEBUG).
			WithBypassLockGuard(true)
	} else {
		options = options.WithLoggingLevel(badger.WARNING)
	}

	return options
}
