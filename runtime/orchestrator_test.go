package runtime

import (
	"chat-core/domain"
	"chat-core/mocks"
	"chat-core/runtime/workers"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/mock/gomock"
)

func TestOrchestrator_Runs_Workers_Until_Stopped(t *testing.T) {
	defer goleak.VerifyNone(t)
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctrl := gomock.NewController(t)

	extra := mocks.NewMockWorker(ctrl)
	extra.EXPECT().Run(gomock.Any()).Return(nil).Times(1)

	hub := newTestHub()
	o := NewOrchestrator(log, workers.NewSupervisor(log, 0), hub, workers.LogPublisher{Log: log}, nil,
		OrchestratorConfig{BufferSize: 4, RelayTimeout: time.Second, MetricInterval: 10 * time.Millisecond})
	o.Add(extra)

	done := make(chan error)
	go func() { done <- o.Start(context.Background()) }()

	// Then the health worker samples and the relay accepts notifications
	req.Eventually(func() bool { return o.Health().Goroutines > 0 }, time.Second, 5*time.Millisecond)
	o.Notifier().Notify(context.Background(), domain.Notification{ID: uuid.New(), UserID: "bob"})

	o.Stop()
	select {
	case err := <-done:
		req.NoError(err)
	case <-time.After(time.Second):
		req.Fail("orchestrator should have stopped")
	}
}

func TestOrchestrator_Prepare_Builds_Moderator_Once(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	o := NewOrchestrator(log, workers.NewSupervisor(log, 0), newTestHub(), workers.LogPublisher{Log: log}, nil,
		OrchestratorConfig{CharReplacement: '#'})

	first, err := o.Prepare()
	req.NoError(err)
	second, err := o.Prepare()
	req.NoError(err)
	req.Same(first, second)

	censored, words := first.Censor("what the fuck")
	req.Equal("what the ####", censored)
	req.Equal([]string{"fuck"}, words)
}
