package workers

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

func freeAddress(t *testing.T) string {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()
	return listener.Addr().String()
}

func TestHTTPServerWorker_Serves_Until_Canceled(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	address := freeAddress(t)
	server := &http.Server{
		Addr: address,
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		}),
	}
	worker := NewHTTPServerWorker(log, server, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- worker.Run(ctx) }()

	// Given the server answers
	req.Eventually(func() bool {
		response, err := http.Get(fmt.Sprintf("http://%s/", address))
		if err != nil {
			return false
		}
		_ = response.Body.Close()
		return response.StatusCode == http.StatusNoContent
	}, 2*time.Second, 10*time.Millisecond)

	// When the context is canceled
	cancel()

	// Then the worker shuts the server down without error
	select {
	case err := <-done:
		req.NoError(err)
	case <-time.After(2 * time.Second):
		req.Fail("worker did not stop")
	}
}

func TestHTTPServerWorker_Reports_Listen_Failure(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	req.NoError(err)
	defer listener.Close()

	// Given the address is already taken
	worker := NewHTTPServerWorker(log, &http.Server{Addr: listener.Addr().String()}, time.Second)

	err = worker.Run(context.Background())
	req.Error(err)
}
