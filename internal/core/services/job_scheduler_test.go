package services

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/manthysbr/gridjob/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func queued() QueuedSubmission {
	return QueuedSubmission{Submission: domain.Submission{ID: uuid.New(), RequestName: "req"}}
}

func TestSubmissionDispatcher_ConcurrencyLimit(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	dispatcher := NewSubmissionDispatcher(logger, DispatcherConfig{MaxConcurrentSubmissions: 2})

	var running, peak int32
	var wg sync.WaitGroup

	total := 5
	wg.Add(total)

	handler := func(ctx context.Context, q QueuedSubmission) {
		current := atomic.AddInt32(&running, 1)
		for {
			max := atomic.LoadInt32(&peak)
			if current <= max || atomic.CompareAndSwapInt32(&peak, max, current) {
				break
			}
		}

		time.Sleep(50 * time.Millisecond)
		atomic.AddInt32(&running, -1)
		wg.Done()
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- dispatcher.Run(ctx, handler) }()

	for i := 0; i < total; i++ {
		require.NoError(t, dispatcher.Enqueue(queued()))
	}

	wg.Wait()
	cancel()
	require.NoError(t, <-done)

	p := atomic.LoadInt32(&peak)
	assert.LessOrEqual(t, p, int32(2), "Should not exceed max concurrency")
	assert.Greater(t, p, int32(0))
}

func TestSubmissionDispatcher_QueueFull(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	dispatcher := NewSubmissionDispatcher(logger, DispatcherConfig{QueueSize: 1})

	require.NoError(t, dispatcher.Enqueue(queued()))
	assert.ErrorIs(t, dispatcher.Enqueue(queued()), ErrQueueFull)
}

func TestSubmissionDispatcher_WaitsForInFlight(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	dispatcher := NewSubmissionDispatcher(logger, DispatcherConfig{MaxConcurrentSubmissions: 1})

	started := make(chan struct{})
	var finished atomic.Bool
	handler := func(ctx context.Context, q QueuedSubmission) {
		close(started)
		time.Sleep(50 * time.Millisecond)
		finished.Store(true)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- dispatcher.Run(ctx, handler) }()

	require.NoError(t, dispatcher.Enqueue(queued()))
	<-started
	cancel()

	require.NoError(t, <-done)
	assert.True(t, finished.Load())
}
