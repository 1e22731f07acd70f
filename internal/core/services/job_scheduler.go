package services

import (
	"context"
	"errors"
	"log/slog"

	"github.com/manthysbr/gridjob/internal/core/domain"
	"golang.org/x/sync/semaphore"
)

// DispatcherConfig defines concurrency limits
type DispatcherConfig struct {
	MaxConcurrentSubmissions int64
	QueueSize                int
}

// QueuedSubmission pairs a ledger record with the descriptor it was built from
type QueuedSubmission struct {
	Submission domain.Submission
	Descriptor *domain.JobDescriptor
}

// ErrQueueFull is returned when the dispatcher cannot accept more work
var ErrQueueFull = errors.New("submission queue full")

// SubmissionDispatcher hands queued descriptors to the grid client with a
// bounded number of concurrent client invocations.
type SubmissionDispatcher struct {
	logger       *slog.Logger
	pendingQueue chan QueuedSubmission
	semaphore    *semaphore.Weighted
	limit        int64
}

func NewSubmissionDispatcher(logger *slog.Logger, cfg DispatcherConfig) *SubmissionDispatcher {
	limit := cfg.MaxConcurrentSubmissions
	if limit <= 0 {
		limit = 2
	}
	size := cfg.QueueSize
	if size <= 0 {
		size = 100
	}

	return &SubmissionDispatcher{
		logger:       logger,
		pendingQueue: make(chan QueuedSubmission, size),
		semaphore:    semaphore.NewWeighted(limit),
		limit:        limit,
	}
}

// Enqueue adds a submission to the dispatch queue
func (s *SubmissionDispatcher) Enqueue(q QueuedSubmission) error {
	select {
	case s.pendingQueue <- q:
		s.logger.Info("submission queued", "submission_id", q.Submission.ID, "request_name", q.Submission.RequestName)
		return nil
	default:
		return ErrQueueFull
	}
}

// Run consumes the queue until ctx is cancelled, running handler for each entry.
// It waits for in-flight handlers before returning.
func (s *SubmissionDispatcher) Run(ctx context.Context, handler func(context.Context, QueuedSubmission)) error {
	s.logger.Info("starting submission dispatcher")

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("stopping submission dispatcher")
			s.drain()
			return nil
		case q := <-s.pendingQueue:
			if err := s.semaphore.Acquire(ctx, 1); err != nil {
				s.logger.Warn("dispatcher stopped with submission pending", "submission_id", q.Submission.ID)
				s.drain()
				return nil
			}

			go func(q QueuedSubmission) {
				defer s.semaphore.Release(1)
				handler(ctx, q)
			}(q)
		}
	}
}

// drain waits for all in-flight handlers to release their slots
func (s *SubmissionDispatcher) drain() {
	// Acquiring the full weight blocks until every slot is released.
	_ = s.semaphore.Acquire(context.Background(), s.limit)
	s.semaphore.Release(s.limit)
}
