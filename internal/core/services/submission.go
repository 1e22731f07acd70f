package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/manthysbr/gridjob/internal/core/domain"
	"github.com/manthysbr/gridjob/internal/core/ports"
	"github.com/manthysbr/gridjob/internal/schema"
)

// SubmissionService builds descriptors, records them in the ledger and queues
// them for the grid client.
type SubmissionService struct {
	logger     *slog.Logger
	repo       ports.Repository
	dispatcher *SubmissionDispatcher

	mu        sync.RWMutex
	builder   *DescriptorBuilder
	submitter ports.Submitter
}

func NewSubmissionService(
	logger *slog.Logger,
	builder *DescriptorBuilder,
	repo ports.Repository,
	dispatcher *SubmissionDispatcher,
	submitter ports.Submitter,
) *SubmissionService {
	return &SubmissionService{
		logger:     logger,
		repo:       repo,
		dispatcher: dispatcher,
		builder:    builder,
		submitter:  submitter,
	}
}

// UpdateBuilder swaps the builder used for subsequent submissions.
func (s *SubmissionService) UpdateBuilder(b *DescriptorBuilder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.builder = b
}

// UpdateSubmitter swaps the grid client used for subsequent dispatches.
func (s *SubmissionService) UpdateSubmitter(sub ports.Submitter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submitter = sub
}

func (s *SubmissionService) currentBuilder() *DescriptorBuilder {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.builder
}

func (s *SubmissionService) currentSubmitter() ports.Submitter {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.submitter
}

// Preview builds and validates a descriptor without submitting it.
func (s *SubmissionService) Preview() (*domain.JobDescriptor, error) {
	d, err := s.currentBuilder().Build()
	if err != nil {
		return nil, err
	}
	if err := schema.Validate(d); err != nil {
		return nil, fmt.Errorf("descriptor failed validation: %w", err)
	}
	return d, nil
}

// Submit builds a descriptor, records it as queued and hands it to the dispatcher.
func (s *SubmissionService) Submit(ctx context.Context) (domain.Submission, error) {
	sub, d, err := s.record(ctx)
	if err != nil {
		return domain.Submission{}, err
	}

	if err := s.dispatcher.Enqueue(QueuedSubmission{Submission: sub, Descriptor: d}); err != nil {
		s.finish(ctx, &sub, "", err)
		return sub, err
	}
	return sub, nil
}

// SubmitAndWait records a submission and runs the grid client in the calling
// goroutine, returning the final record.
func (s *SubmissionService) SubmitAndWait(ctx context.Context) (domain.Submission, error) {
	sub, d, err := s.record(ctx)
	if err != nil {
		return domain.Submission{}, err
	}

	out, err := s.currentSubmitter().Submit(ctx, d)
	s.finish(ctx, &sub, out, err)
	return sub, err
}

// record builds and validates a descriptor and stores it as a queued submission.
func (s *SubmissionService) record(ctx context.Context) (domain.Submission, *domain.JobDescriptor, error) {
	d, err := s.Preview()
	if err != nil {
		return domain.Submission{}, nil, err
	}

	raw, err := json.Marshal(d)
	if err != nil {
		return domain.Submission{}, nil, fmt.Errorf("marshal descriptor: %w", err)
	}

	now := time.Now().UTC()
	sub := domain.Submission{
		ID:          uuid.New(),
		RequestName: d.RequestName(),
		Status:      domain.SubmissionStatusQueued,
		TotalUnits:  d.TotalUnits(),
		Descriptor:  raw,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.SaveSubmission(ctx, sub); err != nil {
		return domain.Submission{}, nil, fmt.Errorf("failed to record submission: %w", err)
	}
	return sub, d, nil
}

// Dispatch is the dispatcher handler: it runs the grid client and records the outcome.
func (s *SubmissionService) Dispatch(ctx context.Context, q QueuedSubmission) {
	sub := q.Submission
	s.logger.Info("submitting to grid", "submission_id", sub.ID, "request_name", sub.RequestName, "units", sub.TotalUnits)

	out, err := s.currentSubmitter().Submit(ctx, q.Descriptor)
	s.finish(ctx, &sub, out, err)
}

func (s *SubmissionService) finish(ctx context.Context, sub *domain.Submission, out string, err error) {
	sub.UpdatedAt = time.Now().UTC()
	if err != nil {
		msg := err.Error()
		sub.Status = domain.SubmissionStatusFailed
		sub.Error = &msg
		s.logger.Error("grid submission failed", "submission_id", sub.ID, "error", err)
	} else {
		sub.Status = domain.SubmissionStatusSubmitted
		sub.Output = &out
		s.logger.Info("grid submission accepted", "submission_id", sub.ID)
	}

	// The record must land even when the dispatcher is shutting down.
	if saveErr := s.repo.SaveSubmission(context.WithoutCancel(ctx), *sub); saveErr != nil {
		s.logger.Error("failed to update submission", "submission_id", sub.ID, "error", saveErr)
	}
}

func (s *SubmissionService) GetSubmission(ctx context.Context, id domain.SubmissionID) (domain.Submission, error) {
	return s.repo.GetSubmission(ctx, id)
}

func (s *SubmissionService) ListSubmissions(ctx context.Context) ([]domain.Submission, error) {
	return s.repo.ListSubmissions(ctx)
}
