package ports

import (
	"context"

	"github.com/manthysbr/gridjob/internal/core/domain"
)

// Submitter abstracts the external grid submission client (CRAB).
type Submitter interface {
	// Submit hands the descriptor to the grid client.
	// Returns the client's output on success.
	Submit(ctx context.Context, d *domain.JobDescriptor) (string, error)
}

// DryRunner executes the wrapper locally on a single input unit.
type DryRunner interface {
	Run(ctx context.Context, d *domain.JobDescriptor) (domain.DryRunResult, error)
}

// Repository abstracts the persistent storage (DuckDB)
type Repository interface {
	// Submission ledger
	SaveSubmission(ctx context.Context, sub domain.Submission) error
	GetSubmission(ctx context.Context, id domain.SubmissionID) (domain.Submission, error)
	ListSubmissions(ctx context.Context) ([]domain.Submission, error)

	// Settings
	GetSetting(ctx context.Context, key string) (string, error)
	SaveSetting(ctx context.Context, key string, value string) error
}
