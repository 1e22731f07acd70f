package domain

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

type SubmissionID = uuid.UUID

type SubmissionStatus string

const (
	SubmissionStatusQueued    SubmissionStatus = "QUEUED"
	SubmissionStatusSubmitted SubmissionStatus = "SUBMITTED"
	SubmissionStatusFailed    SubmissionStatus = "FAILED"
)

// Submission records one handoff of a descriptor to the grid client
type Submission struct {
	ID          SubmissionID     `json:"id"`
	RequestName string           `json:"request_name"`
	Status      SubmissionStatus `json:"status"`
	TotalUnits  int              `json:"total_units"`
	Descriptor  json.RawMessage  `json:"descriptor,omitempty"`
	Output      *string          `json:"output,omitempty"` // client output on success
	Error       *string          `json:"error,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

var (
	ErrSubmissionNotFound = errors.New("submission not found")
	ErrNoInputUnits       = errors.New("descriptor has no input units")
)

// DryRunResult is the outcome of a local wrapper run
type DryRunResult struct {
	Input    string        `json:"input"`
	ExitCode int64         `json:"exit_code"`
	Logs     string        `json:"logs"`
	Duration time.Duration `json:"duration"`
}
