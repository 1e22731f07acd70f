package duckdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/manthysbr/gridjob/internal/core/domain"
	"github.com/manthysbr/gridjob/internal/core/ports"
	_ "github.com/marcboeker/go-duckdb"
)

const schema = `
CREATE TABLE IF NOT EXISTS submissions (
	id VARCHAR PRIMARY KEY,
	request_name VARCHAR NOT NULL,
	status VARCHAR NOT NULL,
	total_units INTEGER NOT NULL,
	descriptor VARCHAR,
	output VARCHAR,
	error VARCHAR,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS settings (
	key VARCHAR PRIMARY KEY,
	value VARCHAR NOT NULL
);
`

type Repository struct {
	db *sql.DB
}

// NewRepository opens (or creates) the DuckDB database at path.
// An empty path opens an in-memory database.
func NewRepository(path string) (*Repository, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open duckdb: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}
	return &Repository{db: db}, nil
}

// Ensure Repository implements Repository interface
var _ ports.Repository = (*Repository)(nil)

func (r *Repository) Close() error {
	return r.db.Close()
}

func (r *Repository) SaveSubmission(ctx context.Context, sub domain.Submission) error {
	query := `
	INSERT INTO submissions (id, request_name, status, total_units, descriptor, output, error, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (id) DO UPDATE SET
		status = excluded.status,
		output = excluded.output,
		error = excluded.error,
		updated_at = excluded.updated_at;
	`

	_, err := r.db.ExecContext(ctx, query,
		sub.ID.String(), sub.RequestName, string(sub.Status), sub.TotalUnits,
		string(sub.Descriptor), sub.Output, sub.Error,
		sub.CreatedAt, sub.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save submission: %w", err)
	}
	return nil
}

const selectSubmission = `SELECT id, request_name, status, total_units, descriptor, output, error, created_at, updated_at FROM submissions`

type scanner interface {
	Scan(dest ...any) error
}

func scanSubmission(row scanner) (domain.Submission, error) {
	var sub domain.Submission
	var idStr, statusStr string
	var descriptor sql.NullString

	if err := row.Scan(&idStr, &sub.RequestName, &statusStr, &sub.TotalUnits, &descriptor, &sub.Output, &sub.Error, &sub.CreatedAt, &sub.UpdatedAt); err != nil {
		return domain.Submission{}, err
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		return domain.Submission{}, fmt.Errorf("invalid submission id %q: %w", idStr, err)
	}
	sub.ID = id
	sub.Status = domain.SubmissionStatus(statusStr)
	if descriptor.Valid && descriptor.String != "" {
		sub.Descriptor = []byte(descriptor.String)
	}
	return sub, nil
}

func (r *Repository) GetSubmission(ctx context.Context, id domain.SubmissionID) (domain.Submission, error) {
	row := r.db.QueryRowContext(ctx, selectSubmission+` WHERE id = ?`, id.String())
	sub, err := scanSubmission(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Submission{}, domain.ErrSubmissionNotFound
	}
	return sub, err
}

func (r *Repository) ListSubmissions(ctx context.Context) ([]domain.Submission, error) {
	rows, err := r.db.QueryContext(ctx, selectSubmission+` ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	subs := []domain.Submission{}
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

func (r *Repository) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("setting %q not found", key)
	}
	return value, err
}

func (r *Repository) SaveSetting(ctx context.Context, key string, value string) error {
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO settings (key, value) VALUES (?, ?)
	ON CONFLICT (key) DO UPDATE SET value = excluded.value;
	`, key, value)
	return err
}
