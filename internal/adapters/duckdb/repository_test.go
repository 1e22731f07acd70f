package duckdb

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/manthysbr/gridjob/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepository_Submissions(t *testing.T) {
	repo, err := NewRepository(t.TempDir() + "/test.db")
	require.NoError(t, err)
	defer repo.Close()

	ctx := context.Background()

	// 1. Save Submission
	raw, err := json.Marshal(domain.NewJobDescriptor(domain.DefaultBuildConfig(), []string{"fileA.root"}))
	require.NoError(t, err)

	now := time.Now().UTC().Truncate(time.Microsecond)
	sub := domain.Submission{
		ID:          uuid.New(),
		RequestName: "trackPairEfficiency_wholeTracker_2023-03-14",
		Status:      domain.SubmissionStatusQueued,
		TotalUnits:  1,
		Descriptor:  raw,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	require.NoError(t, repo.SaveSubmission(ctx, sub))

	// 2. Get Submission
	fetched, err := repo.GetSubmission(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, sub.ID, fetched.ID)
	assert.Equal(t, sub.RequestName, fetched.RequestName)
	assert.Equal(t, domain.SubmissionStatusQueued, fetched.Status)
	assert.Equal(t, 1, fetched.TotalUnits)
	assert.JSONEq(t, string(raw), string(fetched.Descriptor))
	assert.Nil(t, fetched.Error)

	// 3. Update Submission
	out := "Success: Your task has been delivered to the prod CRAB3 server."
	sub.Status = domain.SubmissionStatusSubmitted
	sub.Output = &out
	sub.UpdatedAt = now.Add(time.Minute)
	require.NoError(t, repo.SaveSubmission(ctx, sub))

	fetched2, err := repo.GetSubmission(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SubmissionStatusSubmitted, fetched2.Status)
	require.NotNil(t, fetched2.Output)
	assert.Equal(t, out, *fetched2.Output)

	// 4. List Submissions
	subs, err := repo.ListSubmissions(ctx)
	require.NoError(t, err)
	assert.Len(t, subs, 1)
	assert.Equal(t, sub.ID, subs[0].ID)
}

func TestRepository_SubmissionNotFound(t *testing.T) {
	repo, err := NewRepository("")
	require.NoError(t, err)
	defer repo.Close()

	_, err = repo.GetSubmission(context.Background(), uuid.New())
	assert.ErrorIs(t, err, domain.ErrSubmissionNotFound)
}

func TestRepository_Settings(t *testing.T) {
	repo, err := NewRepository(t.TempDir() + "/settings.db")
	require.NoError(t, err)
	defer repo.Close()
	ctx := context.Background()

	_, err = repo.GetSetting(ctx, "app_config")
	assert.Error(t, err)

	require.NoError(t, repo.SaveSetting(ctx, "app_config", `{"storage_user":"a"}`))
	require.NoError(t, repo.SaveSetting(ctx, "app_config", `{"storage_user":"b"}`))

	got, err := repo.GetSetting(ctx, "app_config")
	require.NoError(t, err)
	assert.Equal(t, `{"storage_user":"b"}`, got)
}
