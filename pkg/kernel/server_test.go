package kernel

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/manthysbr/gridjob/internal/adapters/duckdb"
	appconfig "github.com/manthysbr/gridjob/internal/config"
	"github.com/manthysbr/gridjob/internal/core/domain"
	"github.com/manthysbr/gridjob/internal/core/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockSubmitter struct {
	mock.Mock
}

func (m *MockSubmitter) Submit(ctx context.Context, d *domain.JobDescriptor) (string, error) {
	args := m.Called(ctx, d)
	return args.String(0), args.Error(1)
}

type MockDryRunner struct {
	mock.Mock
}

func (m *MockDryRunner) Run(ctx context.Context, d *domain.JobDescriptor) (domain.DryRunResult, error) {
	args := m.Called(ctx, d)
	return args.Get(0).(domain.DryRunResult), args.Error(1)
}

type testEnv struct {
	server    *httptest.Server
	submitter *MockSubmitter
	dryRunner *MockDryRunner
}

func newTestEnv(t *testing.T, manifestLines ...string) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	repo, err := duckdb.NewRepository(t.TempDir() + "/e2e.db")
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	manifest := filepath.Join(t.TempDir(), "manifest.txt")
	if manifestLines != nil {
		require.NoError(t, os.WriteFile(manifest, []byte(strings.Join(manifestLines, "\n")+"\n"), 0644))
	}

	cfg := domain.DefaultBuildConfig()
	cfg.Manifest = manifest
	builder := services.NewDescriptorBuilder(logger, cfg)

	settings, err := appconfig.NewSettingsStore(logger, repo)
	require.NoError(t, err)

	submitter := new(MockSubmitter)
	dryRunner := new(MockDryRunner)
	dispatcher := services.NewSubmissionDispatcher(logger, services.DispatcherConfig{MaxConcurrentSubmissions: 1})
	svc := services.NewSubmissionService(logger, builder, repo, dispatcher, submitter)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- dispatcher.Run(ctx, svc.Dispatch) }()

	srv := httptest.NewServer(NewServer(logger, svc, settings, dryRunner).Handler())
	t.Cleanup(func() {
		srv.Close()
		cancel()
		<-done
	})

	return &testEnv{server: srv, submitter: submitter, dryRunner: dryRunner}
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestServer_GetDescriptor(t *testing.T) {
	env := newTestEnv(t, "fileA.root", "fileB.root")

	resp, err := http.Get(env.server.URL + "/v1/descriptor")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body := decode[map[string]map[string]any](t, resp)
	assert.EqualValues(t, 2, body["data"]["total_units"])
	assert.Equal(t, "trackPairEfficiency_wholeTracker_2023-03-14", body["general"]["request_name"])
}

func TestServer_GetDescriptor_MissingManifest(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Get(env.server.URL + "/v1/descriptor")
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	body := decode[map[string]string](t, resp)
	assert.Contains(t, body["error"], "no such file")
}

func TestServer_GetDescriptorConfig(t *testing.T) {
	env := newTestEnv(t, "fileA.root")

	resp, err := http.Get(env.server.URL + "/v1/descriptor/config")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/x-python")
	buf := new(strings.Builder)
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "config.Data.totalUnits = 1")
}

func TestServer_E2E_SubmitAndGet(t *testing.T) {
	env := newTestEnv(t, "fileA.root", "fileB.root")
	env.submitter.On("Submit", mock.Anything, mock.Anything).Return("Success: task delivered", nil)

	// 1. Submit
	resp, err := http.Post(env.server.URL+"/v1/submissions", "application/json", nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	created := decode[domain.Submission](t, resp)
	assert.Equal(t, domain.SubmissionStatusQueued, created.Status)
	assert.Equal(t, 2, created.TotalUnits)

	// 2. Poll until dispatched
	var got domain.Submission
	require.Eventually(t, func() bool {
		resp, err := http.Get(env.server.URL + "/v1/submissions/" + created.ID.String())
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK || json.NewDecoder(resp.Body).Decode(&got) != nil {
			return false
		}
		return got.Status == domain.SubmissionStatusSubmitted
	}, 5*time.Second, 20*time.Millisecond)
	require.NotNil(t, got.Output)
	assert.Equal(t, "Success: task delivered", *got.Output)

	// 3. List
	resp, err = http.Get(env.server.URL + "/v1/submissions")
	require.NoError(t, err)
	list := decode[struct {
		Submissions []domain.Submission `json:"submissions"`
		Count       int                 `json:"count"`
	}](t, resp)
	assert.Equal(t, 1, list.Count)
	assert.Equal(t, created.ID, list.Submissions[0].ID)
}

func TestServer_GetSubmission_BadAndUnknownID(t *testing.T) {
	env := newTestEnv(t, "fileA.root")

	resp, err := http.Get(env.server.URL + "/v1/submissions/not-a-uuid")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Get(env.server.URL + "/v1/submissions/" + uuid.New().String())
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_DryRun(t *testing.T) {
	env := newTestEnv(t, "fileA.root", "fileB.root")
	env.dryRunner.On("Run", mock.Anything, mock.Anything).Return(domain.DryRunResult{Input: "fileA.root", ExitCode: 0, Logs: "done"}, nil)

	resp, err := http.Post(env.server.URL+"/v1/dryrun", "application/json", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	result := decode[domain.DryRunResult](t, resp)
	assert.Equal(t, "fileA.root", result.Input)
	env.dryRunner.AssertExpectations(t)
}

func TestServer_Settings(t *testing.T) {
	env := newTestEnv(t, "fileA.root")

	req, err := http.NewRequest(http.MethodPut, env.server.URL+"/v1/settings", strings.NewReader(`{"storage_user":"someoneelse"}`))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	updated := decode[domain.AppConfig](t, resp)
	assert.Equal(t, "someoneelse", updated.StorageUser)

	req, err = http.NewRequest(http.MethodPut, env.server.URL+"/v1/settings", strings.NewReader(`{"submitter":{"max_concurrent":-3}}`))
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Get(env.server.URL + "/v1/settings")
	require.NoError(t, err)
	current := decode[domain.AppConfig](t, resp)
	assert.Equal(t, "someoneelse", current.StorageUser)
}
