package kernel

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/manthysbr/gridjob/internal/adapters/crab"
	"github.com/manthysbr/gridjob/internal/config"
	"github.com/manthysbr/gridjob/internal/core/domain"
	"github.com/manthysbr/gridjob/internal/core/ports"
	"github.com/manthysbr/gridjob/internal/core/services"
	"github.com/oapi-codegen/runtime"
	openapi_types "github.com/oapi-codegen/runtime/types"
)

type Server struct {
	logger      *slog.Logger
	submissions *services.SubmissionService
	settings    *config.SettingsStore
	dryRunner   ports.DryRunner // nil when no container runtime is available
}

func NewServer(
	logger *slog.Logger,
	submissions *services.SubmissionService,
	settings *config.SettingsStore,
	dryRunner ports.DryRunner,
) *Server {
	return &Server{
		logger:      logger,
		submissions: submissions,
		settings:    settings,
		dryRunner:   dryRunner,
	}
}

// Handler returns the http.Handler for the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/descriptor", s.handleGetDescriptor)
	mux.HandleFunc("GET /v1/descriptor/config", s.handleGetDescriptorConfig)
	mux.HandleFunc("POST /v1/dryrun", s.handleDryRun)

	mux.HandleFunc("GET /v1/submissions", s.handleListSubmissions)
	mux.HandleFunc("POST /v1/submissions", s.handleCreateSubmission)
	mux.HandleFunc("GET /v1/submissions/{id}", s.handleGetSubmission)

	mux.HandleFunc("GET /v1/settings", s.handleGetSettings)
	mux.HandleFunc("PUT /v1/settings", s.handleUpdateSettings)

	return mux
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

// handleGetDescriptor builds the descriptor from the current manifest.
// GET /v1/descriptor
func (s *Server) handleGetDescriptor(w http.ResponseWriter, r *http.Request) {
	d, err := s.submissions.Preview()
	if err != nil {
		s.logger.Error("failed to build descriptor", "error", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// handleGetDescriptorConfig renders the descriptor as a CRAB configuration file.
// GET /v1/descriptor/config
func (s *Server) handleGetDescriptorConfig(w http.ResponseWriter, r *http.Request) {
	d, err := s.submissions.Preview()
	if err != nil {
		s.logger.Error("failed to build descriptor", "error", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	var buf bytes.Buffer
	if err := crab.Render(&buf, d); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "text/x-python; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+crab.ConfigFileName(d)+`"`)
	w.Write(buf.Bytes())
}

// handleDryRun runs the wrapper locally on the first input unit.
// POST /v1/dryrun
func (s *Server) handleDryRun(w http.ResponseWriter, r *http.Request) {
	if s.dryRunner == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("dry run needs a container runtime"))
		return
	}

	d, err := s.submissions.Preview()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	result, err := s.dryRunner.Run(r.Context(), d)
	if err != nil {
		s.logger.Error("dry run failed", "error", err)
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleListSubmissions returns the submission ledger, newest first.
// GET /v1/submissions
func (s *Server) handleListSubmissions(w http.ResponseWriter, r *http.Request) {
	subs, err := s.submissions.ListSubmissions(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if subs == nil {
		subs = []domain.Submission{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"submissions": subs,
		"count":       len(subs),
	})
}

// handleCreateSubmission builds the descriptor and queues it for the grid client.
// POST /v1/submissions
func (s *Server) handleCreateSubmission(w http.ResponseWriter, r *http.Request) {
	sub, err := s.submissions.Submit(r.Context())
	switch {
	case errors.Is(err, services.ErrQueueFull):
		writeError(w, http.StatusServiceUnavailable, err)
		return
	case err != nil:
		s.logger.Error("failed to submit", "error", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusAccepted, sub)
}

// handleGetSubmission returns one ledger entry.
// GET /v1/submissions/{id}
func (s *Server) handleGetSubmission(w http.ResponseWriter, r *http.Request) {
	var id openapi_types.UUID
	err := runtime.BindStyledParameterWithOptions("simple", "id", r.PathValue("id"), &id, runtime.BindStyledParameterOptions{
		ParamLocation: runtime.ParamLocationPath,
		Explode:       false,
		Required:      true,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	sub, err := s.submissions.GetSubmission(r.Context(), id)
	if errors.Is(err, domain.ErrSubmissionNotFound) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}
