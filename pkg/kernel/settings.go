package kernel

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/manthysbr/gridjob/internal/config"
	"github.com/manthysbr/gridjob/internal/core/domain"
)

// handleGetSettings returns the operator settings.
// GET /v1/settings
func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.settings.GetConfig())
}

// handleUpdateSettings merges the request body into the settings.
// PUT /v1/settings
func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var update domain.AppConfig
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid request body: "+err.Error()))
		return
	}

	if err := s.settings.UpdateConfig(r.Context(), &update); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, config.ErrInvalidSettings) {
			status = http.StatusBadRequest
		}
		writeError(w, status, err)
		return
	}

	writeJSON(w, http.StatusOK, s.settings.GetConfig())
}
