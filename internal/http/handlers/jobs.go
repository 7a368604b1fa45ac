package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"taleweaver/internal/domain"
)

// GetJob returns job status and progress for polling.
func (a *App) GetJob(w http.ResponseWriter, r *http.Request) {
	job, err := a.Service.GetJob(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "job not found")
			return
		}
		a.Logger.Error().Err(err).Msg("handlers: get job failed")
		a.error(w, http.StatusInternalServerError, "internal error")
		return
	}
	a.json(w, http.StatusOK, jobToResponse(job))
}
