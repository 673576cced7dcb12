package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"vidhook/internal/httpkit"
	"vidhook/internal/models"
	"vidhook/internal/pkg/errors"
	"vidhook/internal/pkg/middleware"
	"vidhook/internal/ports"
)

type jobView struct {
	models.RenderJob
	// Error hides the stored cause; details stay in the logs.
	Error string `json:"error,omitempty"`
}

// GetJob reports the latest recorded state of a job.
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) error {
	jobID := chi.URLParam(r, "jobId")

	job, err := h.store.Get(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, ports.ErrJobNotFound) {
			return errors.NotFound("job", jobID)
		}
		return errors.Wrap(err, "handlers.jobs", "job lookup failed")
	}

	view := jobView{RenderJob: job}
	if job.State == models.StateFailed {
		view.Error = middleware.GenericFailure
	}
	httpkit.WriteJSON(w, http.StatusOK, map[string]any{"job": view})
	return nil
}
