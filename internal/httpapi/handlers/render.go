package handlers

import (
	"net/http"

	"vidhook/internal/httpkit"
	"vidhook/internal/pkg/errors"
	"vidhook/internal/worker"
)

type RenderRequest struct {
	VideoURL         string `json:"video_url"`
	TemplateImageURL string `json:"template_image_url"`
	Preset           string `json:"preset,omitempty"`
	// Text is accepted for compatibility and not used.
	Text string `json:"text,omitempty"`
}

// PostRender handles POST /render. ?mode=sync|background overrides the
// configured response mode.
//
// Background mode answers 200 {"success":true,"status":"accepted"} plus
// job_id and status_url, but only once the job holds a queue slot. A full
// queue or a draining server answers 503 with code UNAVAILABLE and nothing
// is recorded, so callers can retry.
func (h *Handler) PostRender(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()

	var req RenderRequest
	if err := httpkit.DecodeJSON(r, &req); err != nil {
		return errors.Validation("invalid json body")
	}

	mode, err := worker.ParseMode(r.URL.Query().Get("mode"), h.orch.DefaultMode())
	if err != nil {
		return err
	}

	base := h.publicBaseURL
	if base == "" {
		base = httpkit.BaseURL(r)
	}

	handle, err := h.orch.RenderJob(ctx, worker.Request{
		VideoURL:         req.VideoURL,
		TemplateImageURL: req.TemplateImageURL,
		Preset:           req.Preset,
		BaseURL:          base,
	}, mode)
	if err != nil {
		return err
	}

	if handle.Mode == worker.ModeBackground {
		httpkit.WriteJSON(w, http.StatusOK, map[string]any{
			"success":    true,
			"status":     "accepted",
			"job_id":     handle.Job.ID,
			"status_url": base + "/jobs/" + handle.Job.ID,
		})
		return nil
	}

	httpkit.WriteJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"output_url": handle.Job.OutputURL,
		"job_id":     handle.Job.ID,
	})
	return nil
}
