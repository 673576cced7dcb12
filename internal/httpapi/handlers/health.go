package handlers

import (
	"context"
	"net/http"
	"time"

	"vidhook/internal/httpkit"
)

// Liveness is the plain-text body of the root probe.
const Liveness = "Video Webhook API is running"

func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	httpkit.WriteText(w, http.StatusOK, Liveness)
}

// Health performs a health check of the service.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := h.log.FromContext(ctx)

	health := map[string]any{
		"status":  "ok",
		"service": "vidhook",
	}

	if r.URL.Query().Get("deep") == "true" {
		checks := h.deepHealthCheck(ctx)
		health["checks"] = checks

		for _, check := range checks {
			if check["status"] != "ok" {
				health["status"] = "degraded"
				log.Warn("health check degraded", "checks", checks)
				break
			}
		}
	}

	httpkit.WriteJSON(w, http.StatusOK, health)
}

func (h *Handler) deepHealthCheck(ctx context.Context) map[string]map[string]any {
	return map[string]map[string]any{
		"job_store": h.checkJobStore(ctx),
		"storage":   h.checkStorage(ctx),
	}
}

func (h *Handler) checkJobStore(ctx context.Context) map[string]any {
	start := time.Now()
	result := map[string]any{
		"status": "ok",
		"store":  h.store.Name(),
	}

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := h.store.Ping(checkCtx); err != nil {
		result["status"] = "error"
		result["error"] = err.Error()
	}

	result["latency_ms"] = time.Since(start).Milliseconds()
	return result
}

func (h *Handler) checkStorage(_ context.Context) map[string]any {
	// provider reachability is only proven by the next publish
	return map[string]any{
		"status":   "ok",
		"provider": h.sp.Provider(),
	}
}
