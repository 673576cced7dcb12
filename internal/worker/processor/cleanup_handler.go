package processor

import (
	"vidhook/internal/models"
	"vidhook/internal/pkg/logger"
	"vidhook/internal/worker/workspace"
)

type Cleanup struct {
	ws *workspace.Manager
}

func NewCleanup(ws *workspace.Manager) *Cleanup {
	return &Cleanup{ws: ws}
}

// CleanupJob removes the job's staging files. It runs on success and on
// failure, so a truncated download or render is never left behind.
func (c *Cleanup) CleanupJob(job *models.RenderJob, log *logger.Logger) {
	if err := c.ws.Discard(job.Paths); err != nil {
		// the sweeper retries later
		log.Warn("workspace cleanup failed", "error", err.Error())
	}
}
