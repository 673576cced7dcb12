package handlers

import (
	"vidhook/internal/pkg/logger"
	"vidhook/internal/ports"
	"vidhook/internal/worker"
)

type Deps struct {
	Orchestrator *worker.Orchestrator
	Store        ports.JobStore
	SP           ports.StorageProvider
	// PublicBaseURL overrides the request-derived base of output URLs.
	PublicBaseURL string
	Log           *logger.Logger
}

type Handler struct {
	orch          *worker.Orchestrator
	store         ports.JobStore
	sp            ports.StorageProvider
	publicBaseURL string
	log           *logger.Logger
}

func New(d Deps) *Handler {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	return &Handler{
		orch:          d.Orchestrator,
		store:         d.Store,
		sp:            d.SP,
		publicBaseURL: d.PublicBaseURL,
		log:           log.WithComponent("http"),
	}
}

// Log is the handler logger, for wrapping error-returning handlers.
func (h *Handler) Log() *logger.Logger { return h.log }
