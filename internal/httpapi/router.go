package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"

	"vidhook/internal/httpapi/handlers"
	"vidhook/internal/pkg/logger"
	"vidhook/internal/pkg/middleware"
	"vidhook/internal/ports"
	"vidhook/internal/worker"
)

// statusTimeout bounds the short lookup routes. /render and /output are
// left unbounded: a synchronous render and a large download both outlive it.
const statusTimeout = 10 * time.Second

type Deps struct {
	Orchestrator       *worker.Orchestrator
	Store              ports.JobStore
	SP                 ports.StorageProvider
	PublicBaseURL      string
	CORSAllowedOrigins []string
	Log                *logger.Logger
}

func NewRouter(d Deps) http.Handler {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logging(log))
	r.Use(middleware.Recovery(log))

	r.Use(cors.New(cors.Options{
		AllowedOrigins:   d.CORSAllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodHead, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization", middleware.RequestIDHeader},
		ExposedHeaders:   []string{middleware.RequestIDHeader},
		AllowCredentials: false,
		MaxAge:           600,
	}).Handler)

	h := handlers.New(handlers.Deps{
		Orchestrator:  d.Orchestrator,
		Store:         d.Store,
		SP:            d.SP,
		PublicBaseURL: d.PublicBaseURL,
		Log:           log,
	})
	wrap := func(fn middleware.ErrorHandlerFunc) http.HandlerFunc {
		return middleware.WrapHandler(h.Log(), fn)
	}

	// ---- HEALTH ----
	r.Get("/", h.Root)
	r.With(middleware.Timeout(statusTimeout)).Get("/health", h.Health)

	// ---- RENDER ----
	r.Post("/render", wrap(h.PostRender))
	r.Get("/output/{filename}", wrap(h.GetOutput))
	r.Head("/output/{filename}", wrap(h.GetOutput))

	// ---- JOBS ----
	r.With(middleware.Timeout(statusTimeout)).Get("/jobs/{jobId}", wrap(h.GetJob))

	return r
}
