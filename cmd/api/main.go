package main

import (
	"context"
	"net/http"
	"time"

	"vidhook/internal/config"
	"vidhook/internal/httpapi"
	"vidhook/internal/pkg/logger"
	"vidhook/internal/pkg/shutdown"
	"vidhook/internal/storage"
	"vidhook/internal/worker"
	"vidhook/internal/worker/fetcher"
	"vidhook/internal/worker/filtergraph"
	"vidhook/internal/worker/processor"
	"vidhook/internal/worker/renderer"
	"vidhook/internal/worker/workspace"
)

func main() {
	bootLog := logger.NewDefault()

	cfg, err := config.Load()
	if err != nil {
		bootLog.LogFatal("invalid configuration", err)
	}

	log := logger.New(logger.Config{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		AddSource:   cfg.Log.AddSource,
		ServiceName: "vidhook",
	})

	log.Info("starting vidhook",
		"response_mode", cfg.ResponseMode,
		"engine", cfg.Render.Engine,
		"job_store", cfg.Jobs.Store,
		"storage_provider", cfg.Storage.Provider,
	)

	ctx := context.Background()

	shutdownMgr := shutdown.NewManager(log, 30*time.Second)

	// Staging directory: created once here, fatal if impossible
	ws, err := workspace.New(cfg.StorageRoot)
	if err != nil {
		log.LogFatal("failed to prepare workspace", err, "storage_root", cfg.StorageRoot)
	}
	log.Info("workspace ready", "dir", ws.Dir())

	// Output storage provider
	sp, err := storage.NewProvider(ctx, cfg)
	if err != nil {
		log.LogFatal("failed to initialize storage provider", err)
	}
	log.Info("storage provider initialized", "provider", sp.Provider())

	// Job status store
	store, err := storage.NewJobStore(ctx, cfg)
	if err != nil {
		log.LogFatal("failed to open job store", err, "store", cfg.Jobs.Store)
	}
	log.Info("job store opened", "store", store.Name())

	// Closed last: every step below may still write job records
	shutdownMgr.Register("job-store", func(ctx context.Context) error {
		return store.Close()
	})

	// Background loops stop when runCtx is canceled
	runCtx, stopRun := context.WithCancel(ctx)

	sweeper := worker.NewSweeper(ws, store, cfg.Jobs.SweepInterval.Duration, cfg.Jobs.Retention.Duration, log)
	sweepDone := make(chan struct{})
	go func() {
		defer close(sweepDone)
		sweeper.Run(runCtx)
	}()
	shutdownMgr.Register("sweeper", func(ctx context.Context) error {
		stopRun()
		select {
		case <-sweepDone:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	// Render engine
	var engine renderer.Engine
	switch cfg.Render.Engine {
	case config.EngineHTTP:
		engine = renderer.NewHTTPEngine(cfg.Render.RendererBaseURL, cfg.Render.Timeout.Duration, log)
	default:
		engine = renderer.NewFFmpegEngine(cfg.Render.FFmpegBin, log)
	}

	preset, err := filtergraph.ParsePreset(cfg.Render.Preset)
	if err != nil {
		log.LogFatal("invalid render preset", err)
	}

	proc := processor.New(processor.Deps{
		Workspace: ws,
		Fetcher: fetcher.New(fetcher.Options{
			Timeout:  cfg.Fetch.Timeout.Duration,
			MaxBytes: cfg.Fetch.MaxBytes,
			Log:      log,
		}),
		Engine: engine,
		SP:     sp,
		Store:  store,
		Graph: filtergraph.Params{
			Preset:     preset,
			Width:      cfg.Render.Width,
			Height:     cfg.Render.Height,
			Contrast:   cfg.Render.Contrast,
			Saturation: cfg.Render.Saturation,
			PadColor:   cfg.Render.PadColor,
		},
		FetchTimeout:  cfg.Fetch.Timeout.Duration,
		RenderTimeout: cfg.Render.Timeout.Duration,
		Log:           log,
	})

	orch := worker.New(worker.Deps{
		Processor:     proc,
		Store:         store,
		Log:           log,
		DefaultMode:   worker.Mode(cfg.ResponseMode),
		MaxConcurrent: cfg.Render.MaxConcurrent,
		QueueSize:     cfg.Render.QueueSize,
	})
	go func() {
		_ = orch.Run(runCtx)
	}()
	shutdownMgr.Register("dispatcher", func(ctx context.Context) error {
		log.Info("draining background jobs")
		return orch.Drain(ctx)
	})

	router := httpapi.NewRouter(httpapi.Deps{
		Orchestrator:       orch,
		Store:              store,
		SP:                 sp,
		PublicBaseURL:      cfg.PublicBaseURL,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		Log:                log,
	})

	// No WriteTimeout: synchronous renders hold the response open for as
	// long as RENDER_TIMEOUT allows.
	server := &http.Server{
		Addr:              "0.0.0.0:" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	shutdownMgr.Register("http-server", func(ctx context.Context) error {
		log.Info("shutting down HTTP server")
		return server.Shutdown(ctx)
	})

	go func() {
		log.Info("HTTP server listening",
			"addr", server.Addr,
			"port", cfg.Port,
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.LogFatal("HTTP server failed", err)
		}
	}()

	if err := shutdownMgr.Wait(ctx); err != nil {
		log.LogFatal("unclean shutdown", err)
	}
}
