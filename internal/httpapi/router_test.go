package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vidhook/internal/adapters/jobstore/memory"
	"vidhook/internal/adapters/storage/localfs"
	"vidhook/internal/pkg/logger"
	"vidhook/internal/worker"
	"vidhook/internal/worker/fetcher"
	"vidhook/internal/worker/filtergraph"
	"vidhook/internal/worker/processor"
	"vidhook/internal/worker/renderer"
	"vidhook/internal/worker/workspace"
)

type app struct {
	api    *httptest.Server
	origin *httptest.Server
	ws     *workspace.Manager
	out    *localfs.LocalFS
	orch   *worker.Orchestrator
}

func concatEngine() renderer.Engine {
	return renderer.NewFuncEngine("concat", func(_ context.Context, inv renderer.Invocation, _ func(renderer.Progress)) error {
		var data []byte
		for _, in := range inv.Inputs {
			b, err := os.ReadFile(in)
			if err != nil {
				return err
			}
			data = append(data, b...)
		}
		return os.WriteFile(inv.Output, data, 0o644)
	})
}

func newApp(t *testing.T, engine renderer.Engine) *app {
	t.Helper()
	root := t.TempDir()
	log := logger.Discard()

	ws, err := workspace.New(root)
	require.NoError(t, err)
	out, err := localfs.New(filepath.Join(root, "output"))
	require.NoError(t, err)
	store := memory.New(time.Hour)

	mux := http.NewServeMux()
	mux.HandleFunc("/video.mp4", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("0123456789")) })
	mux.HandleFunc("/bg.png", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("PNG")) })
	origin := httptest.NewServer(mux)
	t.Cleanup(origin.Close)

	proc := processor.New(processor.Deps{
		Workspace:     ws,
		Fetcher:       fetcher.New(fetcher.Options{Timeout: 5 * time.Second, Log: log}),
		Engine:        engine,
		SP:            out,
		Store:         store,
		Graph:         filtergraph.DefaultParams(),
		FetchTimeout:  5 * time.Second,
		RenderTimeout: 5 * time.Second,
		Log:           log,
	})
	orch := worker.New(worker.Deps{
		Processor:     proc,
		Store:         store,
		Log:           log,
		DefaultMode:   worker.ModeSync,
		MaxConcurrent: 2,
		QueueSize:     8,
	})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = orch.Run(ctx) }()

	api := httptest.NewServer(NewRouter(Deps{
		Orchestrator:       orch,
		Store:              store,
		SP:                 out,
		CORSAllowedOrigins: []string{"http://localhost:5173"},
		Log:                log,
	}))
	t.Cleanup(api.Close)

	return &app{api: api, origin: origin, ws: ws, out: out, orch: orch}
}

func (a *app) render(t *testing.T, query, body string) (int, map[string]any) {
	t.Helper()
	res, err := http.Post(a.api.URL+"/render"+query, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer res.Body.Close()

	var out map[string]any
	require.NoError(t, json.NewDecoder(res.Body).Decode(&out))
	return res.StatusCode, out
}

func (a *app) body(videoPath string) string {
	return `{"video_url":"` + a.origin.URL + videoPath + `","template_image_url":"` + a.origin.URL + `/bg.png","text":"ignored"}`
}

func dirEntries(t *testing.T, dir string) []os.DirEntry {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	return entries
}

func TestRoot(t *testing.T) {
	a := newApp(t, concatEngine())
	res, err := http.Get(a.api.URL + "/")
	require.NoError(t, err)
	defer res.Body.Close()

	b, _ := io.ReadAll(res.Body)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "Video Webhook API is running", string(b))
}

func TestRenderValidation(t *testing.T) {
	a := newApp(t, concatEngine())

	for _, body := range []string{`{}`, `{"video_url":"http://x/v.mp4"}`, `{"template_image_url":"http://x/i.png"}`} {
		status, out := a.render(t, "", body)
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, "video_url and template_image_url are required", out["error"])
	}

	status, out := a.render(t, "", `not json`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "invalid json body", out["error"])

	status, _ = a.render(t, "?mode=eventually", a.body("/video.mp4"))
	assert.Equal(t, http.StatusBadRequest, status)

	// nothing touched the disk
	assert.Empty(t, dirEntries(t, a.ws.Dir()))
	assert.Empty(t, dirEntries(t, a.out.Root()))
}

func TestRenderSyncAndServeOutput(t *testing.T) {
	a := newApp(t, concatEngine())

	status, out := a.render(t, "", a.body("/video.mp4"))
	require.Equal(t, http.StatusOK, status, out)
	assert.Equal(t, true, out["success"])

	outputURL, _ := out["output_url"].(string)
	require.True(t, strings.HasPrefix(outputURL, a.api.URL+"/output/"), outputURL)
	assert.True(t, strings.HasSuffix(outputURL, "-output.mp4"))

	res, err := http.Get(outputURL)
	require.NoError(t, err)
	b, _ := io.ReadAll(res.Body)
	res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "video/mp4", res.Header.Get("Content-Type"))
	assert.Equal(t, "0123456789PNG", string(b))

	req, _ := http.NewRequest(http.MethodGet, outputURL, nil)
	req.Header.Set("Range", "bytes=0-3")
	res, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	b, _ = io.ReadAll(res.Body)
	res.Body.Close()
	assert.Equal(t, http.StatusPartialContent, res.StatusCode)
	assert.Equal(t, "0123", string(b))

	assert.Empty(t, dirEntries(t, a.ws.Dir()))
}

func TestRenderSyncFetch404(t *testing.T) {
	a := newApp(t, concatEngine())

	status, out := a.render(t, "", a.body("/missing.mp4"))
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "Processing failed", out["error"])
	assert.NotContains(t, out, "output_url")

	assert.Empty(t, dirEntries(t, a.out.Root()))
	assert.Empty(t, dirEntries(t, a.ws.Dir()))
}

func TestRenderEngineMissingBinary(t *testing.T) {
	a := newApp(t, renderer.NewFFmpegEngine(filepath.Join(t.TempDir(), "no-such-ffmpeg"), logger.Discard()))

	status, out := a.render(t, "", a.body("/video.mp4"))
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "Processing failed", out["error"])

	// the server is still up
	res, err := http.Get(a.api.URL + "/health")
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)
}

func TestRenderBackgroundAndPoll(t *testing.T) {
	a := newApp(t, concatEngine())

	status, out := a.render(t, "?mode=background", a.body("/video.mp4"))
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, out["success"])
	assert.Equal(t, "accepted", out["status"])

	statusURL, _ := out["status_url"].(string)
	require.Equal(t, a.api.URL+"/jobs/"+out["job_id"].(string), statusURL)

	var job map[string]any
	require.Eventually(t, func() bool {
		res, err := http.Get(statusURL)
		if err != nil {
			return false
		}
		defer res.Body.Close()
		var body struct {
			Job map[string]any `json:"job"`
		}
		if json.NewDecoder(res.Body).Decode(&body) != nil {
			return false
		}
		job = body.Job
		return job["state"] == "COMPLETED"
	}, 5*time.Second, 20*time.Millisecond)

	assert.Contains(t, job["output_url"], "/output/")
}

func TestRenderBackgroundFailureIsGeneric(t *testing.T) {
	a := newApp(t, concatEngine())

	_, out := a.render(t, "?mode=background", a.body("/missing.mp4"))
	statusURL := out["status_url"].(string)

	require.Eventually(t, func() bool {
		res, err := http.Get(statusURL)
		if err != nil {
			return false
		}
		defer res.Body.Close()
		var body struct {
			Job map[string]any `json:"job"`
		}
		_ = json.NewDecoder(res.Body).Decode(&body)
		return body.Job["state"] == "FAILED" && body.Job["error"] == "Processing failed"
	}, 5*time.Second, 20*time.Millisecond)
}

func TestNotFound(t *testing.T) {
	a := newApp(t, concatEngine())

	for _, path := range []string{"/jobs/job_unknown", "/output/nope.mp4", "/output/..%2Fsecret"} {
		res, err := http.Get(a.api.URL + path)
		require.NoError(t, err)
		res.Body.Close()
		assert.Equal(t, http.StatusNotFound, res.StatusCode, path)
	}
}

func TestHealthDeep(t *testing.T) {
	a := newApp(t, concatEngine())

	res, err := http.Get(a.api.URL + "/health?deep=true")
	require.NoError(t, err)
	defer res.Body.Close()

	var body struct {
		Status string                    `json:"status"`
		Checks map[string]map[string]any `json:"checks"`
	}
	require.NoError(t, json.NewDecoder(res.Body).Decode(&body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, "memory", body.Checks["job_store"]["store"])
	assert.Equal(t, "localfs", body.Checks["storage"]["provider"])
}

func TestCORSPreflight(t *testing.T) {
	a := newApp(t, concatEngine())

	req, _ := http.NewRequest(http.MethodOptions, a.api.URL+"/render", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	res.Body.Close()

	assert.Equal(t, "http://localhost:5173", res.Header.Get("Access-Control-Allow-Origin"))
}

func TestRequestIDHeader(t *testing.T) {
	a := newApp(t, concatEngine())
	res, err := http.Get(a.api.URL + "/health")
	require.NoError(t, err)
	res.Body.Close()
	assert.Len(t, res.Header.Get("X-Request-ID"), 32)
}

func TestRenderBackgroundRefusedWhileShuttingDown(t *testing.T) {
	a := newApp(t, concatEngine())
	require.NoError(t, a.orch.Drain(context.Background()))

	status, body := a.render(t, "?mode=background", a.body("/video.mp4"))

	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, "UNAVAILABLE", body["code"])
	assert.Equal(t, "Processing failed", body["error"])
	assert.Nil(t, body["success"])
}
