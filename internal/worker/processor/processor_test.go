package processor

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vidhook/internal/adapters/jobstore/memory"
	"vidhook/internal/adapters/storage/localfs"
	"vidhook/internal/models"
	"vidhook/internal/pkg/errors"
	"vidhook/internal/pkg/logger"
	"vidhook/internal/ports"
	"vidhook/internal/worker/fetcher"
	"vidhook/internal/worker/filtergraph"
	"vidhook/internal/worker/renderer"
	"vidhook/internal/worker/workspace"
)

// recordingStore remembers every state it was asked to save.
type recordingStore struct {
	*memory.Store
	mu     sync.Mutex
	states []models.State
}

func (r *recordingStore) Save(ctx context.Context, job models.RenderJob) error {
	r.mu.Lock()
	r.states = append(r.states, job.State)
	r.mu.Unlock()
	return r.Store.Save(ctx, job)
}

type failingProvider struct{ ports.StorageProvider }

func (failingProvider) PutObject(context.Context, ports.PutObjectInput) (ports.PutObjectOutput, error) {
	return ports.PutObjectOutput{}, io.ErrShortWrite
}

type harness struct {
	ws     *workspace.Manager
	out    *localfs.LocalFS
	store  *recordingStore
	origin *httptest.Server
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	root := t.TempDir()

	ws, err := workspace.New(root)
	require.NoError(t, err)
	out, err := localfs.New(filepath.Join(root, "output"))
	require.NoError(t, err)

	mux := http.NewServeMux()
	mux.HandleFunc("/video.mp4", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("video")) })
	mux.HandleFunc("/bg.png", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("png")) })
	// sends a few bytes, then hangs until the client goes away
	mux.HandleFunc("/stall.mp4", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "1000")
		_, _ = w.Write([]byte("abc"))
		w.(http.Flusher).Flush()
		select {
		case <-r.Context().Done():
		case <-time.After(10 * time.Second):
		}
	})
	origin := httptest.NewServer(mux)
	t.Cleanup(origin.Close)

	return &harness{
		ws:     ws,
		out:    out,
		store:  &recordingStore{Store: memory.New(time.Hour)},
		origin: origin,
	}
}

// copyEngine "renders" by concatenating the inputs into the output.
func copyEngine() renderer.Engine {
	return renderer.NewFuncEngine("copy", func(_ context.Context, inv renderer.Invocation, emit func(renderer.Progress)) error {
		var data []byte
		for _, in := range inv.Inputs {
			b, err := os.ReadFile(in)
			if err != nil {
				return err
			}
			data = append(data, b...)
		}
		emit(renderer.Progress{Frame: 1})
		return os.WriteFile(inv.Output, data, 0o644)
	})
}

func (h *harness) processor(engine renderer.Engine, sp ports.StorageProvider) *Processor {
	if sp == nil {
		sp = h.out
	}
	return New(Deps{
		Workspace:     h.ws,
		Fetcher:       fetcher.New(fetcher.Options{Timeout: 5 * time.Second, Log: logger.Discard()}),
		Engine:        engine,
		SP:            sp,
		Store:         h.store,
		Graph:         filtergraph.DefaultParams(),
		FetchTimeout:  5 * time.Second,
		RenderTimeout: 5 * time.Second,
		Log:           logger.Discard(),
	})
}

func (h *harness) job(videoPath string) *models.RenderJob {
	j := models.NewRenderJob(h.origin.URL+videoPath, h.origin.URL+"/bg.png")
	j.BaseURL = "http://api.test"
	return j
}

func assertDirEmpty(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "expected %s to be empty", dir)
}

func TestProcessJobSuccess(t *testing.T) {
	h := newHarness(t)
	job := h.job("/video.mp4")

	require.NoError(t, h.processor(copyEngine(), nil).ProcessJob(context.Background(), job))

	assert.Equal(t, models.StateCompleted, job.State)
	assert.Equal(t, job.ID+"-output.mp4", job.OutputKey)
	assert.Equal(t, "http://api.test/output/"+job.ID+"-output.mp4", job.OutputURL)

	published, err := os.ReadFile(filepath.Join(h.out.Root(), job.OutputKey))
	require.NoError(t, err)
	assert.Equal(t, "videopng", string(published))

	assertDirEmpty(t, h.ws.Dir())
	assert.Equal(t, []models.State{
		models.StateFetching, models.StateBuilding, models.StateRendering, models.StateCompleted,
	}, h.store.states)

	saved, err := h.store.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StateCompleted, saved.State)
}

func TestProcessJobFetch404(t *testing.T) {
	h := newHarness(t)
	job := h.job("/missing.mp4")

	err := h.processor(copyEngine(), nil).ProcessJob(context.Background(), job)

	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeFetch))
	assert.Equal(t, models.StateFailed, job.State)
	assert.NotEmpty(t, job.Error)
	assert.Equal(t, []models.State{models.StateFetching, models.StateFailed}, h.store.states)

	assertDirEmpty(t, h.out.Root())
	assertDirEmpty(t, h.ws.Dir())
}

func TestProcessJobRenderFailure(t *testing.T) {
	h := newHarness(t)
	job := h.job("/video.mp4")

	broken := renderer.NewFuncEngine("broken", func(_ context.Context, inv renderer.Invocation, _ func(renderer.Progress)) error {
		_ = os.WriteFile(inv.Output, []byte("truncated"), 0o644)
		return errors.RenderFailed(io.ErrUnexpectedEOF, errors.ReasonProcessing)
	})
	err := h.processor(broken, nil).ProcessJob(context.Background(), job)

	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeRender))
	assert.Equal(t, models.StateFailed, job.State)
	assert.Equal(t, models.StateRendering, h.store.states[len(h.store.states)-2])

	assertDirEmpty(t, h.out.Root())
	assertDirEmpty(t, h.ws.Dir())
}

func TestProcessJobPublishFailure(t *testing.T) {
	h := newHarness(t)
	job := h.job("/video.mp4")

	err := h.processor(copyEngine(), failingProvider{h.out}).ProcessJob(context.Background(), job)

	var e *errors.Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, errors.CodeRender, e.Code)
	assert.Equal(t, errors.ReasonPublish, e.Reason())
	assert.Equal(t, models.StateFailed, job.State)
	assertDirEmpty(t, h.ws.Dir())
}

func TestProcessJobCanceled(t *testing.T) {
	h := newHarness(t)
	job := h.job("/video.mp4")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := h.processor(copyEngine(), nil).ProcessJob(ctx, job)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeCanceled))
	assert.Equal(t, models.StateFailed, job.State)

	// the terminal state is still recorded
	saved, gerr := h.store.Get(context.Background(), job.ID)
	require.NoError(t, gerr)
	assert.Equal(t, models.StateFailed, saved.State)
}

func TestProcessJobCanceledMidFetch(t *testing.T) {
	h := newHarness(t)
	job := h.job("/stall.mp4")

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(200*time.Millisecond, cancel)

	err := h.processor(copyEngine(), nil).ProcessJob(ctx, job)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeCanceled), "got %v", err)
	assert.Equal(t, models.StateFailed, job.State)

	saved, gerr := h.store.Get(context.Background(), job.ID)
	require.NoError(t, gerr)
	assert.Equal(t, models.StateFailed, saved.State)
	assertDirEmpty(t, h.ws.Dir())
}

func TestProcessJobCanceledMidRender(t *testing.T) {
	h := newHarness(t)
	job := h.job("/video.mp4")

	started := make(chan struct{})
	blocking := renderer.NewFuncEngine("blocking", func(ctx context.Context, _ renderer.Invocation, _ func(renderer.Progress)) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	err := h.processor(blocking, nil).ProcessJob(ctx, job)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeCanceled), "got %v", err)
	assert.Equal(t, models.StateFailed, job.State)
	assertDirEmpty(t, h.ws.Dir())
}

func TestGraphUsesJobPreset(t *testing.T) {
	ra := NewRendererAdapter(copyEngine(), filtergraph.DefaultParams(), 0)

	j := &models.RenderJob{}
	assert.Equal(t, filtergraph.Build(filtergraph.DefaultParams()), ra.Graph(j))

	j.Preset = string(filtergraph.PresetCorner)
	assert.Equal(t, "[0:v][1:v]overlay=x=0:y=0[out]", ra.Graph(j).String())
}

func TestOutputURL(t *testing.T) {
	assert.Equal(t, "http://h:3000/output/job_1-output.mp4", OutputURL("http://h:3000/", "job_1-output.mp4"))
	assert.Equal(t, "/output/a%20b.mp4", OutputURL("", "a b.mp4"))
}
