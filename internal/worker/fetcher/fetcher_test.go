package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vidhook/internal/pkg/errors"
	"vidhook/internal/pkg/logger"
	"vidhook/internal/worker/workspace"
)

func newFetcher(maxBytes int64) *Fetcher {
	return New(Options{Timeout: 5 * time.Second, MaxBytes: maxBytes, Log: logger.Discard()})
}

func TestFetchStreamsToDestination(t *testing.T) {
	payload := strings.Repeat("frame", 10_000)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "video/mp4")
		_, _ = w.Write([]byte(payload))
	}))
	defer srv.Close()

	dst := filepath.Join(t.TempDir(), "job-input.mp4")
	res := newFetcher(0).Fetch(context.Background(), srv.URL+"/v.mp4", dst)

	require.NoError(t, res.Err)
	assert.Equal(t, dst, res.Path)
	assert.EqualValues(t, len(payload), res.Bytes)

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, payload, string(got))
	assert.NoFileExists(t, dst+workspace.PartialSuffix)
}

func TestFetchNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	dst := filepath.Join(t.TempDir(), "job-input.mp4")
	res := newFetcher(0).Fetch(context.Background(), srv.URL, dst)

	require.Error(t, res.Err)
	assert.Empty(t, res.Path)
	assert.True(t, errors.IsCode(res.Err, errors.CodeFetch))

	var e *errors.Error
	require.True(t, errors.As(res.Err, &e))
	assert.Equal(t, errors.ReasonStatus, e.Reason())
	assert.Equal(t, http.StatusNotFound, e.Fields["status"])
	assert.NoFileExists(t, dst)
	assert.NoFileExists(t, dst+workspace.PartialSuffix)
}

func TestFetchNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	dst := filepath.Join(t.TempDir(), "x.png")
	res := newFetcher(0).Fetch(context.Background(), url, dst)

	var e *errors.Error
	require.True(t, errors.As(res.Err, &e))
	assert.Equal(t, errors.CodeFetch, e.Code)
	assert.Equal(t, errors.ReasonNetwork, e.Reason())
	assert.Equal(t, url, e.Fields["url"])
}

func TestFetchWriteError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("png"))
	}))
	defer srv.Close()

	dst := filepath.Join(t.TempDir(), "missing-dir", "x.png")
	res := newFetcher(0).Fetch(context.Background(), srv.URL, dst)

	var e *errors.Error
	require.True(t, errors.As(res.Err, &e))
	assert.Equal(t, errors.ReasonWrite, e.Reason())
}

func TestFetchTruncatedBodyLeavesNoPartial(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "1000000")
		_, _ = w.Write([]byte("short"))
		w.(http.Flusher).Flush()
		// drop the connection mid-body
		if hj, ok := w.(http.Hijacker); ok {
			conn, _, _ := hj.Hijack()
			_ = conn.Close()
		}
	}))
	defer srv.Close()

	dst := filepath.Join(t.TempDir(), "job-input.mp4")
	res := newFetcher(0).Fetch(context.Background(), srv.URL, dst)

	require.Error(t, res.Err)
	assert.NoFileExists(t, dst)
	assert.NoFileExists(t, dst+workspace.PartialSuffix)
}

func TestFetchMaxBytes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// chunked, so the limit is only discovered while streaming
		w.(http.Flusher).Flush()
		_, _ = w.Write([]byte(strings.Repeat("x", 64)))
	}))
	defer srv.Close()

	dst := filepath.Join(t.TempDir(), "big.mp4")

	res := newFetcher(16).Fetch(context.Background(), srv.URL, dst)
	require.Error(t, res.Err)
	assert.NoFileExists(t, dst)
	assert.NoFileExists(t, dst+workspace.PartialSuffix)

	res = newFetcher(64).Fetch(context.Background(), srv.URL, dst)
	require.NoError(t, res.Err)
	assert.EqualValues(t, 64, res.Bytes)
}

func TestFetchCanceledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := newFetcher(0).Fetch(ctx, srv.URL, filepath.Join(t.TempDir(), "v.mp4"))
	assert.True(t, errors.IsCode(res.Err, errors.CodeFetch))
}
