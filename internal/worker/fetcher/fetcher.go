// Package fetcher downloads remote job inputs into the workspace.
//
// Bodies are streamed to "<dst>.part" and renamed onto dst only after the
// last byte is flushed. On any failure the partial file is removed, so dst
// either holds a complete download or does not exist.
package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"vidhook/internal/pkg/errors"
	"vidhook/internal/pkg/logger"
	"vidhook/internal/worker/workspace"
)

// Result is the outcome of one download. Exactly one of Path or Err is set.
type Result struct {
	Path  string
	Bytes int64
	Err   error
}

type Options struct {
	// Client defaults to a client with Timeout.
	Client  *http.Client
	Timeout time.Duration
	// MaxBytes caps a single download; 0 means unlimited.
	MaxBytes int64
	Log      *logger.Logger
}

type Fetcher struct {
	client   *http.Client
	maxBytes int64
	log      *logger.Logger
}

func New(opts Options) *Fetcher {
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	log := opts.Log
	if log == nil {
		log = logger.NewDefault()
	}
	return &Fetcher{
		client:   client,
		maxBytes: opts.MaxBytes,
		log:      log.WithComponent("fetcher"),
	}
}

// Fetch downloads url into dst. Errors are FETCH_FAILED coded with a reason
// of network, status or write. Nothing is retried.
func (f *Fetcher) Fetch(ctx context.Context, url, dst string) Result {
	log := f.log.FromContext(ctx)
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Result{Err: errors.FetchFailed(err, errors.ReasonNetwork, url)}
	}

	res, err := f.client.Do(req)
	if err != nil {
		return Result{Err: errors.FetchFailed(err, errors.ReasonNetwork, url)}
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		// drain a little so the connection can be reused
		_, _ = io.CopyN(io.Discard, res.Body, 4<<10)
		return Result{Err: errors.FetchFailed(fmt.Errorf("origin http %d", res.StatusCode), errors.ReasonStatus, url).
			WithField("status", res.StatusCode)}
	}

	if f.maxBytes > 0 && res.ContentLength > f.maxBytes {
		return Result{Err: errors.FetchFailed(
			fmt.Errorf("content length %d exceeds limit %d", res.ContentLength, f.maxBytes),
			errors.ReasonWrite, url)}
	}

	n, serr := f.stream(res.Body, dst)
	if serr != nil {
		return Result{Err: serr.WithField("url", url)}
	}

	log.Debug("fetched",
		"url", url,
		"bytes", n,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return Result{Path: dst, Bytes: n}
}

// stream copies body to dst via a partial file.
func (f *Fetcher) stream(body io.Reader, dst string) (int64, *errors.Error) {
	part := dst + workspace.PartialSuffix

	out, err := os.Create(part)
	if err != nil {
		return 0, errors.FetchFailed(err, errors.ReasonWrite, "")
	}

	src := body
	if f.maxBytes > 0 {
		// one extra byte tells an exact-size body from an oversized one
		src = io.LimitReader(body, f.maxBytes+1)
	}

	w := &trackingWriter{w: out}
	n, copyErr := io.Copy(w, src)
	closeErr := out.Close()

	fail := func(err error, reason string) (int64, *errors.Error) {
		_ = os.Remove(part)
		return 0, errors.FetchFailed(err, reason, "")
	}

	switch {
	case w.err != nil:
		return fail(w.err, errors.ReasonWrite)
	case copyErr != nil:
		return fail(copyErr, errors.ReasonNetwork)
	case closeErr != nil:
		return fail(closeErr, errors.ReasonWrite)
	case f.maxBytes > 0 && n > f.maxBytes:
		return fail(fmt.Errorf("body exceeds limit %d", f.maxBytes), errors.ReasonWrite)
	}

	if err := os.Rename(part, dst); err != nil {
		return fail(err, errors.ReasonWrite)
	}
	return n, nil
}

// trackingWriter remembers write-side failures so they are not mistaken for
// network errors on the body.
type trackingWriter struct {
	w   io.Writer
	err error
}

func (t *trackingWriter) Write(p []byte) (int, error) {
	n, err := t.w.Write(p)
	if err != nil {
		t.err = err
	}
	return n, err
}
