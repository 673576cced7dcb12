package renderer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	contracts "vidhook/internal/contracts/renderer/v1"
	"vidhook/internal/pkg/errors"
	"vidhook/internal/pkg/logger"
)

// HTTPEngine delegates renders to a remote service speaking the v1
// contract. The service must see the same staging directory.
type HTTPEngine struct {
	baseURL string
	client  *http.Client
	log     *logger.Logger
}

func NewHTTPEngine(baseURL string, timeout time.Duration, log *logger.Logger) *HTTPEngine {
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	if log == nil {
		log = logger.NewDefault()
	}
	return &HTTPEngine{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		log:     log.WithComponent("renderer"),
	}
}

func (e *HTTPEngine) Name() string { return "http" }

func (e *HTTPEngine) Start(ctx context.Context, inv Invocation) (*Run, error) {
	body, err := json.Marshal(contracts.RenderRequest{
		JobID:       inv.JobID,
		Inputs:      inv.Inputs,
		FilterGraph: inv.Graph.String(),
		MapLabel:    inv.Graph.Output,
		Output: contracts.Output{
			Path:       inv.Output,
			Container:  Container,
			VideoCodec: VideoCodec,
			AudioCodec: AudioCodec,
			FastStart:  true,
		},
	})
	if err != nil {
		return nil, errors.RenderFailed(err, errors.ReasonInvocation)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+contracts.RenderPath, bytes.NewReader(body))
	if err != nil {
		return nil, errors.RenderFailed(err, errors.ReasonInvocation)
	}
	req.Header.Set("Content-Type", "application/json")

	run := newRun()
	go func() {
		run.finish(e.do(req, inv))
	}()
	return run, nil
}

func (e *HTTPEngine) do(req *http.Request, inv Invocation) Outcome {
	log := e.log.FromContext(req.Context())

	res, err := e.client.Do(req)
	if err != nil {
		return Outcome{Err: errors.RenderFailed(err, errors.ReasonInvocation).WithField("engine", e.Name())}
	}
	defer res.Body.Close()

	var out contracts.RenderResponse
	raw, _ := io.ReadAll(io.LimitReader(res.Body, 64<<10))
	_ = json.Unmarshal(raw, &out)

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		_ = os.Remove(inv.Output)
		msg := out.Error
		if msg == "" {
			msg = strings.TrimSpace(string(raw))
		}
		log.Warn("remote render failed", "status", res.StatusCode)
		return Outcome{Err: errors.RenderFailed(fmt.Errorf("renderer http %d: %s", res.StatusCode, msg), errors.ReasonProcessing).
			WithField("status", res.StatusCode)}
	}

	if _, err := os.Stat(inv.Output); err != nil {
		return Outcome{Err: errors.RenderFailed(fmt.Errorf("renderer reported success without output: %w", err), errors.ReasonProcessing)}
	}
	return Outcome{Path: inv.Output}
}
