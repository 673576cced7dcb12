package processor

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"vidhook/internal/models"
	"vidhook/internal/pkg/errors"
	"vidhook/internal/worker/fetcher"
)

// Fetcher is the download step. *fetcher.Fetcher implements it.
type Fetcher interface {
	Fetch(ctx context.Context, url, dst string) fetcher.Result
}

type InputHandler struct {
	fetcher Fetcher
	timeout time.Duration
}

func NewInputHandler(f Fetcher, timeout time.Duration) *InputHandler {
	return &InputHandler{fetcher: f, timeout: timeout}
}

// Materialize downloads the video and the template image into the job's
// workspace. The two downloads run concurrently; the first failure cancels
// the other and is returned.
func (ih *InputHandler) Materialize(ctx context.Context, job *models.RenderJob) error {
	if ih.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, ih.timeout)
		defer cancel()
	}

	g, gctx := errgroup.WithContext(ctx)
	fetch := func(url, dst, input string) {
		g.Go(func() error {
			res := ih.fetcher.Fetch(gctx, url, dst)
			if res.Err != nil {
				return errors.Wrap(res.Err, "processor.fetch", input+" download failed").WithField("input", input)
			}
			return nil
		})
	}
	fetch(job.VideoURL, job.Paths.Video, "video")
	fetch(job.TemplateImageURL, job.Paths.Image, "template_image")

	return g.Wait()
}
