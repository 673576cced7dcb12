package processor

import (
	"context"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"vidhook/internal/models"
	"vidhook/internal/pkg/errors"
	"vidhook/internal/ports"
)

type OutputHandler struct {
	sp ports.StorageProvider
}

func NewOutputHandler(sp ports.StorageProvider) *OutputHandler {
	return &OutputHandler{sp: sp}
}

type OutputResult struct {
	ObjectKey string
	URL       string
	Size      int64
}

// Publish hands the rendered staging file to the storage provider. Only
// after this succeeds is the output addressable.
func (oh *OutputHandler) Publish(ctx context.Context, job *models.RenderJob) (*OutputResult, error) {
	staging := job.Paths.Output
	st, err := os.Stat(staging)
	if err != nil {
		return nil, errors.RenderFailed(err, errors.ReasonPublish)
	}

	f, err := os.Open(staging)
	if err != nil {
		return nil, errors.RenderFailed(err, errors.ReasonPublish)
	}
	defer f.Close()

	out, err := oh.sp.PutObject(ctx, ports.PutObjectInput{
		ObjectKey:   filepath.Base(staging),
		ContentType: "video/mp4",
		Reader:      f,
		Size:        st.Size(),
		SourcePath:  staging,
	})
	if err != nil {
		return nil, errors.RenderFailed(err, errors.ReasonPublish).WithField("provider", oh.sp.Provider())
	}

	return &OutputResult{
		ObjectKey: out.ObjectKey,
		URL:       OutputURL(job.BaseURL, out.ObjectKey),
		Size:      out.Size,
	}, nil
}

// OutputURL is where GET /output/{filename} serves key.
func OutputURL(baseURL, key string) string {
	return strings.TrimRight(baseURL, "/") + "/output/" + url.PathEscape(key)
}
