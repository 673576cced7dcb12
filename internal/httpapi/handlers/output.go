package handlers

import (
	"io"
	"io/fs"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"vidhook/internal/pkg/errors"
)

// GetOutput streams a published render. Seekable objects (localfs) get
// Range and conditional request support.
func (h *Handler) GetOutput(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()
	name := chi.URLParam(r, "filename")

	rc, contentType, size, err := h.sp.GetObject(ctx, name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return errors.NotFound("output", name)
		}
		return errors.Wrap(err, "handlers.output", "failed to open output")
	}
	defer rc.Close()

	if contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}

	if rs, ok := rc.(io.ReadSeeker); ok {
		var modTime time.Time
		if f, ok := rc.(*os.File); ok {
			if st, err := f.Stat(); err == nil {
				modTime = st.ModTime()
			}
		}
		http.ServeContent(w, r, name, modTime, rs)
		return nil
	}

	if size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	}
	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		if _, err := io.Copy(w, rc); err != nil {
			// headers are gone; nothing left to tell the client
			h.log.FromContext(ctx).Warn("output stream interrupted", "object_key", name, "error", err.Error())
		}
	}
	return nil
}
