package localfs

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"vidhook/internal/ports"
)

// publishingSuffix marks an object still being written.
const publishingSuffix = ".publishing"

// LocalFS implements ports.StorageProvider on a flat directory. Objects are
// written under a temporary name and renamed into place, so a reader never
// sees a partially published file.
type LocalFS struct {
	root string
}

// New returns a provider rooted at root, creating the directory if needed.
func New(root string) (*LocalFS, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	return &LocalFS{root: root}, nil
}

func (l *LocalFS) Provider() string { return "localfs" }

// Root returns the directory objects are stored in.
func (l *LocalFS) Root() string { return l.root }

func (l *LocalFS) PutObject(ctx context.Context, in ports.PutObjectInput) (ports.PutObjectOutput, error) {
	dst, err := l.resolve(in.ObjectKey)
	if err != nil {
		return ports.PutObjectOutput{}, err
	}
	tmp := dst + publishingSuffix

	if in.SourcePath != "" {
		if err := os.Rename(in.SourcePath, tmp); err == nil {
			return l.commit(tmp, dst, in.ObjectKey)
		}
		// different filesystem; fall back to copying Reader
	}

	outF, err := os.Create(tmp)
	if err != nil {
		return ports.PutObjectOutput{}, err
	}

	_, copyErr := io.Copy(outF, in.Reader)
	closeErr := outF.Close()
	if copyErr == nil {
		copyErr = closeErr
	}
	if copyErr != nil {
		_ = os.Remove(tmp)
		return ports.PutObjectOutput{}, copyErr
	}

	return l.commit(tmp, dst, in.ObjectKey)
}

func (l *LocalFS) commit(tmp, dst, key string) (ports.PutObjectOutput, error) {
	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return ports.PutObjectOutput{}, err
	}
	st, err := os.Stat(dst)
	if err != nil {
		return ports.PutObjectOutput{}, err
	}
	return ports.PutObjectOutput{ObjectKey: key, Size: st.Size()}, nil
}

func (l *LocalFS) GetObject(ctx context.Context, objectKey string) (rc io.ReadCloser, contentType string, size int64, err error) {
	if strings.HasSuffix(objectKey, publishingSuffix) {
		return nil, "", 0, fs.ErrNotExist
	}
	p, err := l.resolve(objectKey)
	if err != nil {
		return nil, "", 0, err
	}
	f, err := os.Open(p)
	if err != nil {
		return nil, "", 0, err
	}

	st, statErr := f.Stat()
	if statErr == nil {
		if st.IsDir() {
			f.Close()
			return nil, "", 0, fs.ErrNotExist
		}
		size = st.Size()
	}

	// Prefer extension-based type. If empty, sniff first bytes.
	contentType = typeByExtension(filepath.Ext(p))
	if contentType == "" {
		buf := make([]byte, 512)
		n, _ := f.Read(buf)
		_, _ = f.Seek(0, io.SeekStart)
		contentType = http.DetectContentType(buf[:n])
	}

	return f, contentType, size, nil
}

// videoTypes covers extensions the stdlib table lacks on hosts without
// /etc/mime.types.
var videoTypes = map[string]string{
	".mp4":  "video/mp4",
	".m4v":  "video/mp4",
	".mov":  "video/quicktime",
	".webm": "video/webm",
}

func typeByExtension(ext string) string {
	if ct, ok := videoTypes[strings.ToLower(ext)]; ok {
		return ct
	}
	return mime.TypeByExtension(ext)
}

// resolve maps a key to a path inside root. Keys are flat file names; any
// key that would leave the directory is reported as not existing.
func (l *LocalFS) resolve(objectKey string) (string, error) {
	key := strings.TrimSpace(objectKey)
	if key == "" {
		return "", fmt.Errorf("object_key is required")
	}
	if key != filepath.Base(key) || key == "." || key == ".." || strings.ContainsAny(key, `/\`) {
		return "", fmt.Errorf("invalid object key %q: %w", objectKey, fs.ErrNotExist)
	}
	return filepath.Join(l.root, key), nil
}
