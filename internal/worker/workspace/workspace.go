// Package workspace allocates the local files a render job may touch.
//
// All jobs share one staging directory (<root>/work). Every path is derived
// from the job id, so concurrent jobs never collide. The directory is created
// once by New; Allocate does no I/O.
package workspace

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"vidhook/internal/models"
	apperrors "vidhook/internal/pkg/errors"
)

// Paths is the set of files owned by one job.
type Paths = models.WorkspacePaths

const (
	videoSuffix  = "-input.mp4"
	imageSuffix  = "-bg.png"
	outputSuffix = "-output.mp4"
)

type Manager struct {
	dir string
}

// New ensures <root>/work exists and returns a manager rooted there. Calling
// it repeatedly (or concurrently) on the same root is harmless.
func New(root string) (*Manager, error) {
	dir := filepath.Join(root, "work")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, apperrors.Workspace(err, "create staging directory "+dir)
	}
	return &Manager{dir: dir}, nil
}

// Dir returns the staging directory.
func (m *Manager) Dir() string { return m.dir }

// Allocate derives the job's paths. It is pure: same id, same paths.
func (m *Manager) Allocate(jobID string) Paths {
	base := sanitizeID(jobID)
	return Paths{
		Video:  filepath.Join(m.dir, base+videoSuffix),
		Image:  filepath.Join(m.dir, base+imageSuffix),
		Output: filepath.Join(m.dir, base+outputSuffix),
	}
}

// Discard removes every file of p, including fetch partials. Missing files
// are not an error.
func (m *Manager) Discard(p Paths) error {
	var errs []error
	for _, path := range []string{p.Video, p.Image, p.Output} {
		if path == "" {
			continue
		}
		for _, candidate := range []string{path, path + PartialSuffix} {
			if err := os.Remove(candidate); err != nil && !errors.Is(err, fs.ErrNotExist) {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// PartialSuffix marks a file still being written.
const PartialSuffix = ".part"

// Sweep removes staging files last modified more than olderThan ago. These
// are leftovers of jobs interrupted by a crash; live jobs keep touching
// their files and are never that old.
func (m *Manager) Sweep(olderThan time.Duration) (int, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return 0, apperrors.Workspace(err, "read staging directory")
	}

	cutoff := time.Now().Add(-olderThan)
	removed := 0
	var errs []error
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(m.dir, e.Name())); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}

// sanitizeID keeps ids flat inside the staging directory.
func sanitizeID(id string) string {
	id = strings.TrimSpace(id)
	id = strings.NewReplacer("/", "_", "\\", "_", "..", "_", " ", "_").Replace(id)
	if id == "" {
		return fmt.Sprintf("job_%d", time.Now().UnixNano())
	}
	return id
}
