package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vidhook/internal/models"
)

func TestNewIsIdempotent(t *testing.T) {
	root := t.TempDir()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := New(root)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.DirExists(t, filepath.Join(root, "work"))
}

func TestNewFailsOnFile(t *testing.T) {
	root := filepath.Join(t.TempDir(), "blocked")
	require.NoError(t, os.WriteFile(root, []byte("x"), 0o644))

	_, err := New(root)
	require.Error(t, err)
}

func TestAllocateDeterministic(t *testing.T) {
	m, err := New(t.TempDir())
	require.NoError(t, err)

	a := m.Allocate("job_abc")
	b := m.Allocate("job_abc")
	assert.Equal(t, a, b)

	assert.Equal(t, filepath.Join(m.Dir(), "job_abc-input.mp4"), a.Video)
	assert.Equal(t, filepath.Join(m.Dir(), "job_abc-bg.png"), a.Image)
	assert.Equal(t, filepath.Join(m.Dir(), "job_abc-output.mp4"), a.Output)

	// no I/O happens at allocation
	_, err = os.Stat(a.Video)
	assert.True(t, os.IsNotExist(err))
}

func TestAllocateDisjointAcrossJobs(t *testing.T) {
	m, err := New(t.TempDir())
	require.NoError(t, err)

	const n = 200
	ids := make(chan string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids <- models.NewJobID()
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[string]string)
	for id := range ids {
		p := m.Allocate(id)
		for _, path := range []string{p.Video, p.Image, p.Output} {
			owner, dup := seen[path]
			require.False(t, dup, "path %s shared by %s and %s", path, owner, id)
			seen[path] = id
		}
	}
	assert.Len(t, seen, 3*n)
}

func TestAllocateStaysInsideDir(t *testing.T) {
	m, err := New(t.TempDir())
	require.NoError(t, err)

	p := m.Allocate("../../etc/passwd")
	assert.Equal(t, m.Dir(), filepath.Dir(p.Video))
}

func TestDiscardRemovesFilesAndPartials(t *testing.T) {
	m, err := New(t.TempDir())
	require.NoError(t, err)
	p := m.Allocate("job_x")

	for _, f := range []string{p.Video, p.Image + PartialSuffix, p.Output} {
		require.NoError(t, os.WriteFile(f, []byte("data"), 0o644))
	}

	require.NoError(t, m.Discard(p))
	entries, err := os.ReadDir(m.Dir())
	require.NoError(t, err)
	assert.Empty(t, entries)

	// second discard is a no-op
	assert.NoError(t, m.Discard(p))
}

func TestSweepRemovesOnlyStaleFiles(t *testing.T) {
	m, err := New(t.TempDir())
	require.NoError(t, err)

	stale := filepath.Join(m.Dir(), "job_old-output.mp4")
	fresh := filepath.Join(m.Dir(), "job_new-output.mp4")
	for _, f := range []string{stale, fresh} {
		require.NoError(t, os.WriteFile(f, []byte("x"), 0o644))
	}
	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(stale, old, old))

	n, err := m.Sweep(time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NoFileExists(t, stale)
	assert.FileExists(t, fresh)
}

func ExampleManager_Allocate() {
	m, _ := New(os.TempDir())
	p := m.Allocate("job_42")
	fmt.Println(filepath.Base(p.Video), filepath.Base(p.Image), filepath.Base(p.Output))
	// Output: job_42-input.mp4 job_42-bg.png job_42-output.mp4
}
