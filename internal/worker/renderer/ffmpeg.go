package renderer

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"vidhook/internal/pkg/errors"
	"vidhook/internal/pkg/logger"
)

// FFmpegEngine runs renders as local ffmpeg processes.
type FFmpegEngine struct {
	bin string
	log *logger.Logger
}

func NewFFmpegEngine(bin string, log *logger.Logger) *FFmpegEngine {
	if bin == "" {
		bin = "ffmpeg"
	}
	if log == nil {
		log = logger.NewDefault()
	}
	return &FFmpegEngine{bin: bin, log: log.WithComponent("renderer")}
}

func (e *FFmpegEngine) Name() string { return "ffmpeg" }

// Args returns the ffmpeg command line for inv, without the binary.
func Args(inv Invocation) []string {
	args := []string{"-hide_banner", "-nostdin", "-y"}
	for _, in := range inv.Inputs {
		args = append(args, "-i", in)
	}
	return append(args,
		"-filter_complex", inv.Graph.String(),
		"-map", "["+inv.Graph.Output+"]",
		"-map", "0:a?",
		"-c:v", VideoCodec,
		"-c:a", AudioCodec,
		"-movflags", "+faststart",
		"-progress", "pipe:1",
		"-nostats",
		"-f", Container,
		inv.Output,
	)
}

func (e *FFmpegEngine) Start(ctx context.Context, inv Invocation) (*Run, error) {
	log := e.log.FromContext(ctx)

	cmd := exec.CommandContext(ctx, e.bin, Args(inv)...)
	// bounds Wait when a killed ffmpeg leaves children holding the pipes
	cmd.WaitDelay = 5 * time.Second

	pr, pw := io.Pipe()
	cmd.Stdout = pw
	stderr := &tailBuffer{max: 4 << 10}
	cmd.Stderr = stderr

	started := time.Now()
	if err := cmd.Start(); err != nil {
		_ = pw.Close()
		return nil, errors.RenderFailed(err, errors.ReasonInvocation).WithField("bin", e.bin)
	}
	log.Debug("ffmpeg started", "pid", cmd.Process.Pid, "output", inv.Output)

	run := newRun()
	parsed := make(chan struct{})
	go func() {
		defer close(parsed)
		parseProgress(pr, run.emit)
	}()

	go func() {
		waitErr := cmd.Wait()
		_ = pw.Close()
		<-parsed

		if waitErr != nil {
			_ = os.Remove(inv.Output)
			cause := waitErr
			if ctxErr := ctx.Err(); ctxErr != nil {
				cause = ctxErr
			}
			log.Warn("ffmpeg failed",
				"error", waitErr.Error(),
				"duration_ms", time.Since(started).Milliseconds(),
			)
			run.finish(Outcome{Err: errors.RenderFailed(fmt.Errorf("%w: %s", cause, stderr.String()), errors.ReasonProcessing)})
			return
		}

		if _, err := os.Stat(inv.Output); err != nil {
			run.finish(Outcome{Err: errors.RenderFailed(err, errors.ReasonProcessing)})
			return
		}
		log.Debug("ffmpeg finished", "duration_ms", time.Since(started).Milliseconds())
		run.finish(Outcome{Path: inv.Output})
	}()
	return run, nil
}

// parseProgress reads "-progress" key=value blocks. Each block ends with a
// "progress=continue" or "progress=end" line.
func parseProgress(r io.Reader, emit func(Progress)) {
	sc := bufio.NewScanner(r)
	var cur Progress
	for sc.Scan() {
		key, val, ok := strings.Cut(strings.TrimSpace(sc.Text()), "=")
		if !ok {
			continue
		}
		switch key {
		case "frame":
			cur.Frame, _ = strconv.ParseInt(val, 10, 64)
		case "out_time_us", "out_time_ms":
			// both are microseconds
			if v, err := strconv.ParseInt(val, 10, 64); err == nil {
				cur.OutTime = v
			}
		case "speed":
			cur.Speed = strings.TrimSpace(val)
		case "progress":
			emit(cur)
			cur = Progress{}
		}
	}
	// keep draining so ffmpeg never blocks on a full pipe
	_, _ = io.Copy(io.Discard, r)
}

// tailBuffer keeps the last max bytes written, which is where ffmpeg
// reports the fatal error.
type tailBuffer struct {
	mu  sync.Mutex
	max int
	buf []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = t.buf[over:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.TrimSpace(string(t.buf))
}
