// Package logger builds the service's slog logger and carries request and
// render job correlation through contexts, so the fetcher, the engines and
// the processor all log against the same job without passing ids around.
package logger

import (
	"context"
	"io"
	"log/slog"
	"maps"
	"os"
	"slices"
	"strings"
	"time"

	"vidhook/internal/models"
	"vidhook/internal/pkg/errors"
)

type ctxKey int

const (
	requestIDKey ctxKey = iota
	jobKey
)

// jobTag is what a context remembers about the job it serves.
type jobTag struct {
	id     string
	preset string
}

// Logger wraps slog.Logger with request and job aware helpers.
type Logger struct {
	*slog.Logger
}

// Config holds logger configuration.
type Config struct {
	// Level is one of debug, info, warn, error. Unknown values mean info.
	Level string
	// Format is json (default) or text.
	Format string
	// Output defaults to os.Stdout.
	Output io.Writer
	// AddSource adds file:line to every record.
	AddSource bool
	// ServiceName is attached to every record as "service".
	ServiceName string
}

// New creates a Logger from cfg. Timestamps are RFC3339Nano in UTC.
func New(cfg Config) *Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stdout
	}

	opts := &slog.HandlerOptions{
		Level:       parseLevel(cfg.Level),
		AddSource:   cfg.AddSource,
		ReplaceAttr: utcTime,
	}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		handler = slog.NewTextHandler(cfg.Output, opts)
	} else {
		handler = slog.NewJSONHandler(cfg.Output, opts)
	}
	if cfg.ServiceName != "" {
		handler = handler.WithAttrs([]slog.Attr{slog.String("service", cfg.ServiceName)})
	}
	return &Logger{Logger: slog.New(handler)}
}

// NewDefault is the fallback for components built without a logger and for
// the boot phase before configuration is loaded.
func NewDefault() *Logger {
	return New(Config{ServiceName: "vidhook"})
}

// Discard returns a logger that drops everything.
func Discard() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

func utcTime(_ []string, a slog.Attr) slog.Attr {
	if a.Key == slog.TimeKey {
		if t, ok := a.Value.Any().(time.Time); ok {
			a.Value = slog.StringValue(t.UTC().Format(time.RFC3339Nano))
		}
	}
	return a
}

func (l *Logger) with(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// WithRequestID returns a logger tagged with request_id.
func (l *Logger) WithRequestID(requestID string) *Logger {
	return l.with("request_id", requestID)
}

// WithComponent returns a logger tagged with component.
func (l *Logger) WithComponent(component string) *Logger {
	return l.with("component", component)
}

// WithJob returns a logger tagged with the job id and, when set, its preset.
func (l *Logger) WithJob(job *models.RenderJob) *Logger {
	return l.withTag(tagOf(job))
}

func (l *Logger) withTag(t jobTag) *Logger {
	if t.preset == "" {
		return l.with("job_id", t.id)
	}
	return l.with("job_id", t.id, "preset", t.preset)
}

// FromContext tags l with the request and job carried by ctx.
func (l *Logger) FromContext(ctx context.Context) *Logger {
	result := l
	if id := RequestIDFrom(ctx); id != "" {
		result = result.WithRequestID(id)
	}
	if t, ok := ctx.Value(jobKey).(jobTag); ok {
		result = result.withTag(t)
	}
	return result
}

// StateChanged records a lifecycle step at debug level.
func (l *Logger) StateChanged(job *models.RenderJob, from models.State) {
	l.Debug("job state changed", "from", string(from), "to", string(job.State))
}

// JobFailed records the failure of job while it is still in the state that
// failed, so "failed_in" names the step.
func (l *Logger) JobFailed(job *models.RenderJob, cause error) {
	args := append([]any{"failed_in", string(job.State)}, ErrorAttrs(cause)...)
	l.Error("job failed", args...)
}

// ErrorAttrs flattens err into log attributes: the message, and for coded
// errors the code, op and every field in key order.
func ErrorAttrs(err error) []any {
	if err == nil {
		return nil
	}
	attrs := []any{"error", err.Error()}

	var coded *errors.Error
	if !errors.As(err, &coded) {
		return attrs
	}
	attrs = append(attrs, "code", string(coded.Code))
	if coded.Op != "" {
		attrs = append(attrs, "op", coded.Op)
	}
	for _, k := range slices.Sorted(maps.Keys(coded.Fields)) {
		attrs = append(attrs, k, coded.Fields[k])
	}
	return attrs
}

// LogFatal logs msg with err and exits the process.
func (l *Logger) LogFatal(msg string, err error, args ...any) {
	if err != nil {
		args = append(args, "error", err.Error())
	}
	l.Error(msg, args...)
	os.Exit(1)
}

// ContextWithRequestID stores the request id for FromContext.
func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFrom returns the request id stored in ctx, or "".
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// ContextWithJob stores the job's id and preset for FromContext.
func ContextWithJob(ctx context.Context, job *models.RenderJob) context.Context {
	return context.WithValue(ctx, jobKey, tagOf(job))
}

func tagOf(job *models.RenderJob) jobTag {
	return jobTag{id: job.ID, preset: job.Preset}
}

func parseLevel(level string) slog.Level {
	l := strings.ToLower(strings.TrimSpace(level))
	if l == "warning" {
		return slog.LevelWarn
	}
	var out slog.Level
	if err := out.UnmarshalText([]byte(l)); err != nil {
		return slog.LevelInfo
	}
	return out
}
