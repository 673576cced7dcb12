// Package errors provides the coded error type used across the render
// pipeline. Every failure that crosses a component boundary carries a Code
// so the HTTP layer can map it to a status without inspecting messages.
package errors

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"runtime"
	"strings"
)

// Code represents an error code for categorization.
type Code string

const (
	CodeInternal    Code = "INTERNAL_ERROR"
	CodeValidation  Code = "VALIDATION_ERROR"
	CodeNotFound    Code = "NOT_FOUND"
	CodeTimeout     Code = "TIMEOUT"
	CodeCanceled    Code = "CANCELED"
	CodeFetch       Code = "FETCH_FAILED"
	CodeRender      Code = "RENDER_FAILED"
	CodeWorkspace   Code = "WORKSPACE_ERROR"
	CodeUnavailable Code = "UNAVAILABLE"
)

// Fetch failure reasons.
const (
	ReasonNetwork = "network"
	ReasonStatus  = "status"
	ReasonWrite   = "write"
)

// Render failure reasons.
const (
	ReasonInvocation   = "invocation"
	ReasonProcessing   = "processing"
	ReasonInvalidGraph = "invalid_graph"
	ReasonPublish      = "publish"
)

// Error is a custom error type with additional context. Op names the
// operation that failed (e.g., "processor.fetch").
type Error struct {
	Code    Code
	Message string
	Op      string
	Err     error
	Fields  map[string]any
	Stack   []Frame
}

// Frame represents a single stack frame.
type Frame struct {
	File     string `json:"file"`
	Line     int    `json:"line"`
	Function string `json:"function"`
}

func (e *Error) Error() string {
	var b strings.Builder

	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	if e.Code != "" {
		b.WriteString("[")
		b.WriteString(string(e.Code))
		b.WriteString("] ")
	}
	b.WriteString(e.Message)
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target carries the same code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// WithField adds a field to the error.
func (e *Error) WithField(key string, value any) *Error {
	if e.Fields == nil {
		e.Fields = make(map[string]any)
	}
	e.Fields[key] = value
	return e
}

// Reason returns the "reason" field, if any.
func (e *Error) Reason() string {
	r, _ := e.Fields["reason"].(string)
	return r
}

// HTTPStatus returns the HTTP status code for this error.
func (e *Error) HTTPStatus() int {
	switch e.Code {
	case CodeValidation:
		return 400
	case CodeNotFound:
		return 404
	case CodeTimeout:
		return 504
	case CodeUnavailable:
		return 503
	default:
		return 500
	}
}

// StackTrace returns the stack trace as a formatted string.
func (e *Error) StackTrace() string {
	if len(e.Stack) == 0 {
		return ""
	}

	var b strings.Builder
	for _, f := range e.Stack {
		fmt.Fprintf(&b, "  %s:%d %s\n", f.File, f.Line, f.Function)
	}
	return b.String()
}

// New creates a new error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Stack:   captureStack(2),
	}
}

// Newf creates a new error with formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Stack:   captureStack(2),
	}
}

// Wrap wraps an existing error, preserving the code of a wrapped *Error.
// Context cancellation is reported as CodeCanceled.
func Wrap(err error, op string, message string) *Error {
	if err == nil {
		return nil
	}

	var e *Error
	if errors.As(err, &e) {
		return &Error{
			Code:    e.Code,
			Message: message,
			Op:      op,
			Err:     err,
			Fields:  maps.Clone(e.Fields),
			Stack:   captureStack(2),
		}
	}

	code := CodeInternal
	switch {
	case errors.Is(err, context.Canceled):
		code = CodeCanceled
	case errors.Is(err, context.DeadlineExceeded):
		code = CodeTimeout
	}

	return &Error{
		Code:    code,
		Message: message,
		Op:      op,
		Err:     err,
		Stack:   captureStack(2),
	}
}

// WrapWithCode wraps an error with a specific code.
func WrapWithCode(err error, code Code, op string, message string) *Error {
	if err == nil {
		return nil
	}

	return &Error{
		Code:    code,
		Message: message,
		Op:      op,
		Err:     err,
		Stack:   captureStack(2),
	}
}

// Validation creates a validation error.
func Validation(message string) *Error {
	return New(CodeValidation, message)
}

// ValidationField creates a validation error for a specific field.
func ValidationField(field string, message string) *Error {
	return New(CodeValidation, message).WithField("field", field)
}

// NotFound creates a not found error.
func NotFound(resource string, id string) *Error {
	return New(CodeNotFound, fmt.Sprintf("%s not found: %s", resource, id)).
		WithField("resource", resource).
		WithField("id", id)
}

// FetchFailed wraps a download failure. reason is one of the Reason* fetch
// constants.
func FetchFailed(err error, reason, url string) *Error {
	e := WrapWithCode(err, CodeFetch, "fetcher.fetch", "fetch failed")
	if e == nil {
		e = New(CodeFetch, "fetch failed")
		e.Op = "fetcher.fetch"
	}
	e.Stack = captureStack(2)
	return e.WithField("reason", reason).WithField("url", url)
}

// RenderFailed wraps an engine failure. reason is one of the Reason* render
// constants.
func RenderFailed(err error, reason string) *Error {
	e := WrapWithCode(err, CodeRender, "renderer.render", "render failed")
	if e == nil {
		e = New(CodeRender, "render failed")
		e.Op = "renderer.render"
	}
	e.Stack = captureStack(2)
	return e.WithField("reason", reason)
}

// Workspace creates a workspace error.
func Workspace(err error, message string) *Error {
	return WrapWithCode(err, CodeWorkspace, "workspace", message)
}

// GetCode extracts the error code from an error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// GetHTTPStatus extracts the HTTP status from an error.
func GetHTTPStatus(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.HTTPStatus()
	}
	return 500
}

// IsCode checks if an error has a specific code.
func IsCode(err error, code Code) bool {
	return GetCode(err) == code
}

// captureStack captures the current stack trace.
func captureStack(skip int) []Frame {
	const maxDepth = 32
	var pcs [maxDepth]uintptr
	n := runtime.Callers(skip+1, pcs[:])

	frames := make([]Frame, 0, n)
	callersFrames := runtime.CallersFrames(pcs[:n])

	for {
		frame, more := callersFrames.Next()

		if strings.Contains(frame.File, "runtime/") {
			if !more {
				break
			}
			continue
		}

		frames = append(frames, Frame{
			File:     frame.File,
			Line:     frame.Line,
			Function: frame.Function,
		})

		if !more || len(frames) >= 10 {
			break
		}
	}

	return frames
}

// As is a convenience wrapper for errors.As.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// Is is a convenience wrapper for errors.Is.
func Is(err, target error) bool {
	return errors.Is(err, target)
}
