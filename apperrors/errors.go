// Package apperrors provides the typed application errors shared by the
// logger and the HTTP server. Every error is a *Error tagged with a Kind;
// behaviour is keyed by kind rather than by Go type.
package apperrors

import (
	"errors"
	"runtime"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Kind names an error category, e.g. "NotFoundError".
type Kind string

const (
	LevelNormal   = "normal"
	LevelCritical = "critical"
)

// ErrorDetail is one structured entry in Error.ErrorDetails.
type ErrorDetail map[string]any

// Error is the single concrete application error type.
type Error struct {
	ID           string
	Kind         Kind
	Message      string
	StatusCode   int
	Level        string
	Code         string
	Context      string
	Help         string
	Property     string
	Redirect     string
	HideStack    bool
	ErrorDetails []ErrorDetail

	stack string
	cause error
}

// Option configures an Error built by New.
type Option func(*Error)

// WithMessage overrides the kind's default message.
func WithMessage(msg string) Option {
	return func(e *Error) {
		if msg != "" {
			e.Message = msg
		}
	}
}

// WithContext sets the context the error occurred in.
func WithContext(context string) Option {
	return func(e *Error) { e.Context = context }
}

// WithHelp sets a hint on how to resolve the error.
func WithHelp(help string) Option {
	return func(e *Error) { e.Help = help }
}

// WithCode sets a machine readable code. Serialize falls back to the kind.
func WithCode(code string) Option {
	return func(e *Error) { e.Code = code }
}

// WithLevel sets "normal" or "critical".
func WithLevel(level string) Option {
	return func(e *Error) {
		if level != "" {
			e.Level = level
		}
	}
}

// WithStatusCode overrides the kind's HTTP status. Non-positive values are ignored.
func WithStatusCode(status int) Option {
	return func(e *Error) {
		if status > 0 {
			e.StatusCode = status
		}
	}
}

// WithErrorDetails appends per-field details.
func WithErrorDetails(details ...ErrorDetail) Option {
	return func(e *Error) { e.ErrorDetails = append(e.ErrorDetails, details...) }
}

// WithProperty names the input property the error refers to.
func WithProperty(property string) Option {
	return func(e *Error) { e.Property = property }
}

// WithRedirect sets a location the client should be sent to.
func WithRedirect(redirect string) Option {
	return func(e *Error) { e.Redirect = redirect }
}

// WithID sets the error id.
func WithID(id string) Option {
	return func(e *Error) {
		if id != "" {
			e.ID = id
		}
	}
}

// WithHideStack keeps the stack out of serialized output.
func WithHideStack(hide bool) Option {
	return func(e *Error) { e.HideStack = hide }
}

// WithCause wraps err. When err is an *Error, every property except kind,
// status code, message and level is inherited unless already set, and the
// cause's stack is appended to this error's stack.
func WithCause(err error) Option {
	return func(e *Error) {
		if err == nil {
			return
		}
		e.cause = err

		var inner *Error
		if !errors.As(err, &inner) {
			return
		}
		e.inherit(inner)
	}
}

// WithCauseMessage wraps a cause that only exists as text.
func WithCauseMessage(msg string) Option {
	return WithCause(errors.New(msg))
}

// New creates an error of the given kind. Unknown kinds fall back to the
// IgnitionError defaults while keeping the requested kind name.
func New(kind Kind, opts ...Option) *Error {
	d := defaultsFor(kind)
	e := &Error{
		ID:         newID(),
		Kind:       kind,
		Message:    d.Message,
		StatusCode: d.StatusCode,
		Level:      d.Level,
	}
	frames := captureStack(3)
	for _, opt := range opts {
		opt(e)
	}
	e.stack = string(e.Kind) + ": " + e.Message + "\n" + frames
	if e.cause != nil {
		var inner *Error
		if errors.As(e.cause, &inner) {
			if inner.stack != "" {
				e.stack += "\n\n" + inner.stack
			}
		} else {
			e.stack += "\n\n" + e.cause.Error()
		}
	}
	return e
}

func (e *Error) inherit(inner *Error) {
	e.ID = firstNonEmpty(inner.ID, e.ID)
	e.Code = firstNonEmpty(inner.Code, e.Code)
	e.Context = firstNonEmpty(inner.Context, e.Context)
	e.Help = firstNonEmpty(inner.Help, e.Help)
	e.Property = firstNonEmpty(inner.Property, e.Property)
	e.Redirect = firstNonEmpty(inner.Redirect, e.Redirect)
	if inner.HideStack {
		e.HideStack = true
	}
	if len(inner.ErrorDetails) > 0 {
		e.ErrorDetails = inner.ErrorDetails
	}
}

// Error returns the message, prefixed by the code when one is set.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Code == "" {
		return e.Message
	}
	return e.Code + ": " + e.Message
}

// Unwrap returns the wrapped cause, if any.
func (e *Error) Unwrap() error {
	return e.cause
}

// Name is the error type name, identical to its kind.
func (e *Error) Name() string {
	return string(e.Kind)
}

// Stack returns the captured call stack, followed by the cause stacks.
func (e *Error) Stack() string {
	return e.stack
}

func newID() string {
	id, err := uuid.NewUUID()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func captureStack(skip int) string {
	pcs := make([]uintptr, 32)
	n := runtime.Callers(skip, pcs)
	if n == 0 {
		return ""
	}
	frames := runtime.CallersFrames(pcs[:n])

	var b strings.Builder
	for {
		frame, more := frames.Next()
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("    at ")
		b.WriteString(frame.Function)
		b.WriteString(" (")
		b.WriteString(frame.File)
		b.WriteByte(':')
		b.WriteString(strconv.Itoa(frame.Line))
		b.WriteByte(')')
		if !more {
			break
		}
	}
	return b.String()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
