package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"sync"
)

// Built-in kinds.
const (
	IgnitionError              Kind = "IgnitionError"
	InternalServerError        Kind = "InternalServerError"
	IncorrectUsageError        Kind = "IncorrectUsageError"
	NotFoundError              Kind = "NotFoundError"
	BadRequestError            Kind = "BadRequestError"
	UnauthorizedError          Kind = "UnauthorizedError"
	NoPermissionError          Kind = "NoPermissionError"
	ValidationError            Kind = "ValidationError"
	UnsupportedMediaTypeError  Kind = "UnsupportedMediaTypeError"
	TooManyRequestsError       Kind = "TooManyRequestsError"
	MaintenanceError           Kind = "MaintenanceError"
	MethodNotAllowedError      Kind = "MethodNotAllowedError"
	RequestEntityTooLargeError Kind = "RequestEntityTooLargeError"
	TokenRevocationError       Kind = "TokenRevocationError"
	VersionMismatchError       Kind = "VersionMismatchError"
)

// Defaults are the values a kind starts from before options are applied.
type Defaults struct {
	StatusCode int
	Level      string
	Message    string
}

type kindInfo struct {
	defaults Defaults
	// lineage holds the kind itself and every ancestor.
	lineage map[Kind]struct{}
}

var (
	registryMu sync.RWMutex
	registry   = map[Kind]kindInfo{}
)

func init() {
	base := Defaults{StatusCode: http.StatusInternalServerError, Level: LevelNormal, Message: "The server has encountered an error."}
	registry[IgnitionError] = kindInfo{defaults: base, lineage: map[Kind]struct{}{IgnitionError: {}}}

	builtins := []struct {
		kind     Kind
		defaults Defaults
	}{
		{InternalServerError, Defaults{http.StatusInternalServerError, LevelCritical, "The server has encountered an error."}},
		{IncorrectUsageError, Defaults{http.StatusBadRequest, LevelCritical, "We detected a misuse. Please read the stack trace."}},
		{NotFoundError, Defaults{http.StatusNotFound, LevelNormal, "Resource could not be found."}},
		{BadRequestError, Defaults{http.StatusBadRequest, LevelNormal, "The request could not be understood."}},
		{UnauthorizedError, Defaults{http.StatusUnauthorized, LevelNormal, "You are not authorized to make this request."}},
		{NoPermissionError, Defaults{http.StatusForbidden, LevelNormal, "You do not have permission to perform this request."}},
		{ValidationError, Defaults{http.StatusUnprocessableEntity, LevelNormal, "The request failed validation."}},
		{UnsupportedMediaTypeError, Defaults{http.StatusUnsupportedMediaType, LevelNormal, "The media in the request is not supported by the server."}},
		{TooManyRequestsError, Defaults{http.StatusTooManyRequests, LevelNormal, "The server has received too many similar requests in a short space of time."}},
		{MaintenanceError, Defaults{http.StatusServiceUnavailable, LevelNormal, "The request could not be understood."}},
		{MethodNotAllowedError, Defaults{http.StatusMethodNotAllowed, LevelNormal, "Method not allowed for resource."}},
		{RequestEntityTooLargeError, Defaults{http.StatusRequestEntityTooLarge, LevelNormal, "Request was too big for the server to handle."}},
		{TokenRevocationError, Defaults{http.StatusServiceUnavailable, LevelNormal, "Token is no longer available."}},
		{VersionMismatchError, Defaults{http.StatusBadRequest, LevelNormal, "Requested version does not match server version"}},
	}
	for _, b := range builtins {
		if err := register(b.kind, IgnitionError, b.defaults); err != nil {
			panic(err)
		}
	}
}

// Register adds an application kind derived from parent. Zero fields in d
// are taken from the parent's defaults. Registering an existing kind or an
// unknown parent is an error.
func Register(kind, parent Kind, d Defaults) error {
	registryMu.Lock()
	defer registryMu.Unlock()
	return register(kind, parent, d)
}

func register(kind, parent Kind, d Defaults) error {
	if kind == "" {
		return errors.New("apperrors: empty kind")
	}
	if _, exists := registry[kind]; exists {
		return fmt.Errorf("apperrors: kind %q already registered", kind)
	}
	p, ok := registry[parent]
	if !ok {
		return fmt.Errorf("apperrors: unknown parent kind %q", parent)
	}

	if d.StatusCode == 0 {
		d.StatusCode = p.defaults.StatusCode
	}
	if d.Level == "" {
		d.Level = p.defaults.Level
	}
	if d.Message == "" {
		d.Message = p.defaults.Message
	}

	lineage := make(map[Kind]struct{}, len(p.lineage)+1)
	for k := range p.lineage {
		lineage[k] = struct{}{}
	}
	lineage[kind] = struct{}{}

	registry[kind] = kindInfo{defaults: d, lineage: lineage}
	return nil
}

func defaultsFor(kind Kind) Defaults {
	registryMu.RLock()
	defer registryMu.RUnlock()
	if info, ok := registry[kind]; ok {
		return info.defaults
	}
	return registry[IgnitionError].defaults
}

// IsKind reports whether err is an *Error whose kind is kind or descends from it.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) || e == nil {
		return false
	}
	registryMu.RLock()
	defer registryMu.RUnlock()
	info, ok := registry[e.Kind]
	if !ok {
		return e.Kind == kind || kind == IgnitionError
	}
	_, found := info.lineage[kind]
	return found
}

// IsIgnitionError reports whether err is any application error.
func IsIgnitionError(err error) bool {
	return IsKind(err, IgnitionError)
}

// Kinds returns every registered kind.
func Kinds() []Kind {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make([]Kind, 0, len(registry))
	for k := range registry {
		out = append(out, k)
	}
	return out
}

// KindForStatus maps an HTTP status to the built-in kind that defaults to it.
func KindForStatus(status int) Kind {
	switch status {
	case http.StatusBadRequest:
		return BadRequestError
	case http.StatusUnauthorized:
		return UnauthorizedError
	case http.StatusForbidden:
		return NoPermissionError
	case http.StatusNotFound:
		return NotFoundError
	case http.StatusMethodNotAllowed:
		return MethodNotAllowedError
	case http.StatusRequestEntityTooLarge:
		return RequestEntityTooLargeError
	case http.StatusUnsupportedMediaType:
		return UnsupportedMediaTypeError
	case http.StatusUnprocessableEntity:
		return ValidationError
	case http.StatusTooManyRequests:
		return TooManyRequestsError
	case http.StatusServiceUnavailable:
		return MaintenanceError
	default:
		return InternalServerError
	}
}
