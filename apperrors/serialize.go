package apperrors

import (
	"errors"
)

// Document is the JSON-API error object used in HTTP responses.
type Document struct {
	ID     string `json:"id,omitempty"`
	Status int    `json:"status,omitempty"`
	Code   string `json:"code,omitempty"`
	Title  string `json:"title,omitempty"`
	Detail string `json:"detail,omitempty"`
	Meta   *Meta  `json:"meta,omitempty"`
}

// Meta carries the error fields that have no JSON-API member of their own.
type Meta struct {
	Context      string        `json:"context,omitempty"`
	Help         string        `json:"help,omitempty"`
	ErrorDetails []ErrorDetail `json:"errorDetails,omitempty"`
	Level        string        `json:"level,omitempty"`
	ErrorType    string        `json:"errorType,omitempty"`
}

// Serialize converts err into a Document. Errors that are not *Error are
// wrapped as InternalServerError first. It never panics.
func Serialize(err error) (doc Document) {
	defer func() {
		if r := recover(); r != nil {
			doc = Document{Detail: "Something went wrong."}
		}
	}()

	var e *Error
	if !errors.As(err, &e) || e == nil {
		e = New(InternalServerError, WithCause(err))
		if err != nil {
			e.Message = err.Error()
		}
	}

	code := e.Code
	if code == "" {
		code = string(e.Kind)
	}
	return Document{
		ID:     e.ID,
		Status: e.StatusCode,
		Code:   code,
		Title:  e.Name(),
		Detail: e.Message,
		Meta: &Meta{
			Context:      e.Context,
			Help:         e.Help,
			ErrorDetails: e.ErrorDetails,
			Level:        e.Level,
			ErrorType:    string(e.Kind),
		},
	}
}

// Deserialize rebuilds an *Error from a Document. The kind comes from
// meta.errorType when it is registered, otherwise from the status code.
func Deserialize(doc Document) (e *Error) {
	defer func() {
		if r := recover(); r != nil {
			e = New(InternalServerError, WithMessage("something went wrong"))
		}
	}()

	kind := KindForStatus(doc.Status)
	if doc.Meta != nil && doc.Meta.ErrorType != "" {
		registryMu.RLock()
		_, known := registry[Kind(doc.Meta.ErrorType)]
		registryMu.RUnlock()
		if known {
			kind = Kind(doc.Meta.ErrorType)
		}
	}

	opts := []Option{
		WithID(doc.ID),
		WithMessage(doc.Detail),
		WithStatusCode(doc.Status),
	}
	if doc.Code != "" && doc.Code != string(kind) {
		opts = append(opts, WithCode(doc.Code))
	}
	if doc.Meta != nil {
		opts = append(opts,
			WithLevel(doc.Meta.Level),
			WithHelp(doc.Meta.Help),
			WithContext(doc.Meta.Context),
			WithErrorDetails(doc.Meta.ErrorDetails...),
		)
	}
	return New(kind, opts...)
}
