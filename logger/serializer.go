package logger

import (
	"errors"
	"net"
	"net/http"
	"net/url"

	"github.com/gaborage/go-ignition/apperrors"
)

// Request is the loggable view of an incoming HTTP request.
type Request struct {
	ID          string
	UserID      string
	URL         string
	Method      string
	OriginalURL string
	IP          string
	Params      map[string]string
	Headers     http.Header
	Body        any
	// Query is either a value or a zero-argument accessor returning one.
	Query any
}

// Response is the loggable view of an outgoing HTTP response.
type Response struct {
	Headers      http.Header
	StatusCode   int
	ResponseTime string
}

// RequestIDHeader is read by SerializeRequest for *http.Request values.
const RequestIDHeader = "X-Request-Id"

// SerializeRequest flattens a request for logging. It accepts *Request,
// Request, *http.Request and map[string]any and returns nil for nil or
// unsupported input, so the key can be omitted.
func SerializeRequest(req any) map[string]any {
	switch r := req.(type) {
	case nil:
		return nil
	case *Request:
		if r == nil {
			return nil
		}
		return serializeRequest(r)
	case Request:
		return serializeRequest(&r)
	case *http.Request:
		if r == nil {
			return nil
		}
		return serializeRequest(requestFromHTTP(r))
	case map[string]any:
		if r == nil {
			return nil
		}
		return serializeRequest(requestFromMap(r))
	default:
		return nil
	}
}

func serializeRequest(r *Request) map[string]any {
	out := make(map[string]any, 10)
	meta := make(map[string]any, 2)
	setString(meta, "requestId", r.ID)
	setString(meta, "userId", r.UserID)
	if len(meta) > 0 {
		out["meta"] = meta
	}
	setString(out, "url", r.URL)
	setString(out, "method", r.Method)
	setString(out, "originalUrl", r.OriginalURL)
	setString(out, "ip", r.IP)
	if len(r.Params) > 0 {
		out["params"] = r.Params
	}
	if r.Headers != nil {
		out["headers"] = Redact(r.Headers)
	}
	if r.Body != nil {
		out["body"] = Redact(r.Body)
	}
	if q := resolveQuery(r.Query); q != nil {
		out["query"] = Redact(q)
	}
	return out
}

func requestFromHTTP(r *http.Request) *Request {
	req := &Request{
		ID:      r.Header.Get(RequestIDHeader),
		Method:  r.Method,
		Headers: r.Header,
	}
	if r.URL != nil {
		req.URL = r.URL.Path
		req.OriginalURL = r.URL.RequestURI()
		if len(r.URL.RawQuery) > 0 {
			req.Query = r.URL.Query()
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		req.IP = host
	} else {
		req.IP = r.RemoteAddr
	}
	return req
}

func requestFromMap(m map[string]any) *Request {
	req := &Request{
		URL:         stringField(m, "url"),
		Method:      stringField(m, "method"),
		OriginalURL: stringField(m, "originalUrl"),
		IP:          stringField(m, "ip"),
		ID:          stringField(m, "requestId"),
		UserID:      stringField(m, "userId"),
		Body:        m["body"],
		Query:       m["query"],
	}
	if meta, ok := m["meta"].(map[string]any); ok {
		req.ID = firstString(req.ID, stringField(meta, "requestId"))
		req.UserID = firstString(req.UserID, stringField(meta, "userId"))
	}
	switch p := m["params"].(type) {
	case map[string]string:
		req.Params = p
	case map[string]any:
		req.Params = make(map[string]string, len(p))
		for k, v := range p {
			if s, ok := v.(string); ok {
				req.Params[k] = s
			}
		}
	}
	switch h := m["headers"].(type) {
	case http.Header:
		req.Headers = h
	case map[string]any:
		req.Headers = make(http.Header, len(h))
		for k, v := range h {
			if s, ok := v.(string); ok {
				req.Headers[k] = []string{s}
			}
		}
	}
	return req
}

// resolveQuery calls accessor-style queries. A panicking accessor yields nil.
func resolveQuery(q any) (out any) {
	defer func() {
		if r := recover(); r != nil {
			out = nil
		}
	}()
	switch fn := q.(type) {
	case nil:
		return nil
	case func() any:
		return fn()
	case func() url.Values:
		return fn()
	case func() map[string]any:
		return fn()
	case func() map[string]string:
		return fn()
	default:
		return q
	}
}

// SerializeResponse flattens a response for logging. It accepts *Response,
// Response and map[string]any and returns nil for nil input.
func SerializeResponse(res any) map[string]any {
	var r *Response
	switch v := res.(type) {
	case nil:
		return nil
	case *Response:
		r = v
	case Response:
		r = &v
	case map[string]any:
		if v == nil {
			return nil
		}
		out := make(map[string]any, 3)
		if h, ok := v["headers"]; ok && h != nil {
			out["headers"] = Redact(h)
		}
		if sc, ok := v["statusCode"]; ok {
			out["statusCode"] = sc
		}
		if rt, ok := v["responseTime"]; ok {
			out["responseTime"] = rt
		}
		return out
	default:
		return nil
	}
	if r == nil {
		return nil
	}

	out := make(map[string]any, 3)
	if r.Headers != nil {
		out["headers"] = Redact(r.Headers)
	}
	if r.StatusCode != 0 {
		out["statusCode"] = r.StatusCode
	}
	setString(out, "responseTime", r.ResponseTime)
	return out
}

// SerializeError flattens err for logging. domain is always the logger's
// configured domain. Errors that are not *apperrors.Error only carry a
// name and message.
func SerializeError(err error, domain string) map[string]any {
	if err == nil {
		return nil
	}

	var appErr *apperrors.Error
	if !errors.As(err, &appErr) || appErr == nil {
		out := map[string]any{
			"name":    "Error",
			"message": err.Error(),
		}
		setString(out, "domain", domain)
		return out
	}

	out := make(map[string]any, 12)
	setString(out, "id", appErr.ID)
	setString(out, "domain", domain)
	setString(out, "code", appErr.Code)
	setString(out, "name", appErr.Name())
	if appErr.StatusCode != 0 {
		out["statusCode"] = appErr.StatusCode
	}
	setString(out, "level", appErr.Level)
	setString(out, "message", appErr.Message)
	setString(out, "context", appErr.Context)
	setString(out, "help", appErr.Help)
	setString(out, "stack", appErr.Stack())
	if appErr.HideStack {
		out["hideStack"] = true
	}
	if len(appErr.ErrorDetails) > 0 {
		details := make([]any, len(appErr.ErrorDetails))
		for i, d := range appErr.ErrorDetails {
			details[i] = map[string]any(d)
		}
		out["errorDetails"] = details
	}
	return out
}

func setString(m map[string]any, key, value string) {
	if value != "" {
		m[key] = value
	}
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func firstString(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
