package logger

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/gaborage/go-ignition/apperrors"
)

// Fields is a set of structured record keys.
type Fields map[string]any

// Record keys with dedicated serializers.
const (
	KeyMessage  = "msg"
	KeyError    = "err"
	KeyRequest  = "req"
	KeyResponse = "res"
)

// Merge combines positional log arguments into one flat field set:
//   - an error becomes the "err" key (the last one wins)
//   - maps and structs are shallow-merged, later keys win
//   - anything else is stringified and space-joined into "msg"
//
// When only an error is given, "msg" defaults to its message.
// The result is not yet serialized; see (*ZeroLogger).record.
func Merge(args ...any) Fields {
	out := make(Fields)
	var parts []string

	for _, arg := range args {
		switch v := arg.(type) {
		case nil:
			continue
		case error:
			out[KeyError] = v
		case string:
			parts = append(parts, v)
		case *Request, Request, *http.Request:
			out[KeyRequest] = v
		case *Response, Response:
			out[KeyResponse] = v
		case Fields:
			mergeInto(out, v)
		case map[string]any:
			mergeInto(out, v)
		case map[string]string:
			for k, s := range v {
				out[k] = s
			}
		case fmt.Stringer:
			parts = append(parts, v.String())
		default:
			if m, ok := structFields(v); ok {
				mergeInto(out, m)
				continue
			}
			parts = append(parts, fmt.Sprint(v))
		}
	}

	if len(parts) > 0 {
		out[KeyMessage] = strings.Join(parts, " ")
	}
	if _, hasMsg := out[KeyMessage]; !hasMsg {
		if err, ok := out[KeyError].(error); ok {
			out[KeyMessage] = errorMessage(err)
		}
	}
	return out
}

func mergeInto(dst Fields, src map[string]any) {
	for k, v := range src {
		dst[k] = v
	}
}

// structFields converts a struct (or pointer to one) into a field map.
func structFields(v any) (map[string]any, bool) {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil, false
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil, false
	}
	m, ok := defaultRedactor.Redact(v).(map[string]any)
	return m, ok
}

func errorMessage(err error) string {
	var appErr *apperrors.Error
	if errors.As(err, &appErr) && appErr != nil {
		return appErr.Message
	}
	return err.Error()
}
