package logger

import (
	"encoding"
	"encoding/json"
	"reflect"
	"strings"
)

const (
	// DefaultMaxDepth bounds how deep Redact descends into nested values.
	// Containers below it are replaced by TruncatedValue.
	DefaultMaxDepth = 32

	// TruncatedValue stands in for containers nested deeper than the max depth.
	TruncatedValue = "[Truncated]"
)

// DefaultSensitiveKeys are matched case-insensitively as substrings of map keys.
var DefaultSensitiveKeys = []string{"pin", "password", "authorization", "cookie"}

// Redactor removes sensitive keys from arbitrarily nested values.
// It never mutates its input and is safe for concurrent use.
type Redactor struct {
	keys     []string
	maxDepth int
}

// NewRedactor creates a Redactor for the given key fragments.
// With no arguments DefaultSensitiveKeys are used.
func NewRedactor(keys ...string) *Redactor {
	if len(keys) == 0 {
		keys = DefaultSensitiveKeys
	}
	lower := make([]string, 0, len(keys))
	for _, k := range keys {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			lower = append(lower, k)
		}
	}
	return &Redactor{keys: lower, maxDepth: DefaultMaxDepth}
}

var defaultRedactor = NewRedactor()

// Redact returns a copy of v without sensitive keys, using the default key set.
func Redact(v any) any {
	return defaultRedactor.Redact(v)
}

// Redact returns a copy of v in which every map key containing one of the
// sensitive fragments has been removed, at every nesting level. Structs are
// converted to maps keyed by their json names. JSON bytes and json.Marshaler
// values are decoded and redacted like any other container.
func (r *Redactor) Redact(v any) any {
	visited := make(map[uintptr]struct{})
	return r.redactValue(v, visited, r.maxDepth)
}

// RedactFields redacts a flat field map and always returns a map.
func (r *Redactor) RedactFields(fields map[string]any) map[string]any {
	out, ok := r.Redact(fields).(map[string]any)
	if !ok {
		return fields
	}
	return out
}

// IsSensitive reports whether key would be removed.
func (r *Redactor) IsSensitive(key string) bool {
	lower := strings.ToLower(key)
	for _, k := range r.keys {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}

// redactValue walks one subtree. A panic anywhere inside returns the subtree as given.
func (r *Redactor) redactValue(v any, visited map[uintptr]struct{}, depth int) (out any) {
	if v == nil {
		return v
	}
	defer func() {
		if rec := recover(); rec != nil {
			out = v
		}
	}()

	decoded, isJSON := decodeJSONValue(v)
	if depth <= 0 {
		if !isJSON && isScalar(v) {
			return v
		}
		return TruncatedValue
	}
	if m, ok := v.(map[string]any); ok {
		return r.redactStringMap(m, visited, depth)
	}
	if isJSON {
		return r.redactValue(decoded, visited, depth)
	}
	if isOpaque(v) {
		return v
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return v
		}
		return r.redactReflectMap(rv, visited, depth)
	case reflect.Slice, reflect.Array:
		return r.redactSlice(rv, visited, depth)
	case reflect.Struct:
		return r.redactStruct(rv, 0, visited, depth)
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return v
		}
		elem := rv.Elem()
		if elem.Kind() == reflect.Struct {
			return r.redactStruct(elem, rv.Pointer(), visited, depth)
		}
		return r.redactValue(elem.Interface(), visited, depth)
	default:
		return v
	}
}

func (r *Redactor) redactStringMap(m map[string]any, visited map[uintptr]struct{}, depth int) any {
	ptr := reflect.ValueOf(m).Pointer()
	if _, seen := visited[ptr]; seen {
		return m
	}
	visited[ptr] = struct{}{}
	defer delete(visited, ptr)

	out := make(map[string]any, len(m))
	for k, v := range m {
		if r.IsSensitive(k) {
			continue
		}
		out[k] = r.redactValue(v, visited, depth-1)
	}
	return out
}

func (r *Redactor) redactReflectMap(rv reflect.Value, visited map[uintptr]struct{}, depth int) any {
	if rv.IsNil() {
		return rv.Interface()
	}
	ptr := rv.Pointer()
	if _, seen := visited[ptr]; seen {
		return rv.Interface()
	}
	visited[ptr] = struct{}{}
	defer delete(visited, ptr)

	out := make(map[string]any, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		k := iter.Key().String()
		if r.IsSensitive(k) {
			continue
		}
		out[k] = r.redactValue(iter.Value().Interface(), visited, depth-1)
	}
	return out
}

func (r *Redactor) redactSlice(rv reflect.Value, visited map[uintptr]struct{}, depth int) any {
	if isScalarKind(rv.Type().Elem().Kind()) {
		return rv.Interface()
	}
	if rv.Kind() == reflect.Slice {
		if rv.IsNil() {
			return rv.Interface()
		}
		ptr := rv.Pointer()
		if _, seen := visited[ptr]; seen {
			return rv.Interface()
		}
		visited[ptr] = struct{}{}
		defer delete(visited, ptr)
	}

	out := make([]any, rv.Len())
	for i := range out {
		out[i] = r.redactValue(rv.Index(i).Interface(), visited, depth-1)
	}
	return out
}

func (r *Redactor) redactStruct(sv reflect.Value, ptr uintptr, visited map[uintptr]struct{}, depth int) any {
	if ptr != 0 {
		if _, seen := visited[ptr]; seen {
			return sv.Interface()
		}
		visited[ptr] = struct{}{}
		defer delete(visited, ptr)
	}

	st := sv.Type()
	out := make(map[string]any, sv.NumField())
	for i := 0; i < sv.NumField(); i++ {
		field := st.Field(i)
		if !field.IsExported() {
			continue
		}
		name, omitEmpty := jsonFieldName(&field)
		if name == "" || r.IsSensitive(name) {
			continue
		}
		fv := sv.Field(i)
		if omitEmpty && fv.IsZero() {
			continue
		}
		out[name] = r.redactValue(fv.Interface(), visited, depth-1)
	}
	return out
}

// jsonFieldName mirrors encoding/json naming; an empty name means skip.
func jsonFieldName(field *reflect.StructField) (string, bool) {
	tag := field.Tag.Get("json")
	if tag == "-" {
		return "", false
	}
	name, opts, _ := strings.Cut(tag, ",")
	if name == "" {
		name = field.Name
	}
	return name, strings.Contains(opts, "omitempty")
}

// decodeJSONValue turns raw JSON and json.Marshaler values into plain
// maps and slices so their keys can be redacted. Values that encode to a
// JSON scalar, and bytes that are not JSON, report false.
func decodeJSONValue(v any) (any, bool) {
	var raw []byte
	switch val := v.(type) {
	case error:
		return nil, false
	case json.RawMessage:
		raw = val
	case []byte:
		raw = val
	case json.Marshaler:
		b, err := val.MarshalJSON()
		if err != nil {
			return nil, false
		}
		raw = b
	default:
		return nil, false
	}

	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, false
	}
	switch decoded.(type) {
	case map[string]any, []any:
		return decoded, true
	}
	return nil, false
}

// isOpaque reports values that encode themselves and must not be taken apart.
func isOpaque(v any) bool {
	switch v.(type) {
	case json.Marshaler, encoding.TextMarshaler, error, []byte:
		return true
	}
	return false
}

func isScalar(v any) bool {
	if isOpaque(v) {
		return true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer && !rv.IsNil() {
		rv = rv.Elem()
	}
	return isScalarKind(rv.Kind())
}

func isScalarKind(k reflect.Kind) bool {
	switch k {
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}
