// Package trace reads caller-supplied W3C trace context so request records
// can be correlated with the caller's span. It never starts spans itself.
package trace

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"

	oteltrace "go.opentelemetry.io/otel/trace"
)

// HeaderTraceParent is the W3C trace context header name.
const HeaderTraceParent = "traceparent"

// Record fields carrying the trace context.
const (
	FieldTraceID    = "trace_id"
	FieldSpanID     = "span_id"
	FieldTraceFlags = "trace_flags"
)

type contextKey struct{}

// Parent is a parsed traceparent header.
type Parent struct {
	TraceID oteltrace.TraceID
	SpanID  oteltrace.SpanID
	Flags   oteltrace.TraceFlags
}

// ParseParent parses a traceparent value ("00-<trace-id>-<span-id>-<flags>").
// All-zero ids, upper-case hex and version ff are rejected. Versions after 00
// may carry extra fields, which are ignored.
func ParseParent(header string) (Parent, bool) {
	parts := strings.Split(strings.TrimSpace(header), "-")
	if len(parts) < 4 {
		return Parent{}, false
	}
	version := parts[0]
	if !isLowerHex(version, 2) || version == "ff" || (version == "00" && len(parts) != 4) {
		return Parent{}, false
	}

	traceID, err := oteltrace.TraceIDFromHex(parts[1])
	if err != nil {
		return Parent{}, false
	}
	spanID, err := oteltrace.SpanIDFromHex(parts[2])
	if err != nil {
		return Parent{}, false
	}
	if !isLowerHex(parts[3], 2) {
		return Parent{}, false
	}
	flags, _ := hex.DecodeString(parts[3])

	return Parent{TraceID: traceID, SpanID: spanID, Flags: oteltrace.TraceFlags(flags[0])}, true
}

// String renders p as a version 00 traceparent value.
func (p Parent) String() string {
	return fmt.Sprintf("00-%s-%s-%02x", p.TraceID, p.SpanID, byte(p.Flags))
}

// Fields returns the record fields for p.
func (p Parent) Fields() map[string]any {
	return map[string]any{
		FieldTraceID:    p.TraceID.String(),
		FieldSpanID:     p.SpanID.String(),
		FieldTraceFlags: fmt.Sprintf("0x%02x", byte(p.Flags)),
	}
}

// WithParent stores p in ctx.
func WithParent(ctx context.Context, p Parent) context.Context {
	return context.WithValue(ctx, contextKey{}, p)
}

// ParentFromContext returns the trace parent stored by WithParent.
func ParentFromContext(ctx context.Context) (Parent, bool) {
	if ctx == nil {
		return Parent{}, false
	}
	p, ok := ctx.Value(contextKey{}).(Parent)
	return p, ok
}

func isLowerHex(s string, n int) bool {
	if len(s) != n {
		return false
	}
	for _, r := range s {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return false
		}
	}
	return true
}
