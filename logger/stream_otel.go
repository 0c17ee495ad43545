package logger

import (
	"context"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	"go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/trace"

	"github.com/gaborage/go-ignition/apperrors"
)

const (
	// OTelEndpointStdout selects the stdout exporter.
	OTelEndpointStdout = "stdout"

	otelScope = "github.com/gaborage/go-ignition/logger"
)

// otelSink re-emits encoded records as OpenTelemetry log records.
type otelSink struct {
	provider *sdklog.LoggerProvider
	owned    bool
	logger   log.Logger
}

func buildOTel(c *core) error {
	o := c.opts.OTel
	match, err := compileMatch(TransportOTel, o.Match)
	if err != nil {
		return err
	}

	provider, owned := o.Provider, false
	if provider == nil {
		if o.Endpoint == "" {
			return apperrors.New(apperrors.IncorrectUsageError,
				apperrors.WithMessage("The otel transport requires an endpoint or a logger provider."),
				apperrors.WithHelp("Set logging.otel.endpoint to host:port or \"stdout\"."),
			)
		}
		exporter, err := newOTelExporter(c.opts)
		if err != nil {
			c.warn("Cannot create OpenTelemetry log exporter: " + err.Error())
			return nil
		}
		provider = sdklog.NewLoggerProvider(sdklog.WithProcessor(newOTelProcessor(o.Endpoint, exporter)))
		owned = true
	}

	c.addStream(&Stream{
		Name:  TransportOTel,
		Kind:  KindRemote,
		Level: c.level,
		match: match,
		w:     newOTelSink(provider, owned, c.opts),
	})
	return nil
}

func newOTelExporter(opts Options) (sdklog.Exporter, error) {
	o := opts.OTel
	if o.Endpoint == OTelEndpointStdout {
		return stdoutlog.New(stdoutlog.WithWriter(opts.Stdout))
	}

	httpOpts := []otlploghttp.Option{
		otlploghttp.WithEndpoint(stripScheme(o.Endpoint)),
	}
	if o.Insecure {
		httpOpts = append(httpOpts, otlploghttp.WithInsecure())
	}
	if len(o.Headers) > 0 {
		httpOpts = append(httpOpts, otlploghttp.WithHeaders(o.Headers))
	}
	return otlploghttp.New(context.Background(), httpOpts...)
}

// The stdout exporter is synchronous so local output keeps record order.
func newOTelProcessor(endpoint string, exporter sdklog.Exporter) sdklog.Processor {
	if endpoint == OTelEndpointStdout {
		return sdklog.NewSimpleProcessor(exporter)
	}
	return sdklog.NewBatchProcessor(exporter)
}

func stripScheme(endpoint string) string {
	for _, scheme := range []string{"https://", "http://"} {
		if strings.HasPrefix(endpoint, scheme) {
			return strings.TrimPrefix(endpoint, scheme)
		}
	}
	return endpoint
}

func newOTelSink(provider *sdklog.LoggerProvider, owned bool, opts Options) *otelSink {
	return &otelSink{
		provider: provider,
		owned:    owned,
		logger: provider.Logger(otelScope, log.WithInstrumentationAttributes(
			attribute.String("domain", opts.Domain),
			attribute.String("env", opts.Env),
		)),
	}
}

func (s *otelSink) Write(p []byte) (int, error) {
	var entry map[string]any
	if err := json.Unmarshal(p, &entry); err != nil {
		return len(p), nil
	}
	rec, ctx := buildLogRecord(entry)
	s.logger.Emit(ctx, rec)
	return len(p), nil
}

// Close shuts the provider down only when the sink created it.
func (s *otelSink) Close() error {
	if !s.owned {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.provider.Shutdown(ctx)
}

func buildLogRecord(entry map[string]any) (log.Record, context.Context) {
	var rec log.Record

	ctx := context.Background()
	if sc, ok := extractSpanContext(entry); ok {
		ctx = trace.ContextWithSpanContext(ctx, sc)
	}

	if ts, ok := entry["time"].(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			rec.SetTimestamp(t)
		}
	}
	if lvl, ok := parseRecordLevel(entry["level"]); ok {
		rec.SetSeverity(otelSeverity(lvl))
		rec.SetSeverityText(lvl.String())
	}
	if msg, ok := entry[KeyMessage].(string); ok {
		rec.SetBody(log.StringValue(msg))
	}

	attrs := make([]log.KeyValue, 0, len(entry))
	for k, v := range entry {
		if k == "time" || k == "level" || k == KeyMessage {
			continue
		}
		attrs = append(attrs, log.KeyValue{Key: k, Value: toLogValue(v)})
	}
	if len(attrs) > 0 {
		rec.AddAttributes(attrs...)
	}
	return rec, ctx
}

func otelSeverity(l Level) log.Severity {
	switch {
	case l >= LevelError:
		return log.SeverityError
	case l >= LevelWarn:
		return log.SeverityWarn
	default:
		return log.SeverityInfo
	}
}

// extractSpanContext consumes trace_id, span_id and trace_flags fields so a
// record logged inside a traced request is correlated with its span.
func extractSpanContext(entry map[string]any) (trace.SpanContext, bool) {
	tid, _ := entry["trace_id"].(string)
	sid, _ := entry["span_id"].(string)
	traceID, terr := trace.TraceIDFromHex(tid)
	spanID, serr := trace.SpanIDFromHex(sid)
	if terr != nil || serr != nil {
		return trace.SpanContext{}, false
	}
	flags, _ := parseTraceFlags(entry["trace_flags"])
	delete(entry, "trace_id")
	delete(entry, "span_id")
	delete(entry, "trace_flags")

	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: flags,
		Remote:     true,
	})
	return sc, sc.IsValid()
}

func parseTraceFlags(value any) (trace.TraceFlags, bool) {
	switch v := value.(type) {
	case string:
		if strings.HasPrefix(v, "0x") || strings.HasPrefix(v, "0X") {
			if parsed, err := strconv.ParseUint(v[2:], 16, 8); err == nil {
				return trace.TraceFlags(parsed), true
			}
		}
		if parsed, err := strconv.ParseUint(v, 10, 8); err == nil {
			return trace.TraceFlags(parsed), true
		}
	case float64:
		if v >= 0 && v <= math.MaxUint8 {
			return trace.TraceFlags(uint8(v)), true
		}
	}
	return 0, false
}

func toLogValue(v any) log.Value {
	switch val := v.(type) {
	case nil:
		return log.StringValue("")
	case string:
		return log.StringValue(val)
	case float64:
		if val == math.Trunc(val) && math.Abs(val) < 1<<53 {
			return log.Int64Value(int64(val))
		}
		return log.Float64Value(val)
	case bool:
		return log.BoolValue(val)
	case []any:
		slice := make([]log.Value, len(val))
		for i, item := range val {
			slice[i] = toLogValue(item)
		}
		return log.SliceValue(slice...)
	case map[string]any:
		kvs := make([]log.KeyValue, 0, len(val))
		for k, item := range val {
			kvs = append(kvs, log.KeyValue{Key: k, Value: toLogValue(item)})
		}
		return log.MapValue(kvs...)
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return log.StringValue("")
		}
		return log.StringValue(string(b))
	}
}
