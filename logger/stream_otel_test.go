package logger

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// memoryExporter keeps exported records for inspection.
type memoryExporter struct {
	mu      sync.Mutex
	records []sdklog.Record
}

func (e *memoryExporter) Export(_ context.Context, records []sdklog.Record) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, r := range records {
		e.records = append(e.records, r.Clone())
	}
	return nil
}

func (e *memoryExporter) Shutdown(context.Context) error   { return nil }
func (e *memoryExporter) ForceFlush(context.Context) error { return nil }

func (e *memoryExporter) snapshot() []sdklog.Record {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]sdklog.Record(nil), e.records...)
}

func newOTelTestLogger(t *testing.T, match string) (*ZeroLogger, *memoryExporter) {
	t.Helper()
	exp := &memoryExporter{}
	provider := sdklog.NewLoggerProvider(sdklog.WithProcessor(sdklog.NewSimpleProcessor(exp)))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	l := newTestLogger(t, Options{
		Transports: []string{TransportOTel},
		OTel:       OTelOptions{Provider: provider, Match: match},
	})
	return l, exp
}

func attributesOf(r *sdklog.Record) map[string]log.Value {
	out := make(map[string]log.Value)
	r.WalkAttributes(func(kv log.KeyValue) bool {
		out[kv.Key] = kv.Value
		return true
	})
	return out
}

func TestOTelTransportEmitsRecords(t *testing.T) {
	l, exp := newOTelTestLogger(t, "")

	l.Warn("hello", map[string]any{
		"trace_id": "4bf92f3577b34da6a3ce929d0e0e4736",
		"span_id":  "00f067aa0ba902b7",
		"count":    3,
		"ratio":    0.5,
		"nested":   map[string]any{"ok": true},
	})

	records := exp.snapshot()
	require.Len(t, records, 1)
	rec := records[0]

	assert.Equal(t, "hello", rec.Body().AsString())
	assert.Equal(t, log.SeverityWarn, rec.Severity())
	assert.Equal(t, "warn", rec.SeverityText())
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", rec.TraceID().String())
	assert.Equal(t, "00f067aa0ba902b7", rec.SpanID().String())
	assert.False(t, rec.Timestamp().IsZero())

	attrs := attributesOf(&rec)
	assert.NotContains(t, attrs, "trace_id")
	assert.NotContains(t, attrs, "span_id")
	assert.NotContains(t, attrs, KeyMessage)
	assert.NotContains(t, attrs, "level")
	assert.Equal(t, int64(3), attrs["count"].AsInt64())
	assert.InDelta(t, 0.5, attrs["ratio"].AsFloat64(), 1e-9)
	assert.Equal(t, log.KindMap, attrs["nested"].Kind())
}

func TestOTelTransportMatch(t *testing.T) {
	l, exp := newOTelTestLogger(t, "statusCode:5")

	l.Error("no error object")
	l.Info("kept")

	records := exp.snapshot()
	require.Len(t, records, 1)
	assert.Equal(t, "kept", records[0].Body().AsString())
}

func TestOTelSuppliedProviderIsNotShutDown(t *testing.T) {
	exp := &memoryExporter{}
	provider := sdklog.NewLoggerProvider(sdklog.WithProcessor(sdklog.NewSimpleProcessor(exp)))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })
	l := newTestLogger(t, Options{
		Transports: []string{TransportOTel},
		OTel:       OTelOptions{Provider: provider},
	})

	require.NoError(t, l.Close())

	var rec log.Record
	rec.SetBody(log.StringValue("after close"))
	provider.Logger("test").Emit(context.Background(), rec)

	records := exp.snapshot()
	require.Len(t, records, 1)
	assert.Equal(t, "after close", records[0].Body().AsString())
}

func TestOTelStdoutExporter(t *testing.T) {
	var stdout bytes.Buffer
	clearLoggerEnv(t)
	l, err := New(Options{
		Transports: []string{TransportStdout, TransportOTel},
		OTel:       OTelOptions{Endpoint: OTelEndpointStdout},
		Stdout:     &stdout,
	})
	require.NoError(t, err)

	l.Info("otel-stdout-marker")
	require.NoError(t, l.Close())

	assert.Equal(t, 2, strings.Count(stdout.String(), "otel-stdout-marker"))
}

func TestStripScheme(t *testing.T) {
	assert.Equal(t, "collector:4318", stripScheme("http://collector:4318"))
	assert.Equal(t, "collector:4318", stripScheme("https://collector:4318"))
	assert.Equal(t, "collector:4318", stripScheme("collector:4318"))
}

func TestToLogValue(t *testing.T) {
	assert.Equal(t, log.StringValue(""), toLogValue(nil))
	assert.Equal(t, log.Int64Value(2), toLogValue(float64(2)))
	assert.Equal(t, log.Float64Value(2.5), toLogValue(2.5))
	assert.Equal(t, log.BoolValue(true), toLogValue(true))
	assert.Equal(t, log.KindSlice, toLogValue([]any{"a"}).Kind())
}
