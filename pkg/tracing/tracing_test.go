package tracing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func installRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := tracesdk.NewTracerProvider(tracesdk.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})
	return recorder
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.False(t, cfg.Enabled)
	assert.Equal(t, "worldview", cfg.ServiceName)
	assert.Equal(t, 1.0, cfg.SampleRate)
}

func TestInit_Disabled(t *testing.T) {
	tp, err := Init(DefaultConfig())
	require.NoError(t, err)
	assert.NoError(t, tp.Shutdown(context.Background()))
}

func TestTraceDeviceAction_RecordsAttributes(t *testing.T) {
	recorder := installRecorder(t)

	ctx, span := TraceDeviceAction(context.Background(), "start_recording", "tab-1")
	AddSpanAttributes(ctx, SessionIDKey.String("AB12CD"))
	MeasureDuration(ctx, time.Now())
	span.End()

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "device.start_recording", ended[0].Name())

	attrs := map[attribute.Key]attribute.Value{}
	for _, kv := range ended[0].Attributes() {
		attrs[kv.Key] = kv.Value
	}
	assert.Equal(t, "tab-1", attrs[ProfileKey].AsString())
	assert.Equal(t, "AB12CD", attrs[SessionIDKey].AsString())
	_, ok := attrs[DurationKey]
	assert.True(t, ok)
}

func TestRecordError_SetsStatus(t *testing.T) {
	recorder := installRecorder(t)

	ctx, span := TraceStoreOperation(context.Background(), "load", "sqlite")
	RecordError(ctx, errors.New("disk gone"))
	span.End()

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, codes.Error, ended[0].Status().Code)
	assert.Equal(t, "disk gone", ended[0].Status().Description)
}

func TestTraceHTTPRequest(t *testing.T) {
	recorder := installRecorder(t)

	_, span := TraceHTTPRequest(context.Background(), "GET", "/api/v1/devices")
	span.End()

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "http.GET", ended[0].Name())
}
