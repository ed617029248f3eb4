package telemetry_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.trai.ch/kiln/internal/adapters/telemetry"
	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports"
)

func TestInterfaceSatisfaction(_ *testing.T) {
	var _ ports.Tracer = (*telemetry.OTelTracer)(nil)
	var _ ports.Span = (*telemetry.OTelSpan)(nil)
	var _ ports.Tracer = (*telemetry.NoOpTracer)(nil)
	var _ ports.Span = (*telemetry.NoOpSpan)(nil)
}

func newRecordingTracer(t *testing.T) (*telemetry.OTelTracer, *tracetest.SpanRecorder) {
	t.Helper()

	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	return telemetry.NewOTelTracerWithProvider(tp, telemetry.InstrumentationName), recorder
}

func TestOTelTracer_Attributes(t *testing.T) {
	tracer, recorder := newRecordingTracer(t)

	_, span := tracer.Start(context.Background(), "resolve")
	span.SetAttribute("tool", "make")
	span.SetAttribute("jobs", 4)
	span.SetAttribute("size", int64(1024))
	span.SetAttribute("from_cache", true)
	span.SetAttribute("key", domain.CacheKey("v1-linux-make-4.4.1"))
	span.SetAttribute("argv", []string{"make", "-j", "4"})
	span.End()

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "resolve", ended[0].Name())

	attrs := ended[0].Attributes()
	assert.Contains(t, attrs, attribute.String("tool", "make"))
	assert.Contains(t, attrs, attribute.Int("jobs", 4))
	assert.Contains(t, attrs, attribute.Int64("size", 1024))
	assert.Contains(t, attrs, attribute.Bool("from_cache", true))
	assert.Contains(t, attrs, attribute.String("key", "v1-linux-make-4.4.1"))
	assert.Contains(t, attrs, attribute.StringSlice("argv", []string{"make", "-j", "4"}))
}

func TestOTelTracer_RecordError(t *testing.T) {
	tracer, recorder := newRecordingTracer(t)

	_, span := tracer.Start(context.Background(), "build")
	span.RecordError(nil)
	span.RecordError(errors.New("exit status 2"))
	span.End()

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, codes.Error, ended[0].Status().Code)
	assert.Equal(t, "exit status 2", ended[0].Status().Description)
	require.Len(t, ended[0].Events(), 1)
}

func TestOTelTracer_Nesting(t *testing.T) {
	tracer, recorder := newRecordingTracer(t)

	ctx, parent := tracer.Start(context.Background(), "resolve")
	_, child := tracer.Start(ctx, "download")
	child.End()
	parent.End()

	ended := recorder.Ended()
	require.Len(t, ended, 2)
	assert.Equal(t, ended[1].SpanContext().SpanID(), ended[0].Parent().SpanID())
}

func TestOTelTracer_GlobalProvider(t *testing.T) {
	tracer := telemetry.NewOTelTracer("test-tracer")

	_, span := tracer.Start(context.Background(), "test-span")
	assert.NotNil(t, span)
	span.SetAttribute("key", "value")
	span.End()
}

func TestNoOpTracer_Start(t *testing.T) {
	tracer := telemetry.NewNoOpTracer()

	ctx := context.Background()
	got, span := tracer.Start(ctx, "test-span")
	assert.Equal(t, ctx, got)

	span.SetAttribute("key", "value")
	span.RecordError(errors.New("ignored"))
	span.End()
}
