package observability

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestInitOTel_Disabled(t *testing.T) {
	logger := NewLogger(ErrorLevel, &bytes.Buffer{})
	providers, err := InitOTel(context.Background(), OTelConfig{Enabled: false}, logger)
	require.NoError(t, err)
	assert.Nil(t, providers)
	assert.NoError(t, ShutdownOTel(context.Background(), nil, logger))
}

func TestInitOTel_RequiresEndpoint(t *testing.T) {
	logger := NewLogger(ErrorLevel, &bytes.Buffer{})
	_, err := InitOTel(context.Background(), OTelConfig{Enabled: true}, logger)
	assert.Error(t, err)
}

func withRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(previous)
		_ = tp.Shutdown(context.Background())
	})
	return recorder
}

func TestStartSpan(t *testing.T) {
	recorder := withRecorder(t)

	_, span := StartSpan(context.Background(), "crosstenant.check", attribute.Int64("user_id", 5))
	EndSpan(span, errors.New("lookup failed"))

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "crosstenant.check", spans[0].Name())
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Contains(t, spans[0].Attributes(), attribute.Int64("user_id", 5))
}

func TestUpdateLoggerWithTraceContext(t *testing.T) {
	withRecorder(t)

	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	// no active span
	assert.Same(t, logger, UpdateLoggerWithTraceContext(context.Background(), logger))

	ctx, span := StartSpan(context.Background(), "op")
	defer span.End()

	UpdateLoggerWithTraceContext(ctx, logger).Info("traced")
	assert.Contains(t, buf.String(), span.SpanContext().TraceID().String())
}
