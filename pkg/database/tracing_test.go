package database

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func recordSpans(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	sr := tracetest.NewSpanRecorder()
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr)))
	t.Cleanup(func() { otel.SetTracerProvider(prev) })
	return sr
}

func TestTraceQuery_RecordsSpan(t *testing.T) {
	sr := recordSpans(t)

	ctx, end := TraceQuery(context.Background(), "GetUser", "SELECT id FROM users WHERE id = $1")
	assert.True(t, trace.SpanContextFromContext(ctx).IsValid())
	end(nil)

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "db.GetUser", spans[0].Name())
	assert.Equal(t, trace.SpanKindClient, spans[0].SpanKind())
	assert.Equal(t, codes.Unset, spans[0].Status().Code)
}

func TestTraceQuery_RecordsError(t *testing.T) {
	sr := recordSpans(t)

	_, end := TraceQuery(context.Background(), "UpdateUser", "UPDATE users")
	end(errors.New("deadlock detected"))

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Equal(t, "deadlock detected", spans[0].Status().Description)
}

func TestSlowQueryLogging(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(slog.NewJSONHandler(&buf, nil))
	t.Cleanup(func() { SetSlowQueryLogging(0, nil) })

	SetSlowQueryLogging(time.Nanosecond, l)
	_, end := TraceQuery(context.Background(), "ListUsers", "SELECT * FROM users")
	time.Sleep(time.Millisecond)
	end(nil)

	assert.Contains(t, buf.String(), "slow query")
	assert.Contains(t, buf.String(), "ListUsers")

	buf.Reset()
	SetSlowQueryLogging(time.Hour, l)
	_, end = TraceQuery(context.Background(), "ListUsers", "SELECT * FROM users")
	end(nil)
	assert.Empty(t, buf.String())

	SetSlowQueryLogging(0, l)
	_, end = TraceQuery(context.Background(), "ListUsers", "SELECT * FROM users")
	end(nil)
	assert.Empty(t, buf.String())
}
