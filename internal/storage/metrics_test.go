package storage

import (
	"context"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newTestMetrics(t *testing.T) *Metrics {
	m, err := NewMetrics(prometheus.NewRegistry())
	require.NoError(t, err)
	return m
}

func TestInstrument_PreservesStreaming(t *testing.T) {
	m := newTestMetrics(t)

	fs := Instrument(newTestFilesystem(t), "filesystem", m)
	_, ok := fs.(StreamCreator)
	assert.True(t, ok)

	b := Instrument(newTestBolt(t), "bolt", m)
	_, ok = b.(StreamCreator)
	assert.False(t, ok)
}

func TestInstrument_CountsResults(t *testing.T) {
	m := newTestMetrics(t)
	b := Instrument(newTestBolt(t), "bolt", m)
	ctx := context.Background()

	require.NoError(t, b.Create(ctx, "abc1234", []byte("hello"), "text"))
	assert.ErrorIs(t, b.Create(ctx, "abc1234", []byte("again"), "text"), ErrConflict)
	_, err := b.Retrieve(ctx, "abc1234")
	require.NoError(t, err)
	_, err = b.Retrieve(ctx, "nothere")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ops.WithLabelValues("bolt", "create", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ops.WithLabelValues("bolt", "create", "conflict")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ops.WithLabelValues("bolt", "retrieve", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ops.WithLabelValues("bolt", "retrieve", "not_found")))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.bytes.WithLabelValues("bolt")))
}

func TestInstrument_StreamBytes(t *testing.T) {
	m := newTestMetrics(t)
	b := Instrument(newTestFilesystem(t), "filesystem", m)

	n, err := b.(StreamCreator).CreateFrom(context.Background(), "abc1234", strings.NewReader("streamed"), "text")
	require.NoError(t, err)
	assert.Equal(t, int64(8), n)
	assert.Equal(t, 8.0, testutil.ToFloat64(m.bytes.WithLabelValues("filesystem")))
}

func TestInstrument_DelegatesPingAndClose(t *testing.T) {
	m := newTestMetrics(t)

	fs := Instrument(newTestFilesystem(t), "filesystem", m)
	assert.NoError(t, fs.(Pinger).Ping(context.Background()))
	// Filesystem holds nothing to close.
	assert.NoError(t, fs.(Closer).Close())
}

func TestNewMetrics_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewMetrics(reg)
	require.NoError(t, err)

	_, err = NewMetrics(reg)
	assert.Error(t, err)
}

func TestResultLabel(t *testing.T) {
	assert.Equal(t, "ok", resultLabel(nil))
	assert.Equal(t, "pool_exhausted", resultLabel(ErrPoolExhausted))
	assert.Equal(t, "serialization", resultLabel(ErrSerialization))
	assert.Equal(t, "error", resultLabel(ErrIO))
}

func TestInstrument_Spans(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr)))
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	b := Instrument(newTestBolt(t), "bolt", newTestMetrics(t))
	ctx := context.Background()

	require.NoError(t, b.Create(ctx, "abc1234", []byte("hello"), "text"))
	_, err := b.Retrieve(ctx, "zzzzzzz")
	assert.ErrorIs(t, err, ErrNotFound)
	canceled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = b.Retrieve(canceled, "abc1234")
	require.ErrorIs(t, err, context.Canceled)

	spans := sr.Ended()
	require.Len(t, spans, 3)

	assert.Equal(t, "storage.create", spans[0].Name())
	assert.Contains(t, spans[0].Attributes(), attribute.String("paste.backend", "bolt"))
	assert.Contains(t, spans[0].Attributes(), attribute.String("paste.id", "abc1234"))
	assert.Contains(t, spans[0].Attributes(), attribute.String("paste.result", "ok"))

	assert.Equal(t, "storage.retrieve", spans[1].Name())
	assert.Equal(t, codes.Unset, spans[1].Status().Code)

	assert.Equal(t, codes.Error, spans[2].Status().Code)
}
