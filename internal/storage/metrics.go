package storage

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"pasteapi/internal/model"
)

// Metrics holds storage operation collectors.
type Metrics struct {
	ops      *prometheus.CounterVec
	duration *prometheus.HistogramVec
	bytes    *prometheus.CounterVec
}

// NewMetrics registers the storage collectors on reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		ops: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "paste_storage_operations_total",
				Help: "Storage operations by backend, operation and result.",
			},
			[]string{"backend", "op", "result"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "paste_storage_operation_duration_seconds",
				Help:    "Latency of storage operations.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"backend", "op"},
		),
		bytes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "paste_storage_bytes_written_total",
				Help: "Content bytes committed to storage.",
			},
			[]string{"backend"},
		),
	}

	for _, c := range []prometheus.Collector{m.ops, m.duration, m.bytes} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Instrument wraps b so every call is counted, timed and traced as a child
// span. The wrapper keeps b's optional capabilities: it is a StreamCreator
// only if b is one.
func Instrument(b Backend, name string, m *Metrics) Backend {
	base := &instrumented{inner: b, name: name, m: m, tracer: otel.Tracer("pasteapi/storage")}
	if sc, ok := b.(StreamCreator); ok {
		return &instrumentedStream{instrumented: base, stream: sc}
	}
	return base
}

type instrumented struct {
	inner  Backend
	name   string
	m      *Metrics
	tracer trace.Tracer
}

func (i *instrumented) Create(ctx context.Context, id string, content []byte, meta string) error {
	ctx, span := i.start(ctx, "create", id)
	start := time.Now()
	err := i.inner.Create(ctx, id, content, meta)
	i.observe(span, "create", start, err)
	if err == nil {
		i.m.bytes.WithLabelValues(i.name).Add(float64(len(content)))
	}
	return err
}

func (i *instrumented) Retrieve(ctx context.Context, id string) (*model.Paste, error) {
	ctx, span := i.start(ctx, "retrieve", id)
	start := time.Now()
	p, err := i.inner.Retrieve(ctx, id)
	i.observe(span, "retrieve", start, err)
	return p, err
}

// Ping delegates when the wrapped backend supports it.
func (i *instrumented) Ping(ctx context.Context) error {
	if p, ok := i.inner.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// Close delegates when the wrapped backend holds resources.
func (i *instrumented) Close() error {
	if c, ok := i.inner.(Closer); ok {
		return c.Close()
	}
	return nil
}

func (i *instrumented) start(ctx context.Context, op, id string) (context.Context, trace.Span) {
	return i.tracer.Start(ctx, "storage."+op,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("paste.backend", i.name),
			attribute.String("paste.id", id),
		))
}

func (i *instrumented) observe(span trace.Span, op string, start time.Time, err error) {
	result := resultLabel(err)
	i.m.duration.WithLabelValues(i.name, op).Observe(time.Since(start).Seconds())
	i.m.ops.WithLabelValues(i.name, op, result).Inc()

	span.SetAttributes(attribute.String("paste.result", result))
	// Misses and collisions are normal outcomes, not span errors.
	if err != nil && result != "not_found" && result != "conflict" {
		span.RecordError(err)
		span.SetStatus(codes.Error, result)
	}
	span.End()
}

type instrumentedStream struct {
	*instrumented
	stream StreamCreator
}

func (i *instrumentedStream) CreateFrom(ctx context.Context, id string, r io.Reader, meta string) (int64, error) {
	ctx, span := i.start(ctx, "create", id)
	start := time.Now()
	n, err := i.stream.CreateFrom(ctx, id, r, meta)
	i.observe(span, "create", start, err)
	if err == nil {
		i.m.bytes.WithLabelValues(i.name).Add(float64(n))
	}
	return n, err
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrPoolExhausted):
		return "pool_exhausted"
	case errors.Is(err, ErrSerialization):
		return "serialization"
	default:
		return "error"
	}
}
