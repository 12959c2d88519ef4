package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"pasteapi/internal/ident"
	"pasteapi/internal/model"
	"pasteapi/internal/storage"
)

// MaxMetaLength bounds the language tag in bytes.
const MaxMetaLength = 64

var (
	ErrIDRequired   = errors.New("id is required")
	ErrNotFound     = errors.New("paste not found")
	ErrBodyRequired = errors.New("body is required")
	ErrMetaTooLong  = fmt.Errorf("meta exceeds %d bytes", MaxMetaLength)
	ErrTruncated    = errors.New("body ended before the declared length")
	ErrTooLarge     = errors.New("body exceeds the size limit")
)

// CreateInput is a paste upload as it arrives from the transport.
type CreateInput struct {
	Body io.Reader
	Meta string
	// Size is the declared body length, or -1 when unknown.
	Size int64
}

// CreateResult reports the stored id and the number of content bytes persisted.
type CreateResult struct {
	ID    string `json:"id"`
	Bytes int64  `json:"bytes"`
}

// IDSource hands out candidate paste ids.
type IDSource interface {
	Next() (ident.ID, error)
}

// Options tunes ingestion.
type Options struct {
	// DefaultMeta replaces an empty language tag.
	DefaultMeta string
	// MaxAttempts bounds how many fresh ids are tried on collision.
	MaxAttempts int
	// MaxBytes caps the body. Zero disables the cap.
	MaxBytes int64
	Log      logrus.FieldLogger
}

// PasteService defines the use cases for handling pastes.
type PasteService interface {
	// Create consumes the body, assigns a fresh id and persists the paste.
	// A failed read never leaves a retrievable paste behind.
	Create(ctx context.Context, in CreateInput) (*CreateResult, error)

	// Get returns a single paste by its id.
	Get(ctx context.Context, id string) (*model.Paste, error)
}

type pasteService struct {
	backend storage.Backend
	ids     IDSource
	opts    Options
	log     logrus.FieldLogger
}

// NewPasteService constructs a PasteService over one backend chosen at startup.
func NewPasteService(backend storage.Backend, ids IDSource, opts Options) PasteService {
	if opts.DefaultMeta == "" {
		opts.DefaultMeta = model.DefaultMeta
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	log := opts.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &pasteService{
		backend: backend,
		ids:     ids,
		opts:    opts,
		log:     log.WithField("component", "paste_service"),
	}
}

func (s *pasteService) Create(ctx context.Context, in CreateInput) (*CreateResult, error) {
	if in.Body == nil {
		return nil, ErrBodyRequired
	}
	meta := in.Meta
	if meta == "" {
		meta = s.opts.DefaultMeta
	}
	if len(meta) > MaxMetaLength {
		return nil, ErrMetaTooLong
	}
	if s.opts.MaxBytes > 0 && in.Size > s.opts.MaxBytes {
		return nil, ErrTooLarge
	}

	body := newBodyReader(in.Body, in.Size, s.opts.MaxBytes)

	var (
		res *CreateResult
		err error
	)
	if sc, ok := s.backend.(storage.StreamCreator); ok {
		res, err = s.createStream(ctx, sc, body, meta)
	} else {
		res, err = s.createBuffered(ctx, body, in.Size, meta)
	}
	if err != nil {
		return nil, err
	}

	trace.SpanFromContext(ctx).SetAttributes(
		attribute.String("paste.id", res.ID),
		attribute.Int64("paste.bytes", res.Bytes),
		attribute.String("paste.meta", meta),
	)
	return res, nil
}

// createStream hands the body to the backend chunk by chunk. Streaming
// backends reject a taken id before reading, so a retry sees an untouched body.
func (s *pasteService) createStream(ctx context.Context, sc storage.StreamCreator, body *bodyReader, meta string) (*CreateResult, error) {
	return s.withFreshID(func(id string) (int64, error) {
		n, err := sc.CreateFrom(ctx, id, body, meta)
		if body.err != nil {
			return 0, body.err
		}
		if err != nil && errors.Is(err, storage.ErrConflict) && body.touched {
			// The stream is spent; another id cannot be tried.
			return 0, fmt.Errorf("late collision on %s: %v", id, err)
		}
		return n, err
	})
}

// createBuffered reads the whole body first so the backend commits it in one call.
func (s *pasteService) createBuffered(ctx context.Context, body *bodyReader, size int64, meta string) (*CreateResult, error) {
	var buf bytes.Buffer
	if size > 0 {
		buf.Grow(int(size))
	}
	if _, err := buf.ReadFrom(body); err != nil {
		return nil, err
	}
	content := buf.Bytes()

	return s.withFreshID(func(id string) (int64, error) {
		if err := s.backend.Create(ctx, id, content, meta); err != nil {
			return 0, err
		}
		return int64(len(content)), nil
	})
}

func (s *pasteService) withFreshID(write func(id string) (int64, error)) (*CreateResult, error) {
	var lastErr error
	for attempt := 1; attempt <= s.opts.MaxAttempts; attempt++ {
		id, err := s.ids.Next()
		if err != nil {
			return nil, fmt.Errorf("generate id: %w", err)
		}

		n, err := write(id.String())
		if err == nil {
			return &CreateResult{ID: id.String(), Bytes: n}, nil
		}
		if !errors.Is(err, storage.ErrConflict) {
			if isBodyError(err) {
				return nil, err
			}
			return nil, fmt.Errorf("create paste: %w", err)
		}

		s.log.WithFields(logrus.Fields{"id": id.String(), "attempt": attempt}).Warn("paste id collision")
		lastErr = err
	}
	return nil, fmt.Errorf("create paste: no free id after %d attempts: %w", s.opts.MaxAttempts, lastErr)
}

func (s *pasteService) Get(ctx context.Context, id string) (*model.Paste, error) {
	if id == "" {
		return nil, ErrIDRequired
	}
	trace.SpanFromContext(ctx).SetAttributes(attribute.String("paste.id", id))

	p, err := s.backend.Retrieve(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("retrieve paste: %w", err)
	}
	return p, nil
}

func isBodyError(err error) bool {
	return errors.Is(err, ErrTruncated) || errors.Is(err, ErrTooLarge) ||
		errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// bodyReader enforces the declared length and the size cap. The first
// failure it reports is kept so it wins over whatever the backend wraps it in.
type bodyReader struct {
	r       io.Reader
	size    int64
	limit   int64
	n       int64
	touched bool
	err     error
}

func newBodyReader(r io.Reader, size, limit int64) *bodyReader {
	return &bodyReader{r: r, size: size, limit: limit}
}

func (b *bodyReader) Read(p []byte) (int, error) {
	if b.err != nil {
		return 0, b.err
	}
	b.touched = true

	n, err := b.r.Read(p)
	b.n += int64(n)

	if b.limit > 0 && b.n > b.limit {
		b.err = ErrTooLarge
		return 0, b.err
	}
	switch {
	case err == io.EOF:
		if b.size >= 0 && b.n < b.size {
			b.err = ErrTruncated
			return n, b.err
		}
	case errors.Is(err, io.ErrUnexpectedEOF):
		b.err = fmt.Errorf("%w: %v", ErrTruncated, err)
		return n, b.err
	case err != nil:
		b.err = err
	}
	return n, err
}
