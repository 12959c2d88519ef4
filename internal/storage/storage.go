package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"

	"pasteapi/internal/model"
)

// Package storage persists pastes. Every backend satisfies Backend; the ones
// that can commit a stream atomically also implement StreamCreator.

var (
	// ErrNotFound is returned by Retrieve for an id that was never created.
	ErrNotFound = errors.New("paste not found")
	// ErrConflict is returned by Create when the id is already taken. Nothing is overwritten.
	ErrConflict = errors.New("paste id already exists")
	// ErrIO wraps disk, socket and database transport failures.
	ErrIO = errors.New("storage i/o failure")
	// ErrPoolExhausted means no backend connection became free within the acquire timeout.
	ErrPoolExhausted = errors.New("storage pool exhausted")
	// ErrSerialization means the content cannot be represented by the backend.
	ErrSerialization = errors.New("content cannot be stored by backend")
)

// Backend is the create/retrieve capability shared by all storage variants.
type Backend interface {
	// Create persists a new paste. A reader never observes a partially written paste.
	// Returns ErrConflict if id already exists.
	Create(ctx context.Context, id string, content []byte, meta string) error

	// Retrieve returns the full paste or ErrNotFound.
	Retrieve(ctx context.Context, id string) (*model.Paste, error)
}

// StreamCreator is implemented by backends that consume the body incrementally.
// The artifact becomes visible only once r has been read to EOF without error.
type StreamCreator interface {
	// CreateFrom returns ErrConflict before reading r if id already exists.
	CreateFrom(ctx context.Context, id string, r io.Reader, meta string) (int64, error)
}

// Pinger is implemented by backends that can report their own health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Closer releases backend resources on shutdown.
type Closer interface {
	Close() error
}

// requireText rejects content a TEXT column cannot hold. Postgres refuses
// NUL in text, so both SQL variants refuse it to store the same inputs.
func requireText(content []byte) error {
	if !utf8.Valid(content) {
		return fmt.Errorf("%w: content is not valid UTF-8", ErrSerialization)
	}
	if i := bytes.IndexByte(content, 0); i >= 0 {
		return fmt.Errorf("%w: content has a NUL byte at offset %d", ErrSerialization, i)
	}
	return nil
}
