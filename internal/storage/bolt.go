package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/boltdb/bolt"

	"pasteapi/internal/model"
)

var (
	boltContentBucket = []byte("pastes")
	boltMetaBucket    = []byte("meta")
)

// boltFormatV1 prefixes every stored content value so an empty paste is
// still distinguishable from a missing key.
const boltFormatV1 byte = 1

// Bolt is an embedded key-value backend. Content and meta live in two
// buckets and are written in one read-write transaction.
type Bolt struct {
	db *bolt.DB
}

// OpenBolt opens (or creates) the database file and ensures both buckets exist.
func OpenBolt(path string) (*Bolt, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt %s: %w", path, err)
	}
	b, err := NewBolt(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return b, nil
}

// NewBolt wraps an open database.
func NewBolt(db *bolt.DB) (*Bolt, error) {
	err := db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{boltContentBucket, boltMetaBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("could not ensure bucket %q exists: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &Bolt{db: db}, nil
}

var (
	_ Backend = (*Bolt)(nil)
	_ Closer  = (*Bolt)(nil)
)

// Create stores content and meta together; an existing id fails the transaction.
func (b *Bolt) Create(ctx context.Context, id string, content []byte, meta string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key := []byte(id)

	err := b.db.Update(func(tx *bolt.Tx) error {
		contents := tx.Bucket(boltContentBucket)
		if contents.Get(key) != nil {
			return ErrConflict
		}

		value := make([]byte, 1+len(content))
		value[0] = boltFormatV1
		copy(value[1:], content)

		if err := contents.Put(key, value); err != nil {
			return fmt.Errorf("%w: put content %.40q: %v", ErrIO, id, err)
		}
		if err := tx.Bucket(boltMetaBucket).Put(key, []byte(meta)); err != nil {
			return fmt.Errorf("%w: put meta %.40q: %v", ErrIO, id, err)
		}
		return nil
	})
	return err
}

// Retrieve copies the paste out of a read-only transaction.
func (b *Bolt) Retrieve(ctx context.Context, id string) (*model.Paste, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key := []byte(id)

	var p *model.Paste
	err := b.db.View(func(tx *bolt.Tx) error {
		value := tx.Bucket(boltContentBucket).Get(key)
		if value == nil {
			return ErrNotFound
		}
		if len(value) == 0 || value[0] != boltFormatV1 {
			return fmt.Errorf("%w: %.40q: unknown record format", ErrSerialization, id)
		}

		// Values are only valid for the life of the transaction.
		content := make([]byte, len(value)-1)
		copy(content, value[1:])

		meta := model.DefaultMeta
		if raw := tx.Bucket(boltMetaBucket).Get(key); raw != nil {
			meta = string(raw)
		}

		p = &model.Paste{ID: id, Content: content, Meta: meta}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Close closes the database file.
func (b *Bolt) Close() error {
	return b.db.Close()
}
