package storage

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testBackend exercises the contract every backend must honor.
func testBackend(t *testing.T, newBackend func(t *testing.T) Backend) {
	ctx := context.Background()

	t.Run("round trip", func(t *testing.T) {
		b := newBackend(t)
		require.NoError(t, b.Create(ctx, "rt00001", []byte("console.log('hi')"), "javascript"))

		p, err := b.Retrieve(ctx, "rt00001")
		require.NoError(t, err)
		assert.Equal(t, "rt00001", p.ID)
		assert.Equal(t, "console.log('hi')", string(p.Content))
		assert.Equal(t, "javascript", p.Meta)
	})

	t.Run("empty content", func(t *testing.T) {
		b := newBackend(t)
		require.NoError(t, b.Create(ctx, "empty01", []byte{}, "plaintext"))

		p, err := b.Retrieve(ctx, "empty01")
		require.NoError(t, err)
		assert.Empty(t, p.Content)
		assert.Equal(t, "plaintext", p.Meta)
	})

	t.Run("not found", func(t *testing.T) {
		b := newBackend(t)
		p, err := b.Retrieve(ctx, "zzzzzzz")
		assert.ErrorIs(t, err, ErrNotFound)
		assert.Nil(t, p)

		// The backend stays usable afterwards.
		require.NoError(t, b.Create(ctx, "after01", []byte("ok"), "text"))
		_, err = b.Retrieve(ctx, "after01")
		assert.NoError(t, err)
	})

	t.Run("conflict keeps first write", func(t *testing.T) {
		b := newBackend(t)
		require.NoError(t, b.Create(ctx, "dup0001", []byte("first"), "go"))

		err := b.Create(ctx, "dup0001", []byte("second"), "rust")
		assert.ErrorIs(t, err, ErrConflict)

		p, err := b.Retrieve(ctx, "dup0001")
		require.NoError(t, err)
		assert.Equal(t, "first", string(p.Content))
		assert.Equal(t, "go", p.Meta)
	})

	t.Run("immutable reads", func(t *testing.T) {
		b := newBackend(t)
		require.NoError(t, b.Create(ctx, "imm0001", []byte("stable"), "text"))

		first, err := b.Retrieve(ctx, "imm0001")
		require.NoError(t, err)
		for i := 0; i < 5; i++ {
			again, err := b.Retrieve(ctx, "imm0001")
			require.NoError(t, err)
			assert.Equal(t, first.Content, again.Content)
		}
	})

	t.Run("concurrent independence", func(t *testing.T) {
		b := newBackend(t)
		const k = 16

		var wg sync.WaitGroup
		errs := make([]error, k)
		for i := 0; i < k; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				errs[i] = b.Create(ctx, fmt.Sprintf("cc%05d", i), []byte(fmt.Sprintf("content-%d", i)), "text")
			}(i)
		}
		wg.Wait()

		for i := 0; i < k; i++ {
			require.NoError(t, errs[i])
			p, err := b.Retrieve(ctx, fmt.Sprintf("cc%05d", i))
			require.NoError(t, err)
			assert.Equal(t, fmt.Sprintf("content-%d", i), string(p.Content))
		}
	})
}
