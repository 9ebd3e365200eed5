package ports

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// StoreFactory opens a StateStore bound to the given key prefix. Contract
// tests use it to open independent handles over the same backing medium.
type StoreFactory func(t *testing.T, prefix string) StateStore

// RunStateStoreContract runs a suite of tests verifying that a StateStore
// implementation adheres to the interface contract. Adapter test files call
// this with a factory for their backend.
func RunStateStoreContract(t *testing.T, open StoreFactory) {
	ctx := context.Background()

	t.Run("Set then Commit then Get", func(t *testing.T) {
		store := open(t, "contract:basic")
		store.Set("finished", true)
		store.Set("result", map[string]any{"count": 3})
		require.NoError(t, store.Commit(ctx))

		assert.Equal(t, true, store.Get("finished", false))
		assert.NotNil(t, store.Get("result", nil))
	})

	t.Run("Get default before any write", func(t *testing.T) {
		store := open(t, "contract:fresh")
		assert.Equal(t, false, store.Get("finished", false))
		assert.Equal(t, "fallback", store.Get("missing", "fallback"))
	})

	t.Run("Buffered writes visible locally before Commit", func(t *testing.T) {
		store := open(t, "contract:buffered")
		store.Set("pending", "yes")
		assert.Equal(t, "yes", store.Get("pending", ""))
	})

	t.Run("Commit visible to a second handle after Reload", func(t *testing.T) {
		writer := open(t, "contract:shared")
		reader := open(t, "contract:shared")

		writer.Set("finished", true)
		require.NoError(t, writer.Commit(ctx))

		require.NoError(t, reader.Reload(ctx))
		assert.Equal(t, true, reader.Get("finished", false))
	})

	t.Run("Uncommitted writes invisible to a second handle", func(t *testing.T) {
		writer := open(t, "contract:uncommitted")
		reader := open(t, "contract:uncommitted")

		writer.Set("finished", true)

		require.NoError(t, reader.Reload(ctx))
		assert.Equal(t, false, reader.Get("finished", false))
	})

	t.Run("Prefixes are independent", func(t *testing.T) {
		first := open(t, "contract:slot0")
		second := open(t, "contract:slot1")

		first.Set("result", "slot0-data")
		require.NoError(t, first.Commit(ctx))

		require.NoError(t, second.Reload(ctx))
		assert.Nil(t, second.Get("result", nil))
	})

	t.Run("Destroy removes the record", func(t *testing.T) {
		store := open(t, "contract:destroy")
		store.Set("finished", true)
		require.NoError(t, store.Commit(ctx))
		require.NoError(t, store.Destroy(ctx))

		reader := open(t, "contract:destroy")
		require.NoError(t, reader.Reload(ctx))
		assert.Equal(t, false, reader.Get("finished", false))
	})

	t.Run("Destroy on a fresh record is a no-op", func(t *testing.T) {
		store := open(t, "contract:destroy-fresh")
		require.NoError(t, store.Destroy(ctx))
	})

	t.Run("Reload of unknown record loads empty", func(t *testing.T) {
		store := open(t, "contract:unknown")
		require.NoError(t, store.Reload(ctx))
		assert.Nil(t, store.Get("result", nil))
	})
}
