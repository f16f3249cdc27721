// Package dbtest holds a conformance suite shared by the database backends.
package dbtest

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/AntoineMrtl/oracle-swap-back/internal/storage/database"
)

// Run exercises a freshly opened, empty database.
func Run(t *testing.T, db database.DB) {
	ctx := context.Background()

	t.Run("Read missing key", func(t *testing.T) {
		_, err := db.Read(ctx, []byte("missing"))
		require.ErrorIs(t, err, database.ErrKeyNotFound)
	})

	t.Run("Write Read Delete", func(t *testing.T) {
		key, value := []byte("pool/state"), []byte("snapshot")
		require.NoError(t, db.Write(ctx, key, value))

		got, err := db.Read(ctx, key)
		require.NoError(t, err)
		require.Equal(t, value, got)

		// Returned slices must not alias backend memory.
		got[0] = 'X'
		again, err := db.Read(ctx, key)
		require.NoError(t, err)
		require.Equal(t, value, again)

		require.NoError(t, db.Delete(ctx, key))
		_, err = db.Read(ctx, key)
		require.ErrorIs(t, err, database.ErrKeyNotFound)
	})

	t.Run("Batch", func(t *testing.T) {
		require.NoError(t, db.Write(ctx, []byte("batch/old"), []byte("1")))
		err := db.Batch(ctx, []database.BatchOperation{
			database.Put([]byte("batch/a"), []byte("a")),
			database.Put([]byte("batch/b"), []byte("b")),
			database.Del([]byte("batch/old")),
		})
		require.NoError(t, err)

		v, err := db.Read(ctx, []byte("batch/b"))
		require.NoError(t, err)
		require.Equal(t, []byte("b"), v)
		_, err = db.Read(ctx, []byte("batch/old"))
		require.ErrorIs(t, err, database.ErrKeyNotFound)

		err = db.Batch(ctx, []database.BatchOperation{{Type: database.BatchOpType(42), Key: []byte("x")}})
		require.ErrorIs(t, err, database.ErrUnknownBatchOp)
	})

	t.Run("Iterator range", func(t *testing.T) {
		for i := 0; i < 5; i++ {
			require.NoError(t, db.Write(ctx, []byte(fmt.Sprintf("iter/%02d", i)), []byte{byte(i)}))
		}
		require.NoError(t, db.Write(ctx, []byte("other"), []byte("x")))

		it, err := db.Iterator(ctx, []byte("iter/01"), []byte("iter/04"))
		require.NoError(t, err)
		defer it.Close()

		var keys []string
		for it.Next() {
			keys = append(keys, string(it.Key()))
			require.Len(t, it.Value(), 1)
		}
		require.NoError(t, it.Error())
		require.Equal(t, []string{"iter/01", "iter/02", "iter/03"}, keys)
	})

	t.Run("Cancelled context", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		require.ErrorIs(t, db.Write(cctx, []byte("k"), []byte("v")), context.Canceled)
	})
}
