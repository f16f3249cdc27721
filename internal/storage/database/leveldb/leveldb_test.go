package leveldb

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/AntoineMrtl/oracle-swap-back/internal/storage/database/dbtest"
)

func TestLevelDB(t *testing.T) {
	manager := NewManager(t.TempDir())
	defer manager.Close()

	db, err := manager.OpenDB("test")
	require.NoError(t, err)
	dbtest.Run(t, db)
}

func TestLevelDBReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	manager := NewManager(dir)
	db, err := manager.OpenDB("state")
	require.NoError(t, err)
	require.NoError(t, db.Write(ctx, []byte("k"), []byte("v")))
	require.NoError(t, manager.Close())

	manager = NewManager(dir)
	defer manager.Close()
	db, err = manager.OpenDB("state")
	require.NoError(t, err)
	got, err := db.Read(ctx, []byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("v"), got)
}
