package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/AntoineMrtl/oracle-swap-back/internal/core/swap"
	"github.com/AntoineMrtl/oracle-swap-back/internal/log"
	"github.com/AntoineMrtl/oracle-swap-back/internal/storage/compression"
	"github.com/AntoineMrtl/oracle-swap-back/internal/storage/database"
	"github.com/AntoineMrtl/oracle-swap-back/internal/storage/database/memory"
	"github.com/AntoineMrtl/oracle-swap-back/internal/store"
	jtx "github.com/AntoineMrtl/oracle-swap-back/internal/testing"
)

func newStore(t *testing.T, db database.DB) *store.Store {
	t.Helper()
	c, err := compression.Get("lz4")
	require.NoError(t, err)
	return store.New(db, c, log.NewDiscardLogger())
}

func fundedEnv(t *testing.T) *jtx.TestEnv {
	env := jtx.NewTestEnv(t)
	env.Fund(jtx.NewAccount("alice"), "100", "100")
	env.Fund(jtx.NewAccount("bob"), "5", "5")
	env.SetPrices("20000", "1800")
	return env
}

func TestLoadEmpty(t *testing.T) {
	s := newStore(t, memory.NewDB())
	_, ok, err := s.Load(context.Background())
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSaveLoad(t *testing.T) {
	ctx := context.Background()
	env := fundedEnv(t)
	s := newStore(t, memory.NewDB())

	want := env.Pool().State()
	require.NoError(t, s.Save(ctx, want))

	got, ok, err := s.Load(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	jtx.RequireAmount(t, want.Ledger.Reserves.A, got.Ledger.Reserves.A)
	jtx.RequireAmount(t, want.Ledger.Reserves.B, got.Ledger.Reserves.B)
	jtx.RequireAmount(t, want.Ledger.Total, got.Ledger.Total)
	jtx.RequireAmount(t, want.Gateway.Collected, got.Gateway.Collected)
	require.Equal(t, want.Ledger.Positions, got.Ledger.Positions)

	require.Len(t, got.Gateway.Feeds, len(want.Gateway.Feeds))
	for i, f := range want.Gateway.Feeds {
		require.Equal(t, f.ID, got.Gateway.Feeds[i].ID)
		require.Equal(t, f.Price.Mantissa, got.Gateway.Feeds[i].Price.Mantissa)
		require.Equal(t, f.Price.Expo, got.Gateway.Feeds[i].Price.Expo)
		require.True(t, f.Price.PublishTime.Equal(got.Gateway.Feeds[i].Price.PublishTime))
	}
}

func TestRestoreIntoFreshPool(t *testing.T) {
	ctx := context.Background()
	env := fundedEnv(t)
	s := newStore(t, memory.NewDB())
	require.NoError(t, s.Save(ctx, env.Pool().State()))

	loaded, ok, err := s.Load(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	fresh := jtx.NewTestEnv(t)
	fresh.Pool().Restore(loaded)
	jtx.RequireReserves(t, fresh, "105", "105")
	jtx.RequireAmount(t, env.Shares(jtx.NewAccount("alice")), fresh.Shares(jtx.NewAccount("alice")))

	q, err := fresh.Pool().Quote(swap.BToA, jtx.Units("10"))
	require.NoError(t, err)
	jtx.RequireAmount(t, jtx.Units("0.9"), q.AmountOut)
}

func TestObserverPersistsCommittedOperations(t *testing.T) {
	ctx := context.Background()
	env := jtx.NewTestEnv(t)
	s := newStore(t, memory.NewDB())
	env.Pool().Subscribe(s.Observer(ctx))

	env.Fund(jtx.NewAccount("alice"), "10", "20")

	got, ok, err := s.Load(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	jtx.RequireAmount(t, jtx.Units("10"), got.Ledger.Reserves.A)
	jtx.RequireAmount(t, jtx.Units("20"), got.Ledger.Reserves.B)

	// A failed operation leaves the saved state alone.
	_, _, err = env.Pool().RemoveLiquidity("nobody", jtx.Units("1"))
	require.Error(t, err)
	again, _, err := s.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, got.Ledger, again.Ledger)
}

func TestLoadRejectsCorruptRecord(t *testing.T) {
	ctx := context.Background()
	db := memory.NewDB()
	s := newStore(t, db)

	require.NoError(t, db.Write(ctx, store.StateKey, []byte{0x7f, 0x00}))
	_, _, err := s.Load(ctx)
	require.Error(t, err)

	none := store.New(db, compression.NoCompressor{}, nil)
	require.NoError(t, db.Write(ctx, store.StateKey, []byte{0x43, 'a', 'b', 'c'}))
	_, _, err = none.Load(ctx)
	require.Error(t, err)
}

func TestOpenManager(t *testing.T) {
	for _, backend := range []database.Backend{database.BackendPebble, database.BackendLevelDB, database.BackendMemory} {
		t.Run(string(backend), func(t *testing.T) {
			ctx := context.Background()
			mgr, err := store.OpenManager(backend, t.TempDir())
			require.NoError(t, err)
			defer mgr.Close()

			db, err := mgr.OpenDB(store.DBName)
			require.NoError(t, err)

			s := newStore(t, db)
			env := fundedEnv(t)
			require.NoError(t, s.Save(ctx, env.Pool().State()))
			_, ok, err := s.Load(ctx)
			require.NoError(t, err)
			require.True(t, ok)
		})
	}

	_, err := store.OpenManager("rocksdb", t.TempDir())
	require.Error(t, err)
}
