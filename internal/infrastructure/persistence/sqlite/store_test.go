package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/realm-weaver/weaver-bot/internal/domain/progress"
	"github.com/realm-weaver/weaver-bot/internal/domain/shared"
)

func add(n int64) progress.UpdateFunc {
	return func(cur progress.Record) (progress.Record, error) {
		return progress.ApplyDelta(cur, n).Record, nil
	}
}

func newStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "weaver.db")
	s, err := NewStore(path, nil)
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s, path
}

func TestSQLiteStore_UpdateAndReload(t *testing.T) {
	ctx := context.Background()
	s, path := newStore(t)

	rec, err := s.Update(ctx, "g", "u", add(105))
	require.NoError(t, err)
	assert.Equal(t, progress.Record{Exp: 105, Level: 2}, rec)
	require.NoError(t, s.Close())

	reloaded, err := NewStore(path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reloaded.Close() })

	rec, err = reloaded.Get(ctx, "g", "u")
	require.NoError(t, err)
	assert.Equal(t, progress.Record{Exp: 105, Level: 2}, rec)
}

func TestSQLiteStore_GetDoesNotCreate(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)

	rec, err := s.Get(ctx, "g", "ghost")
	require.NoError(t, err)
	assert.Equal(t, progress.NewRecord(), rec)

	all, err := s.AllForGuild(ctx, "g")
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestSQLiteStore_InsertionOrder(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)

	for _, u := range []shared.UserID{"A", "B", "C"} {
		_, err := s.Update(ctx, "g", u, add(10))
		require.NoError(t, err)
	}
	// updating an old member keeps its position
	_, err := s.Update(ctx, "g", "A", add(500))
	require.NoError(t, err)

	all, err := s.AllForGuild(ctx, "g")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, shared.UserID("A"), all[0].UserID)
	assert.Equal(t, int64(510), all[0].Record.Exp)
	assert.Equal(t, 6, all[0].Record.Level)
	assert.Equal(t, shared.UserID("C"), all[2].UserID)
}

func TestSQLiteStore_UpdateFuncErrorRollsBack(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)
	boom := errors.New("boom")

	_, err := s.Update(ctx, "g", "u", func(progress.Record) (progress.Record, error) {
		return progress.Record{}, boom
	})
	require.ErrorIs(t, err, boom)

	all, err := s.AllForGuild(ctx, "g")
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestSQLiteStore_Concurrent(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)

	var wg sync.WaitGroup
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Update(ctx, "g", "u", add(20))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	rec, err := s.Get(ctx, "g", "u")
	require.NoError(t, err)
	assert.Equal(t, int64(600), rec.Exp)
}

func TestSQLiteStore_SnapshotAndImport(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)

	src := progress.NewLedger()
	src.Set("g2", "x", progress.Record{Exp: 300})
	src.Set("g1", "b", progress.Record{Exp: 50})
	src.Set("g1", "a", progress.Record{Exp: 50})

	n, err := s.Import(ctx, src)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	snap, err := s.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, []shared.GuildID{"g2", "g1"}, snap.Guilds())
	st := snap.Standings("g1")
	require.Len(t, st, 2)
	assert.Equal(t, shared.UserID("b"), st[0].UserID)
	assert.Equal(t, 4, snap.Lookup("g2", "x").Level)
}

func TestSQLiteStore_ClosedDBIsStorageUnavailable(t *testing.T) {
	s, _ := newStore(t)
	require.NoError(t, s.Close())

	_, err := s.Update(context.Background(), "g", "u", add(1))
	assert.True(t, shared.IsStorageUnavailable(err))
}
