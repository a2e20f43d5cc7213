package bootstrap

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/realm-weaver/weaver-bot/config"
	"github.com/realm-weaver/weaver-bot/internal/domain/progress"
	"github.com/realm-weaver/weaver-bot/internal/infrastructure/persistence/memory"
)

func TestOpenStore_JSONAndMemory(t *testing.T) {
	ctx := context.Background()

	st, err := OpenStore(ctx, config.StoreConfig{
		Driver:   config.DriverJSON,
		JSONPath: filepath.Join(t.TempDir(), "data.json"),
	}, nil)
	require.NoError(t, err)
	assert.Nil(t, st.Check)
	assert.NoError(t, st.Close())

	st, err = OpenStore(ctx, config.StoreConfig{Driver: config.DriverMemory}, nil)
	require.NoError(t, err)
	rec, err := st.Repo.Get(ctx, "g", "u")
	require.NoError(t, err)
	assert.Equal(t, progress.NewRecord(), rec)
}

func TestOpenStore_SeedsEmptySQLite(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "data.json")
	require.NoError(t, os.WriteFile(jsonPath,
		[]byte(`{"users":{"g":{"a":{"exp":150,"level":2},"b":{"exp":20,"level":1}}}}`), 0o644))

	cfg := config.StoreConfig{
		Driver:     config.DriverSQLite,
		SQLitePath: filepath.Join(dir, "weaver.db"),
		JSONPath:   jsonPath,
		ImportJSON: true,
	}
	st, err := OpenStore(ctx, cfg, nil)
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	require.NotNil(t, st.SQLite)
	require.NoError(t, st.Check(ctx))

	all, err := st.Repo.AllForGuild(ctx, "g")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = st.Repo.Update(ctx, "g", "a", func(cur progress.Record) (progress.Record, error) {
		return progress.ApplyDelta(cur, 50).Record, nil
	})
	require.NoError(t, err)
	require.NoError(t, st.Close())

	// A populated store is left alone on the next start.
	st, err = OpenStore(ctx, cfg, nil)
	require.NoError(t, err)
	defer st.Close()
	rec, err := st.Repo.Get(ctx, "g", "a")
	require.NoError(t, err)
	assert.Equal(t, progress.Record{Exp: 200, Level: 3}, rec)
}

func TestOpenStore_UnknownDriver(t *testing.T) {
	_, err := OpenStore(context.Background(), config.StoreConfig{Driver: "mongo"}, nil)
	assert.ErrorContains(t, err, "unknown store driver")
}

func TestOpenCache_DisabledUsesMemory(t *testing.T) {
	c, err := OpenCache(context.Background(), config.RedisConfig{}, nil)
	require.NoError(t, err)
	assert.IsType(t, &memory.LeaderboardCache{}, c.Cache)
	assert.Nil(t, c.Check)
	assert.Nil(t, c.Close)
}

func TestOpenArchive_Disabled(t *testing.T) {
	_, err := OpenArchive(context.Background(), config.BackupConfig{})
	assert.ErrorIs(t, err, ErrBackupDisabled)
}
