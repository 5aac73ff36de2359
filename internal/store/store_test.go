package store_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nasa-gibs/oetime/internal/model"
	"github.com/nasa-gibs/oetime/internal/store"
)

// ─── Helpers ──────────────────────────────────────────────────────────────────

// testBolt opens a fresh isolated database in t.TempDir().
// It is closed and deleted automatically when the test ends.
func testBolt(t *testing.T) *store.BoltBackend {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	b, err := store.OpenBolt(path)
	if err != nil {
		t.Fatalf("store.OpenBolt: %v", err)
	}
	t.Cleanup(func() { _ = b.Close() })
	return b
}

// testRedis starts an in-process Redis server for one test.
func testRedis(t *testing.T) (*store.RedisBackend, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	b := store.NewRedis(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = b.Close() })
	return b, mr
}

// eachBackend runs fn against both backends.
func eachBackend(t *testing.T, fn func(t *testing.T, b store.Backend)) {
	t.Run("bolt", func(t *testing.T) { fn(t, testBolt(t)) })
	t.Run("redis", func(t *testing.T) {
		b, _ := testRedis(t)
		fn(t, b)
	})
}

const layer = "epsg4326:layer:Test_Layer"

// ─── Open ─────────────────────────────────────────────────────────────────────

func TestOpenBoltCreatesParentDirs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a", "b", "c", "test.db")
	b, err := store.OpenBolt(path)
	if err != nil {
		t.Fatalf("OpenBolt with nested path: %v", err)
	}
	defer b.Close()
	if b.Path() != path {
		t.Errorf("Path: expected %q, got %q", path, b.Path())
	}
}

func TestOpenBoltRequiresPath(t *testing.T) {
	if _, err := store.OpenBolt(""); err == nil {
		t.Error("expected error for empty path")
	}
}

func TestOpenRedisStandalone(t *testing.T) {
	mr := miniredis.RunT(t)
	b, err := store.OpenRedis(context.Background(), store.RedisOptions{Addr: mr.Addr(), Cluster: "off"})
	require.NoError(t, err)
	defer b.Close()
	assert.Equal(t, "redis", b.Name())
}

func TestOpenUnknownBackend(t *testing.T) {
	_, err := store.Open(context.Background(), store.Options{Kind: "etcd"})
	assert.Error(t, err)
}

// ─── Primitives ───────────────────────────────────────────────────────────────

func TestSortedSetOrdering(t *testing.T) {
	eachBackend(t, func(t *testing.T, b store.Backend) {
		ctx := context.Background()
		n, err := b.ZAdd(ctx, "z", 0, "b", "a", "c")
		require.NoError(t, err)
		assert.EqualValues(t, 3, n)

		n, err = b.ZAdd(ctx, "z", 0, "a")
		require.NoError(t, err)
		assert.EqualValues(t, 0, n, "re-adding an existing member is not new")

		_, err = b.ZAdd(ctx, "z", -1, "z")
		require.NoError(t, err)

		got, err := b.ZRange(ctx, "z")
		require.NoError(t, err)
		assert.Equal(t, []string{"z", "a", "b", "c"}, got)

		score, ok, err := b.ZScore(ctx, "z", "z")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, -1.0, score)

		_, ok, err = b.ZScore(ctx, "z", "missing")
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, b.ZRem(ctx, "z", "z", "a", "b", "c"))
		exists, err := b.Exists(ctx, "z")
		require.NoError(t, err)
		assert.False(t, exists, "emptied sorted set should not exist")
	})
}

func TestHashStringAndSet(t *testing.T) {
	eachBackend(t, func(t *testing.T, b store.Backend) {
		ctx := context.Background()
		require.NoError(t, b.HSet(ctx, "h", "f1", "v1"))
		require.NoError(t, b.HSet(ctx, "h", "f2", "v2"))
		v, ok, err := b.HGet(ctx, "h", "f1")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "v1", v)

		require.NoError(t, b.HDel(ctx, "h", "f1"))
		all, err := b.HGetAll(ctx, "h")
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"f2": "v2"}, all)

		_, ok, err = b.Get(ctx, "s")
		require.NoError(t, err)
		assert.False(t, ok)
		require.NoError(t, b.Set(ctx, "s", "x"))
		v, ok, err = b.Get(ctx, "s")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "x", v)

		require.NoError(t, b.SAdd(ctx, "set", "b", "a", "a"))
		members, err := b.SMembers(ctx, "set")
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"a", "b"}, members)

		for key, want := range map[string]store.KeyType{
			"h": store.TypeHash, "s": store.TypeString, "set": store.TypeSet, "nope": store.TypeNone,
		} {
			got, err := b.Type(ctx, key)
			require.NoError(t, err)
			assert.Equal(t, want, got, key)
		}

		require.NoError(t, b.Del(ctx, "h", "s", "set"))
		for _, key := range []string{"h", "s", "set"} {
			exists, err := b.Exists(ctx, key)
			require.NoError(t, err)
			assert.False(t, exists, key)
		}
	})
}

func TestScanMatchesPattern(t *testing.T) {
	eachBackend(t, func(t *testing.T, b store.Backend) {
		ctx := context.Background()
		_, err := b.ZAdd(ctx, "epsg4326:layer:A:dates", 0, "2024-01-01T00:00:00")
		require.NoError(t, err)
		require.NoError(t, b.Set(ctx, "epsg4326:layer:A:default", "2024-01-01"))
		require.NoError(t, b.Set(ctx, "epsg3857:layer:B:default", "2024-01-01"))

		var got []string
		require.NoError(t, b.Scan(ctx, "epsg4326:*", func(k string) error {
			got = append(got, k)
			return nil
		}))
		assert.ElementsMatch(t, []string{"epsg4326:layer:A:dates", "epsg4326:layer:A:default"}, got)
	})
}

func TestAtomicAppliesNothingOnError(t *testing.T) {
	eachBackend(t, func(t *testing.T, b store.Backend) {
		ctx := context.Background()
		require.NoError(t, b.Set(ctx, "keep", "old"))
		boom := errors.New("boom")
		err := b.Atomic(ctx, func(tx store.Batch) error {
			tx.Set("keep", "new")
			tx.Del("keep")
			return boom
		})
		assert.ErrorIs(t, err, boom)

		v, _, err := b.Get(ctx, "keep")
		require.NoError(t, err)
		assert.Equal(t, "old", v)
	})
}

func TestBoltWrongType(t *testing.T) {
	b := testBolt(t)
	ctx := context.Background()
	require.NoError(t, b.SAdd(ctx, "k", "a"))
	_, err := b.ZAdd(ctx, "k", 0, "a")
	assert.ErrorIs(t, err, store.ErrWrongType)
}

func TestBoltStats(t *testing.T) {
	b := testBolt(t)
	ctx := context.Background()
	_, err := b.ZAdd(ctx, "z", 0, "a", "b")
	require.NoError(t, err)
	require.NoError(t, b.Set(ctx, "s", "x"))

	stats, err := b.Stats()
	require.NoError(t, err)
	counts := map[string]int{}
	for _, s := range stats {
		counts[s.Name] = s.Count
	}
	assert.Equal(t, 1, counts["zset"])
	assert.Equal(t, 1, counts["string"])
	assert.Equal(t, 0, counts["hash"])
}

// ─── Keys ─────────────────────────────────────────────────────────────────────

func TestLayerKeys(t *testing.T) {
	assert.Equal(t, "epsg4326:layer:A", store.LayerKey("epsg4326", "", "A"))
	assert.Equal(t, "epsg4326:best:layer:A", store.LayerKey("epsg4326", "best", "A"))

	prefix, name, err := store.SplitLayerKey("epsg4326:best:layer:A")
	require.NoError(t, err)
	assert.Equal(t, "epsg4326:best:layer", prefix)
	assert.Equal(t, "A", name)

	_, _, err = store.SplitLayerKey("nocolon")
	assert.ErrorIs(t, err, model.ErrParse)

	assert.Equal(t, "epsg4326:layer:B", store.SiblingKey("epsg4326:layer:A", "B"))

	m, ok := store.MirrorKey("epsg4326:best:layer:A")
	assert.True(t, ok)
	assert.Equal(t, "epsg3857:best:layer:A", m)
	_, ok = store.MirrorKey("epsg3413:layer:A")
	assert.False(t, ok)

	k, ok := store.TrimSuffix("epsg4326:layer:A:best_config")
	assert.True(t, ok)
	assert.Equal(t, "epsg4326:layer:A", k)
	k, ok = store.TrimSuffix("epsg4326:layer:A:best")
	assert.True(t, ok)
	assert.Equal(t, "epsg4326:layer:A", k)
	_, ok = store.TrimSuffix("created")
	assert.False(t, ok)
}
