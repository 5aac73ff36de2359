package store

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path"
	"path/filepath"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"
)

// SchemaVersion of the bolt layout. Bump when bucket layout or key format changes.
const SchemaVersion = 1

// Bucket name constants. Sorted sets, sets and hashes are nested buckets
// named after their key.
var (
	bucketStrings  = []byte("strings")
	bucketZSets    = []byte("zsets")
	bucketSets     = []byte("sets")
	bucketHashes   = []byte("hashes")
	bucketInternal = []byte("_meta")
)

var typeBuckets = []struct {
	name []byte
	typ  KeyType
}{
	{bucketStrings, TypeString},
	{bucketZSets, TypeZSet},
	{bucketSets, TypeSet},
	{bucketHashes, TypeHash},
}

// ErrWrongType is returned when a key holds a different type than the
// operation expects.
var ErrWrongType = errors.New("WRONGTYPE operation against a key holding the wrong kind of value")

// BoltBackend keeps the index in a local bbolt file.
type BoltBackend struct {
	db *bolt.DB
}

// OpenBolt opens (or creates) the bbolt database at path.
// Parent directories are created automatically.
// Runs schema migrations on every open.
func OpenBolt(path string) (*BoltBackend, error) {
	if path == "" {
		return nil, fmt.Errorf("bolt backend needs a db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("creating db directory: %w", err)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening db %s: %w", path, err)
	}

	b := &BoltBackend{db: db}
	if err := b.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration: %w", err)
	}
	return b, nil
}

func (b *BoltBackend) Name() string { return "bolt" }

// Close closes the database.
func (b *BoltBackend) Close() error {
	return b.db.Close()
}

// Path returns the filesystem path of the open database.
func (b *BoltBackend) Path() string {
	return b.db.Path()
}

func (b *BoltBackend) Ping(ctx context.Context) error {
	return ctx.Err()
}

// ─── Migrations ───────────────────────────────────────────────────────────────

// migrate ensures all buckets exist and schema is current.
func (b *BoltBackend) migrate() error {
	return b.db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketStrings, bucketZSets, bucketSets, bucketHashes, bucketInternal} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("creating bucket %s: %w", name, err)
			}
		}

		meta := tx.Bucket(bucketInternal)
		if meta.Get([]byte("schema_version")) == nil {
			if err := meta.Put([]byte("schema_version"), []byte(fmt.Sprintf("%d", SchemaVersion))); err != nil {
				return err
			}
			if err := meta.Put([]byte("created_at"), []byte(time.Now().UTC().Format(time.RFC3339))); err != nil {
				return err
			}
		}
		return nil
	})
}

// ─── Reads ────────────────────────────────────────────────────────────────────

func (b *BoltBackend) view(ctx context.Context, fn func(tx *bolt.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.db.View(fn)
}

func (b *BoltBackend) update(ctx context.Context, fn func(tx *bolt.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.db.Update(fn)
}

func (b *BoltBackend) ZRange(ctx context.Context, key string) ([]string, error) {
	ms, err := b.ZRangeWithScores(ctx, key)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = m.Name
	}
	return out, nil
}

func (b *BoltBackend) ZRangeWithScores(ctx context.Context, key string) ([]Member, error) {
	var out []Member
	err := b.view(ctx, func(tx *bolt.Tx) error {
		if err := checkType(tx, key, TypeZSet); err != nil {
			return err
		}
		z := tx.Bucket(bucketZSets).Bucket([]byte(key))
		if z == nil {
			return nil
		}
		return z.ForEach(func(k, v []byte) error {
			out = append(out, Member{Name: string(k), Score: decodeScore(v)})
			return nil
		})
	})
	// Cursor order is by member; a stable sort by score keeps member order
	// within equal scores.
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score < out[j].Score })
	return out, err
}

func (b *BoltBackend) ZScore(ctx context.Context, key, member string) (float64, bool, error) {
	var (
		score float64
		found bool
	)
	err := b.view(ctx, func(tx *bolt.Tx) error {
		if err := checkType(tx, key, TypeZSet); err != nil {
			return err
		}
		z := tx.Bucket(bucketZSets).Bucket([]byte(key))
		if z == nil {
			return nil
		}
		if v := z.Get([]byte(member)); v != nil {
			score, found = decodeScore(v), true
		}
		return nil
	})
	return score, found, err
}

func (b *BoltBackend) HGet(ctx context.Context, key, field string) (string, bool, error) {
	var (
		val   string
		found bool
	)
	err := b.view(ctx, func(tx *bolt.Tx) error {
		if err := checkType(tx, key, TypeHash); err != nil {
			return err
		}
		h := tx.Bucket(bucketHashes).Bucket([]byte(key))
		if h == nil {
			return nil
		}
		if v := h.Get([]byte(field)); v != nil {
			val, found = string(v), true
		}
		return nil
	})
	return val, found, err
}

func (b *BoltBackend) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	out := map[string]string{}
	err := b.view(ctx, func(tx *bolt.Tx) error {
		if err := checkType(tx, key, TypeHash); err != nil {
			return err
		}
		h := tx.Bucket(bucketHashes).Bucket([]byte(key))
		if h == nil {
			return nil
		}
		return h.ForEach(func(k, v []byte) error {
			out[string(k)] = string(v)
			return nil
		})
	})
	return out, err
}

func (b *BoltBackend) Get(ctx context.Context, key string) (string, bool, error) {
	var (
		val   string
		found bool
	)
	err := b.view(ctx, func(tx *bolt.Tx) error {
		if err := checkType(tx, key, TypeString); err != nil {
			return err
		}
		if v := tx.Bucket(bucketStrings).Get([]byte(key)); v != nil {
			val, found = string(v), true
		}
		return nil
	})
	return val, found, err
}

func (b *BoltBackend) SMembers(ctx context.Context, key string) ([]string, error) {
	var out []string
	err := b.view(ctx, func(tx *bolt.Tx) error {
		if err := checkType(tx, key, TypeSet); err != nil {
			return err
		}
		s := tx.Bucket(bucketSets).Bucket([]byte(key))
		if s == nil {
			return nil
		}
		return s.ForEach(func(k, _ []byte) error {
			out = append(out, string(k))
			return nil
		})
	})
	return out, err
}

func (b *BoltBackend) Exists(ctx context.Context, key string) (bool, error) {
	t, err := b.Type(ctx, key)
	return t != TypeNone, err
}

func (b *BoltBackend) Type(ctx context.Context, key string) (KeyType, error) {
	t := TypeNone
	err := b.view(ctx, func(tx *bolt.Tx) error {
		t = keyType(tx, key)
		return nil
	})
	return t, err
}

// Scan matches keys with path.Match, which covers the Redis glob forms used
// by the index (*, ? and character classes).
func (b *BoltBackend) Scan(ctx context.Context, pattern string, fn func(key string) error) error {
	var keys []string
	err := b.view(ctx, func(tx *bolt.Tx) error {
		for _, tb := range typeBuckets {
			err := tx.Bucket(tb.name).ForEach(func(k, _ []byte) error {
				ok, err := path.Match(pattern, string(k))
				if err != nil {
					return err
				}
				if ok {
					keys = append(keys, string(k))
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	// fn runs outside the read transaction so it may write.
	for _, k := range keys {
		if err := fn(k); err != nil {
			return err
		}
	}
	return nil
}

// ─── Writes ───────────────────────────────────────────────────────────────────

func (b *BoltBackend) ZAdd(ctx context.Context, key string, score float64, members ...string) (int64, error) {
	var n int64
	err := b.update(ctx, func(tx *bolt.Tx) (err error) {
		n, err = zadd(tx, key, score, members)
		return err
	})
	return n, err
}

func (b *BoltBackend) ZRem(ctx context.Context, key string, members ...string) error {
	return b.update(ctx, func(tx *bolt.Tx) error { return remove(tx, bucketZSets, TypeZSet, key, members) })
}

func (b *BoltBackend) HSet(ctx context.Context, key, field, value string) error {
	return b.update(ctx, func(tx *bolt.Tx) error { return hset(tx, key, field, value) })
}

func (b *BoltBackend) HDel(ctx context.Context, key string, fields ...string) error {
	return b.update(ctx, func(tx *bolt.Tx) error { return remove(tx, bucketHashes, TypeHash, key, fields) })
}

func (b *BoltBackend) Set(ctx context.Context, key, value string) error {
	return b.update(ctx, func(tx *bolt.Tx) error { return set(tx, key, value) })
}

func (b *BoltBackend) SAdd(ctx context.Context, key string, members ...string) error {
	return b.update(ctx, func(tx *bolt.Tx) error { return sadd(tx, key, members) })
}

func (b *BoltBackend) Del(ctx context.Context, keys ...string) error {
	return b.update(ctx, func(tx *bolt.Tx) error { return del(tx, keys) })
}

// Atomic runs every queued write in one bbolt transaction.
func (b *BoltBackend) Atomic(ctx context.Context, fn func(Batch) error) error {
	return b.update(ctx, func(tx *bolt.Tx) error {
		batch := &boltBatch{tx: tx}
		if err := fn(batch); err != nil {
			return err
		}
		return batch.err
	})
}

type boltBatch struct {
	tx  *bolt.Tx
	err error
}

func (b *boltBatch) do(fn func() error) {
	if b.err == nil {
		b.err = fn()
	}
}

func (b *boltBatch) ZAdd(key string, score float64, members ...string) {
	b.do(func() error { _, err := zadd(b.tx, key, score, members); return err })
}

func (b *boltBatch) ZRem(key string, members ...string) {
	b.do(func() error { return remove(b.tx, bucketZSets, TypeZSet, key, members) })
}

func (b *boltBatch) HSet(key, field, value string) {
	b.do(func() error { return hset(b.tx, key, field, value) })
}

func (b *boltBatch) HDel(key string, fields ...string) {
	b.do(func() error { return remove(b.tx, bucketHashes, TypeHash, key, fields) })
}

func (b *boltBatch) Set(key, value string) { b.do(func() error { return set(b.tx, key, value) }) }

func (b *boltBatch) SAdd(key string, members ...string) {
	b.do(func() error { return sadd(b.tx, key, members) })
}

func (b *boltBatch) Del(keys ...string) { b.do(func() error { return del(b.tx, keys) }) }

// ─── Transaction helpers ──────────────────────────────────────────────────────

func keyType(tx *bolt.Tx, key string) KeyType {
	k := []byte(key)
	if tx.Bucket(bucketStrings).Get(k) != nil {
		return TypeString
	}
	for _, tb := range typeBuckets[1:] {
		if tx.Bucket(tb.name).Bucket(k) != nil {
			return tb.typ
		}
	}
	return TypeNone
}

func checkType(tx *bolt.Tx, key string, want KeyType) error {
	if t := keyType(tx, key); t != TypeNone && t != want {
		return fmt.Errorf("%s: %w", key, ErrWrongType)
	}
	return nil
}

func nested(tx *bolt.Tx, parent []byte, typ KeyType, key string) (*bolt.Bucket, error) {
	if err := checkType(tx, key, typ); err != nil {
		return nil, err
	}
	return tx.Bucket(parent).CreateBucketIfNotExists([]byte(key))
}

func zadd(tx *bolt.Tx, key string, score float64, members []string) (int64, error) {
	if len(members) == 0 {
		return 0, nil
	}
	z, err := nested(tx, bucketZSets, TypeZSet, key)
	if err != nil {
		return 0, err
	}
	var added int64
	for _, m := range members {
		if z.Get([]byte(m)) == nil {
			added++
		}
		if err := z.Put([]byte(m), encodeScore(score)); err != nil {
			return 0, err
		}
	}
	return added, nil
}

func hset(tx *bolt.Tx, key, field, value string) error {
	h, err := nested(tx, bucketHashes, TypeHash, key)
	if err != nil {
		return err
	}
	return h.Put([]byte(field), []byte(value))
}

func sadd(tx *bolt.Tx, key string, members []string) error {
	if len(members) == 0 {
		return nil
	}
	s, err := nested(tx, bucketSets, TypeSet, key)
	if err != nil {
		return err
	}
	for _, m := range members {
		if err := s.Put([]byte(m), []byte{}); err != nil {
			return err
		}
	}
	return nil
}

func set(tx *bolt.Tx, key, value string) error {
	// SET overwrites whatever type was there.
	if t := keyType(tx, key); t != TypeNone && t != TypeString {
		if err := del(tx, []string{key}); err != nil {
			return err
		}
	}
	return tx.Bucket(bucketStrings).Put([]byte(key), []byte(value))
}

// remove deletes entries from a nested bucket and drops the bucket once it
// is empty, so an emptied key stops existing.
func remove(tx *bolt.Tx, parent []byte, typ KeyType, key string, entries []string) error {
	if err := checkType(tx, key, typ); err != nil {
		return err
	}
	nb := tx.Bucket(parent).Bucket([]byte(key))
	if nb == nil {
		return nil
	}
	for _, e := range entries {
		if err := nb.Delete([]byte(e)); err != nil {
			return err
		}
	}
	if k, _ := nb.Cursor().First(); k == nil {
		return tx.Bucket(parent).DeleteBucket([]byte(key))
	}
	return nil
}

func del(tx *bolt.Tx, keys []string) error {
	for _, key := range keys {
		k := []byte(key)
		if err := tx.Bucket(bucketStrings).Delete(k); err != nil {
			return err
		}
		for _, tb := range typeBuckets[1:] {
			err := tx.Bucket(tb.name).DeleteBucket(k)
			if err != nil && !errors.Is(err, bolt.ErrBucketNotFound) {
				return err
			}
		}
	}
	return nil
}

func encodeScore(f float64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, math.Float64bits(f))
	return buf
}

func decodeScore(v []byte) float64 {
	if len(v) != 8 {
		return 0
	}
	return math.Float64frombits(binary.BigEndian.Uint64(v))
}

// ─── Stats ────────────────────────────────────────────────────────────────────

// BucketStats holds key count and byte size for one value type.
type BucketStats struct {
	Name  string
	Count int
	Bytes int64
}

// Stats returns key counts and approximate sizes per value type.
func (b *BoltBackend) Stats() ([]BucketStats, error) {
	var stats []BucketStats
	err := b.db.View(func(tx *bolt.Tx) error {
		for _, tb := range typeBuckets {
			bk := tx.Bucket(tb.name)
			var count int
			var bytes int64
			err := bk.ForEach(func(k, v []byte) error {
				count++
				bytes += int64(len(k) + len(v))
				if v == nil {
					if nb := bk.Bucket(k); nb != nil {
						_ = nb.ForEach(func(nk, nv []byte) error {
							bytes += int64(len(nk) + len(nv))
							return nil
						})
					}
				}
				return nil
			})
			if err != nil {
				return err
			}
			stats = append(stats, BucketStats{Name: string(tb.typ), Count: count, Bytes: bytes})
		}
		return nil
	})
	return stats, err
}
