package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisOptions configures a RedisBackend.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	// Cluster is "on", "off" or "auto". Auto asks the server with
	// CLUSTER INFO and falls back to a standalone client.
	Cluster string
	// Timeout bounds dialing and each read or write. Zero keeps the client
	// defaults.
	Timeout time.Duration
}

// RedisBackend stores the index in Redis, standalone or cluster.
type RedisBackend struct {
	rdb     redis.UniversalClient
	cluster *redis.ClusterClient
}

// OpenRedis connects and pings the server.
func OpenRedis(ctx context.Context, opts RedisOptions) (*RedisBackend, error) {
	if opts.Addr == "" {
		opts.Addr = "127.0.0.1:6379"
	}

	useCluster := opts.Cluster == "on"
	if opts.Cluster == "" || opts.Cluster == "auto" {
		single := redis.NewClient(&redis.Options{Addr: opts.Addr, Password: opts.Password, DialTimeout: opts.Timeout})
		info, err := single.ClusterInfo(ctx).Result()
		useCluster = err == nil && strings.Contains(info, "cluster_state:")
		_ = single.Close()
	}

	b := &RedisBackend{}
	if useCluster {
		b.cluster = redis.NewClusterClient(&redis.ClusterOptions{
			Addrs:        []string{opts.Addr},
			Password:     opts.Password,
			DialTimeout:  opts.Timeout,
			ReadTimeout:  opts.Timeout,
			WriteTimeout: opts.Timeout,
		})
		b.rdb = b.cluster
	} else {
		b.rdb = redis.NewClient(&redis.Options{
			Addr:         opts.Addr,
			Password:     opts.Password,
			DB:           opts.DB,
			DialTimeout:  opts.Timeout,
			ReadTimeout:  opts.Timeout,
			WriteTimeout: opts.Timeout,
		})
	}

	if err := b.Ping(ctx); err != nil {
		_ = b.rdb.Close()
		return nil, err
	}
	return b, nil
}

// NewRedis wraps an existing client. A *redis.ClusterClient switches scans
// and batches to cluster mode.
func NewRedis(rdb redis.UniversalClient) *RedisBackend {
	b := &RedisBackend{rdb: rdb}
	if c, ok := rdb.(*redis.ClusterClient); ok {
		b.cluster = c
	}
	return b
}

func (b *RedisBackend) Name() string {
	if b.cluster != nil {
		return "redis-cluster"
	}
	return "redis"
}

func (b *RedisBackend) Close() error { return b.rdb.Close() }

func (b *RedisBackend) Ping(ctx context.Context) error {
	if err := b.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// ─── Sorted sets ──────────────────────────────────────────────────────────────

func zmembers(score float64, members []string) []redis.Z {
	zs := make([]redis.Z, len(members))
	for i, m := range members {
		zs[i] = redis.Z{Score: score, Member: m}
	}
	return zs
}

func (b *RedisBackend) ZAdd(ctx context.Context, key string, score float64, members ...string) (int64, error) {
	if len(members) == 0 {
		return 0, nil
	}
	return b.rdb.ZAdd(ctx, key, zmembers(score, members)...).Result()
}

func (b *RedisBackend) ZRange(ctx context.Context, key string) ([]string, error) {
	return b.rdb.ZRange(ctx, key, 0, -1).Result()
}

func (b *RedisBackend) ZRangeWithScores(ctx context.Context, key string) ([]Member, error) {
	zs, err := b.rdb.ZRangeWithScores(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Member, len(zs))
	for i, z := range zs {
		out[i] = Member{Name: fmt.Sprint(z.Member), Score: z.Score}
	}
	return out, nil
}

func (b *RedisBackend) ZScore(ctx context.Context, key, member string) (float64, bool, error) {
	s, err := b.rdb.ZScore(ctx, key, member).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return s, true, nil
}

func (b *RedisBackend) ZRem(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	return b.rdb.ZRem(ctx, key, toArgs(members)...).Err()
}

// ─── Hashes ───────────────────────────────────────────────────────────────────

func (b *RedisBackend) HSet(ctx context.Context, key, field, value string) error {
	return b.rdb.HSet(ctx, key, field, value).Err()
}

func (b *RedisBackend) HGet(ctx context.Context, key, field string) (string, bool, error) {
	v, err := b.rdb.HGet(ctx, key, field).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (b *RedisBackend) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	return b.rdb.HGetAll(ctx, key).Result()
}

func (b *RedisBackend) HDel(ctx context.Context, key string, fields ...string) error {
	if len(fields) == 0 {
		return nil
	}
	return b.rdb.HDel(ctx, key, fields...).Err()
}

// ─── Strings & sets ───────────────────────────────────────────────────────────

func (b *RedisBackend) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := b.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (b *RedisBackend) Set(ctx context.Context, key, value string) error {
	return b.rdb.Set(ctx, key, value, 0).Err()
}

func (b *RedisBackend) SAdd(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	return b.rdb.SAdd(ctx, key, toArgs(members)...).Err()
}

func (b *RedisBackend) SMembers(ctx context.Context, key string) ([]string, error) {
	return b.rdb.SMembers(ctx, key).Result()
}

// ─── Keys ─────────────────────────────────────────────────────────────────────

func (b *RedisBackend) Exists(ctx context.Context, key string) (bool, error) {
	n, err := b.rdb.Exists(ctx, key).Result()
	return n > 0, err
}

func (b *RedisBackend) Type(ctx context.Context, key string) (KeyType, error) {
	t, err := b.rdb.Type(ctx, key).Result()
	if err != nil {
		return TypeNone, err
	}
	return KeyType(t), nil
}

func (b *RedisBackend) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if b.cluster != nil {
		// Multi-key DEL must stay within one slot on a cluster.
		for _, k := range keys {
			if err := b.rdb.Del(ctx, k).Err(); err != nil {
				return err
			}
		}
		return nil
	}
	return b.rdb.Del(ctx, keys...).Err()
}

// Scan walks every master on a cluster; fn is never called concurrently.
func (b *RedisBackend) Scan(ctx context.Context, pattern string, fn func(key string) error) error {
	if b.cluster == nil {
		return scanClient(ctx, b.rdb, pattern, fn)
	}
	var mu sync.Mutex
	return b.cluster.ForEachMaster(ctx, func(ctx context.Context, c *redis.Client) error {
		return scanClient(ctx, c, pattern, func(key string) error {
			mu.Lock()
			defer mu.Unlock()
			return fn(key)
		})
	})
}

func scanClient(ctx context.Context, c redis.Cmdable, pattern string, fn func(string) error) error {
	it := c.Scan(ctx, 0, pattern, 1000).Iterator()
	for it.Next(ctx) {
		if err := fn(it.Val()); err != nil {
			return err
		}
	}
	return it.Err()
}

// ─── Batches ──────────────────────────────────────────────────────────────────

// Atomic wraps the batch in MULTI/EXEC. A cluster cannot run a transaction
// across slots, so there the batch is only pipelined.
func (b *RedisBackend) Atomic(ctx context.Context, fn func(Batch) error) error {
	var fnErr error
	run := func(p redis.Pipeliner) error {
		fnErr = fn(&redisBatch{ctx: ctx, p: p})
		return fnErr
	}
	var err error
	if b.cluster != nil {
		_, err = b.rdb.Pipelined(ctx, run)
	} else {
		_, err = b.rdb.TxPipelined(ctx, run)
	}
	if fnErr != nil {
		return fnErr
	}
	return err
}

type redisBatch struct {
	ctx context.Context
	p   redis.Pipeliner
}

func (r *redisBatch) ZAdd(key string, score float64, members ...string) {
	if len(members) > 0 {
		r.p.ZAdd(r.ctx, key, zmembers(score, members)...)
	}
}

func (r *redisBatch) ZRem(key string, members ...string) {
	if len(members) > 0 {
		r.p.ZRem(r.ctx, key, toArgs(members)...)
	}
}

func (r *redisBatch) HSet(key, field, value string) { r.p.HSet(r.ctx, key, field, value) }

func (r *redisBatch) HDel(key string, fields ...string) {
	if len(fields) > 0 {
		r.p.HDel(r.ctx, key, fields...)
	}
}

func (r *redisBatch) Set(key, value string) { r.p.Set(r.ctx, key, value, 0) }

func (r *redisBatch) SAdd(key string, members ...string) {
	if len(members) > 0 {
		r.p.SAdd(r.ctx, key, toArgs(members)...)
	}
}

func (r *redisBatch) Del(keys ...string) {
	for _, k := range keys {
		r.p.Del(r.ctx, k)
	}
}

func toArgs(ss []string) []interface{} {
	out := make([]interface{}, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
