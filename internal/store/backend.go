// Package store holds the layer time index.
//
// The index is a flat key space of sorted sets, hashes, unordered sets and
// strings, the shape the tile server reads. Two backends implement it:
//
//	redis: the production store shared with the tile server
//	bolt:  an embedded bbolt file for offline runs and tests
//
// Layers wraps a Backend with typed accessors for every per-layer entity.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/nasa-gibs/oetime/internal/model"
)

// KeyType is the data type held at a key.
type KeyType string

const (
	TypeNone   KeyType = "none"
	TypeString KeyType = "string"
	TypeZSet   KeyType = "zset"
	TypeSet    KeyType = "set"
	TypeHash   KeyType = "hash"
)

// Member is a sorted set member with its score.
type Member struct {
	Name  string
	Score float64
}

// Backend is the set of primitives the index is built from.
//
// Sorted set ranges are ordered by score, then by member. Lookups of
// missing keys or fields return found=false and a nil error.
type Backend interface {
	ZAdd(ctx context.Context, key string, score float64, members ...string) (int64, error)
	ZRange(ctx context.Context, key string) ([]string, error)
	ZRangeWithScores(ctx context.Context, key string) ([]Member, error)
	ZScore(ctx context.Context, key, member string) (float64, bool, error)
	ZRem(ctx context.Context, key string, members ...string) error

	HSet(ctx context.Context, key, field, value string) error
	HGet(ctx context.Context, key, field string) (string, bool, error)
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HDel(ctx context.Context, key string, fields ...string) error

	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error

	SAdd(ctx context.Context, key string, members ...string) error
	SMembers(ctx context.Context, key string) ([]string, error)

	Exists(ctx context.Context, key string) (bool, error)
	Type(ctx context.Context, key string) (KeyType, error)
	Del(ctx context.Context, keys ...string) error

	// Scan calls fn for every key matching the glob pattern, in no
	// particular order.
	Scan(ctx context.Context, pattern string, fn func(key string) error) error

	// Atomic applies every write queued on the batch as one unit. If fn
	// returns an error nothing is applied.
	Atomic(ctx context.Context, fn func(Batch) error) error

	Ping(ctx context.Context) error
	Name() string
	Close() error
}

// Batch queues writes for Backend.Atomic.
type Batch interface {
	ZAdd(key string, score float64, members ...string)
	ZRem(key string, members ...string)
	HSet(key, field, value string)
	HDel(key string, fields ...string)
	Set(key, value string)
	SAdd(key string, members ...string)
	Del(keys ...string)
}

// Options selects and configures a backend.
type Options struct {
	Kind string // "redis" or "bolt"

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisCluster  string // "auto", "on" or "off"

	DBPath string

	Timeout time.Duration
}

// Open builds the backend named by opts.Kind.
func Open(ctx context.Context, opts Options) (Backend, error) {
	switch opts.Kind {
	case "", "redis":
		return OpenRedis(ctx, RedisOptions{
			Addr:     opts.RedisAddr,
			Password: opts.RedisPassword,
			DB:       opts.RedisDB,
			Cluster:  opts.RedisCluster,
			Timeout:  opts.Timeout,
		})
	case "bolt":
		return OpenBolt(opts.DBPath)
	default:
		return nil, fmt.Errorf("%w: unknown backend %q (want redis or bolt)", model.ErrConfig, opts.Kind)
	}
}
