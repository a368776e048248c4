package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisParams defines connection to redis
type RedisParams struct {
	Addr      string
	Password  string
	DB        int
	Namespace string // prepended to every key, e.g. "jobord:"
}

// Redis keeps objects as plain string values, prefix listing goes through SCAN
type Redis struct {
	client    *redis.Client
	namespace string
}

// NewRedis makes a redis store and checks the connection
func NewRedis(ctx context.Context, p RedisParams) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         p.Addr,
		Password:     p.Password,
		DB:           p.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		if closeErr := client.Close(); closeErr != nil {
			return nil, fmt.Errorf("redis ping failed: %w (also failed to close client: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &Redis{client: client, namespace: p.Namespace}, nil
}

// List scans keys starting with prefix. Sizes are read with STRLEN, keys removed mid-scan are skipped.
func (r *Redis) List(ctx context.Context, prefix string) ([]Object, error) {
	var keys []string
	iter := r.client.Scan(ctx, 0, escapeGlob(r.namespace+prefix)+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan keys with prefix %q: %w", prefix, err)
	}
	sort.Strings(keys)

	res := make([]Object, 0, len(keys))
	for _, k := range keys {
		size, err := r.client.StrLen(ctx, k).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to get size of %s: %w", k, err)
		}
		if size == 0 {
			if n, e := r.client.Exists(ctx, k).Result(); e == nil && n == 0 {
				continue
			}
		}
		key := strings.TrimPrefix(k, r.namespace)
		res = append(res, Object{Key: key, Location: r.location(key), Size: size})
	}
	return res, nil
}

// Get returns the object's content
func (r *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := r.client.Get(ctx, r.namespace+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("get %s: %w", key, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get %s: %w", key, err)
	}
	return data, nil
}

// Put stores the object with SET, or SETNX when overwrite is not allowed
func (r *Redis) Put(ctx context.Context, key string, data []byte, opts PutOpts) (Object, error) {
	if err := validateKey(key); err != nil {
		return Object{}, err
	}
	if opts.AllowOverwrite {
		if err := r.client.Set(ctx, r.namespace+key, data, 0).Err(); err != nil {
			return Object{}, fmt.Errorf("failed to put %s: %w", key, err)
		}
	} else {
		ok, err := r.client.SetNX(ctx, r.namespace+key, data, 0).Result()
		if err != nil {
			return Object{}, fmt.Errorf("failed to put %s: %w", key, err)
		}
		if !ok {
			return Object{}, fmt.Errorf("put %s: %w", key, ErrExists)
		}
	}
	return Object{Key: key, Location: r.location(key), Size: int64(len(data)), UpdatedAt: time.Now()}, nil
}

// Delete removes the object
func (r *Redis) Delete(ctx context.Context, key string) error {
	n, err := r.client.Del(ctx, r.namespace+key).Result()
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	if n == 0 {
		return fmt.Errorf("delete %s: %w", key, ErrNotFound)
	}
	return nil
}

// Close closes the redis client
func (r *Redis) Close() error {
	return r.client.Close()
}

func (r *Redis) location(key string) string { return "redis://" + r.namespace + key }

// escapeGlob escapes redis MATCH pattern special characters
func escapeGlob(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)
	return r.Replace(s)
}
