package datastore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/redis/go-redis/v9"

	hberrors "github.com/randalmurphal/eventhub/pkg/eventhub/errors"
)

// RedisBackend keeps each store in one Redis hash named "<prefix>:<store>".
type RedisBackend struct {
	client    *redis.Client
	prefix    string
	ownClient bool
	retry     hberrors.RetryConfig
	closed    atomic.Bool
}

var _ Backend = (*RedisBackend)(nil)

// RedisOptions configures NewRedisBackend.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// NewRedisBackend connects to Redis and verifies the connection with PING.
func NewRedisBackend(ctx context.Context, opts RedisOptions) (*RedisBackend, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", opts.Addr, err)
	}
	b := NewRedisBackendFromClient(client, opts.Prefix)
	b.ownClient = true
	return b, nil
}

// NewRedisBackendFromClient wraps an existing client. Close leaves the client open.
func NewRedisBackendFromClient(client *redis.Client, prefix string) *RedisBackend {
	if prefix == "" {
		prefix = "eventhub"
	}
	return &RedisBackend{client: client, prefix: prefix, retry: hberrors.DefaultRetry}
}

func (r *RedisBackend) hash(store string) string {
	return r.prefix + ":" + store
}

// Set implements Backend.
func (r *RedisBackend) Set(ctx context.Context, store, key string, value []byte) error {
	if r.closed.Load() {
		return ErrClosed
	}
	err := hberrors.Retry(ctx, r.retry, func(ctx context.Context) error {
		return classifyRedis(r.client.HSet(ctx, r.hash(store), key, value).Err())
	})
	if err != nil {
		return fmt.Errorf("set %s/%s: %w", store, key, err)
	}
	return nil
}

// Get implements Backend.
func (r *RedisBackend) Get(ctx context.Context, store, key string) ([]byte, error) {
	if r.closed.Load() {
		return nil, ErrClosed
	}
	result := hberrors.WithRetryContext(ctx, r.retry, func(ctx context.Context) ([]byte, error) {
		value, err := r.client.HGet(ctx, r.hash(store), key).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return value, classifyRedis(err)
	})
	if errors.Is(result.Err, ErrNotFound) {
		return nil, ErrNotFound
	}
	if result.Err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", store, key, result.Err)
	}
	return result.Value, nil
}

// Delete implements Backend.
func (r *RedisBackend) Delete(ctx context.Context, store, key string) error {
	if r.closed.Load() {
		return ErrClosed
	}
	return hberrors.Retry(ctx, r.retry, func(ctx context.Context) error {
		return classifyRedis(r.client.HDel(ctx, r.hash(store), key).Err())
	})
}

// Clear implements Backend.
func (r *RedisBackend) Clear(ctx context.Context, store string) error {
	if r.closed.Load() {
		return ErrClosed
	}
	return hberrors.Retry(ctx, r.retry, func(ctx context.Context) error {
		return classifyRedis(r.client.Del(ctx, r.hash(store)).Err())
	})
}

// Keys implements Backend.
func (r *RedisBackend) Keys(ctx context.Context, store string) ([]string, error) {
	if r.closed.Load() {
		return nil, ErrClosed
	}
	keys, err := r.client.HKeys(ctx, r.hash(store)).Result()
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	sort.Strings(keys)
	return keys, nil
}

// Close implements Backend.
func (r *RedisBackend) Close() error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}
	if r.ownClient {
		return r.client.Close()
	}
	return nil
}

// classifyRedis marks replies that mean "try again later" and pool
// exhaustion as unavailable, which the retry loop treats as transient.
func classifyRedis(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, redis.ErrPoolTimeout) {
		return hberrors.Wrap(err, hberrors.CodeDataStoreUnavailable, "redis pool exhausted")
	}
	for _, prefix := range []string{"LOADING", "BUSY", "TRYAGAIN", "MASTERDOWN"} {
		if strings.HasPrefix(err.Error(), prefix) {
			return hberrors.Wrap(err, hberrors.CodeDataStoreUnavailable, "redis "+strings.ToLower(prefix))
		}
	}
	return err
}
