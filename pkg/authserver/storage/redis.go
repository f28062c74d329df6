// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/redis/go-redis/v9"

	"github.com/stacklok/mcp-linkedin/pkg/errors"
	"github.com/stacklok/mcp-linkedin/pkg/logger"
)

// Default timeouts for Redis operations.
const (
	DefaultDialTimeout  = 5 * time.Second
	DefaultReadTimeout  = 3 * time.Second
	DefaultWriteTimeout = 3 * time.Second
)

// readRetryDelay is the pause before the single retry of an idempotent read.
const readRetryDelay = 50 * time.Millisecond

// RedisConfig holds Redis connection configuration.
// Either URL or SentinelConfig must be set.
type RedisConfig struct {
	// URL is a redis:// or rediss:// connection string for a standalone server.
	URL string

	// SentinelConfig selects a Sentinel-managed deployment instead of URL.
	SentinelConfig *SentinelConfig

	// ACLUserConfig holds ACL credentials for Sentinel deployments.
	ACLUserConfig *ACLUserConfig

	// KeyPrefix namespaces every key. Defaults to DefaultKeyPrefix.
	KeyPrefix string

	// Timeouts (defaults: Dial=5s, Read=3s, Write=3s).
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// SentinelConfig contains Redis Sentinel configuration.
type SentinelConfig struct {
	MasterName    string
	SentinelAddrs []string
	DB            int
}

// ACLUserConfig contains Redis ACL user authentication configuration.
type ACLUserConfig struct {
	Username string
	Password string
}

// RedisStore implements Store on Redis. TTLs are delegated to the server and
// single-use transitions run as Lua scripts, so several server processes can
// share one store.
type RedisStore struct {
	client    redis.UniversalClient
	keyPrefix string
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid redis configuration: %w", err)
	}
	applyRedisDefaults(&cfg)

	var client redis.UniversalClient
	if cfg.SentinelConfig != nil {
		opts := &redis.FailoverOptions{
			MasterName:    cfg.SentinelConfig.MasterName,
			SentinelAddrs: cfg.SentinelConfig.SentinelAddrs,
			DB:            cfg.SentinelConfig.DB,
			DialTimeout:   cfg.DialTimeout,
			ReadTimeout:   cfg.ReadTimeout,
			WriteTimeout:  cfg.WriteTimeout,
		}
		if cfg.ACLUserConfig != nil {
			opts.Username = cfg.ACLUserConfig.Username
			opts.Password = cfg.ACLUserConfig.Password
		}
		client = redis.NewFailoverClient(opts)
	} else {
		opts, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}
		opts.DialTimeout = cfg.DialTimeout
		opts.ReadTimeout = cfg.ReadTimeout
		opts.WriteTimeout = cfg.WriteTimeout
		client = redis.NewClient(opts)
	}

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.NewStoreUnavailableError("failed to connect to redis", err)
	}

	logger.Infow("connected to redis session store", "key_prefix", cfg.KeyPrefix)

	return &RedisStore{
		client:    client,
		keyPrefix: cfg.KeyPrefix,
	}, nil
}

// NewRedisStoreWithClient creates a RedisStore with a pre-configured client.
// This is useful for testing with miniredis.
func NewRedisStoreWithClient(client redis.UniversalClient, keyPrefix string) *RedisStore {
	return &RedisStore{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

func validateConfig(cfg *RedisConfig) error {
	if cfg.SentinelConfig == nil {
		if cfg.URL == "" {
			return stderrors.New("redis url or sentinel configuration is required")
		}
		return nil
	}
	if cfg.SentinelConfig.MasterName == "" {
		return stderrors.New("sentinel master name is required")
	}
	if len(cfg.SentinelConfig.SentinelAddrs) == 0 {
		return stderrors.New("at least one sentinel address is required")
	}
	return nil
}

func applyRedisDefaults(cfg *RedisConfig) {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = DefaultKeyPrefix
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = DefaultDialTimeout
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}
}

// Close closes the Redis client connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks Redis connectivity (health check).
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) key(key string) string {
	return s.keyPrefix + key
}

// storeErr maps a go-redis error onto the error taxonomy.
func storeErr(op, key string, err error) error {
	if stderrors.Is(err, redis.Nil) {
		return notFound(key)
	}
	return errors.NewStoreUnavailableError(fmt.Sprintf("redis %s %q failed", op, key), err)
}

// retryRead runs an idempotent read at most twice. Not-found results are
// final; only transport failures are retried.
func retryRead[T any](ctx context.Context, op func() (T, error)) (T, error) {
	return backoff.Retry(ctx, func() (T, error) {
		v, err := op()
		if err != nil && stderrors.Is(err, redis.Nil) {
			return v, backoff.Permanent(err)
		}
		return v, err
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(readRetryDelay)),
		backoff.WithMaxTries(2),
	)
}

// -----------------------
// Values
// -----------------------

// Put writes value under key.
func (s *RedisStore) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.client.Set(ctx, s.key(key), value, redisTTL(ttl)).Err(); err != nil {
		return storeErr("SET", key, err)
	}
	return nil
}

// Get returns the value stored under key, retrying once on transport errors.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := retryRead(ctx, func() ([]byte, error) {
		return s.client.Get(ctx, s.key(key)).Bytes()
	})
	if err != nil {
		return nil, storeErr("GET", key, err)
	}
	return data, nil
}

// Delete removes key.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return storeErr("DEL", key, err)
	}
	return nil
}

// Touch resets the TTL of key.
func (s *RedisStore) Touch(ctx context.Context, key string, ttl time.Duration) error {
	var (
		ok  bool
		err error
	)
	if ttl <= 0 {
		ok, err = s.client.Persist(ctx, s.key(key)).Result()
		if err == nil && !ok {
			// PERSIST reports false for keys without a TTL as well
			var n int64
			n, err = s.client.Exists(ctx, s.key(key)).Result()
			ok = n == 1
		}
	} else {
		ok, err = s.client.Expire(ctx, s.key(key), ttl).Result()
	}
	if err != nil {
		return storeErr("EXPIRE", key, err)
	}
	if !ok {
		return notFound(key)
	}
	return nil
}

// PutIfAbsent writes value with SET NX.
func (s *RedisStore) PutIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, s.key(key), value, redisTTL(ttl)).Result()
	if err != nil {
		return false, storeErr("SETNX", key, err)
	}
	return ok, nil
}

// compareAndSwapScript replaces KEYS[1] with ARGV[2] when it holds ARGV[1].
// Returns -1 for a missing key, 0 for a mismatch and 1 for a swap.
var compareAndSwapScript = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if not cur then
	return -1
end
if cur ~= ARGV[1] then
	return 0
end
redis.call('SET', KEYS[1], ARGV[2], 'KEEPTTL')
return 1
`)

// CompareAndSwap runs the swap as a single Lua script so concurrent callers
// on different processes observe exactly one winner.
func (s *RedisStore) CompareAndSwap(ctx context.Context, key string, prev, next []byte) (bool, error) {
	result, err := compareAndSwapScript.Run(ctx, s.client, []string{s.key(key)}, prev, next).Int()
	if err != nil {
		return false, storeErr("EVAL", key, err)
	}
	switch result {
	case -1:
		return false, notFound(key)
	case 1:
		return true, nil
	default:
		return false, nil
	}
}

// -----------------------
// Sets
// -----------------------

// AddToSet adds member to the set under key and resets its TTL.
func (s *RedisStore) AddToSet(ctx context.Context, key, member string, ttl time.Duration) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, s.key(key), member)
		if ttl > 0 {
			pipe.Expire(ctx, s.key(key), ttl)
		}
		return nil
	})
	if err != nil {
		return storeErr("SADD", key, err)
	}
	return nil
}

// RemoveFromSet removes member from the set under key.
func (s *RedisStore) RemoveFromSet(ctx context.Context, key, member string) error {
	if err := s.client.SRem(ctx, s.key(key), member).Err(); err != nil {
		return storeErr("SREM", key, err)
	}
	return nil
}

// Members returns the members of the set under key.
func (s *RedisStore) Members(ctx context.Context, key string) ([]string, error) {
	members, err := retryRead(ctx, func() ([]string, error) {
		return s.client.SMembers(ctx, s.key(key)).Result()
	})
	if err != nil {
		return nil, storeErr("SMEMBERS", key, err)
	}
	return members, nil
}

// redisTTL maps "never expires" onto go-redis' zero expiration.
func redisTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return 0
	}
	return ttl
}

// Compile-time interface check.
var _ Store = (*RedisStore)(nil)
