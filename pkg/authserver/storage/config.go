// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"context"
	"fmt"
	"time"
)

// Type represents the type of storage backend.
type Type string

const (
	// TypeMemory uses an in-process map. Single-instance only.
	TypeMemory Type = "memory"

	// TypeRedis uses Redis, shared across server processes.
	TypeRedis Type = "redis"
)

const (
	// DefaultCleanupInterval is how often the memory backend sweeps expired keys.
	DefaultCleanupInterval = 5 * time.Minute

	// DefaultKeyPrefix namespaces every key written to a shared Redis.
	DefaultKeyPrefix = "mcp-linkedin:"
)

// Config configures the storage backend.
type Config struct {
	// Type specifies the storage backend type. Defaults to memory.
	Type Type

	// Redis holds the Redis settings, used when Type is TypeRedis.
	Redis RedisConfig
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Type: TypeMemory,
	}
}

// NewStore creates the Store selected by cfg.
func NewStore(ctx context.Context, cfg *Config) (Store, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	switch cfg.Type {
	case TypeMemory, "":
		return NewMemoryStore(), nil
	case TypeRedis:
		s, err := NewRedisStore(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown session store type: %q (must be %q or %q)", cfg.Type, TypeMemory, TypeRedis)
	}
}
