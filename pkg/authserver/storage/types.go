// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package storage provides the session store used by the authorization
// server, the upstream token broker and the draft store: a key/value
// abstraction with per-key expiry and the atomic primitives needed for
// single-use credentials.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/stacklok/mcp-linkedin/pkg/errors"
)

// Store is a key/value store with per-key TTL. A ttl of zero or less means
// the key never expires. Every operation is safe to retry.
//
// Failures to reach the backend are reported as store_unavailable errors;
// absent or expired keys as not_found errors. Callers must never treat the
// former as the latter.
type Store interface {
	// Put writes value under key, replacing any existing value and TTL.
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Get returns the value stored under key.
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Touch resets the TTL of key without reading it.
	Touch(ctx context.Context, key string, ttl time.Duration) error

	// PutIfAbsent writes value only when key does not exist and reports
	// whether the write happened.
	PutIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)

	// CompareAndSwap atomically replaces the value under key with next if
	// the current value equals prev, keeping the remaining TTL. It reports
	// whether the swap happened and returns not_found when key is absent.
	CompareAndSwap(ctx context.Context, key string, prev, next []byte) (bool, error)

	// AddToSet adds member to the set stored under key and resets the set TTL.
	AddToSet(ctx context.Context, key, member string, ttl time.Duration) error

	// RemoveFromSet removes member from the set stored under key.
	RemoveFromSet(ctx context.Context, key, member string) error

	// Members returns the members of the set stored under key; an absent
	// set has no members.
	Members(ctx context.Context, key string) ([]string, error)

	// Close releases backend resources.
	Close() error
}

// Key builds a namespaced key from its parts, e.g. Key("code", c) = "code:c".
func Key(kind string, parts ...string) string {
	k := kind
	for _, p := range parts {
		k += ":" + p
	}
	return k
}

// PutJSON marshals v and stores it under key.
func PutJSON(ctx context.Context, s Store, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return errors.NewServerError(fmt.Sprintf("failed to marshal %s", key), err)
	}
	return s.Put(ctx, key, data, ttl)
}

// GetJSON loads the value under key and unmarshals it into a new T.
func GetJSON[T any](ctx context.Context, s Store, key string) (*T, []byte, error) {
	data, err := s.Get(ctx, key)
	if err != nil {
		return nil, nil, err
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, nil, errors.NewServerError(fmt.Sprintf("failed to unmarshal %s", key), err)
	}
	return &v, data, nil
}

// SwapJSON marshals v and stores it under key only if the key still holds
// prev. The marshaled value is returned so a caller can swap it back.
func SwapJSON(ctx context.Context, s Store, key string, prev []byte, v any) ([]byte, bool, error) {
	next, err := json.Marshal(v)
	if err != nil {
		return nil, false, errors.NewServerError(fmt.Sprintf("failed to marshal %s", key), err)
	}
	swapped, err := s.CompareAndSwap(ctx, key, prev, next)
	if err != nil {
		return nil, false, err
	}
	return next, swapped, nil
}
