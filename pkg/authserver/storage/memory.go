// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"k8s.io/utils/clock"

	"github.com/stacklok/mcp-linkedin/pkg/errors"
	"github.com/stacklok/mcp-linkedin/pkg/logger"
)

// timedEntry wraps a value with its creation time for TTL tracking.
// A zero expiresAt means the entry never expires.
type timedEntry[T any] struct {
	value     T
	createdAt time.Time
	expiresAt time.Time
}

func (e *timedEntry[T]) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// MemoryStore implements Store with in-process maps.
// It is thread-safe but holds state in a single process; use RedisStore
// when more than one server instance shares sessions.
//
// Expired keys are hidden on access and removed by a background sweep.
type MemoryStore struct {
	mu sync.RWMutex

	values map[string]*timedEntry[[]byte]
	sets   map[string]*timedEntry[map[string]struct{}]

	clock clock.PassiveClock

	// cleanupInterval is how often the background cleanup runs
	cleanupInterval time.Duration

	// stopCleanup is used to signal the cleanup goroutine to stop
	stopCleanup chan struct{}

	// cleanupDone is closed when the cleanup goroutine has fully stopped
	cleanupDone chan struct{}
	closeOnce   sync.Once
}

// MemoryStoreOption configures a MemoryStore instance.
type MemoryStoreOption func(*MemoryStore)

// WithCleanupInterval sets a custom cleanup interval.
func WithCleanupInterval(interval time.Duration) MemoryStoreOption {
	return func(s *MemoryStore) {
		s.cleanupInterval = interval
	}
}

// WithClock sets the clock used for expiry decisions.
func WithClock(c clock.PassiveClock) MemoryStoreOption {
	return func(s *MemoryStore) {
		s.clock = c
	}
}

// NewMemoryStore creates a MemoryStore and starts the background cleanup goroutine.
func NewMemoryStore(opts ...MemoryStoreOption) *MemoryStore {
	s := &MemoryStore{
		values:          make(map[string]*timedEntry[[]byte]),
		sets:            make(map[string]*timedEntry[map[string]struct{}]),
		clock:           clock.RealClock{},
		cleanupInterval: DefaultCleanupInterval,
		stopCleanup:     make(chan struct{}),
		cleanupDone:     make(chan struct{}),
	}

	for _, opt := range opts {
		opt(s)
	}

	go s.cleanupLoop()

	return s
}

// Close stops the background cleanup goroutine.
func (s *MemoryStore) Close() error {
	s.closeOnce.Do(func() {
		close(s.stopCleanup)
		<-s.cleanupDone
	})
	return nil
}

func (s *MemoryStore) cleanupLoop() {
	defer close(s.cleanupDone)

	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCleanup:
			return
		case <-ticker.C:
			s.cleanupExpired()
		}
	}
}

// cleanupExpired collects expired keys under the read lock, then deletes
// them under the write lock, re-checking each one.
func (s *MemoryStore) cleanupExpired() int {
	now := s.clock.Now()

	s.mu.RLock()
	var expiredValues, expiredSets []string
	for k, v := range s.values {
		if v.expired(now) {
			expiredValues = append(expiredValues, k)
		}
	}
	for k, v := range s.sets {
		if v.expired(now) {
			expiredSets = append(expiredSets, k)
		}
	}
	s.mu.RUnlock()

	if len(expiredValues) == 0 && len(expiredSets) == 0 {
		return 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for _, k := range expiredValues {
		if v, ok := s.values[k]; ok && v.expired(now) {
			delete(s.values, k)
			removed++
		}
	}
	for _, k := range expiredSets {
		if v, ok := s.sets[k]; ok && v.expired(now) {
			delete(s.sets, k)
			removed++
		}
	}

	logger.Debugw("session store cleanup", "removed", removed)
	return removed
}

func (s *MemoryStore) expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return s.clock.Now().Add(ttl)
}

func notFound(key string) error {
	return errors.NewNotFoundError(fmt.Sprintf("key %q not found", key), nil)
}

// -----------------------
// Values
// -----------------------

// Put writes value under key.
func (s *MemoryStore) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = &timedEntry[[]byte]{
		value:     bytes.Clone(value),
		createdAt: now,
		expiresAt: s.expiry(ttl),
	}
	return nil
}

// Get returns the value stored under key.
func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	now := s.clock.Now()

	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.values[key]
	if !ok || e.expired(now) {
		return nil, notFound(key)
	}
	return bytes.Clone(e.value), nil
}

// Delete removes key.
func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	delete(s.sets, key)
	return nil
}

// Touch resets the TTL of key.
func (s *MemoryStore) Touch(ctx context.Context, key string, ttl time.Duration) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.values[key]; ok && !e.expired(now) {
		e.expiresAt = s.expiry(ttl)
		return nil
	}
	if e, ok := s.sets[key]; ok && !e.expired(now) {
		e.expiresAt = s.expiry(ttl)
		return nil
	}
	return notFound(key)
}

// PutIfAbsent writes value only when key is absent or expired.
func (s *MemoryStore) PutIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	if err := ctxErr(ctx); err != nil {
		return false, err
	}
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.values[key]; ok && !e.expired(now) {
		return false, nil
	}
	s.values[key] = &timedEntry[[]byte]{
		value:     bytes.Clone(value),
		createdAt: now,
		expiresAt: s.expiry(ttl),
	}
	return true, nil
}

// CompareAndSwap replaces prev with next under the write lock.
func (s *MemoryStore) CompareAndSwap(ctx context.Context, key string, prev, next []byte) (bool, error) {
	if err := ctxErr(ctx); err != nil {
		return false, err
	}
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.values[key]
	if !ok || e.expired(now) {
		return false, notFound(key)
	}
	if !bytes.Equal(e.value, prev) {
		return false, nil
	}
	e.value = bytes.Clone(next)
	return true, nil
}

// -----------------------
// Sets
// -----------------------

// AddToSet adds member to the set under key.
func (s *MemoryStore) AddToSet(ctx context.Context, key, member string, ttl time.Duration) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sets[key]
	if !ok || e.expired(now) {
		e = &timedEntry[map[string]struct{}]{
			value:     make(map[string]struct{}),
			createdAt: now,
		}
		s.sets[key] = e
	}
	e.value[member] = struct{}{}
	e.expiresAt = s.expiry(ttl)
	return nil
}

// RemoveFromSet removes member from the set under key.
func (s *MemoryStore) RemoveFromSet(ctx context.Context, key, member string) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.sets[key]; ok {
		delete(e.value, member)
		if len(e.value) == 0 {
			delete(s.sets, key)
		}
	}
	return nil
}

// Members returns the members of the set under key.
func (s *MemoryStore) Members(ctx context.Context, key string) ([]string, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	now := s.clock.Now()

	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.sets[key]
	if !ok || e.expired(now) {
		return nil, nil
	}
	members := make([]string, 0, len(e.value))
	for m := range e.value {
		members = append(members, m)
	}
	return members, nil
}

// ctxErr reports a cancelled or expired context as store_unavailable so a
// timed-out call is never mistaken for a semantic failure.
func ctxErr(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return errors.NewStoreUnavailableError("session store call aborted", err)
	}
	return nil
}

// Compile-time interface check.
var _ Store = (*MemoryStore)(nil)
