// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"k8s.io/utils/clock"

	"github.com/stacklok/mcp-linkedin/pkg/authserver/storage"
	"github.com/stacklok/mcp-linkedin/pkg/errors"
	"github.com/stacklok/mcp-linkedin/pkg/logger"
)

// DefaultTTL is how long a session lives after its last validated request.
const DefaultTTL = 24 * time.Hour

const keySession = "session"

// CleanupFunc releases resources a session owns. It must be idempotent.
type CleanupFunc func(ctx context.Context, sessionID string) error

// Manager creates, touches and destroys sessions in a storage.Store.
type Manager struct {
	store storage.Store
	ttl   time.Duration
	clock clock.PassiveClock

	mu       sync.RWMutex
	cleanups []namedCleanup
}

type namedCleanup struct {
	name string
	fn   CleanupFunc
}

// Option configures a Manager.
type Option func(*Manager)

// WithTTL sets the sliding session lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		m.ttl = ttl
	}
}

// WithClock sets the clock used for timestamps.
func WithClock(c clock.PassiveClock) Option {
	return func(m *Manager) {
		m.clock = c
	}
}

// NewManager creates a Manager over store.
func NewManager(store storage.Store, opts ...Option) *Manager {
	m := &Manager{
		store: store,
		ttl:   DefaultTTL,
		clock: clock.RealClock{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// OnDestroy registers fn to run when a session is destroyed. Cleanups run
// in registration order.
func (m *Manager) OnDestroy(name string, fn CleanupFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleanups = append(m.cleanups, namedCleanup{name: name, fn: fn})
}

// Create starts a new session.
func (m *Manager) Create(ctx context.Context, userID string, attributes map[string]string) (*Session, error) {
	now := m.clock.Now()
	s := &Session{
		ID:          uuid.NewString(),
		UserID:      userID,
		CreatedAt:   now,
		LastTouched: now,
		ExpiresAt:   now.Add(m.ttl),
		Attributes:  attributes,
	}
	if err := storage.PutJSON(ctx, m.store, storage.Key(keySession, s.ID), s, m.ttl); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	logger.Debugw("created session", "session_id", s.ID)
	return s, nil
}

// Get loads a live session.
func (m *Manager) Get(ctx context.Context, sessionID string) (*Session, error) {
	s, _, err := m.load(ctx, sessionID)
	return s, err
}

func (m *Manager) load(ctx context.Context, sessionID string) (*Session, []byte, error) {
	if sessionID == "" {
		return nil, nil, errors.NewNotFoundError("session not found", nil)
	}
	s, raw, err := storage.GetJSON[Session](ctx, m.store, storage.Key(keySession, sessionID))
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, nil, errors.NewNotFoundError("session not found", nil)
		}
		return nil, nil, err
	}
	if s.IsExpired(m.clock.Now()) {
		return nil, nil, errors.NewNotFoundError("session expired", nil)
	}
	return s, raw, nil
}

// Touch records a validated request against the session and extends its
// lifetime. The record is only ever swapped in place and its TTL reset, so
// a touch racing Destroy never brings the session back. Of concurrent
// touches one wins; the others return the winner's record.
func (m *Manager) Touch(ctx context.Context, sessionID string) (*Session, error) {
	s, raw, err := m.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	key := storage.Key(keySession, s.ID)
	now := m.clock.Now()
	s.LastTouched = now
	s.ExpiresAt = now.Add(m.ttl)

	_, swapped, err := storage.SwapJSON(ctx, m.store, key, raw, s)
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, errors.NewNotFoundError("session not found", nil)
		}
		return nil, fmt.Errorf("failed to touch session: %w", err)
	}
	if !swapped {
		return m.Get(ctx, sessionID)
	}
	if err := m.store.Touch(ctx, key, m.ttl); err != nil {
		if errors.IsNotFound(err) {
			return nil, errors.NewNotFoundError("session not found", nil)
		}
		return nil, fmt.Errorf("failed to touch session: %w", err)
	}
	return s, nil
}

// Discard deletes the session record without running cleanups. It is
// meant for a session that was created for a grant that never committed
// and so owns nothing.
func (m *Manager) Discard(ctx context.Context, sessionID string) error {
	if err := m.store.Delete(ctx, storage.Key(keySession, sessionID)); err != nil {
		return fmt.Errorf("failed to discard session: %w", err)
	}
	logger.Debugw("discarded session", "session_id", sessionID)
	return nil
}

// Destroy runs every registered cleanup for the session, then deletes it.
// Cleanup failures are joined and returned after all cleanups ran; the
// session record is only removed when every cleanup succeeded, so a retry
// can finish the job.
func (m *Manager) Destroy(ctx context.Context, sessionID string) error {
	m.mu.RLock()
	cleanups := append([]namedCleanup(nil), m.cleanups...)
	m.mu.RUnlock()

	var errs []error
	for _, c := range cleanups {
		if err := c.fn(ctx, sessionID); err != nil {
			logger.Warnw("session cleanup failed", "session_id", sessionID, "cleanup", c.name, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", c.name, err))
		}
	}
	if len(errs) > 0 {
		return stderrors.Join(errs...)
	}

	if err := m.store.Delete(ctx, storage.Key(keySession, sessionID)); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	logger.Debugw("destroyed session", "session_id", sessionID)
	return nil
}
