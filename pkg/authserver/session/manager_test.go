// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	clocktesting "k8s.io/utils/clock/testing"

	"github.com/stacklok/mcp-linkedin/pkg/authserver/storage"
	"github.com/stacklok/mcp-linkedin/pkg/errors"
)

func newTestManager(t *testing.T, ttl time.Duration) (*Manager, *clocktesting.FakeClock) {
	t.Helper()
	fc := clocktesting.NewFakeClock(time.Unix(1_700_000_000, 0))
	store := storage.NewMemoryStore(storage.WithClock(fc))
	t.Cleanup(func() { _ = store.Close() })
	return NewManager(store, WithTTL(ttl), WithClock(fc)), fc
}

func TestManager_CreateGet(t *testing.T) {
	t.Parallel()

	m, fc := newTestManager(t, time.Hour)
	ctx := context.Background()

	s, err := m.Create(ctx, "urn:li:person:42", map[string]string{"client_id": "c1"})
	require.NoError(t, err)
	assert.NotEmpty(t, s.ID)
	assert.Equal(t, fc.Now(), s.CreatedAt)
	assert.Equal(t, fc.Now().Add(time.Hour), s.ExpiresAt)

	got, err := m.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, "urn:li:person:42", got.UserID)
	assert.Equal(t, "c1", got.Attributes["client_id"])

	_, err = m.Get(ctx, "")
	assert.True(t, errors.IsNotFound(err))
}

func TestManager_TouchSlidesExpiry(t *testing.T) {
	t.Parallel()

	m, fc := newTestManager(t, 10*time.Minute)
	ctx := context.Background()

	s, err := m.Create(ctx, "", nil)
	require.NoError(t, err)

	fc.Step(9 * time.Minute)
	touched, err := m.Touch(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, fc.Now(), touched.LastTouched)

	fc.Step(9 * time.Minute)
	_, err = m.Get(ctx, s.ID)
	require.NoError(t, err, "touch kept the session alive")

	fc.Step(2 * time.Minute)
	_, err = m.Touch(ctx, s.ID)
	assert.True(t, errors.IsNotFound(err))
}

func TestManager_DestroyRunsCleanups(t *testing.T) {
	t.Parallel()

	m, _ := newTestManager(t, time.Hour)
	ctx := context.Background()

	s, err := m.Create(ctx, "", nil)
	require.NoError(t, err)

	var order []string
	m.OnDestroy("tokens", func(_ context.Context, id string) error {
		assert.Equal(t, s.ID, id)
		order = append(order, "tokens")
		return nil
	})
	m.OnDestroy("artifacts", func(_ context.Context, _ string) error {
		order = append(order, "artifacts")
		return nil
	})

	require.NoError(t, m.Destroy(ctx, s.ID))
	assert.Equal(t, []string{"tokens", "artifacts"}, order)

	_, err = m.Get(ctx, s.ID)
	assert.True(t, errors.IsNotFound(err))

	require.NoError(t, m.Destroy(ctx, s.ID), "destroy is idempotent")
}

func TestManager_DestroyKeepsSessionWhenCleanupFails(t *testing.T) {
	t.Parallel()

	m, _ := newTestManager(t, time.Hour)
	ctx := context.Background()

	s, err := m.Create(ctx, "", nil)
	require.NoError(t, err)

	ran := false
	m.OnDestroy("drafts", func(context.Context, string) error {
		return errors.NewStoreUnavailableError("drafts", stderrors.New("timeout"))
	})
	m.OnDestroy("artifacts", func(context.Context, string) error {
		ran = true
		return nil
	})

	err = m.Destroy(ctx, s.ID)
	require.Error(t, err)
	assert.True(t, errors.IsStoreUnavailable(err))
	assert.True(t, ran, "later cleanups still run")

	_, err = m.Get(ctx, s.ID)
	assert.NoError(t, err)
}

func TestContextID(t *testing.T) {
	t.Parallel()

	assert.Empty(t, IDFromContext(context.Background()))
	assert.Equal(t, "s1", IDFromContext(WithID(context.Background(), "s1")))
}

// racingStore runs afterGet once, right after the first Get returns.
type racingStore struct {
	storage.Store

	once     sync.Once
	afterGet func()
}

func (r *racingStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := r.Store.Get(ctx, key)
	r.once.Do(r.afterGet)
	return data, err
}

func TestManager_TouchRacingDestroy(t *testing.T) {
	t.Parallel()

	fc := clocktesting.NewFakeClock(time.Unix(1_700_000_000, 0))
	mem := storage.NewMemoryStore(storage.WithClock(fc))
	t.Cleanup(func() { _ = mem.Close() })
	ctx := context.Background()

	seed := NewManager(mem, WithClock(fc))
	s, err := seed.Create(ctx, "", nil)
	require.NoError(t, err)

	rs := &racingStore{Store: mem}
	m := NewManager(rs, WithClock(fc))
	rs.afterGet = func() {
		require.NoError(t, seed.Destroy(ctx, s.ID))
	}

	_, err = m.Touch(ctx, s.ID)
	assert.True(t, errors.IsNotFound(err), "got %v", err)

	_, err = seed.Get(ctx, s.ID)
	assert.True(t, errors.IsNotFound(err), "touch must not resurrect a destroyed session")
}

func TestManager_ConcurrentTouches(t *testing.T) {
	t.Parallel()

	m, _ := newTestManager(t, time.Hour)
	ctx := context.Background()
	s, err := m.Create(ctx, "", nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.Touch(ctx, s.ID)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	_, err = m.Get(ctx, s.ID)
	assert.NoError(t, err)
}

func TestManager_DiscardSkipsCleanups(t *testing.T) {
	t.Parallel()

	m, _ := newTestManager(t, time.Hour)
	ctx := context.Background()
	s, err := m.Create(ctx, "", nil)
	require.NoError(t, err)

	m.OnDestroy("tokens", func(context.Context, string) error {
		t.Error("discard must not run cleanups")
		return nil
	})

	require.NoError(t, m.Discard(ctx, s.ID))
	_, err = m.Get(ctx, s.ID)
	assert.True(t, errors.IsNotFound(err))
}
