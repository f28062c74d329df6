// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package drafts

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	clocktesting "k8s.io/utils/clock/testing"

	"github.com/stacklok/mcp-linkedin/pkg/authserver/session"
	"github.com/stacklok/mcp-linkedin/pkg/authserver/storage"
	"github.com/stacklok/mcp-linkedin/pkg/authz"
	"github.com/stacklok/mcp-linkedin/pkg/errors"
)

var (
	ctxA = session.WithID(context.Background(), "session-a")
	ctxB = session.WithID(context.Background(), "session-b")
)

func newTestStore(t *testing.T) (*Store, *clocktesting.FakeClock) {
	t.Helper()
	fc := clocktesting.NewFakeClock(time.Unix(1_700_000_000, 0))
	backing := storage.NewMemoryStore(storage.WithClock(fc))
	t.Cleanup(func() { _ = backing.Close() })
	return NewStore(backing, authz.NewGuard(), WithClock(fc)), fc
}

func TestStore_CreateGet(t *testing.T) {
	t.Parallel()

	s, fc := newTestStore(t)
	d, err := s.Create(ctxA, CreateRequest{Name: "launch post", Content: "We shipped!"})
	require.NoError(t, err)
	assert.Equal(t, "session-a", d.SessionID)
	assert.Equal(t, DefaultPostType, d.PostType)
	assert.Equal(t, fc.Now(), d.CreatedAt)

	got, err := s.Get(ctxA, d.ID)
	require.NoError(t, err)
	assert.Equal(t, d, got)

	current, err := s.Current(ctxA)
	require.NoError(t, err)
	assert.Equal(t, d.ID, current.ID)
}

func TestStore_Validation(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t)
	tests := []struct {
		name string
		ctx  context.Context
		req  CreateRequest
		is   func(error) bool
	}{
		{name: "no session", ctx: context.Background(), req: CreateRequest{Name: "x"}, is: errors.IsTokenRevoked},
		{name: "no name", ctx: ctxA, req: CreateRequest{}, is: errors.IsInvalidRequest},
		{name: "long name", ctx: ctxA, req: CreateRequest{Name: strings.Repeat("n", MaxNameLength+1)}, is: errors.IsInvalidRequest},
		{name: "long content", ctx: ctxA, req: CreateRequest{Name: "x", Content: strings.Repeat("é", MaxContentLength+1)}, is: errors.IsInvalidRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := s.Create(tt.ctx, tt.req)
			assert.True(t, tt.is(err), "got %v", err)
		})
	}

	_, err := s.Create(ctxA, CreateRequest{Name: "x", Content: strings.Repeat("é", MaxContentLength)})
	assert.NoError(t, err, "the limit counts characters, not bytes")
}

func TestStore_CrossSessionIsNotFound(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t)
	d, err := s.Create(ctxA, CreateRequest{Name: "mine"})
	require.NoError(t, err)

	_, err = s.Get(ctxB, d.ID)
	assert.True(t, errors.IsNotFound(err))

	name := "hijacked"
	_, err = s.Update(ctxB, d.ID, UpdateRequest{Name: &name})
	assert.True(t, errors.IsNotFound(err))

	assert.True(t, errors.IsNotFound(s.Delete(ctxB, d.ID)))
	assert.True(t, errors.IsNotFound(s.SetCurrent(ctxB, d.ID)))

	list, err := s.List(ctxB)
	require.NoError(t, err)
	assert.Empty(t, list)

	got, err := s.Get(ctxA, d.ID)
	require.NoError(t, err)
	assert.Equal(t, "mine", got.Name)
}

func TestStore_UpdateListDelete(t *testing.T) {
	t.Parallel()

	s, fc := newTestStore(t)
	first, err := s.Create(ctxA, CreateRequest{Name: "first"})
	require.NoError(t, err)
	fc.Step(time.Second)
	second, err := s.Create(ctxA, CreateRequest{Name: "second", PostType: "document"})
	require.NoError(t, err)

	fc.Step(time.Minute)
	content := "updated body"
	updated, err := s.Update(ctxA, first.ID, UpdateRequest{Content: &content})
	require.NoError(t, err)
	assert.Equal(t, "first", updated.Name)
	assert.Equal(t, content, updated.Content)
	assert.Equal(t, fc.Now(), updated.UpdatedAt)
	assert.Equal(t, first.CreatedAt, updated.CreatedAt)

	list, err := s.List(ctxA)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, first.ID, list[0].ID)
	assert.Equal(t, second.ID, list[1].ID)

	current, err := s.Current(ctxA)
	require.NoError(t, err)
	assert.Equal(t, second.ID, current.ID)

	require.NoError(t, s.Delete(ctxA, second.ID))
	_, err = s.Current(ctxA)
	assert.True(t, errors.IsNotFound(err), "deleting the current draft clears the selection")
	assert.True(t, errors.IsNotFound(s.Delete(ctxA, second.ID)))

	require.NoError(t, s.SetCurrent(ctxA, first.ID))
	current, err = s.Current(ctxA)
	require.NoError(t, err)
	assert.Equal(t, first.ID, current.ID)
}

func TestStore_UpdateRenewsTTL(t *testing.T) {
	t.Parallel()

	s, fc := newTestStore(t)
	d, err := s.Create(ctxA, CreateRequest{Name: "ttl"})
	require.NoError(t, err)

	fc.Step(DefaultTTL - time.Minute)
	name := "still here"
	_, err = s.Update(ctxA, d.ID, UpdateRequest{Name: &name})
	require.NoError(t, err)

	fc.Step(2 * time.Minute)
	_, err = s.Get(ctxA, d.ID)
	assert.NoError(t, err)
}

func TestStore_UpdateKeepsDraftInSessionIndex(t *testing.T) {
	t.Parallel()

	s, fc := newTestStore(t)
	d, err := s.Create(ctxA, CreateRequest{Name: "long edit"})
	require.NoError(t, err)

	fc.Step(23 * time.Hour)
	content := "second pass"
	_, err = s.Update(ctxA, d.ID, UpdateRequest{Content: &content})
	require.NoError(t, err)
	fc.Step(2 * time.Hour)

	listed, err := s.List(ctxA)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, d.ID, listed[0].ID)

	require.NoError(t, s.DeleteSession(context.Background(), "session-a"))
	_, err = s.Get(ctxA, d.ID)
	assert.True(t, errors.IsNotFound(err), "session destroy reaches the edited draft")
}

func TestStore_DeleteSession(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t)
	a1, err := s.Create(ctxA, CreateRequest{Name: "a1"})
	require.NoError(t, err)
	b1, err := s.Create(ctxB, CreateRequest{Name: "b1"})
	require.NoError(t, err)

	require.NoError(t, s.DeleteSession(context.Background(), "session-a"))
	require.NoError(t, s.DeleteSession(context.Background(), "session-a"))

	_, err = s.Get(ctxA, a1.ID)
	assert.True(t, errors.IsNotFound(err))
	_, err = s.Current(ctxA)
	assert.True(t, errors.IsNotFound(err))
	_, err = s.Get(ctxB, b1.ID)
	assert.NoError(t, err)
}

func TestStore_ConcurrentUpdatesOnRedis(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	s := NewStore(storage.NewRedisStoreWithClient(client, "test:"), authz.NewGuard())

	d, err := s.Create(ctxA, CreateRequest{Name: "race"})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			content := strings.Repeat("x", i+1)
			_, err := s.Update(ctxA, d.ID, UpdateRequest{Content: &content})
			if err != nil {
				assert.True(t, errors.IsStoreUnavailable(err), "got %v", err)
			}
		}()
	}
	wg.Wait()

	got, err := s.Get(ctxA, d.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, got.Content)
	assert.Equal(t, strings.Repeat("x", len(got.Content)), got.Content)
}
