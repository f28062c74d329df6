// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	clocktesting "k8s.io/utils/clock/testing"

	"github.com/stacklok/mcp-linkedin/pkg/errors"
)

// backend builds a fresh Store and a function that moves its notion of time forward.
type backend struct {
	name string
	new  func(t *testing.T) (Store, func(time.Duration))
}

func backends() []backend {
	return []backend{
		{
			name: "memory",
			new: func(t *testing.T) (Store, func(time.Duration)) {
				t.Helper()
				fc := clocktesting.NewFakeClock(time.Unix(1_700_000_000, 0))
				s := NewMemoryStore(WithClock(fc), WithCleanupInterval(time.Hour))
				t.Cleanup(func() { _ = s.Close() })
				return s, fc.Step
			},
		},
		{
			name: "redis",
			new: func(t *testing.T) (Store, func(time.Duration)) {
				t.Helper()
				mr := miniredis.RunT(t)
				client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
				s := NewRedisStoreWithClient(client, "test:")
				t.Cleanup(func() { _ = s.Close() })
				return s, mr.FastForward
			},
		},
	}
}

func withStore(t *testing.T, fn func(t *testing.T, s Store, advance func(time.Duration))) {
	t.Helper()
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			t.Parallel()
			s, advance := b.new(t)
			fn(t, s, advance)
		})
	}
}

func TestStore_PutGetDelete(t *testing.T) {
	t.Parallel()
	withStore(t, func(t *testing.T, s Store, _ func(time.Duration)) {
		ctx := context.Background()

		require.NoError(t, s.Put(ctx, "session:a", []byte("v1"), time.Minute))
		got, err := s.Get(ctx, "session:a")
		require.NoError(t, err)
		assert.Equal(t, []byte("v1"), got)

		require.NoError(t, s.Put(ctx, "session:a", []byte("v2"), time.Minute))
		got, err = s.Get(ctx, "session:a")
		require.NoError(t, err)
		assert.Equal(t, []byte("v2"), got)

		require.NoError(t, s.Delete(ctx, "session:a"))
		require.NoError(t, s.Delete(ctx, "session:a"), "delete is idempotent")

		_, err = s.Get(ctx, "session:a")
		assert.True(t, errors.IsNotFound(err))
		assert.False(t, errors.IsStoreUnavailable(err))
	})
}

func TestStore_TTL(t *testing.T) {
	t.Parallel()
	withStore(t, func(t *testing.T, s Store, advance func(time.Duration)) {
		ctx := context.Background()

		require.NoError(t, s.Put(ctx, "code:x", []byte("v"), 300*time.Second))
		require.NoError(t, s.Put(ctx, "client:forever", []byte("v"), 0))

		advance(299 * time.Second)
		_, err := s.Get(ctx, "code:x")
		require.NoError(t, err)

		advance(2 * time.Second)
		_, err = s.Get(ctx, "code:x")
		assert.True(t, errors.IsNotFound(err))

		_, err = s.Get(ctx, "client:forever")
		assert.NoError(t, err)
	})
}

func TestStore_Touch(t *testing.T) {
	t.Parallel()
	withStore(t, func(t *testing.T, s Store, advance func(time.Duration)) {
		ctx := context.Background()

		require.NoError(t, s.Put(ctx, "session:s1", []byte("v"), 10*time.Second))
		advance(8 * time.Second)
		require.NoError(t, s.Touch(ctx, "session:s1", 10*time.Second))
		advance(8 * time.Second)

		_, err := s.Get(ctx, "session:s1")
		require.NoError(t, err, "touch extends expiry")

		err = s.Touch(ctx, "session:missing", time.Second)
		assert.True(t, errors.IsNotFound(err))
	})
}

func TestStore_PutIfAbsent(t *testing.T) {
	t.Parallel()
	withStore(t, func(t *testing.T, s Store, advance func(time.Duration)) {
		ctx := context.Background()

		ok, err := s.PutIfAbsent(ctx, "nonce:n1", []byte("1"), 5*time.Second)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = s.PutIfAbsent(ctx, "nonce:n1", []byte("2"), 5*time.Second)
		require.NoError(t, err)
		assert.False(t, ok)

		advance(6 * time.Second)
		ok, err = s.PutIfAbsent(ctx, "nonce:n1", []byte("3"), 5*time.Second)
		require.NoError(t, err)
		assert.True(t, ok, "expired key counts as absent")
	})
}

func TestStore_CompareAndSwap(t *testing.T) {
	t.Parallel()
	withStore(t, func(t *testing.T, s Store, advance func(time.Duration)) {
		ctx := context.Background()

		require.NoError(t, s.Put(ctx, "code:c", []byte(`{"consumed":false}`), 10*time.Second))

		swapped, err := s.CompareAndSwap(ctx, "code:c", []byte(`{"consumed":false}`), []byte(`{"consumed":true}`))
		require.NoError(t, err)
		assert.True(t, swapped)

		swapped, err = s.CompareAndSwap(ctx, "code:c", []byte(`{"consumed":false}`), []byte(`{"consumed":true}`))
		require.NoError(t, err)
		assert.False(t, swapped)

		_, err = s.CompareAndSwap(ctx, "code:missing", []byte("a"), []byte("b"))
		assert.True(t, errors.IsNotFound(err))

		// the swap keeps the original TTL
		advance(11 * time.Second)
		_, err = s.Get(ctx, "code:c")
		assert.True(t, errors.IsNotFound(err))
	})
}

func TestStore_CompareAndSwapSingleWinner(t *testing.T) {
	t.Parallel()
	withStore(t, func(t *testing.T, s Store, _ func(time.Duration)) {
		ctx := context.Background()
		prev := []byte(`{"used":false}`)
		require.NoError(t, s.Put(ctx, "refresh:r", prev, time.Minute))

		const workers = 16
		var wins atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ok, err := s.CompareAndSwap(ctx, "refresh:r", prev, []byte(`{"used":true}`))
				if err == nil && ok {
					wins.Add(1)
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, int32(1), wins.Load())
	})
}

func TestStore_Sets(t *testing.T) {
	t.Parallel()
	withStore(t, func(t *testing.T, s Store, advance func(time.Duration)) {
		ctx := context.Background()

		members, err := s.Members(ctx, "families:s1")
		require.NoError(t, err)
		assert.Empty(t, members)

		require.NoError(t, s.AddToSet(ctx, "families:s1", "f1", time.Minute))
		require.NoError(t, s.AddToSet(ctx, "families:s1", "f2", time.Minute))
		require.NoError(t, s.AddToSet(ctx, "families:s1", "f2", time.Minute))

		members, err = s.Members(ctx, "families:s1")
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"f1", "f2"}, members)

		require.NoError(t, s.RemoveFromSet(ctx, "families:s1", "f1"))
		require.NoError(t, s.RemoveFromSet(ctx, "families:s1", "absent"))
		members, err = s.Members(ctx, "families:s1")
		require.NoError(t, err)
		assert.Equal(t, []string{"f2"}, members)

		advance(2 * time.Minute)
		members, err = s.Members(ctx, "families:s1")
		require.NoError(t, err)
		assert.Empty(t, members)
	})
}

func TestStore_JSONHelpers(t *testing.T) {
	t.Parallel()
	withStore(t, func(t *testing.T, s Store, _ func(time.Duration)) {
		ctx := context.Background()

		type record struct {
			ClientID string `json:"client_id"`
			Consumed bool   `json:"consumed"`
		}

		require.NoError(t, PutJSON(ctx, s, Key("code", "abc"), record{ClientID: "c1"}, time.Minute))

		got, raw, err := GetJSON[record](ctx, s, "code:abc")
		require.NoError(t, err)
		assert.Equal(t, "c1", got.ClientID)
		assert.JSONEq(t, `{"client_id":"c1","consumed":false}`, string(raw))

		_, _, err = GetJSON[record](ctx, s, "code:missing")
		assert.True(t, errors.IsNotFound(err))

		next, swapped, err := SwapJSON(ctx, s, "code:abc", raw, record{ClientID: "c1", Consumed: true})
		require.NoError(t, err)
		assert.True(t, swapped)

		_, swapped, err = SwapJSON(ctx, s, "code:abc", raw, record{ClientID: "c1", Consumed: true})
		require.NoError(t, err)
		assert.False(t, swapped, "stale prev loses")

		_, swapped, err = SwapJSON(ctx, s, "code:abc", next, got)
		require.NoError(t, err)
		assert.True(t, swapped, "swap back with the returned bytes")
	})
}

func TestKey(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "code", Key("code"))
	assert.Equal(t, "artifact:t:s:a", Key("artifact", "t", "s", "a"))
}
