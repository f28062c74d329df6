// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package broker keeps the upstream provider's token pair for each session
// and hands out a valid upstream access token, refreshing it shortly before
// it expires.
package broker

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/sync/singleflight"
	"k8s.io/utils/clock"

	"github.com/stacklok/mcp-linkedin/pkg/authserver/storage"
	"github.com/stacklok/mcp-linkedin/pkg/authserver/upstream"
	"github.com/stacklok/mcp-linkedin/pkg/authz"
	"github.com/stacklok/mcp-linkedin/pkg/errors"
	"github.com/stacklok/mcp-linkedin/pkg/logger"
	"github.com/stacklok/mcp-linkedin/pkg/telemetry"
)

const (
	// DefaultStoreTTL is how long an upstream pair is kept in the store.
	DefaultStoreTTL = 24 * time.Hour

	// minRefreshWindow is the smallest remaining lifetime at which a token
	// is still handed out without refreshing.
	minRefreshWindow = 60 * time.Second

	refreshTimeout    = 30 * time.Second
	refreshRetryDelay = 250 * time.Millisecond

	keyUpstream = "upstream"
)

// Pair is the stored upstream token pair.
type Pair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	UserID       string `json:"user_id,omitempty"`

	// TTL is the lifetime the provider originally granted.
	TTL         time.Duration `json:"ttl"`
	ExpiresAt   time.Time     `json:"expires_at"`
	RefreshedAt time.Time     `json:"refreshed_at"`
}

// refreshWindow is the remaining lifetime below which the pair is refreshed:
// a tenth of the original lifetime, but never less than a minute.
func (p *Pair) refreshWindow() time.Duration {
	return max(p.TTL/10, minRefreshWindow)
}

func (p *Pair) needsRefresh(now time.Time) bool {
	return now.Add(p.refreshWindow()).After(p.ExpiresAt)
}

// Broker stores and refreshes upstream token pairs.
type Broker struct {
	store    storage.Store
	provider upstream.Provider
	guard    *authz.Guard
	clock    clock.PassiveClock
	storeTTL time.Duration
	metrics  *telemetry.Metrics

	refreshes singleflight.Group
}

// Option configures a Broker.
type Option func(*Broker)

// WithClock sets the clock used for expiry decisions.
func WithClock(c clock.PassiveClock) Option {
	return func(b *Broker) {
		b.clock = c
	}
}

// WithStoreTTL sets how long pairs are retained in the store.
func WithStoreTTL(ttl time.Duration) Option {
	return func(b *Broker) {
		if ttl > 0 {
			b.storeTTL = ttl
		}
	}
}

// WithMetrics records refresh outcomes.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(b *Broker) {
		b.metrics = m
	}
}

// New creates a Broker.
func New(store storage.Store, provider upstream.Provider, guard *authz.Guard, opts ...Option) *Broker {
	b := &Broker{
		store:    store,
		provider: provider,
		guard:    guard,
		clock:    clock.RealClock{},
		storeTTL: DefaultStoreTTL,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Store saves the tokens obtained for a session.
func (b *Broker) Store(ctx context.Context, sessionID, userID string, tokens *upstream.Tokens) error {
	now := b.clock.Now()
	pair := Pair{
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		UserID:       userID,
		TTL:          tokens.ExpiresIn,
		ExpiresAt:    now.Add(tokens.ExpiresIn),
		RefreshedAt:  now,
	}
	return storage.PutJSON(ctx, b.store, key(sessionID), pair, b.storeTTL)
}

// Delete removes the session's pair. It is registered as a session cleanup.
func (b *Broker) Delete(ctx context.Context, sessionID string) error {
	return b.store.Delete(ctx, key(sessionID))
}

// GetValidToken returns an upstream access token for sessionID, refreshing
// the pair first when it is close to expiry. The caller's session must own
// sessionID. A missing pair or a failed refresh yields
// upstream_auth_required.
func (b *Broker) GetValidToken(ctx context.Context, sessionID string) (string, error) {
	if err := b.guard.RequireOwner(ctx, sessionID, "upstream token"); err != nil {
		return "", err
	}

	pair, err := b.load(ctx, sessionID)
	if err != nil {
		return "", err
	}
	if !pair.needsRefresh(b.clock.Now()) {
		return pair.AccessToken, nil
	}

	// Concurrent callers for the same session share one refresh. The
	// refresh outlives any single caller's cancellation.
	v, err, _ := b.refreshes.Do(sessionID, func() (any, error) {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
		defer cancel()
		return b.refresh(rctx, sessionID)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (b *Broker) load(ctx context.Context, sessionID string) (*Pair, error) {
	pair, _, err := storage.GetJSON[Pair](ctx, b.store, key(sessionID))
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, errors.NewUpstreamAuthRequiredError("no upstream authorization for session", nil)
		}
		return nil, err
	}
	return pair, nil
}

func (b *Broker) refresh(ctx context.Context, sessionID string) (string, error) {
	// Another process may have refreshed while this one waited.
	pair, err := b.load(ctx, sessionID)
	if err != nil {
		return "", err
	}
	if !pair.needsRefresh(b.clock.Now()) {
		return pair.AccessToken, nil
	}
	if pair.RefreshToken == "" {
		b.metrics.UpstreamRefreshed(ctx, "unavailable")
		return "", errors.NewUpstreamAuthRequiredError("upstream token expired and cannot be refreshed", nil)
	}

	tokens, err := backoff.Retry(ctx, func() (*upstream.Tokens, error) {
		t, err := b.provider.RefreshTokens(ctx, pair.RefreshToken)
		if err != nil && upstream.IsPermanent(err) {
			return nil, backoff.Permanent(err)
		}
		return t, err
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(refreshRetryDelay)),
		backoff.WithMaxTries(2),
	)
	if err != nil {
		logger.Warnw("upstream token refresh failed", "session_id", sessionID, "error", err)
		b.metrics.UpstreamRefreshed(ctx, "failure")
		return "", errors.NewUpstreamAuthRequiredError("upstream token refresh failed", err)
	}

	now := b.clock.Now()
	next := Pair{
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		UserID:       pair.UserID,
		TTL:          tokens.ExpiresIn,
		ExpiresAt:    now.Add(tokens.ExpiresIn),
		RefreshedAt:  now,
	}
	if next.RefreshToken == "" {
		next.RefreshToken = pair.RefreshToken
	}
	if err := storage.PutJSON(ctx, b.store, key(sessionID), next, b.storeTTL); err != nil {
		return "", err
	}

	logger.Debugw("refreshed upstream token",
		"session_id", sessionID, "access_token", logger.Redact(next.AccessToken))
	b.metrics.UpstreamRefreshed(ctx, "success")
	return next.AccessToken, nil
}

func key(sessionID string) string {
	return storage.Key(keyUpstream, sessionID)
}
