// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package token

import (
	"context"
	"crypto/rand"
	"fmt"

	"github.com/google/uuid"
	"github.com/ory/fosite"
	"k8s.io/utils/clock"

	"github.com/stacklok/mcp-linkedin/pkg/authserver/server/crypto"
	"github.com/stacklok/mcp-linkedin/pkg/authserver/server/keys"
	"github.com/stacklok/mcp-linkedin/pkg/authserver/server/registration"
	"github.com/stacklok/mcp-linkedin/pkg/authserver/session"
	"github.com/stacklok/mcp-linkedin/pkg/authserver/storage"
	"github.com/stacklok/mcp-linkedin/pkg/errors"
	"github.com/stacklok/mcp-linkedin/pkg/logger"
	"github.com/stacklok/mcp-linkedin/pkg/telemetry"
)

// Issuer mints and validates every credential the authorization server
// hands out.
type Issuer struct {
	cfg      Config
	store    storage.Store
	keys     keys.KeyProvider
	sessions *session.Manager
	clock    clock.PassiveClock
	metrics  *telemetry.Metrics
}

// Option configures an Issuer.
type Option func(*Issuer)

// WithClock sets the clock used for lifetimes and claim validation.
func WithClock(c clock.PassiveClock) Option {
	return func(i *Issuer) {
		i.clock = c
	}
}

// WithMetrics records issuance and reuse counters.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(i *Issuer) {
		i.metrics = m
	}
}

// NewIssuer creates an Issuer. cfg is validated and defaulted. Destroying
// a session through sessions revokes the tokens minted for it.
func NewIssuer(cfg Config, store storage.Store, keyProvider keys.KeyProvider, sessions *session.Manager, opts ...Option) (*Issuer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid token configuration: %w", err)
	}
	i := &Issuer{
		cfg:      cfg,
		store:    store,
		keys:     keyProvider,
		sessions: sessions,
		clock:    clock.RealClock{},
	}
	for _, opt := range opts {
		opt(i)
	}
	sessions.OnDestroy("tokens", i.RevokeSession)
	return i, nil
}

// Config returns the defaulted configuration.
func (i *Issuer) Config() Config {
	return i.cfg
}

// -----------------------
// Authorization codes
// -----------------------

// IssueAuthCode stores a fresh single-use authorization code.
func (i *Issuer) IssueAuthCode(ctx context.Context, req AuthCodeRequest) (string, error) {
	if req.ClientID == "" || req.RedirectURI == "" {
		return "", errors.NewInvalidRequestError("client_id and redirect_uri are required", nil)
	}
	if req.CodeChallenge == "" {
		return "", errors.NewInvalidRequestError("code_challenge is required", nil)
	}
	if req.CodeChallengeMethod != crypto.PKCEChallengeMethodS256 {
		return "", errors.NewInvalidRequestError("code_challenge_method must be S256", nil)
	}

	now := i.clock.Now()
	code := rand.Text()
	rec := authCode{
		ClientID:            req.ClientID,
		RedirectURI:         req.RedirectURI,
		Scope:               req.Scope,
		CodeChallenge:       req.CodeChallenge,
		CodeChallengeMethod: req.CodeChallengeMethod,
		SessionID:           req.SessionID,
		FamilyID:            uuid.NewString(),
		IssuedAt:            now,
		ExpiresAt:           now.Add(i.cfg.AuthCodeTTL),
	}
	if err := storage.PutJSON(ctx, i.store, codeKey(code), rec, i.cfg.AuthCodeTTL); err != nil {
		return "", err
	}

	logger.Debugw("issued authorization code", "code", logger.Redact(code), "client_id", req.ClientID)
	return code, nil
}

// ExchangeCode redeems an authorization code. Every token record is written
// before the code is consumed, and the consuming compare-and-swap is the
// last write: a store failure before it leaves the code redeemable, and of
// two concurrent exchanges exactly one commits. A code presented after it
// was consumed revokes every token minted from it.
func (i *Issuer) ExchangeCode(ctx context.Context, req ExchangeRequest) (*TokenPair, error) {
	if req.Code == "" {
		return nil, errors.NewInvalidRequestError("code is required", nil)
	}
	if req.CodeVerifier == "" {
		return nil, errors.NewInvalidRequestError("code_verifier is required", nil)
	}

	key := codeKey(req.Code)
	rec, raw, err := storage.GetJSON[authCode](ctx, i.store, key)
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, errors.NewInvalidGrantError("authorization code is invalid or expired", nil)
		}
		return nil, err
	}

	now := i.clock.Now()
	if now.After(rec.ExpiresAt) {
		return nil, errors.NewInvalidGrantError("authorization code is invalid or expired", nil)
	}
	if rec.Consumed {
		return nil, i.codeReplayed(ctx, req.Code, rec)
	}
	if rec.ClientID != req.ClientID {
		return nil, errors.NewInvalidGrantError("authorization code was issued to another client", nil)
	}
	if rec.RedirectURI != req.RedirectURI {
		return nil, errors.NewInvalidGrantError("redirect_uri does not match the authorization request", nil)
	}
	if !crypto.VerifyPKCE(req.CodeVerifier, rec.CodeChallenge) {
		return nil, errors.NewInvalidGrantError("code_verifier does not match code_challenge", nil)
	}

	sessionID := rec.SessionID
	createdSession := false
	if sessionID != "" {
		if _, err := i.sessions.Get(ctx, sessionID); err != nil {
			if errors.IsNotFound(err) {
				return nil, errors.NewInvalidGrantError("session for authorization code has ended", nil)
			}
			return nil, err
		}
	} else {
		s, err := i.sessions.Create(ctx, "", map[string]string{"client_id": rec.ClientID})
		if err != nil {
			return nil, err
		}
		sessionID = s.ID
		createdSession = true
	}

	pending, err := i.prepare(ctx, rec.ClientID, sessionID, rec.FamilyID, rec.Scope)
	if err != nil {
		i.abort(ctx, nil, sessionID, createdSession)
		return nil, err
	}

	consumed := *rec
	consumed.Consumed = true
	_, swapped, err := storage.SwapJSON(ctx, i.store, key, raw, consumed)
	if err != nil || !swapped {
		i.abort(ctx, pending, sessionID, createdSession)
	}
	switch {
	case errors.IsNotFound(err):
		return nil, errors.NewInvalidGrantError("authorization code is invalid or expired", nil)
	case err != nil:
		return nil, err
	case !swapped:
		return nil, i.codeReplayed(ctx, req.Code, rec)
	}

	i.metrics.TokenIssued(ctx, string(fosite.GrantTypeAuthorizationCode))
	logger.Debugw("exchanged authorization code",
		"code", logger.Redact(req.Code), "client_id", rec.ClientID, "session_id", sessionID)
	return pending.pair, nil
}

func (i *Issuer) codeReplayed(ctx context.Context, code string, rec *authCode) error {
	logger.Warnw("authorization code replayed, revoking token family",
		"code", logger.Redact(code), "client_id", rec.ClientID, "family_id", rec.FamilyID)
	i.metrics.TokenReuseDetected(ctx, "authorization_code")
	if err := i.RevokeFamily(ctx, rec.FamilyID); err != nil {
		return err
	}
	return errors.NewInvalidGrantError("authorization code has already been used", nil)
}

// -----------------------
// Refresh tokens
// -----------------------

// Refresh rotates a refresh token. The successor is written first and the
// presented token is marked used with a compare-and-swap as the last write;
// a token that was already used, or that loses the race to a concurrent
// refresh, revokes its whole family.
func (i *Issuer) Refresh(ctx context.Context, req RefreshRequest) (*TokenPair, error) {
	if req.RefreshToken == "" {
		return nil, errors.NewInvalidRequestError("refresh_token is required", nil)
	}

	key := refreshKey(req.RefreshToken)
	rec, raw, err := storage.GetJSON[refreshRecord](ctx, i.store, key)
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, errors.NewInvalidGrantError("refresh token is invalid or expired", nil)
		}
		return nil, err
	}

	if i.clock.Now().After(rec.ExpiresAt) {
		return nil, errors.NewInvalidGrantError("refresh token is invalid or expired", nil)
	}
	if rec.ClientID != req.ClientID {
		return nil, errors.NewInvalidGrantError("refresh token was issued to another client", nil)
	}
	revoked, err := i.isRevoked(ctx, keyRevokedFamily, rec.FamilyID)
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, errors.NewInvalidGrantError("refresh token has been revoked", nil)
	}
	if rec.Used {
		return nil, i.reuseDetected(ctx, req.RefreshToken, rec)
	}

	scope := rec.Scope
	if req.Scope != "" {
		if !registration.IsSubset(req.Scope, rec.Scope) {
			return nil, errors.NewInvalidScopeError("requested scope exceeds the original grant", nil)
		}
		scope = req.Scope
	}
	if _, err := i.sessions.Get(ctx, rec.SessionID); err != nil {
		if errors.IsNotFound(err) {
			return nil, errors.NewInvalidGrantError("session for refresh token has ended", nil)
		}
		return nil, err
	}

	pending, err := i.prepare(ctx, rec.ClientID, rec.SessionID, rec.FamilyID, scope)
	if err != nil {
		return nil, err
	}

	used := *rec
	used.Used = true
	_, swapped, err := storage.SwapJSON(ctx, i.store, key, raw, used)
	if err != nil || !swapped {
		i.abort(ctx, pending, rec.SessionID, false)
	}
	switch {
	case errors.IsNotFound(err):
		return nil, errors.NewInvalidGrantError("refresh token is invalid or expired", nil)
	case err != nil:
		return nil, err
	case !swapped:
		return nil, i.reuseDetected(ctx, req.RefreshToken, rec)
	}

	i.metrics.TokenIssued(ctx, string(fosite.GrantTypeRefreshToken))
	logger.Debugw("rotated refresh token",
		"refresh_token", logger.Redact(req.RefreshToken), "client_id", rec.ClientID, "session_id", rec.SessionID)
	return pending.pair, nil
}

func (i *Issuer) reuseDetected(ctx context.Context, refreshToken string, rec *refreshRecord) error {
	logger.Warnw("refresh token reuse detected, revoking token family",
		"refresh_token", logger.Redact(refreshToken),
		"client_id", rec.ClientID,
		"session_id", rec.SessionID,
		"family_id", rec.FamilyID,
	)
	i.metrics.TokenReuseDetected(ctx, "refresh_token")
	if err := i.RevokeFamily(ctx, rec.FamilyID); err != nil {
		return err
	}
	return errors.NewTokenReuseDetectedError("refresh token has already been used; re-authorization required", nil)
}

// pendingGrant is a token pair whose records are written but whose grant
// has not been committed yet.
type pendingGrant struct {
	pair       *TokenPair
	refreshKey string
}

// prepare signs an access token and stores a fresh refresh token for the
// family. Nothing is handed out until the caller commits the grant.
func (i *Issuer) prepare(ctx context.Context, clientID, sessionID, familyID, scope string) (*pendingGrant, error) {
	now := i.clock.Now()

	access, err := i.signAccessToken(ctx, clientID, sessionID, familyID, scope, now)
	if err != nil {
		return nil, err
	}

	if err := i.store.AddToSet(ctx, storage.Key(keyFamilies, sessionID), familyID, i.cfg.familyTTL()); err != nil {
		return nil, err
	}
	refresh := rand.Text()
	rec := refreshRecord{
		ClientID:  clientID,
		SessionID: sessionID,
		FamilyID:  familyID,
		Scope:     scope,
		IssuedAt:  now,
		ExpiresAt: now.Add(i.cfg.RefreshTokenTTL),
	}
	if err := storage.PutJSON(ctx, i.store, refreshKey(refresh), rec, i.cfg.RefreshTokenTTL); err != nil {
		return nil, err
	}

	return &pendingGrant{
		pair: &TokenPair{
			AccessToken:  access,
			TokenType:    TokenTypeBearer,
			ExpiresIn:    int64(i.cfg.AccessTokenTTL.Seconds()),
			RefreshToken: refresh,
			Scope:        scope,
			SessionID:    sessionID,
		},
		refreshKey: refreshKey(refresh),
	}, nil
}

// abort discards the records of a grant that did not commit. The family
// stays in the session's family set so a retry of the same grant is still
// revoked with its session. Failures are only logged: the records are
// unreachable without the pair, and expire on their own.
func (i *Issuer) abort(ctx context.Context, pending *pendingGrant, sessionID string, createdSession bool) {
	ctx = context.WithoutCancel(ctx)
	if pending != nil {
		if err := i.store.Delete(ctx, pending.refreshKey); err != nil {
			logger.Warnw("failed to discard refresh token of aborted grant", "session_id", sessionID, "error", err)
		}
	}
	if createdSession {
		if err := i.sessions.Discard(ctx, sessionID); err != nil {
			logger.Warnw("failed to discard session of aborted grant", "session_id", sessionID, "error", err)
		}
	}
}

func codeKey(code string) string {
	return storage.Key(keyCode, crypto.HashSecret(code))
}

func refreshKey(token string) string {
	return storage.Key(keyRefresh, crypto.HashSecret(token))
}
