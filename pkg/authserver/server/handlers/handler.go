// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"k8s.io/utils/clock"

	"github.com/stacklok/mcp-linkedin/pkg/authserver/broker"
	"github.com/stacklok/mcp-linkedin/pkg/authserver/server/keys"
	"github.com/stacklok/mcp-linkedin/pkg/authserver/session"
	"github.com/stacklok/mcp-linkedin/pkg/authserver/storage"
	"github.com/stacklok/mcp-linkedin/pkg/authserver/token"
	"github.com/stacklok/mcp-linkedin/pkg/authserver/upstream"
	"github.com/stacklok/mcp-linkedin/pkg/oauth"
)

// DefaultPendingAuthorizationTTL bounds how long a user may take at the
// upstream provider before the callback is rejected.
const DefaultPendingAuthorizationTTL = 10 * time.Minute

// Config holds the externally visible identity of the server.
type Config struct {
	// Issuer is the base URL every endpoint is published under.
	Issuer string

	// ResourceURL identifies the protected resource in RFC 9728 metadata.
	// Defaults to Issuer.
	ResourceURL string

	// PendingAuthorizationTTL defaults to DefaultPendingAuthorizationTTL.
	PendingAuthorizationTTL time.Duration
}

// Handler provides HTTP handlers for the OAuth authorization server endpoints.
type Handler struct {
	config   Config
	issuer   *token.Issuer
	keys     keys.KeyProvider
	store    storage.Store
	sessions *session.Manager
	clock    clock.PassiveClock

	// upstream and broker are nil when no upstream provider is configured;
	// sessions are then created directly at the authorization endpoint.
	upstream upstream.Provider
	broker   *broker.Broker
}

// Option configures a Handler.
type Option func(*Handler)

// WithUpstream delegates user authentication to an upstream provider and
// keeps the resulting upstream tokens in b.
func WithUpstream(p upstream.Provider, b *broker.Broker) Option {
	return func(h *Handler) {
		h.upstream = p
		h.broker = b
	}
}

// WithClock sets the clock used for pending authorizations.
func WithClock(c clock.PassiveClock) Option {
	return func(h *Handler) {
		h.clock = c
	}
}

// NewHandler creates a new Handler with the given dependencies.
func NewHandler(
	cfg Config,
	issuer *token.Issuer,
	keyProvider keys.KeyProvider,
	store storage.Store,
	sessions *session.Manager,
	opts ...Option,
) *Handler {
	cfg.Issuer = strings.TrimSuffix(cfg.Issuer, "/")
	if cfg.ResourceURL == "" {
		cfg.ResourceURL = cfg.Issuer
	}
	if cfg.PendingAuthorizationTTL <= 0 {
		cfg.PendingAuthorizationTTL = DefaultPendingAuthorizationTTL
	}
	h := &Handler{
		config:   cfg,
		issuer:   issuer,
		keys:     keyProvider,
		store:    store,
		sessions: sessions,
		clock:    clock.RealClock{},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes returns a router with all OAuth/OIDC endpoints registered.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	h.OAuthRoutes(r)
	h.WellKnownRoutes(r)
	return r
}

// OAuthRoutes registers OAuth endpoints (authorize, callback, token, register, logout) on the provided router.
func (h *Handler) OAuthRoutes(r chi.Router) {
	r.Get("/oauth/authorize", h.AuthorizeHandler)
	r.Get("/oauth/callback", h.CallbackHandler)
	r.Post("/oauth/token", h.TokenHandler)
	r.Post("/oauth/register", h.RegisterClientHandler)
	r.With(h.RequireBearer).Post("/oauth/logout", h.LogoutHandler)
}

// WellKnownRoutes registers well-known endpoints (JWKS, OAuth/OIDC discovery, protected
// resource metadata) on the provided router. Both discovery endpoints are registered
// because MCP clients look up either:
// - /.well-known/oauth-authorization-server (RFC 8414) for OAuth-only clients
// - /.well-known/openid-configuration (OIDC Discovery 1.0) for OIDC clients
func (h *Handler) WellKnownRoutes(r chi.Router) {
	r.Get(oauth.WellKnownJWKSPath, h.JWKSHandler)
	r.Get(oauth.WellKnownAuthorizationServerPath, h.OAuthDiscoveryHandler)
	r.Get(oauth.WellKnownOIDCConfigurationPath, h.OIDCDiscoveryHandler)
	r.Get(oauth.WellKnownProtectedResourcePath, h.ProtectedResourceHandler)
}

func (h *Handler) endpoint(path string) string {
	return h.config.Issuer + path
}
