// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/ory/fosite"

	"github.com/stacklok/mcp-linkedin/pkg/authserver/server/crypto"
	"github.com/stacklok/mcp-linkedin/pkg/authserver/server/keys"
	"github.com/stacklok/mcp-linkedin/pkg/authserver/server/registration"
	"github.com/stacklok/mcp-linkedin/pkg/logger"
	"github.com/stacklok/mcp-linkedin/pkg/oauth"
)

// Cache-Control max-age values for discovery endpoints.
const (
	// DefaultJWKSCacheMaxAge is the Cache-Control max-age for the JWKS endpoint (1 hour).
	DefaultJWKSCacheMaxAge = 3600

	// DefaultDiscoveryCacheMaxAge is the Cache-Control max-age for the discovery endpoints (1 hour).
	DefaultDiscoveryCacheMaxAge = 3600
)

// writeCacheableJSON writes a public, cacheable JSON document.
func writeCacheableJSON(w http.ResponseWriter, v any, maxAge int) {
	data, err := json.Marshal(v)
	if err != nil {
		logger.Errorw("failed to encode discovery document",
			"error", err.Error(),
		)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d", maxAge))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	_, _ = w.Write(data)
}

// JWKSHandler handles GET /.well-known/jwks.json requests.
// It returns the public keys used for verifying access tokens.
func (h *Handler) JWKSHandler(w http.ResponseWriter, req *http.Request) {
	jwks, err := keys.JWKS(req.Context(), h.keys)
	if err != nil {
		logger.Errorw("failed to load public keys",
			"error", err.Error(),
		)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	writeCacheableJSON(w, jwks, DefaultJWKSCacheMaxAge)
}

// buildOAuthMetadata constructs the OAuth 2.0 Authorization Server Metadata (RFC 8414).
// This is shared between the OAuth AS metadata endpoint and the OIDC discovery endpoint.
func (h *Handler) buildOAuthMetadata() oauth.AuthorizationServerMetadata {
	return oauth.AuthorizationServerMetadata{
		// REQUIRED
		Issuer: h.config.Issuer,

		// RECOMMENDED
		AuthorizationEndpoint:  h.endpoint("/oauth/authorize"),
		TokenEndpoint:          h.endpoint("/oauth/token"),
		JWKSURI:                h.endpoint(oauth.WellKnownJWKSPath),
		RegistrationEndpoint:   h.endpoint("/oauth/register"),
		ScopesSupported:        registration.SupportedScopes,
		ResponseTypesSupported: []string{oauth.ResponseTypeCode},

		// OPTIONAL
		GrantTypesSupported: []string{
			string(fosite.GrantTypeAuthorizationCode),
			string(fosite.GrantTypeRefreshToken),
		},
		CodeChallengeMethodsSupported:     []string{crypto.PKCEChallengeMethodS256},
		TokenEndpointAuthMethodsSupported: registration.SupportedAuthMethods,
	}
}

// OAuthDiscoveryHandler handles GET /.well-known/oauth-authorization-server requests.
// It returns the OAuth 2.0 Authorization Server Metadata per RFC 8414.
func (h *Handler) OAuthDiscoveryHandler(w http.ResponseWriter, _ *http.Request) {
	writeCacheableJSON(w, h.buildOAuthMetadata(), DefaultDiscoveryCacheMaxAge)
}

// OIDCDiscoveryHandler handles GET /.well-known/openid-configuration requests.
// It extends the RFC 8414 metadata with the OIDC-required fields.
func (h *Handler) OIDCDiscoveryHandler(w http.ResponseWriter, req *http.Request) {
	algs := []string{keys.DefaultAlgorithm}
	if pub, err := h.keys.PublicKeys(req.Context()); err == nil && len(pub) > 0 {
		algs = algs[:0]
		seen := make(map[string]bool)
		for _, k := range pub {
			if !seen[k.Algorithm] {
				seen[k.Algorithm] = true
				algs = append(algs, k.Algorithm)
			}
		}
	}

	writeCacheableJSON(w, oauth.OIDCDiscoveryDocument{
		AuthorizationServerMetadata:      h.buildOAuthMetadata(),
		SubjectTypesSupported:            []string{"public"},
		IDTokenSigningAlgValuesSupported: algs,
	}, DefaultDiscoveryCacheMaxAge)
}

// ProtectedResourceHandler handles GET /.well-known/oauth-protected-resource requests
// with the RFC 9728 descriptor pointing clients at this authorization server.
func (h *Handler) ProtectedResourceHandler(w http.ResponseWriter, _ *http.Request) {
	writeCacheableJSON(w, oauth.ProtectedResourceMetadata{
		Resource:               h.config.ResourceURL,
		AuthorizationServers:   []string{h.config.Issuer},
		ScopesSupported:        registration.SupportedScopes,
		BearerMethodsSupported: []string{"header"},
		ResourceName:           "LinkedIn MCP",
	}, DefaultDiscoveryCacheMaxAge)
}
