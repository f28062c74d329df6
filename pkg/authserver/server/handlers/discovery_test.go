// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-jose/go-jose/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/mcp-linkedin/pkg/oauth"
)

func TestOAuthDiscoveryHandler(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, false)

	for _, path := range []string{oauth.WellKnownAuthorizationServerPath, oauth.WellKnownOIDCConfigurationPath} {
		t.Run(path, func(t *testing.T) {
			t.Parallel()

			rec := ts.do(t, httptest.NewRequest(http.MethodGet, path, nil))
			require.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			assert.Equal(t, "public, max-age=3600", rec.Header().Get("Cache-Control"))

			var doc oauth.OIDCDiscoveryDocument
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
			assert.Equal(t, testIssuer, doc.Issuer, "trailing slash is trimmed")
			assert.Equal(t, testIssuer+"/oauth/authorize", doc.AuthorizationEndpoint)
			assert.Equal(t, testIssuer+"/oauth/token", doc.TokenEndpoint)
			assert.Equal(t, testIssuer+"/oauth/register", doc.RegistrationEndpoint)
			assert.Equal(t, testIssuer+"/.well-known/jwks.json", doc.JWKSURI)
			assert.Equal(t, []string{"S256"}, doc.CodeChallengeMethodsSupported)
			assert.Equal(t, []string{"authorization_code", "refresh_token"}, doc.GrantTypesSupported)
			assert.Equal(t, []string{"code"}, doc.ResponseTypesSupported)
			assert.Contains(t, doc.ScopesSupported, "linkedin.posts")
			assert.Equal(t, []string{"none", "client_secret_post", "client_secret_basic"}, doc.TokenEndpointAuthMethodsSupported)

			if path == oauth.WellKnownOIDCConfigurationPath {
				assert.Equal(t, []string{"public"}, doc.SubjectTypesSupported)
				assert.Equal(t, []string{"ES256"}, doc.IDTokenSigningAlgValuesSupported)
			}
		})
	}
}

func TestProtectedResourceHandler(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, false)
	rec := ts.do(t, httptest.NewRequest(http.MethodGet, oauth.WellKnownProtectedResourcePath, nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var doc oauth.ProtectedResourceMetadata
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	assert.Equal(t, testIssuer, doc.Resource)
	assert.Equal(t, []string{testIssuer}, doc.AuthorizationServers)
	assert.Equal(t, []string{"header"}, doc.BearerMethodsSupported)
}

func TestJWKSHandler(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, false)
	rec := ts.do(t, httptest.NewRequest(http.MethodGet, oauth.WellKnownJWKSPath, nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var jwks jose.JSONWebKeySet
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &jwks))
	require.Len(t, jwks.Keys, 1)
	assert.True(t, jwks.Keys[0].IsPublic())
	assert.Equal(t, "ES256", jwks.Keys[0].Algorithm)
	assert.Equal(t, "sig", jwks.Keys[0].Use)
}
