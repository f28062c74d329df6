// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package registration

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/mcp-linkedin/pkg/errors"
)

func TestValidateRedirectURI(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		uri     string
		wantErr bool
	}{
		{"https", "https://client.example.com/callback", false},
		{"http loopback", "http://127.0.0.1:8080/callback", false},
		{"http remote", "http://client.example.com/cb", false},
		{"private-use scheme", "com.example.app:/oauth2redirect", false},
		{"relative", "/callback", true},
		{"no scheme", "client.example.com/cb", true},
		{"fragment", "https://client.example.com/cb#frag", true},
		{"empty fragment", "https://client.example.com/cb#", true},
		{"http without host", "http:///cb", true},
		{"javascript", "javascript:alert(1)", true},
		{"garbage", "://bad", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := ValidateRedirectURI(tt.uri)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsInvalidRedirectURI(err))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestValidateDCRRequest(t *testing.T) {
	t.Parallel()

	manyURIs := make([]string, MaxRedirectURICount+1)
	for i := range manyURIs {
		manyURIs[i] = "https://client.example.com/cb"
	}

	tests := []struct {
		name     string
		req      DCRRequest
		wantType string
		check    func(t *testing.T, got *DCRRequest)
	}{
		{
			name: "defaults applied",
			req:  DCRRequest{RedirectURIs: []string{"https://client.example.com/cb"}, ClientName: "claude"},
			check: func(t *testing.T, got *DCRRequest) {
				t.Helper()
				assert.Equal(t, AuthMethodNone, got.TokenEndpointAuthMethod)
				assert.Equal(t, []string{"authorization_code", "refresh_token"}, got.GrantTypes)
				assert.Equal(t, []string{"code"}, got.ResponseTypes)
				assert.Equal(t, "claude", got.ClientName)
			},
		},
		{
			name: "confidential client",
			req: DCRRequest{
				RedirectURIs:            []string{"https://client.example.com/cb"},
				TokenEndpointAuthMethod: AuthMethodClientSecretBasic,
				GrantTypes:              []string{"authorization_code"},
				Scope:                   "linkedin.posts linkedin.posts",
			},
			check: func(t *testing.T, got *DCRRequest) {
				t.Helper()
				assert.Equal(t, AuthMethodClientSecretBasic, got.TokenEndpointAuthMethod)
				assert.Equal(t, []string{"authorization_code"}, got.GrantTypes)
				assert.Equal(t, "linkedin.posts", got.Scope)
			},
		},
		{
			name:     "missing redirect uris",
			req:      DCRRequest{},
			wantType: errors.ErrInvalidRedirectURI,
		},
		{
			name:     "too many redirect uris",
			req:      DCRRequest{RedirectURIs: manyURIs},
			wantType: errors.ErrInvalidRedirectURI,
		},
		{
			name:     "relative redirect uri",
			req:      DCRRequest{RedirectURIs: []string{"/cb"}},
			wantType: errors.ErrInvalidRedirectURI,
		},
		{
			name:     "client name too long",
			req:      DCRRequest{RedirectURIs: []string{"https://a.example/cb"}, ClientName: strings.Repeat("x", MaxClientNameLength+1)},
			wantType: errors.ErrInvalidClientMetadata,
		},
		{
			name:     "unknown auth method",
			req:      DCRRequest{RedirectURIs: []string{"https://a.example/cb"}, TokenEndpointAuthMethod: "private_key_jwt"},
			wantType: errors.ErrInvalidClientMetadata,
		},
		{
			name:     "refresh only",
			req:      DCRRequest{RedirectURIs: []string{"https://a.example/cb"}, GrantTypes: []string{"refresh_token"}},
			wantType: errors.ErrInvalidClientMetadata,
		},
		{
			name:     "implicit grant",
			req:      DCRRequest{RedirectURIs: []string{"https://a.example/cb"}, GrantTypes: []string{"authorization_code", "implicit"}},
			wantType: errors.ErrInvalidClientMetadata,
		},
		{
			name:     "token response type",
			req:      DCRRequest{RedirectURIs: []string{"https://a.example/cb"}, ResponseTypes: []string{"token"}},
			wantType: errors.ErrInvalidClientMetadata,
		},
		{
			name:     "unknown scope",
			req:      DCRRequest{RedirectURIs: []string{"https://a.example/cb"}, Scope: "admin"},
			wantType: errors.ErrInvalidClientMetadata,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ValidateDCRRequest(&tt.req, SupportedScopes)
			if tt.wantType != "" {
				require.Error(t, err)
				assert.Equal(t, tt.wantType, errors.TypeOf(err))
				assert.Nil(t, got)
				return
			}
			require.NoError(t, err)
			tt.check(t, got)
		})
	}
}

func TestValidateScopes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		scope   string
		allowed []string
		want    []string
		wantErr bool
	}{
		{"subset", "linkedin.posts", SupportedScopes, []string{"linkedin.posts"}, false},
		{"all", "linkedin.documents linkedin.profile linkedin.posts", SupportedScopes,
			[]string{"linkedin.documents", "linkedin.profile", "linkedin.posts"}, false},
		{"dedup", "linkedin.posts  linkedin.posts", SupportedScopes, []string{"linkedin.posts"}, false},
		{"empty yields defaults", "", SupportedScopes, DefaultScopes, false},
		{"unknown", "linkedin.posts admin", SupportedScopes, nil, true},
		{"prefix of valid scope", "linkedin", SupportedScopes, nil, true},
		{"defaults not allowed", "", []string{"custom"}, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ValidateScopes(tt.scope, tt.allowed)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsInvalidScope(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIsSubset(t *testing.T) {
	t.Parallel()

	assert.True(t, IsSubset("linkedin.posts", "linkedin.posts linkedin.profile"))
	assert.True(t, IsSubset("", "linkedin.posts"))
	assert.False(t, IsSubset("linkedin.documents", "linkedin.posts"))
}
