// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package upstream talks to the upstream identity provider (LinkedIn) on
// behalf of the authorization server: building the authorization URL,
// exchanging the callback code, refreshing tokens and resolving the user.
package upstream

import (
	"context"
	"time"
)

// Tokens are the tokens obtained from the upstream provider.
type Tokens struct {
	AccessToken  string
	RefreshToken string

	// ExpiresIn is the lifetime the provider granted the access token.
	ExpiresIn time.Duration

	// Identity is the user named by the verified ID token. Nil when the
	// provider returned no ID token.
	Identity *UserInfo
}

// UserInfo identifies the upstream user.
type UserInfo struct {
	// Subject is the provider's stable user id (the OIDC "sub" claim).
	Subject string `json:"sub"`
	Name    string `json:"name,omitempty"`
	Email   string `json:"email,omitempty"`
}

// Provider handles communication with the upstream provider.
type Provider interface {
	// AuthorizationURL builds the URL the user is redirected to. state
	// correlates the callback; codeVerifier is the PKCE verifier whose S256
	// challenge is sent upstream; nonce is bound into the ID token.
	AuthorizationURL(state, codeVerifier, nonce string) string

	// ExchangeCode exchanges a callback code for tokens. When the provider
	// returns an ID token it is verified, its nonce must equal nonce, and its
	// subject is reported in Tokens.Identity.
	ExchangeCode(ctx context.Context, code, codeVerifier, nonce string) (*Tokens, error)

	// RefreshTokens obtains a new access token. Providers that do not rotate
	// refresh tokens return the one passed in.
	RefreshTokens(ctx context.Context, refreshToken string) (*Tokens, error)

	// UserInfo resolves the user behind an access token.
	UserInfo(ctx context.Context, accessToken string) (*UserInfo, error)
}
