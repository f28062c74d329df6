// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package upstream

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/stacklok/mcp-linkedin/pkg/logger"
)

// LinkedIn endpoints.
const (
	LinkedInAuthorizationEndpoint = "https://www.linkedin.com/oauth/v2/authorization"
	LinkedInTokenEndpoint         = "https://www.linkedin.com/oauth/v2/accessToken"
	LinkedInUserInfoEndpoint      = "https://api.linkedin.com/v2/userinfo"
	LinkedInIssuer                = "https://www.linkedin.com/oauth"
	LinkedInJWKSEndpoint          = "https://www.linkedin.com/oauth/openid/jwks"
)

// ErrNonceMismatch is returned when the nonce claim in the ID token does not
// match the nonce sent in the authorization request.
var ErrNonceMismatch = stderrors.New("ID token nonce does not match expected value")

// ErrNonceMissing is returned when the ID token carries no nonce although
// one was sent.
var ErrNonceMissing = stderrors.New("ID token missing nonce claim when nonce was expected")

// ErrIDTokenMissing is returned when openid was requested but the token
// response carried no ID token.
var ErrIDTokenMissing = stderrors.New("ID token required when the openid scope is requested")

// DefaultTokenLifetime is assumed when the provider omits expires_in.
// LinkedIn member tokens live 60 days.
const DefaultTokenLifetime = 5184000 * time.Second

// maxResponseSize caps how much of a userinfo response is read.
const maxResponseSize = 1 << 20

// DefaultScopes are requested from LinkedIn when none are configured.
var DefaultScopes = []string{"openid", "profile", "w_member_social", "email"}

// Config configures the LinkedIn provider.
type Config struct {
	ClientID     string
	ClientSecret string

	// RedirectURI is this server's /oauth/callback URL.
	RedirectURI string

	Scopes []string

	// Endpoint overrides, for tests. Empty selects the LinkedIn endpoints.
	AuthorizationEndpoint string
	TokenEndpoint         string
	UserInfoEndpoint      string

	// Issuer is the expected iss claim of ID tokens and JWKSEndpoint serves
	// their signing keys. Empty selects LinkedIn's.
	Issuer       string
	JWKSEndpoint string
}

// Validate checks required fields and fills defaults.
func (c *Config) Validate() error {
	if c.ClientID == "" {
		return stderrors.New("client_id is required")
	}
	if c.ClientSecret == "" {
		return stderrors.New("client_secret is required")
	}
	if c.RedirectURI == "" {
		return stderrors.New("redirect_uri is required")
	}
	if u, err := url.Parse(c.RedirectURI); err != nil || !u.IsAbs() {
		return fmt.Errorf("redirect_uri must be an absolute URL: %q", c.RedirectURI)
	}
	if len(c.Scopes) == 0 {
		c.Scopes = DefaultScopes
	}
	if c.AuthorizationEndpoint == "" {
		c.AuthorizationEndpoint = LinkedInAuthorizationEndpoint
	}
	if c.TokenEndpoint == "" {
		c.TokenEndpoint = LinkedInTokenEndpoint
	}
	if c.UserInfoEndpoint == "" {
		c.UserInfoEndpoint = LinkedInUserInfoEndpoint
	}
	if c.Issuer == "" {
		c.Issuer = LinkedInIssuer
	}
	if c.JWKSEndpoint == "" {
		c.JWKSEndpoint = LinkedInJWKSEndpoint
	}
	return nil
}

// LinkedInProvider implements Provider against LinkedIn's OAuth 2.0 and
// OpenID Connect userinfo endpoints.
type LinkedInProvider struct {
	oauth2     *oauth2.Config
	userInfo   string
	httpClient *http.Client

	verifier       *oidc.IDTokenVerifier
	requireIDToken bool
}

// Option configures a LinkedInProvider.
type Option func(*LinkedInProvider)

// WithHTTPClient sets the client used for every upstream call.
func WithHTTPClient(c *http.Client) Option {
	return func(p *LinkedInProvider) {
		p.httpClient = c
	}
}

// NewLinkedInProvider creates a provider from cfg.
func NewLinkedInProvider(cfg Config, opts ...Option) (*LinkedInProvider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid upstream configuration: %w", err)
	}

	p := &LinkedInProvider{
		oauth2: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Scopes:       cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.AuthorizationEndpoint,
				TokenURL: cfg.TokenEndpoint,
				// LinkedIn reads client credentials from the form body only.
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		userInfo:       cfg.UserInfoEndpoint,
		httpClient:     &http.Client{Timeout: 30 * time.Second},
		requireIDToken: slices.Contains(cfg.Scopes, oidc.ScopeOpenID),
	}
	for _, opt := range opts {
		opt(p)
	}

	// LinkedIn's discovery document is static, so the key set is built from
	// the known JWKS URL instead of discovering it at startup. Keys are
	// fetched on first use with the provider's HTTP client.
	keySet := oidc.NewRemoteKeySet(oidc.ClientContext(context.Background(), p.httpClient), cfg.JWKSEndpoint)
	p.verifier = oidc.NewVerifier(cfg.Issuer, keySet, &oidc.Config{ClientID: cfg.ClientID})

	logger.Infow("created upstream provider",
		"authorization_endpoint", cfg.AuthorizationEndpoint,
		"token_endpoint", cfg.TokenEndpoint,
		"client_id", cfg.ClientID,
	)
	return p, nil
}

func (p *LinkedInProvider) withClient(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
}

// AuthorizationURL builds the LinkedIn authorization URL with an S256 PKCE
// challenge derived from codeVerifier.
func (p *LinkedInProvider) AuthorizationURL(state, codeVerifier, nonce string) string {
	opts := []oauth2.AuthCodeOption{oauth2.S256ChallengeOption(codeVerifier)}
	if nonce != "" {
		opts = append(opts, oidc.Nonce(nonce))
	}
	return p.oauth2.AuthCodeURL(state, opts...)
}

// ExchangeCode exchanges a callback code for tokens and verifies the ID
// token that comes with them.
func (p *LinkedInProvider) ExchangeCode(ctx context.Context, code, codeVerifier, nonce string) (*Tokens, error) {
	if code == "" {
		return nil, stderrors.New("authorization code is required")
	}

	tok, err := p.oauth2.Exchange(p.withClient(ctx), code, oauth2.VerifierOption(codeVerifier))
	if err != nil {
		return nil, fmt.Errorf("upstream code exchange failed: %w", err)
	}

	tokens := toTokens(tok)
	rawIDToken, _ := tok.Extra("id_token").(string)
	switch {
	case rawIDToken != "":
		identity, err := p.validateIDToken(ctx, rawIDToken, nonce)
		if err != nil {
			logger.Debugw("id token validation failed", "error", err)
			return nil, err
		}
		tokens.Identity = identity
	case p.requireIDToken:
		return nil, ErrIDTokenMissing
	}

	logger.Debugw("upstream code exchange successful",
		"has_refresh_token", tok.RefreshToken != "",
		"has_id_token", rawIDToken != "",
	)
	return tokens, nil
}

// validateIDToken verifies the signature, issuer, audience and expiry of an
// ID token and returns the user it names.
func (p *LinkedInProvider) validateIDToken(ctx context.Context, rawIDToken, nonce string) (*UserInfo, error) {
	idToken, err := p.verifier.Verify(oidc.ClientContext(ctx, p.httpClient), rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("failed to verify ID token: %w", err)
	}

	if nonce != "" {
		if idToken.Nonce == "" {
			return nil, ErrNonceMissing
		}
		if idToken.Nonce != nonce {
			return nil, ErrNonceMismatch
		}
	}

	var info UserInfo
	if err := idToken.Claims(&info); err != nil {
		return nil, fmt.Errorf("failed to parse ID token claims: %w", err)
	}
	info.Subject = idToken.Subject
	return &info, nil
}

// RefreshTokens refreshes the upstream access token.
func (p *LinkedInProvider) RefreshTokens(ctx context.Context, refreshToken string) (*Tokens, error) {
	if refreshToken == "" {
		return nil, stderrors.New("refresh token is required")
	}

	tok, err := p.oauth2.TokenSource(p.withClient(ctx), &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return nil, fmt.Errorf("upstream token refresh failed: %w", err)
	}

	logger.Debugw("upstream token refresh successful", "rotated", tok.RefreshToken != refreshToken)
	return toTokens(tok), nil
}

// UserInfo fetches the OpenID Connect userinfo document.
func (p *LinkedInProvider) UserInfo(ctx context.Context, accessToken string) (*UserInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userInfo, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create userinfo request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("userinfo request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read userinfo response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("userinfo request failed with status %d", resp.StatusCode)
	}

	var info UserInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("failed to parse userinfo response: %w", err)
	}
	if info.Subject == "" {
		return nil, stderrors.New("userinfo response is missing sub")
	}
	return &info, nil
}

func toTokens(tok *oauth2.Token) *Tokens {
	lifetime := time.Duration(tok.ExpiresIn) * time.Second
	if lifetime <= 0 {
		lifetime = DefaultTokenLifetime
	}
	return &Tokens{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresIn:    lifetime,
	}
}

// IsPermanent reports whether err is a rejection by the provider (a 4xx
// token response) rather than a transport or server failure worth retrying.
func IsPermanent(err error) bool {
	var re *oauth2.RetrieveError
	if stderrors.As(err, &re) && re.Response != nil {
		return re.Response.StatusCode >= 400 && re.Response.StatusCode < 500
	}
	return false
}

// Compile-time interface check.
var _ Provider = (*LinkedInProvider)(nil)
