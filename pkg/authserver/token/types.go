// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package token issues and validates authorization codes, access tokens,
// refresh tokens and client registrations. All state lives in a
// storage.Store; single-use transitions are compare-and-swap operations on
// that store.
package token

import (
	"time"

	"github.com/go-jose/go-jose/v4/jwt"
)

// TokenTypeBearer is the token_type of every access token.
const TokenTypeBearer = "Bearer"

// Store key kinds.
const (
	keyCode          = "code"
	keyRefresh       = "refresh"
	keyClient        = "client"
	keyFamilies      = "families"
	keyRevokedFamily = "revoked-family"
	keyRevokedToken  = "revoked-jti"
)

// AuthCodeRequest describes an authorization code to issue.
type AuthCodeRequest struct {
	ClientID            string
	RedirectURI         string
	Scope               string
	CodeChallenge       string
	CodeChallengeMethod string

	// SessionID binds the code to an existing session. Empty creates a new
	// session at exchange time.
	SessionID string
}

// ExchangeRequest is an authorization_code grant.
type ExchangeRequest struct {
	Code         string
	CodeVerifier string
	ClientID     string
	RedirectURI  string
}

// RefreshRequest is a refresh_token grant. A non-empty Scope must be a
// subset of the originally granted scope.
type RefreshRequest struct {
	RefreshToken string
	ClientID     string
	Scope        string
}

// TokenPair is the result of a successful grant.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Scope        string `json:"scope,omitempty"`

	SessionID string `json:"-"`
}

// AccessClaims are the validated claims of an access token.
type AccessClaims struct {
	SessionID string
	ClientID  string
	Scope     string
	TokenID   string
	FamilyID  string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// authCode is the stored authorization code record.
type authCode struct {
	ClientID            string    `json:"client_id"`
	RedirectURI         string    `json:"redirect_uri"`
	Scope               string    `json:"scope,omitempty"`
	CodeChallenge       string    `json:"code_challenge"`
	CodeChallengeMethod string    `json:"code_challenge_method"`
	SessionID           string    `json:"session_id,omitempty"`
	FamilyID            string    `json:"family_id"`
	IssuedAt            time.Time `json:"issued_at"`
	ExpiresAt           time.Time `json:"expires_at"`
	Consumed            bool      `json:"consumed"`
}

// refreshRecord is stored under the digest of the refresh token.
type refreshRecord struct {
	ClientID  string    `json:"client_id"`
	SessionID string    `json:"session_id"`
	FamilyID  string    `json:"family_id"`
	Scope     string    `json:"scope,omitempty"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Used      bool      `json:"used"`
}

// accessTokenClaims is the JWT payload of an access token.
type accessTokenClaims struct {
	jwt.Claims
	ClientID string `json:"client_id"`
	Scope    string `json:"scope,omitempty"`
	FamilyID string `json:"fid"`
}
