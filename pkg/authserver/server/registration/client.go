// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package registration

import (
	"crypto/rand"
	"crypto/subtle"
	"net"
	"net/url"
	"slices"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Client is a persisted client registration. The secret is stored as a
// bcrypt hash only.
type Client struct {
	ID                      string    `json:"id"`
	SecretHash              []byte    `json:"secret_hash,omitempty"`
	Name                    string    `json:"name,omitempty"`
	RedirectURIs            []string  `json:"redirect_uris"`
	GrantTypes              []string  `json:"grant_types"`
	ResponseTypes           []string  `json:"response_types"`
	Scope                   string    `json:"scope,omitempty"`
	TokenEndpointAuthMethod string    `json:"token_endpoint_auth_method"`
	IssuedAt                time.Time `json:"issued_at"`
	Revoked                 bool      `json:"revoked,omitempty"`
}

// NewClient builds a Client from a validated request and returns it with
// the plaintext secret.
func NewClient(id string, req *DCRRequest, issuedAt time.Time) (*Client, string, error) {
	secret := rand.Text()
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", err
	}
	return &Client{
		ID:                      id,
		SecretHash:              hash,
		Name:                    req.ClientName,
		RedirectURIs:            slices.Clone(req.RedirectURIs),
		GrantTypes:              slices.Clone(req.GrantTypes),
		ResponseTypes:           slices.Clone(req.ResponseTypes),
		Scope:                   req.Scope,
		TokenEndpointAuthMethod: req.TokenEndpointAuthMethod,
		IssuedAt:                issuedAt,
	}, secret, nil
}

// IsPublic reports whether the client authenticates with PKCE alone.
func (c *Client) IsPublic() bool {
	return c.TokenEndpointAuthMethod == AuthMethodNone
}

// CheckSecret compares secret with the stored hash.
func (c *Client) CheckSecret(secret string) bool {
	if len(c.SecretHash) == 0 || secret == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword(c.SecretHash, []byte(secret)) == nil
}

// HasGrantType reports whether the client registered grantType.
func (c *Client) HasGrantType(grantType string) bool {
	return slices.Contains(c.GrantTypes, grantType)
}

// MatchRedirectURI reports whether requested is one of the registered
// redirect URIs. Loopback http URIs match on any port (RFC 8252 Section
// 7.3); everything else must match exactly.
func (c *Client) MatchRedirectURI(requested string) bool {
	for _, registered := range c.RedirectURIs {
		if subtle.ConstantTimeCompare([]byte(registered), []byte(requested)) == 1 {
			return true
		}
		if matchLoopback(registered, requested) {
			return true
		}
	}
	return false
}

func matchLoopback(registered, requested string) bool {
	reg, err := url.Parse(registered)
	if err != nil || !isLoopback(reg) {
		return false
	}
	req, err := url.Parse(requested)
	if err != nil || !isLoopback(req) {
		return false
	}
	return reg.Hostname() == req.Hostname() &&
		reg.Path == req.Path &&
		reg.RawQuery == req.RawQuery &&
		req.Fragment == ""
}

func isLoopback(u *url.URL) bool {
	if u.Scheme != "http" {
		return false
	}
	host := u.Hostname()
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
