// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package token

import (
	"fmt"
	"net/url"
	"time"
)

// Default lifetimes.
const (
	DefaultAuthCodeTTL     = 300 * time.Second
	DefaultAccessTokenTTL  = 900 * time.Second
	DefaultRefreshTokenTTL = 86400 * time.Second
	DefaultClientTTL       = 365 * 24 * time.Hour
)

// Config holds the issuer's identity and lifetimes.
type Config struct {
	// Issuer is the "iss" claim and the server's externally visible base URL.
	Issuer string

	AuthCodeTTL     time.Duration
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	ClientTTL       time.Duration
}

// Validate checks the issuer URL and fills zero lifetimes with defaults.
func (c *Config) Validate() error {
	if c.Issuer == "" {
		return fmt.Errorf("issuer is required")
	}
	u, err := url.Parse(c.Issuer)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("issuer must be an absolute URL: %q", c.Issuer)
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return fmt.Errorf("issuer must not contain a query or fragment")
	}

	for _, ttl := range []struct {
		name string
		val  *time.Duration
		def  time.Duration
	}{
		{"auth code", &c.AuthCodeTTL, DefaultAuthCodeTTL},
		{"access token", &c.AccessTokenTTL, DefaultAccessTokenTTL},
		{"refresh token", &c.RefreshTokenTTL, DefaultRefreshTokenTTL},
		{"client registration", &c.ClientTTL, DefaultClientTTL},
	} {
		if *ttl.val < 0 {
			return fmt.Errorf("%s TTL must not be negative", ttl.name)
		}
		if *ttl.val == 0 {
			*ttl.val = ttl.def
		}
	}
	return nil
}

// familyTTL bounds how long a family revocation must be remembered: no token
// of the family can outlive it.
func (c *Config) familyTTL() time.Duration {
	return c.RefreshTokenTTL + c.AccessTokenTTL
}
