// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package authserver

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/mcp-linkedin/pkg/artifacts"
	"github.com/stacklok/mcp-linkedin/pkg/authserver/broker"
	"github.com/stacklok/mcp-linkedin/pkg/authserver/session"
	"github.com/stacklok/mcp-linkedin/pkg/authserver/token"
	"github.com/stacklok/mcp-linkedin/pkg/authserver/upstream"
)

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid https issuer", mutate: func(*Config) {}},
		{name: "loopback http issuer", mutate: func(c *Config) { c.Issuer = "http://localhost:8000" }},
		{name: "ipv4 loopback", mutate: func(c *Config) { c.Issuer = "http://127.0.0.1:8000" }},
		{name: "missing issuer", mutate: func(c *Config) { c.Issuer = "" }, wantErr: "issuer is required"},
		{name: "relative issuer", mutate: func(c *Config) { c.Issuer = "/auth" }, wantErr: "absolute URL"},
		{name: "plain http", mutate: func(c *Config) { c.Issuer = "http://mcp.example.com" }, wantErr: "https"},
		{name: "query", mutate: func(c *Config) { c.Issuer = "https://mcp.example.com?x=1" }, wantErr: "query"},
		{name: "negative session ttl", mutate: func(c *Config) { c.SessionTTL = -time.Second }, wantErr: "session TTL"},
		{
			name:    "negative access token ttl",
			mutate:  func(c *Config) { c.Token.AccessTokenTTL = -time.Second },
			wantErr: "access token TTL",
		},
		{
			name:    "incomplete upstream",
			mutate:  func(c *Config) { c.Upstream = &upstream.Config{ClientID: "li"} },
			wantErr: "upstream: client_secret is required",
		},
		{
			name:    "short signing key",
			mutate:  func(c *Config) { c.Artifacts.SigningKey = []byte("short") },
			wantErr: "signing key",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := Config{Issuer: testIssuer}
			tt.mutate(&cfg)
			cfg.applyDefaults()
			err := cfg.Validate()
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestConfig_ApplyDefaults(t *testing.T) {
	t.Parallel()

	cfg := Config{Issuer: testIssuer + "/"}
	cfg.applyDefaults()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, testIssuer, cfg.Issuer)
	assert.Equal(t, testIssuer, cfg.ResourceURL)
	assert.Equal(t, testIssuer, cfg.Token.Issuer)
	assert.Equal(t, session.DefaultTTL, cfg.SessionTTL)
	assert.Equal(t, broker.DefaultStoreTTL, cfg.ExternalTokenTTL)
	assert.Equal(t, token.DefaultAccessTokenTTL, cfg.Token.AccessTokenTTL)
	assert.Equal(t, token.DefaultRefreshTokenTTL, cfg.Token.RefreshTokenTTL)
	assert.Equal(t, artifacts.DefaultTenant, cfg.Artifacts.Tenant)
	assert.Equal(t, DefaultSweepInterval, cfg.Artifacts.SweepInterval)

	kept := Config{Issuer: testIssuer, ResourceURL: testIssuer + "/mcp"}
	kept.applyDefaults()
	assert.Equal(t, testIssuer+"/mcp", kept.ResourceURL)
}
