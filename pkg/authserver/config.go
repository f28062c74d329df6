// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package authserver

import (
	stderrors "errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/stacklok/mcp-linkedin/pkg/artifacts"
	"github.com/stacklok/mcp-linkedin/pkg/authserver/broker"
	"github.com/stacklok/mcp-linkedin/pkg/authserver/server/keys"
	"github.com/stacklok/mcp-linkedin/pkg/authserver/session"
	"github.com/stacklok/mcp-linkedin/pkg/authserver/storage"
	"github.com/stacklok/mcp-linkedin/pkg/authserver/token"
	"github.com/stacklok/mcp-linkedin/pkg/authserver/upstream"
	"github.com/stacklok/mcp-linkedin/pkg/logger"
	"github.com/stacklok/mcp-linkedin/pkg/telemetry"
)

// DefaultSweepInterval is how often expired artifacts are swept.
const DefaultSweepInterval = 10 * time.Minute

// Config is the resolved configuration of the server. All values are
// final: no file paths other than key files, no environment lookups.
type Config struct {
	// Issuer is the externally visible base URL (OAUTH_SERVER_URL). It is
	// the "iss" of every token and the base of every published endpoint.
	Issuer string

	// ResourceURL identifies the protected MCP resource. Defaults to Issuer.
	ResourceURL string

	// Token holds the token lifetimes. Token.Issuer is set from Issuer.
	Token token.Config

	// SessionTTL is the sliding session lifetime.
	SessionTTL time.Duration

	Storage storage.Config
	Keys    keys.Config

	// Upstream enables LinkedIn delegation. Nil runs the server standalone:
	// sessions are created at the authorization endpoint.
	Upstream *upstream.Config

	// ExternalTokenTTL is how long upstream token pairs are kept.
	ExternalTokenTTL time.Duration

	Artifacts ArtifactsConfig
	Telemetry telemetry.Config
}

// ArtifactsConfig configures the artifact store.
type ArtifactsConfig struct {
	Backend artifacts.BackendConfig

	// Tenant namespaces every object (ARTIFACT_SANDBOX_ID).
	Tenant string

	// SigningKey signs local presigned URLs. Empty generates a key per
	// process.
	SigningKey []byte

	// SweepInterval is how often expired artifacts and orphans are removed.
	// Negative disables the sweeper.
	SweepInterval time.Duration
}

func (c *Config) applyDefaults() {
	c.Issuer = strings.TrimSuffix(c.Issuer, "/")
	if c.ResourceURL == "" {
		c.ResourceURL = c.Issuer
	}
	c.Token.Issuer = c.Issuer
	if c.SessionTTL == 0 {
		c.SessionTTL = session.DefaultTTL
	}
	if c.ExternalTokenTTL == 0 {
		c.ExternalTokenTTL = broker.DefaultStoreTTL
	}
	if c.Artifacts.Tenant == "" {
		c.Artifacts.Tenant = artifacts.DefaultTenant
	}
	if c.Artifacts.SweepInterval == 0 {
		c.Artifacts.SweepInterval = DefaultSweepInterval
	}
}

// Validate checks that the Config is usable.
func (c *Config) Validate() error {
	logger.Debugw("validating authserver config", "issuer", c.Issuer)

	if c.Issuer == "" {
		return stderrors.New("issuer is required")
	}
	u, err := url.Parse(c.Issuer)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("issuer must be an absolute URL: %q", c.Issuer)
	}
	if u.Scheme != "https" && !isLoopback(u.Hostname()) {
		return fmt.Errorf("issuer must use https unless it is a loopback address: %q", c.Issuer)
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return fmt.Errorf("issuer must not contain a query or fragment: %q", c.Issuer)
	}
	if c.SessionTTL < 0 {
		return stderrors.New("session TTL must not be negative")
	}
	if c.ExternalTokenTTL < 0 {
		return stderrors.New("external token TTL must not be negative")
	}
	if err := c.Token.Validate(); err != nil {
		return fmt.Errorf("token: %w", err)
	}
	if c.Upstream != nil {
		if err := c.Upstream.Validate(); err != nil {
			return fmt.Errorf("upstream: %w", err)
		}
	}
	if n := len(c.Artifacts.SigningKey); n > 0 && n < artifacts.MinSigningKeyLength {
		return fmt.Errorf("artifact signing key must be at least %d bytes", artifacts.MinSigningKeyLength)
	}
	return nil
}

func isLoopback(host string) bool {
	return host == "localhost" || host == "127.0.0.1" || host == "::1"
}
