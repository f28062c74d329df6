// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package config loads the server configuration from the environment, an
// optional YAML file and command line flags, all through viper.
//
// Every key is the lower-cased name of its environment variable, so
// OAUTH_ACCESS_TOKEN_TTL can also be set as oauth_access_token_ttl in the
// config file. Lifetimes are whole seconds.
package config

import (
	stderrors "errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/stacklok/mcp-linkedin/pkg/artifacts"
	"github.com/stacklok/mcp-linkedin/pkg/authserver"
	"github.com/stacklok/mcp-linkedin/pkg/authserver/broker"
	"github.com/stacklok/mcp-linkedin/pkg/authserver/server/keys"
	"github.com/stacklok/mcp-linkedin/pkg/authserver/session"
	"github.com/stacklok/mcp-linkedin/pkg/authserver/storage"
	"github.com/stacklok/mcp-linkedin/pkg/authserver/token"
	"github.com/stacklok/mcp-linkedin/pkg/authserver/upstream"
	"github.com/stacklok/mcp-linkedin/pkg/telemetry"
)

// Keys read by Load.
const (
	KeyHost = "host"
	KeyPort = "port"

	KeyServerURL          = "oauth_server_url"
	KeyAuthCodeTTL        = "oauth_auth_code_ttl"
	KeyAccessTokenTTL     = "oauth_access_token_ttl"
	KeyRefreshTokenTTL    = "oauth_refresh_token_ttl"
	KeyClientTTL          = "oauth_client_registration_ttl"
	KeyExternalTokenTTL   = "oauth_external_token_ttl"
	KeySessionTTL         = "session_ttl"
	KeySigningKeyDir      = "oauth_signing_key_dir"
	KeySigningKeyFile     = "oauth_signing_key_file"
	KeyFallbackKeyFiles   = "oauth_fallback_key_files"
	KeyOAuthEnabled       = "oauth_enabled"
	KeySessionProvider    = "session_provider"
	KeySessionRedisURL    = "session_redis_url"
	KeySessionRedisPrefix = "session_redis_key_prefix"

	KeyArtifactProvider     = "artifact_provider"
	KeyArtifactFSRoot       = "artifact_fs_root"
	KeyArtifactS3Bucket     = "artifact_s3_bucket"
	KeyArtifactS3Region     = "artifact_s3_region"
	KeyArtifactS3Endpoint   = "artifact_s3_endpoint"
	KeyArtifactS3AccessKey  = "artifact_s3_access_key_id"
	KeyArtifactS3SecretKey  = "artifact_s3_secret_access_key"
	KeyArtifactSandboxID    = "artifact_sandbox_id"
	KeyArtifactSigningKey   = "artifact_signing_key"
	KeyArtifactSweepSeconds = "artifact_sweep_interval"

	KeyLinkedInClientID     = "linkedin_client_id"
	KeyLinkedInClientSecret = "linkedin_client_secret"
	KeyLinkedInRedirectURI  = "linkedin_redirect_uri"

	KeyMetricsEnabled = "metrics_enabled"
	KeyOTLPEndpoint   = "otel_exporter_otlp_endpoint"
	KeyOTLPInsecure   = "otel_exporter_otlp_insecure"
	KeySamplingRate   = "otel_traces_sampler_arg"
)

// Defaults.
const (
	DefaultHost      = "0.0.0.0"
	DefaultPort      = 8000
	DefaultServerURL = "http://localhost:8000"
)

// Config is the flat, validated server configuration.
type Config struct {
	Host string
	Port int

	ServerURL string

	AuthCodeTTL      time.Duration
	AccessTokenTTL   time.Duration
	RefreshTokenTTL  time.Duration
	ClientTTL        time.Duration
	ExternalTokenTTL time.Duration
	SessionTTL       time.Duration

	SigningKeyDir    string
	SigningKeyFile   string
	FallbackKeyFiles []string

	// OAuthEnabled gates LinkedIn delegation. Delegation also needs both
	// LinkedIn credentials.
	OAuthEnabled bool

	SessionProvider    storage.Type
	SessionRedisURL    string
	SessionRedisPrefix string

	ArtifactProvider   string
	ArtifactFSRoot     string
	ArtifactS3         artifacts.S3Config
	ArtifactSandboxID  string
	ArtifactSigningKey string
	ArtifactSweep      time.Duration

	LinkedInClientID     string
	LinkedInClientSecret string
	LinkedInRedirectURI  string

	MetricsEnabled bool
	OTLPEndpoint   string
	OTLPInsecure   bool
	SamplingRate   float64
}

// SetDefaults registers the default of every key on v and binds each key
// to its environment variable.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyHost, DefaultHost)
	v.SetDefault(KeyPort, DefaultPort)
	v.SetDefault(KeyServerURL, DefaultServerURL)
	v.SetDefault(KeyAuthCodeTTL, seconds(token.DefaultAuthCodeTTL))
	v.SetDefault(KeyAccessTokenTTL, seconds(token.DefaultAccessTokenTTL))
	v.SetDefault(KeyRefreshTokenTTL, seconds(token.DefaultRefreshTokenTTL))
	v.SetDefault(KeyClientTTL, seconds(token.DefaultClientTTL))
	v.SetDefault(KeyExternalTokenTTL, seconds(broker.DefaultStoreTTL))
	v.SetDefault(KeySessionTTL, seconds(session.DefaultTTL))
	v.SetDefault(KeyOAuthEnabled, true)
	v.SetDefault(KeySessionProvider, string(storage.TypeMemory))
	v.SetDefault(KeySessionRedisPrefix, storage.DefaultKeyPrefix)
	v.SetDefault(KeyArtifactProvider, artifacts.BackendMemory)
	v.SetDefault(KeyArtifactSandboxID, artifacts.DefaultTenant)
	v.SetDefault(KeyArtifactSweepSeconds, seconds(authserver.DefaultSweepInterval))
	v.SetDefault(KeyMetricsEnabled, true)
	v.SetDefault(KeySamplingRate, telemetry.DefaultConfig().SamplingRate)

	v.AutomaticEnv()
}

// Load reads the configuration from v. SetDefaults must have been called.
func Load(v *viper.Viper) (*Config, error) {
	var errs []error
	ttl := func(key string) time.Duration {
		d, err := durationSeconds(v, key)
		if err != nil {
			errs = append(errs, err)
		}
		return d
	}

	c := &Config{
		Host:             v.GetString(KeyHost),
		Port:             v.GetInt(KeyPort),
		ServerURL:        strings.TrimSuffix(v.GetString(KeyServerURL), "/"),
		AuthCodeTTL:      ttl(KeyAuthCodeTTL),
		AccessTokenTTL:   ttl(KeyAccessTokenTTL),
		RefreshTokenTTL:  ttl(KeyRefreshTokenTTL),
		ClientTTL:        ttl(KeyClientTTL),
		ExternalTokenTTL: ttl(KeyExternalTokenTTL),
		SessionTTL:       ttl(KeySessionTTL),
		ArtifactSweep:    ttl(KeyArtifactSweepSeconds),

		SigningKeyDir:    v.GetString(KeySigningKeyDir),
		SigningKeyFile:   v.GetString(KeySigningKeyFile),
		FallbackKeyFiles: v.GetStringSlice(KeyFallbackKeyFiles),

		OAuthEnabled:       v.GetBool(KeyOAuthEnabled),
		SessionProvider:    storage.Type(strings.ToLower(v.GetString(KeySessionProvider))),
		SessionRedisURL:    v.GetString(KeySessionRedisURL),
		SessionRedisPrefix: v.GetString(KeySessionRedisPrefix),

		ArtifactProvider: strings.ToLower(v.GetString(KeyArtifactProvider)),
		ArtifactFSRoot:   v.GetString(KeyArtifactFSRoot),
		ArtifactS3: artifacts.S3Config{
			Bucket:          v.GetString(KeyArtifactS3Bucket),
			Region:          v.GetString(KeyArtifactS3Region),
			Endpoint:        v.GetString(KeyArtifactS3Endpoint),
			AccessKeyID:     v.GetString(KeyArtifactS3AccessKey),
			SecretAccessKey: v.GetString(KeyArtifactS3SecretKey),
		},
		ArtifactSandboxID:  v.GetString(KeyArtifactSandboxID),
		ArtifactSigningKey: v.GetString(KeyArtifactSigningKey),

		LinkedInClientID:     v.GetString(KeyLinkedInClientID),
		LinkedInClientSecret: v.GetString(KeyLinkedInClientSecret),
		LinkedInRedirectURI:  v.GetString(KeyLinkedInRedirectURI),

		MetricsEnabled: v.GetBool(KeyMetricsEnabled),
		OTLPEndpoint:   v.GetString(KeyOTLPEndpoint),
		OTLPInsecure:   v.GetBool(KeyOTLPInsecure),
		SamplingRate:   v.GetFloat64(KeySamplingRate),
	}
	if c.LinkedInRedirectURI == "" {
		c.LinkedInRedirectURI = c.ServerURL + "/oauth/callback"
	}
	if len(errs) > 0 {
		return nil, stderrors.Join(errs...)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks values a server could not start with.
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("%s must be between 0 and 65535, got %d", KeyPort, c.Port)
	}
	if c.ServerURL == "" {
		return fmt.Errorf("%s is required", KeyServerURL)
	}
	switch c.SessionProvider {
	case storage.TypeMemory:
	case storage.TypeRedis:
		if c.SessionRedisURL == "" {
			return fmt.Errorf("%s is required when %s is %q", KeySessionRedisURL, KeySessionProvider, storage.TypeRedis)
		}
	default:
		return fmt.Errorf("%s must be %q or %q, got %q", KeySessionProvider, storage.TypeMemory, storage.TypeRedis, c.SessionProvider)
	}
	switch c.ArtifactProvider {
	case artifacts.BackendMemory:
	case artifacts.BackendFilesystem:
		if c.ArtifactFSRoot == "" {
			return fmt.Errorf("%s is required when %s is %q", KeyArtifactFSRoot, KeyArtifactProvider, artifacts.BackendFilesystem)
		}
	case artifacts.BackendS3:
		if err := c.ArtifactS3.Validate(); err != nil {
			return fmt.Errorf("s3 artifact backend: %w", err)
		}
	default:
		return fmt.Errorf("%s must be one of %q, %q or %q, got %q", KeyArtifactProvider,
			artifacts.BackendMemory, artifacts.BackendFilesystem, artifacts.BackendS3, c.ArtifactProvider)
	}
	if (c.LinkedInClientID == "") != (c.LinkedInClientSecret == "") {
		return fmt.Errorf("%s and %s must be set together", KeyLinkedInClientID, KeyLinkedInClientSecret)
	}
	if c.SamplingRate < 0 || c.SamplingRate > 1 {
		return fmt.Errorf("%s must be between 0 and 1", KeySamplingRate)
	}
	return nil
}

// UpstreamEnabled reports whether sign-in is delegated to LinkedIn.
func (c *Config) UpstreamEnabled() bool {
	return c.OAuthEnabled && c.LinkedInClientID != "" && c.LinkedInClientSecret != ""
}

// Address is the listen address.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// AuthServer converts c into the authorization server configuration.
func (c *Config) AuthServer(version string) authserver.Config {
	cfg := authserver.Config{
		Issuer: c.ServerURL,
		Token: token.Config{
			AuthCodeTTL:     c.AuthCodeTTL,
			AccessTokenTTL:  c.AccessTokenTTL,
			RefreshTokenTTL: c.RefreshTokenTTL,
			ClientTTL:       c.ClientTTL,
		},
		SessionTTL:       c.SessionTTL,
		ExternalTokenTTL: c.ExternalTokenTTL,
		Storage: storage.Config{
			Type: c.SessionProvider,
			Redis: storage.RedisConfig{
				URL:       c.SessionRedisURL,
				KeyPrefix: c.SessionRedisPrefix,
			},
		},
		Keys: keys.Config{
			KeyDir:           c.SigningKeyDir,
			SigningKeyFile:   c.SigningKeyFile,
			FallbackKeyFiles: c.FallbackKeyFiles,
		},
		Artifacts: authserver.ArtifactsConfig{
			Backend: artifacts.BackendConfig{
				Provider:       c.ArtifactProvider,
				FilesystemRoot: c.ArtifactFSRoot,
				S3:             c.ArtifactS3,
			},
			Tenant:        c.ArtifactSandboxID,
			SigningKey:    []byte(c.ArtifactSigningKey),
			SweepInterval: c.ArtifactSweep,
		},
		Telemetry: telemetry.Config{
			ServiceName:                 telemetry.DefaultConfig().ServiceName,
			ServiceVersion:              version,
			Endpoint:                    c.OTLPEndpoint,
			Insecure:                    c.OTLPInsecure,
			TracingEnabled:              true,
			MetricsEnabled:              true,
			SamplingRate:                c.SamplingRate,
			EnablePrometheusMetricsPath: c.MetricsEnabled,
			IncludeRuntimeMetrics:       true,
		},
	}
	if c.UpstreamEnabled() {
		cfg.Upstream = &upstream.Config{
			ClientID:     c.LinkedInClientID,
			ClientSecret: c.LinkedInClientSecret,
			RedirectURI:  c.LinkedInRedirectURI,
		}
	}
	return cfg
}

func seconds(d time.Duration) int64 {
	return int64(d / time.Second)
}

// durationSeconds reads key as a non-negative number of seconds.
func durationSeconds(v *viper.Viper, key string) (time.Duration, error) {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a whole number of seconds, got %q", key, raw)
	}
	if n < 0 {
		return 0, fmt.Errorf("%s must not be negative", key)
	}
	return time.Duration(n) * time.Second, nil
}
