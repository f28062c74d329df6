// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package authserver

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"k8s.io/utils/clock"

	apierrors "github.com/stacklok/mcp-linkedin/pkg/api/errors"
	"github.com/stacklok/mcp-linkedin/pkg/artifacts"
	"github.com/stacklok/mcp-linkedin/pkg/authserver/broker"
	"github.com/stacklok/mcp-linkedin/pkg/authserver/server/handlers"
	"github.com/stacklok/mcp-linkedin/pkg/authserver/server/keys"
	"github.com/stacklok/mcp-linkedin/pkg/authserver/session"
	"github.com/stacklok/mcp-linkedin/pkg/authserver/storage"
	"github.com/stacklok/mcp-linkedin/pkg/authserver/token"
	"github.com/stacklok/mcp-linkedin/pkg/authserver/upstream"
	"github.com/stacklok/mcp-linkedin/pkg/authz"
	"github.com/stacklok/mcp-linkedin/pkg/drafts"
	"github.com/stacklok/mcp-linkedin/pkg/errors"
	"github.com/stacklok/mcp-linkedin/pkg/logger"
	"github.com/stacklok/mcp-linkedin/pkg/telemetry"
)

// Server is the assembled authorization server and its session-owned
// resources.
type Server interface {
	// Handler returns an http.Handler serving every route:
	//   - /.well-known/oauth-authorization-server, /.well-known/openid-configuration
	//   - /.well-known/oauth-protected-resource, /.well-known/jwks.json
	//   - /oauth/authorize, /oauth/callback, /oauth/token, /oauth/register, /oauth/logout
	//   - /preview/{artifact_id}
	//   - /api/drafts (bearer protected)
	//   - /metrics, /health
	Handler() http.Handler

	// RequireBearer authenticates a request with an access token and puts
	// the caller's session id in its context. Mount MCP endpoints behind it.
	RequireBearer(next http.Handler) http.Handler

	Sessions() *session.Manager
	Drafts() *drafts.Store
	Artifacts() *artifacts.Store

	// Broker returns the upstream token broker, or nil when the server runs
	// without an upstream provider.
	Broker() *broker.Broker

	// Close stops background work and releases the store and telemetry.
	Close(ctx context.Context) error
}

// New creates the server described by cfg.
func New(ctx context.Context, cfg Config) (Server, error) {
	return newServer(ctx, cfg)
}

type server struct {
	router    http.Handler
	handler   *handlers.Handler
	store     storage.Store
	sessions  *session.Manager
	drafts    *drafts.Store
	artifacts *artifacts.Store
	broker    *broker.Broker
	telemetry *telemetry.Provider

	stopSweep chan struct{}
	sweepDone chan struct{}
	closeOnce sync.Once
}

// upstreamProviderFactory creates the upstream provider from configuration.
type upstreamProviderFactory func(cfg upstream.Config) (upstream.Provider, error)

type serverOptions struct {
	upstreamFactory upstreamProviderFactory
	store           storage.Store
	clock           clock.WithTicker
}

type serverOption func(*serverOptions)

func defaultUpstreamFactory(cfg upstream.Config) (upstream.Provider, error) {
	p, err := upstream.NewLinkedInProvider(cfg)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// withUpstreamFactory replaces the LinkedIn provider, for tests.
func withUpstreamFactory(f upstreamProviderFactory) serverOption {
	return func(o *serverOptions) {
		o.upstreamFactory = f
	}
}

// withStore uses a pre-built store instead of cfg.Storage.
func withStore(s storage.Store) serverOption {
	return func(o *serverOptions) {
		o.store = s
	}
}

// withClock sets the clock of every component.
func withClock(c clock.WithTicker) serverOption {
	return func(o *serverOptions) {
		o.clock = c
	}
}

func newServer(ctx context.Context, cfg Config, opts ...serverOption) (_ *server, retErr error) {
	logger.Debug("initializing authorization server")

	options := &serverOptions{
		upstreamFactory: defaultUpstreamFactory,
		clock:           clock.RealClock{},
	}
	for _, opt := range opts {
		opt(options)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	c := options.clock

	s := &server{}
	defer func() {
		if retErr != nil {
			s.release(ctx)
		}
	}()

	tp, err := telemetry.NewProvider(ctx, cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("failed to create telemetry provider: %w", err)
	}
	s.telemetry = tp
	metrics, err := telemetry.NewMetrics(tp.MeterProvider())
	if err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	s.store = options.store
	if s.store == nil {
		if s.store, err = storage.NewStore(ctx, &cfg.Storage); err != nil {
			return nil, fmt.Errorf("failed to create session store: %w", err)
		}
	}

	keyProvider, err := keys.NewProviderFromConfig(cfg.Keys)
	if err != nil {
		return nil, fmt.Errorf("failed to load signing keys: %w", err)
	}
	signingKey, err := keyProvider.SigningKey(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get signing key: %w", err)
	}

	s.sessions = session.NewManager(s.store, session.WithTTL(cfg.SessionTTL), session.WithClock(c))
	issuer, err := token.NewIssuer(cfg.Token, s.store, keyProvider, s.sessions,
		token.WithClock(c),
		token.WithMetrics(metrics),
	)
	if err != nil {
		return nil, err
	}
	guard := authz.NewGuard()

	handlerOpts := []handlers.Option{handlers.WithClock(c)}
	if cfg.Upstream != nil {
		provider, err := options.upstreamFactory(*cfg.Upstream)
		if err != nil {
			return nil, fmt.Errorf("failed to create upstream provider: %w", err)
		}
		s.broker = broker.New(s.store, provider, guard,
			broker.WithClock(c),
			broker.WithStoreTTL(cfg.ExternalTokenTTL),
			broker.WithMetrics(metrics),
		)
		s.sessions.OnDestroy("upstream", s.broker.Delete)
		handlerOpts = append(handlerOpts, handlers.WithUpstream(provider, s.broker))
		logger.Infow("upstream provider configured", "redirect_uri", cfg.Upstream.RedirectURI)
	}

	backend, err := artifacts.NewBackend(ctx, cfg.Artifacts.Backend)
	if err != nil {
		return nil, fmt.Errorf("failed to create artifact backend: %w", err)
	}
	s.artifacts, err = artifacts.NewStore(backend, cfg.Issuer,
		artifacts.WithTenant(cfg.Artifacts.Tenant),
		artifacts.WithSigningKey(cfg.Artifacts.SigningKey),
		artifacts.WithClock(c),
		artifacts.WithMetrics(metrics),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create artifact store: %w", err)
	}
	s.sessions.OnDestroy("artifacts", s.artifacts.DeleteSession)

	s.drafts = drafts.NewStore(s.store, guard, drafts.WithTTL(cfg.SessionTTL), drafts.WithClock(c))
	s.sessions.OnDestroy("drafts", s.drafts.DeleteSession)

	s.handler = handlers.NewHandler(handlers.Config{
		Issuer:      cfg.Issuer,
		ResourceURL: cfg.ResourceURL,
	}, issuer, keyProvider, s.store, s.sessions, handlerOpts...)
	s.router = s.routes(tp)

	s.startSweeper(cfg.Artifacts.SweepInterval, c)

	logger.Infow("authorization server initialized",
		"issuer", cfg.Issuer,
		"signing_key_id", signingKey.KeyID,
		"session_store", cfg.Storage.Type,
		"artifact_backend", backend.Name(),
		"upstream", cfg.Upstream != nil,
	)
	return s, nil
}

func (s *server) routes(tp *telemetry.Provider) http.Handler {
	r := chi.NewRouter()
	r.Use(telemetry.NewHTTPMiddleware(tp.TracerProvider(), tp.MeterProvider()))

	s.handler.OAuthRoutes(r)
	s.handler.WellKnownRoutes(r)
	s.artifacts.Routes(r)
	r.Group(func(r chi.Router) {
		r.Use(s.handler.RequireBearer)
		drafts.NewAPI(s.drafts, s.artifacts).Routes(r)
	})

	r.Get("/health", s.health)
	if h := tp.PrometheusHandler(); h != nil {
		r.Handle("/metrics", h)
	}
	return r
}

type pinger interface {
	Ping(ctx context.Context) error
}

func (s *server) health(w http.ResponseWriter, r *http.Request) {
	if p, ok := s.store.(pinger); ok {
		if err := p.Ping(r.Context()); err != nil {
			apierrors.WriteError(w, errors.NewStoreUnavailableError("session store is unreachable", err))
			return
		}
	}
	apierrors.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// startSweeper removes expired artifacts every interval until Close.
func (s *server) startSweeper(interval time.Duration, c clock.WithTicker) {
	if interval <= 0 {
		return
	}
	s.stopSweep = make(chan struct{})
	s.sweepDone = make(chan struct{})

	go func() {
		defer close(s.sweepDone)
		ticker := c.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-s.stopSweep:
				return
			case <-ticker.C():
				if _, err := s.artifacts.Sweep(context.Background()); err != nil {
					logger.Warnw("artifact sweep failed", "error", err)
				}
			}
		}
	}()
}

func (s *server) Handler() http.Handler {
	return s.router
}

func (s *server) RequireBearer(next http.Handler) http.Handler {
	return s.handler.RequireBearer(next)
}

func (s *server) Sessions() *session.Manager {
	return s.sessions
}

func (s *server) Drafts() *drafts.Store {
	return s.drafts
}

func (s *server) Artifacts() *artifacts.Store {
	return s.artifacts
}

func (s *server) Broker() *broker.Broker {
	return s.broker
}

func (s *server) Close(ctx context.Context) error {
	logger.Debug("closing authorization server")
	var err error
	s.closeOnce.Do(func() {
		err = s.release(ctx)
	})
	return err
}

func (s *server) release(ctx context.Context) error {
	if s.stopSweep != nil {
		close(s.stopSweep)
		<-s.sweepDone
	}
	var errs []error
	if s.store != nil {
		errs = append(errs, s.store.Close())
	}
	if s.telemetry != nil {
		errs = append(errs, s.telemetry.Shutdown(ctx))
	}
	return stderrors.Join(errs...)
}
