// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"

	"github.com/stacklok/mcp-linkedin/pkg/authserver"
	"github.com/stacklok/mcp-linkedin/pkg/config"
	"github.com/stacklok/mcp-linkedin/pkg/logger"
	"github.com/stacklok/mcp-linkedin/pkg/versions"
)

const (
	middlewareTimeout = 60 * time.Second
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 15 * time.Second
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the authorization server",
		Long: `Start the authorization server and listen for HTTP requests until interrupted.

Configuration is read from the environment (OAUTH_SERVER_URL, SESSION_PROVIDER,
ARTIFACT_PROVIDER, LINKEDIN_CLIENT_ID, ...) and the optional --config file.`,
		RunE: runServe,
	}
	cmd.Flags().String(config.KeyHost, config.DefaultHost, "Host address to bind the server to")
	cmd.Flags().Int(config.KeyPort, config.DefaultPort, "Port to bind the server to")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig(newServerViper(cmd))
	if err != nil {
		return err
	}
	if !cfg.UpstreamEnabled() {
		logger.Warnw("LinkedIn sign-in disabled, sessions are created at the authorization endpoint",
			"oauth_enabled", cfg.OAuthEnabled)
	}

	srv, err := authserver.New(ctx, cfg.AuthServer(versions.GetVersionInfo().Version))
	if err != nil {
		return fmt.Errorf("failed to create authorization server: %w", err)
	}

	return serve(ctx, cfg.Address(), srv)
}

// serve runs srv on address until ctx is cancelled, then drains in-flight
// requests and closes srv.
func serve(ctx context.Context, address string, srv authserver.Server) error {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.Recoverer,
		middleware.Timeout(middlewareTimeout),
	)
	r.Mount("/", srv.Handler())

	httpSrv := &http.Server{
		BaseContext:       func(net.Listener) context.Context { return ctx },
		Addr:              address,
		Handler:           r,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	listener, err := net.Listen("tcp", address)
	if err != nil {
		_ = srv.Close(context.Background())
		return fmt.Errorf("failed to listen on %s: %w", address, err)
	}
	logger.Infow("starting HTTP server", "address", listener.Addr().String())

	serveErr := make(chan error, 1)
	go func() {
		if err := httpSrv.Serve(listener); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-serveErr:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		runErr = stderrors.Join(runErr, fmt.Errorf("server shutdown failed: %w", err))
	}
	if err := srv.Close(shutdownCtx); err != nil {
		runErr = stderrors.Join(runErr, fmt.Errorf("failed to close authorization server: %w", err))
	}

	logger.Info("HTTP server stopped")
	return runErr
}
