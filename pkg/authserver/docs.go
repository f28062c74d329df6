// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package authserver assembles the trust-and-isolation layer of the
// LinkedIn MCP server into one HTTP handler:
//   - OAuth 2.1 authorization code flow with PKCE (RFC 7636)
//   - Dynamic Client Registration (RFC 7591)
//   - ES256 JWT access tokens and rotating refresh tokens
//   - optional LinkedIn delegation with a refreshing upstream token broker
//   - discovery (RFC 8414, OIDC, RFC 9728) and JWKS
//   - session-owned drafts and artifacts with presigned previews
//
// # Usage
//
//	srv, err := authserver.New(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	defer srv.Close(ctx)
//	http.ListenAndServe(":8000", srv.Handler())
//
// Every session owns its token families, drafts, artifacts and upstream
// tokens. Destroying a session (logout) releases all of them.
package authserver
