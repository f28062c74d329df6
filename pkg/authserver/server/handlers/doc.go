// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package handlers provides HTTP handlers for the OAuth 2.1 authorization server endpoints.
//
// This package implements the HTTP layer for the authorization server, including:
//   - OAuth and OIDC discovery (/.well-known/oauth-authorization-server, /.well-known/openid-configuration)
//   - Protected resource metadata (/.well-known/oauth-protected-resource)
//   - JWKS endpoint (/.well-known/jwks.json)
//   - OAuth endpoints (authorize, callback, token, register, logout)
//   - Bearer token middleware for protected routes
//
// The Handler struct coordinates all handlers and provides route registration methods
// for integrating with standard Go HTTP servers.
package handlers
