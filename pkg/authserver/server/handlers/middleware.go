// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"

	apierrors "github.com/stacklok/mcp-linkedin/pkg/api/errors"
	"github.com/stacklok/mcp-linkedin/pkg/authserver/session"
	"github.com/stacklok/mcp-linkedin/pkg/authserver/token"
	"github.com/stacklok/mcp-linkedin/pkg/errors"
	"github.com/stacklok/mcp-linkedin/pkg/oauth"
)

type claimsKey struct{}

// ClaimsFromContext returns the validated access token claims of the
// request, or nil outside RequireBearer.
func ClaimsFromContext(ctx context.Context) *token.AccessClaims {
	c, _ := ctx.Value(claimsKey{}).(*token.AccessClaims)
	return c
}

// RequireBearer authenticates the request with a bearer access token,
// touches the caller's session and puts its id in the request context.
func (h *Handler) RequireBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		raw, ok := bearerToken(r)
		if !ok {
			h.writeUnauthorized(w, errors.NewTokenRevokedError("bearer token required", nil), false)
			return
		}

		claims, err := h.issuer.ValidateAccessToken(ctx, raw)
		if err != nil {
			h.writeUnauthorized(w, err, true)
			return
		}
		if _, err := h.sessions.Touch(ctx, claims.SessionID); err != nil {
			if errors.IsNotFound(err) {
				err = errors.NewTokenRevokedError("session has ended", nil)
			}
			h.writeUnauthorized(w, err, true)
			return
		}

		ctx = session.WithID(ctx, claims.SessionID)
		ctx = context.WithValue(ctx, claimsKey{}, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// writeUnauthorized answers per RFC 6750 Section 3, pointing the client at
// the protected resource metadata (RFC 9728 Section 5.1).
func (h *Handler) writeUnauthorized(w http.ResponseWriter, err error, presented bool) {
	code := errors.Code(err)
	if code != http.StatusUnauthorized {
		apierrors.WriteError(w, err)
		return
	}
	challenge := fmt.Sprintf(`Bearer resource_metadata="%s"`, h.endpoint(oauth.WellKnownProtectedResourcePath))
	if presented {
		challenge += `, error="invalid_token"`
	}
	w.Header().Set("WWW-Authenticate", challenge)

	var e *errors.Error
	desc := ""
	if stderrors.As(err, &e) {
		desc = e.Message
	}
	apierrors.WriteJSON(w, code, apierrors.Body{Error: errors.TypeOf(err), ErrorDescription: desc})
}

func bearerToken(r *http.Request) (string, bool) {
	scheme, raw, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	raw = strings.TrimSpace(raw)
	return raw, raw != ""
}

// LogoutHandler handles POST /oauth/logout. It destroys the caller's
// session, which revokes its tokens and releases everything it owns.
func (h *Handler) LogoutHandler(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	if err := h.sessions.Destroy(ctx, session.IDFromContext(ctx)); err != nil {
		apierrors.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
