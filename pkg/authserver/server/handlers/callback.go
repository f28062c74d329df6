// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"net/http"

	apierrors "github.com/stacklok/mcp-linkedin/pkg/api/errors"
	"github.com/stacklok/mcp-linkedin/pkg/authserver/storage"
	"github.com/stacklok/mcp-linkedin/pkg/authserver/token"
	"github.com/stacklok/mcp-linkedin/pkg/errors"
	"github.com/stacklok/mcp-linkedin/pkg/logger"
)

// CallbackHandler handles GET /oauth/callback requests from the upstream
// provider. It exchanges the upstream code, starts a session for the
// upstream user, keeps the upstream tokens and completes the client's
// original authorization request with a code of our own.
func (h *Handler) CallbackHandler(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	q := req.URL.Query()

	if h.upstream == nil {
		apierrors.WriteError(w, errors.NewNotFoundError("no upstream provider is configured", nil))
		return
	}

	upstreamState := q.Get("state")
	if upstreamState == "" {
		apierrors.WriteError(w, errors.NewInvalidRequestError("state is required", nil))
		return
	}

	key := storage.Key(keyPending, upstreamState)
	pending, _, err := storage.GetJSON[pendingAuthorization](ctx, h.store, key)
	if err != nil {
		if errors.IsNotFound(err) {
			err = errors.NewInvalidRequestError("unknown or expired authorization state", nil)
		}
		apierrors.WriteError(w, err)
		return
	}
	// The pending authorization is single use.
	if err := h.store.Delete(ctx, key); err != nil {
		apierrors.WriteError(w, err)
		return
	}

	if upstreamErr := q.Get("error"); upstreamErr != "" {
		logger.Infow("upstream provider denied authorization",
			"client_id", pending.ClientID,
			"error", upstreamErr,
		)
		redirectError(w, req, pending.RedirectURI, pending.State,
			errors.NewAccessDeniedError("the user or the upstream provider denied the request", nil))
		return
	}

	code := q.Get("code")
	if code == "" {
		redirectError(w, req, pending.RedirectURI, pending.State,
			errors.NewInvalidRequestError("upstream callback is missing the code", nil))
		return
	}

	tokens, err := h.upstream.ExchangeCode(ctx, code, pending.UpstreamVerifier, pending.UpstreamNonce)
	if err != nil {
		logger.Warnw("upstream code exchange failed", "client_id", pending.ClientID, "error", err)
		redirectError(w, req, pending.RedirectURI, pending.State,
			errors.NewUpstreamAuthRequiredError("upstream authorization failed", err))
		return
	}
	// The verified ID token names the user. Userinfo is only consulted when
	// the provider sent none.
	user := tokens.Identity
	if user == nil {
		user, err = h.upstream.UserInfo(ctx, tokens.AccessToken)
		if err != nil {
			logger.Warnw("upstream userinfo request failed", "client_id", pending.ClientID, "error", err)
			redirectError(w, req, pending.RedirectURI, pending.State,
				errors.NewUpstreamAuthRequiredError("failed to identify the upstream user", err))
			return
		}
	}

	s, err := h.sessions.Create(ctx, user.Subject, map[string]string{
		"client_id": pending.ClientID,
		"name":      user.Name,
	})
	if err != nil {
		redirectError(w, req, pending.RedirectURI, pending.State, err)
		return
	}
	if err := h.broker.Store(ctx, s.ID, user.Subject, tokens); err != nil {
		redirectError(w, req, pending.RedirectURI, pending.State, err)
		return
	}

	mcpCode, err := h.issuer.IssueAuthCode(ctx, token.AuthCodeRequest{
		ClientID:            pending.ClientID,
		RedirectURI:         pending.RedirectURI,
		Scope:               pending.Scope,
		CodeChallenge:       pending.CodeChallenge,
		CodeChallengeMethod: pending.CodeChallengeMethod,
		SessionID:           s.ID,
	})
	if err != nil {
		redirectError(w, req, pending.RedirectURI, pending.State, err)
		return
	}

	logger.Infow("upstream authorization completed",
		"client_id", pending.ClientID,
		"session_id", s.ID,
	)
	redirectCode(w, req, pending.RedirectURI, mcpCode, pending.State)
}
