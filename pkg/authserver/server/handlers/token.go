// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"net/http"
	"net/url"

	"github.com/ory/fosite"

	apierrors "github.com/stacklok/mcp-linkedin/pkg/api/errors"
	"github.com/stacklok/mcp-linkedin/pkg/authserver/token"
	"github.com/stacklok/mcp-linkedin/pkg/errors"
)

// maxTokenBodySize caps token request bodies.
const maxTokenBodySize = 16 * 1024

// TokenHandler handles POST /oauth/token requests.
func (h *Handler) TokenHandler(w http.ResponseWriter, req *http.Request) {
	apierrors.ErrorHandler(h.token)(w, req)
}

func (h *Handler) token(w http.ResponseWriter, req *http.Request) error {
	ctx := req.Context()

	req.Body = http.MaxBytesReader(w, req.Body, maxTokenBodySize)
	if err := req.ParseForm(); err != nil {
		return errors.NewInvalidRequestError("malformed token request", err)
	}
	form := req.PostForm

	clientID, secret, err := clientCredentials(req, form)
	if err != nil {
		return err
	}
	client, err := h.issuer.AuthenticateClient(ctx, clientID, secret)
	if err != nil {
		return err
	}

	grantType := form.Get("grant_type")
	if !client.HasGrantType(grantType) {
		return errors.NewUnsupportedGrantTypeError("grant_type is not supported for this client", nil)
	}

	var pair *token.TokenPair
	switch grantType {
	case string(fosite.GrantTypeAuthorizationCode):
		pair, err = h.issuer.ExchangeCode(ctx, token.ExchangeRequest{
			Code:         form.Get("code"),
			CodeVerifier: form.Get("code_verifier"),
			ClientID:     client.ID,
			RedirectURI:  form.Get("redirect_uri"),
		})
	case string(fosite.GrantTypeRefreshToken):
		pair, err = h.issuer.Refresh(ctx, token.RefreshRequest{
			RefreshToken: form.Get("refresh_token"),
			ClientID:     client.ID,
			Scope:        form.Get("scope"),
		})
	default:
		return errors.NewUnsupportedGrantTypeError("grant_type must be authorization_code or refresh_token", nil)
	}
	if err != nil {
		return err
	}

	apierrors.WriteJSON(w, http.StatusOK, pair)
	return nil
}

// clientCredentials reads client_secret_basic or client_secret_post
// credentials; presenting both is an error (RFC 6749 Section 2.3).
func clientCredentials(req *http.Request, form url.Values) (string, string, error) {
	basicID, basicSecret, hasBasic := req.BasicAuth()
	formID, formSecret := form.Get("client_id"), form.Get("client_secret")

	if hasBasic {
		if formSecret != "" {
			return "", "", errors.NewInvalidRequestError("client credentials must use a single method", nil)
		}
		// RFC 6749 Section 2.3.1 form-encodes the credentials.
		id, err := url.QueryUnescape(basicID)
		if err != nil {
			return "", "", errors.NewInvalidClientError("malformed client credentials", nil)
		}
		secret, err := url.QueryUnescape(basicSecret)
		if err != nil {
			return "", "", errors.NewInvalidClientError("malformed client credentials", nil)
		}
		if formID != "" && formID != id {
			return "", "", errors.NewInvalidClientError("client_id does not match the authorization header", nil)
		}
		return id, secret, nil
	}
	if formID == "" {
		return "", "", errors.NewInvalidClientError("client_id is required", nil)
	}
	return formID, formSecret, nil
}
