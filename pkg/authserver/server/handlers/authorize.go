// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"crypto/rand"
	stderrors "errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ory/fosite"

	apierrors "github.com/stacklok/mcp-linkedin/pkg/api/errors"
	"github.com/stacklok/mcp-linkedin/pkg/authserver/server/crypto"
	"github.com/stacklok/mcp-linkedin/pkg/authserver/server/registration"
	"github.com/stacklok/mcp-linkedin/pkg/authserver/storage"
	"github.com/stacklok/mcp-linkedin/pkg/authserver/token"
	"github.com/stacklok/mcp-linkedin/pkg/errors"
	"github.com/stacklok/mcp-linkedin/pkg/logger"
	"github.com/stacklok/mcp-linkedin/pkg/oauth"
)

const (
	keyPending = "pending"
	keyNonce   = "nonce"
)

// pendingAuthorization is the client's authorization request, parked while
// the user authenticates at the upstream provider.
type pendingAuthorization struct {
	ClientID            string    `json:"client_id"`
	RedirectURI         string    `json:"redirect_uri"`
	State               string    `json:"state"`
	Scope               string    `json:"scope"`
	CodeChallenge       string    `json:"code_challenge"`
	CodeChallengeMethod string    `json:"code_challenge_method"`
	UpstreamVerifier    string    `json:"upstream_verifier"`
	UpstreamNonce       string    `json:"upstream_nonce"`
	CreatedAt           time.Time `json:"created_at"`
}

// AuthorizeHandler handles GET /oauth/authorize requests.
//
// Problems with client_id or redirect_uri are answered with a JSON error:
// redirecting to an unverified URI would make the server an open redirector.
// Every later problem is reported to the client's redirect URI together
// with the unchanged state.
func (h *Handler) AuthorizeHandler(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	q := req.URL.Query()

	client, err := h.issuer.GetClient(ctx, q.Get("client_id"))
	if err != nil {
		if errors.IsInvalidClient(err) {
			err = errors.NewInvalidRequestError("unknown or revoked client_id", nil)
		}
		apierrors.WriteError(w, err)
		return
	}

	redirectURI := q.Get("redirect_uri")
	if redirectURI == "" && len(client.RedirectURIs) == 1 {
		redirectURI = client.RedirectURIs[0]
	}
	if redirectURI == "" || !client.MatchRedirectURI(redirectURI) {
		apierrors.WriteError(w, errors.NewInvalidRedirectURIError("redirect_uri is not registered for this client", nil))
		return
	}

	state := q.Get("state")
	fail := func(err error) {
		redirectError(w, req, redirectURI, state, err)
	}

	if q.Get("response_type") != oauth.ResponseTypeCode {
		fail(errors.NewInvalidRequestError("response_type must be code", nil))
		return
	}
	if !client.HasGrantType(string(fosite.GrantTypeAuthorizationCode)) {
		fail(errors.NewInvalidRequestError("client is not registered for the authorization_code grant", nil))
		return
	}
	if state == "" {
		fail(errors.NewInvalidRequestError("state is required", nil))
		return
	}
	challenge := q.Get("code_challenge")
	if challenge == "" {
		fail(errors.NewInvalidRequestError("code_challenge is required", nil))
		return
	}
	if q.Get("code_challenge_method") != crypto.PKCEChallengeMethodS256 {
		fail(errors.NewInvalidRequestError("code_challenge_method must be S256", nil))
		return
	}

	scopes, err := registration.ValidateScopes(q.Get("scope"), registration.SupportedScopes)
	if err != nil {
		fail(err)
		return
	}
	scope := strings.Join(scopes, " ")
	if client.Scope != "" && !registration.IsSubset(scope, client.Scope) {
		fail(errors.NewInvalidScopeError("requested scope exceeds the client registration", nil))
		return
	}

	if nonce := q.Get("nonce"); nonce != "" {
		fresh, err := h.store.PutIfAbsent(ctx, storage.Key(keyNonce, crypto.HashSecret(nonce)), []byte("1"),
			h.issuer.Config().AuthCodeTTL)
		if err != nil {
			fail(err)
			return
		}
		if !fresh {
			logger.Warnw("authorization request nonce reused", "client_id", client.ID)
			fail(errors.NewInvalidRequestError("nonce has already been used", nil))
			return
		}
	}

	if h.upstream != nil {
		h.delegateUpstream(w, req, pendingAuthorization{
			ClientID:            client.ID,
			RedirectURI:         redirectURI,
			State:               state,
			Scope:               scope,
			CodeChallenge:       challenge,
			CodeChallengeMethod: crypto.PKCEChallengeMethodS256,
		})
		return
	}

	s, err := h.sessions.Create(ctx, "", map[string]string{"client_id": client.ID})
	if err != nil {
		fail(err)
		return
	}
	code, err := h.issuer.IssueAuthCode(ctx, token.AuthCodeRequest{
		ClientID:            client.ID,
		RedirectURI:         redirectURI,
		Scope:               scope,
		CodeChallenge:       challenge,
		CodeChallengeMethod: crypto.PKCEChallengeMethodS256,
		SessionID:           s.ID,
	})
	if err != nil {
		fail(err)
		return
	}
	redirectCode(w, req, redirectURI, code, state)
}

// delegateUpstream parks the request and sends the user to the upstream
// provider. The callback resumes it by the upstream state.
func (h *Handler) delegateUpstream(w http.ResponseWriter, req *http.Request, pending pendingAuthorization) {
	ctx := req.Context()

	upstreamState := rand.Text()
	pending.UpstreamVerifier = crypto.GeneratePKCEVerifier()
	pending.UpstreamNonce = rand.Text()
	pending.CreatedAt = h.clock.Now()

	key := storage.Key(keyPending, upstreamState)
	if err := storage.PutJSON(ctx, h.store, key, pending, h.config.PendingAuthorizationTTL); err != nil {
		logger.Errorw("failed to store pending authorization", "error", err)
		redirectError(w, req, pending.RedirectURI, pending.State, err)
		return
	}

	logger.Debugw("redirecting to upstream provider", "client_id", pending.ClientID)
	http.Redirect(w, req, h.upstream.AuthorizationURL(upstreamState, pending.UpstreamVerifier, pending.UpstreamNonce), http.StatusFound)
}

// redirectCode completes a successful authorization.
func redirectCode(w http.ResponseWriter, req *http.Request, redirectURI, code, state string) {
	redirectWith(w, req, redirectURI, url.Values{"code": {code}, "state": {state}})
}

// redirectError reports err to the client per RFC 6749 Section 4.1.2.1.
// Server-side failures never expose their cause.
func redirectError(w http.ResponseWriter, req *http.Request, redirectURI, state string, err error) {
	desc := "the authorization server encountered an error"
	var e *errors.Error
	if errors.Code(err) < http.StatusInternalServerError && stderrors.As(err, &e) {
		desc = e.Message
	} else {
		logger.Errorw("authorization request failed", "error", err)
	}
	params := url.Values{
		"error":             {errors.TypeOf(err)},
		"error_description": {desc},
	}
	if state != "" {
		params.Set("state", state)
	}
	redirectWith(w, req, redirectURI, params)
}

func redirectWith(w http.ResponseWriter, req *http.Request, redirectURI string, params url.Values) {
	u, err := url.Parse(redirectURI)
	if err != nil {
		apierrors.WriteError(w, errors.NewInvalidRedirectURIError("redirect_uri is malformed", err))
		return
	}
	q := u.Query()
	for k, vs := range params {
		q[k] = vs
	}
	u.RawQuery = q.Encode()
	http.Redirect(w, req, u.String(), http.StatusFound)
}
