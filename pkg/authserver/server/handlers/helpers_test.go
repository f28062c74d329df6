// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	clocktesting "k8s.io/utils/clock/testing"

	"github.com/stacklok/mcp-linkedin/pkg/authserver/broker"
	"github.com/stacklok/mcp-linkedin/pkg/authserver/server/crypto"
	"github.com/stacklok/mcp-linkedin/pkg/authserver/server/keys"
	"github.com/stacklok/mcp-linkedin/pkg/authserver/server/registration"
	"github.com/stacklok/mcp-linkedin/pkg/authserver/session"
	"github.com/stacklok/mcp-linkedin/pkg/authserver/storage"
	"github.com/stacklok/mcp-linkedin/pkg/authserver/token"
	"github.com/stacklok/mcp-linkedin/pkg/authserver/upstream"
	"github.com/stacklok/mcp-linkedin/pkg/authz"
)

const (
	testIssuer      = "https://mcp.example.com"
	testRedirectURI = "http://127.0.0.1:33418/callback"
	testState       = "client-state-123"
)

// mockUpstream implements upstream.Provider for testing.
type mockUpstream struct {
	exchangeErr          error
	userInfoErr          error
	identity             *upstream.UserInfo
	capturedState        string
	capturedCode         string
	capturedCodeVerifier string
	capturedNonce        string
}

// Compile-time interface check.
var _ upstream.Provider = (*mockUpstream)(nil)

func (m *mockUpstream) AuthorizationURL(state, codeVerifier, nonce string) string {
	m.capturedState = state
	m.capturedCodeVerifier = codeVerifier
	m.capturedNonce = nonce
	return "https://www.linkedin.com/oauth/v2/authorization?state=" + url.QueryEscape(state)
}

func (m *mockUpstream) ExchangeCode(_ context.Context, code, codeVerifier, nonce string) (*upstream.Tokens, error) {
	m.capturedCode = code
	if codeVerifier != m.capturedCodeVerifier {
		return nil, stderrors.New("verifier mismatch")
	}
	if nonce != m.capturedNonce {
		return nil, upstream.ErrNonceMismatch
	}
	if m.exchangeErr != nil {
		return nil, m.exchangeErr
	}
	return &upstream.Tokens{
		AccessToken:  "li-access",
		RefreshToken: "li-refresh",
		ExpiresIn:    time.Hour,
		Identity:     m.identity,
	}, nil
}

func (*mockUpstream) RefreshTokens(context.Context, string) (*upstream.Tokens, error) {
	return nil, stderrors.New("not used")
}

func (m *mockUpstream) UserInfo(context.Context, string) (*upstream.UserInfo, error) {
	if m.userInfoErr != nil {
		return nil, m.userInfoErr
	}
	return &upstream.UserInfo{Subject: "li-user-1", Name: "Ada Lovelace"}, nil
}

type testServer struct {
	handler  *Handler
	router   http.Handler
	issuer   *token.Issuer
	store    storage.Store
	sessions *session.Manager
	broker   *broker.Broker
	upstream *mockUpstream
	clock    *clocktesting.FakeClock
}

func newTestServer(t *testing.T, withUpstream bool) *testServer {
	t.Helper()

	fc := clocktesting.NewFakeClock(time.Unix(1_700_000_000, 0))
	store := storage.NewMemoryStore(storage.WithClock(fc))
	t.Cleanup(func() { _ = store.Close() })

	keyProvider := keys.NewGeneratingProvider(keys.DefaultAlgorithm)
	sessions := session.NewManager(store, session.WithClock(fc))
	issuer, err := token.NewIssuer(token.Config{Issuer: testIssuer}, store, keyProvider, sessions, token.WithClock(fc))
	require.NoError(t, err)

	ts := &testServer{issuer: issuer, store: store, sessions: sessions, clock: fc}
	opts := []Option{WithClock(fc)}
	if withUpstream {
		ts.upstream = &mockUpstream{}
		ts.broker = broker.New(store, ts.upstream, authz.NewGuard(), broker.WithClock(fc))
		opts = append(opts, WithUpstream(ts.upstream, ts.broker))
	}
	ts.handler = NewHandler(Config{Issuer: testIssuer + "/"}, issuer, keyProvider, store, sessions, opts...)
	ts.router = ts.handler.Routes()
	return ts
}

func (ts *testServer) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

// registerClient registers a client through the issuer.
func (ts *testServer) registerClient(t *testing.T, authMethod string) *registration.DCRResponse {
	t.Helper()
	resp, err := ts.issuer.RegisterClient(context.Background(), &registration.DCRRequest{
		RedirectURIs:            []string{testRedirectURI},
		ClientName:              "test client",
		TokenEndpointAuthMethod: authMethod,
	})
	require.NoError(t, err)
	return resp
}

func authorizeQuery(clientID, challenge string) url.Values {
	return url.Values{
		"response_type":         {"code"},
		"client_id":             {clientID},
		"redirect_uri":          {testRedirectURI},
		"scope":                 {"linkedin.posts linkedin.profile"},
		"state":                 {testState},
		"code_challenge":        {challenge},
		"code_challenge_method": {"S256"},
	}
}

func (ts *testServer) authorize(t *testing.T, q url.Values) *httptest.ResponseRecorder {
	t.Helper()
	return ts.do(t, httptest.NewRequest(http.MethodGet, "/oauth/authorize?"+q.Encode(), nil))
}

// authorizeCode runs the direct authorization flow and returns the code
// and the verifier.
func (ts *testServer) authorizeCode(t *testing.T, clientID string) (string, string) {
	t.Helper()
	verifier := crypto.GeneratePKCEVerifier()
	rec := ts.authorize(t, authorizeQuery(clientID, crypto.ComputePKCEChallenge(verifier)))
	require.Equal(t, http.StatusFound, rec.Code, rec.Body.String())

	loc := redirectParams(t, rec)
	require.Empty(t, loc.Get("error"), loc.Get("error_description"))
	return loc.Get("code"), verifier
}

func redirectParams(t *testing.T, rec *httptest.ResponseRecorder) url.Values {
	t.Helper()
	u, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	return u.Query()
}

func tokenRequest(form url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/oauth/token", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func (ts *testServer) exchange(t *testing.T, clientID string) *token.TokenPair {
	t.Helper()
	code, verifier := ts.authorizeCode(t, clientID)
	rec := ts.do(t, tokenRequest(url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"code_verifier": {verifier},
		"client_id":     {clientID},
		"redirect_uri":  {testRedirectURI},
	}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var pair token.TokenPair
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pair))
	return &pair
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}
