// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package registration validates OAuth 2.0 Dynamic Client Registration
// requests (RFC 7591) and matches redirect URIs against registered clients.
package registration

import (
	"fmt"
	"net/url"
	"slices"
	"strings"

	"github.com/ory/fosite"

	"github.com/stacklok/mcp-linkedin/pkg/errors"
)

// Limits on registration metadata.
const (
	MaxRedirectURICount = 10
	MaxClientNameLength = 256
)

// Token endpoint client authentication methods.
const (
	AuthMethodNone              = "none"
	AuthMethodClientSecretPost  = "client_secret_post"
	AuthMethodClientSecretBasic = "client_secret_basic"
)

// SupportedAuthMethods lists the token endpoint auth methods in discovery order.
var SupportedAuthMethods = []string{AuthMethodNone, AuthMethodClientSecretPost, AuthMethodClientSecretBasic}

// ResponseTypeCode is the only response type the server issues.
const ResponseTypeCode = "code"

// DCRRequest is a registration request (RFC 7591 Section 2).
type DCRRequest struct {
	RedirectURIs            []string `json:"redirect_uris"`
	ClientName              string   `json:"client_name,omitempty"`
	TokenEndpointAuthMethod string   `json:"token_endpoint_auth_method,omitempty"`
	GrantTypes              []string `json:"grant_types,omitempty"`
	ResponseTypes           []string `json:"response_types,omitempty"`
	Scope                   string   `json:"scope,omitempty"`
}

// DCRResponse is a successful registration response (RFC 7591 Section 3.2.1).
// ClientSecret is only ever present in this response.
type DCRResponse struct {
	ClientID                string   `json:"client_id"`
	ClientSecret            string   `json:"client_secret,omitempty"`
	ClientIDIssuedAt        int64    `json:"client_id_issued_at,omitempty"`
	ClientSecretExpiresAt   int64    `json:"client_secret_expires_at"`
	RedirectURIs            []string `json:"redirect_uris"`
	ClientName              string   `json:"client_name,omitempty"`
	TokenEndpointAuthMethod string   `json:"token_endpoint_auth_method"`
	GrantTypes              []string `json:"grant_types"`
	ResponseTypes           []string `json:"response_types"`
	Scope                   string   `json:"scope,omitempty"`
}

var (
	defaultGrantTypes = []string{
		string(fosite.GrantTypeAuthorizationCode),
		string(fosite.GrantTypeRefreshToken),
	}
	defaultResponseTypes = []string{ResponseTypeCode}
)

// ValidateDCRRequest validates req and returns a copy with defaults applied.
// Errors are invalid_redirect_uri or invalid_client_metadata.
func ValidateDCRRequest(req *DCRRequest, supportedScopes []string) (*DCRRequest, error) {
	if len(req.RedirectURIs) == 0 {
		return nil, errors.NewInvalidRedirectURIError("redirect_uris is required", nil)
	}
	if len(req.RedirectURIs) > MaxRedirectURICount {
		return nil, errors.NewInvalidRedirectURIError(
			fmt.Sprintf("too many redirect_uris (maximum %d)", MaxRedirectURICount), nil)
	}
	for _, uri := range req.RedirectURIs {
		if err := ValidateRedirectURI(uri); err != nil {
			return nil, err
		}
	}

	if len(req.ClientName) > MaxClientNameLength {
		return nil, errors.NewInvalidClientMetadataError(
			fmt.Sprintf("client_name too long (maximum %d characters)", MaxClientNameLength), nil)
	}

	authMethod := req.TokenEndpointAuthMethod
	if authMethod == "" {
		authMethod = AuthMethodNone
	}
	if !slices.Contains(SupportedAuthMethods, authMethod) {
		return nil, errors.NewInvalidClientMetadataError(
			"unsupported token_endpoint_auth_method: "+authMethod, nil)
	}

	grantTypes, err := validateGrantTypes(req.GrantTypes)
	if err != nil {
		return nil, err
	}
	responseTypes, err := validateResponseTypes(req.ResponseTypes)
	if err != nil {
		return nil, err
	}

	scope := ""
	if req.Scope != "" {
		scopes, err := ValidateScopes(req.Scope, supportedScopes)
		if err != nil {
			return nil, errors.NewInvalidClientMetadataError("invalid scope", err)
		}
		scope = strings.Join(scopes, " ")
	}

	return &DCRRequest{
		RedirectURIs:            slices.Clone(req.RedirectURIs),
		ClientName:              req.ClientName,
		TokenEndpointAuthMethod: authMethod,
		GrantTypes:              grantTypes,
		ResponseTypes:           responseTypes,
		Scope:                   scope,
	}, nil
}

func validateGrantTypes(grantTypes []string) ([]string, error) {
	if len(grantTypes) == 0 {
		return slices.Clone(defaultGrantTypes), nil
	}
	if !slices.Contains(grantTypes, string(fosite.GrantTypeAuthorizationCode)) {
		return nil, errors.NewInvalidClientMetadataError("grant_types must include 'authorization_code'", nil)
	}
	for _, gt := range grantTypes {
		if !slices.Contains(defaultGrantTypes, gt) {
			return nil, errors.NewInvalidClientMetadataError("unsupported grant_type: "+gt, nil)
		}
	}
	return slices.Clone(grantTypes), nil
}

func validateResponseTypes(responseTypes []string) ([]string, error) {
	if len(responseTypes) == 0 {
		return slices.Clone(defaultResponseTypes), nil
	}
	for _, rt := range responseTypes {
		if rt != ResponseTypeCode {
			return nil, errors.NewInvalidClientMetadataError("unsupported response_type: "+rt, nil)
		}
	}
	return slices.Clone(responseTypes), nil
}

// ValidateRedirectURI requires an absolute URI without a fragment. http and
// https URIs need a host; private-use schemes (RFC 8252 Section 7.1) are
// accepted for native clients.
func ValidateRedirectURI(uri string) error {
	u, err := url.Parse(uri)
	if err != nil {
		return errors.NewInvalidRedirectURIError("redirect_uri is not a valid URI", nil)
	}
	if !u.IsAbs() {
		return errors.NewInvalidRedirectURIError("redirect_uri must be an absolute URI", nil)
	}
	if u.Fragment != "" || strings.Contains(uri, "#") {
		return errors.NewInvalidRedirectURIError("redirect_uri must not contain a fragment", nil)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		if u.Hostname() == "" {
			return errors.NewInvalidRedirectURIError("redirect_uri must include a host", nil)
		}
	case "javascript", "data", "file":
		return errors.NewInvalidRedirectURIError("redirect_uri scheme not allowed: "+u.Scheme, nil)
	}
	return nil
}
