// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package oauth

// Well-known paths.
const (
	WellKnownAuthorizationServerPath = "/.well-known/oauth-authorization-server"
	WellKnownOIDCConfigurationPath   = "/.well-known/openid-configuration"
	WellKnownProtectedResourcePath   = "/.well-known/oauth-protected-resource"
	WellKnownJWKSPath                = "/.well-known/jwks.json"
)

// ResponseTypeCode is the only response type the server supports.
const ResponseTypeCode = "code"

// AuthorizationServerMetadata is the OAuth 2.0 Authorization Server
// Metadata document (RFC 8414).
type AuthorizationServerMetadata struct {
	Issuer                            string   `json:"issuer"`
	AuthorizationEndpoint             string   `json:"authorization_endpoint"`
	TokenEndpoint                     string   `json:"token_endpoint"`
	JWKSURI                           string   `json:"jwks_uri,omitempty"`
	RegistrationEndpoint              string   `json:"registration_endpoint,omitempty"`
	ScopesSupported                   []string `json:"scopes_supported,omitempty"`
	ResponseTypesSupported            []string `json:"response_types_supported"`
	GrantTypesSupported               []string `json:"grant_types_supported,omitempty"`
	TokenEndpointAuthMethodsSupported []string `json:"token_endpoint_auth_methods_supported,omitempty"`
	CodeChallengeMethodsSupported     []string `json:"code_challenge_methods_supported,omitempty"`
}

// OIDCDiscoveryDocument extends the RFC 8414 metadata with the fields OIDC
// Discovery 1.0 requires.
type OIDCDiscoveryDocument struct {
	AuthorizationServerMetadata

	SubjectTypesSupported            []string `json:"subject_types_supported"`
	IDTokenSigningAlgValuesSupported []string `json:"id_token_signing_alg_values_supported"`
}

// ProtectedResourceMetadata is the OAuth 2.0 Protected Resource Metadata
// document (RFC 9728).
type ProtectedResourceMetadata struct {
	Resource               string   `json:"resource"`
	AuthorizationServers   []string `json:"authorization_servers"`
	ScopesSupported        []string `json:"scopes_supported,omitempty"`
	BearerMethodsSupported []string `json:"bearer_methods_supported,omitempty"`
	ResourceName           string   `json:"resource_name,omitempty"`
}
