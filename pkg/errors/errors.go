// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package errors defines the error taxonomy shared by the authorization
// server, the session store and the artifact store. Every error carries a
// stable machine-readable type that maps onto an HTTP status.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error types
const (
	// ErrInvalidRequest is returned for malformed or missing parameters
	ErrInvalidRequest = "invalid_request"

	// ErrInvalidGrant is returned for a bad, expired or consumed code or refresh token
	ErrInvalidGrant = "invalid_grant"

	// ErrTokenReuseDetected is returned when a superseded refresh token is presented
	ErrTokenReuseDetected = "token_reuse_detected"

	// ErrTokenExpired is returned when an access token is past its expiry
	ErrTokenExpired = "token_expired"

	// ErrTokenRevoked is returned when an access token is revoked or cannot be verified
	ErrTokenRevoked = "token_revoked"

	// ErrUnsupportedGrantType is returned for unknown grant types
	ErrUnsupportedGrantType = "unsupported_grant_type"

	// ErrInvalidClientMetadata is returned when registration metadata is rejected
	ErrInvalidClientMetadata = "invalid_client_metadata"

	// ErrInvalidRedirectURI is returned when a redirect URI is malformed or unregistered
	ErrInvalidRedirectURI = "invalid_redirect_uri"

	// ErrInvalidClient is returned when client authentication fails
	ErrInvalidClient = "invalid_client"

	// ErrInvalidScope is returned when a requested scope is malformed or unsupported
	ErrInvalidScope = "invalid_scope"

	// ErrNotFound is returned for absent resources and for denied access to sensitive ones
	ErrNotFound = "not_found"

	// ErrAccessDenied is returned when the user or the upstream provider refuses authorization
	ErrAccessDenied = "access_denied"

	// ErrUpstreamAuthRequired is returned when the upstream provider needs re-authorization
	ErrUpstreamAuthRequired = "upstream_auth_required"

	// ErrStoreUnavailable is returned when a backing store cannot be reached
	ErrStoreUnavailable = "store_unavailable"

	// ErrServer is returned for unexpected internal failures
	ErrServer = "server_error"
)

// Error represents an error in the application
type Error struct {
	// Type is the error type
	Type string

	// Message is the error message
	Message string

	// Cause is the underlying error
	Cause error
}

// Error returns the error message
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %s", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new error
func NewError(errorType, message string, cause error) *Error {
	return &Error{
		Type:    errorType,
		Message: message,
		Cause:   cause,
	}
}

// NewInvalidRequestError creates a new invalid request error
func NewInvalidRequestError(message string, cause error) *Error {
	return NewError(ErrInvalidRequest, message, cause)
}

// NewInvalidGrantError creates a new invalid grant error
func NewInvalidGrantError(message string, cause error) *Error {
	return NewError(ErrInvalidGrant, message, cause)
}

// NewTokenReuseDetectedError creates a new token reuse error
func NewTokenReuseDetectedError(message string, cause error) *Error {
	return NewError(ErrTokenReuseDetected, message, cause)
}

// NewTokenExpiredError creates a new token expired error
func NewTokenExpiredError(message string, cause error) *Error {
	return NewError(ErrTokenExpired, message, cause)
}

// NewTokenRevokedError creates a new token revoked error
func NewTokenRevokedError(message string, cause error) *Error {
	return NewError(ErrTokenRevoked, message, cause)
}

// NewUnsupportedGrantTypeError creates a new unsupported grant type error
func NewUnsupportedGrantTypeError(message string, cause error) *Error {
	return NewError(ErrUnsupportedGrantType, message, cause)
}

// NewInvalidClientMetadataError creates a new invalid client metadata error
func NewInvalidClientMetadataError(message string, cause error) *Error {
	return NewError(ErrInvalidClientMetadata, message, cause)
}

// NewInvalidRedirectURIError creates a new invalid redirect URI error
func NewInvalidRedirectURIError(message string, cause error) *Error {
	return NewError(ErrInvalidRedirectURI, message, cause)
}

// NewInvalidClientError creates a new invalid client error
func NewInvalidClientError(message string, cause error) *Error {
	return NewError(ErrInvalidClient, message, cause)
}

// NewInvalidScopeError creates a new invalid scope error
func NewInvalidScopeError(message string, cause error) *Error {
	return NewError(ErrInvalidScope, message, cause)
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(message string, cause error) *Error {
	return NewError(ErrNotFound, message, cause)
}

// NewAccessDeniedError creates a new access denied error
func NewAccessDeniedError(message string, cause error) *Error {
	return NewError(ErrAccessDenied, message, cause)
}

// NewUpstreamAuthRequiredError creates a new upstream auth required error
func NewUpstreamAuthRequiredError(message string, cause error) *Error {
	return NewError(ErrUpstreamAuthRequired, message, cause)
}

// NewStoreUnavailableError creates a new store unavailable error
func NewStoreUnavailableError(message string, cause error) *Error {
	return NewError(ErrStoreUnavailable, message, cause)
}

// NewServerError creates a new internal server error
func NewServerError(message string, cause error) *Error {
	return NewError(ErrServer, message, cause)
}

// TypeOf returns the type of the first *Error in err's chain, or ErrServer
// when the chain carries none.
func TypeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Type
	}
	return ErrServer
}

func isType(err error, errorType string) bool {
	var e *Error
	return errors.As(err, &e) && e.Type == errorType
}

// IsInvalidRequest checks if the error is an invalid request error
func IsInvalidRequest(err error) bool { return isType(err, ErrInvalidRequest) }

// IsInvalidGrant checks if the error is an invalid grant error
func IsInvalidGrant(err error) bool { return isType(err, ErrInvalidGrant) }

// IsTokenReuseDetected checks if the error is a token reuse error
func IsTokenReuseDetected(err error) bool { return isType(err, ErrTokenReuseDetected) }

// IsTokenExpired checks if the error is a token expired error
func IsTokenExpired(err error) bool { return isType(err, ErrTokenExpired) }

// IsTokenRevoked checks if the error is a token revoked error
func IsTokenRevoked(err error) bool { return isType(err, ErrTokenRevoked) }

// IsUnsupportedGrantType checks if the error is an unsupported grant type error
func IsUnsupportedGrantType(err error) bool { return isType(err, ErrUnsupportedGrantType) }

// IsInvalidClientMetadata checks if the error is an invalid client metadata error
func IsInvalidClientMetadata(err error) bool { return isType(err, ErrInvalidClientMetadata) }

// IsInvalidClient checks if the error is an invalid client error
func IsInvalidClient(err error) bool { return isType(err, ErrInvalidClient) }

// IsInvalidRedirectURI checks if the error is an invalid redirect URI error
func IsInvalidRedirectURI(err error) bool { return isType(err, ErrInvalidRedirectURI) }

// IsInvalidScope checks if the error is an invalid scope error
func IsInvalidScope(err error) bool { return isType(err, ErrInvalidScope) }

// IsNotFound checks if the error is a not found error
func IsNotFound(err error) bool { return isType(err, ErrNotFound) }

// IsAccessDenied checks if the error is an access denied error
func IsAccessDenied(err error) bool { return isType(err, ErrAccessDenied) }

// IsUpstreamAuthRequired checks if the error is an upstream auth required error
func IsUpstreamAuthRequired(err error) bool { return isType(err, ErrUpstreamAuthRequired) }

// IsStoreUnavailable checks if the error is a store unavailable error
func IsStoreUnavailable(err error) bool { return isType(err, ErrStoreUnavailable) }

// Code returns the HTTP status code for err. Errors outside the taxonomy
// map to 500.
func Code(err error) int {
	if err == nil {
		return http.StatusOK
	}
	switch TypeOf(err) {
	case ErrInvalidRequest, ErrInvalidGrant, ErrTokenReuseDetected, ErrUnsupportedGrantType,
		ErrInvalidClientMetadata, ErrInvalidRedirectURI, ErrInvalidScope:
		return http.StatusBadRequest
	case ErrTokenExpired, ErrTokenRevoked, ErrInvalidClient:
		return http.StatusUnauthorized
	case ErrAccessDenied:
		return http.StatusForbidden
	case ErrNotFound:
		return http.StatusNotFound
	case ErrUpstreamAuthRequired:
		return http.StatusBadGateway
	case ErrStoreUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
