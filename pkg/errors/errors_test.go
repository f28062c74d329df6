// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_Error(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "error with cause",
			err: &Error{
				Type:    ErrInvalidGrant,
				Message: "code already consumed",
				Cause:   errors.New("underlying error"),
			},
			want: "invalid_grant: code already consumed: underlying error",
		},
		{
			name: "error without cause",
			err: &Error{
				Type:    ErrNotFound,
				Message: "artifact not found",
			},
			want: "not_found: artifact not found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	t.Parallel()

	cause := errors.New("dial tcp: connection refused")
	err := NewStoreUnavailableError("get session", cause)

	assert.ErrorIs(t, err, cause)
	assert.Nil(t, NewNotFoundError("missing", nil).Unwrap())
}

func TestPredicatesFollowWrapping(t *testing.T) {
	t.Parallel()

	wrapped := fmt.Errorf("exchange: %w", NewInvalidGrantError("code consumed", nil))

	assert.True(t, IsInvalidGrant(wrapped))
	assert.False(t, IsTokenReuseDetected(wrapped))
	assert.False(t, IsStoreUnavailable(errors.New("plain")))
	assert.Equal(t, ErrInvalidGrant, TypeOf(wrapped))
	assert.Equal(t, ErrServer, TypeOf(errors.New("plain")))
}

func TestCode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		errType string
		want    int
	}{
		{ErrInvalidRequest, http.StatusBadRequest},
		{ErrInvalidGrant, http.StatusBadRequest},
		{ErrTokenReuseDetected, http.StatusBadRequest},
		{ErrUnsupportedGrantType, http.StatusBadRequest},
		{ErrInvalidClientMetadata, http.StatusBadRequest},
		{ErrInvalidRedirectURI, http.StatusBadRequest},
		{ErrInvalidScope, http.StatusBadRequest},
		{ErrTokenExpired, http.StatusUnauthorized},
		{ErrTokenRevoked, http.StatusUnauthorized},
		{ErrInvalidClient, http.StatusUnauthorized},
		{ErrAccessDenied, http.StatusForbidden},
		{ErrNotFound, http.StatusNotFound},
		{ErrUpstreamAuthRequired, http.StatusBadGateway},
		{ErrStoreUnavailable, http.StatusServiceUnavailable},
		{ErrServer, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.errType, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Code(NewError(tt.errType, "msg", nil)))
		})
	}

	assert.Equal(t, http.StatusOK, Code(nil))
	assert.Equal(t, http.StatusInternalServerError, Code(errors.New("boom")))
}
