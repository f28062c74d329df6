// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/stacklok/mcp-linkedin/pkg/errors"
)

func TestErrorHandler(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		err          error
		wantStatus   int
		wantCode     string
		wantDesc     string
		wantAuthHint bool
	}{
		{
			name:       "no error leaves response untouched",
			err:        nil,
			wantStatus: http.StatusNoContent,
		},
		{
			name:       "invalid grant keeps message",
			err:        apperrors.NewInvalidGrantError("code already consumed", nil),
			wantStatus: http.StatusBadRequest,
			wantCode:   "invalid_grant",
			wantDesc:   "code already consumed",
		},
		{
			name:         "expired token sets WWW-Authenticate",
			err:          fmt.Errorf("validate: %w", apperrors.NewTokenExpiredError("access token expired", nil)),
			wantStatus:   http.StatusUnauthorized,
			wantCode:     "token_expired",
			wantDesc:     "access token expired",
			wantAuthHint: true,
		},
		{
			name:       "store unavailable hides cause",
			err:        apperrors.NewStoreUnavailableError("get code", errors.New("dial tcp 10.0.0.1:6379")),
			wantStatus: http.StatusServiceUnavailable,
			wantCode:   "store_unavailable",
			wantDesc:   "Service Unavailable",
		},
		{
			name:       "untyped error becomes server_error",
			err:        errors.New("secret-value-123 leaked"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   "server_error",
			wantDesc:   "Internal Server Error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			handler := ErrorHandler(func(w http.ResponseWriter, _ *http.Request) error {
				if tt.err == nil {
					w.WriteHeader(http.StatusNoContent)
				}
				return tt.err
			})

			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.err == nil {
				assert.Empty(t, rec.Body.String())
				return
			}

			var body Body
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantCode, body.Error)
			assert.Equal(t, tt.wantDesc, body.ErrorDescription)
			assert.NotContains(t, rec.Body.String(), "secret-value-123")
			assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
			if tt.wantAuthHint {
				assert.Contains(t, rec.Header().Get("WWW-Authenticate"), tt.wantCode)
			}
		})
	}
}
