// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package errors provides HTTP error handling utilities for the API.
package errors

import (
	"encoding/json"
	stderrors "errors"
	"net/http"

	"github.com/stacklok/mcp-linkedin/pkg/errors"
	"github.com/stacklok/mcp-linkedin/pkg/logger"
)

// Body is the JSON error body returned by every endpoint. It follows the
// OAuth 2.0 error response shape (RFC 6749 Section 5.2).
type Body struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// HandlerWithError is an HTTP handler that can return an error.
type HandlerWithError func(http.ResponseWriter, *http.Request) error

// ErrorHandler wraps a HandlerWithError and converts returned errors
// into JSON error responses.
//
// Usage:
//
//	r.Post("/oauth/token", apierrors.ErrorHandler(h.token))
func ErrorHandler(fn HandlerWithError) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := fn(w, r); err != nil {
			WriteError(w, err)
		}
	}
}

// WriteError writes err as a JSON error body with the status from errors.Code.
// For 5xx errors the full error is logged and the description is generic;
// the error code stays machine-readable.
func WriteError(w http.ResponseWriter, err error) {
	code := errors.Code(err)
	body := Body{Error: errors.TypeOf(err)}

	var e *errors.Error
	if code >= http.StatusInternalServerError {
		logger.Errorw("request failed", "status", code, "error", err)
		body.ErrorDescription = http.StatusText(code)
	} else if stderrors.As(err, &e) {
		body.ErrorDescription = e.Message
	}

	if code == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer error="`+body.Error+`"`)
	}
	WriteJSON(w, code, body)
}

// WriteJSON writes v as a JSON response with no-store caching.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
	w.WriteHeader(status)
	// headers are already written, nothing to recover
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debugw("failed to encode response", "error", err)
	}
}
