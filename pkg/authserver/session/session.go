// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package session manages the unit of identity and isolation: every token,
// draft and artifact belongs to exactly one session.
package session

import (
	"context"
	"time"
)

// Session is the persisted session record.
type Session struct {
	// ID is the opaque session identifier, also the "sub" of access tokens.
	ID string `json:"id"`

	// UserID identifies the upstream user, when known.
	UserID string `json:"user_id,omitempty"`

	CreatedAt   time.Time `json:"created_at"`
	LastTouched time.Time `json:"last_touched"`
	ExpiresAt   time.Time `json:"expires_at"`

	// Attributes is an arbitrary attribute bag.
	Attributes map[string]string `json:"attributes,omitempty"`
}

// IsExpired reports whether the session has expired at now.
func (s *Session) IsExpired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

type contextKey struct{}

// WithID returns a context carrying the resolved session id of the caller.
func WithID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, contextKey{}, sessionID)
}

// IDFromContext returns the caller's session id, or "" when the request was
// not authenticated.
func IDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(contextKey{}).(string)
	return id
}
