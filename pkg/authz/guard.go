// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package authz is the single enforcement point for resource ownership.
// A caller may touch a draft, an artifact or an upstream token only when
// its resolved session id equals the resource owner's session id.
package authz

import (
	"context"

	"github.com/stacklok/mcp-linkedin/pkg/authserver/session"
	"github.com/stacklok/mcp-linkedin/pkg/errors"
	"github.com/stacklok/mcp-linkedin/pkg/logger"
)

// Decision is the outcome of an authorization check.
type Decision int

const (
	// Denied is the zero value so an unset decision never grants access.
	Denied Decision = iota
	// Allowed grants access.
	Allowed
)

func (d Decision) String() string {
	if d == Allowed {
		return "allowed"
	}
	return "denied"
}

// Authorize compares the caller's session id with the owner's. Equality is
// the only rule; empty ids never match.
func Authorize(sessionID, ownerSessionID string) Decision {
	if sessionID == "" || ownerSessionID == "" {
		return Denied
	}
	if sessionID != ownerSessionID {
		return Denied
	}
	return Allowed
}

// Guard applies Authorize to the session id carried by a request context.
type Guard struct{}

// NewGuard creates a Guard.
func NewGuard() *Guard {
	return &Guard{}
}

// Authorize decides whether the caller in ctx owns a resource held by
// ownerSessionID.
func (*Guard) Authorize(ctx context.Context, ownerSessionID string) Decision {
	return Authorize(session.IDFromContext(ctx), ownerSessionID)
}

// RequireOwner returns nil when the caller owns the resource and a
// not_found error otherwise, so a denied lookup is indistinguishable from a
// missing resource.
func (g *Guard) RequireOwner(ctx context.Context, ownerSessionID, resource string) error {
	if g.Authorize(ctx, ownerSessionID) == Allowed {
		return nil
	}
	logger.Debugw("access denied", "resource", resource, "session_id", session.IDFromContext(ctx))
	return errors.NewNotFoundError(resource+" not found", nil)
}
