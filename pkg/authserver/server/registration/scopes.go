// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package registration

import (
	"slices"
	"strings"

	"github.com/stacklok/mcp-linkedin/pkg/errors"
)

// Scopes granted by the server.
const (
	ScopePosts     = "linkedin.posts"
	ScopeProfile   = "linkedin.profile"
	ScopeDocuments = "linkedin.documents"
)

// SupportedScopes is advertised in discovery metadata.
var SupportedScopes = []string{ScopePosts, ScopeProfile, ScopeDocuments}

// DefaultScopes are granted when a request names no scope.
var DefaultScopes = []string{ScopePosts, ScopeProfile}

// ValidateScopes splits a space-delimited scope string and checks every
// entry against allowed. Duplicates are dropped, order is kept. An empty
// string yields DefaultScopes when they are all allowed.
func ValidateScopes(scope string, allowed []string) ([]string, error) {
	requested := strings.Fields(scope)
	if len(requested) == 0 {
		for _, s := range DefaultScopes {
			if !slices.Contains(allowed, s) {
				return nil, errors.NewInvalidScopeError("no scope requested and no default scope allowed", nil)
			}
		}
		return slices.Clone(DefaultScopes), nil
	}

	out := make([]string, 0, len(requested))
	for _, s := range requested {
		if !slices.Contains(allowed, s) {
			return nil, errors.NewInvalidScopeError("unsupported scope: "+s, nil)
		}
		if !slices.Contains(out, s) {
			out = append(out, s)
		}
	}
	return out, nil
}

// IsSubset reports whether every scope in requested is in granted.
func IsSubset(requested, granted string) bool {
	have := strings.Fields(granted)
	for _, s := range strings.Fields(requested) {
		if !slices.Contains(have, s) {
			return false
		}
	}
	return true
}
