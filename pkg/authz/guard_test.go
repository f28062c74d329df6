// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package authz

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/stacklok/mcp-linkedin/pkg/authserver/session"
	"github.com/stacklok/mcp-linkedin/pkg/errors"
)

func TestAuthorize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		caller  string
		owner   string
		allowed bool
	}{
		{"same session", "s1", "s1", true},
		{"different session", "s1", "s2", false},
		{"anonymous caller", "", "s1", false},
		{"ownerless resource", "s1", "", false},
		{"both empty", "", "", false},
		{"prefix is not equality", "s1", "s10", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			want := Denied
			if tt.allowed {
				want = Allowed
			}
			assert.Equal(t, want, Authorize(tt.caller, tt.owner))
		})
	}
}

func TestGuard_RequireOwner(t *testing.T) {
	t.Parallel()

	g := NewGuard()
	ctx := session.WithID(context.Background(), "s1")

	assert.NoError(t, g.RequireOwner(ctx, "s1", "draft"))

	err := g.RequireOwner(ctx, "s2", "draft")
	assert.True(t, errors.IsNotFound(err))
	assert.Equal(t, "not_found: draft not found", err.Error())

	err = g.RequireOwner(context.Background(), "s1", "artifact")
	assert.True(t, errors.IsNotFound(err))
}

func TestDecisionString(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "allowed", Allowed.String())
	assert.Equal(t, "denied", Denied.String())
	assert.Equal(t, "denied", Decision(0).String())
}
