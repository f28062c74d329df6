// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package token

import (
	"context"
	"time"

	"github.com/stacklok/mcp-linkedin/pkg/authserver/storage"
	"github.com/stacklok/mcp-linkedin/pkg/errors"
	"github.com/stacklok/mcp-linkedin/pkg/logger"
)

var revokedMarker = []byte("1")

// RevokeFamily revokes every access and refresh token descended from one
// authorization code. The marker outlives the longest-lived member.
func (i *Issuer) RevokeFamily(ctx context.Context, familyID string) error {
	if familyID == "" {
		return nil
	}
	if err := i.store.Put(ctx, storage.Key(keyRevokedFamily, familyID), revokedMarker, i.cfg.familyTTL()); err != nil {
		return err
	}
	logger.Infow("revoked token family", "family_id", familyID)
	return nil
}

// RevokeAccessToken revokes a single access token by its jti.
func (i *Issuer) RevokeAccessToken(ctx context.Context, claims *AccessClaims) error {
	ttl := claims.ExpiresAt.Sub(i.clock.Now())
	if ttl <= 0 {
		return nil
	}
	// Round up so the marker never disappears before the token expires.
	ttl = ttl.Truncate(time.Second) + time.Second
	return i.store.Put(ctx, storage.Key(keyRevokedToken, claims.TokenID), revokedMarker, ttl)
}

// RevokeSession revokes every token family minted for the session. It is
// registered as a session cleanup.
func (i *Issuer) RevokeSession(ctx context.Context, sessionID string) error {
	setKey := storage.Key(keyFamilies, sessionID)
	families, err := i.store.Members(ctx, setKey)
	if err != nil {
		return err
	}
	for _, fid := range families {
		if err := i.RevokeFamily(ctx, fid); err != nil {
			return err
		}
	}
	return i.store.Delete(ctx, setKey)
}

func (i *Issuer) isRevoked(ctx context.Context, kind, id string) (bool, error) {
	_, err := i.store.Get(ctx, storage.Key(kind, id))
	switch {
	case err == nil:
		return true, nil
	case errors.IsNotFound(err):
		return false, nil
	default:
		return false, err
	}
}
