// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package token

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"github.com/google/uuid"

	"github.com/stacklok/mcp-linkedin/pkg/errors"
	"github.com/stacklok/mcp-linkedin/pkg/logger"
)

// supportedAlgorithms are the signature algorithms an access token may carry.
var supportedAlgorithms = []jose.SignatureAlgorithm{
	jose.ES256, jose.ES384, jose.ES512, jose.RS256, jose.EdDSA,
}

func (i *Issuer) signAccessToken(
	ctx context.Context, clientID, sessionID, familyID, scope string, now time.Time,
) (string, error) {
	key, err := i.keys.SigningKey(ctx)
	if err != nil {
		return "", errors.NewServerError("failed to load signing key", err)
	}

	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.SignatureAlgorithm(key.Algorithm), Key: key.Key},
		(&jose.SignerOptions{}).WithType("JWT").WithHeader("kid", key.KeyID),
	)
	if err != nil {
		return "", errors.NewServerError("failed to create signer", err)
	}

	claims := accessTokenClaims{
		Claims: jwt.Claims{
			Issuer:   i.cfg.Issuer,
			Subject:  sessionID,
			IssuedAt: jwt.NewNumericDate(now),
			Expiry:   jwt.NewNumericDate(ceilSecond(now.Add(i.cfg.AccessTokenTTL))),
			ID:       uuid.NewString(),
		},
		ClientID: clientID,
		Scope:    scope,
		FamilyID: familyID,
	}
	raw, err := jwt.Signed(signer).Claims(claims).Serialize()
	if err != nil {
		return "", errors.NewServerError("failed to sign access token", err)
	}
	return raw, nil
}

// ceilSecond rounds t up to a whole second. NumericDate drops the fraction,
// so rounding down would end a token's life before its full TTL.
func ceilSecond(t time.Time) time.Time {
	whole := t.Truncate(time.Second)
	if whole.Equal(t) {
		return t
	}
	return whole.Add(time.Second)
}

// ValidateAccessToken verifies the signature, issuer and lifetime of an
// access token and checks that neither it nor its family was revoked.
// Expired tokens yield token_expired; every other rejection, including a
// malformed token, yields token_revoked.
func (i *Issuer) ValidateAccessToken(ctx context.Context, raw string) (*AccessClaims, error) {
	tok, err := jwt.ParseSigned(raw, supportedAlgorithms)
	if err != nil {
		return nil, errors.NewTokenRevokedError("malformed access token", err)
	}
	if len(tok.Headers) == 0 {
		return nil, errors.NewTokenRevokedError("access token has no header", nil)
	}

	publicKeys, err := i.keys.PublicKeys(ctx)
	if err != nil {
		return nil, errors.NewServerError("failed to load verification keys", err)
	}
	kid := tok.Headers[0].KeyID
	var claims accessTokenClaims
	verified := false
	for _, pk := range publicKeys {
		if pk.KeyID != kid {
			continue
		}
		if err := tok.Claims(pk.PublicKey, &claims); err == nil {
			verified = true
		}
		break
	}
	if !verified {
		return nil, errors.NewTokenRevokedError("access token signature is invalid", nil)
	}

	err = claims.ValidateWithLeeway(jwt.Expected{Issuer: i.cfg.Issuer, Time: i.clock.Now()}, 0)
	switch {
	case stderrors.Is(err, jwt.ErrExpired):
		return nil, errors.NewTokenExpiredError("access token has expired", nil)
	case err != nil:
		return nil, errors.NewTokenRevokedError("access token claims are invalid", err)
	}
	if claims.Subject == "" || claims.ID == "" {
		return nil, errors.NewTokenRevokedError("access token is missing required claims", nil)
	}

	revoked, err := i.isRevoked(ctx, keyRevokedToken, claims.ID)
	if err != nil {
		return nil, err
	}
	if !revoked && claims.FamilyID != "" {
		revoked, err = i.isRevoked(ctx, keyRevokedFamily, claims.FamilyID)
		if err != nil {
			return nil, err
		}
	}
	if revoked {
		logger.Debugw("rejected revoked access token", "jti", claims.ID, "session_id", claims.Subject)
		return nil, errors.NewTokenRevokedError("access token has been revoked", nil)
	}

	return &AccessClaims{
		SessionID: claims.Subject,
		ClientID:  claims.ClientID,
		Scope:     claims.Scope,
		TokenID:   claims.ID,
		FamilyID:  claims.FamilyID,
		IssuedAt:  claims.IssuedAt.Time(),
		ExpiresAt: claims.Expiry.Time(),
	}, nil
}
