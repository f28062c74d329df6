// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package artifacts

import (
	"crypto/rand"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"k8s.io/utils/clock"
)

// MinSigningKeyLength is the minimum HS256 key length in bytes.
const MinSigningKeyLength = 32

// previewClaims are the claims of a local presigned URL token. Subject is
// the artifact id.
type previewClaims struct {
	SessionID string `json:"sid"`
	TenantID  string `json:"tid"`
	jwt.RegisteredClaims
}

// urlSigner signs and verifies local presigned URL tokens.
type urlSigner struct {
	key   []byte
	clock clock.PassiveClock
}

func newURLSigner(key []byte, c clock.PassiveClock) (*urlSigner, error) {
	if len(key) == 0 {
		key = []byte(rand.Text() + rand.Text())
	}
	if len(key) < MinSigningKeyLength {
		return nil, fmt.Errorf("artifact signing key must be at least %d bytes", MinSigningKeyLength)
	}
	return &urlSigner{key: key, clock: c}, nil
}

func (s *urlSigner) sign(a *Artifact, expiresAt time.Time) (string, error) {
	claims := previewClaims{
		SessionID: a.SessionID,
		TenantID:  a.TenantID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   a.ID,
			IssuedAt:  jwt.NewNumericDate(s.clock.Now()),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign preview token: %w", err)
	}
	return signed, nil
}

func (s *urlSigner) verify(raw, artifactID string) (*previewClaims, error) {
	claims := &previewClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return s.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithSubject(artifactID),
		jwt.WithTimeFunc(s.clock.Now),
	)
	if err != nil {
		return nil, err
	}
	if claims.SessionID == "" {
		return nil, stderrors.New("preview token has no session")
	}
	return claims, nil
}
