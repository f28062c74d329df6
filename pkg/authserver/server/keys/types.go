// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package keys supplies the keys that sign access tokens and the public
// half published on the JWKS endpoint.
package keys

import (
	"crypto"
	"time"
)

// DefaultAlgorithm is the algorithm of generated keys.
const DefaultAlgorithm = "ES256"

// SigningKeyData is a private signing key with its metadata. Never expose it.
type SigningKeyData struct {
	// KeyID is the RFC 7638 thumbprint, carried in the "kid" header.
	KeyID string

	Algorithm string
	Key       crypto.Signer
	CreatedAt time.Time
}

// PublicKeyData is the public half of a signing key.
type PublicKeyData struct {
	KeyID     string
	Algorithm string
	PublicKey crypto.PublicKey
	CreatedAt time.Time
}

func (k *SigningKeyData) clone() *SigningKeyData {
	c := *k
	return &c
}

func (k *SigningKeyData) public() *PublicKeyData {
	return &PublicKeyData{
		KeyID:     k.KeyID,
		Algorithm: k.Algorithm,
		PublicKey: k.Key.Public(),
		CreatedAt: k.CreatedAt,
	}
}
