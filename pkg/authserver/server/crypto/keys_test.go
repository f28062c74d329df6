// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package crypto

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePEM(t *testing.T, dir, blockType string, der []byte) string {
	t.Helper()
	path := filepath.Join(dir, "key.pem")
	data := pem.EncodeToMemory(&pem.Block{Type: blockType, Bytes: der})
	require.NoError(t, os.WriteFile(path, data, 0600))
	return path
}

func TestLoadSigningKey(t *testing.T) {
	t.Parallel()

	rsaKey, _ := rsa.GenerateKey(rand.Reader, 2048)
	smallRSAKey, _ := rsa.GenerateKey(rand.Reader, 1024)
	ecKey, _ := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	_, edKey, _ := ed25519.GenerateKey(rand.Reader)

	tests := []struct {
		name    string
		setup   func(t *testing.T, dir string) string
		wantErr string
		want    any
	}{
		{
			name: "RSA PKCS1",
			setup: func(t *testing.T, dir string) string {
				t.Helper()
				return writePEM(t, dir, "RSA PRIVATE KEY", x509.MarshalPKCS1PrivateKey(rsaKey))
			},
			want: &rsa.PrivateKey{},
		},
		{
			name: "EC SEC1",
			setup: func(t *testing.T, dir string) string {
				t.Helper()
				der, _ := x509.MarshalECPrivateKey(ecKey)
				return writePEM(t, dir, "EC PRIVATE KEY", der)
			},
			want: &ecdsa.PrivateKey{},
		},
		{
			name: "EC PKCS8",
			setup: func(t *testing.T, dir string) string {
				t.Helper()
				der, _ := x509.MarshalPKCS8PrivateKey(ecKey)
				return writePEM(t, dir, "PRIVATE KEY", der)
			},
			want: &ecdsa.PrivateKey{},
		},
		{
			name: "Ed25519 PKCS8",
			setup: func(t *testing.T, dir string) string {
				t.Helper()
				der, _ := x509.MarshalPKCS8PrivateKey(edKey)
				return writePEM(t, dir, "PRIVATE KEY", der)
			},
			want: ed25519.PrivateKey{},
		},
		{
			name: "RSA below minimum size",
			setup: func(t *testing.T, dir string) string {
				t.Helper()
				return writePEM(t, dir, "RSA PRIVATE KEY", x509.MarshalPKCS1PrivateKey(smallRSAKey))
			},
			wantErr: "below minimum required",
		},
		{
			name: "invalid PEM",
			setup: func(t *testing.T, dir string) string {
				t.Helper()
				path := filepath.Join(dir, "key.pem")
				require.NoError(t, os.WriteFile(path, []byte("not valid PEM"), 0600))
				return path
			},
			wantErr: "failed to decode PEM block",
		},
		{
			name:    "missing file",
			setup:   func(*testing.T, string) string { return "/nonexistent/key.pem" },
			wantErr: "failed to read signing key",
		},
		{
			name: "garbage in PEM",
			setup: func(t *testing.T, dir string) string {
				t.Helper()
				return writePEM(t, dir, "PRIVATE KEY", []byte("garbage"))
			},
			wantErr: "failed to parse signing key",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			key, err := LoadSigningKey(tt.setup(t, t.TempDir()))
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.want, key)
		})
	}
}

func TestDeriveSigningKeyParams(t *testing.T) {
	t.Parallel()

	rsaKey, _ := rsa.GenerateKey(rand.Reader, 2048)
	ecKey, _ := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	ecP384, _ := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	_, edKey, _ := ed25519.GenerateKey(rand.Reader)

	tests := []struct {
		name      string
		key       crypto.Signer
		keyID     string
		algorithm string
		wantAlg   string
		wantErr   string
	}{
		{"derive for RSA", rsaKey, "", "", "RS256", ""},
		{"derive for P-256", ecKey, "", "", "ES256", ""},
		{"derive for P-384", ecP384, "", "", "ES384", ""},
		{"derive for Ed25519", edKey, "", "", "EdDSA", ""},
		{"explicit values", rsaKey, "my-key", "RS384", "RS384", ""},
		{"explicit kid only", ecKey, "my-key", "", "ES256", ""},
		{"RSA with ES256", rsaKey, "", "ES256", "", "not compatible with RSA"},
		{"P-256 with ES384", ecKey, "", "ES384", "", "not compatible with EC"},
		{"Ed25519 with RS256", edKey, "", "RS256", "", "not compatible with Ed25519"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			params, err := DeriveSigningKeyParams(tt.key, tt.keyID, tt.algorithm)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantAlg, params.Algorithm)
			if tt.keyID != "" {
				assert.Equal(t, tt.keyID, params.KeyID)
			} else {
				assert.NotEmpty(t, params.KeyID)
			}
		})
	}
}

func TestDeriveKeyID(t *testing.T) {
	t.Parallel()

	k1, _ := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	k2, _ := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)

	id1, err := DeriveKeyID(k1)
	require.NoError(t, err)
	again, err := DeriveKeyID(k1)
	require.NoError(t, err)
	id2, err := DeriveKeyID(k2)
	require.NoError(t, err)

	assert.Equal(t, id1, again)
	assert.NotEqual(t, id1, id2)
}

func TestHashSecret(t *testing.T) {
	t.Parallel()

	assert.Len(t, HashSecret("refresh"), 64)
	assert.Equal(t, HashSecret("a"), HashSecret("a"))
	assert.NotEqual(t, HashSecret("a"), HashSecret("b"))
}
