// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package crypto

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

// RFC 7636 Appendix B.
const (
	rfcVerifier  = "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	rfcChallenge = "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM"
)

func TestGeneratePKCEVerifier(t *testing.T) {
	t.Parallel()

	verifier := GeneratePKCEVerifier()
	assert.True(t, ValidVerifier(verifier))
	assert.NotEqual(t, verifier, GeneratePKCEVerifier())
}

func TestComputePKCEChallenge_RFC7636Example(t *testing.T) {
	t.Parallel()
	assert.Equal(t, rfcChallenge, ComputePKCEChallenge(rfcVerifier))
}

func TestVerifyPKCE(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		verifier  string
		challenge string
		want      bool
	}{
		{"rfc example", rfcVerifier, rfcChallenge, true},
		{"tampered verifier", rfcVerifier[:len(rfcVerifier)-1] + "l", rfcChallenge, false},
		{"empty challenge", rfcVerifier, "", false},
		{"verifier too short", "abc", ComputePKCEChallenge("abc"), false},
		{"verifier too long", strings.Repeat("a", 129), ComputePKCEChallenge(strings.Repeat("a", 129)), false},
		{"illegal character", strings.Repeat("a", 42) + "!", ComputePKCEChallenge(strings.Repeat("a", 42) + "!"), false},
		{"max length", strings.Repeat("~", 128), ComputePKCEChallenge(strings.Repeat("~", 128)), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, VerifyPKCE(tt.verifier, tt.challenge))
		})
	}
}
