// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package keys

import "fmt"

// Config selects where signing keys come from.
type Config struct {
	// KeyDir is the directory holding PEM private keys, typically a mounted
	// secret. Filenames below are relative to it.
	KeyDir string

	// SigningKeyFile signs new tokens. Required when KeyDir is set.
	SigningKeyFile string

	// FallbackKeyFiles are published in the JWKS but never sign. Move the
	// previous signing key here when rotating so outstanding tokens keep
	// verifying until they expire.
	FallbackKeyFiles []string
}

// NewProviderFromConfig returns a FileProvider when KeyDir is set and an
// ephemeral GeneratingProvider otherwise.
func NewProviderFromConfig(cfg Config) (KeyProvider, error) {
	if cfg.KeyDir == "" {
		if cfg.SigningKeyFile != "" {
			return nil, fmt.Errorf("signing key file %q set without a key directory", cfg.SigningKeyFile)
		}
		return NewGeneratingProvider(DefaultAlgorithm), nil
	}
	return NewFileProvider(cfg)
}
