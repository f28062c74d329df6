// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package artifacts

import (
	"context"
	"fmt"
)

// BackendConfig selects and configures an artifact backend.
type BackendConfig struct {
	// Provider is one of BackendMemory, BackendFilesystem or BackendS3.
	// Empty selects BackendMemory.
	Provider string

	// FilesystemRoot is the root directory of the filesystem backend.
	FilesystemRoot string

	S3 S3Config
}

// NewBackend creates the configured backend.
func NewBackend(ctx context.Context, cfg BackendConfig) (Backend, error) {
	switch cfg.Provider {
	case "", BackendMemory:
		return NewMemoryBackend(), nil
	case BackendFilesystem:
		b, err := NewFilesystemBackend(cfg.FilesystemRoot)
		if err != nil {
			return nil, err
		}
		return b, nil
	case BackendS3:
		b, err := NewS3Backend(ctx, cfg.S3)
		if err != nil {
			return nil, err
		}
		return b, nil
	default:
		return nil, fmt.Errorf("unsupported artifact provider %q", cfg.Provider)
	}
}
