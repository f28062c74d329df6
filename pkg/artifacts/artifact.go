// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package artifacts stores rendered preview content scoped to a session and
// hands out time-limited presigned URLs for it. Objects live under
// {tenant}/{session}/{artifact}; a per-tenant index entry confirms each
// write and records the owning session.
package artifacts

import (
	"context"
	"time"
)

const (
	// DefaultTenant is the tenant (sandbox) id used when none is configured.
	DefaultTenant = "chuk-mcp-linkedin"

	// DefaultTTL is how long an artifact lives when the caller sets no TTL.
	DefaultTTL = 24 * time.Hour

	// DefaultPresignExpiry is the presigned URL lifetime when the caller
	// passes none.
	DefaultPresignExpiry = 3600 * time.Second

	// OrphanGracePeriod is how old an unconfirmed object must be before
	// Sweep treats it as an orphan of a failed write.
	OrphanGracePeriod = time.Minute
)

// Artifact is the immutable metadata record of a stored artifact.
type Artifact struct {
	ID          string            `json:"id"`
	SessionID   string            `json:"session_id"`
	TenantID    string            `json:"tenant_id"`
	DraftID     string            `json:"draft_id,omitempty"`
	ContentType string            `json:"content_type"`
	Size        int64             `json:"size"`
	CreatedAt   time.Time         `json:"created_at"`
	ExpiresAt   time.Time         `json:"expires_at"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// IsExpired reports whether the artifact has expired at now.
func (a *Artifact) IsExpired(now time.Time) bool {
	return !now.Before(a.ExpiresAt)
}

// StoreRequest describes an artifact to store.
type StoreRequest struct {
	Content     []byte
	ContentType string
	SessionID   string
	DraftID     string
	Metadata    map[string]string

	// TTL defaults to DefaultTTL.
	TTL time.Duration
}

// ObjectInfo describes one object returned by Backend.List.
type ObjectInfo struct {
	Key     string
	ModTime time.Time
}

// Backend is the capability every artifact storage provider implements.
// Keys are slash separated. Get returns a not_found error for missing keys
// and Delete of a missing key succeeds.
type Backend interface {
	Name() string
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
}

// Presigner is implemented by backends that can sign their own URLs.
// Backends without it are served through the local preview route.
type Presigner interface {
	PresignGet(ctx context.Context, key string, expiresIn time.Duration) (string, error)
}
