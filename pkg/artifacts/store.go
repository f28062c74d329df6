// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package artifacts

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"k8s.io/utils/clock"

	"github.com/stacklok/mcp-linkedin/pkg/authz"
	"github.com/stacklok/mcp-linkedin/pkg/errors"
	"github.com/stacklok/mcp-linkedin/pkg/logger"
	"github.com/stacklok/mcp-linkedin/pkg/telemetry"
)

const (
	indexDir   = "_index"
	metaSuffix = ".json"

	// PreviewPath is the route prefix of local presigned URLs.
	PreviewPath = "/preview/"
)

// Store is the session-scoped artifact store.
type Store struct {
	backend Backend
	tenant  string
	baseURL string
	signer  *urlSigner
	clock   clock.PassiveClock
	metrics *telemetry.Metrics

	signingKey []byte
}

// Option configures a Store.
type Option func(*Store)

// WithTenant sets the tenant namespace.
func WithTenant(tenant string) Option {
	return func(s *Store) {
		s.tenant = tenant
	}
}

// WithSigningKey sets the HS256 key for local presigned URLs. Without it a
// random key is generated and URLs do not survive a restart.
func WithSigningKey(key []byte) Option {
	return func(s *Store) {
		s.signingKey = key
	}
}

// WithClock sets the clock used for expiry decisions.
func WithClock(c clock.PassiveClock) Option {
	return func(s *Store) {
		s.clock = c
	}
}

// WithMetrics records stored artifacts.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(s *Store) {
		s.metrics = m
	}
}

// NewStore creates a Store over backend. baseURL is the externally visible
// server URL local presigned URLs are built on.
func NewStore(backend Backend, baseURL string, opts ...Option) (*Store, error) {
	s := &Store{
		backend: backend,
		tenant:  DefaultTenant,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		clock:   clock.RealClock{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.tenant == "" || strings.ContainsAny(s.tenant, "/.") {
		return nil, fmt.Errorf("invalid artifact tenant %q", s.tenant)
	}
	if _, ok := backend.(Presigner); !ok && s.baseURL == "" {
		return nil, stderrors.New("a base URL is required for local presigned URLs")
	}
	signer, err := newURLSigner(s.signingKey, s.clock)
	if err != nil {
		return nil, err
	}
	s.signer = signer
	s.signingKey = nil
	return s, nil
}

// Backend returns the storage backend name.
func (s *Store) Backend() string {
	return s.backend.Name()
}

func (s *Store) contentKey(sessionID, artifactID string) string {
	return path.Join(s.tenant, sessionID, artifactID)
}

func (s *Store) metaKey(sessionID, artifactID string) string {
	return s.contentKey(sessionID, artifactID) + metaSuffix
}

func (s *Store) indexKey(artifactID string) string {
	return path.Join(s.tenant, indexDir, artifactID)
}

// validID rejects ids that could escape their namespace.
func validID(id string) bool {
	return id != "" && id != indexDir && !strings.ContainsAny(id, "/\\") && id != "." && id != ".."
}

// Store writes the content, then the metadata, then confirms the artifact
// with an index entry naming its owner. Anything written before a failed
// confirm is an orphan for Sweep.
func (s *Store) Store(ctx context.Context, req StoreRequest) (string, error) {
	if !validID(req.SessionID) {
		return "", errors.NewInvalidRequestError("a session id is required to store an artifact", nil)
	}
	if req.ContentType == "" {
		req.ContentType = "application/octet-stream"
	}
	ttl := req.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	now := s.clock.Now()
	a := &Artifact{
		ID:          uuid.NewString(),
		SessionID:   req.SessionID,
		TenantID:    s.tenant,
		DraftID:     req.DraftID,
		ContentType: req.ContentType,
		Size:        int64(len(req.Content)),
		CreatedAt:   now,
		ExpiresAt:   now.Add(ttl),
		Metadata:    req.Metadata,
	}
	meta, err := json.Marshal(a)
	if err != nil {
		return "", fmt.Errorf("failed to marshal artifact metadata: %w", err)
	}

	if err := s.backend.Put(ctx, s.contentKey(a.SessionID, a.ID), req.Content, a.ContentType); err != nil {
		return "", fmt.Errorf("failed to store artifact content: %w", err)
	}
	if err := s.backend.Put(ctx, s.metaKey(a.SessionID, a.ID), meta, "application/json"); err != nil {
		return "", fmt.Errorf("failed to store artifact metadata: %w", err)
	}
	if err := s.backend.Put(ctx, s.indexKey(a.ID), []byte(a.SessionID), "text/plain"); err != nil {
		return "", fmt.Errorf("failed to confirm artifact: %w", err)
	}

	s.metrics.ArtifactStored(ctx, s.backend.Name())
	logger.Debugw("stored artifact",
		"artifact_id", a.ID,
		"session_id", a.SessionID,
		"size", a.Size,
		"backend", s.backend.Name(),
	)
	return a.ID, nil
}

// owner returns the session that owns a confirmed artifact.
func (s *Store) owner(ctx context.Context, artifactID string) (string, error) {
	if !validID(artifactID) {
		return "", errors.NewNotFoundError("artifact not found", nil)
	}
	data, err := s.backend.Get(ctx, s.indexKey(artifactID))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// load returns the live artifact when sessionID owns it. Absent, expired and
// foreign artifacts are all not_found.
func (s *Store) load(ctx context.Context, artifactID, sessionID string) (*Artifact, error) {
	owner, err := s.owner(ctx, artifactID)
	if err != nil {
		return nil, notFoundOr(err)
	}
	if authz.Authorize(sessionID, owner) != authz.Allowed {
		logger.Debugw("access denied", "resource", "artifact", "artifact_id", artifactID, "session_id", sessionID)
		return nil, errors.NewNotFoundError("artifact not found", nil)
	}

	data, err := s.backend.Get(ctx, s.metaKey(owner, artifactID))
	if err != nil {
		return nil, notFoundOr(err)
	}
	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("failed to decode artifact metadata: %w", err)
	}
	if a.IsExpired(s.clock.Now()) {
		return nil, errors.NewNotFoundError("artifact not found", nil)
	}
	return &a, nil
}

func notFoundOr(err error) error {
	if errors.IsNotFound(err) {
		return errors.NewNotFoundError("artifact not found", nil)
	}
	return err
}

// Get returns the metadata of an artifact sessionID owns.
func (s *Store) Get(ctx context.Context, artifactID, sessionID string) (*Artifact, error) {
	return s.load(ctx, artifactID, sessionID)
}

// PresignedURL returns a URL that serves the artifact without further
// authentication until min(now+expiresIn, artifact expiry).
func (s *Store) PresignedURL(ctx context.Context, artifactID, sessionID string, expiresIn time.Duration) (string, error) {
	a, err := s.load(ctx, artifactID, sessionID)
	if err != nil {
		return "", err
	}
	if expiresIn <= 0 {
		expiresIn = DefaultPresignExpiry
	}
	now := s.clock.Now()
	expiresAt := now.Add(expiresIn)
	if a.ExpiresAt.Before(expiresAt) {
		expiresAt = a.ExpiresAt
	}

	if p, ok := s.backend.(Presigner); ok {
		// S3 presign lifetimes are whole seconds; round down so the URL
		// never outlives the artifact.
		lifetime := expiresAt.Sub(now).Truncate(time.Second)
		if lifetime < time.Second {
			return "", errors.NewNotFoundError("artifact not found", nil)
		}
		return p.PresignGet(ctx, s.contentKey(a.SessionID, a.ID), lifetime)
	}

	token, err := s.signer.sign(a, expiresAt)
	if err != nil {
		return "", err
	}
	return s.baseURL + PreviewPath + url.PathEscape(a.ID) + "?token=" + url.QueryEscape(token), nil
}

// Open serves a local presigned URL. Every failure, an expired token
// included, is not_found.
func (s *Store) Open(ctx context.Context, artifactID, token string) ([]byte, *Artifact, error) {
	claims, err := s.signer.verify(token, artifactID)
	if err != nil {
		logger.Debugw("rejected preview token", "artifact_id", artifactID, "error", err)
		return nil, nil, errors.NewNotFoundError("artifact not found", nil)
	}
	if claims.TenantID != s.tenant {
		return nil, nil, errors.NewNotFoundError("artifact not found", nil)
	}

	a, err := s.load(ctx, artifactID, claims.SessionID)
	if err != nil {
		return nil, nil, err
	}
	content, err := s.backend.Get(ctx, s.contentKey(a.SessionID, a.ID))
	if err != nil {
		return nil, nil, notFoundOr(err)
	}
	return content, a, nil
}

// Delete removes an artifact sessionID owns. Missing and foreign artifacts
// are left alone and reported as success.
func (s *Store) Delete(ctx context.Context, artifactID, sessionID string) error {
	owner, err := s.owner(ctx, artifactID)
	if err != nil {
		if errors.IsNotFound(err) {
			return nil
		}
		return err
	}
	if authz.Authorize(sessionID, owner) != authz.Allowed {
		logger.Debugw("access denied", "resource", "artifact", "artifact_id", artifactID, "session_id", sessionID)
		return nil
	}
	return s.remove(ctx, owner, artifactID)
}

// remove unconfirms the artifact first so a partial failure leaves an
// orphan rather than a dangling index entry.
func (s *Store) remove(ctx context.Context, sessionID, artifactID string) error {
	for _, key := range []string{
		s.indexKey(artifactID),
		s.metaKey(sessionID, artifactID),
		s.contentKey(sessionID, artifactID),
	} {
		if err := s.backend.Delete(ctx, key); err != nil {
			return fmt.Errorf("failed to delete artifact %s: %w", artifactID, err)
		}
	}
	return nil
}

// DeleteSession removes every artifact stored for sessionID. It is the
// session destroy cleanup.
func (s *Store) DeleteSession(ctx context.Context, sessionID string) error {
	if !validID(sessionID) {
		return nil
	}
	objects, err := s.backend.List(ctx, path.Join(s.tenant, sessionID)+"/")
	if err != nil {
		return err
	}
	removed := 0
	for id := range artifactIDs(objects) {
		if err := s.remove(ctx, sessionID, id); err != nil {
			return err
		}
		removed++
	}
	if removed > 0 {
		logger.Debugw("deleted session artifacts", "session_id", sessionID, "count", removed)
	}
	return nil
}

// artifactIDs groups content and metadata keys by artifact id, keeping the
// oldest modification time of each.
func artifactIDs(objects []ObjectInfo) map[string]time.Time {
	ids := make(map[string]time.Time)
	for _, obj := range objects {
		id := strings.TrimSuffix(path.Base(obj.Key), metaSuffix)
		if t, ok := ids[id]; !ok || obj.ModTime.Before(t) {
			ids[id] = obj.ModTime
		}
	}
	return ids
}

// Sweep removes expired artifacts and orphans of failed writes, returning
// the number of artifacts removed.
func (s *Store) Sweep(ctx context.Context) (int, error) {
	objects, err := s.backend.List(ctx, s.tenant+"/")
	if err != nil {
		return 0, err
	}

	now := s.clock.Now()
	confirmed := make(map[string]time.Time)
	bySession := make(map[string][]ObjectInfo)
	for _, obj := range objects {
		rel := strings.TrimPrefix(obj.Key, s.tenant+"/")
		dir, name := path.Split(rel)
		dir = strings.TrimSuffix(dir, "/")
		if dir == indexDir {
			confirmed[name] = obj.ModTime
			continue
		}
		if dir == "" || strings.Contains(dir, "/") {
			continue
		}
		bySession[dir] = append(bySession[dir], obj)
	}

	removed := 0
	for sessionID, objs := range bySession {
		for id, modTime := range artifactIDs(objs) {
			expired, err := s.sweepable(ctx, sessionID, id, modTime, confirmed, now)
			if err != nil {
				return removed, err
			}
			delete(confirmed, id)
			if !expired {
				continue
			}
			if err := s.remove(ctx, sessionID, id); err != nil {
				return removed, err
			}
			removed++
		}
	}

	// Index entries whose objects were not listed. The listing is not a
	// snapshot, so an artifact stored while it ran can show up here; only
	// old entries whose metadata is still missing are dropped.
	for id, modTime := range confirmed {
		if now.Sub(modTime) <= OrphanGracePeriod {
			continue
		}
		dangling, err := s.danglingIndex(ctx, id)
		if err != nil {
			return removed, err
		}
		if !dangling {
			continue
		}
		if err := s.backend.Delete(ctx, s.indexKey(id)); err != nil {
			return removed, err
		}
	}

	if removed > 0 {
		logger.Infow("swept artifacts", "removed", removed, "tenant", s.tenant)
	}
	return removed, nil
}

// danglingIndex re-reads the index entry of id and reports whether the
// metadata it points at is gone.
func (s *Store) danglingIndex(ctx context.Context, id string) (bool, error) {
	owner, err := s.owner(ctx, id)
	if err != nil {
		if errors.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	_, err = s.backend.Get(ctx, s.metaKey(owner, id))
	switch {
	case err == nil:
		return false, nil
	case errors.IsNotFound(err):
		return true, nil
	default:
		return false, err
	}
}

func (s *Store) sweepable(
	ctx context.Context, sessionID, id string, modTime time.Time, confirmed map[string]time.Time, now time.Time,
) (bool, error) {
	if _, ok := confirmed[id]; !ok {
		return now.Sub(modTime) > OrphanGracePeriod, nil
	}
	data, err := s.backend.Get(ctx, s.metaKey(sessionID, id))
	if err != nil {
		if errors.IsNotFound(err) {
			return true, nil
		}
		return false, err
	}
	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		logger.Warnw("removing artifact with corrupt metadata", "artifact_id", id, "error", err)
		return true, nil
	}
	return a.IsExpired(now), nil
}
