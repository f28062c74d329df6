// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package drafts

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"k8s.io/utils/clock"

	"github.com/stacklok/mcp-linkedin/pkg/authserver/session"
	"github.com/stacklok/mcp-linkedin/pkg/authserver/storage"
	"github.com/stacklok/mcp-linkedin/pkg/authz"
	"github.com/stacklok/mcp-linkedin/pkg/errors"
	"github.com/stacklok/mcp-linkedin/pkg/logger"
)

// DefaultTTL is how long an untouched draft is kept.
const DefaultTTL = session.DefaultTTL

// maxUpdateAttempts bounds the compare-and-swap loop of Update.
const maxUpdateAttempts = 3

const (
	keyDraft   = "draft"
	keyDrafts  = "drafts"
	keyCurrent = "current-draft"
)

// Store keeps drafts in a storage.Store.
type Store struct {
	store storage.Store
	guard *authz.Guard
	ttl   time.Duration
	clock clock.PassiveClock
}

// Option configures a Store.
type Option func(*Store)

// WithTTL sets the draft lifetime, renewed by every write.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// WithClock sets the clock used for timestamps.
func WithClock(c clock.PassiveClock) Option {
	return func(s *Store) {
		s.clock = c
	}
}

// NewStore creates a draft Store.
func NewStore(store storage.Store, guard *authz.Guard, opts ...Option) *Store {
	s := &Store{
		store: store,
		guard: guard,
		ttl:   DefaultTTL,
		clock: clock.RealClock{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// caller returns the session id of the authenticated caller.
func caller(ctx context.Context) (string, error) {
	sid := session.IDFromContext(ctx)
	if sid == "" {
		return "", errors.NewTokenRevokedError("an authenticated session is required", nil)
	}
	return sid, nil
}

// Create stores a new draft owned by the caller and makes it the current
// draft.
func (s *Store) Create(ctx context.Context, req CreateRequest) (*Draft, error) {
	sid, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	if err := validateName(req.Name); err != nil {
		return nil, err
	}
	if err := validateContent(req.Content); err != nil {
		return nil, err
	}
	if req.PostType == "" {
		req.PostType = DefaultPostType
	}

	now := s.clock.Now()
	d := &Draft{
		ID:        uuid.NewString(),
		SessionID: sid,
		Name:      req.Name,
		PostType:  req.PostType,
		Content:   req.Content,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := storage.PutJSON(ctx, s.store, storage.Key(keyDraft, d.ID), d, s.ttl); err != nil {
		return nil, fmt.Errorf("failed to store draft: %w", err)
	}
	if err := s.store.AddToSet(ctx, storage.Key(keyDrafts, sid), d.ID, s.ttl); err != nil {
		return nil, fmt.Errorf("failed to index draft: %w", err)
	}
	if err := s.store.Put(ctx, storage.Key(keyCurrent, sid), []byte(d.ID), s.ttl); err != nil {
		return nil, fmt.Errorf("failed to select draft: %w", err)
	}

	logger.Debugw("created draft", "draft_id", d.ID, "session_id", sid)
	return d, nil
}

// load returns the stored draft and its raw encoding after the ownership
// check.
func (s *Store) load(ctx context.Context, draftID string) (*Draft, []byte, error) {
	if _, err := caller(ctx); err != nil {
		return nil, nil, err
	}
	if draftID == "" {
		return nil, nil, errors.NewNotFoundError("draft not found", nil)
	}
	d, raw, err := storage.GetJSON[Draft](ctx, s.store, storage.Key(keyDraft, draftID))
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, nil, errors.NewNotFoundError("draft not found", nil)
		}
		return nil, nil, err
	}
	if err := s.guard.RequireOwner(ctx, d.SessionID, "draft"); err != nil {
		return nil, nil, err
	}
	return d, raw, nil
}

// Get returns a draft the caller owns.
func (s *Store) Get(ctx context.Context, draftID string) (*Draft, error) {
	d, _, err := s.load(ctx, draftID)
	return d, err
}

// List returns the caller's drafts, oldest first.
func (s *Store) List(ctx context.Context) ([]*Draft, error) {
	sid, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	ids, err := s.store.Members(ctx, storage.Key(keyDrafts, sid))
	if err != nil {
		return nil, err
	}

	drafts := make([]*Draft, 0, len(ids))
	for _, id := range ids {
		d, _, err := s.load(ctx, id)
		if err != nil {
			if errors.IsNotFound(err) {
				// expired or deleted concurrently
				continue
			}
			return nil, err
		}
		drafts = append(drafts, d)
	}
	sort.Slice(drafts, func(i, j int) bool {
		if drafts[i].CreatedAt.Equal(drafts[j].CreatedAt) {
			return drafts[i].ID < drafts[j].ID
		}
		return drafts[i].CreatedAt.Before(drafts[j].CreatedAt)
	})
	return drafts, nil
}

// Update applies req to a draft the caller owns. Concurrent updates are
// serialized with compare-and-swap.
func (s *Store) Update(ctx context.Context, draftID string, req UpdateRequest) (*Draft, error) {
	if req.Name != nil {
		if err := validateName(*req.Name); err != nil {
			return nil, err
		}
	}
	if req.Content != nil {
		if err := validateContent(*req.Content); err != nil {
			return nil, err
		}
	}

	key := storage.Key(keyDraft, draftID)
	for range maxUpdateAttempts {
		d, raw, err := s.load(ctx, draftID)
		if err != nil {
			return nil, err
		}
		if req.Name != nil {
			d.Name = *req.Name
		}
		if req.PostType != nil && *req.PostType != "" {
			d.PostType = *req.PostType
		}
		if req.Content != nil {
			d.Content = *req.Content
		}
		d.UpdatedAt = s.clock.Now()

		_, swapped, err := storage.SwapJSON(ctx, s.store, key, raw, d)
		if err != nil {
			return nil, notFoundOr(err)
		}
		if !swapped {
			continue
		}
		if err := s.store.Touch(ctx, key, s.ttl); err != nil {
			return nil, notFoundOr(err)
		}
		// the index must outlive every draft in it or the destroy cascade
		// misses the draft
		if err := s.store.AddToSet(ctx, storage.Key(keyDrafts, d.SessionID), d.ID, s.ttl); err != nil {
			return nil, fmt.Errorf("failed to index draft: %w", err)
		}
		return d, nil
	}
	return nil, errors.NewStoreUnavailableError("draft is being modified concurrently", nil)
}

// Delete removes a draft the caller owns.
func (s *Store) Delete(ctx context.Context, draftID string) error {
	d, _, err := s.load(ctx, draftID)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, storage.Key(keyDraft, d.ID)); err != nil {
		return err
	}
	if err := s.store.RemoveFromSet(ctx, storage.Key(keyDrafts, d.SessionID), d.ID); err != nil {
		return err
	}

	current, err := s.store.Get(ctx, storage.Key(keyCurrent, d.SessionID))
	if err == nil && string(current) == d.ID {
		return s.store.Delete(ctx, storage.Key(keyCurrent, d.SessionID))
	}
	if err != nil && !errors.IsNotFound(err) {
		return err
	}
	return nil
}

// SetCurrent selects the draft later operations default to.
func (s *Store) SetCurrent(ctx context.Context, draftID string) error {
	d, _, err := s.load(ctx, draftID)
	if err != nil {
		return err
	}
	return s.store.Put(ctx, storage.Key(keyCurrent, d.SessionID), []byte(d.ID), s.ttl)
}

// Current returns the caller's current draft.
func (s *Store) Current(ctx context.Context) (*Draft, error) {
	sid, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	id, err := s.store.Get(ctx, storage.Key(keyCurrent, sid))
	if err != nil {
		return nil, notFoundOr(err)
	}
	return s.Get(ctx, string(id))
}

// DeleteSession removes every draft of sessionID. It is the session destroy
// cleanup and runs without a caller session.
func (s *Store) DeleteSession(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	setKey := storage.Key(keyDrafts, sessionID)
	ids, err := s.store.Members(ctx, setKey)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if err := s.store.Delete(ctx, storage.Key(keyDraft, id)); err != nil {
			return err
		}
	}
	if err := s.store.Delete(ctx, storage.Key(keyCurrent, sessionID)); err != nil {
		return err
	}
	return s.store.Delete(ctx, setKey)
}

func notFoundOr(err error) error {
	if errors.IsNotFound(err) {
		return errors.NewNotFoundError("draft not found", nil)
	}
	return err
}
