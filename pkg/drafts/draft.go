// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package drafts keeps post drafts owned by a session. Every operation is
// scoped to the caller's session; a draft owned by another session is
// reported as not found.
package drafts

import (
	"time"
	"unicode/utf8"

	"github.com/stacklok/mcp-linkedin/pkg/errors"
)

const (
	// MaxNameLength bounds the draft name, in characters.
	MaxNameLength = 200

	// MaxContentLength is the LinkedIn post commentary limit, in characters.
	MaxContentLength = 3000

	// DefaultPostType is used when a draft is created without one.
	DefaultPostType = "text"
)

// Draft is a post under composition.
type Draft struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Name      string    `json:"name"`
	PostType  string    `json:"post_type"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CreateRequest describes a new draft.
type CreateRequest struct {
	Name     string `json:"name"`
	PostType string `json:"post_type,omitempty"`
	Content  string `json:"content,omitempty"`
}

// UpdateRequest changes the fields that are set.
type UpdateRequest struct {
	Name     *string `json:"name,omitempty"`
	PostType *string `json:"post_type,omitempty"`
	Content  *string `json:"content,omitempty"`
}

func validateName(name string) error {
	if name == "" {
		return errors.NewInvalidRequestError("draft name is required", nil)
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return errors.NewInvalidRequestError("draft name is too long", nil)
	}
	return nil
}

func validateContent(content string) error {
	if utf8.RuneCountInString(content) > MaxContentLength {
		return errors.NewInvalidRequestError("draft content exceeds the post length limit", nil)
	}
	return nil
}
