// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package artifacts

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/stacklok/mcp-linkedin/pkg/api/errors"
	"github.com/stacklok/mcp-linkedin/pkg/errors"
	"github.com/stacklok/mcp-linkedin/pkg/logger"
)

// Routes registers the presigned preview route.
func (s *Store) Routes(r chi.Router) {
	r.Get(PreviewPath+"{artifact_id}", s.PreviewHandler)
}

// PreviewHandler handles GET /preview/{artifact_id}?token=... The URL is
// the credential, so every failure is a plain 404.
func (s *Store) PreviewHandler(w http.ResponseWriter, r *http.Request) {
	artifactID := chi.URLParam(r, "artifact_id")
	content, a, err := s.Open(r.Context(), artifactID, r.URL.Query().Get("token"))
	if err != nil {
		if !errors.IsNotFound(err) {
			logger.Warnw("failed to serve artifact preview", "artifact_id", artifactID, "error", err)
		}
		apierrors.WriteError(w, errors.NewNotFoundError("artifact not found", nil))
		return
	}

	w.Header().Set("Content-Type", a.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(content)))
	w.Header().Set("Cache-Control", "private, no-store")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Referrer-Policy", "no-referrer")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(content); err != nil {
		logger.Debugw("failed to write artifact preview", "artifact_id", artifactID, "error", err)
	}
}
