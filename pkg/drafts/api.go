// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package drafts

import (
	"bytes"
	"encoding/json"
	"html/template"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/stacklok/mcp-linkedin/pkg/api/errors"
	"github.com/stacklok/mcp-linkedin/pkg/artifacts"
	"github.com/stacklok/mcp-linkedin/pkg/authserver/session"
	"github.com/stacklok/mcp-linkedin/pkg/errors"
)

// maxRequestBodySize caps draft request bodies.
const maxRequestBodySize = 64 * 1024

// previewTemplate is the plain HTML snapshot stored for a draft preview.
var previewTemplate = template.Must(template.New("preview").Parse(`<!DOCTYPE html>
<html lang="en">
<head><meta charset="utf-8"><title>{{.Name}}</title></head>
<body><article data-post-type="{{.PostType}}"><pre>{{.Content}}</pre></article></body>
</html>
`))

// API serves the draft routes. It must be mounted behind bearer
// authentication so the caller's session is in the request context.
type API struct {
	drafts    *Store
	artifacts *artifacts.Store
}

// NewAPI creates the draft API. artifactStore may be nil, which disables
// previews.
func NewAPI(drafts *Store, artifactStore *artifacts.Store) *API {
	return &API{drafts: drafts, artifacts: artifactStore}
}

// Routes registers the draft routes on r.
func (a *API) Routes(r chi.Router) {
	r.Route("/api/drafts", func(r chi.Router) {
		r.Get("/", apierrors.ErrorHandler(a.list))
		r.Post("/", apierrors.ErrorHandler(a.create))
		r.Get("/current", apierrors.ErrorHandler(a.current))
		r.Put("/current", apierrors.ErrorHandler(a.setCurrent))
		r.Get("/{draft_id}", apierrors.ErrorHandler(a.get))
		r.Patch("/{draft_id}", apierrors.ErrorHandler(a.update))
		r.Delete("/{draft_id}", apierrors.ErrorHandler(a.delete))
		r.Post("/{draft_id}/preview", apierrors.ErrorHandler(a.preview))
	})
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errors.NewInvalidRequestError("invalid JSON request body", err)
	}
	return nil
}

func (a *API) list(w http.ResponseWriter, r *http.Request) error {
	drafts, err := a.drafts.List(r.Context())
	if err != nil {
		return err
	}
	apierrors.WriteJSON(w, http.StatusOK, map[string]any{"drafts": drafts})
	return nil
}

func (a *API) create(w http.ResponseWriter, r *http.Request) error {
	var req CreateRequest
	if err := decode(w, r, &req); err != nil {
		return err
	}
	d, err := a.drafts.Create(r.Context(), req)
	if err != nil {
		return err
	}
	apierrors.WriteJSON(w, http.StatusCreated, d)
	return nil
}

func (a *API) get(w http.ResponseWriter, r *http.Request) error {
	d, err := a.drafts.Get(r.Context(), chi.URLParam(r, "draft_id"))
	if err != nil {
		return err
	}
	apierrors.WriteJSON(w, http.StatusOK, d)
	return nil
}

func (a *API) current(w http.ResponseWriter, r *http.Request) error {
	d, err := a.drafts.Current(r.Context())
	if err != nil {
		return err
	}
	apierrors.WriteJSON(w, http.StatusOK, d)
	return nil
}

func (a *API) setCurrent(w http.ResponseWriter, r *http.Request) error {
	var req struct {
		ID string `json:"id"`
	}
	if err := decode(w, r, &req); err != nil {
		return err
	}
	if err := a.drafts.SetCurrent(r.Context(), req.ID); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (a *API) update(w http.ResponseWriter, r *http.Request) error {
	var req UpdateRequest
	if err := decode(w, r, &req); err != nil {
		return err
	}
	d, err := a.drafts.Update(r.Context(), chi.URLParam(r, "draft_id"), req)
	if err != nil {
		return err
	}
	apierrors.WriteJSON(w, http.StatusOK, d)
	return nil
}

func (a *API) delete(w http.ResponseWriter, r *http.Request) error {
	if err := a.drafts.Delete(r.Context(), chi.URLParam(r, "draft_id")); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

// previewResponse is returned by POST /api/drafts/{draft_id}/preview.
type previewResponse struct {
	ArtifactID string `json:"artifact_id"`
	URL        string `json:"url"`
	ExpiresIn  int64  `json:"expires_in"`
}

// preview stores an HTML snapshot of the draft as an artifact and returns
// a presigned URL for it. expires_in is read from the query, in seconds.
func (a *API) preview(w http.ResponseWriter, r *http.Request) error {
	if a.artifacts == nil {
		return errors.NewNotFoundError("previews are not enabled", nil)
	}
	ctx := r.Context()

	expiresIn := artifacts.DefaultPresignExpiry
	if raw := r.URL.Query().Get("expires_in"); raw != "" {
		secs, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || secs <= 0 {
			return errors.NewInvalidRequestError("expires_in must be a positive number of seconds", nil)
		}
		expiresIn = time.Duration(secs) * time.Second
	}

	d, err := a.drafts.Get(ctx, chi.URLParam(r, "draft_id"))
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := previewTemplate.Execute(&buf, d); err != nil {
		return err
	}
	sid := session.IDFromContext(ctx)
	artifactID, err := a.artifacts.Store(ctx, artifacts.StoreRequest{
		Content:     buf.Bytes(),
		ContentType: "text/html; charset=utf-8",
		SessionID:   sid,
		DraftID:     d.ID,
		TTL:         expiresIn,
	})
	if err != nil {
		return err
	}
	url, err := a.artifacts.PresignedURL(ctx, artifactID, sid, expiresIn)
	if err != nil {
		return err
	}

	apierrors.WriteJSON(w, http.StatusCreated, previewResponse{
		ArtifactID: artifactID,
		URL:        url,
		ExpiresIn:  int64(expiresIn / time.Second),
	})
	return nil
}
