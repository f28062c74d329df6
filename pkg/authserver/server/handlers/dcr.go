// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	apierrors "github.com/stacklok/mcp-linkedin/pkg/api/errors"
	"github.com/stacklok/mcp-linkedin/pkg/authserver/server/registration"
	"github.com/stacklok/mcp-linkedin/pkg/errors"
)

// maxDCRBodySize is the maximum allowed size for DCR request bodies (64KB).
const maxDCRBodySize = 64 * 1024

// RegisterClientHandler handles POST /oauth/register requests (RFC 7591).
func (h *Handler) RegisterClientHandler(w http.ResponseWriter, req *http.Request) {
	apierrors.ErrorHandler(h.registerClient)(w, req)
}

func (h *Handler) registerClient(w http.ResponseWriter, req *http.Request) error {
	req.Body = http.MaxBytesReader(w, req.Body, maxDCRBodySize)

	// RFC 7591 requires application/json
	if !strings.HasPrefix(req.Header.Get("Content-Type"), "application/json") {
		return errors.NewInvalidClientMetadataError("Content-Type must be application/json", nil)
	}

	var dcrReq registration.DCRRequest
	if err := json.NewDecoder(req.Body).Decode(&dcrReq); err != nil {
		return errors.NewInvalidClientMetadataError("invalid JSON request body", err)
	}

	resp, err := h.issuer.RegisterClient(req.Context(), &dcrReq)
	if err != nil {
		return err
	}

	apierrors.WriteJSON(w, http.StatusCreated, resp)
	return nil
}
