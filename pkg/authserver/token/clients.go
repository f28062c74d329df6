// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package token

import (
	"context"

	"github.com/google/uuid"

	"github.com/stacklok/mcp-linkedin/pkg/authserver/server/registration"
	"github.com/stacklok/mcp-linkedin/pkg/authserver/storage"
	"github.com/stacklok/mcp-linkedin/pkg/errors"
	"github.com/stacklok/mcp-linkedin/pkg/logger"
)

// RegisterClient validates a dynamic client registration request and
// persists the client. The plaintext secret is only ever returned here.
func (i *Issuer) RegisterClient(ctx context.Context, req *registration.DCRRequest) (*registration.DCRResponse, error) {
	validated, err := registration.ValidateDCRRequest(req, registration.SupportedScopes)
	if err != nil {
		return nil, err
	}

	now := i.clock.Now()
	client, secret, err := registration.NewClient(uuid.NewString(), validated, now)
	if err != nil {
		return nil, errors.NewServerError("failed to generate client secret", err)
	}
	if err := storage.PutJSON(ctx, i.store, storage.Key(keyClient, client.ID), client, i.cfg.ClientTTL); err != nil {
		return nil, err
	}

	logger.Infow("registered client",
		"client_id", client.ID,
		"client_name", client.Name,
		"token_endpoint_auth_method", client.TokenEndpointAuthMethod,
	)

	return &registration.DCRResponse{
		ClientID:                client.ID,
		ClientSecret:            secret,
		ClientIDIssuedAt:        now.Unix(),
		ClientSecretExpiresAt:   now.Add(i.cfg.ClientTTL).Unix(),
		RedirectURIs:            client.RedirectURIs,
		ClientName:              client.Name,
		TokenEndpointAuthMethod: client.TokenEndpointAuthMethod,
		GrantTypes:              client.GrantTypes,
		ResponseTypes:           client.ResponseTypes,
		Scope:                   client.Scope,
	}, nil
}

// GetClient loads a registered, unrevoked client.
func (i *Issuer) GetClient(ctx context.Context, clientID string) (*registration.Client, error) {
	if clientID == "" {
		return nil, errors.NewInvalidClientError("client_id is required", nil)
	}
	client, _, err := storage.GetJSON[registration.Client](ctx, i.store, storage.Key(keyClient, clientID))
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, errors.NewInvalidClientError("unknown client", nil)
		}
		return nil, err
	}
	if client.Revoked {
		return nil, errors.NewInvalidClientError("client has been revoked", nil)
	}
	return client, nil
}

// AuthenticateClient authenticates a client at the token endpoint. Public
// clients pass with their id alone; confidential clients must present the
// secret issued at registration.
func (i *Issuer) AuthenticateClient(ctx context.Context, clientID, secret string) (*registration.Client, error) {
	client, err := i.GetClient(ctx, clientID)
	if err != nil {
		return nil, err
	}
	if client.IsPublic() {
		return client, nil
	}
	if !client.CheckSecret(secret) {
		logger.Debugw("client authentication failed", "client_id", clientID)
		return nil, errors.NewInvalidClientError("client authentication failed", nil)
	}
	return client, nil
}

// RevokeClient marks a client as revoked. Tokens already issued stay valid
// until they expire or their session ends.
func (i *Issuer) RevokeClient(ctx context.Context, clientID string) error {
	key := storage.Key(keyClient, clientID)
	for {
		client, raw, err := storage.GetJSON[registration.Client](ctx, i.store, key)
		if err != nil {
			if errors.IsNotFound(err) {
				return nil
			}
			return err
		}
		if client.Revoked {
			return nil
		}
		client.Revoked = true
		_, swapped, err := storage.SwapJSON(ctx, i.store, key, raw, client)
		if err != nil {
			if errors.IsNotFound(err) {
				return nil
			}
			return err
		}
		if swapped {
			logger.Infow("revoked client", "client_id", clientID)
			return nil
		}
	}
}
