// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package oauth provides shared RFC-defined types and constants for OAuth 2.0
// and OpenID Connect metadata documents served by the authorization server.
package oauth
