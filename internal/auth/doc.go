// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package auth manages the authenticated SpySearch session.
//
// The session lifecycle is a small state machine:
//
//	Unknown -> Restoring -> {Authenticated, Anonymous}
//	Authenticated -> Anonymous        (logout, confirmed 401)
//	Anonymous -> Authenticating -> Authenticated
//
// # Key Types
//
//   - Manager: owns the state machine and the credential store
//   - Session: immutable snapshot {token, user, isAuthenticated, isLoading}
//   - Callback: parsed login-redirect parameters (token, login, message)
//
// # Restore semantics
//
// Restore activates a stored session optimistically and then verifies the
// token against the server. Only a confirmed 401 evicts the session; a
// network error, 5xx, or malformed response keeps the optimistic session,
// because a transient failure must never log out a legitimate user.
//
// # Callback consumption
//
// ParseCallbackURL strips the token/login/message parameters as it reads
// them, and Manager tracks consumed callbacks, so processing the same
// redirect twice is a no-op after the first pass.
package auth
