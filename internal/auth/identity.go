// Threadline - Real-time Threaded Discussions
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threadline

// Package auth is the thin identity collaborator: password signup and login,
// HS256 tokens, and middleware that resolves the caller's Identity.
package auth

import "context"

type contextKey string

const identityContextKey contextKey = "identity"

// Identity is the resolved caller. The zero value is anonymous.
type Identity struct {
	UserID   int64
	Username string
}

// Anonymous is the identity of an unauthenticated caller.
var Anonymous = Identity{}

// IsAuthenticated reports whether the identity names a user.
func (i Identity) IsAuthenticated() bool {
	return i.UserID > 0
}

// WithIdentity stores id in ctx.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, id)
}

// IdentityFromContext returns the caller identity, or Anonymous.
func IdentityFromContext(ctx context.Context) Identity {
	if id, ok := ctx.Value(identityContextKey).(Identity); ok {
		return id
	}
	return Anonymous
}
