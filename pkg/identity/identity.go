// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-docvault.
//
// go-docvault is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package identity provides the current-user collaborator consumed by the
// sync path. Authentication itself lives outside go-docvault; this package
// only answers "who is signed in, if anyone".
package identity

import (
	"context"
)

// CurrentUserProvider reports the signed-in user. ok is false when nobody
// is authenticated.
type CurrentUserProvider interface {
	UserID(ctx context.Context) (userID string, ok bool)
}

// Static always reports the same user. An empty ID means anonymous.
type Static struct {
	ID string
}

// UserID returns the fixed id.
func (s Static) UserID(ctx context.Context) (string, bool) {
	return s.ID, s.ID != ""
}

type contextKey struct{}

// WithUserID attaches an authenticated user id to ctx.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, contextKey{}, userID)
}

// Context reads the user id attached by WithUserID.
type Context struct{}

// UserID returns the id attached to ctx.
func (Context) UserID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(contextKey{}).(string)
	return id, ok && id != ""
}

var (
	_ CurrentUserProvider = Static{}
	_ CurrentUserProvider = Context{}
)
