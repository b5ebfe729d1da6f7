// Package auth connects the service to the hosted auth provider: it verifies
// access tokens, carries the caller's session through the request context and
// talks to the provider's REST API for sign-up, sign-in and password resets.
package auth

import (
	"context"

	"deyn.app/cloud/models"
)

type ctxKey int

const sessionKey ctxKey = iota

func WithSession(ctx context.Context, session models.Session) context.Context {
	return context.WithValue(ctx, sessionKey, session)
}

// SessionFromContext returns the session stored by Middleware or
// ProtectPrefix.
func SessionFromContext(ctx context.Context) (models.Session, bool) {
	session, ok := ctx.Value(sessionKey).(models.Session)
	return session, ok && session.Valid()
}
