package tenantauth

import (
	"context"

	"github.com/goliatone/go-router"
)

var navigatorCtxKey = &contextKey{"navigator"}
var sessionCtxKey = &contextKey{"session"}

// SessionLocalsKey is the router locals key Protect stores the session under.
const SessionLocalsKey = "tenantauth.session"

type contextKey struct {
	name string
}

// ContextWithNavigator sets the Navigator used by operations running with ctx.
func ContextWithNavigator(ctx context.Context, nav Navigator) context.Context {
	return context.WithValue(ctx, navigatorCtxKey, nav)
}

// NavigatorFromContext finds the Navigator from the context.
func NavigatorFromContext(ctx context.Context) (Navigator, bool) {
	if ctx == nil {
		return nil, false
	}
	nav, ok := ctx.Value(navigatorCtxKey).(Navigator)
	return nav, ok && nav != nil
}

// WithSessionContext sets the Session in the given context
func WithSessionContext(ctx context.Context, session *Session) context.Context {
	return context.WithValue(ctx, sessionCtxKey, session)
}

// SessionFromContext finds the session from the context.
func SessionFromContext(ctx context.Context) (*Session, bool) {
	raw, ok := ctx.Value(sessionCtxKey).(*Session)
	return raw, ok && raw != nil
}

// GetRouterSession extracts the session stored by Protect from the router context
func GetRouterSession(ctx router.Context) (*Session, bool) {
	raw := ctx.Locals(SessionLocalsKey)
	if raw == nil {
		return nil, false
	}
	session, ok := raw.(*Session)
	return session, ok && session != nil
}
