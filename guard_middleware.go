package tenantauth

import (
	"net/http"

	"github.com/goliatone/go-router"
)

// ProtectOption customizes the Protect middleware.
type ProtectOption func(*protectConfig)

type protectConfig struct {
	guardOpts []GuardOption
	transient func(router.Context) Storage
	path      func(router.Context) string
	logger    Logger
}

// WithProtectGuardOptions forwards options to the Guard built per request.
func WithProtectGuardOptions(opts ...GuardOption) ProtectOption {
	return func(c *protectConfig) {
		c.guardOpts = append(c.guardOpts, opts...)
	}
}

// WithProtectTransient sets how the transient storage of a request is obtained.
// Defaults to cookie storage.
func WithProtectTransient(fn func(router.Context) Storage) ProtectOption {
	return func(c *protectConfig) {
		if fn != nil {
			c.transient = fn
		}
	}
}

// WithProtectPath sets how the requested path is read. Defaults to the original URL.
func WithProtectPath(fn func(router.Context) string) ProtectOption {
	return func(c *protectConfig) {
		if fn != nil {
			c.path = fn
		}
	}
}

// WithProtectLogger sets the logger.
func WithProtectLogger(logger Logger) ProtectOption {
	return func(c *protectConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Protect returns middleware that runs the navigation guard for the route
// described by meta. Allowed requests get the session in their locals under
// SessionLocalsKey. Public routes pass through without touching the agent.
func Protect(agents AgentResolver, meta RouteMeta, opts ...ProtectOption) router.MiddlewareFunc {
	cfg := &protectConfig{
		transient: func(ctx router.Context) Storage {
			return NewCookieStorage(ctx)
		},
		path: func(ctx router.Context) string {
			return ctx.OriginalURL()
		},
		logger: defLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(cfg)
		}
	}

	guardOpts := append([]GuardOption{WithGuardLogger(cfg.logger)}, cfg.guardOpts...)

	return func(next router.HandlerFunc) router.HandlerFunc {
		if !meta.RequiresAuth {
			return next
		}
		return func(ctx router.Context) error {
			store := agents.StoreFor(ctx)
			guard := NewGuard(store, guardOpts...)

			decision := guard.Check(ctx.Context(), Navigation{
				Path:    cfg.path(ctx),
				Matched: []RouteMeta{meta},
			}, cfg.transient(ctx))

			if !decision.Allow {
				return ctx.Redirect(decision.Redirect, http.StatusFound)
			}

			if session := store.Session(); session != nil {
				ctx.Locals(SessionLocalsKey, session)
			}

			return next(ctx)
		}
	}
}

// RequireAuth is Protect for a route that requires authentication.
func RequireAuth(agents AgentResolver, opts ...ProtectOption) router.MiddlewareFunc {
	return Protect(agents, RouteMeta{RequiresAuth: true}, opts...)
}
