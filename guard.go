package tenantauth

import (
	"context"
	"net/url"
	"strings"
)

const (
	// ReturnURLKey is the transient storage key holding the intended destination.
	ReturnURLKey = "returnUrl"

	DefaultLoginPath     = "/login"
	DefaultRedirectParam = "redirect"
)

// SessionAuthority is what the Guard needs from an AuthStore.
type SessionAuthority interface {
	IsAuthenticated() bool
	Restore(ctx context.Context) *Session
}

// RouteMeta describes one matched route record.
type RouteMeta struct {
	Name         string
	RequiresAuth bool
}

// Navigation is an attempted move to Path through the Matched route records,
// outermost first.
type Navigation struct {
	Path    string
	Matched []RouteMeta
}

// RequiresAuth reports whether any matched record requires authentication.
func (n Navigation) RequiresAuth() bool {
	for _, m := range n.Matched {
		if m.RequiresAuth {
			return true
		}
	}
	return false
}

// Decision is the outcome of a guard check. When Allow is false, Redirect
// holds the login location the user agent must be sent to.
type Decision struct {
	Allow    bool
	Redirect string
}

// GuardOption customizes a Guard.
type GuardOption func(*Guard)

// WithLoginPath sets the login entry point. Defaults to /login.
func WithLoginPath(path string) GuardOption {
	return func(g *Guard) {
		if path != "" {
			g.loginPath = path
		}
	}
}

// WithRedirectParam sets the query parameter carrying the requested path.
func WithRedirectParam(name string) GuardOption {
	return func(g *Guard) {
		if name != "" {
			g.redirectParam = name
		}
	}
}

// WithReturnURLKey sets the transient storage key of the intended destination.
func WithReturnURLKey(key string) GuardOption {
	return func(g *Guard) {
		if key != "" {
			g.returnURLKey = key
		}
	}
}

// WithGuardLogger sets the logger.
func WithGuardLogger(logger Logger) GuardOption {
	return func(g *Guard) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// Guard gates navigation to routes that require authentication.
type Guard struct {
	authority     SessionAuthority
	loginPath     string
	redirectParam string
	returnURLKey  string
	logger        Logger
}

// NewGuard creates a Guard backed by authority.
func NewGuard(authority SessionAuthority, opts ...GuardOption) *Guard {
	g := &Guard{
		authority:     authority,
		loginPath:     DefaultLoginPath,
		redirectParam: DefaultRedirectParam,
		returnURLKey:  ReturnURLKey,
		logger:        defLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	return g
}

// Check decides whether nav may proceed. A store that is not authenticated
// gets exactly one Restore attempt. When access is denied the requested
// path is written to transient before the redirect is returned.
func (g *Guard) Check(ctx context.Context, nav Navigation, transient Storage) Decision {
	if !nav.RequiresAuth() {
		return Decision{Allow: true}
	}

	if !g.authority.IsAuthenticated() {
		g.authority.Restore(ctx)
	}

	if g.authority.IsAuthenticated() {
		return Decision{Allow: true}
	}

	if transient != nil {
		if err := transient.Set(ctx, g.returnURLKey, nav.Path); err != nil {
			g.logger.Warn("guard: unable to remember %s: %v", nav.Path, err)
		}
	}

	g.logger.Debug("guard: unauthenticated navigation to %s, redirecting to login", nav.Path)
	return Decision{Redirect: g.LoginURL(nav.Path)}
}

// LoginURL returns the login entry point carrying path as the redirect hint.
func (g *Guard) LoginURL(path string) string {
	if path == "" {
		return g.loginPath
	}
	q := url.Values{}
	q.Set(g.redirectParam, path)
	sep := "?"
	if strings.Contains(g.loginPath, "?") {
		sep = "&"
	}
	return g.loginPath + sep + q.Encode()
}

// ConsumeReturnURL returns the intended destination recorded by a guard
// redirect and removes it, so it is honored at most once. Anything that is
// not a local absolute path yields fallback.
func ConsumeReturnURL(ctx context.Context, transient Storage, fallback string) string {
	return consumeReturnURL(ctx, transient, ReturnURLKey, fallback)
}

// ConsumeReturnURL is like the package level function but honors WithReturnURLKey.
func (g *Guard) ConsumeReturnURL(ctx context.Context, transient Storage, fallback string) string {
	return consumeReturnURL(ctx, transient, g.returnURLKey, fallback)
}

func consumeReturnURL(ctx context.Context, transient Storage, key, fallback string) string {
	if transient == nil {
		return fallback
	}
	value, ok, err := transient.Get(ctx, key)
	if err != nil || !ok {
		return fallback
	}
	_ = transient.Remove(ctx, key)

	if !IsLocalPath(value) {
		return fallback
	}
	return value
}

// IsLocalPath reports whether target is a path on the current origin.
func IsLocalPath(target string) bool {
	if target == "" || !strings.HasPrefix(target, "/") {
		return false
	}
	// protocol relative and backslash tricks
	if strings.HasPrefix(target, "//") || strings.HasPrefix(target, "/\\") {
		return false
	}
	u, err := url.Parse(target)
	if err != nil {
		return false
	}
	return u.Scheme == "" && u.Host == ""
}
