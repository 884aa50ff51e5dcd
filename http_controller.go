package tenantauth

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
)

// RouteRegistrar captures the router methods used by the controller.
type RouteRegistrar interface {
	Get(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
	Post(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
}

// HTTPRoutes are the paths served by HTTPController.
type HTTPRoutes struct {
	LoginStart string
	Callback   string
	Logout     string
	Session    string
}

// HTTPConfig configures the HTTP controller.
type HTTPConfig struct {
	Routes HTTPRoutes

	// OrganizationParam is the query parameter naming the organization (default: "organization")
	OrganizationParam string

	// RedirectParam is the query parameter carrying the intended destination (default: "redirect")
	RedirectParam string

	// SuccessRedirect is where a completed login lands when no destination was recorded
	SuccessRedirect string

	// ErrorRedirect is the redirect for auth errors
	ErrorRedirect string

	// LogoutRedirect is used when logout had no provider session to end
	LogoutRedirect string

	// Transient returns the per request storage holding the intended destination.
	// Defaults to cookie storage.
	Transient func(ctx router.Context) Storage

	// ErrorHandler handles errors (optional)
	ErrorHandler func(ctx router.Context, err error) error

	Logger Logger
	Debug  bool
}

// HTTPController exposes the auth store operations of each user agent over HTTP.
type HTTPController struct {
	agents AgentResolver
	config HTTPConfig
}

// NewHTTPController creates a new HTTP controller.
func NewHTTPController(agents AgentResolver, cfg HTTPConfig) *HTTPController {
	if cfg.Routes.LoginStart == "" {
		cfg.Routes.LoginStart = "/login/start"
	}
	if cfg.Routes.Callback == "" {
		cfg.Routes.Callback = "/auth/callback"
	}
	if cfg.Routes.Logout == "" {
		cfg.Routes.Logout = "/logout"
	}
	if cfg.Routes.Session == "" {
		cfg.Routes.Session = "/auth/session"
	}
	if cfg.OrganizationParam == "" {
		cfg.OrganizationParam = "organization"
	}
	if cfg.RedirectParam == "" {
		cfg.RedirectParam = DefaultRedirectParam
	}
	if cfg.SuccessRedirect == "" {
		cfg.SuccessRedirect = "/"
	}
	if cfg.ErrorRedirect == "" {
		cfg.ErrorRedirect = "/login?error=auth_failed"
	}
	if cfg.LogoutRedirect == "" {
		cfg.LogoutRedirect = "/"
	}
	if cfg.Transient == nil {
		cfg.Transient = func(ctx router.Context) Storage {
			return NewCookieStorage(ctx)
		}
	}
	if cfg.Logger == nil {
		cfg.Logger = defLogger{}
	}

	return &HTTPController{
		agents: agents,
		config: cfg,
	}
}

// RegisterRoutes registers the auth routes.
func (c *HTTPController) RegisterRoutes(group RouteRegistrar) {
	group.Get(c.config.Routes.LoginStart, c.LoginStart)
	group.Get(c.config.Routes.Callback, c.Callback)
	group.Post(c.config.Routes.Logout, c.Logout)
	group.Get(c.config.Routes.Session, c.Session)
}

// LoginStart begins the authorization code flow for the requested organization.
func (c *HTTPController) LoginStart(ctx router.Context) error {
	organization := strings.TrimSpace(ctx.Query(c.config.OrganizationParam))

	transient := c.config.Transient(ctx)
	if dest := ctx.Query(c.config.RedirectParam); dest != "" && IsLocalPath(dest) {
		if err := transient.Set(ctx.Context(), ReturnURLKey, dest); err != nil {
			c.config.Logger.Warn("login start: unable to remember %s: %v", dest, err)
		}
	}

	nav := &redirectRecorder{}
	store := c.agents.StoreFor(ctx)
	if err := store.Login(ContextWithNavigator(ctx.Context(), nav), organization); err != nil {
		return c.handleError(ctx, err)
	}

	target, ok := nav.Target()
	if !ok {
		return ctx.Redirect(c.config.SuccessRedirect, http.StatusFound)
	}
	return ctx.Redirect(target, http.StatusFound)
}

// Callback completes the login and sends the user agent to its intended
// destination.
func (c *HTTPController) Callback(ctx router.Context) error {
	params := CallbackParams{
		Code:             ctx.Query("code"),
		State:            ctx.Query("state"),
		Error:            ctx.Query("error"),
		ErrorDescription: ctx.Query("error_description"),
	}

	store := c.agents.StoreFor(ctx)
	session, err := store.HandleCallback(ctx.Context(), params)
	if err != nil {
		return c.handleError(ctx, err)
	}

	if c.config.Debug {
		c.config.Logger.Debug("callback session: %s", print.MaybePrettyJSON(sessionView(session, time.Now())))
	}

	target := ConsumeReturnURL(ctx.Context(), c.config.Transient(ctx), c.config.SuccessRedirect)
	return ctx.Redirect(target, http.StatusFound)
}

// Logout ends the session and, when one existed, the provider session.
func (c *HTTPController) Logout(ctx router.Context) error {
	nav := &redirectRecorder{}
	store := c.agents.StoreFor(ctx)
	store.Logout(ContextWithNavigator(ctx.Context(), nav))

	if err := store.Err(); err != nil {
		c.config.Logger.Warn("logout: %s", ErrorMessage(err))
	}

	target, ok := nav.Target()
	if !ok {
		target = c.config.LogoutRedirect
	}
	return ctx.Redirect(target, http.StatusSeeOther)
}

// Session reports the auth state of the user agent. Tokens are never included.
func (c *HTTPController) Session(ctx router.Context) error {
	store := c.agents.StoreFor(ctx)
	store.Restore(ctx.Context())

	state := store.State()
	payload := map[string]any{
		"authenticated": state.IsAuthenticated,
		"status":        state.Status,
		"organization":  state.TenantScope,
		"loading":       state.IsLoading,
		"error":         state.Error,
	}
	if state.IsAuthenticated {
		payload["user"] = sessionView(state.Session, time.Now())
	}

	return ctx.JSON(router.StatusOK, payload)
}

func (c *HTTPController) handleError(ctx router.Context, err error) error {
	c.config.Logger.Error("auth request failed: %s", ErrorMessage(err))

	if c.config.ErrorHandler != nil {
		return c.config.ErrorHandler(ctx, err)
	}

	redirectURL := appendQueryParam(c.config.ErrorRedirect, "message", ErrorMessage(err))
	return ctx.Redirect(redirectURL, http.StatusFound)
}

func sessionView(session *Session, now time.Time) map[string]any {
	if session == nil {
		return nil
	}
	profile := session.Profile
	return map[string]any{
		"sub":                 session.Subject,
		"name":                profile.Name(),
		"email":               profile.Email(),
		"email_verified":      profile.EmailVerified(),
		"preferred_username":  profile.PreferredUsername(),
		"organization":        session.TenantScope,
		"organization_domain": profile.OrganizationDomain(),
		"expires_at":          session.ExpiresAt.UTC(),
		"expires_in":          int64(session.ExpiresIn(now).Seconds()),
	}
}

// redirectRecorder is the Navigator used while serving a request: the
// target is returned to the user agent once the store operation completes.
type redirectRecorder struct {
	mu     sync.Mutex
	target string
	set    bool
}

func (r *redirectRecorder) Navigate(_ context.Context, target string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.target = target
	r.set = true
	return nil
}

func (r *redirectRecorder) Target() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.target, r.set
}

func appendQueryParam(rawURL, key, value string) string {
	if rawURL == "" {
		return ""
	}

	parsed, err := url.Parse(rawURL)
	if err == nil {
		query := parsed.Query()
		query.Set(key, value)
		parsed.RawQuery = query.Encode()
		return parsed.String()
	}

	sep := "?"
	if strings.Contains(rawURL, "?") {
		sep = "&"
	}
	return rawURL + sep + url.QueryEscape(key) + "=" + url.QueryEscape(value)
}
