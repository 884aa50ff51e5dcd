package oidc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"golang.org/x/oauth2"

	tenantauth "github.com/goliatone/go-tenant-auth"
)

// Client is a tenant scoped OIDC session client. It keeps the token record
// in the factory storage, renews it before expiry and watches it for
// sign outs made elsewhere.
type Client struct {
	factory     *Factory
	tenantScope string
	scope       string

	mu          sync.Mutex
	handlers    []tenantauth.ClientEventHandler
	renewTimer  *time.Timer
	monitorStop chan struct{}
	closed      bool
}

var _ tenantauth.SessionClient = (*Client)(nil)

func newClient(f *Factory, tenantScope string) *Client {
	return &Client{
		factory:     f,
		tenantScope: tenantScope,
		scope:       f.Scope(tenantScope),
	}
}

// TenantScope implements tenantauth.SessionClient.
func (c *Client) TenantScope() string {
	return c.tenantScope
}

// Scope returns the scope string requested at the provider.
func (c *Client) Scope() string {
	return c.scope
}

// AuthCodeURL stores a new pending sign in and returns the authorization
// request URL for it.
func (c *Client) AuthCodeURL(ctx context.Context) (string, error) {
	doc, err := c.factory.Discovery(ctx)
	if err != nil {
		return "", err
	}

	state := SigninState{
		ID:           uuid.NewString(),
		CodeVerifier: oauth2.GenerateVerifier(),
		Nonce:        uuid.NewString(),
		TenantScope:  c.tenantScope,
		RedirectURI:  c.factory.cfg.RedirectURI,
		Scope:        c.scope,
		Created:      c.factory.now().Unix(),
	}
	if err := saveSigninState(ctx, c.factory.storage, state); err != nil {
		return "", err
	}

	return c.oauthConfig(doc).AuthCodeURL(state.ID,
		oauth2.S256ChallengeOption(state.CodeVerifier),
		oauth2.SetAuthURLParam("nonce", state.Nonce),
	), nil
}

// BeginLogin implements tenantauth.SessionClient.
func (c *Client) BeginLogin(ctx context.Context) error {
	nav, err := c.factory.navigatorFor(ctx)
	if err != nil {
		return err
	}

	target, err := c.AuthCodeURL(ctx)
	if err != nil {
		return err
	}

	c.factory.logger.Debug("oidc: redirecting to authorization endpoint: organization=%s", c.tenantScope)
	return nav.Navigate(ctx, target)
}

// CompleteLogin implements tenantauth.SessionClient.
func (c *Client) CompleteLogin(ctx context.Context, params tenantauth.CallbackParams) (*tenantauth.Session, error) {
	if params.Error != "" {
		if params.State != "" {
			_ = c.factory.storage.Remove(ctx, signinStateKey(params.State))
		}
		return nil, tenantauth.WrapCause(tenantauth.ErrProviderError, providerError(params))
	}

	state, err := takeSigninState(ctx, c.factory.storage, params.State)
	if err != nil {
		return nil, err
	}
	// a later login for another organization replaced the selected one
	if state.TenantScope != c.tenantScope {
		return nil, tenantauth.WrapCause(tenantauth.ErrInvalidState,
			fmt.Errorf("signin state was issued for organization %q, not %q", state.TenantScope, c.tenantScope))
	}
	if params.Code == "" {
		return nil, errors.New("authorization code is missing", errors.CategoryBadInput).
			WithCode(errors.CodeBadRequest)
	}

	doc, err := c.factory.Discovery(ctx)
	if err != nil {
		return nil, err
	}

	cfg := c.oauthConfig(doc)
	cfg.RedirectURL = state.RedirectURI

	tok, err := cfg.Exchange(c.factory.httpContext(ctx), params.Code, oauth2.VerifierOption(state.CodeVerifier))
	if err != nil {
		return nil, fmt.Errorf("exchange authorization code: %w", err)
	}

	rawIDToken, _ := tok.Extra("id_token").(string)
	claims, err := c.factory.verifier.Verify(ctx, rawIDToken, IDTokenExpectations{
		Issuer:   doc.Issuer,
		Audience: c.factory.cfg.ClientID,
		Nonce:    state.Nonce,
	})
	if err != nil {
		return nil, err
	}

	profile := profileFromClaims(claims)
	if c.factory.cfg.LoadUserInfo && doc.UserinfoEndpoint != "" {
		profile, err = c.mergeUserInfo(ctx, doc, tok, profile)
		if err != nil {
			return nil, err
		}
	}

	user := &StoredUser{
		IDToken:      rawIDToken,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.Type(),
		Scope:        grantedScope(tok, state.Scope),
		Profile:      profile,
		ExpiresAt:    c.expiresAt(tok).Unix(),
		TenantScope:  c.tenantScope,
	}
	if err := saveUser(ctx, c.factory.storage, c.factory.userKey(), user); err != nil {
		return nil, err
	}

	session := user.Session()
	c.watch(session)
	c.emit(tenantauth.ClientEvent{Type: tenantauth.EventUserLoaded, Session: session})
	return session, nil
}

// BeginLogout implements tenantauth.SessionClient. The token record is
// removed before navigating so the session is gone locally even if the
// provider can't be reached.
func (c *Client) BeginLogout(ctx context.Context) error {
	c.stopBackground()

	user, _, loadErr := loadUser(ctx, c.factory.storage, c.factory.userKey())
	if loadErr != nil {
		c.factory.logger.Warn("oidc: logout: %v", loadErr)
	}
	if err := c.factory.storage.Remove(ctx, c.factory.userKey()); err != nil {
		return fmt.Errorf("remove user record: %w", err)
	}

	nav, err := c.factory.navigatorFor(ctx)
	if err != nil {
		return err
	}

	doc, err := c.factory.Discovery(ctx)
	if err != nil {
		return err
	}
	if doc.EndSessionEndpoint == "" {
		return fmt.Errorf("discovery document: end_session_endpoint is missing")
	}

	target, err := endSessionURL(doc.EndSessionEndpoint, user, c.factory.cfg)
	if err != nil {
		return err
	}
	return nav.Navigate(ctx, target)
}

// Restore implements tenantauth.SessionClient. A record written for a
// different organization is ignored.
func (c *Client) Restore(ctx context.Context) (*tenantauth.Session, error) {
	user, _, err := loadUser(ctx, c.factory.storage, c.factory.userKey())
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, nil
	}
	if user.TenantScope != "" && user.TenantScope != c.tenantScope {
		c.factory.logger.Debug("oidc: stored session belongs to %s, not %s", user.TenantScope, c.tenantScope)
		return nil, nil
	}

	session := user.Session()
	c.watch(session)
	return session, nil
}

// Subscribe implements tenantauth.SessionClient.
func (c *Client) Subscribe(handler tenantauth.ClientEventHandler) {
	if handler == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = append(c.handlers, handler)
}

// Close implements tenantauth.SessionClient.
func (c *Client) Close() error {
	c.mu.Lock()
	c.closed = true
	c.handlers = nil
	c.mu.Unlock()
	c.stopBackground()
	return nil
}

func (c *Client) oauthConfig(doc *Discovery) *oauth2.Config {
	return &oauth2.Config{
		ClientID: c.factory.cfg.ClientID,
		Endpoint: oauth2.Endpoint{
			AuthURL:   doc.AuthorizationEndpoint,
			TokenURL:  doc.TokenEndpoint,
			AuthStyle: oauth2.AuthStyleInParams,
		},
		RedirectURL: c.factory.cfg.RedirectURI,
		Scopes:      []string{c.scope},
	}
}

// expiresAt prefers expires_in measured against the factory clock over the
// wall clock expiry computed by oauth2.
func (c *Client) expiresAt(tok *oauth2.Token) time.Time {
	var seconds int64
	switch v := tok.Extra("expires_in").(type) {
	case float64:
		seconds = int64(v)
	case int64:
		seconds = v
	case json.Number:
		seconds, _ = v.Int64()
	case string:
		seconds, _ = strconv.ParseInt(v, 10, 64)
	}
	if seconds > 0 {
		return c.factory.now().Add(time.Duration(seconds) * time.Second)
	}
	if !tok.Expiry.IsZero() {
		return tok.Expiry
	}
	return c.factory.now().Add(time.Hour)
}

func (c *Client) mergeUserInfo(ctx context.Context, doc *Discovery, tok *oauth2.Token, profile tenantauth.ProfileClaims) (tenantauth.ProfileClaims, error) {
	info, err := fetchUserInfo(c.factory.httpContext(ctx), c.oauthConfig(doc), doc.UserinfoEndpoint, tok)
	if err != nil {
		return nil, err
	}
	if sub, _ := info["sub"].(string); sub != profile.Subject() {
		return nil, tenantauth.WrapCause(tenantauth.ErrIDTokenInvalid,
			fmt.Errorf("userinfo subject %q does not match id token subject", sub))
	}
	return profile.Merge(info), nil
}

func (c *Client) emit(event tenantauth.ClientEvent) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	handlers := append([]tenantauth.ClientEventHandler(nil), c.handlers...)
	c.mu.Unlock()

	if event.TenantScope == "" {
		event.TenantScope = c.tenantScope
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = c.factory.now()
	}
	for _, handler := range handlers {
		handler(event)
	}
}

func providerError(params tenantauth.CallbackParams) error {
	if params.ErrorDescription == "" {
		return fmt.Errorf("%s", params.Error)
	}
	return fmt.Errorf("%s: %s", params.Error, params.ErrorDescription)
}

func grantedScope(tok *oauth2.Token, requested string) string {
	if scope, ok := tok.Extra("scope").(string); ok && scope != "" {
		return scope
	}
	return requested
}

func endSessionURL(endpoint string, user *StoredUser, cfg tenantauth.Config) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("parse end_session_endpoint: %w", err)
	}
	q := u.Query()
	if user != nil && user.IDToken != "" {
		q.Set("id_token_hint", user.IDToken)
	}
	q.Set("client_id", cfg.ClientID)
	if cfg.PostLogoutRedirectURI != "" {
		q.Set("post_logout_redirect_uri", cfg.PostLogoutRedirectURI)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
