package oidc

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/oauth2"

	tenantauth "github.com/goliatone/go-tenant-auth"
)

// renewTimeout bounds a background refresh request.
const renewTimeout = 30 * time.Second

// watch arms renewal and the session monitor for session, replacing any
// previous schedule.
func (c *Client) watch(session *tenantauth.Session) {
	c.scheduleRenewal(session.ExpiresAt)
	if c.factory.cfg.MonitorSession {
		c.startMonitor()
	}
}

func (c *Client) scheduleRenewal(expiresAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	if c.renewTimer != nil {
		c.renewTimer.Stop()
		c.renewTimer = nil
	}
	if expiresAt.IsZero() {
		return
	}

	delay := expiresAt.Sub(c.factory.now()) - c.factory.cfg.RenewLeeway
	if delay < 0 {
		delay = 0
	}
	c.renewTimer = time.AfterFunc(delay, c.renew)
}

// renew runs when the access token is about to expire. Only the durable
// record is updated; holders of a Session pick up the new tokens on their
// next Restore.
func (c *Client) renew() {
	ctx, cancel := context.WithTimeout(context.Background(), renewTimeout)
	defer cancel()

	c.emit(tenantauth.ClientEvent{Type: tenantauth.EventAccessTokenExpiring})

	if !c.factory.cfg.SilentRenew {
		return
	}

	user, err := c.refresh(ctx)
	if err != nil {
		c.factory.logger.Warn("oidc: silent renew failed: organization=%s: %v", c.tenantScope, err)
		c.emit(tenantauth.ClientEvent{Type: tenantauth.EventSilentRenewError, Err: err})
		return
	}
	if user == nil {
		return
	}

	session := user.Session()
	c.emit(tenantauth.ClientEvent{Type: tenantauth.EventUserLoaded, Session: session})
	c.scheduleRenewal(session.ExpiresAt)
}

// refresh exchanges the stored refresh token. A nil user means there was no
// record to renew.
func (c *Client) refresh(ctx context.Context) (*StoredUser, error) {
	storage := c.factory.storage
	key := c.factory.userKey()

	user, _, err := loadUser(ctx, storage, key)
	if err != nil {
		return nil, err
	}
	if user == nil || user.TenantScope != c.tenantScope {
		return nil, nil
	}
	if user.RefreshToken == "" {
		return nil, fmt.Errorf("no refresh token available")
	}

	doc, err := c.factory.Discovery(ctx)
	if err != nil {
		return nil, err
	}

	source := c.oauthConfig(doc).TokenSource(c.factory.httpContext(ctx), &oauth2.Token{
		RefreshToken: user.RefreshToken,
		Expiry:       time.Unix(1, 0),
	})
	tok, err := source.Token()
	if err != nil {
		return nil, fmt.Errorf("refresh token: %w", err)
	}

	if rawIDToken, _ := tok.Extra("id_token").(string); rawIDToken != "" {
		claims, err := c.factory.verifier.Verify(ctx, rawIDToken, IDTokenExpectations{
			Issuer:   doc.Issuer,
			Audience: c.factory.cfg.ClientID,
		})
		if err != nil {
			return nil, err
		}
		if sub, _ := claims["sub"].(string); sub != user.Profile.Subject() {
			return nil, tenantauth.WrapCause(tenantauth.ErrIDTokenInvalid, fmt.Errorf("renewed id token subject changed"))
		}
		user.IDToken = rawIDToken
		user.Profile = profileFromClaims(claims).Merge(user.Profile)
	}

	user.AccessToken = tok.AccessToken
	if tok.RefreshToken != "" {
		user.RefreshToken = tok.RefreshToken
	}
	if tok.TokenType != "" {
		user.TokenType = tok.Type()
	}
	user.Scope = grantedScope(tok, user.Scope)
	user.ExpiresAt = c.expiresAt(tok).Unix()

	if err := saveUser(ctx, storage, key, user); err != nil {
		return nil, err
	}
	return user, nil
}

// startMonitor polls the durable record and reports a sign out once it is
// gone, for instance after a logout from another client of the same agent.
func (c *Client) startMonitor() {
	c.mu.Lock()
	if c.closed || c.monitorStop != nil {
		c.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	c.monitorStop = stop
	c.mu.Unlock()

	interval := c.factory.cfg.MonitorInterval
	if interval <= 0 {
		interval = tenantauth.DefaultMonitorInterval
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				user, _, err := loadUser(context.Background(), c.factory.storage, c.factory.userKey())
				if err != nil {
					c.factory.logger.Debug("oidc: session monitor: %v", err)
					continue
				}
				if user != nil && user.TenantScope == c.tenantScope {
					continue
				}

				c.stopBackground()
				c.emit(tenantauth.ClientEvent{Type: tenantauth.EventUserSignedOut})
				return
			}
		}
	}()
}

func (c *Client) stopBackground() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.renewTimer != nil {
		c.renewTimer.Stop()
		c.renewTimer = nil
	}
	if c.monitorStop != nil {
		close(c.monitorStop)
		c.monitorStop = nil
	}
}
