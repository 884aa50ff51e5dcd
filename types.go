package tenantauth

import (
	"context"
	"fmt"
	"net/url"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Storage is a durable key/value store shared by every session client
// scoped to the same authority and client identity.
// Get reports ok=false when the key is absent.
type Storage interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
	Keys(ctx context.Context) ([]string, error)
}

// SessionClient is a tenant scoped OIDC client bound to durable storage.
type SessionClient interface {
	TenantScope() string
	// BeginLogin navigates the user agent to the identity provider.
	// A nil error means navigation was issued and the caller must stop.
	BeginLogin(ctx context.Context) error
	// CompleteLogin exchanges the authorization code found in params.
	CompleteLogin(ctx context.Context, params CallbackParams) (*Session, error)
	// BeginLogout navigates the user agent to the end session endpoint.
	BeginLogout(ctx context.Context) error
	// Restore loads a previously stored session, (nil, nil) when none exists.
	Restore(ctx context.Context) (*Session, error)
	Subscribe(handler ClientEventHandler)
	Close() error
}

// ClientFactory builds tenant scoped session clients.
type ClientFactory interface {
	Create(tenantScope string) (SessionClient, error)
}

// ClientFactoryFunc adapts a function to the ClientFactory interface.
type ClientFactoryFunc func(tenantScope string) (SessionClient, error)

// Create implements ClientFactory.
func (f ClientFactoryFunc) Create(tenantScope string) (SessionClient, error) {
	return f(tenantScope)
}

// Navigator moves the user agent to target. Implementations decide what
// "navigate" means: an HTTP redirect, opening a browser, printing a URL.
type Navigator interface {
	Navigate(ctx context.Context, target string) error
}

// NavigatorFunc adapts a function to the Navigator interface.
type NavigatorFunc func(ctx context.Context, target string) error

// Navigate implements Navigator.
func (f NavigatorFunc) Navigate(ctx context.Context, target string) error {
	if f == nil {
		return ErrNavigationUnavailable
	}
	return f(ctx, target)
}

// CallbackParams holds the query parameters the identity provider sends
// back to the redirect URI.
type CallbackParams struct {
	Code             string
	State            string
	Error            string
	ErrorDescription string
}

// ParseCallback extracts CallbackParams from a callback query string.
func ParseCallback(values url.Values) CallbackParams {
	return CallbackParams{
		Code:             values.Get("code"),
		State:            values.Get("state"),
		Error:            values.Get("error"),
		ErrorDescription: values.Get("error_description"),
	}
}

// ParseCallbackURL extracts CallbackParams from a full callback URL.
func ParseCallbackURL(raw string) (CallbackParams, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return CallbackParams{}, fmt.Errorf("parse callback url: %w", err)
	}
	return ParseCallback(u.Query()), nil
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] TENANTAUTH "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] TENANTAUTH "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] TENANTAUTH "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] TENANTAUTH "+newline(format), args...)
}

// NopLogger discards everything.
type NopLogger struct{}

func (NopLogger) Debug(string, ...any) {}
func (NopLogger) Info(string, ...any)  {}
func (NopLogger) Warn(string, ...any)  {}
func (NopLogger) Error(string, ...any) {}

// DefaultLogger returns the stdout logger used when none is configured.
func DefaultLogger() Logger {
	return defLogger{}
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
