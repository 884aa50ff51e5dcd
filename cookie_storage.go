package tenantauth

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/goliatone/go-router"
)

const (
	DefaultCookiePrefix = "tenantauth_"
	DefaultCookieTTL    = 30 * time.Minute
)

// CookieStorage is a transient Storage kept in cookies of the current
// request. Each key becomes one cookie; values written during the request
// are visible to later reads of the same request.
type CookieStorage struct {
	ctx      router.Context
	prefix   string
	ttl      time.Duration
	secure   bool
	written  map[string]string
	removed  map[string]struct{}
	sameSite string
}

// CookieStorageOption customizes a CookieStorage.
type CookieStorageOption func(*CookieStorage)

// WithCookiePrefix sets the prefix prepended to every cookie name.
func WithCookiePrefix(prefix string) CookieStorageOption {
	return func(s *CookieStorage) {
		s.prefix = prefix
	}
}

// WithCookieTTL sets how long written cookies live.
func WithCookieTTL(ttl time.Duration) CookieStorageOption {
	return func(s *CookieStorage) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithCookieSecure sets the Secure flag.
func WithCookieSecure(secure bool) CookieStorageOption {
	return func(s *CookieStorage) {
		s.secure = secure
	}
}

// NewCookieStorage returns a CookieStorage bound to ctx.
func NewCookieStorage(ctx router.Context, opts ...CookieStorageOption) *CookieStorage {
	s := &CookieStorage{
		ctx:      ctx,
		prefix:   DefaultCookiePrefix,
		ttl:      DefaultCookieTTL,
		secure:   true,
		sameSite: "Lax",
		written:  map[string]string{},
		removed:  map[string]struct{}{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *CookieStorage) Get(_ context.Context, key string) (string, bool, error) {
	if v, ok := s.written[key]; ok {
		return v, true, nil
	}
	if _, ok := s.removed[key]; ok {
		return "", false, nil
	}
	raw := s.ctx.Cookies(s.cookieName(key))
	if raw == "" {
		return "", false, nil
	}
	value, err := url.QueryUnescape(raw)
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (s *CookieStorage) Set(_ context.Context, key, value string) error {
	s.written[key] = value
	delete(s.removed, key)
	s.ctx.Cookie(&router.Cookie{
		Name:     s.cookieName(key),
		Value:    url.QueryEscape(value),
		Path:     "/",
		Expires:  time.Now().Add(s.ttl),
		HTTPOnly: true,
		Secure:   s.secure,
		SameSite: s.sameSite,
	})
	return nil
}

func (s *CookieStorage) Remove(_ context.Context, key string) error {
	delete(s.written, key)
	s.removed[key] = struct{}{}
	s.ctx.Cookie(&router.Cookie{
		Name:     s.cookieName(key),
		Value:    "",
		Path:     "/",
		Expires:  time.Now().Add(-time.Hour * (24 * 365)),
		HTTPOnly: true,
		Secure:   s.secure,
		SameSite: s.sameSite,
	})
	return nil
}

// Keys returns the keys written during this request. Cookies sent by the
// user agent can't be enumerated through router.Context.
func (s *CookieStorage) Keys(context.Context) ([]string, error) {
	keys := make([]string, 0, len(s.written))
	for k := range s.written {
		keys = append(keys, k)
	}
	return keys, nil
}

func (s *CookieStorage) cookieName(key string) string {
	return s.prefix + strings.ReplaceAll(key, ".", "_")
}
