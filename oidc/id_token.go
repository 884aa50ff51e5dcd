package oidc

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"

	tenantauth "github.com/goliatone/go-tenant-auth"
)

// DefaultSigningMethods are the ID token algorithms accepted by default.
var DefaultSigningMethods = []string{"RS256", "RS384", "RS512", "ES256", "ES384", "ES512", "PS256"}

// protocolClaims are token bookkeeping claims left out of the profile.
var protocolClaims = []string{"iss", "aud", "exp", "iat", "nbf", "jti", "nonce", "at_hash", "c_hash", "azp", "auth_time", "acr", "amr", "sid"}

// IDTokenExpectations are the values an ID token must carry.
// An empty Nonce skips the nonce check, as on refresh.
type IDTokenExpectations struct {
	Issuer   string
	Audience string
	Nonce    string
}

// IDTokenVerifier verifies a raw ID token and returns its claims.
type IDTokenVerifier interface {
	Verify(ctx context.Context, rawIDToken string, expect IDTokenExpectations) (jwt.MapClaims, error)
}

// IDTokenVerifierFunc adapts a function to the IDTokenVerifier interface.
type IDTokenVerifierFunc func(ctx context.Context, rawIDToken string, expect IDTokenExpectations) (jwt.MapClaims, error)

// Verify implements IDTokenVerifier.
func (f IDTokenVerifierFunc) Verify(ctx context.Context, rawIDToken string, expect IDTokenExpectations) (jwt.MapClaims, error) {
	return f(ctx, rawIDToken, expect)
}

// KeyfuncVerifier checks ID token signatures with a jwt.Keyfunc.
type KeyfuncVerifier struct {
	keyfunc func(ctx context.Context) (jwt.Keyfunc, error)
	methods []string
	leeway  time.Duration
	now     func() time.Time
}

// VerifierOption customizes a KeyfuncVerifier.
type VerifierOption func(*KeyfuncVerifier)

// WithSigningMethods restricts the accepted algorithms.
func WithSigningMethods(methods ...string) VerifierOption {
	return func(v *KeyfuncVerifier) {
		if len(methods) > 0 {
			v.methods = methods
		}
	}
}

// WithVerifierLeeway tolerates clock skew when checking exp, nbf and iat.
func WithVerifierLeeway(leeway time.Duration) VerifierOption {
	return func(v *KeyfuncVerifier) {
		v.leeway = leeway
	}
}

// WithVerifierClock injects a custom clock (useful for tests).
func WithVerifierClock(clock func() time.Time) VerifierOption {
	return func(v *KeyfuncVerifier) {
		if clock != nil {
			v.now = clock
		}
	}
}

// NewGivenKeyVerifier verifies tokens against a fixed set of keys indexed by kid.
func NewGivenKeyVerifier(keys map[string]keyfunc.GivenKey, opts ...VerifierOption) *KeyfuncVerifier {
	given := keyfunc.NewGiven(keys)
	return newKeyfuncVerifier(func(context.Context) (jwt.Keyfunc, error) {
		return given.Keyfunc, nil
	}, opts...)
}

func newKeyfuncVerifier(fn func(ctx context.Context) (jwt.Keyfunc, error), opts ...VerifierOption) *KeyfuncVerifier {
	v := &KeyfuncVerifier{
		keyfunc: fn,
		methods: DefaultSigningMethods,
		now:     time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}
	return v
}

// Verify implements IDTokenVerifier.
func (v *KeyfuncVerifier) Verify(ctx context.Context, rawIDToken string, expect IDTokenExpectations) (jwt.MapClaims, error) {
	if rawIDToken == "" {
		return nil, tenantauth.WrapCause(tenantauth.ErrIDTokenInvalid, fmt.Errorf("id token is missing"))
	}

	kf, err := v.keyfunc(ctx)
	if err != nil {
		return nil, tenantauth.WrapCause(tenantauth.ErrIDTokenInvalid, err)
	}

	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods(v.methods),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(v.now),
		jwt.WithLeeway(v.leeway),
	}
	if expect.Issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(expect.Issuer))
	}
	if expect.Audience != "" {
		parserOpts = append(parserOpts, jwt.WithAudience(expect.Audience))
	}

	claims := jwt.MapClaims{}
	if _, err := jwt.ParseWithClaims(rawIDToken, claims, kf, parserOpts...); err != nil {
		return nil, tenantauth.WrapCause(tenantauth.ErrIDTokenInvalid, err)
	}

	if sub, _ := claims["sub"].(string); sub == "" {
		return nil, tenantauth.WrapCause(tenantauth.ErrIDTokenInvalid, fmt.Errorf("sub claim is missing"))
	}

	if expect.Nonce != "" {
		if nonce, _ := claims["nonce"].(string); nonce != expect.Nonce {
			return nil, tenantauth.WrapCause(tenantauth.ErrIDTokenInvalid, fmt.Errorf("nonce mismatch"))
		}
	}

	return claims, nil
}

// jwksKeyfunc lazily fetches the provider JWKS once its URL is known and
// refreshes it in the background.
type jwksKeyfunc struct {
	client *http.Client
	logger tenantauth.Logger

	mu   sync.Mutex
	url  string
	jwks *keyfunc.JWKS
}

func (j *jwksKeyfunc) get(url string) (jwt.Keyfunc, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.jwks != nil && j.url == url {
		return j.jwks.Keyfunc, nil
	}

	jwks, err := keyfunc.Get(url, keyfunc.Options{
		Client: j.client,
		RefreshErrorHandler: func(err error) {
			j.logger.Warn("failed to do a background refresh of JWKS %s: %v", url, err)
		},
		RefreshInterval:   time.Hour,
		RefreshRateLimit:  time.Minute * 5,
		RefreshTimeout:    time.Second * 10,
		RefreshUnknownKID: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get JWKS from %s: %w", url, err)
	}

	if j.jwks != nil {
		j.jwks.EndBackground()
	}
	j.jwks = jwks
	j.url = url
	return jwks.Keyfunc, nil
}

func (j *jwksKeyfunc) close() {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.jwks != nil {
		j.jwks.EndBackground()
		j.jwks = nil
	}
}

// profileFromClaims drops protocol claims, keeping identity claims.
func profileFromClaims(claims jwt.MapClaims) tenantauth.ProfileClaims {
	profile := make(tenantauth.ProfileClaims, len(claims))
	for k, v := range claims {
		profile[k] = v
	}
	for _, k := range protocolClaims {
		delete(profile, k)
	}
	return profile
}
