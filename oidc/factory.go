package oidc

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"

	tenantauth "github.com/goliatone/go-tenant-auth"
)

// DefaultDiscoveryTTL is how long a fetched discovery document is reused.
const DefaultDiscoveryTTL = time.Hour

// FactoryOption customizes a Factory.
type FactoryOption func(*Factory)

// WithHTTPClient sets the client used for every request to the provider.
func WithHTTPClient(client *http.Client) FactoryOption {
	return func(f *Factory) {
		if client != nil {
			f.httpClient = client
		}
	}
}

// WithFactoryLogger sets the logger.
func WithFactoryLogger(logger tenantauth.Logger) FactoryOption {
	return func(f *Factory) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// WithClock injects a custom clock (useful for tests).
func WithClock(clock func() time.Time) FactoryOption {
	return func(f *Factory) {
		if clock != nil {
			f.now = clock
		}
	}
}

// WithNavigator sets the Navigator used when the context carries none.
func WithNavigator(nav tenantauth.Navigator) FactoryOption {
	return func(f *Factory) {
		f.navigator = nav
	}
}

// WithIDTokenVerifier replaces the JWKS based ID token verification.
func WithIDTokenVerifier(verifier IDTokenVerifier) FactoryOption {
	return func(f *Factory) {
		if verifier != nil {
			f.verifier = verifier
		}
	}
}

// WithDiscovery uses a static discovery document instead of fetching it.
func WithDiscovery(doc *Discovery) FactoryOption {
	return func(f *Factory) {
		if doc != nil {
			f.staticDiscovery = doc
		}
	}
}

// WithDiscoveryTTL sets how long a fetched discovery document is reused.
func WithDiscoveryTTL(ttl time.Duration) FactoryOption {
	return func(f *Factory) {
		f.discoveryTTL = ttl
	}
}

// Factory builds tenant scoped session clients that share one configuration,
// one durable storage and the provider metadata caches.
type Factory struct {
	cfg     tenantauth.Config
	storage tenantauth.Storage

	httpClient      *http.Client
	logger          tenantauth.Logger
	now             func() time.Time
	navigator       tenantauth.Navigator
	verifier        IDTokenVerifier
	staticDiscovery *Discovery
	discoveryTTL    time.Duration

	discovery *discoveryCache
	jwks      *jwksKeyfunc
}

var _ tenantauth.ClientFactory = (*Factory)(nil)
var _ tenantauth.FactoryBinder = (*Factory)(nil)

// NewFactory creates a Factory. No request is made to the provider until a
// client needs the discovery document.
func NewFactory(cfg tenantauth.Config, storage tenantauth.Storage, opts ...FactoryOption) *Factory {
	f := &Factory{
		cfg:          cfg,
		storage:      storage,
		httpClient:   http.DefaultClient,
		logger:       tenantauth.DefaultLogger(),
		now:          time.Now,
		discoveryTTL: DefaultDiscoveryTTL,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}

	f.discovery = newDiscoveryCache(cfg.IssuerURL(), f.discoveryTTL)
	if f.staticDiscovery != nil {
		f.discovery.set(f.staticDiscovery)
	}

	if f.verifier == nil {
		f.jwks = &jwksKeyfunc{client: f.httpClient, logger: f.logger}
		f.verifier = newKeyfuncVerifier(func(ctx context.Context) (jwt.Keyfunc, error) {
			doc, err := f.Discovery(ctx)
			if err != nil {
				return nil, err
			}
			if doc.JwksURI == "" {
				return nil, fmt.Errorf("discovery document: jwks_uri is missing")
			}
			return f.jwks.get(doc.JwksURI)
		}, WithVerifierClock(f.now))
	}

	return f
}

// Create implements tenantauth.ClientFactory.
func (f *Factory) Create(tenantScope string) (tenantauth.SessionClient, error) {
	tenantScope = strings.TrimSpace(tenantScope)
	if tenantScope == "" {
		return nil, tenantauth.ErrInvalidTenantScope
	}
	return newClient(f, tenantScope), nil
}

// Bind implements tenantauth.FactoryBinder. The returned factory keeps its
// records in storage and shares the provider caches with f.
func (f *Factory) Bind(storage tenantauth.Storage) tenantauth.ClientFactory {
	bound := *f
	bound.storage = storage
	return &bound
}

// Config returns the configuration clients are built with.
func (f *Factory) Config() tenantauth.Config {
	return f.cfg
}

// Scope returns the scope string requested for tenantScope.
func (f *Factory) Scope(tenantScope string) string {
	return f.cfg.ScopeFor(tenantScope)
}

// Discovery returns the provider metadata, fetching it on first use.
func (f *Factory) Discovery(ctx context.Context) (*Discovery, error) {
	return f.discovery.get(ctx, f.httpClient, f.now())
}

// ClearStaleState removes abandoned sign ins older than maxAge.
func (f *Factory) ClearStaleState(ctx context.Context, maxAge time.Duration) (int, error) {
	return ClearStaleState(ctx, f.storage, maxAge, f.now())
}

// Close stops background JWKS refreshes.
func (f *Factory) Close() error {
	if f.jwks != nil {
		f.jwks.close()
	}
	return nil
}

func (f *Factory) userKey() string {
	return UserKey(f.cfg.Authority, f.cfg.ClientID)
}

func (f *Factory) navigatorFor(ctx context.Context) (tenantauth.Navigator, error) {
	if nav, ok := tenantauth.NavigatorFromContext(ctx); ok {
		return nav, nil
	}
	if f.navigator != nil {
		return f.navigator, nil
	}
	return nil, tenantauth.ErrNavigationUnavailable
}

func (f *Factory) httpContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, f.httpClient)
}
