package tenantauth_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/goliatone/go-router"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	tenantauth "github.com/goliatone/go-tenant-auth"
	"github.com/goliatone/go-tenant-auth/storage"
)

func restorableStore(t *testing.T, tenant string, session *tenantauth.Session) (*tenantauth.AuthStore, *MockSessionClient) {
	t.Helper()

	durable := storage.NewMemory()
	if tenant != "" {
		require.NoError(t, durable.Set(context.Background(), tenantauth.DefaultTenantKey, tenant))
	}

	client := NewMockSessionClient(tenant)
	client.On("Restore", mock.Anything).Return(session, nil)

	factory := &MockClientFactory{}
	factory.On("Create", tenant).Return(client, nil)

	store := tenantauth.NewAuthStore(factory, durable, tenantauth.WithStoreLogger(tenantauth.NopLogger{}))
	return store, client
}

func protectOpts(transient tenantauth.Storage, path string) []tenantauth.ProtectOption {
	return []tenantauth.ProtectOption{
		tenantauth.WithProtectTransient(func(router.Context) tenantauth.Storage { return transient }),
		tenantauth.WithProtectPath(func(router.Context) string { return path }),
		tenantauth.WithProtectLogger(tenantauth.NopLogger{}),
	}
}

func TestRequireAuthRedirectsAnonymousRequests(t *testing.T) {
	store, _ := restorableStore(t, "", nil)
	transient := storage.NewMemory()

	mw := tenantauth.RequireAuth(tenantauth.AgentResolverFunc(func(router.Context) *tenantauth.AuthStore {
		return store
	}), protectOpts(transient, "/dashboard")...)

	ctx := router.NewMockContext()
	ctx.On("Context").Return(context.Background())

	var redirectURL string
	ctx.On("Redirect", mock.Anything, []int{http.StatusFound}).Run(func(args mock.Arguments) {
		redirectURL = args.String(0)
	}).Return(nil)

	called := false
	handler := mw(func(router.Context) error {
		called = true
		return nil
	})

	require.NoError(t, handler(ctx))
	assert.False(t, called)
	assert.Equal(t, "/login?redirect=%2Fdashboard", redirectURL)

	returnURL, ok, err := transient.Get(context.Background(), tenantauth.ReturnURLKey)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "/dashboard", returnURL)
}

func TestRequireAuthRestoresAndExposesSession(t *testing.T) {
	session := testSession("user-123", "Acme-42", time.Now().Add(time.Hour))
	store, client := restorableStore(t, "Acme-42", session)

	mw := tenantauth.RequireAuth(tenantauth.AgentResolverFunc(func(router.Context) *tenantauth.AuthStore {
		return store
	}), protectOpts(storage.NewMemory(), "/dashboard")...)

	ctx := router.NewMockContext()
	ctx.On("Context").Return(context.Background())
	ctx.On("Locals", tenantauth.SessionLocalsKey, mock.Anything).Return(nil)

	var seen *tenantauth.Session
	handler := mw(func(c router.Context) error {
		s, ok := tenantauth.GetRouterSession(c)
		require.True(t, ok)
		seen = s
		return nil
	})

	require.NoError(t, handler(ctx))
	require.NotNil(t, seen)
	assert.Equal(t, "user-123", seen.Subject)
	assert.Equal(t, "Acme-42", seen.TenantScope)
	client.AssertNumberOfCalls(t, "Restore", 1)

	// the store is authenticated now; a second request must not restore again
	ctx2 := router.NewMockContext()
	ctx2.On("Context").Return(context.Background())
	ctx2.On("Locals", tenantauth.SessionLocalsKey, mock.Anything).Return(nil)
	require.NoError(t, handler(ctx2))
	client.AssertNumberOfCalls(t, "Restore", 1)
}

func TestProtectPublicRouteSkipsGuard(t *testing.T) {
	factory := &MockClientFactory{}
	store := tenantauth.NewAuthStore(factory, storage.NewMemory(), tenantauth.WithStoreLogger(tenantauth.NopLogger{}))

	resolved := 0
	mw := tenantauth.Protect(tenantauth.AgentResolverFunc(func(router.Context) *tenantauth.AuthStore {
		resolved++
		return store
	}), tenantauth.RouteMeta{Name: "home"}, protectOpts(storage.NewMemory(), "/")...)

	ctx := router.NewMockContext()
	ctx.On("Context").Return(context.Background())

	called := false
	handler := mw(func(router.Context) error {
		called = true
		return nil
	})

	require.NoError(t, handler(ctx))
	assert.True(t, called)
	ctx.AssertNotCalled(t, "Redirect", mock.Anything, mock.Anything)
	factory.AssertNotCalled(t, "Create", mock.Anything)
	assert.Zero(t, resolved, "public routes must not resolve an agent")
}

func TestProtectForwardsGuardOptions(t *testing.T) {
	store, _ := restorableStore(t, "", nil)

	opts := append(protectOpts(storage.NewMemory(), "/reports"),
		tenantauth.WithProtectGuardOptions(tenantauth.WithLoginPath("/signin")))
	mw := tenantauth.RequireAuth(tenantauth.AgentResolverFunc(func(router.Context) *tenantauth.AuthStore {
		return store
	}), opts...)

	ctx := router.NewMockContext()
	ctx.On("Context").Return(context.Background())

	var redirectURL string
	ctx.On("Redirect", mock.Anything, []int{http.StatusFound}).Run(func(args mock.Arguments) {
		redirectURL = args.String(0)
	}).Return(nil)

	require.NoError(t, mw(func(router.Context) error { return nil })(ctx))
	assert.Equal(t, "/signin?redirect=%2Freports", redirectURL)
}
