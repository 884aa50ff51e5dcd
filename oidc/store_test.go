package oidc

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tenantauth "github.com/goliatone/go-tenant-auth"
)

func newStore(t *testing.T, h *testHarness) *tenantauth.AuthStore {
	t.Helper()
	store := tenantauth.NewAuthStore(h.factory, h.storage, tenantauth.WithStoreLogger(tenantauth.NopLogger{}))
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStoreLogoutAfterRestartRemovesTokenRecord(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)

	first := newStore(t, h)
	require.NoError(t, first.Login(ctx, "Acme-42"))
	code, state := h.provider.authorize(h.nav.last(t).String())
	_, err := first.HandleCallback(ctx, tenantauth.CallbackParams{Code: code, State: state})
	require.NoError(t, err)

	userKey := UserKey(h.provider.URL(), testClientID)
	_, ok, err := h.storage.Get(ctx, userKey)
	require.NoError(t, err)
	require.True(t, ok)

	// a new process only knows the persisted organization
	newStore(t, h).Logout(ctx)

	_, ok, err = h.storage.Get(ctx, userKey)
	require.NoError(t, err)
	assert.False(t, ok, "token record must be removed")
	assert.Equal(t, "/oidc/v1/end_session", h.nav.last(t).Path)

	// an abandoned login must not revive the old tokens
	require.NoError(t, newStore(t, h).Login(ctx, "Acme-42"))
	restored := newStore(t, h).Restore(ctx)
	assert.Nil(t, restored)
}

func TestStoreCallbackForReplacedOrganizationFails(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)

	store := newStore(t, h)
	require.NoError(t, store.Login(ctx, "Acme-42"))
	code, state := h.provider.authorize(h.nav.last(t).String())

	// a second tab selects another organization before the first callback
	require.NoError(t, newStore(t, h).Login(ctx, "Globex-7"))

	session, err := store.HandleCallback(ctx, tenantauth.CallbackParams{Code: code, State: state})
	require.Error(t, err)
	assert.ErrorIs(t, err, tenantauth.ErrInvalidState)
	assert.Nil(t, session)
	assert.False(t, store.IsAuthenticated())

	_, ok, err := h.storage.Get(ctx, UserKey(h.provider.URL(), testClientID))
	require.NoError(t, err)
	assert.False(t, ok)
}
