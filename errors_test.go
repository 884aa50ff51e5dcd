package tenantauth_test

import (
	"errors"
	"fmt"
	"testing"

	goerrors "github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tenantauth "github.com/goliatone/go-tenant-auth"
)

func TestWrapCauseMatchesBoth(t *testing.T) {
	cause := errors.New("invalid_grant")
	err := tenantauth.WrapCause(tenantauth.ErrTokenExchangeFailed, cause)

	assert.ErrorIs(t, err, tenantauth.ErrTokenExchangeFailed)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "Authentication callback failed: invalid_grant", err.Error())

	var rich *goerrors.Error
	require.True(t, errors.As(err, &rich))
	assert.Equal(t, tenantauth.TextCodeTokenExchangeFailed, rich.TextCode)
}

func TestWrapCauseEdgeCases(t *testing.T) {
	assert.Same(t, tenantauth.ErrLogoutTransportFailed,
		tenantauth.WrapCause(tenantauth.ErrLogoutTransportFailed, nil))

	wrapped := fmt.Errorf("context: %w", tenantauth.ErrInvalidState)
	assert.Equal(t, wrapped, tenantauth.WrapCause(tenantauth.ErrInvalidState, wrapped),
		"causes already carrying the kind are not wrapped twice")
}

func TestErrorMessage(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{name: "nil", err: nil, expected: ""},
		{name: "sentinel", err: tenantauth.ErrMissingTenantScope, expected: "Organization not found. Please login again."},
		{name: "plain", err: errors.New("connection refused"), expected: "connection refused"},
		{
			name:     "wrapped",
			err:      tenantauth.WrapCause(tenantauth.ErrLogoutTransportFailed, errors.New("connection refused")),
			expected: "Logout failed: connection refused",
		},
		{
			name: "nested",
			err: tenantauth.WrapCause(tenantauth.ErrTokenExchangeFailed,
				tenantauth.WrapCause(tenantauth.ErrIDTokenInvalid, errors.New("nonce mismatch"))),
			expected: "Authentication callback failed: invalid id token: nonce mismatch",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tenantauth.ErrorMessage(tt.err))
		})
	}
}
