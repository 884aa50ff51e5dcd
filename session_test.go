package tenantauth_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	tenantauth "github.com/goliatone/go-tenant-auth"
)

func TestSessionExpiry(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	session := testSession("user-123", "Acme-42", now.Add(time.Minute))
	assert.False(t, session.Expired(now))
	assert.Equal(t, time.Minute, session.ExpiresIn(now))

	assert.True(t, session.Expired(now.Add(time.Minute)), "expiry instant is already expired")
	assert.Equal(t, time.Duration(0), session.ExpiresIn(now.Add(time.Hour)))

	var missing *tenantauth.Session
	assert.True(t, missing.Expired(now))
	assert.True(t, (&tenantauth.Session{}).Expired(now))
}

func TestSessionClone(t *testing.T) {
	session := testSession("user-123", "Acme-42", time.Now().Add(time.Hour))
	clone := session.Clone()

	clone.Profile["name"] = "Changed"
	clone.AccessToken = "other"

	assert.Equal(t, "Ada Lovelace", session.Profile.Name())
	assert.Equal(t, "access-user-123", session.AccessToken)

	var missing *tenantauth.Session
	assert.Nil(t, missing.Clone())
}
