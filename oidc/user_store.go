package oidc

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	tenantauth "github.com/goliatone/go-tenant-auth"
)

// UserKeyPrefix prefixes the storage key of the token record.
const UserKeyPrefix = "oidc.user:"

// StoredUser is the token record kept in durable storage.
type StoredUser struct {
	IDToken      string                   `json:"id_token,omitempty"`
	AccessToken  string                   `json:"access_token"`
	RefreshToken string                   `json:"refresh_token,omitempty"`
	TokenType    string                   `json:"token_type,omitempty"`
	Scope        string                   `json:"scope,omitempty"`
	Profile      tenantauth.ProfileClaims `json:"profile"`
	ExpiresAt    int64                    `json:"expires_at"`
	TenantScope  string                   `json:"tenant_scope,omitempty"`
}

// UserKey returns the storage key of the token record for an authority and client.
func UserKey(authority, clientID string) string {
	return UserKeyPrefix + authority + ":" + clientID
}

// Session converts the record into a tenantauth.Session.
func (u *StoredUser) Session() *tenantauth.Session {
	if u == nil {
		return nil
	}
	return &tenantauth.Session{
		Subject:      u.Profile.Subject(),
		Profile:      u.Profile.Clone(),
		AccessToken:  u.AccessToken,
		ExpiresAt:    time.Unix(u.ExpiresAt, 0),
		IDToken:      u.IDToken,
		RefreshToken: u.RefreshToken,
		TokenType:    u.TokenType,
		Scope:        u.Scope,
		TenantScope:  u.TenantScope,
	}
}

func loadUser(ctx context.Context, storage tenantauth.Storage, key string) (*StoredUser, string, error) {
	raw, ok, err := storage.Get(ctx, key)
	if err != nil {
		return nil, "", fmt.Errorf("read user record: %w", err)
	}
	if !ok || raw == "" {
		return nil, "", nil
	}

	var user StoredUser
	if err := json.Unmarshal([]byte(raw), &user); err != nil {
		return nil, raw, fmt.Errorf("decode user record: %w", err)
	}
	return &user, raw, nil
}

func saveUser(ctx context.Context, storage tenantauth.Storage, key string, user *StoredUser) error {
	raw, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("encode user record: %w", err)
	}
	return storage.Set(ctx, key, string(raw))
}
