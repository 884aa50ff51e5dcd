package tenantauth

import (
	"time"
)

// Session is an authenticated session obtained from the identity provider.
type Session struct {
	Subject      string        `json:"subject"`
	Profile      ProfileClaims `json:"profile,omitempty"`
	AccessToken  string        `json:"access_token"`
	ExpiresAt    time.Time     `json:"expires_at"`
	IDToken      string        `json:"id_token,omitempty"`
	RefreshToken string        `json:"refresh_token,omitempty"`
	TokenType    string        `json:"token_type,omitempty"`
	Scope        string        `json:"scope,omitempty"`
	TenantScope  string        `json:"tenant_scope,omitempty"`
}

// Expired reports whether the access token is no longer usable at now.
// A zero ExpiresAt is treated as expired.
func (s *Session) Expired(now time.Time) bool {
	if s == nil || s.ExpiresAt.IsZero() {
		return true
	}
	return !now.Before(s.ExpiresAt)
}

// ExpiresIn returns the remaining lifetime, zero once expired.
func (s *Session) ExpiresIn(now time.Time) time.Duration {
	if s.Expired(now) {
		return 0
	}
	return s.ExpiresAt.Sub(now)
}

// Clone returns a copy that shares no mutable state with s.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	out.Profile = s.Profile.Clone()
	return &out
}
