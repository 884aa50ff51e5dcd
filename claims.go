package tenantauth

import (
	"encoding/json"
	"strconv"
)

// Well known OIDC profile claims.
const (
	ClaimSubject           = "sub"
	ClaimName              = "name"
	ClaimEmail             = "email"
	ClaimEmailVerified     = "email_verified"
	ClaimPreferredUsername = "preferred_username"
	ClaimGivenName         = "given_name"
	ClaimFamilyName        = "family_name"

	// Zitadel extension carrying the primary domain of the user's organization.
	ClaimResourceOwnerPrimaryDomain = "urn:zitadel:iam:user:resourceowner:primary_domain"
)

// ProfileClaims is an open set of identity claims keyed by claim name.
// Providers are free to add extensions; the accessors cover the common ones.
type ProfileClaims map[string]any

// Subject returns the "sub" claim, the primary identity of the profile.
func (c ProfileClaims) Subject() string {
	return c.String(ClaimSubject)
}

func (c ProfileClaims) Name() string {
	return c.String(ClaimName)
}

func (c ProfileClaims) Email() string {
	return c.String(ClaimEmail)
}

func (c ProfileClaims) EmailVerified() bool {
	return c.Bool(ClaimEmailVerified)
}

func (c ProfileClaims) PreferredUsername() string {
	return c.String(ClaimPreferredUsername)
}

func (c ProfileClaims) GivenName() string {
	return c.String(ClaimGivenName)
}

func (c ProfileClaims) FamilyName() string {
	return c.String(ClaimFamilyName)
}

// OrganizationDomain returns the primary domain of the organization that
// owns the user, when the provider includes it.
func (c ProfileClaims) OrganizationDomain() string {
	return c.String(ClaimResourceOwnerPrimaryDomain)
}

// String returns the claim as a string, empty when missing or not a string.
func (c ProfileClaims) String(key string) string {
	if c == nil {
		return ""
	}
	switch v := c[key].(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	default:
		return ""
	}
}

// Bool returns the claim as a bool. Some providers send "true"/"false" strings.
func (c ProfileClaims) Bool(key string) bool {
	if c == nil {
		return false
	}
	switch v := c[key].(type) {
	case bool:
		return v
	case string:
		b, err := strconv.ParseBool(v)
		return err == nil && b
	default:
		return false
	}
}

// Has reports whether the claim is present.
func (c ProfileClaims) Has(key string) bool {
	if c == nil {
		return false
	}
	_, ok := c[key]
	return ok
}

// Clone returns a shallow copy so callers can't mutate the store's session.
func (c ProfileClaims) Clone() ProfileClaims {
	if c == nil {
		return nil
	}
	out := make(ProfileClaims, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// Merge copies claims from other that are not already set.
// The subject is never overwritten.
func (c ProfileClaims) Merge(other map[string]any) ProfileClaims {
	out := c.Clone()
	if out == nil {
		out = ProfileClaims{}
	}
	for k, v := range other {
		if k == ClaimSubject && out.Has(ClaimSubject) {
			continue
		}
		if _, exists := out[k]; exists {
			continue
		}
		out[k] = v
	}
	return out
}
