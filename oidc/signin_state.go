package oidc

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	tenantauth "github.com/goliatone/go-tenant-auth"
)

// SigninStatePrefix prefixes the storage key of every pending sign in.
const SigninStatePrefix = "oidc.signin."

// SigninState is what must survive the round trip to the identity provider.
type SigninState struct {
	ID           string `json:"id"`
	CodeVerifier string `json:"code_verifier"`
	Nonce        string `json:"nonce"`
	TenantScope  string `json:"tenant_scope"`
	RedirectURI  string `json:"redirect_uri"`
	Scope        string `json:"scope"`
	Created      int64  `json:"created"`
}

func signinStateKey(id string) string {
	return SigninStatePrefix + id
}

func saveSigninState(ctx context.Context, storage tenantauth.Storage, state SigninState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode signin state: %w", err)
	}
	return storage.Set(ctx, signinStateKey(state.ID), string(raw))
}

// takeSigninState reads and removes the pending sign in for id.
func takeSigninState(ctx context.Context, storage tenantauth.Storage, id string) (*SigninState, error) {
	if id == "" {
		return nil, tenantauth.ErrInvalidState
	}

	raw, ok, err := storage.Get(ctx, signinStateKey(id))
	if err != nil {
		return nil, fmt.Errorf("read signin state: %w", err)
	}
	if !ok {
		return nil, tenantauth.ErrInvalidState
	}

	if err := storage.Remove(ctx, signinStateKey(id)); err != nil {
		return nil, fmt.Errorf("remove signin state: %w", err)
	}

	var state SigninState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return nil, tenantauth.WrapCause(tenantauth.ErrInvalidState, err)
	}
	return &state, nil
}

// ClearStaleState removes pending sign ins older than maxAge and returns
// how many were removed.
func ClearStaleState(ctx context.Context, storage tenantauth.Storage, maxAge time.Duration, now time.Time) (int, error) {
	keys, err := storage.Keys(ctx)
	if err != nil {
		return 0, err
	}

	cutoff := now.Add(-maxAge).Unix()
	removed := 0
	for _, key := range keys {
		// keys read through an agent namespace carry its prefix
		if !strings.Contains(key, SigninStatePrefix) {
			continue
		}
		raw, ok, err := storage.Get(ctx, key)
		if err != nil || !ok {
			continue
		}

		var state SigninState
		if err := json.Unmarshal([]byte(raw), &state); err == nil && state.Created >= cutoff {
			continue
		}

		if err := storage.Remove(ctx, key); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}
