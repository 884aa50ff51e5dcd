package oidc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

const discoveryPath = "/.well-known/openid-configuration"

// Discovery is the provider metadata published at the well known endpoint.
type Discovery struct {
	Issuer                           string   `json:"issuer"`
	AuthorizationEndpoint            string   `json:"authorization_endpoint"`
	TokenEndpoint                    string   `json:"token_endpoint"`
	UserinfoEndpoint                 string   `json:"userinfo_endpoint,omitempty"`
	JwksURI                          string   `json:"jwks_uri"`
	EndSessionEndpoint               string   `json:"end_session_endpoint,omitempty"`
	RevocationEndpoint               string   `json:"revocation_endpoint,omitempty"`
	ScopesSupported                  []string `json:"scopes_supported,omitempty"`
	ResponseTypesSupported           []string `json:"response_types_supported,omitempty"`
	CodeChallengeMethodsSupported    []string `json:"code_challenge_methods_supported,omitempty"`
	IDTokenSigningAlgValuesSupported []string `json:"id_token_signing_alg_values_supported,omitempty"`
}

// FetchDiscovery downloads the discovery document of issuer.
func FetchDiscovery(ctx context.Context, client *http.Client, issuer string) (*Discovery, error) {
	if client == nil {
		client = http.DefaultClient
	}
	url := strings.TrimRight(issuer, "/") + discoveryPath

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("unable to build discovery request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("unable to get discovery document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("unable to get discovery document from %s: status %d: %s", url, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var doc Discovery
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("unable to decode discovery document: %w", err)
	}

	if err := doc.validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

func (d *Discovery) validate() error {
	switch {
	case d.Issuer == "":
		return fmt.Errorf("discovery document: issuer is missing")
	case d.AuthorizationEndpoint == "":
		return fmt.Errorf("discovery document: authorization_endpoint is missing")
	case d.TokenEndpoint == "":
		return fmt.Errorf("discovery document: token_endpoint is missing")
	}
	return nil
}

// discoveryCache fetches the document once and keeps it for ttl.
// Failed fetches are not cached.
type discoveryCache struct {
	issuer string
	ttl    time.Duration

	mu        sync.Mutex
	doc       *Discovery
	fetchedAt time.Time
	static    bool
}

func newDiscoveryCache(issuer string, ttl time.Duration) *discoveryCache {
	return &discoveryCache{issuer: issuer, ttl: ttl}
}

func (c *discoveryCache) set(doc *Discovery) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.doc = doc
	c.static = true
}

func (c *discoveryCache) get(ctx context.Context, client *http.Client, now time.Time) (*Discovery, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.doc != nil && (c.static || c.ttl <= 0 || now.Sub(c.fetchedAt) < c.ttl) {
		return c.doc, nil
	}

	doc, err := FetchDiscovery(ctx, client, c.issuer)
	if err != nil {
		if c.doc != nil {
			// keep serving the stale document while the provider is unreachable
			return c.doc, nil
		}
		return nil, err
	}
	c.doc = doc
	c.fetchedAt = now
	return doc, nil
}
