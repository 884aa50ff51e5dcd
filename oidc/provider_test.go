package oidc

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	tenantauth "github.com/goliatone/go-tenant-auth"
	"github.com/goliatone/go-tenant-auth/storage"
)

const (
	testClientID = "client-1"
	testKID      = "test-key"
	testSubject  = "user-123"
)

type pendingCode struct {
	challenge string
	nonce     string
}

// testProvider is a minimal OpenID provider for exercising the client.
type testProvider struct {
	t      *testing.T
	server *httptest.Server
	key    *rsa.PrivateKey

	mu             sync.Mutex
	codes          map[string]pendingCode
	tokenRequests  []url.Values
	userinfoSub    string
	refreshExpires int
	refreshError   bool
	refreshCount   int
}

func newTestProvider(t *testing.T) *testProvider {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	p := &testProvider{
		t:              t,
		key:            key,
		codes:          map[string]pendingCode{},
		userinfoSub:    testSubject,
		refreshExpires: 7200,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", p.handleDiscovery)
	mux.HandleFunc("/oauth/v2/token", p.handleToken)
	mux.HandleFunc("/oidc/v1/userinfo", p.handleUserinfo)
	mux.HandleFunc("/oauth/v2/keys", p.handleKeys)

	p.server = httptest.NewServer(mux)
	t.Cleanup(p.server.Close)
	return p
}

func (p *testProvider) URL() string {
	return p.server.URL
}

func (p *testProvider) config() tenantauth.Config {
	cfg := tenantauth.DefaultConfig()
	cfg.Authority = p.URL()
	cfg.ClientID = testClientID
	cfg.MonitorSession = false
	return cfg
}

// authorize stands in for the provider login page: it accepts the
// authorization request and returns the code it would redirect back with.
func (p *testProvider) authorize(authURL string) (code, state string) {
	p.t.Helper()

	u, err := url.Parse(authURL)
	require.NoError(p.t, err)
	q := u.Query()
	require.Equal(p.t, "S256", q.Get("code_challenge_method"))

	code = "code-" + q.Get("state")
	p.mu.Lock()
	p.codes[code] = pendingCode{challenge: q.Get("code_challenge"), nonce: q.Get("nonce")}
	p.mu.Unlock()
	return code, q.Get("state")
}

func (p *testProvider) handleDiscovery(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"issuer":                           p.URL(),
		"authorization_endpoint":           p.URL() + "/oauth/v2/authorize",
		"token_endpoint":                   p.URL() + "/oauth/v2/token",
		"userinfo_endpoint":                p.URL() + "/oidc/v1/userinfo",
		"jwks_uri":                         p.URL() + "/oauth/v2/keys",
		"end_session_endpoint":             p.URL() + "/oidc/v1/end_session",
		"code_challenge_methods_supported": []string{"S256"},
	})
}

func (p *testProvider) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid_request"})
		return
	}

	p.mu.Lock()
	p.tokenRequests = append(p.tokenRequests, r.PostForm)
	p.mu.Unlock()

	if r.PostForm.Get("client_id") != testClientID {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "invalid_client"})
		return
	}

	switch r.PostForm.Get("grant_type") {
	case "authorization_code":
		p.mu.Lock()
		pending, ok := p.codes[r.PostForm.Get("code")]
		delete(p.codes, r.PostForm.Get("code"))
		p.mu.Unlock()

		if !ok || s256(r.PostForm.Get("code_verifier")) != pending.challenge {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid_grant"})
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"access_token":  "access-1",
			"refresh_token": "refresh-1",
			"token_type":    "Bearer",
			"expires_in":    3600,
			"id_token":      p.idToken(pending.nonce),
		})

	case "refresh_token":
		p.mu.Lock()
		p.refreshCount++
		count := p.refreshCount
		failing := p.refreshError
		expires := p.refreshExpires
		p.mu.Unlock()

		if failing || r.PostForm.Get("refresh_token") == "" {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid_grant"})
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"access_token":  "access-" + strconv.Itoa(count+1),
			"refresh_token": "refresh-" + strconv.Itoa(count+1),
			"token_type":    "Bearer",
			"expires_in":    expires,
			"id_token":      p.idToken(""),
		})

	default:
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "unsupported_grant_type"})
	}
}

func (p *testProvider) handleUserinfo(w http.ResponseWriter, r *http.Request) {
	if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer access-") {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "invalid_token"})
		return
	}
	p.mu.Lock()
	sub := p.userinfoSub
	p.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"sub":                sub,
		"email":              "ada@acme.example",
		"email_verified":     true,
		"preferred_username": "ada",
		tenantauth.ClaimResourceOwnerPrimaryDomain: "acme.example",
	})
}

func (p *testProvider) handleKeys(w http.ResponseWriter, _ *http.Request) {
	pub := p.key.PublicKey
	writeJSON(w, http.StatusOK, map[string]any{
		"keys": []map[string]any{{
			"kty": "RSA",
			"kid": testKID,
			"use": "sig",
			"alg": "RS256",
			"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
		}},
	})
}

func (p *testProvider) idToken(nonce string) string {
	now := time.Now()
	claims := jwt.MapClaims{
		"iss":  p.URL(),
		"sub":  testSubject,
		"aud":  testClientID,
		"exp":  now.Add(time.Hour).Unix(),
		"iat":  now.Unix(),
		"name": "Ada Lovelace",
	}
	if nonce != "" {
		claims["nonce"] = nonce
	}
	return p.sign(claims)
}

func (p *testProvider) sign(claims jwt.MapClaims) string {
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = testKID
	signed, err := token.SignedString(p.key)
	require.NoError(p.t, err)
	return signed
}

func (p *testProvider) refreshRequests() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.refreshCount
}

func s256(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// recordingNavigator keeps every navigation target.
type recordingNavigator struct {
	mu      sync.Mutex
	targets []string
}

func (n *recordingNavigator) Navigate(_ context.Context, target string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.targets = append(n.targets, target)
	return nil
}

func (n *recordingNavigator) last(t *testing.T) *url.URL {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	require.NotEmpty(t, n.targets, "no navigation recorded")
	u, err := url.Parse(n.targets[len(n.targets)-1])
	require.NoError(t, err)
	return u
}

type testHarness struct {
	provider *testProvider
	storage  *storage.Memory
	nav      *recordingNavigator
	factory  *Factory
}

func newHarness(t *testing.T, mutate func(*tenantauth.Config), opts ...FactoryOption) *testHarness {
	t.Helper()

	provider := newTestProvider(t)
	cfg := provider.config()
	if mutate != nil {
		mutate(&cfg)
	}

	h := &testHarness{
		provider: provider,
		storage:  storage.NewMemory(),
		nav:      &recordingNavigator{},
	}

	opts = append([]FactoryOption{
		WithHTTPClient(provider.server.Client()),
		WithNavigator(h.nav),
		WithFactoryLogger(tenantauth.NopLogger{}),
	}, opts...)
	h.factory = NewFactory(cfg, h.storage, opts...)
	t.Cleanup(func() { _ = h.factory.Close() })
	return h
}

func (h *testHarness) client(t *testing.T, tenant string) *Client {
	t.Helper()
	sc, err := h.factory.Create(tenant)
	require.NoError(t, err)
	client := sc.(*Client)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

// login runs a complete authorization code round trip.
func (h *testHarness) login(t *testing.T, client *Client) *tenantauth.Session {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, client.BeginLogin(ctx))
	code, state := h.provider.authorize(h.nav.last(t).String())

	session, err := client.CompleteLogin(ctx, tenantauth.CallbackParams{Code: code, State: state})
	require.NoError(t, err)
	return session
}
