package tenantauth

import (
	stderrors "errors"
	"sync"
	"time"

	"github.com/goliatone/go-router"
	"github.com/goliatone/go-tenant-auth/storage"
	"github.com/google/uuid"
)

const (
	DefaultAgentCookie    = "tenantauth_agent"
	DefaultAgentCookieTTL = 30 * 24 * time.Hour
	// DefaultAgentIdleTTL is how long an unused AuthStore stays in memory.
	DefaultAgentIdleTTL = 30 * time.Minute
)

// AgentResolver maps a request to the AuthStore of its user agent.
type AgentResolver interface {
	StoreFor(ctx router.Context) *AuthStore
}

// AgentResolverFunc adapts a function to the AgentResolver interface.
type AgentResolverFunc func(ctx router.Context) *AuthStore

// StoreFor implements AgentResolver.
func (f AgentResolverFunc) StoreFor(ctx router.Context) *AuthStore {
	return f(ctx)
}

// FactoryBinder builds a ClientFactory whose clients keep their records in storage.
type FactoryBinder interface {
	Bind(storage Storage) ClientFactory
}

// FactoryBinderFunc adapts a function to the FactoryBinder interface.
type FactoryBinderFunc func(storage Storage) ClientFactory

// Bind implements FactoryBinder.
func (f FactoryBinderFunc) Bind(storage Storage) ClientFactory {
	return f(storage)
}

// AgentsOption customizes Agents.
type AgentsOption func(*Agents)

// WithAgentStoreOptions sets the options applied to every AuthStore created.
func WithAgentStoreOptions(opts ...StoreOption) AgentsOption {
	return func(a *Agents) {
		a.storeOpts = append(a.storeOpts, opts...)
	}
}

// WithAgentCookie sets the name and lifetime of the agent cookie.
func WithAgentCookie(name string, ttl time.Duration) AgentsOption {
	return func(a *Agents) {
		if name != "" {
			a.cookieName = name
		}
		if ttl > 0 {
			a.cookieTTL = ttl
		}
	}
}

// WithAgentCookieSecure sets the Secure flag of the agent cookie.
func WithAgentCookieSecure(secure bool) AgentsOption {
	return func(a *Agents) {
		a.cookieSecure = secure
	}
}

// WithAgentIdleTTL sets how long an agent may go unseen before EvictIdle
// drops its AuthStore.
func WithAgentIdleTTL(ttl time.Duration) AgentsOption {
	return func(a *Agents) {
		if ttl > 0 {
			a.idleTTL = ttl
		}
	}
}

// WithAgentsClock injects a custom clock (useful for tests).
func WithAgentsClock(clock func() time.Time) AgentsOption {
	return func(a *Agents) {
		if clock != nil {
			a.now = clock
		}
	}
}

// WithAgentsLogger sets the logger.
func WithAgentsLogger(logger Logger) AgentsOption {
	return func(a *Agents) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// Agents keeps one AuthStore per user agent. Every agent sees its own
// namespace of the shared durable storage, so records of one browser never
// leak into another. Stores of idle agents are dropped by EvictIdle and
// rebuilt from the durable records on the next request.
type Agents struct {
	binder  FactoryBinder
	storage Storage

	storeOpts    []StoreOption
	cookieName   string
	cookieTTL    time.Duration
	cookieSecure bool
	idleTTL      time.Duration
	now          func() time.Time
	logger       Logger

	mu     sync.Mutex
	stores map[string]*agentEntry
}

type agentEntry struct {
	store    *AuthStore
	lastSeen time.Time
}

// NewAgents creates a registry over the shared durable storage.
func NewAgents(binder FactoryBinder, durable Storage, opts ...AgentsOption) *Agents {
	a := &Agents{
		binder:       binder,
		storage:      durable,
		cookieName:   DefaultAgentCookie,
		cookieTTL:    DefaultAgentCookieTTL,
		cookieSecure: true,
		idleTTL:      DefaultAgentIdleTTL,
		now:          time.Now,
		logger:       defLogger{},
		stores:       map[string]*agentEntry{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

// Store returns the AuthStore of agentID, creating it on first use.
func (a *Agents) Store(agentID string) *AuthStore {
	a.mu.Lock()
	defer a.mu.Unlock()

	if entry, ok := a.stores[agentID]; ok {
		entry.lastSeen = a.now()
		return entry.store
	}

	scoped := storage.NewPrefixed(a.storage, "agent:"+agentID+":")
	opts := append([]StoreOption{WithStoreLogger(a.logger)}, a.storeOpts...)
	store := NewAuthStore(a.binder.Bind(scoped), scoped, opts...)
	a.stores[agentID] = &agentEntry{store: store, lastSeen: a.now()}
	return store
}

// StoreFor implements AgentResolver using the agent cookie, issuing a new
// agent id when the request carries none.
func (a *Agents) StoreFor(ctx router.Context) *AuthStore {
	agentID := ctx.Cookies(a.cookieName)
	if _, err := uuid.Parse(agentID); err != nil {
		agentID = uuid.NewString()
		ctx.Cookie(&router.Cookie{
			Name:     a.cookieName,
			Value:    agentID,
			Path:     "/",
			Expires:  time.Now().Add(a.cookieTTL),
			HTTPOnly: true,
			Secure:   a.cookieSecure,
			SameSite: "Lax",
		})
	}
	return a.Store(agentID)
}

// Forget closes and drops the AuthStore of agentID. Durable records are kept.
func (a *Agents) Forget(agentID string) error {
	a.mu.Lock()
	entry, ok := a.stores[agentID]
	delete(a.stores, agentID)
	a.mu.Unlock()
	if !ok {
		return nil
	}
	return entry.store.Close()
}

// EvictIdle closes and drops the stores of agents not seen within the idle
// TTL and returns how many were dropped. Durable records are kept.
func (a *Agents) EvictIdle() (int, error) {
	cutoff := a.now().Add(-a.idleTTL)

	a.mu.Lock()
	var idle []*AuthStore
	for id, entry := range a.stores {
		if entry.lastSeen.Before(cutoff) {
			idle = append(idle, entry.store)
			delete(a.stores, id)
		}
	}
	a.mu.Unlock()

	var errs []error
	for _, store := range idle {
		if err := store.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(idle) > 0 {
		a.logger.Debug("agents: evicted %d idle stores", len(idle))
	}
	return len(idle), stderrors.Join(errs...)
}

// Len returns the number of live agents.
func (a *Agents) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.stores)
}

// Close closes every AuthStore.
func (a *Agents) Close() error {
	a.mu.Lock()
	stores := a.stores
	a.stores = map[string]*agentEntry{}
	a.mu.Unlock()

	var errs []error
	for _, entry := range stores {
		if err := entry.store.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return stderrors.Join(errs...)
}
