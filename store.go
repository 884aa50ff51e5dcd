package tenantauth

import (
	"context"
	"strings"
	"sync"
	"time"
)

// DefaultTenantKey is the durable storage key holding the selected organization.
const DefaultTenantKey = "selectedOrganization"

// AuthState is a snapshot of an AuthStore.
type AuthState struct {
	Session         *Session   `json:"session,omitempty"`
	TenantScope     string     `json:"tenant_scope"`
	IsLoading       bool       `json:"is_loading"`
	Error           string     `json:"error,omitempty"`
	Status          AuthStatus `json:"status"`
	IsAuthenticated bool       `json:"is_authenticated"`
}

// StoreOption customizes an AuthStore.
type StoreOption func(*AuthStore)

// WithStoreLogger sets the logger.
func WithStoreLogger(logger Logger) StoreOption {
	return func(s *AuthStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithStoreClock injects a custom clock (useful for tests).
func WithStoreClock(clock func() time.Time) StoreOption {
	return func(s *AuthStore) {
		if clock != nil {
			s.now = clock
		}
	}
}

// WithActivitySink sets the ActivitySink used to publish session events.
func WithActivitySink(sink ActivitySink) StoreOption {
	return func(s *AuthStore) {
		s.activitySink = normalizeActivitySink(sink)
	}
}

// WithTenantKey overrides the storage key of the selected organization.
func WithTenantKey(key string) StoreOption {
	return func(s *AuthStore) {
		if key != "" {
			s.tenantKey = key
		}
	}
}

// AuthStore owns the authentication session of a single user agent.
// All methods are safe for concurrent use. Operations are not serialized:
// a Logout racing a Login leaves whichever wrote last.
type AuthStore struct {
	factory ClientFactory
	storage Storage

	mu          sync.RWMutex
	session     *Session
	tenantScope string
	client      SessionClient
	isLoading   bool
	err         error
	status      AuthStatus

	machine      statusMachine
	tenantKey    string
	now          func() time.Time
	logger       Logger
	activitySink ActivitySink
}

// NewAuthStore creates a store that builds clients with factory and
// remembers the selected organization in storage.
func NewAuthStore(factory ClientFactory, storage Storage, opts ...StoreOption) *AuthStore {
	s := &AuthStore{
		factory:      factory,
		storage:      storage,
		status:       StatusUnauthenticated,
		machine:      newStatusMachine(),
		tenantKey:    DefaultTenantKey,
		now:          time.Now,
		logger:       defLogger{},
		activitySink: noopActivitySink{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Login starts the authorization flow for tenantScope. A nil error means
// the user agent was sent to the identity provider and the caller must
// not continue rendering.
func (s *AuthStore) Login(ctx context.Context, tenantScope string) error {
	tenantScope = strings.TrimSpace(tenantScope)

	fail := func(err error) error {
		s.mu.Lock()
		s.err = err
		s.isLoading = false
		s.setStatusLocked(s.settledStatusLocked())
		to := s.status
		s.mu.Unlock()

		s.logger.Error("login error: %v", err)
		s.recordActivity(ctx, ActivityEvent{
			EventType:   ActivityEventLoginFailure,
			TenantScope: tenantScope,
			ToStatus:    to,
			Metadata:    map[string]any{"error": ErrorMessage(err)},
		})
		return err
	}

	if tenantScope == "" {
		return fail(ErrInvalidTenantScope)
	}

	s.mu.Lock()
	s.err = nil
	s.isLoading = true
	s.setStatusLocked(StatusAuthenticating)
	s.mu.Unlock()

	// the organization must survive the round trip to the provider
	if err := s.storage.Set(ctx, s.tenantKey, tenantScope); err != nil {
		return fail(err)
	}

	s.mu.Lock()
	s.tenantScope = tenantScope
	s.mu.Unlock()

	client, err := s.factory.Create(tenantScope)
	if err != nil {
		return fail(err)
	}
	s.adoptClient(client)

	s.recordActivity(ctx, ActivityEvent{
		EventType:   ActivityEventLoginStarted,
		TenantScope: tenantScope,
		ToStatus:    StatusAuthenticating,
	})

	if err := client.BeginLogin(ctx); err != nil {
		return fail(err)
	}

	s.mu.Lock()
	s.isLoading = false
	s.mu.Unlock()
	return nil
}

// HandleCallback completes the authorization flow with the parameters the
// identity provider sent to the redirect URI.
func (s *AuthStore) HandleCallback(ctx context.Context, params CallbackParams) (*Session, error) {
	s.mu.Lock()
	s.err = nil
	s.isLoading = true
	s.mu.Unlock()

	var tenantScope string
	fail := func(err error) (*Session, error) {
		s.mu.Lock()
		s.err = err
		s.isLoading = false
		s.setStatusLocked(s.settledStatusLocked())
		to := s.status
		s.mu.Unlock()

		s.logger.Error("callback error: %v", err)
		s.recordActivity(ctx, ActivityEvent{
			EventType:   ActivityEventCallbackFailure,
			TenantScope: tenantScope,
			ToStatus:    to,
			Metadata:    map[string]any{"error": ErrorMessage(err)},
		})
		return nil, err
	}

	tenantScope, ok, err := s.storage.Get(ctx, s.tenantKey)
	if err != nil {
		return fail(WrapCause(ErrMissingTenantScope, err))
	}
	if !ok || strings.TrimSpace(tenantScope) == "" {
		return fail(ErrMissingTenantScope)
	}

	s.mu.Lock()
	s.setStatusLocked(StatusAuthenticating)
	s.mu.Unlock()

	client, err := s.clientFor(tenantScope)
	if err != nil {
		return fail(err)
	}

	session, err := client.CompleteLogin(ctx, params)
	if err != nil {
		return fail(WrapCause(ErrTokenExchangeFailed, err))
	}
	if session.TenantScope == "" {
		session.TenantScope = tenantScope
	}

	s.mu.Lock()
	s.session = session
	s.tenantScope = tenantScope
	s.isLoading = false
	s.setStatusLocked(StatusAuthenticated)
	s.mu.Unlock()

	s.logger.Info("authentication successful: name=%s email=%s organization=%s",
		session.Profile.Name(), session.Profile.Email(), tenantScope)
	s.recordActivity(ctx, ActivityEvent{
		EventType:   ActivityEventCallbackSuccess,
		Subject:     session.Subject,
		TenantScope: tenantScope,
		FromStatus:  StatusAuthenticating,
		ToStatus:    StatusAuthenticated,
	})

	return session.Clone(), nil
}

// Logout ends the session. Without a live client, one is built for the
// persisted organization so the stored tokens are dropped as well. The local
// session, organization and client are always cleared, even when the remote
// logout could not be issued; that failure is only recorded in Error.
func (s *AuthStore) Logout(ctx context.Context) {
	s.mu.Lock()
	s.isLoading = true
	client := s.client
	from := s.status
	var subject string
	if s.session != nil {
		subject = s.session.Subject
	}
	tenantScope := s.tenantScope
	s.mu.Unlock()

	var logoutErr error
	if client == nil {
		persisted, ok, err := s.storage.Get(ctx, s.tenantKey)
		persisted = strings.TrimSpace(persisted)
		switch {
		case err != nil:
			s.logger.Warn("logout: read %s: %v", s.tenantKey, err)
		case ok && persisted != "":
			tenantScope = persisted
			if client, err = s.clientFor(persisted); err != nil {
				logoutErr = WrapCause(ErrLogoutTransportFailed, err)
				s.logger.Error("logout error: %v", err)
			}
		}
	}

	if client != nil {
		if err := client.BeginLogout(ctx); err != nil {
			logoutErr = WrapCause(ErrLogoutTransportFailed, err)
			s.logger.Error("logout error: %v", err)
		}
	}

	s.mu.Lock()
	s.session = nil
	s.tenantScope = ""
	s.client = nil
	if logoutErr != nil {
		s.err = logoutErr
	}
	s.isLoading = false
	s.setStatusLocked(StatusUnauthenticated)
	s.mu.Unlock()

	if client != nil {
		if err := client.Close(); err != nil {
			s.logger.Warn("logout: close client: %v", err)
		}
	}

	if err := s.storage.Remove(ctx, s.tenantKey); err != nil {
		s.logger.Error("logout: remove %s: %v", s.tenantKey, err)
	}

	meta := map[string]any{}
	if logoutErr != nil {
		meta["error"] = ErrorMessage(logoutErr)
	}
	s.recordActivity(ctx, ActivityEvent{
		EventType:   ActivityEventLogout,
		Subject:     subject,
		TenantScope: tenantScope,
		FromStatus:  from,
		ToStatus:    StatusUnauthenticated,
		Metadata:    meta,
	})
}

// Restore loads a previously stored session for the persisted organization.
// It returns nil when there is nothing to restore or the stored session
// expired. While the stored session is read the store is loading and
// authenticating. Failures are logged, never returned. Calling it
// repeatedly is safe and does not create additional clients.
func (s *AuthStore) Restore(ctx context.Context) *Session {
	s.mu.RLock()
	if s.session != nil && !s.session.Expired(s.now()) {
		session := s.session.Clone()
		s.mu.RUnlock()
		return session
	}
	s.mu.RUnlock()

	tenantScope, ok, err := s.storage.Get(ctx, s.tenantKey)
	if err != nil {
		s.logger.Error("%v", WrapCause(ErrRestoreFailed, err))
		return nil
	}
	if !ok || strings.TrimSpace(tenantScope) == "" {
		return nil
	}

	s.mu.Lock()
	from := s.status
	s.isLoading = true
	s.setStatusLocked(StatusAuthenticating)
	s.mu.Unlock()

	// a pending login keeps authenticating until its callback arrives
	settle := func() *Session {
		s.mu.Lock()
		s.isLoading = false
		if from != StatusAuthenticating {
			s.setStatusLocked(s.settledStatusLocked())
		}
		s.mu.Unlock()
		return nil
	}

	client, err := s.clientFor(tenantScope)
	if err != nil {
		s.logger.Error("%v", WrapCause(ErrRestoreFailed, err))
		return settle()
	}

	session, err := client.Restore(ctx)
	if err != nil {
		s.logger.Error("%v", WrapCause(ErrRestoreFailed, err))
		return settle()
	}
	if session == nil || session.Expired(s.now()) {
		s.logger.Debug("no valid session found in storage")
		return settle()
	}
	if session.TenantScope == "" {
		session.TenantScope = tenantScope
	}

	s.mu.Lock()
	s.session = session
	s.tenantScope = tenantScope
	s.isLoading = false
	s.setStatusLocked(StatusAuthenticated)
	s.mu.Unlock()

	s.logger.Debug("session loaded from storage: name=%s email=%s",
		session.Profile.Name(), session.Profile.Email())
	s.recordActivity(ctx, ActivityEvent{
		EventType:   ActivityEventSessionRestored,
		Subject:     session.Subject,
		TenantScope: tenantScope,
		FromStatus:  from,
		ToStatus:    StatusAuthenticated,
	})

	return session.Clone()
}

// ClearError resets the recorded error.
func (s *AuthStore) ClearError() {
	s.mu.Lock()
	s.err = nil
	s.mu.Unlock()
}

// Close releases the live client, stopping its background work.
func (s *AuthStore) Close() error {
	s.mu.Lock()
	client := s.client
	s.client = nil
	s.mu.Unlock()
	if client == nil {
		return nil
	}
	return client.Close()
}

// IsAuthenticated reports whether a session exists and has not expired.
func (s *AuthStore) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isAuthenticatedLocked()
}

// AccessToken returns the current access token, empty when there is no session.
func (s *AuthStore) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.session == nil {
		return ""
	}
	return s.session.AccessToken
}

// UserProfile returns a copy of the current profile claims, nil when there is no session.
func (s *AuthStore) UserProfile() ProfileClaims {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.session == nil {
		return nil
	}
	return s.session.Profile.Clone()
}

// Session returns a copy of the current session, which may be expired.
func (s *AuthStore) Session() *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session.Clone()
}

func (s *AuthStore) TenantScope() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tenantScope
}

func (s *AuthStore) IsLoading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isLoading
}

// Error returns the readable message of the last failure, empty when none.
func (s *AuthStore) Error() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return ErrorMessage(s.err)
}

// Err returns the last failure.
func (s *AuthStore) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

// Status returns the lifecycle status. An authenticated store whose session
// expired reports StatusUnauthenticated.
func (s *AuthStore) Status() AuthStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.statusLocked()
}

// State returns a consistent snapshot of the store.
func (s *AuthStore) State() AuthState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return AuthState{
		Session:         s.session.Clone(),
		TenantScope:     s.tenantScope,
		IsLoading:       s.isLoading,
		Error:           ErrorMessage(s.err),
		Status:          s.statusLocked(),
		IsAuthenticated: s.isAuthenticatedLocked(),
	}
}

func (s *AuthStore) isAuthenticatedLocked() bool {
	return s.session != nil && !s.session.Expired(s.now())
}

func (s *AuthStore) statusLocked() AuthStatus {
	if s.status == StatusAuthenticated && !s.isAuthenticatedLocked() {
		return StatusUnauthenticated
	}
	return s.status
}

// settledStatusLocked is the status to fall back to after a failed
// operation: a still valid session keeps the store authenticated.
func (s *AuthStore) settledStatusLocked() AuthStatus {
	if s.isAuthenticatedLocked() {
		return StatusAuthenticated
	}
	return StatusUnauthenticated
}

func (s *AuthStore) setStatusLocked(to AuthStatus) {
	next, err := s.machine.transition(s.status, to)
	if err != nil {
		s.logger.Warn("%v: from=%s to=%s", err, s.status, to)
	}
	s.status = next
}

// clientFor returns the live client when it serves tenantScope, otherwise
// builds and adopts a new one.
func (s *AuthStore) clientFor(tenantScope string) (SessionClient, error) {
	s.mu.RLock()
	client := s.client
	s.mu.RUnlock()
	if client != nil && client.TenantScope() == tenantScope {
		return client, nil
	}

	client, err := s.factory.Create(tenantScope)
	if err != nil {
		return nil, err
	}
	s.adoptClient(client)
	return client, nil
}

func (s *AuthStore) adoptClient(client SessionClient) {
	s.mu.Lock()
	previous := s.client
	s.client = client
	s.mu.Unlock()

	client.Subscribe(func(event ClientEvent) {
		s.handleClientEvent(client, event)
	})

	if previous != nil && previous != client {
		if err := previous.Close(); err != nil {
			s.logger.Warn("close previous client: %v", err)
		}
	}
}

func (s *AuthStore) handleClientEvent(client SessionClient, event ClientEvent) {
	s.mu.Lock()
	if s.client != client {
		s.mu.Unlock()
		return
	}

	switch event.Type {
	case EventUserSignedOut:
		var subject string
		if s.session != nil {
			subject = s.session.Subject
		}
		from := s.status
		s.session = nil
		s.setStatusLocked(StatusUnauthenticated)
		s.mu.Unlock()

		s.logger.Info("session signed out elsewhere: organization=%s", event.TenantScope)
		s.recordActivity(context.Background(), ActivityEvent{
			EventType:   ActivityEventSessionSignedOut,
			Subject:     subject,
			TenantScope: event.TenantScope,
			FromStatus:  from,
			ToStatus:    StatusUnauthenticated,
		})

	case EventSilentRenewError:
		s.mu.Unlock()
		s.logger.Warn("silent renew failed: organization=%s: %v", event.TenantScope, event.Err)
		s.recordActivity(context.Background(), ActivityEvent{
			EventType:   ActivityEventSilentRenewFailed,
			TenantScope: event.TenantScope,
			Metadata:    map[string]any{"error": ErrorMessage(event.Err)},
		})

	default:
		s.mu.Unlock()
	}
}

func (s *AuthStore) recordActivity(ctx context.Context, event ActivityEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = s.now()
	}
	if len(event.Metadata) == 0 {
		event.Metadata = nil
	}

	sink := normalizeActivitySink(s.activitySink)
	if err := sink.Record(ctx, event); err != nil {
		s.logger.Warn("auth store activity sink error: %v", err)
	}
}
