package tenantauth_test

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	tenantauth "github.com/goliatone/go-tenant-auth"
	"github.com/goliatone/go-tenant-auth/storage"
)

// MockSessionClient implements tenantauth.SessionClient
type MockSessionClient struct {
	mock.Mock
	Tenant string

	mu       sync.Mutex
	handlers []tenantauth.ClientEventHandler
	closed   int
}

func NewMockSessionClient(tenant string) *MockSessionClient {
	return &MockSessionClient{Tenant: tenant}
}

func (m *MockSessionClient) TenantScope() string {
	return m.Tenant
}

func (m *MockSessionClient) BeginLogin(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockSessionClient) CompleteLogin(ctx context.Context, params tenantauth.CallbackParams) (*tenantauth.Session, error) {
	args := m.Called(ctx, params)
	session, _ := args.Get(0).(*tenantauth.Session)
	return session, args.Error(1)
}

func (m *MockSessionClient) BeginLogout(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockSessionClient) Restore(ctx context.Context) (*tenantauth.Session, error) {
	args := m.Called(ctx)
	session, _ := args.Get(0).(*tenantauth.Session)
	return session, args.Error(1)
}

func (m *MockSessionClient) Subscribe(handler tenantauth.ClientEventHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = append(m.handlers, handler)
}

func (m *MockSessionClient) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed++
	return nil
}

// Emit delivers event to every subscriber.
func (m *MockSessionClient) Emit(event tenantauth.ClientEvent) {
	m.mu.Lock()
	handlers := append([]tenantauth.ClientEventHandler(nil), m.handlers...)
	m.mu.Unlock()
	if event.TenantScope == "" {
		event.TenantScope = m.Tenant
	}
	for _, h := range handlers {
		h(event)
	}
}

func (m *MockSessionClient) Closed() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// MockClientFactory implements tenantauth.ClientFactory
type MockClientFactory struct {
	mock.Mock
}

func (m *MockClientFactory) Create(tenantScope string) (tenantauth.SessionClient, error) {
	args := m.Called(tenantScope)
	client, _ := args.Get(0).(tenantauth.SessionClient)
	return client, args.Error(1)
}

// recordingStorage wraps the memory backend and remembers the order of writes.
type recordingStorage struct {
	*storage.Memory
	mu     sync.Mutex
	events []string
}

func newRecordingStorage() *recordingStorage {
	return &recordingStorage{Memory: storage.NewMemory()}
}

func (s *recordingStorage) Set(ctx context.Context, key, value string) error {
	s.record("set:" + key)
	return s.Memory.Set(ctx, key, value)
}

func (s *recordingStorage) record(event string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func (s *recordingStorage) Events() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.events...)
}

type activityRecorder struct {
	mu     sync.Mutex
	events []tenantauth.ActivityEvent
}

func (r *activityRecorder) Record(_ context.Context, event tenantauth.ActivityEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *activityRecorder) Types() []tenantauth.ActivityEventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]tenantauth.ActivityEventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.EventType)
	}
	return out
}

func (r *activityRecorder) Events() []tenantauth.ActivityEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]tenantauth.ActivityEvent(nil), r.events...)
}

// testClock is a settable clock.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock(now time.Time) *testClock {
	return &testClock{now: now}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testSession(subject, tenant string, expiresAt time.Time) *tenantauth.Session {
	return &tenantauth.Session{
		Subject:     subject,
		AccessToken: "access-" + subject,
		ExpiresAt:   expiresAt,
		TenantScope: tenant,
		Profile: tenantauth.ProfileClaims{
			tenantauth.ClaimSubject: subject,
			tenantauth.ClaimName:    "Ada Lovelace",
			tenantauth.ClaimEmail:   "ada@acme.example",
		},
	}
}

// logRecorder is a tenantauth.Logger that keeps formatted messages per level.
type logRecorder struct {
	mu       sync.Mutex
	messages map[string][]string
}

func newLogRecorder() *logRecorder {
	return &logRecorder{messages: map[string][]string{}}
}

func (l *logRecorder) log(level, format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages[level] = append(l.messages[level], fmt.Sprintf(format, args...))
}

func (l *logRecorder) Debug(format string, args ...any) { l.log("debug", format, args...) }
func (l *logRecorder) Info(format string, args ...any)  { l.log("info", format, args...) }
func (l *logRecorder) Warn(format string, args ...any)  { l.log("warn", format, args...) }
func (l *logRecorder) Error(format string, args ...any) { l.log("error", format, args...) }

func (l *logRecorder) Messages(level string) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.messages[level]...)
}
