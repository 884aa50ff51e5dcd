package tenantauth

import (
	"context"
	"time"
)

// ActivityEventType enumerates supported activity categories.
type ActivityEventType string

const (
	ActivityEventLoginStarted      ActivityEventType = "auth.login.started"
	ActivityEventLoginFailure      ActivityEventType = "auth.login.failure"
	ActivityEventCallbackSuccess   ActivityEventType = "auth.callback.success"
	ActivityEventCallbackFailure   ActivityEventType = "auth.callback.failure"
	ActivityEventLogout            ActivityEventType = "auth.logout"
	ActivityEventSessionRestored   ActivityEventType = "auth.session.restored"
	ActivityEventSessionSignedOut  ActivityEventType = "auth.session.signed_out"
	ActivityEventSilentRenewFailed ActivityEventType = "auth.renew.failure"
)

// ActivityEvent captures audit-friendly information about an action.
type ActivityEvent struct {
	EventType   ActivityEventType
	Subject     string
	TenantScope string
	FromStatus  AuthStatus
	ToStatus    AuthStatus
	Metadata    map[string]any
	OccurredAt  time.Time
}

// ActivitySink consumes activity events for auditing/telemetry purposes.
type ActivitySink interface {
	Record(ctx context.Context, event ActivityEvent) error
}

// ActivitySinkFunc adapts a function to the ActivitySink interface.
type ActivitySinkFunc func(ctx context.Context, event ActivityEvent) error

// Record implements ActivitySink.
func (f ActivitySinkFunc) Record(ctx context.Context, event ActivityEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

type noopActivitySink struct{}

func (noopActivitySink) Record(context.Context, ActivityEvent) error {
	return nil
}

func normalizeActivitySink(s ActivitySink) ActivitySink {
	if s == nil {
		return noopActivitySink{}
	}
	return s
}
