package tenantauth

import "time"

// ClientEventType enumerates the notifications a SessionClient emits.
type ClientEventType string

const (
	// EventUserLoaded fires after a login completes or a silent renewal stored new tokens.
	EventUserLoaded ClientEventType = "user_loaded"
	// EventAccessTokenExpiring fires when the renew leeway is reached.
	EventAccessTokenExpiring ClientEventType = "access_token_expiring"
	// EventSilentRenewError fires when a background renewal failed.
	EventSilentRenewError ClientEventType = "silent_renew_error"
	// EventUserSignedOut fires when the shared token record disappeared.
	EventUserSignedOut ClientEventType = "user_signed_out"
)

// ClientEvent is delivered to subscribers of a SessionClient.
type ClientEvent struct {
	Type        ClientEventType
	TenantScope string
	Session     *Session
	Err         error
	OccurredAt  time.Time
}

// ClientEventHandler receives client events. Handlers run on the client's
// background goroutines and must not block.
type ClientEventHandler func(event ClientEvent)
