package tenantauth

import "fmt"

// AuthStatus is the lifecycle position of an AuthStore.
type AuthStatus string

const (
	StatusUnauthenticated AuthStatus = "unauthenticated"
	StatusAuthenticating  AuthStatus = "authenticating"
	StatusAuthenticated   AuthStatus = "authenticated"
)

// String implements fmt.Stringer.
func (s AuthStatus) String() string {
	return string(s)
}

// IsValid reports whether s is one of the known statuses.
func (s AuthStatus) IsValid() bool {
	switch s {
	case StatusUnauthenticated, StatusAuthenticating, StatusAuthenticated:
		return true
	}
	return false
}

// statusMachine validates status changes. Error is orthogonal to status
// and is not modeled here. Staying in the same status is always allowed.
type statusMachine struct {
	transitions map[AuthStatus]map[AuthStatus]struct{}
}

func newStatusMachine() statusMachine {
	return statusMachine{
		transitions: map[AuthStatus]map[AuthStatus]struct{}{
			// a session is only adopted after a login or restore was in flight
			StatusUnauthenticated: {
				StatusAuthenticating: {},
			},
			StatusAuthenticating: {
				StatusAuthenticated:   {},
				StatusUnauthenticated: {},
			},
			StatusAuthenticated: {
				StatusAuthenticating:  {},
				StatusUnauthenticated: {},
			},
		},
	}
}

func (sm statusMachine) canTransition(from, to AuthStatus) bool {
	if from == to {
		return true
	}
	if allowed, ok := sm.transitions[from]; ok {
		_, exists := allowed[to]
		return exists
	}
	return false
}

// transition returns the status to adopt. Disallowed changes are reported
// with ErrInvalidTransition and the target is adopted anyway so the store
// never gets stuck.
func (sm statusMachine) transition(from, to AuthStatus) (AuthStatus, error) {
	if !to.IsValid() {
		return from, WrapCause(ErrInvalidTransition, fmt.Errorf("unknown target status %q", to))
	}
	if !sm.canTransition(from, to) {
		return to, WrapCause(ErrInvalidTransition, fmt.Errorf("%s -> %s", from, to))
	}
	return to, nil
}
