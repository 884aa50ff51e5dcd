package tenantauth

import (
	stderrors "errors"

	"github.com/goliatone/go-errors"
)

const (
	TextCodeConfigurationIncomplete = "TENANTAUTH_CONFIGURATION_INCOMPLETE"
	TextCodeInvalidTenantScope      = "TENANTAUTH_INVALID_TENANT_SCOPE"
	TextCodeMissingTenantScope      = "TENANTAUTH_MISSING_TENANT_SCOPE"
	TextCodeTokenExchangeFailed     = "TENANTAUTH_TOKEN_EXCHANGE_FAILED"
	TextCodeLogoutTransportFailed   = "TENANTAUTH_LOGOUT_TRANSPORT_FAILED"
	TextCodeRestoreFailed           = "TENANTAUTH_RESTORE_FAILED"
	TextCodeInvalidState            = "TENANTAUTH_INVALID_STATE"
	TextCodeProviderError           = "TENANTAUTH_PROVIDER_ERROR"
	TextCodeNavigationUnavailable   = "TENANTAUTH_NAVIGATION_UNAVAILABLE"
	TextCodeIDTokenInvalid          = "TENANTAUTH_ID_TOKEN_INVALID"
	TextCodeInvalidTransition       = "TENANTAUTH_INVALID_TRANSITION"
)

// ErrConfigurationIncomplete is reported (never returned by ResolveConfig)
// when the configuration lacks a client identity.
var ErrConfigurationIncomplete = errors.New("configuration incomplete", errors.CategoryValidation).
	WithTextCode(TextCodeConfigurationIncomplete).
	WithCode(errors.CodeBadRequest)

// ErrInvalidTenantScope is returned when a login is attempted without an organization.
var ErrInvalidTenantScope = errors.New("organization is required", errors.CategoryValidation).
	WithTextCode(TextCodeInvalidTenantScope).
	WithCode(errors.CodeBadRequest)

// ErrMissingTenantScope is returned by HandleCallback when no organization was persisted.
var ErrMissingTenantScope = errors.New("Organization not found. Please login again.", errors.CategoryNotFound).
	WithTextCode(TextCodeMissingTenantScope).
	WithCode(errors.CodeNotFound)

// ErrTokenExchangeFailed is returned when the authorization code could not be exchanged.
var ErrTokenExchangeFailed = errors.New("Authentication callback failed", errors.CategoryAuth).
	WithTextCode(TextCodeTokenExchangeFailed).
	WithCode(errors.CodeUnauthorized)

// ErrLogoutTransportFailed is recorded when the remote logout redirect could not be issued.
var ErrLogoutTransportFailed = errors.New("Logout failed", errors.CategoryInternal).
	WithTextCode(TextCodeLogoutTransportFailed).
	WithCode(errors.CodeInternal)

// ErrRestoreFailed is logged when a stored session could not be loaded.
var ErrRestoreFailed = errors.New("unable to restore session", errors.CategoryInternal).
	WithTextCode(TextCodeRestoreFailed).
	WithCode(errors.CodeInternal)

// ErrInvalidState is returned when the callback state does not match a pending sign in.
var ErrInvalidState = errors.New("No matching state found in storage", errors.CategoryBadInput).
	WithTextCode(TextCodeInvalidState).
	WithCode(errors.CodeBadRequest)

// ErrProviderError is returned when the identity provider redirected back with an error.
var ErrProviderError = errors.New("identity provider returned an error", errors.CategoryAuth).
	WithTextCode(TextCodeProviderError).
	WithCode(errors.CodeUnauthorized)

// ErrNavigationUnavailable is returned when a redirect is needed but no Navigator is configured.
var ErrNavigationUnavailable = errors.New("no navigator available for redirect", errors.CategoryInternal).
	WithTextCode(TextCodeNavigationUnavailable).
	WithCode(errors.CodeInternal)

// ErrIDTokenInvalid is returned when the ID token fails verification.
var ErrIDTokenInvalid = errors.New("invalid id token", errors.CategoryAuth).
	WithTextCode(TextCodeIDTokenInvalid).
	WithCode(errors.CodeUnauthorized)

// ErrInvalidTransition is logged when the store is asked to move between
// statuses its transition table does not allow.
var ErrInvalidTransition = errors.New("invalid auth status transition", errors.CategoryValidation).
	WithTextCode(TextCodeInvalidTransition).
	WithCode(errors.CodeBadRequest)

// ErrorMessage returns the human readable message for err.
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	var richErr *errors.Error
	if stderrors.As(err, &richErr) && err == error(richErr) && richErr.Message != "" {
		return richErr.Message
	}
	return err.Error()
}

// causeError ties a sentinel kind to the underlying failure so callers can
// match either with errors.Is.
type causeError struct {
	kind  *errors.Error
	cause error
}

// WrapCause attaches cause to the sentinel kind. Both remain reachable
// through errors.Is and errors.As.
func WrapCause(kind *errors.Error, cause error) error {
	if cause == nil {
		return kind
	}
	if stderrors.Is(cause, kind) {
		return cause
	}
	return &causeError{kind: kind, cause: cause}
}

func (e *causeError) Error() string {
	return e.kind.Message + ": " + ErrorMessage(e.cause)
}

func (e *causeError) Unwrap() []error {
	return []error{e.kind, e.cause}
}
