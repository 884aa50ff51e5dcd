// Package tenantauth manages OAuth2 authorization code + PKCE sessions that
// are scoped to an organization (tenant) of the identity provider.
//
// Session lifecycle:
//   - AuthStore owns the session of one user agent. Login persists the
//     selected organization and sends the user agent to the provider;
//     HandleCallback exchanges the code for a Session; Restore reloads a
//     stored one and is safe to call repeatedly; Logout always clears local
//     state, even when the provider could not be reached.
//   - Status moves between unauthenticated, authenticating and authenticated.
//     A session is authenticated only until its ExpiresAt.
//
// Session clients:
//   - ClientFactory builds one SessionClient per organization. The oidc
//     subpackage provides the implementation: discovery, PKCE, ID token
//     verification, silent renewal and session monitoring.
//   - Clients emit ClientEvents (user loaded, token expiring, renew error,
//     signed out). The store only reacts to events of its current client.
//
// Navigation:
//   - A redirect is a Navigator call; nothing runs after it in the same flow.
//     HTTP handlers pass a per request Navigator with ContextWithNavigator.
//   - Guard restores the session once before sending unauthenticated
//     navigation to the login page. The requested path is kept in transient
//     storage and ConsumeReturnURL honors it at most once.
//
// HTTP:
//   - Agents maps each browser (agent cookie) to its AuthStore over a
//     namespaced view of the durable storage. HTTPController and Protect
//     expose the store through go-router.
package tenantauth
