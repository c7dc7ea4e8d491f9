// Package middleware exposes HTTP adapters that bind an [authcore.Identity]
// to the request context and enforce authentication and permission checks.
//
// # Components
//
//   - [Gate] verifies a bearer access token and binds the identity.
//   - [RequireAuthenticated] rejects requests without an identity (401).
//   - [RequirePermission] additionally requires every listed authority (403).
//
// The Gate never rejects a request itself: unauthenticated requests flow on
// and the Require guards on protected routes decide.
//
// # What this package must NOT do
//
//   - Parse or create JWTs directly (delegates to the Verifier).
//   - Access storage; authorities come from token claims only.
package middleware
