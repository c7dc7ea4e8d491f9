// Package authcore issues and manages identity and access credentials: it
// authenticates accounts, mints short-lived HMAC-signed access tokens that
// carry role and permission claims, and keeps a revocable ledger of hashed
// refresh tokens with single-use rotation.
//
// Engine methods are safe to call from multiple goroutines after
// initialization through [Builder.Build].
//
// # Architecture boundaries
//
// authcore is the public surface. It exposes [Engine], [Builder], [Config], the
// error vocabulary and value types ([Identity], [TokenPair], [SessionInfo]).
// Persistence sits behind the store contracts; flow orchestration, throttling
// and audit dispatch live under internal/.
//
// # What this package must NOT do
//
//   - Persist or log raw refresh secrets, access tokens or passwords.
//   - Touch storage while verifying an access token.
//   - Import any sub-package that re-imports authcore (no import cycles).
//
// # Staleness
//
// Access-token claims are a snapshot taken at issuance. Role or permission
// changes and logout-all become visible to access-token checks only after the
// token expires, so JWT.AccessTTL bounds the window.
package authcore
