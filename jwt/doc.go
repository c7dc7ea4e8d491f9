// Package jwt issues and verifies stateless access tokens signed with a shared
// HMAC secret. Tokens carry the account id as subject plus role and
// permission claims; verification never touches storage.
package jwt
