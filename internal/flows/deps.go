package flows

import (
	"context"
	"time"

	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/store"
)

// FailureKind classifies flow failures for root-level mapping.
type FailureKind int

const (
	FailureNone FailureKind = iota
	FailureRateLimited
	FailureUserNotFound
	FailureInvalidCredentials
	FailureMissingToken
	FailureTokenNotFound
	FailureTokenRevoked
	FailureTokenExpired
	FailureRoleNotFound
	FailurePermissionNotFound
	FailureDuplicateRole
	FailureDuplicatePermission
	FailureAccountExists
	FailureInvalidRequest
	FailureBackend
)

var failureNames = [...]string{
	FailureNone:                "none",
	FailureRateLimited:         "rate_limited",
	FailureUserNotFound:        "user_not_found",
	FailureInvalidCredentials:  "invalid_credentials",
	FailureMissingToken:        "missing_token",
	FailureTokenNotFound:       "not_found",
	FailureTokenRevoked:        "revoked",
	FailureTokenExpired:        "expired",
	FailureRoleNotFound:        "role_not_found",
	FailurePermissionNotFound:  "permission_not_found",
	FailureDuplicateRole:       "duplicate_role",
	FailureDuplicatePermission: "duplicate_permission",
	FailureAccountExists:       "account_exists",
	FailureInvalidRequest:      "invalid_request",
	FailureBackend:             "backend",
}

func (k FailureKind) String() string {
	if k < 0 || int(k) >= len(failureNames) {
		return "unknown"
	}
	return failureNames[k]
}

// TokenIssuer mints access tokens.
type TokenIssuer interface {
	CreateAccess(sub jwt.Subject, now time.Time) (string, *jwt.AccessClaims, error)
}

// PasswordHasher is the subset of password.Argon2 the flows use.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, encodedHash string) (bool, error)
	VerifyDummy(password string)
	NeedsRehash(encodedHash string) (bool, error)
}

// LoginLimiter throttles failed logins per email and optionally per IP.
type LoginLimiter interface {
	CheckLogin(ctx context.Context, email, ip string) error
	IncrementLogin(ctx context.Context, email, ip string) error
	ResetLogin(ctx context.Context, email, ip string) error
}

// RefreshLimiter throttles rotation attempts per subject.
type RefreshLimiter interface {
	CheckRefresh(ctx context.Context, subject string) error
}

// Issued is a freshly minted access/refresh pair. RefreshToken is the raw
// secret and must only travel back to the client.
type Issued struct {
	AccessToken  string
	Claims       *jwt.AccessClaims
	RefreshToken string
	Refresh      store.RefreshToken
	Grants       store.Grants
}

// SessionDeps is shared by every flow that writes to the ledger.
type SessionDeps struct {
	Ledger           store.RefreshLedger
	Credentials      store.CredentialStore
	Issuer           TokenIssuer
	NewRefreshToken  func() (string, error)
	HashRefreshToken func(string) string
	NewID            func(time.Time) string
	RefreshTTL       time.Duration
	Now              func() time.Time
	Warn             func(msg string, args ...any)
}

func (d SessionDeps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

func (d SessionDeps) warn(msg string, args ...any) {
	if d.Warn != nil {
		d.Warn(msg, args...)
	}
}

// newRefreshRow generates a secret and the ledger row for it. AccountID is
// left to the caller.
func (d SessionDeps) newRefreshRow(now time.Time) (string, store.RefreshToken, error) {
	raw, err := d.NewRefreshToken()
	if err != nil {
		return "", store.RefreshToken{}, err
	}
	return raw, store.RefreshToken{
		ID:        d.NewID(now),
		TokenHash: d.HashRefreshToken(raw),
		CreatedAt: now,
		ExpiresAt: now.Add(d.RefreshTTL),
	}, nil
}

func (d SessionDeps) issueAccess(account store.Account, grants store.Grants, now time.Time) (string, *jwt.AccessClaims, error) {
	return d.Issuer.CreateAccess(jwt.Subject{
		AccountID:   account.ID,
		Email:       account.Email,
		Roles:       grants.Roles,
		Permissions: grants.Permissions,
	}, now)
}
