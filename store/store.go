package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when the addressed record does not exist.
	ErrNotFound = errors.New("store: not found")
	// ErrConflict is returned when a write would violate a uniqueness constraint.
	ErrConflict = errors.New("store: conflict")
	// ErrTokenRevoked is returned by rotation when the presented row is revoked.
	ErrTokenRevoked = errors.New("store: refresh token revoked")
	// ErrTokenExpired is returned by rotation when the presented row has expired.
	ErrTokenExpired = errors.New("store: refresh token expired")
	// ErrUnavailable wraps backend connectivity failures.
	ErrUnavailable = errors.New("store: backend unavailable")
)

// CredentialStore persists accounts, roles, permissions and the
// account↔role / role↔permission edges.
type CredentialStore interface {
	CreateAccount(ctx context.Context, account Account, roleIDs []string) error
	AccountByEmail(ctx context.Context, email string) (Account, error)
	AccountByID(ctx context.Context, id string) (Account, error)
	UpdatePasswordHash(ctx context.Context, accountID, hash string, now time.Time) error

	RoleByName(ctx context.Context, name string) (Role, error)
	PermissionByName(ctx context.Context, name string) (Permission, error)
	EnsureRole(ctx context.Context, name string) (Role, error)
	EnsurePermission(ctx context.Context, name string) (Permission, error)

	// Grants returns role names and the union of their permission names.
	Grants(ctx context.Context, accountID string) (Grants, error)
	RoleNamesForAccount(ctx context.Context, accountID string) ([]string, error)
	PermissionsForRole(ctx context.Context, roleID string) ([]Permission, error)

	// AddAccountRole returns ErrConflict if the edge already exists.
	AddAccountRole(ctx context.Context, accountID, roleID string) error
	// AddRolePermissions inserts every edge or none; ErrConflict if any exists.
	AddRolePermissions(ctx context.Context, roleID string, permissionIDs []string) error
}

// RefreshLedger stores hashed refresh tokens. Implementations must make
// RotateRefreshToken atomic with respect to concurrent calls on the same hash.
type RefreshLedger interface {
	InsertRefreshToken(ctx context.Context, token RefreshToken) error
	RefreshTokenByHash(ctx context.Context, hash string) (RefreshToken, error)
	RefreshTokensForAccount(ctx context.Context, accountID string) ([]RefreshToken, error)

	// RotateRefreshToken locks the row for presentedHash, rejects it when it is
	// missing (ErrNotFound), revoked (ErrTokenRevoked) or expired at now
	// (ErrTokenExpired, row untouched), and otherwise marks it revoked and
	// inserts next under the same account. The prior row is returned.
	RotateRefreshToken(ctx context.Context, presentedHash string, next RefreshToken, now time.Time) (RefreshToken, error)

	// RevokeRefreshToken sets revoked; RevokedAt keeps its first value.
	RevokeRefreshToken(ctx context.Context, hash string, now time.Time) (RefreshToken, error)
	// RevokeAllRefreshTokens revokes every row of the account and reports how
	// many rows it newly revoked.
	RevokeAllRefreshTokens(ctx context.Context, accountID string, now time.Time) (int, error)
}

// Store is satisfied by backends that hold both halves.
type Store interface {
	CredentialStore
	RefreshLedger
}
