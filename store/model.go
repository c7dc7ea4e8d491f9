package store

import (
	"sort"
	"strings"
	"time"
)

// Account is the identity record. Role membership is resolved through
// [CredentialStore.Grants] rather than embedded here.
type Account struct {
	ID           string
	Email        string
	FirstName    string
	LastName     string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Role is a named authorization bucket.
type Role struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

// Permission is a named fine-grained capability.
type Permission struct {
	ID   string
	Name string
}

// RefreshToken is one ledger row. TokenHash is the hex SHA-256 of the raw
// secret; the secret itself never reaches the store.
type RefreshToken struct {
	ID        string
	AccountID string
	TokenHash string
	CreatedAt time.Time
	ExpiresAt time.Time
	Revoked   bool
	RevokedAt *time.Time
}

// TokenState is derived from Revoked and ExpiresAt; it is never stored.
type TokenState string

const (
	TokenActive  TokenState = "active"
	TokenRevoked TokenState = "revoked"
	TokenExpired TokenState = "expired"
)

// State reports the lifecycle state of the row at now. Revocation wins over
// expiry.
func (t RefreshToken) State(now time.Time) TokenState {
	if t.Revoked {
		return TokenRevoked
	}
	if !t.ExpiresAt.After(now) {
		return TokenExpired
	}
	return TokenActive
}

// Grants is the authorization projection of an account: its role names and
// the union of those roles' permission names.
type Grants struct {
	Roles       []string
	Permissions []string
}

// NewGrants de-duplicates and sorts both sets.
func NewGrants(roles, permissions []string) Grants {
	return Grants{
		Roles:       SortedSet(roles),
		Permissions: SortedSet(permissions),
	}
}

// SortedSet returns the distinct non-empty values of in, sorted.
func SortedSet(in []string) []string {
	if len(in) == 0 {
		return []string{}
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// NormalizeEmail trims and lower-cases an address for lookup and storage.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
