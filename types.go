package authcore

import (
	"slices"
	"time"

	"github.com/MrEthical07/authcore/store"
)

// Identity is the authenticated principal reconstructed from access-token
// claims. It is never refreshed from storage, so role or permission changes
// become visible only after the holder's next token is issued.
type Identity struct {
	AccountID   string
	Email       string
	Roles       []string
	Permissions []string
	TokenID     string
	IssuedAt    time.Time
	ExpiresAt   time.Time
}

// Authorities returns the union of role and permission names.
func (id *Identity) Authorities() []string {
	if id == nil {
		return nil
	}
	out := make([]string, 0, len(id.Roles)+len(id.Permissions))
	out = append(out, id.Roles...)
	out = append(out, id.Permissions...)
	return store.SortedSet(out)
}

// HasAuthority reports whether name is one of the identity's roles or
// permissions.
func (id *Identity) HasAuthority(name string) bool {
	if id == nil {
		return false
	}
	return slices.Contains(id.Roles, name) || slices.Contains(id.Permissions, name)
}

// HasAll reports whether every name is held.
func (id *Identity) HasAll(names ...string) bool {
	for _, n := range names {
		if !id.HasAuthority(n) {
			return false
		}
	}
	return id != nil
}

// TokenPair is returned by Login and Rotate. RefreshToken is the raw secret;
// it is shown once and only its hash is stored.
type TokenPair struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
	Identity         *Identity
}

// SessionInfo describes one refresh-token row without its hash.
type SessionInfo struct {
	ID        string
	CreatedAt time.Time
	ExpiresAt time.Time
	RevokedAt *time.Time
	State     store.TokenState
}

// AccountView is the self-service projection of an account.
type AccountView struct {
	ID             string
	Email          string
	FirstName      string
	LastName       string
	CreatedAt      time.Time
	Roles          []string
	Permissions    []string
	ActiveSessions int
}

// Assignment is the outcome of AssignPermissionsToRole.
type Assignment struct {
	Role        string
	Added       []string
	Permissions []string
}

// RegisterRequest is the input to Register.
type RegisterRequest struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
}
