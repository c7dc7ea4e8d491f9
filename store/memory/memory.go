package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/MrEthical07/authcore/store"
	"github.com/google/uuid"
)

var _ store.Store = (*Store)(nil)

// Store keeps every table in maps guarded by a single RWMutex. Rotation and
// revocation hold the write lock across their read-check-write, which makes
// them atomic per token hash.
type Store struct {
	mu sync.RWMutex

	accounts       map[string]store.Account
	accountByEmail map[string]string
	roles          map[string]store.Role
	roleByName     map[string]string
	perms          map[string]store.Permission
	permByName     map[string]string
	accountRoles   map[string]map[string]struct{}
	rolePerms      map[string]map[string]struct{}

	tokens        map[string]store.RefreshToken
	tokensByOwner map[string]map[string]struct{}
}

// New returns an empty store.
func New() *Store {
	return &Store{
		accounts:       make(map[string]store.Account),
		accountByEmail: make(map[string]string),
		roles:          make(map[string]store.Role),
		roleByName:     make(map[string]string),
		perms:          make(map[string]store.Permission),
		permByName:     make(map[string]string),
		accountRoles:   make(map[string]map[string]struct{}),
		rolePerms:      make(map[string]map[string]struct{}),
		tokens:         make(map[string]store.RefreshToken),
		tokensByOwner:  make(map[string]map[string]struct{}),
	}
}

// CreateAccount inserts account and its initial role edges.
func (s *Store) CreateAccount(ctx context.Context, account store.Account, roleIDs []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	email := store.NormalizeEmail(account.Email)
	if account.ID == "" {
		account.ID = uuid.NewString()
	}
	account.Email = email

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accountByEmail[email]; ok {
		return store.ErrConflict
	}
	if _, ok := s.accounts[account.ID]; ok {
		return store.ErrConflict
	}
	for _, id := range roleIDs {
		if _, ok := s.roles[id]; !ok {
			return store.ErrNotFound
		}
	}

	s.accounts[account.ID] = account
	s.accountByEmail[email] = account.ID
	edges := make(map[string]struct{}, len(roleIDs))
	for _, id := range roleIDs {
		edges[id] = struct{}{}
	}
	s.accountRoles[account.ID] = edges
	return nil
}

// AccountByEmail looks up an account by normalized address.
func (s *Store) AccountByEmail(ctx context.Context, email string) (store.Account, error) {
	if err := ctx.Err(); err != nil {
		return store.Account{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.accountByEmail[store.NormalizeEmail(email)]
	if !ok {
		return store.Account{}, store.ErrNotFound
	}
	return s.accounts[id], nil
}

// AccountByID looks up an account by id.
func (s *Store) AccountByID(ctx context.Context, id string) (store.Account, error) {
	if err := ctx.Err(); err != nil {
		return store.Account{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[id]
	if !ok {
		return store.Account{}, store.ErrNotFound
	}
	return a, nil
}

// UpdatePasswordHash replaces the stored digest.
func (s *Store) UpdatePasswordHash(ctx context.Context, accountID, hash string, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[accountID]
	if !ok {
		return store.ErrNotFound
	}
	a.PasswordHash = hash
	a.UpdatedAt = now
	s.accounts[accountID] = a
	return nil
}

// RoleByName returns the role with the given catalog name.
func (s *Store) RoleByName(ctx context.Context, name string) (store.Role, error) {
	if err := ctx.Err(); err != nil {
		return store.Role{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.roleByName[name]
	if !ok {
		return store.Role{}, store.ErrNotFound
	}
	return s.roles[id], nil
}

// PermissionByName returns the permission with the given catalog name.
func (s *Store) PermissionByName(ctx context.Context, name string) (store.Permission, error) {
	if err := ctx.Err(); err != nil {
		return store.Permission{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.permByName[name]
	if !ok {
		return store.Permission{}, store.ErrNotFound
	}
	return s.perms[id], nil
}

// EnsureRole returns the role named name, creating it when absent.
func (s *Store) EnsureRole(ctx context.Context, name string) (store.Role, error) {
	if err := ctx.Err(); err != nil {
		return store.Role{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.roleByName[name]; ok {
		return s.roles[id], nil
	}
	r := store.Role{ID: uuid.NewString(), Name: name, CreatedAt: time.Now().UTC()}
	s.roles[r.ID] = r
	s.roleByName[name] = r.ID
	return r, nil
}

// EnsurePermission returns the permission named name, creating it when absent.
func (s *Store) EnsurePermission(ctx context.Context, name string) (store.Permission, error) {
	if err := ctx.Err(); err != nil {
		return store.Permission{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.permByName[name]; ok {
		return s.perms[id], nil
	}
	p := store.Permission{ID: uuid.NewString(), Name: name}
	s.perms[p.ID] = p
	s.permByName[name] = p.ID
	return p, nil
}

// Grants returns the account's role names and the union of their permissions.
func (s *Store) Grants(ctx context.Context, accountID string) (store.Grants, error) {
	if err := ctx.Err(); err != nil {
		return store.Grants{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.accounts[accountID]; !ok {
		return store.Grants{}, store.ErrNotFound
	}
	var roles, perms []string
	for roleID := range s.accountRoles[accountID] {
		roles = append(roles, s.roles[roleID].Name)
		for permID := range s.rolePerms[roleID] {
			perms = append(perms, s.perms[permID].Name)
		}
	}
	return store.NewGrants(roles, perms), nil
}

// RoleNamesForAccount returns the account's role names, sorted.
func (s *Store) RoleNamesForAccount(ctx context.Context, accountID string) ([]string, error) {
	g, err := s.Grants(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return g.Roles, nil
}

// PermissionsForRole returns the role's bundle.
func (s *Store) PermissionsForRole(ctx context.Context, roleID string) ([]store.Permission, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.roles[roleID]; !ok {
		return nil, store.ErrNotFound
	}
	out := make([]store.Permission, 0, len(s.rolePerms[roleID]))
	for permID := range s.rolePerms[roleID] {
		out = append(out, s.perms[permID])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// AddAccountRole adds one account-role edge; ErrConflict if it exists.
func (s *Store) AddAccountRole(ctx context.Context, accountID, roleID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[accountID]; !ok {
		return store.ErrNotFound
	}
	if _, ok := s.roles[roleID]; !ok {
		return store.ErrNotFound
	}
	edges := s.accountRoles[accountID]
	if edges == nil {
		edges = make(map[string]struct{})
		s.accountRoles[accountID] = edges
	}
	if _, ok := edges[roleID]; ok {
		return store.ErrConflict
	}
	edges[roleID] = struct{}{}
	return nil
}

// AddRolePermissions validates every edge before writing any.
func (s *Store) AddRolePermissions(ctx context.Context, roleID string, permissionIDs []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[roleID]; !ok {
		return store.ErrNotFound
	}
	edges := s.rolePerms[roleID]
	seen := make(map[string]struct{}, len(permissionIDs))
	for _, id := range permissionIDs {
		if _, ok := s.perms[id]; !ok {
			return store.ErrNotFound
		}
		if _, ok := edges[id]; ok {
			return store.ErrConflict
		}
		if _, ok := seen[id]; ok {
			return store.ErrConflict
		}
		seen[id] = struct{}{}
	}
	if edges == nil {
		edges = make(map[string]struct{}, len(permissionIDs))
		s.rolePerms[roleID] = edges
	}
	for id := range seen {
		edges[id] = struct{}{}
	}
	return nil
}

// InsertRefreshToken stores a new ledger row.
func (s *Store) InsertRefreshToken(ctx context.Context, token store.RefreshToken) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertTokenLocked(token)
}

func (s *Store) insertTokenLocked(token store.RefreshToken) error {
	if _, ok := s.tokens[token.TokenHash]; ok {
		return store.ErrConflict
	}
	if _, ok := s.accounts[token.AccountID]; !ok {
		return store.ErrNotFound
	}
	s.tokens[token.TokenHash] = token
	owned := s.tokensByOwner[token.AccountID]
	if owned == nil {
		owned = make(map[string]struct{})
		s.tokensByOwner[token.AccountID] = owned
	}
	owned[token.TokenHash] = struct{}{}
	return nil
}

// RefreshTokenByHash returns a copy of the row stored under hash.
func (s *Store) RefreshTokenByHash(ctx context.Context, hash string) (store.RefreshToken, error) {
	if err := ctx.Err(); err != nil {
		return store.RefreshToken{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tokens[hash]
	if !ok {
		return store.RefreshToken{}, store.ErrNotFound
	}
	return copyToken(t), nil
}

// RefreshTokensForAccount returns the account's rows, oldest first.
func (s *Store) RefreshTokensForAccount(ctx context.Context, accountID string) ([]store.RefreshToken, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]store.RefreshToken, 0, len(s.tokensByOwner[accountID]))
	for hash := range s.tokensByOwner[accountID] {
		out = append(out, copyToken(s.tokens[hash]))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// RotateRefreshToken revokes the presented row and inserts next under the
// same account, or reports why the row cannot be rotated.
func (s *Store) RotateRefreshToken(ctx context.Context, presentedHash string, next store.RefreshToken, now time.Time) (store.RefreshToken, error) {
	if err := ctx.Err(); err != nil {
		return store.RefreshToken{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	prior, ok := s.tokens[presentedHash]
	if !ok {
		return store.RefreshToken{}, store.ErrNotFound
	}
	switch prior.State(now) {
	case store.TokenRevoked:
		return copyToken(prior), store.ErrTokenRevoked
	case store.TokenExpired:
		return copyToken(prior), store.ErrTokenExpired
	}

	next.AccountID = prior.AccountID
	if _, ok := s.tokens[next.TokenHash]; ok {
		return store.RefreshToken{}, store.ErrConflict
	}

	revokedAt := now
	updated := prior
	updated.Revoked = true
	updated.RevokedAt = &revokedAt
	s.tokens[presentedHash] = updated
	if err := s.insertTokenLocked(next); err != nil {
		s.tokens[presentedHash] = prior
		return store.RefreshToken{}, err
	}
	return copyToken(updated), nil
}

// RevokeRefreshToken marks the row revoked, keeping an existing RevokedAt.
func (s *Store) RevokeRefreshToken(ctx context.Context, hash string, now time.Time) (store.RefreshToken, error) {
	if err := ctx.Err(); err != nil {
		return store.RefreshToken{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[hash]
	if !ok {
		return store.RefreshToken{}, store.ErrNotFound
	}
	revokeLocked(&t, now)
	s.tokens[hash] = t
	return copyToken(t), nil
}

// RevokeAllRefreshTokens revokes every live row of the account and returns
// how many it changed.
func (s *Store) RevokeAllRefreshTokens(ctx context.Context, accountID string, now time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for hash := range s.tokensByOwner[accountID] {
		t := s.tokens[hash]
		if t.Revoked {
			continue
		}
		revokeLocked(&t, now)
		s.tokens[hash] = t
		n++
	}
	return n, nil
}

func revokeLocked(t *store.RefreshToken, now time.Time) {
	t.Revoked = true
	if t.RevokedAt == nil {
		at := now
		t.RevokedAt = &at
	}
}

func copyToken(t store.RefreshToken) store.RefreshToken {
	if t.RevokedAt != nil {
		at := *t.RevokedAt
		t.RevokedAt = &at
	}
	return t
}
