package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/MrEthical07/authcore/store"
	"github.com/google/uuid"
)

// RoleByName returns the role or store.ErrNotFound.
func (s *Store) RoleByName(ctx context.Context, name string) (store.Role, error) {
	var r store.Role
	err := s.db.QueryRowContext(ctx, `
		select id, name, created_at from `+s.roles+` where name = $1
	`, name).Scan(&r.ID, &r.Name, &r.CreatedAt)
	return r, mapErr("postgres.RoleByName", err)
}

// PermissionByName returns the permission or store.ErrNotFound.
func (s *Store) PermissionByName(ctx context.Context, name string) (store.Permission, error) {
	var p store.Permission
	err := s.db.QueryRowContext(ctx, `
		select id, name from `+s.permissions+` where name = $1
	`, name).Scan(&p.ID, &p.Name)
	return p, mapErr("postgres.PermissionByName", err)
}

// EnsureRole inserts the role if missing and returns the stored row.
func (s *Store) EnsureRole(ctx context.Context, name string) (store.Role, error) {
	if _, err := s.db.ExecContext(ctx, `
		insert into `+s.roles+` (id, name, created_at) values ($1, $2, $3)
		on conflict (name) do nothing
	`, uuid.NewString(), name, time.Now().UTC()); err != nil {
		return store.Role{}, mapErr("postgres.EnsureRole", err)
	}
	return s.RoleByName(ctx, name)
}

// EnsurePermission inserts the permission if missing and returns the stored row.
func (s *Store) EnsurePermission(ctx context.Context, name string) (store.Permission, error) {
	if _, err := s.db.ExecContext(ctx, `
		insert into `+s.permissions+` (id, name) values ($1, $2)
		on conflict (name) do nothing
	`, uuid.NewString(), name); err != nil {
		return store.Permission{}, mapErr("postgres.EnsurePermission", err)
	}
	return s.PermissionByName(ctx, name)
}

// Grants resolves role names and the union of their permissions in one query.
func (s *Store) Grants(ctx context.Context, accountID string) (store.Grants, error) {
	const op = "postgres.Grants"
	if err := s.accountExists(ctx, op, accountID); err != nil {
		return store.Grants{}, err
	}

	rows, err := s.db.QueryContext(ctx, `
		select r.name, p.name
		from `+s.accountRoles+` ar
		join `+s.roles+` r on r.id = ar.role_id
		left join `+s.rolePermissions+` rp on rp.role_id = r.id
		left join `+s.permissions+` p on p.id = rp.permission_id
		where ar.account_id = $1
	`, accountID)
	if err != nil {
		return store.Grants{}, mapErr(op, err)
	}
	defer rows.Close()

	var roles, perms []string
	for rows.Next() {
		var (
			role string
			perm sql.NullString
		)
		if err := rows.Scan(&role, &perm); err != nil {
			return store.Grants{}, mapErr(op, err)
		}
		roles = append(roles, role)
		if perm.Valid {
			perms = append(perms, perm.String)
		}
	}
	if err := rows.Err(); err != nil {
		return store.Grants{}, mapErr(op, err)
	}
	return store.NewGrants(roles, perms), nil
}

// RoleNamesForAccount lists the role names bound to the account.
func (s *Store) RoleNamesForAccount(ctx context.Context, accountID string) ([]string, error) {
	const op = "postgres.RoleNamesForAccount"
	if err := s.accountExists(ctx, op, accountID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		select r.name
		from `+s.accountRoles+` ar
		join `+s.roles+` r on r.id = ar.role_id
		where ar.account_id = $1
		order by r.name
	`, accountID)
	if err != nil {
		return nil, mapErr(op, err)
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, mapErr(op, err)
		}
		out = append(out, name)
	}
	return out, mapErr(op, rows.Err())
}

// PermissionsForRole lists the permissions granted to the role.
func (s *Store) PermissionsForRole(ctx context.Context, roleID string) ([]store.Permission, error) {
	const op = "postgres.PermissionsForRole"
	rows, err := s.db.QueryContext(ctx, `
		select p.id, p.name
		from `+s.rolePermissions+` rp
		join `+s.permissions+` p on p.id = rp.permission_id
		where rp.role_id = $1
		order by p.name
	`, roleID)
	if err != nil {
		return nil, mapErr(op, err)
	}
	defer rows.Close()

	out := []store.Permission{}
	for rows.Next() {
		var p store.Permission
		if err := rows.Scan(&p.ID, &p.Name); err != nil {
			return nil, mapErr(op, err)
		}
		out = append(out, p)
	}
	return out, mapErr(op, rows.Err())
}

// AddAccountRole relies on the (account_id, role_id) primary key to reject
// duplicates.
func (s *Store) AddAccountRole(ctx context.Context, accountID, roleID string) error {
	_, err := s.db.ExecContext(ctx, `
		insert into `+s.accountRoles+` (account_id, role_id) values ($1, $2)
	`, accountID, roleID)
	return mapErr("postgres.AddAccountRole", err)
}

// AddRolePermissions inserts every edge in one transaction; the first
// violation aborts it.
func (s *Store) AddRolePermissions(ctx context.Context, roleID string, permissionIDs []string) error {
	const op = "postgres.AddRolePermissions"

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return mapErr(op, err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, id := range permissionIDs {
		if _, err := tx.ExecContext(ctx, `
			insert into `+s.rolePermissions+` (role_id, permission_id) values ($1, $2)
		`, roleID, id); err != nil {
			return mapErr(op, err)
		}
	}
	return mapErr(op, tx.Commit())
}

func (s *Store) accountExists(ctx context.Context, op, accountID string) error {
	if _, err := uuid.Parse(accountID); err != nil {
		return store.ErrNotFound
	}
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		select exists(select 1 from `+s.accounts+` where id = $1)
	`, accountID).Scan(&exists)
	if err != nil {
		return mapErr(op, err)
	}
	if !exists {
		return store.ErrNotFound
	}
	return nil
}
