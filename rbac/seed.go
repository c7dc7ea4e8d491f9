package rbac

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/MrEthical07/authcore/store"
	"github.com/google/uuid"
)

// Hasher produces a password digest for the bootstrap admin.
type Hasher interface {
	Hash(password string) (string, error)
}

// Admin describes the bootstrap administrator account.
type Admin struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
}

// SeedOptions controls Seed. Admin is optional; when set, Hasher is required.
type SeedOptions struct {
	Admin  *Admin
	Hasher Hasher
	Logger *slog.Logger
	Now    func() time.Time
}

// SeedReport counts what Seed changed.
type SeedReport struct {
	Permissions  int
	Roles        int
	Edges        int
	AdminCreated bool
}

// Seed makes the store contain every catalog permission, every role, and
// every default bundle edge. Existing rows and edges are left alone.
func Seed(ctx context.Context, cs store.CredentialStore, c *Catalog, opts SeedOptions) (SeedReport, error) {
	var report SeedReport
	if cs == nil || c == nil {
		return report, errors.New("rbac: seed requires a store and a catalog")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}

	perms := make(map[string]store.Permission)
	for _, name := range c.Permissions() {
		p, err := cs.EnsurePermission(ctx, name)
		if err != nil {
			return report, fmt.Errorf("rbac: ensure permission %s: %w", name, err)
		}
		perms[name] = p
		report.Permissions++
	}

	roles := make(map[string]store.Role)
	for _, name := range c.Roles() {
		r, err := cs.EnsureRole(ctx, name)
		if err != nil {
			return report, fmt.Errorf("rbac: ensure role %s: %w", name, err)
		}
		roles[name] = r
		report.Roles++

		have, err := cs.PermissionsForRole(ctx, r.ID)
		if err != nil {
			return report, fmt.Errorf("rbac: load bundle %s: %w", name, err)
		}
		held := make(map[string]struct{}, len(have))
		for _, p := range have {
			held[p.ID] = struct{}{}
		}

		bundle, _ := c.Bundle(name)
		var missing []string
		for _, pname := range bundle {
			id := perms[pname].ID
			if _, ok := held[id]; !ok {
				missing = append(missing, id)
			}
		}
		if len(missing) == 0 {
			continue
		}
		if err := cs.AddRolePermissions(ctx, r.ID, missing); err != nil && !errors.Is(err, store.ErrConflict) {
			return report, fmt.Errorf("rbac: add bundle %s: %w", name, err)
		}
		report.Edges += len(missing)
	}

	if opts.Admin != nil {
		created, err := seedAdmin(ctx, cs, roles, *opts.Admin, opts.Hasher, now().UTC())
		if err != nil {
			return report, err
		}
		report.AdminCreated = created
		if created {
			logger.Info("rbac.seed.admin_created", "email", store.NormalizeEmail(opts.Admin.Email))
		}
	}

	logger.Info("rbac.seed.done",
		"permissions", report.Permissions,
		"roles", report.Roles,
		"edges_added", report.Edges,
	)
	return report, nil
}

func seedAdmin(ctx context.Context, cs store.CredentialStore, roles map[string]store.Role, admin Admin, hasher Hasher, now time.Time) (bool, error) {
	email := store.NormalizeEmail(admin.Email)
	if email == "" || !strings.Contains(email, "@") {
		return false, errors.New("rbac: bootstrap admin email is invalid")
	}
	if hasher == nil {
		return false, errors.New("rbac: bootstrap admin requires a hasher")
	}

	if _, err := cs.AccountByEmail(ctx, email); err == nil {
		return false, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return false, fmt.Errorf("rbac: lookup admin: %w", err)
	}

	hash, err := hasher.Hash(admin.Password)
	if err != nil {
		return false, fmt.Errorf("rbac: hash admin password: %w", err)
	}

	var roleIDs []string
	for _, name := range []string{RoleUser, RoleAdmin} {
		if r, ok := roles[name]; ok {
			roleIDs = append(roleIDs, r.ID)
		}
	}

	err = cs.CreateAccount(ctx, store.Account{
		ID:           uuid.NewString(),
		Email:        email,
		FirstName:    admin.FirstName,
		LastName:     admin.LastName,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, roleIDs)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, store.ErrConflict):
		return false, nil
	default:
		return false, fmt.Errorf("rbac: create admin: %w", err)
	}
}
