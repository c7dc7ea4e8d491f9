package flows

import (
	"context"
	"errors"
	"strings"

	"github.com/MrEthical07/authcore/store"
)

// AssignRoleResult carries failure metadata for RunAssignRole.
type AssignRoleResult struct {
	Failure   FailureKind
	Err       error
	AccountID string
	Role      string
}

// RunAssignRole adds roleName to the account's role set. The set is left
// unchanged on every failure.
func RunAssignRole(ctx context.Context, accountID, roleName string, cs store.CredentialStore) AssignRoleResult {
	accountID = strings.TrimSpace(accountID)
	roleName = strings.TrimSpace(roleName)
	res := AssignRoleResult{AccountID: accountID, Role: roleName}
	if accountID == "" || roleName == "" {
		res.Failure, res.Err = FailureInvalidRequest, errors.New("account id and role name are required")
		return res
	}

	if _, err := cs.AccountByID(ctx, accountID); err != nil {
		res.Failure, res.Err = lookupFailure(err, FailureUserNotFound), err
		return res
	}
	role, err := cs.RoleByName(ctx, roleName)
	if err != nil {
		res.Failure, res.Err = lookupFailure(err, FailureRoleNotFound), err
		return res
	}

	current, err := cs.RoleNamesForAccount(ctx, accountID)
	if err != nil {
		res.Failure, res.Err = FailureBackend, err
		return res
	}
	for _, name := range current {
		if name == role.Name {
			res.Failure, res.Err = FailureDuplicateRole, store.ErrConflict
			return res
		}
	}

	if err := cs.AddAccountRole(ctx, accountID, role.ID); err != nil {
		switch {
		case errors.Is(err, store.ErrConflict):
			// A concurrent assignment won the race.
			res.Failure = FailureDuplicateRole
		case errors.Is(err, store.ErrNotFound):
			res.Failure = FailureUserNotFound
		default:
			res.Failure = FailureBackend
		}
		res.Err = err
		return res
	}
	return res
}

// AssignPermissionsResult carries the outcome of RunAssignPermissions.
// Missing names the first unknown permission; Duplicates lists the requested
// names the role already holds.
type AssignPermissionsResult struct {
	Failure     FailureKind
	Err         error
	Role        string
	Added       []string
	Missing     string
	Duplicates  []string
	Permissions []string
}

// RunAssignPermissions adds every named permission to roleName or none.
func RunAssignPermissions(ctx context.Context, roleName string, names []string, cs store.CredentialStore) AssignPermissionsResult {
	roleName = strings.TrimSpace(roleName)
	requested := store.SortedSet(names)
	res := AssignPermissionsResult{Role: roleName}
	if roleName == "" || len(requested) == 0 {
		res.Failure, res.Err = FailureInvalidRequest, errors.New("role name and at least one permission are required")
		return res
	}

	role, err := cs.RoleByName(ctx, roleName)
	if err != nil {
		res.Failure, res.Err = lookupFailure(err, FailureRoleNotFound), err
		return res
	}

	// Resolve in request order so the reported name is the first one the
	// caller listed.
	ids := make([]string, 0, len(requested))
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if _, dup := seen[name]; dup || name == "" {
			continue
		}
		seen[name] = struct{}{}
		p, err := cs.PermissionByName(ctx, name)
		if err != nil {
			res.Failure, res.Err = lookupFailure(err, FailurePermissionNotFound), err
			if res.Failure == FailurePermissionNotFound {
				res.Missing = name
			}
			return res
		}
		ids = append(ids, p.ID)
	}

	existing, err := cs.PermissionsForRole(ctx, role.ID)
	if err != nil {
		res.Failure, res.Err = FailureBackend, err
		return res
	}
	held := make(map[string]struct{}, len(existing))
	for _, p := range existing {
		held[p.Name] = struct{}{}
	}
	for _, name := range requested {
		if _, ok := held[name]; ok {
			res.Duplicates = append(res.Duplicates, name)
		}
	}
	if len(res.Duplicates) > 0 {
		res.Failure, res.Err = FailureDuplicatePermission, store.ErrConflict
		return res
	}

	if err := cs.AddRolePermissions(ctx, role.ID, ids); err != nil {
		switch {
		case errors.Is(err, store.ErrConflict):
			res.Failure = FailureDuplicatePermission
		case errors.Is(err, store.ErrNotFound):
			res.Failure = FailureRoleNotFound
		default:
			res.Failure = FailureBackend
		}
		res.Err = err
		return res
	}

	res.Added = requested
	all := make([]string, 0, len(existing)+len(requested))
	for _, p := range existing {
		all = append(all, p.Name)
	}
	res.Permissions = store.SortedSet(append(all, requested...))
	return res
}

func lookupFailure(err error, notFound FailureKind) FailureKind {
	if errors.Is(err, store.ErrNotFound) {
		return notFound
	}
	return FailureBackend
}
