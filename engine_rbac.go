package authcore

import (
	"context"
	"strings"

	"github.com/MrEthical07/authcore/internal/flows"
)

// AssignRoleToUser adds roleName to the account's roles. The caller's
// identity, when bound to ctx, is recorded as the actor. Tokens already
// issued to the account keep their old claims until they are rotated.
func (e *Engine) AssignRoleToUser(ctx context.Context, accountID, roleName string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	actor := actorFromContext(ctx)
	e.logger.InfoContext(ctx, "rbac.assign_role.attempt", "actor", actor, "account_id", accountID, "role", roleName)

	res := flows.RunAssignRole(ctx, accountID, roleName, e.credentials)
	if res.Failure != flows.FailureNone {
		err := failureError(res.Failure, res.Err, nil)
		e.metricInc(MetricRoleAssignRejected)
		e.emitAudit(ctx, auditEventRoleAssignFailure, false, res.AccountID, "", err, func() map[string]string {
			return map[string]string{"role": res.Role}
		})
		e.logger.WarnContext(ctx, "rbac.assign_role.fail",
			"actor", actor,
			"account_id", res.AccountID,
			"role", res.Role,
			"reason", res.Failure.String(),
		)
		return err
	}

	e.metricInc(MetricRoleAssigned)
	e.emitAudit(ctx, auditEventRoleAssigned, true, res.AccountID, "", nil, func() map[string]string {
		return map[string]string{"role": res.Role}
	})
	e.logger.InfoContext(ctx, "rbac.assign_role.ok", "actor", actor, "account_id", res.AccountID, "role", res.Role)
	return nil
}

// AssignPermissionsToRole adds every named permission to roleName, or none
// of them. An unknown name yields *PermissionNotFoundError; names the role
// already holds yield *DuplicatePermissionError.
func (e *Engine) AssignPermissionsToRole(ctx context.Context, roleName string, permissionNames []string) (Assignment, error) {
	if !e.ready() {
		return Assignment{}, ErrEngineNotReady
	}
	actor := actorFromContext(ctx)
	e.logger.InfoContext(ctx, "rbac.assign_permissions.attempt", "actor", actor, "role", roleName, "count", len(permissionNames))

	res := flows.RunAssignPermissions(ctx, roleName, permissionNames, e.credentials)
	if res.Failure != flows.FailureNone {
		var err error
		switch res.Failure {
		case flows.FailurePermissionNotFound:
			err = &PermissionNotFoundError{Name: res.Missing}
		case flows.FailureDuplicatePermission:
			err = &DuplicatePermissionError{Names: res.Duplicates}
		default:
			err = failureError(res.Failure, res.Err, nil)
		}
		e.metricInc(MetricPermissionAssignRejected)
		e.emitAudit(ctx, auditEventPermissionAssignFail, false, "", "", err, func() map[string]string {
			return map[string]string{
				"role":        res.Role,
				"permissions": strings.Join(permissionNames, ","),
			}
		})
		e.logger.WarnContext(ctx, "rbac.assign_permissions.fail",
			"actor", actor,
			"role", res.Role,
			"reason", res.Failure.String(),
			"missing", res.Missing,
			"duplicates", res.Duplicates,
		)
		return Assignment{}, err
	}

	e.metricInc(MetricPermissionsAssigned)
	e.emitAudit(ctx, auditEventPermissionsAssigned, true, "", "", nil, func() map[string]string {
		return map[string]string{
			"role":        res.Role,
			"permissions": strings.Join(res.Added, ","),
		}
	})
	e.logger.InfoContext(ctx, "rbac.assign_permissions.ok", "actor", actor, "role", res.Role, "added", len(res.Added))

	return Assignment{
		Role:        res.Role,
		Added:       res.Added,
		Permissions: res.Permissions,
	}, nil
}
