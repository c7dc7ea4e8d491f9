package authcore

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/authcore/store"
)

const (
	auditEventLoginSuccess          = "login_success"
	auditEventLoginFailure          = "login_failure"
	auditEventLoginRateLimited      = "login_rate_limited"
	auditEventRefreshSuccess        = "refresh_success"
	auditEventRefreshInvalid        = "refresh_invalid"
	auditEventRefreshRateLimited    = "refresh_rate_limited"
	auditEventRefreshReuseDetected  = "refresh_reuse_detected"
	auditEventLogoutSession         = "logout_session"
	auditEventLogoutAll             = "logout_all"
	auditEventAccountCreated        = "account_creation_success"
	auditEventAccountCreationFailed = "account_creation_failure"
	auditEventPasswordChangeSuccess = "password_change_success"
	auditEventPasswordChangeFailure = "password_change_failure"
	auditEventRoleAssigned          = "role_assigned"
	auditEventRoleAssignFailure     = "role_assign_failure"
	auditEventPermissionsAssigned   = "permissions_assigned"
	auditEventPermissionAssignFail  = "permission_assign_failure"
)

// AuditErrorCode is the stable error vocabulary written to AuditEvent.Error.
type AuditErrorCode string

const (
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrRateLimited        AuditErrorCode = "rate_limited"
	auditErrInvalidToken       AuditErrorCode = "invalid_token"
	auditErrMissingToken       AuditErrorCode = "missing_token"
	auditErrUserNotFound       AuditErrorCode = "user_not_found"
	auditErrRoleNotFound       AuditErrorCode = "role_not_found"
	auditErrPermissionNotFound AuditErrorCode = "permission_not_found"
	auditErrDuplicate          AuditErrorCode = "duplicate"
	auditErrInvalidRequest     AuditErrorCode = "invalid_request"
	auditErrUnavailable        AuditErrorCode = "backend_unavailable"
	auditErrInternal           AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	accountID string,
	tokenID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}
	if reason := TokenReasonOf(err); reason != "" {
		if metadata == nil {
			metadata = make(map[string]string, 1)
		}
		metadata["reason"] = string(reason)
	}
	if wait := RetryAfterOf(err); wait > 0 {
		if metadata == nil {
			metadata = make(map[string]string, 1)
		}
		metadata["retry_after"] = wait.Round(time.Second).String()
	}

	event := AuditEvent{
		EventType: eventType,
		AccountID: accountID,
		Actor:     actorFromContext(ctx),
		TokenID:   tokenID,
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrLoginRateLimited),
		errors.Is(err, ErrRefreshRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrInvalidToken):
		return auditErrInvalidToken
	case errors.Is(err, ErrMissingToken):
		return auditErrMissingToken
	case errors.Is(err, ErrUserNotFound):
		return auditErrUserNotFound
	case errors.Is(err, ErrRoleNotFound):
		return auditErrRoleNotFound
	case errors.Is(err, ErrPermissionNotFound):
		return auditErrPermissionNotFound
	case errors.Is(err, ErrDuplicateRole),
		errors.Is(err, ErrDuplicatePermission),
		errors.Is(err, ErrAccountExists):
		return auditErrDuplicate
	case errors.Is(err, ErrInvalidRequest):
		return auditErrInvalidRequest
	case errors.Is(err, store.ErrUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
