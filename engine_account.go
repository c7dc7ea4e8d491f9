package authcore

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/authcore/internal/flows"
	"github.com/MrEthical07/authcore/store"
)

// Register creates an account holding the configured default role. The
// returned account carries no password hash.
func (e *Engine) Register(ctx context.Context, req RegisterRequest) (store.Account, error) {
	if !e.ready() {
		return store.Account{}, ErrEngineNotReady
	}

	res := flows.RunRegister(ctx, flows.RegisterInput{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	}, flows.RegisterDeps{
		Credentials: e.credentials,
		Hasher:      e.passwordHash,
		DefaultRole: e.config.Account.DefaultRole,
		Now:         e.now,
	})
	if res.Failure != flows.FailureNone {
		err := failureError(res.Failure, res.Err, nil)
		if res.Failure == flows.FailureAccountExists {
			e.metricInc(MetricAccountCreationDuplicate)
		}
		if res.Failure == flows.FailureRoleNotFound {
			e.logger.ErrorContext(ctx, "account.register.default_role_missing", "role", e.config.Account.DefaultRole)
		}
		e.emitAudit(ctx, auditEventAccountCreationFailed, false, "", "", err, nil)
		return store.Account{}, err
	}

	e.metricInc(MetricAccountCreationSuccess)
	e.emitAudit(ctx, auditEventAccountCreated, true, res.Account.ID, "", nil, nil)
	e.logger.InfoContext(ctx, "account.register.ok", "account_id", res.Account.ID)
	return res.Account, nil
}

// ChangePassword replaces the password after checking oldPassword. With
// Account.RevokeSessionsOnPasswordChange set, every refresh token of the
// account is revoked.
func (e *Engine) ChangePassword(ctx context.Context, accountID, oldPassword, newPassword string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}

	res := flows.RunChangePassword(ctx, accountID, oldPassword, newPassword, flows.ChangePasswordDeps{
		SessionDeps:    e.sessionDeps(),
		Hasher:         e.passwordHash,
		RevokeSessions: e.config.Account.RevokeSessionsOnPasswordChange,
	})
	if res.Failure != flows.FailureNone {
		err := failureError(res.Failure, res.Err, nil)
		if res.Failure == flows.FailureInvalidCredentials {
			e.metricInc(MetricPasswordChangeInvalidOld)
		}
		e.emitAudit(ctx, auditEventPasswordChangeFailure, false, res.AccountID, "", err, nil)
		return err
	}

	if e.rateLimiter != nil && res.Email != "" {
		if err := e.rateLimiter.ResetLogin(ctx, res.Email, clientIPFromContext(ctx)); err != nil {
			e.logger.WarnContext(ctx, "account.password.limiter_reset_failed", "account_id", res.AccountID, "error", err)
		}
	}

	e.metricInc(MetricPasswordChangeSuccess)
	e.emitAudit(ctx, auditEventPasswordChangeSuccess, true, res.AccountID, "", nil, func() map[string]string {
		return map[string]string{"sessions_revoked": fmt.Sprint(res.Revoked)}
	})
	e.logger.InfoContext(ctx, "account.password.changed", "account_id", res.AccountID, "sessions_revoked", res.Revoked)
	return nil
}

// Account returns the profile, current grants and active session count. The
// grants come from storage and may be newer than the caller's token claims.
func (e *Engine) Account(ctx context.Context, accountID string) (AccountView, error) {
	if !e.ready() {
		return AccountView{}, ErrEngineNotReady
	}

	acc, err := e.credentials.AccountByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return AccountView{}, ErrUserNotFound
		}
		return AccountView{}, fmt.Errorf("authcore: load account: %w", err)
	}
	grants, err := e.credentials.Grants(ctx, acc.ID)
	if err != nil {
		return AccountView{}, fmt.Errorf("authcore: load grants: %w", err)
	}
	sessions, err := e.Sessions(ctx, acc.ID)
	if err != nil {
		return AccountView{}, err
	}

	active := 0
	for _, s := range sessions {
		if s.State == store.TokenActive {
			active++
		}
	}
	return AccountView{
		ID:             acc.ID,
		Email:          acc.Email,
		FirstName:      acc.FirstName,
		LastName:       acc.LastName,
		CreatedAt:      acc.CreatedAt,
		Roles:          grants.Roles,
		Permissions:    grants.Permissions,
		ActiveSessions: active,
	}, nil
}
