package authcore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/MrEthical07/authcore/internal"
	internalaudit "github.com/MrEthical07/authcore/internal/audit"
	"github.com/MrEthical07/authcore/internal/flows"
	"github.com/MrEthical07/authcore/internal/ids"
	"github.com/MrEthical07/authcore/internal/rate"
	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/password"
	"github.com/MrEthical07/authcore/store"
)

// Engine issues and revokes credentials. It is safe for concurrent use; all
// mutable state lives in the stores.
type Engine struct {
	config       Config
	credentials  store.CredentialStore
	ledger       store.RefreshLedger
	rateLimiter  *rate.Limiter
	audit        *internalaudit.Dispatcher
	metrics      *Metrics
	passwordHash *password.Argon2
	jwtManager   *jwt.Manager
	logger       *slog.Logger
	now          func() time.Time
}

// Close flushes and stops the audit dispatcher.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports audit events discarded because the buffer was full
// or the emitting request ended first.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot copies the engine counters for exporters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil {
		return emptySnapshot()
	}
	return e.metrics.Snapshot()
}

// Config returns a copy of the engine configuration.
func (e *Engine) Config() Config {
	return cloneConfig(e.config)
}

// PasswordHasher exposes the engine's Argon2 hasher, for seeding.
func (e *Engine) PasswordHasher() *password.Argon2 {
	return e.passwordHash
}

func (e *Engine) metricInc(id MetricID) {
	if e.metrics != nil {
		e.metrics.Inc(id)
	}
}

func (e *Engine) countLimiterOutage(err error) {
	if errors.Is(err, rate.ErrRedisUnavailable) {
		e.metricInc(MetricThrottleUnavailable)
	}
}

func (e *Engine) ready() bool {
	return e != nil && e.credentials != nil && e.ledger != nil && e.jwtManager != nil && e.passwordHash != nil
}

func (e *Engine) sessionDeps() flows.SessionDeps {
	return flows.SessionDeps{
		Ledger:           e.ledger,
		Credentials:      e.credentials,
		Issuer:           e.jwtManager,
		NewRefreshToken:  internal.NewRefreshToken,
		HashRefreshToken: internal.HashRefreshToken,
		NewID:            ids.NewAt,
		RefreshTTL:       e.config.Refresh.TTL,
		Now:              e.now,
		Warn: func(msg string, args ...any) {
			e.logger.Warn(msg, args...)
		},
	}
}

// Login authenticates email and password and opens a session.
func (e *Engine) Login(ctx context.Context, email, password string) (*TokenPair, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}

	deps := flows.LoginDeps{
		SessionDeps:   e.sessionDeps(),
		Hasher:        e.passwordHash,
		RehashOnLogin: e.config.Password.RehashOnLogin,
	}
	if e.rateLimiter != nil {
		deps.Limiter = e.rateLimiter
	}

	res := flows.RunLogin(ctx, email, password, clientIPFromContext(ctx), deps)
	if res.Failure != flows.FailureNone {
		err := e.loginError(res)
		switch res.Failure {
		case flows.FailureRateLimited:
			e.metricInc(MetricLoginRateLimited)
			e.countLimiterOutage(res.Err)
			e.emitAudit(ctx, auditEventLoginRateLimited, false, res.AccountID, "", err, func() map[string]string {
				return map[string]string{"email": res.Email}
			})
		default:
			e.metricInc(MetricLoginFailure)
			e.emitAudit(ctx, auditEventLoginFailure, false, res.AccountID, "", err, func() map[string]string {
				return map[string]string{"email": res.Email}
			})
		}
		e.logger.InfoContext(ctx, "auth.login.fail",
			"email", res.Email,
			"reason", res.Failure.String(),
			"ip", clientIPFromContext(ctx),
		)
		return nil, err
	}

	e.metricInc(MetricLoginSuccess)
	e.metricInc(MetricSessionCreated)
	if res.Rehashed {
		e.metricInc(MetricPasswordRehashed)
	}
	e.emitAudit(ctx, auditEventLoginSuccess, true, res.AccountID, res.Issued.Refresh.ID, nil, nil)
	e.logger.InfoContext(ctx, "auth.login.ok", "account_id", res.AccountID, "token_id", res.Issued.Refresh.ID)

	return tokenPair(res.Issued), nil
}

func (e *Engine) loginError(res flows.LoginResult) error {
	if res.Failure == flows.FailureUserNotFound && e.config.Account.ConcealUnknownAccounts {
		return ErrInvalidCredentials
	}
	return failureError(res.Failure, res.Err, ErrLoginRateLimited)
}

// Rotate exchanges a refresh secret for a successor pair. The presented row
// is revoked in the same atomic step that records its successor; at most one
// of any number of concurrent calls with the same secret succeeds.
func (e *Engine) Rotate(ctx context.Context, rawRefresh string) (*TokenPair, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}

	deps := flows.RotateDeps{SessionDeps: e.sessionDeps()}
	if e.rateLimiter != nil {
		deps.Limiter = e.rateLimiter
	}

	res := flows.RunRotate(ctx, rawRefresh, clientIPFromContext(ctx), deps)
	if res.Failure != flows.FailureNone {
		err := failureError(res.Failure, res.Err, ErrRefreshRateLimited)
		switch {
		case res.Failure == flows.FailureRateLimited:
			e.metricInc(MetricRefreshRateLimited)
			e.countLimiterOutage(res.Err)
			e.emitAudit(ctx, auditEventRefreshRateLimited, false, "", "", err, nil)
		case res.Reuse:
			e.metricInc(MetricRefreshReuseDetected)
			e.metricInc(MetricRefreshFailure)
			e.emitAudit(ctx, auditEventRefreshReuseDetected, false, res.AccountID, res.TokenID, err, nil)
			e.logger.WarnContext(ctx, "auth.refresh.reuse",
				"account_id", res.AccountID,
				"token_id", res.TokenID,
				"ip", clientIPFromContext(ctx),
			)
		default:
			e.metricInc(MetricRefreshFailure)
			e.emitAudit(ctx, auditEventRefreshInvalid, false, res.AccountID, res.TokenID, err, nil)
		}
		e.logger.InfoContext(ctx, "auth.refresh.fail", "reason", res.Failure.String(), "account_id", res.AccountID)
		return nil, err
	}

	e.metricInc(MetricRefreshSuccess)
	e.metricInc(MetricSessionInvalidated)
	e.metricInc(MetricSessionCreated)
	e.emitAudit(ctx, auditEventRefreshSuccess, true, res.AccountID, res.Issued.Refresh.ID, nil, func() map[string]string {
		return map[string]string{"prior_token_id": res.TokenID}
	})

	return tokenPair(res.Issued), nil
}

// Logout revokes the session behind rawRefresh. Logging out an already
// revoked session succeeds without changing its revocation time.
func (e *Engine) Logout(ctx context.Context, rawRefresh string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}

	res := flows.RunLogout(ctx, rawRefresh, e.sessionDeps())
	if res.Failure != flows.FailureNone {
		err := failureError(res.Failure, res.Err, nil)
		e.emitAudit(ctx, auditEventLogoutSession, false, "", "", err, nil)
		return err
	}

	e.metricInc(MetricLogout)
	e.metricInc(MetricSessionInvalidated)
	e.emitAudit(ctx, auditEventLogoutSession, true, res.AccountID, res.TokenID, nil, nil)
	return nil
}

// LogoutAll revokes every refresh token of the account behind email and
// returns how many were newly revoked. Access tokens already issued stay
// valid until they expire.
func (e *Engine) LogoutAll(ctx context.Context, email string) (int, error) {
	if !e.ready() {
		return 0, ErrEngineNotReady
	}
	return e.finishLogoutAll(ctx, flows.RunLogoutAll(ctx, email, e.sessionDeps()))
}

// LogoutAllByID is LogoutAll keyed by account id.
func (e *Engine) LogoutAllByID(ctx context.Context, accountID string) (int, error) {
	if !e.ready() {
		return 0, ErrEngineNotReady
	}
	return e.finishLogoutAll(ctx, flows.RunLogoutAllByID(ctx, accountID, e.sessionDeps()))
}

func (e *Engine) finishLogoutAll(ctx context.Context, res flows.LogoutAllResult) (int, error) {
	if res.Failure != flows.FailureNone {
		err := failureError(res.Failure, res.Err, nil)
		e.emitAudit(ctx, auditEventLogoutAll, false, res.AccountID, "", err, nil)
		return 0, err
	}

	e.metricInc(MetricLogoutAll)
	e.emitAudit(ctx, auditEventLogoutAll, true, res.AccountID, "", nil, func() map[string]string {
		return map[string]string{"revoked": fmt.Sprint(res.Revoked)}
	})
	e.logger.InfoContext(ctx, "auth.logout_all", "account_id", res.AccountID, "revoked", res.Revoked)
	return res.Revoked, nil
}

// VerifyAccessToken validates token without touching storage and returns the
// identity its claims describe.
func (e *Engine) VerifyAccessToken(ctx context.Context, token string) (*Identity, error) {
	if e == nil || e.jwtManager == nil {
		return nil, ErrEngineNotReady
	}
	if e.metrics.LatencyEnabled() {
		start := time.Now()
		defer func() {
			e.metrics.Observe(MetricValidateLatency, time.Since(start))
		}()
	}

	claims, err := e.jwtManager.ParseAccess(token)
	if err != nil {
		e.metricInc(MetricAccessTokenRejected)
		if jwt.IsExpired(err) {
			return nil, &InvalidTokenError{Reason: ReasonExpired}
		}
		return nil, &InvalidTokenError{Reason: ReasonMalformed}
	}
	return identityFromClaims(claims), nil
}

// Sessions lists the account's ledger rows, newest first.
func (e *Engine) Sessions(ctx context.Context, accountID string) ([]SessionInfo, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	rows, err := e.ledger.RefreshTokensForAccount(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("authcore: list sessions: %w", err)
	}

	now := e.now()
	out := make([]SessionInfo, 0, len(rows))
	for _, r := range rows {
		out = append(out, SessionInfo{
			ID:        r.ID,
			CreatedAt: r.CreatedAt,
			ExpiresAt: r.ExpiresAt,
			RevokedAt: r.RevokedAt,
			State:     r.State(now),
		})
	}
	slices.SortFunc(out, func(a, b SessionInfo) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return out, nil
}

func identityFromClaims(c *jwt.AccessClaims) *Identity {
	id := &Identity{
		AccountID:   c.Subject,
		Email:       c.Email,
		Roles:       c.Roles,
		Permissions: c.Permissions,
		TokenID:     c.ID,
	}
	if c.IssuedAt != nil {
		id.IssuedAt = c.IssuedAt.Time
	}
	if c.ExpiresAt != nil {
		id.ExpiresAt = c.ExpiresAt.Time
	}
	return id
}

func tokenPair(issued *flows.Issued) *TokenPair {
	identity := identityFromClaims(issued.Claims)
	return &TokenPair{
		AccessToken:      issued.AccessToken,
		AccessExpiresAt:  identity.ExpiresAt,
		RefreshToken:     issued.RefreshToken,
		RefreshExpiresAt: issued.Refresh.ExpiresAt,
		Identity:         identity,
	}
}

// failureError maps a flow failure onto the public error vocabulary.
// rateLimited is the sentinel for FailureRateLimited in the calling
// operation.
func failureError(kind flows.FailureKind, cause error, rateLimited error) error {
	switch kind {
	case flows.FailureNone:
		return nil
	case flows.FailureRateLimited:
		if rateLimited != nil {
			return &RateLimitError{Err: rateLimited, RetryAfter: rate.RetryAfter(cause)}
		}
	case flows.FailureUserNotFound:
		return ErrUserNotFound
	case flows.FailureInvalidCredentials:
		return ErrInvalidCredentials
	case flows.FailureMissingToken:
		return ErrMissingToken
	case flows.FailureTokenNotFound:
		return &InvalidTokenError{Reason: ReasonNotFound}
	case flows.FailureTokenRevoked:
		return &InvalidTokenError{Reason: ReasonRevoked}
	case flows.FailureTokenExpired:
		return &InvalidTokenError{Reason: ReasonExpired}
	case flows.FailureRoleNotFound:
		return ErrRoleNotFound
	case flows.FailurePermissionNotFound:
		return ErrPermissionNotFound
	case flows.FailureDuplicateRole:
		return ErrDuplicateRole
	case flows.FailureDuplicatePermission:
		return ErrDuplicatePermission
	case flows.FailureAccountExists:
		return ErrAccountExists
	case flows.FailureInvalidRequest:
		if cause != nil {
			return fmt.Errorf("%w: %v", ErrInvalidRequest, cause)
		}
		return ErrInvalidRequest
	}
	if cause == nil {
		cause = errors.New(kind.String())
	}
	return fmt.Errorf("authcore: %w", cause)
}
