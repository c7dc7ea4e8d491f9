package flows

import (
	"context"
	"errors"
	"strings"

	"github.com/MrEthical07/authcore/internal"
	"github.com/MrEthical07/authcore/store"
)

// RotateDeps captures rotation flow dependencies. Limiter is optional.
type RotateDeps struct {
	SessionDeps
	Limiter RefreshLimiter
}

// RotateResult carries either the successor pair or failure metadata.
// Reuse is set when a revoked secret was presented; AccountID then names
// the owner of the replayed row.
type RotateResult struct {
	Failure   FailureKind
	Err       error
	AccountID string
	TokenID   string
	Reuse     bool
	Issued    *Issued
}

// RunRotate exchanges a refresh secret for a successor pair. The presented row
// is revoked before the new access token is minted; a failure after the
// ledger commit leaves the client without a usable session and it must log in
// again.
func RunRotate(ctx context.Context, rawRefresh, ip string, deps RotateDeps) RotateResult {
	if strings.TrimSpace(rawRefresh) == "" {
		return RotateResult{Failure: FailureMissingToken, Err: errors.New("refresh token is blank")}
	}
	presented, ok := internal.CleanRefreshToken(rawRefresh)
	if !ok {
		return RotateResult{Failure: FailureTokenNotFound, Err: errors.New("refresh token is oversized")}
	}
	hash := deps.HashRefreshToken(presented)

	if deps.Limiter != nil {
		subject := ip
		if subject == "" {
			subject = hash[:16]
		}
		if err := deps.Limiter.CheckRefresh(ctx, subject); err != nil {
			return RotateResult{Failure: FailureRateLimited, Err: err}
		}
	}

	now := deps.now()
	raw, next, err := deps.newRefreshRow(now)
	if err != nil {
		return RotateResult{Failure: FailureBackend, Err: err}
	}

	prior, err := deps.Ledger.RotateRefreshToken(ctx, hash, next, now)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			return RotateResult{Failure: FailureTokenNotFound, Err: err}
		case errors.Is(err, store.ErrTokenRevoked):
			return RotateResult{Failure: FailureTokenRevoked, Err: err, AccountID: prior.AccountID, TokenID: prior.ID, Reuse: true}
		case errors.Is(err, store.ErrTokenExpired):
			return RotateResult{Failure: FailureTokenExpired, Err: err, AccountID: prior.AccountID, TokenID: prior.ID}
		default:
			return RotateResult{Failure: FailureBackend, Err: err}
		}
	}
	next.AccountID = prior.AccountID

	fail := func(kind FailureKind, err error) RotateResult {
		if _, revokeErr := deps.Ledger.RevokeRefreshToken(ctx, next.TokenHash, now); revokeErr != nil {
			deps.warn("auth.refresh.successor_revoke_failed", "account_id", prior.AccountID, "error", revokeErr)
		}
		return RotateResult{Failure: kind, Err: err, AccountID: prior.AccountID, TokenID: prior.ID}
	}

	account, err := deps.Credentials.AccountByID(ctx, prior.AccountID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fail(FailureTokenNotFound, err)
		}
		return fail(FailureBackend, err)
	}
	grants, err := deps.Credentials.Grants(ctx, account.ID)
	if err != nil {
		return fail(FailureBackend, err)
	}
	access, claims, err := deps.issueAccess(account, grants, now)
	if err != nil {
		return fail(FailureBackend, err)
	}

	return RotateResult{
		Failure:   FailureNone,
		AccountID: account.ID,
		TokenID:   prior.ID,
		Issued: &Issued{
			AccessToken:  access,
			Claims:       claims,
			RefreshToken: raw,
			Refresh:      next,
			Grants:       grants,
		},
	}
}
