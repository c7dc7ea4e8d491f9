package flows

import (
	"context"
	"errors"
	"strings"

	"github.com/MrEthical07/authcore/store"
)

// LoginDeps captures login flow dependencies. Limiter is optional.
type LoginDeps struct {
	SessionDeps
	Hasher        PasswordHasher
	Limiter       LoginLimiter
	RehashOnLogin bool
}

// LoginResult carries either the issued pair or failure metadata.
type LoginResult struct {
	Failure   FailureKind
	Err       error
	Email     string
	AccountID string
	Issued    *Issued
	Rehashed  bool
}

// RunLogin authenticates email/password and opens a new session.
//
// Limiter errors fail closed. The unknown-account path runs a dummy
// verification so that it costs as much as a wrong password.
func RunLogin(ctx context.Context, email, password, ip string, deps LoginDeps) LoginResult {
	email = store.NormalizeEmail(email)
	if email == "" || strings.TrimSpace(password) == "" {
		return LoginResult{Failure: FailureInvalidRequest, Err: errors.New("email and password are required"), Email: email}
	}

	if deps.Limiter != nil {
		if err := deps.Limiter.CheckLogin(ctx, email, ip); err != nil {
			return LoginResult{Failure: FailureRateLimited, Err: err, Email: email}
		}
	}

	account, err := deps.Credentials.AccountByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			deps.Hasher.VerifyDummy(password)
			recordLoginFailure(ctx, email, ip, deps)
			return LoginResult{Failure: FailureUserNotFound, Err: err, Email: email}
		}
		return LoginResult{Failure: FailureBackend, Err: err, Email: email}
	}

	ok, err := deps.Hasher.Verify(password, account.PasswordHash)
	if err != nil || !ok {
		if err != nil {
			deps.warn("auth.login.verify_error", "account_id", account.ID, "error", err)
		}
		recordLoginFailure(ctx, email, ip, deps)
		return LoginResult{Failure: FailureInvalidCredentials, Err: err, Email: email, AccountID: account.ID}
	}

	grants, err := deps.Credentials.Grants(ctx, account.ID)
	if err != nil {
		return LoginResult{Failure: FailureBackend, Err: err, Email: email, AccountID: account.ID}
	}

	now := deps.now()
	raw, row, err := deps.newRefreshRow(now)
	if err != nil {
		return LoginResult{Failure: FailureBackend, Err: err, Email: email, AccountID: account.ID}
	}
	row.AccountID = account.ID
	if err := deps.Ledger.InsertRefreshToken(ctx, row); err != nil {
		return LoginResult{Failure: FailureBackend, Err: err, Email: email, AccountID: account.ID}
	}

	access, claims, err := deps.issueAccess(account, grants, now)
	if err != nil {
		// The row is orphaned without a client holding its secret; revoke it.
		if _, revokeErr := deps.Ledger.RevokeRefreshToken(ctx, row.TokenHash, now); revokeErr != nil {
			deps.warn("auth.login.orphan_revoke_failed", "account_id", account.ID, "error", revokeErr)
		}
		return LoginResult{Failure: FailureBackend, Err: err, Email: email, AccountID: account.ID}
	}

	if deps.Limiter != nil {
		if err := deps.Limiter.ResetLogin(ctx, email, ip); err != nil {
			deps.warn("auth.login.limiter_reset_failed", "account_id", account.ID, "error", err)
		}
	}

	rehashed := false
	if deps.RehashOnLogin {
		rehashed = rehash(ctx, account, password, deps)
	}

	return LoginResult{
		Failure:   FailureNone,
		Email:     email,
		AccountID: account.ID,
		Issued: &Issued{
			AccessToken:  access,
			Claims:       claims,
			RefreshToken: raw,
			Refresh:      row,
			Grants:       grants,
		},
		Rehashed: rehashed,
	}
}

func recordLoginFailure(ctx context.Context, email, ip string, deps LoginDeps) {
	if deps.Limiter == nil {
		return
	}
	if err := deps.Limiter.IncrementLogin(ctx, email, ip); err != nil {
		deps.warn("auth.login.limiter_increment", "error", err)
	}
}

// rehash upgrades a digest produced with weaker parameters. Failures are
// logged and never fail the login.
func rehash(ctx context.Context, account store.Account, password string, deps LoginDeps) bool {
	needs, err := deps.Hasher.NeedsRehash(account.PasswordHash)
	if err != nil || !needs {
		return false
	}
	hash, err := deps.Hasher.Hash(password)
	if err != nil {
		deps.warn("auth.login.rehash_failed", "account_id", account.ID, "error", err)
		return false
	}
	if err := deps.Credentials.UpdatePasswordHash(ctx, account.ID, hash, deps.now()); err != nil {
		deps.warn("auth.login.rehash_failed", "account_id", account.ID, "error", err)
		return false
	}
	return true
}
