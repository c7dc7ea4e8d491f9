package flows

import (
	"context"
	"errors"
	"strings"

	"github.com/MrEthical07/authcore/internal"
	"github.com/MrEthical07/authcore/store"
)

// LogoutResult reports the revoked row's owner when one was found.
type LogoutResult struct {
	Failure   FailureKind
	Err       error
	AccountID string
	TokenID   string
}

// RunLogout revokes the row behind rawRefresh. Revoking an already revoked row
// succeeds.
func RunLogout(ctx context.Context, rawRefresh string, deps SessionDeps) LogoutResult {
	if strings.TrimSpace(rawRefresh) == "" {
		return LogoutResult{Failure: FailureMissingToken, Err: errors.New("refresh token is blank")}
	}
	presented, ok := internal.CleanRefreshToken(rawRefresh)
	if !ok {
		return LogoutResult{Failure: FailureTokenNotFound, Err: errors.New("refresh token is oversized")}
	}

	row, err := deps.Ledger.RevokeRefreshToken(ctx, deps.HashRefreshToken(presented), deps.now())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return LogoutResult{Failure: FailureTokenNotFound, Err: err}
		}
		return LogoutResult{Failure: FailureBackend, Err: err}
	}
	return LogoutResult{AccountID: row.AccountID, TokenID: row.ID}
}

// LogoutAllResult reports how many rows the sweep newly revoked.
type LogoutAllResult struct {
	Failure   FailureKind
	Err       error
	AccountID string
	Revoked   int
}

// RunLogoutAll revokes every refresh token of the account behind email.
// Tokens created while the sweep runs may survive it.
func RunLogoutAll(ctx context.Context, email string, deps SessionDeps) LogoutAllResult {
	email = store.NormalizeEmail(email)
	if email == "" {
		return LogoutAllResult{Failure: FailureUserNotFound, Err: store.ErrNotFound}
	}
	account, err := deps.Credentials.AccountByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return LogoutAllResult{Failure: FailureUserNotFound, Err: err}
		}
		return LogoutAllResult{Failure: FailureBackend, Err: err}
	}
	return revokeAll(ctx, account.ID, deps)
}

// RunLogoutAllByID is RunLogoutAll for callers that already hold the id.
func RunLogoutAllByID(ctx context.Context, accountID string, deps SessionDeps) LogoutAllResult {
	if _, err := deps.Credentials.AccountByID(ctx, accountID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return LogoutAllResult{Failure: FailureUserNotFound, Err: err}
		}
		return LogoutAllResult{Failure: FailureBackend, Err: err}
	}
	return revokeAll(ctx, accountID, deps)
}

func revokeAll(ctx context.Context, accountID string, deps SessionDeps) LogoutAllResult {
	n, err := deps.Ledger.RevokeAllRefreshTokens(ctx, accountID, deps.now())
	if err != nil {
		return LogoutAllResult{Failure: FailureBackend, Err: err, AccountID: accountID}
	}
	return LogoutAllResult{AccountID: accountID, Revoked: n}
}
