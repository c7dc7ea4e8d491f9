package flows

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MrEthical07/authcore/store"
)

// RegisterInput is the flow-local registration request.
type RegisterInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
}

// RegisterDeps captures registration dependencies.
type RegisterDeps struct {
	Credentials store.CredentialStore
	Hasher      PasswordHasher
	DefaultRole string
	Now         func() time.Time
}

// RegisterResult carries the created account or failure metadata.
type RegisterResult struct {
	Failure FailureKind
	Err     error
	Account store.Account
}

// RunRegister creates an account holding the default role.
func RunRegister(ctx context.Context, in RegisterInput, deps RegisterDeps) RegisterResult {
	email := store.NormalizeEmail(in.Email)
	first := strings.TrimSpace(in.FirstName)
	last := strings.TrimSpace(in.LastName)
	if err := validateRegistration(email, in.Password, first, last); err != nil {
		return RegisterResult{Failure: FailureInvalidRequest, Err: err}
	}

	if _, err := deps.Credentials.AccountByEmail(ctx, email); err == nil {
		return RegisterResult{Failure: FailureAccountExists, Err: store.ErrConflict}
	} else if !errors.Is(err, store.ErrNotFound) {
		return RegisterResult{Failure: FailureBackend, Err: err}
	}

	role, err := deps.Credentials.RoleByName(ctx, deps.DefaultRole)
	if err != nil {
		return RegisterResult{Failure: lookupFailure(err, FailureRoleNotFound), Err: err}
	}

	hash, err := deps.Hasher.Hash(in.Password)
	if err != nil {
		return RegisterResult{Failure: FailureInvalidRequest, Err: err}
	}

	now := time.Now()
	if deps.Now != nil {
		now = deps.Now()
	}
	account := store.Account{
		ID:           uuid.NewString(),
		Email:        email,
		FirstName:    first,
		LastName:     last,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := deps.Credentials.CreateAccount(ctx, account, []string{role.ID}); err != nil {
		switch {
		case errors.Is(err, store.ErrConflict):
			return RegisterResult{Failure: FailureAccountExists, Err: err}
		case errors.Is(err, store.ErrNotFound):
			return RegisterResult{Failure: FailureRoleNotFound, Err: err}
		default:
			return RegisterResult{Failure: FailureBackend, Err: err}
		}
	}
	account.PasswordHash = ""
	return RegisterResult{Account: account}
}

func validateRegistration(email, password, first, last string) error {
	switch {
	case email == "":
		return errors.New("email must not be empty")
	case first == "":
		return errors.New("firstname must not be empty")
	case last == "":
		return errors.New("lastname must not be empty")
	case strings.TrimSpace(password) == "":
		return errors.New("password must not be empty")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return errors.New("email should be valid")
	}
	return nil
}

// ChangePasswordDeps captures password-change dependencies.
type ChangePasswordDeps struct {
	SessionDeps
	Hasher         PasswordHasher
	RevokeSessions bool
}

// ChangePasswordResult reports how many sessions were revoked.
type ChangePasswordResult struct {
	Failure   FailureKind
	Err       error
	AccountID string
	Email     string
	Revoked   int
}

// RunChangePassword replaces the account's digest after verifying
// oldPassword.
func RunChangePassword(ctx context.Context, accountID, oldPassword, newPassword string, deps ChangePasswordDeps) ChangePasswordResult {
	res := ChangePasswordResult{AccountID: accountID}
	if strings.TrimSpace(oldPassword) == "" || strings.TrimSpace(newPassword) == "" {
		res.Failure, res.Err = FailureInvalidRequest, errors.New("old and new password are required")
		return res
	}
	if oldPassword == newPassword {
		res.Failure, res.Err = FailureInvalidRequest, errors.New("new password must differ from the old one")
		return res
	}

	account, err := deps.Credentials.AccountByID(ctx, accountID)
	if err != nil {
		res.Failure, res.Err = lookupFailure(err, FailureUserNotFound), err
		return res
	}
	res.Email = account.Email

	ok, err := deps.Hasher.Verify(oldPassword, account.PasswordHash)
	if err != nil || !ok {
		res.Failure, res.Err = FailureInvalidCredentials, err
		return res
	}

	hash, err := deps.Hasher.Hash(newPassword)
	if err != nil {
		res.Failure, res.Err = FailureInvalidRequest, err
		return res
	}
	now := deps.now()
	if err := deps.Credentials.UpdatePasswordHash(ctx, account.ID, hash, now); err != nil {
		res.Failure, res.Err = lookupFailure(err, FailureUserNotFound), err
		return res
	}

	if deps.RevokeSessions {
		n, err := deps.Ledger.RevokeAllRefreshTokens(ctx, account.ID, now)
		if err != nil {
			// The new password is already stored; report the sweep failure
			// without undoing it.
			deps.warn("account.password.revoke_failed", "account_id", account.ID, "error", err)
		}
		res.Revoked = n
	}
	return res
}
