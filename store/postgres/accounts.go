package postgres

import (
	"context"
	"time"

	"github.com/MrEthical07/authcore/store"
	"github.com/google/uuid"
)

const accountColumns = `id, email, first_name, last_name, password_hash, created_at, updated_at`

// CreateAccount inserts the account row and its initial role edges in one
// transaction.
func (s *Store) CreateAccount(ctx context.Context, account store.Account, roleIDs []string) error {
	const op = "postgres.CreateAccount"

	if account.ID == "" {
		account.ID = uuid.NewString()
	}
	now := account.CreatedAt
	if now.IsZero() {
		now = time.Now().UTC()
	}
	updated := account.UpdatedAt
	if updated.IsZero() {
		updated = now
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return mapErr(op, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		insert into `+s.accounts+` (`+accountColumns+`)
		values ($1, $2, $3, $4, $5, $6, $7)
	`, account.ID, store.NormalizeEmail(account.Email), account.FirstName, account.LastName,
		account.PasswordHash, now, updated); err != nil {
		return mapErr(op, err)
	}
	for _, roleID := range roleIDs {
		if _, err := tx.ExecContext(ctx, `
			insert into `+s.accountRoles+` (account_id, role_id) values ($1, $2)
		`, account.ID, roleID); err != nil {
			return mapErr(op, err)
		}
	}
	return mapErr(op, tx.Commit())
}

// AccountByEmail looks up an account by its normalized email.
func (s *Store) AccountByEmail(ctx context.Context, email string) (store.Account, error) {
	row := s.db.QueryRowContext(ctx, `
		select `+accountColumns+` from `+s.accounts+` where email = $1
	`, store.NormalizeEmail(email))
	a, err := scanAccount(row)
	return a, mapErr("postgres.AccountByEmail", err)
}

// AccountByID returns the account or store.ErrNotFound.
func (s *Store) AccountByID(ctx context.Context, id string) (store.Account, error) {
	if _, err := uuid.Parse(id); err != nil {
		return store.Account{}, store.ErrNotFound
	}
	row := s.db.QueryRowContext(ctx, `
		select `+accountColumns+` from `+s.accounts+` where id = $1
	`, id)
	a, err := scanAccount(row)
	return a, mapErr("postgres.AccountByID", err)
}

// UpdatePasswordHash replaces the stored hash and bumps updated_at.
func (s *Store) UpdatePasswordHash(ctx context.Context, accountID, hash string, now time.Time) error {
	const op = "postgres.UpdatePasswordHash"
	res, err := s.db.ExecContext(ctx, `
		update `+s.accounts+` set password_hash = $2, updated_at = $3 where id = $1
	`, accountID, hash, now)
	if err != nil {
		return mapErr(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return mapErr(op, err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (store.Account, error) {
	var a store.Account
	err := row.Scan(&a.ID, &a.Email, &a.FirstName, &a.LastName, &a.PasswordHash, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}
