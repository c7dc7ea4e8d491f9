package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/MrEthical07/authcore/store"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

var tokenCols = []string{"id", "account_id", "token_hash", "created_at", "expires_at", "revoked", "revoked_at"}

func newMock(t *testing.T, opts ...Option) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	s, err := New(db, opts...)
	require.NoError(t, err)
	return s, mock
}

func TestRotateRefreshTokenCommits(t *testing.T) {
	s, mock := newMock(t)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	exp := now.Add(24 * time.Hour)

	mock.ExpectBegin()
	mock.ExpectQuery(`from "refresh_tokens" where token_hash = \$1 for update`).
		WithArgs("h1").
		WillReturnRows(sqlmock.NewRows(tokenCols).AddRow("t1", "acct-1", "h1", now.Add(-time.Hour), exp, false, nil))
	mock.ExpectExec(`update "refresh_tokens" set revoked = true, revoked_at = coalesce\(revoked_at, \$2\) where id = \$1`).
		WithArgs("t1", now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`insert into "refresh_tokens"`).
		WithArgs("t2", "acct-1", "h2", now, exp).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	prior, err := s.RotateRefreshToken(context.Background(), "h1", store.RefreshToken{
		ID: "t2", AccountID: "ignored", TokenHash: "h2", CreatedAt: now, ExpiresAt: exp,
	}, now)
	require.NoError(t, err)
	require.True(t, prior.Revoked)
	require.NotNil(t, prior.RevokedAt)
	require.True(t, prior.RevokedAt.Equal(now))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRotateRefreshTokenRejectsRevokedAndExpired(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	revokedAt := now.Add(-time.Minute)

	cases := []struct {
		name string
		row  []driver.Value
		want error
	}{
		{"revoked", []driver.Value{"t1", "acct-1", "h1", now.Add(-time.Hour), now.Add(time.Hour), true, revokedAt}, store.ErrTokenRevoked},
		{"expired", []driver.Value{"t1", "acct-1", "h1", now.Add(-2 * time.Hour), now, false, nil}, store.ErrTokenExpired},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s, mock := newMock(t)
			mock.ExpectBegin()
			mock.ExpectQuery(`for update`).WithArgs("h1").
				WillReturnRows(sqlmock.NewRows(tokenCols).AddRow(tc.row...))
			mock.ExpectRollback()

			_, err := s.RotateRefreshToken(context.Background(), "h1", store.RefreshToken{ID: "t2", TokenHash: "h2"}, now)
			require.ErrorIs(t, err, tc.want)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestRotateRefreshTokenNotFound(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectQuery(`for update`).WithArgs("nope").WillReturnRows(sqlmock.NewRows(tokenCols))
	mock.ExpectRollback()

	_, err := s.RotateRefreshToken(context.Background(), "nope", store.RefreshToken{ID: "t2", TokenHash: "h2"}, time.Now())
	require.ErrorIs(t, err, store.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRevokeRefreshTokenReturnsRow(t *testing.T) {
	s, mock := newMock(t)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	first := now.Add(-time.Hour)

	mock.ExpectQuery(`update "refresh_tokens" set revoked = true, revoked_at = coalesce\(revoked_at, \$2\) where token_hash = \$1 returning`).
		WithArgs("h1", now).
		WillReturnRows(sqlmock.NewRows(tokenCols).AddRow("t1", "acct-1", "h1", first, now.Add(time.Hour), true, first))

	row, err := s.RevokeRefreshToken(context.Background(), "h1", now)
	require.NoError(t, err)
	require.True(t, row.Revoked)
	require.True(t, row.RevokedAt.Equal(first))

	mock.ExpectQuery(`returning`).WithArgs("h2", now).WillReturnRows(sqlmock.NewRows(tokenCols))
	_, err = s.RevokeRefreshToken(context.Background(), "h2", now)
	require.ErrorIs(t, err, store.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRevokeAllRefreshTokensCountsNewlyRevoked(t *testing.T) {
	s, mock := newMock(t)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	mock.ExpectExec(`where account_id = \$1 and revoked = false`).
		WithArgs("acct-1", now).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := s.RevokeAllRefreshTokens(context.Background(), "acct-1", now)
	require.NoError(t, err)
	require.Equal(t, 3, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertRefreshTokenConflict(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectExec(`insert into "refresh_tokens"`).
		WillReturnError(&pgconn.PgError{Code: pgErrUniqueViolation, ConstraintName: "uq_refresh_tokens_token_hash"})

	err := s.InsertRefreshToken(context.Background(), store.RefreshToken{ID: "t1", AccountID: "a", TokenHash: "h"})
	require.ErrorIs(t, err, store.ErrConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAddRolePermissionsRollsBackOnDuplicate(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectExec(`insert into "role_permissions"`).WithArgs("r1", "p1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`insert into "role_permissions"`).WithArgs("r1", "p2").
		WillReturnError(&pgconn.PgError{Code: pgErrUniqueViolation})
	mock.ExpectRollback()

	err := s.AddRolePermissions(context.Background(), "r1", []string{"p1", "p2"})
	require.ErrorIs(t, err, store.ErrConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAddAccountRoleMapsForeignKey(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectExec(`insert into "account_roles"`).WithArgs("a1", "r1").
		WillReturnError(&pgconn.PgError{Code: pgErrForeignKeyViolation})

	require.ErrorIs(t, s.AddAccountRole(context.Background(), "a1", "r1"), store.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateAccountInsertsRoles(t *testing.T) {
	s, mock := newMock(t)
	id := "3f1c3c1e-8f52-4a52-9d55-0a0f4e7b8d11"

	mock.ExpectBegin()
	mock.ExpectExec(`insert into "accounts"`).
		WithArgs(id, "a@x.io", "Ada", "L", "phc", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`insert into "account_roles"`).WithArgs(id, "r1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := s.CreateAccount(context.Background(), store.Account{
		ID: id, Email: " A@X.io ", FirstName: "Ada", LastName: "L", PasswordHash: "phc",
	}, []string{"r1"})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateAccountDuplicateEmail(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectExec(`insert into "accounts"`).WillReturnError(&pgconn.PgError{Code: pgErrUniqueViolation, ConstraintName: "uq_accounts_email"})
	mock.ExpectRollback()

	err := s.CreateAccount(context.Background(), store.Account{Email: "a@x.io", PasswordHash: "phc"}, nil)
	require.ErrorIs(t, err, store.ErrConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGrantsUnionsRolePermissions(t *testing.T) {
	s, mock := newMock(t)
	id := "3f1c3c1e-8f52-4a52-9d55-0a0f4e7b8d11"

	mock.ExpectQuery(`select exists`).WithArgs(id).WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery(`select r.name, p.name`).WithArgs(id).WillReturnRows(
		sqlmock.NewRows([]string{"role", "perm"}).
			AddRow("ROLE_USER", "ACCOUNT_VIEW").
			AddRow("ROLE_ADMIN", "ACCOUNT_VIEW").
			AddRow("ROLE_ADMIN", "ROLE_ASSIGN").
			AddRow("ROLE_STUDENT", nil),
	)

	g, err := s.Grants(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, []string{"ROLE_ADMIN", "ROLE_STUDENT", "ROLE_USER"}, g.Roles)
	require.Equal(t, []string{"ACCOUNT_VIEW", "ROLE_ASSIGN"}, g.Permissions)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGrantsUnknownAccount(t *testing.T) {
	s, mock := newMock(t)
	_, err := s.Grants(context.Background(), "not-a-uuid")
	require.ErrorIs(t, err, store.ErrNotFound)

	id := "3f1c3c1e-8f52-4a52-9d55-0a0f4e7b8d11"
	mock.ExpectQuery(`select exists`).WithArgs(id).WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	_, err = s.Grants(context.Background(), id)
	require.ErrorIs(t, err, store.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureRoleIsIdempotent(t *testing.T) {
	s, mock := newMock(t)
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectExec(`on conflict \(name\) do nothing`).WithArgs(sqlmock.AnyArg(), "ROLE_USER", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`from "roles" where name = \$1`).WithArgs("ROLE_USER").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "created_at"}).AddRow("r1", "ROLE_USER", created))

	r, err := s.EnsureRole(context.Background(), "ROLE_USER")
	require.NoError(t, err)
	require.Equal(t, "r1", r.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdatePasswordHashMissingAccount(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectExec(`update "accounts" set password_hash`).WillReturnResult(sqlmock.NewResult(0, 0))
	err := s.UpdatePasswordHash(context.Background(), "a1", "phc", time.Now())
	require.ErrorIs(t, err, store.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithSchemaQualifiesTables(t *testing.T) {
	s, mock := newMock(t, WithSchema("auth"))
	mock.ExpectQuery(`from "auth"."refresh_tokens" where token_hash`).WithArgs("h").
		WillReturnError(sql.ErrNoRows)

	_, err := s.RefreshTokenByHash(context.Background(), "h")
	require.ErrorIs(t, err, store.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())

	_, err = New(s.DB(), WithSchema("bad;schema"))
	require.Error(t, err)
}

func TestMigrateAppliesPendingSteps(t *testing.T) {
	s, mock := newMock(t)
	steps, err := Migrations()
	require.NoError(t, err)
	require.NotEmpty(t, steps)
	require.Equal(t, "001_init", steps[0].Version)
	require.Contains(t, steps[0].SQL, "uq_refresh_tokens_token_hash")

	mock.ExpectExec(`create table if not exists "schema_migrations"`).WillReturnResult(sqlmock.NewResult(0, 0))
	for _, step := range steps {
		mock.ExpectQuery(`select exists`).WithArgs(step.Version).WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
		mock.ExpectBegin()
		mock.ExpectExec(`create table if not exists accounts`).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec(`insert into "schema_migrations"`).WithArgs(step.Version).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()
	}

	applied, err := s.Migrate(context.Background())
	require.NoError(t, err)
	require.Len(t, applied, len(steps))
	require.NoError(t, mock.ExpectationsWereMet())
}
