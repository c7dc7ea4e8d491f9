package postgres

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Migration is one embedded schema step.
type Migration struct {
	Version string
	SQL     string
}

// Migrations lists the embedded steps in apply order.
func Migrations() ([]Migration, error) {
	entries, err := fs.ReadDir(migrationFS, "migrations")
	if err != nil {
		return nil, err
	}
	out := make([]Migration, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		body, err := migrationFS.ReadFile("migrations/" + e.Name())
		if err != nil {
			return nil, err
		}
		out = append(out, Migration{Version: strings.TrimSuffix(e.Name(), ".sql"), SQL: string(body)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// Migrate applies every embedded step not yet recorded in schema_migrations.
// Each step runs in its own transaction. It returns the versions applied.
func (s *Store) Migrate(ctx context.Context) ([]string, error) {
	steps, err := Migrations()
	if err != nil {
		return nil, err
	}

	if s.schema != "" {
		if _, err := s.db.ExecContext(ctx, `create schema if not exists `+pgx.Identifier{s.schema}.Sanitize()); err != nil {
			return nil, mapErr("postgres.Migrate", err)
		}
	}
	versions := s.table("schema_migrations")
	if _, err := s.db.ExecContext(ctx, `
		create table if not exists `+versions+` (
			version    text primary key,
			applied_at timestamptz not null default now()
		)`); err != nil {
		return nil, mapErr("postgres.Migrate", err)
	}

	var applied []string
	for _, step := range steps {
		var exists bool
		if err := s.db.QueryRowContext(ctx,
			`select exists(select 1 from `+versions+` where version = $1)`, step.Version,
		).Scan(&exists); err != nil {
			return applied, mapErr("postgres.Migrate", err)
		}
		if exists {
			continue
		}

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return applied, mapErr("postgres.Migrate", err)
		}
		if s.schema != "" {
			if _, err := tx.ExecContext(ctx, `set local search_path to `+pgx.Identifier{s.schema}.Sanitize()); err != nil {
				_ = tx.Rollback()
				return applied, mapErr("postgres.Migrate", err)
			}
		}
		if _, err := tx.ExecContext(ctx, step.SQL); err != nil {
			_ = tx.Rollback()
			return applied, fmt.Errorf("postgres.Migrate %s: %w", step.Version, err)
		}
		if _, err := tx.ExecContext(ctx, `insert into `+versions+` (version) values ($1)`, step.Version); err != nil {
			_ = tx.Rollback()
			return applied, mapErr("postgres.Migrate", err)
		}
		if err := tx.Commit(); err != nil {
			return applied, mapErr("postgres.Migrate", err)
		}
		applied = append(applied, step.Version)
	}
	return applied, nil
}
