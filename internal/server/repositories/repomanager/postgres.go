// Package repomanager provides the PostgreSQL RepositoryManager, wiring
// repository constructors and database migrations (via goose).
package repomanager

import (
	"context"
	"database/sql"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/minmer/recreatio-sub002/internal/dbx"
	"github.com/minmer/recreatio-sub002/internal/server/migrations"
	"github.com/minmer/recreatio-sub002/internal/server/repositories/accounts"
	"github.com/minmer/recreatio-sub002/internal/server/repositories/edges"
	"github.com/minmer/recreatio-sub002/internal/server/repositories/fields"
	"github.com/minmer/recreatio-sub002/internal/server/repositories/keys"
	"github.com/minmer/recreatio-sub002/internal/server/repositories/ledger"
	"github.com/minmer/recreatio-sub002/internal/server/repositories/memberships"
	"github.com/minmer/recreatio-sub002/internal/server/repositories/recovery"
	"github.com/minmer/recreatio-sub002/internal/server/repositories/roles"
	"github.com/minmer/recreatio-sub002/internal/server/repositories/sessions"
	"github.com/minmer/recreatio-sub002/internal/server/repositories/shares"
	"github.com/pressly/goose/v3"
)

// PostgresRepositoryManager vends PostgreSQL-backed repositories.
type PostgresRepositoryManager struct{}

func (m *PostgresRepositoryManager) Accounts(db dbx.DBTX) accounts.Repository {
	return accounts.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) Sessions(db dbx.DBTX) sessions.Repository {
	return sessions.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) Roles(db dbx.DBTX) roles.Repository {
	return roles.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) Fields(db dbx.DBTX) fields.Repository {
	return fields.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) Keys(db dbx.DBTX) keys.Repository {
	return keys.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) Edges(db dbx.DBTX) edges.Repository {
	return edges.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) Memberships(db dbx.DBTX) memberships.Repository {
	return memberships.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) Shares(db dbx.DBTX) shares.Repository {
	return shares.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) Recovery(db dbx.DBTX) recovery.Repository {
	return recovery.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) Ledger(db dbx.DBTX) ledger.Repository {
	return ledger.NewPostgresRepository(db)
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// RunMigrations applies the embedded migrations to db.
func (m *PostgresRepositoryManager) RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	return gooseUpContext(ctx, db, ".")
}

// NewPostgresRepositoryManager constructs a PostgreSQL-backed RepositoryManager.
func NewPostgresRepositoryManager() RepositoryManager {
	return &PostgresRepositoryManager{}
}
