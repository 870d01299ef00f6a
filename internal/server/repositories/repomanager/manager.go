package repomanager

import (
	"context"
	"database/sql"

	"github.com/minmer/recreatio-sub002/internal/dbx"
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
)

// RepositoryManager vends repositories bound to a DBTX, so the same code runs
// on a plain handle or inside a transaction.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Accounts(db dbx.DBTX) accounts.Repository
	Sessions(db dbx.DBTX) sessions.Repository
	Roles(db dbx.DBTX) roles.Repository
	Fields(db dbx.DBTX) fields.Repository
	Keys(db dbx.DBTX) keys.Repository
	Edges(db dbx.DBTX) edges.Repository
	Memberships(db dbx.DBTX) memberships.Repository
	Shares(db dbx.DBTX) shares.Repository
	Recovery(db dbx.DBTX) recovery.Repository
	Ledger(db dbx.DBTX) ledger.Repository
}
