package memory

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
	"github.com/minmer/recreatio-sub002/internal/server/repositories/repomanager"
	"github.com/minmer/recreatio-sub002/internal/server/repositories/roles"
	"github.com/minmer/recreatio-sub002/internal/server/repositories/sessions"
	"github.com/minmer/recreatio-sub002/internal/server/repositories/shares"
)

// Manager vends memory repositories. The DBTX passed to each accessor must be
// the *Store or the *Tx handed out by Store.WithTx.
type Manager struct{}

var _ repomanager.RepositoryManager = Manager{}

func NewManager() repomanager.RepositoryManager {
	return Manager{}
}

func (Manager) RunMigrations(context.Context, *sql.DB) error { return nil }

func (Manager) Accounts(db dbx.DBTX) accounts.Repository { return &accountRepo{h: handleFor(db)} }
func (Manager) Sessions(db dbx.DBTX) sessions.Repository { return &sessionRepo{h: handleFor(db)} }
func (Manager) Roles(db dbx.DBTX) roles.Repository       { return &roleRepo{h: handleFor(db)} }
func (Manager) Fields(db dbx.DBTX) fields.Repository     { return &fieldRepo{h: handleFor(db)} }
func (Manager) Keys(db dbx.DBTX) keys.Repository         { return &keyRepo{h: handleFor(db)} }
func (Manager) Edges(db dbx.DBTX) edges.Repository       { return &edgeRepo{h: handleFor(db)} }
func (Manager) Memberships(db dbx.DBTX) memberships.Repository {
	return &membershipRepo{h: handleFor(db)}
}
func (Manager) Shares(db dbx.DBTX) shares.Repository     { return &shareRepo{h: handleFor(db)} }
func (Manager) Recovery(db dbx.DBTX) recovery.Repository { return &recoveryRepo{h: handleFor(db)} }
func (Manager) Ledger(db dbx.DBTX) ledger.Repository     { return &ledgerRepo{h: handleFor(db)} }
