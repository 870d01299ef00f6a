package dbx

import (
	"context"
	"database/sql"
)

// Transactor runs a unit of work atomically. Implementations commit when fn
// returns nil and discard every write otherwise.
type Transactor interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx DBTX) error) error
}

// SQLTransactor is the database/sql Transactor, a thin wrapper over WithTx.
type SQLTransactor struct {
	db   *sql.DB
	opts *sql.TxOptions
}

// NewSQLTransactor returns a Transactor running read-committed transactions on db.
func NewSQLTransactor(db *sql.DB) *SQLTransactor {
	return &SQLTransactor{db: db, opts: &sql.TxOptions{Isolation: sql.LevelReadCommitted}}
}

func (t *SQLTransactor) WithTx(ctx context.Context, fn func(ctx context.Context, tx DBTX) error) error {
	return WithTx(ctx, t.db, t.opts, fn)
}
