// Package memory is an in-process implementation of every repository, used
// for -storage memory and for service tests. Transactions work on a copy of
// the state that replaces the live state only when the unit of work succeeds
// and its context is still alive.
package memory

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"sync"

	"github.com/minmer/recreatio-sub002/internal/dbx"
	"github.com/minmer/recreatio-sub002/internal/server/models"
)

var (
	errNoSQL         = errors.New("memory store does not run SQL")
	errForeignHandle = errors.New("memory repositories need a memory Store or Tx")
)

// noSQL satisfies dbx.DBTX for handles that never execute SQL.
type noSQL struct{}

func (noSQL) ExecContext(context.Context, string, ...any) (sql.Result, error) { return nil, errNoSQL }

func (noSQL) QueryContext(context.Context, string, ...any) (*sql.Rows, error) { return nil, errNoSQL }

func (noSQL) QueryRowContext(context.Context, string, ...any) *sql.Row { return nil }

type row[T any] struct {
	n int64
	v T
}

type table[K comparable, T any] map[K]row[T]

func (t table[K, T]) clone() table[K, T] {
	c := make(table[K, T], len(t))
	for k, v := range t {
		c[k] = v
	}
	return c
}

// filter returns copies of the matching values in insertion order.
func (t table[K, T]) filter(keep func(T) bool) []*T {
	rows := make([]row[T], 0, len(t))
	for _, r := range t {
		if keep == nil || keep(r.v) {
			rows = append(rows, r)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].n < rows[j].n })

	out := make([]*T, len(rows))
	for i := range rows {
		v := rows[i].v
		out[i] = &v
	}
	return out
}

type edgeKey struct{ parent, child string }

type membershipKey struct{ account, role string }

type state struct {
	seq            int64
	accounts       table[string, models.Account]
	sessions       table[string, models.Session]
	roles          table[string, models.Role]
	fields         table[string, models.RoleField]
	keys           table[string, models.KeyEntry]
	edges          table[edgeKey, models.RoleEdge]
	memberships    table[membershipKey, models.Membership]
	roleShares     table[string, models.PendingRoleShare]
	dataShares     table[string, models.PendingDataShare]
	grants         table[string, models.DataKeyGrant]
	plans          table[string, models.RoleRecoveryPlan]
	planShares     table[string, models.RoleRecoveryPlanShare]
	recoveryShares table[string, models.RoleRecoveryShare]
	ledgers        map[models.LedgerChain][]models.LedgerEntry
}

func newState() *state {
	return &state{
		accounts:       table[string, models.Account]{},
		sessions:       table[string, models.Session]{},
		roles:          table[string, models.Role]{},
		fields:         table[string, models.RoleField]{},
		keys:           table[string, models.KeyEntry]{},
		edges:          table[edgeKey, models.RoleEdge]{},
		memberships:    table[membershipKey, models.Membership]{},
		roleShares:     table[string, models.PendingRoleShare]{},
		dataShares:     table[string, models.PendingDataShare]{},
		grants:         table[string, models.DataKeyGrant]{},
		plans:          table[string, models.RoleRecoveryPlan]{},
		planShares:     table[string, models.RoleRecoveryPlanShare]{},
		recoveryShares: table[string, models.RoleRecoveryShare]{},
		ledgers:        map[models.LedgerChain][]models.LedgerEntry{},
	}
}

func (s *state) clone() *state {
	c := &state{
		seq:            s.seq,
		accounts:       s.accounts.clone(),
		sessions:       s.sessions.clone(),
		roles:          s.roles.clone(),
		fields:         s.fields.clone(),
		keys:           s.keys.clone(),
		edges:          s.edges.clone(),
		memberships:    s.memberships.clone(),
		roleShares:     s.roleShares.clone(),
		dataShares:     s.dataShares.clone(),
		grants:         s.grants.clone(),
		plans:          s.plans.clone(),
		planShares:     s.planShares.clone(),
		recoveryShares: s.recoveryShares.clone(),
		ledgers:        make(map[models.LedgerChain][]models.LedgerEntry, len(s.ledgers)),
	}
	for chain, entries := range s.ledgers {
		c.ledgers[chain] = append([]models.LedgerEntry(nil), entries...)
	}
	return c
}

func (s *state) next() int64 {
	s.seq++
	return s.seq
}

// handle gives repositories access to a state.
type handle interface {
	read(fn func(*state) error) error
	write(fn func(*state) error) error
}

// Store is the live state. It implements dbx.DBTX, so it can be handed to a
// RepositoryManager like *sql.DB, and dbx.Transactor.
type Store struct {
	noSQL
	writeMu sync.Mutex
	mu      sync.RWMutex
	st      *state
}

func NewStore() *Store {
	return &Store{st: newState()}
}

func (s *Store) read(fn func(*state) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(s.st)
}

func (s *Store) write(fn func(*state) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.st)
}

// WithTx runs fn against a private copy of the state. Writers are
// serialized; the copy becomes live only if fn succeeds and ctx is not done.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx dbx.DBTX) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.RLock()
	work := s.st.clone()
	s.mu.RUnlock()

	if err := fn(ctx, &Tx{st: work}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	s.st = work
	s.mu.Unlock()
	return nil
}

// Tx is the handle passed to WithTx callbacks. It must not outlive the callback.
type Tx struct {
	noSQL
	st *state
}

func (t *Tx) read(fn func(*state) error) error  { return fn(t.st) }
func (t *Tx) write(fn func(*state) error) error { return fn(t.st) }

type foreignHandle struct{}

func (foreignHandle) read(func(*state) error) error  { return errForeignHandle }
func (foreignHandle) write(func(*state) error) error { return errForeignHandle }

func handleFor(db dbx.DBTX) handle {
	switch h := db.(type) {
	case *Store:
		return h
	case *Tx:
		return h
	}
	return foreignHandle{}
}
