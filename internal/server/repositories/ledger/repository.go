package ledger

import (
	"context"

	"github.com/minmer/recreatio-sub002/internal/server/models"
)

// Repository persists the three ledger chains. Appends must run inside a
// transaction that first called Lock for the chain.
type Repository interface {
	// Lock serializes appends to chain until the surrounding transaction ends.
	Lock(ctx context.Context, chain models.LedgerChain) error
	// Last returns the newest entry of chain, or common.ErrorNotFound when the
	// chain is empty.
	Last(ctx context.Context, chain models.LedgerChain) (*models.LedgerEntry, error)
	Insert(ctx context.Context, e *models.LedgerEntry) error
	// List returns the whole chain oldest first.
	List(ctx context.Context, chain models.LedgerChain) ([]*models.LedgerEntry, error)
}
