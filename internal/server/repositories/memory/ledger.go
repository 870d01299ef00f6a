package memory

import (
	"context"
	"fmt"

	"github.com/minmer/recreatio-sub002/internal/common"
	"github.com/minmer/recreatio-sub002/internal/server/models"
)

type ledgerRepo struct{ h handle }

func checkChain(chain models.LedgerChain) error {
	if !chain.Valid() {
		return fmt.Errorf("unknown ledger chain %q", chain)
	}
	return nil
}

// Lock is a no-op: memory writers are already serialized by the Store.
func (r *ledgerRepo) Lock(_ context.Context, chain models.LedgerChain) error {
	return checkChain(chain)
}

func (r *ledgerRepo) Last(_ context.Context, chain models.LedgerChain) (*models.LedgerEntry, error) {
	if err := checkChain(chain); err != nil {
		return nil, err
	}
	var out *models.LedgerEntry
	err := r.h.read(func(s *state) error {
		entries := s.ledgers[chain]
		if len(entries) == 0 {
			return common.ErrorNotFound
		}
		e := entries[len(entries)-1]
		out = &e
		return nil
	})
	return out, err
}

func (r *ledgerRepo) Insert(_ context.Context, e *models.LedgerEntry) error {
	if err := checkChain(e.Chain); err != nil {
		return err
	}
	return r.h.write(func(s *state) error {
		e.Sequence = s.next()
		s.ledgers[e.Chain] = append(s.ledgers[e.Chain], *e)
		return nil
	})
}

func (r *ledgerRepo) List(_ context.Context, chain models.LedgerChain) ([]*models.LedgerEntry, error) {
	if err := checkChain(chain); err != nil {
		return nil, err
	}
	var out []*models.LedgerEntry
	err := r.h.read(func(s *state) error {
		entries := s.ledgers[chain]
		out = make([]*models.LedgerEntry, len(entries))
		for i := range entries {
			e := entries[i]
			out[i] = &e
		}
		return nil
	})
	return out, err
}
