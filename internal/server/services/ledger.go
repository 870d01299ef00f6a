package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/minmer/recreatio-sub002/internal/common"
	"github.com/minmer/recreatio-sub002/internal/logging"
	"github.com/minmer/recreatio-sub002/internal/server/ledger"
	"github.com/minmer/recreatio-sub002/internal/server/models"
)

var ErrExportDisabled = errors.New("ledger export is not configured")

// LedgerService exposes chain verification to authenticated sessions and
// export to ledger operators. Both only read committed entries.
// Verification returns counters only; export carries every payload.
type LedgerService struct {
	st        Storage
	verifier  *ledger.Verifier
	exporter  *ledger.Exporter
	operators map[string]struct{}
	log       logging.Logger
}

// NewLedgerService builds the service; exporter may be nil when no object
// store is configured. operators lists the login ids allowed to export.
func NewLedgerService(st Storage, exporter *ledger.Exporter, operators []string, log logging.Logger) *LedgerService {
	ops := make(map[string]struct{}, len(operators))
	for _, id := range operators {
		if id, err := normalizeLoginID(id); err == nil {
			ops[id] = struct{}{}
		}
	}
	return &LedgerService{
		st:        st,
		verifier:  ledger.NewVerifier(st.Repos),
		exporter:  exporter,
		operators: ops,
		log:       log.With("service", "ledger"),
	}
}

func (s *LedgerService) requireOperator(ctx context.Context, c *Caller) error {
	acc, err := s.st.Repos.Accounts(s.st.DB).GetByID(ctx, c.AccountID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrForbidden
		}
		return err
	}
	if _, ok := s.operators[acc.LoginID]; !ok {
		return fmt.Errorf("%w: ledger export is limited to operators", common.ErrForbidden)
	}
	return nil
}

func parseChain(chain string) (models.LedgerChain, error) {
	c := models.LedgerChain(chain)
	if !c.Valid() {
		return "", fmt.Errorf("%w: chain %q", common.ErrInvalidInput, chain)
	}
	return c, nil
}

// Verify recomputes chain and reports signature statistics for roleID.
// An empty roleID defaults to the caller's master role.
func (s *LedgerService) Verify(ctx context.Context, c *Caller, chain, roleID string) (*ledger.Summary, error) {
	lc, err := parseChain(chain)
	if err != nil {
		return nil, err
	}
	if roleID == "" {
		roleID = c.MasterRoleID
	}
	sum, err := s.verifier.Verify(ctx, s.st.DB, lc, roleID)
	if err != nil {
		return nil, err
	}
	if sum.HashMismatches > 0 || sum.PreviousHashMismatches > 0 {
		s.log.Warn(ctx, "ledger chain does not verify", "chain", chain,
			"hash_mismatches", sum.HashMismatches, "previous_hash_mismatches", sum.PreviousHashMismatches)
	}
	return sum, nil
}

// Export uploads chain to the configured object store. Only operators may
// export, since chains hold entries of every account.
func (s *LedgerService) Export(ctx context.Context, c *Caller, chain string) (*ledger.Export, error) {
	if s.exporter == nil {
		return nil, ErrExportDisabled
	}
	if err := s.requireOperator(ctx, c); err != nil {
		s.log.Warn(ctx, "ledger export refused", "chain", chain, "account_id", c.AccountID)
		return nil, err
	}
	lc, err := parseChain(chain)
	if err != nil {
		return nil, err
	}
	out, err := s.exporter.Export(ctx, s.st.DB, lc)
	if err != nil {
		return nil, err
	}
	s.log.Info(ctx, "ledger exported", "chain", chain, "key", out.Key, "entries", out.Entries, "account_id", c.AccountID)
	return out, nil
}
