package services

import (
	"context"
	"fmt"

	"github.com/minmer/recreatio-sub002/internal/common"
	"github.com/minmer/recreatio-sub002/internal/cryptox"
	"github.com/minmer/recreatio-sub002/internal/dbx"
	"github.com/minmer/recreatio-sub002/internal/logging"
	"github.com/minmer/recreatio-sub002/internal/server/ledger"
	"github.com/minmer/recreatio-sub002/internal/server/models"
)

// recoveryKeys is the plaintext of RoleRecoveryPlan.EncryptedRoleKeys.
type recoveryKeys struct {
	ReadKey  []byte `json:"readKey"`
	WriteKey []byte `json:"writeKey"`
}

func recoveryAAD(planID string) []byte {
	return []byte("recovery:" + planID)
}

// RecoveryService manages recovery plans for roles the caller owns. A plan
// stores the target keys under a random recovery key that is split n-of-n
// across trustee roles; activation publishes the shares as the live set.
type RecoveryService struct {
	base
}

func NewRecoveryService(st Storage, log logging.Logger) *RecoveryService {
	return &RecoveryService{base: newBase(st, log.With("service", "recovery"))}
}

func (s *RecoveryService) requireOwned(ctx context.Context, tx dbx.DBTX, a *access, roleID string) error {
	closure, err := s.ownershipClosure(ctx, tx, a)
	if err != nil {
		return err
	}
	if _, owned := closure[roleID]; !owned {
		return common.ErrForbidden
	}
	return nil
}

// PrepareRecoveryKey drafts a plan for targetID with one share per trustee.
func (s *RecoveryService) PrepareRecoveryKey(ctx context.Context, c *Caller, targetID string, trusteeIDs []string) (string, error) {
	if len(trusteeIDs) == 0 {
		return "", common.ErrRecoveryPlanEmpty
	}
	seen := map[string]bool{}
	for _, id := range trusteeIDs {
		if id == "" || id == targetID || seen[id] {
			return "", fmt.Errorf("%w: trustee %q", common.ErrInvalidInput, id)
		}
		seen[id] = true
	}

	planID := newID()
	err := s.st.Tx.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		a, err := s.loadAccess(ctx, tx, c)
		if err != nil {
			return err
		}
		if err := s.requireOwned(ctx, tx, a, targetID); err != nil {
			return err
		}
		read, _ := a.ring.ReadKey(targetID)
		write, ok := a.ring.WriteKey(targetID)
		if !ok {
			return common.ErrForbidden
		}

		trustees, err := s.st.Repos.Roles(tx).GetByIDs(ctx, trusteeIDs)
		if err != nil {
			return err
		}
		byID := make(map[string]*models.Role, len(trustees))
		for _, r := range trustees {
			byID[r.ID] = r
		}
		for _, id := range trusteeIDs {
			if _, ok := byID[id]; !ok {
				return fmt.Errorf("trustee %s: %w", id, common.ErrorNotFound)
			}
		}

		recoveryKey, err := cryptox.GenerateKey()
		if err != nil {
			return err
		}
		defer common.WipeByteArray(recoveryKey)

		now := s.now()
		plan := &models.RoleRecoveryPlan{ID: planID, TargetRoleID: targetID, CreatedByRoleID: c.MasterRoleID, CreatedUTC: now}
		plan.EncryptedRoleKeys, err = cryptox.EncryptJSON(recoveryKeys{ReadKey: read, WriteKey: write}, recoveryKey, recoveryAAD(planID))
		if err != nil {
			return err
		}
		if err := s.st.Repos.Recovery(tx).CreatePlan(ctx, plan); err != nil {
			return err
		}

		parts, err := cryptox.SplitSecret(recoveryKey, len(trusteeIDs))
		if err != nil {
			return err
		}
		for i, id := range trusteeIDs {
			sealed, err := cryptox.SealFor(byID[id].PublicEncryptionKey, parts[i])
			common.WipeByteArray(parts[i])
			if err != nil {
				return err
			}
			share := &models.RoleRecoveryPlanShare{ID: newID(), PlanID: planID, SharedWithRoleID: id, EncryptedShare: sealed, CreatedUTC: now}
			if err := s.st.Repos.Recovery(tx).AddPlanShare(ctx, share); err != nil {
				return err
			}
		}

		signer, err := s.roleSigner(ctx, tx, a, targetID)
		if err != nil {
			return err
		}
		_, err = s.ledger.Append(ctx, tx, ledger.Event{Chain: models.ChainBusiness, Type: ledger.EventRecoveryPlanPrepared, Actor: c.AccountID,
			Payload: map[string]any{"planId": planID, "targetRoleId": targetID, "trustees": trusteeIDs}, Signer: signer})
		return err
	})
	if err != nil {
		return "", err
	}
	return planID, nil
}

// ActivateRecoveryKey makes a draft plan the live share set of its target,
// revoking the previous set. Activating an active plan does nothing.
func (s *RecoveryService) ActivateRecoveryKey(ctx context.Context, c *Caller, planID string) error {
	return s.st.Tx.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		a, err := s.loadAccess(ctx, tx, c)
		if err != nil {
			return err
		}
		repo := s.st.Repos.Recovery(tx)
		plan, err := repo.GetPlan(ctx, planID)
		if err != nil {
			return err
		}
		if err := s.requireOwned(ctx, tx, a, plan.TargetRoleID); err != nil {
			return err
		}
		if plan.ActivatedUTC != nil {
			return nil
		}
		planShares, err := repo.ListPlanShares(ctx, []string{plan.ID})
		if err != nil {
			return err
		}
		if len(planShares) == 0 {
			return common.ErrRecoveryPlanEmpty
		}

		now := s.now()
		revoked, err := repo.RevokeActiveShares(ctx, plan.TargetRoleID, now)
		if err != nil {
			return err
		}
		for _, ps := range planShares {
			share := &models.RoleRecoveryShare{ID: newID(), PlanID: plan.ID, TargetRoleID: plan.TargetRoleID,
				SharedWithRoleID: ps.SharedWithRoleID, EncryptedShare: ps.EncryptedShare, CreatedUTC: now}
			if err := repo.CreateShare(ctx, share); err != nil {
				return err
			}
		}
		if err := repo.MarkPlanActivated(ctx, plan.ID, now); err != nil {
			return err
		}

		signer, err := s.roleSigner(ctx, tx, a, plan.TargetRoleID)
		if err != nil {
			return err
		}
		_, err = s.ledger.Append(ctx, tx, ledger.Event{Chain: models.ChainKey, Type: ledger.EventRecoveryPlanActivated, Actor: c.AccountID,
			Payload: map[string]any{"planId": plan.ID, "targetRoleId": plan.TargetRoleID, "shares": len(planShares), "revoked": revoked},
			Signer:  signer})
		return err
	})
}

// RevokeRecoveryShares revokes the live share set of targetID and returns how
// many shares were revoked.
func (s *RecoveryService) RevokeRecoveryShares(ctx context.Context, c *Caller, targetID string) (int64, error) {
	var revoked int64
	err := s.st.Tx.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		a, err := s.loadAccess(ctx, tx, c)
		if err != nil {
			return err
		}
		if err := s.requireOwned(ctx, tx, a, targetID); err != nil {
			return err
		}
		revoked, err = s.st.Repos.Recovery(tx).RevokeActiveShares(ctx, targetID, s.now())
		if err != nil {
			return err
		}
		if revoked == 0 {
			return nil
		}

		signer, err := s.roleSigner(ctx, tx, a, targetID)
		if err != nil {
			return err
		}
		_, err = s.ledger.Append(ctx, tx, ledger.Event{Chain: models.ChainKey, Type: ledger.EventRecoverySharesRevoked, Actor: c.AccountID,
			Payload: map[string]any{"targetRoleId": targetID, "revoked": revoked}, Signer: signer})
		return err
	})
	return revoked, err
}
