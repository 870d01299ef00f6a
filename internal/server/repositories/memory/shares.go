package memory

import (
	"context"
	"time"

	"github.com/minmer/recreatio-sub002/internal/common"
	"github.com/minmer/recreatio-sub002/internal/server/models"
)

type shareRepo struct{ h handle }

func (r *shareRepo) CreateRoleShare(_ context.Context, sh *models.PendingRoleShare) error {
	return r.h.write(func(s *state) error {
		s.roleShares[sh.ID] = row[models.PendingRoleShare]{n: s.next(), v: *sh}
		return nil
	})
}

func (r *shareRepo) GetRoleShare(_ context.Context, id string) (*models.PendingRoleShare, error) {
	var out *models.PendingRoleShare
	err := r.h.read(func(s *state) error {
		sh, ok := s.roleShares[id]
		if !ok {
			return common.ErrorNotFound
		}
		v := sh.v
		out = &v
		return nil
	})
	return out, err
}

func (r *shareRepo) ListPendingRoleShares(_ context.Context, targetRoleIDs []string) ([]*models.PendingRoleShare, error) {
	set := idSet(targetRoleIDs)
	var out []*models.PendingRoleShare
	err := r.h.read(func(s *state) error {
		out = s.roleShares.filter(func(v models.PendingRoleShare) bool {
			return in(set, v.TargetRoleID) && v.AcceptedUTC == nil
		})
		return nil
	})
	return out, err
}

func (r *shareRepo) MarkRoleShareAccepted(_ context.Context, id string, now time.Time) error {
	return r.h.write(func(s *state) error {
		sh, ok := s.roleShares[id]
		if !ok {
			return common.ErrorNotFound
		}
		if sh.v.AcceptedUTC != nil {
			return common.ErrShareNotPending
		}
		t := now
		sh.v.AcceptedUTC = &t
		s.roleShares[id] = sh
		return nil
	})
}

func (r *shareRepo) CreateDataShare(_ context.Context, sh *models.PendingDataShare) error {
	return r.h.write(func(s *state) error {
		s.dataShares[sh.ID] = row[models.PendingDataShare]{n: s.next(), v: *sh}
		return nil
	})
}

func (r *shareRepo) GetDataShare(_ context.Context, id string) (*models.PendingDataShare, error) {
	var out *models.PendingDataShare
	err := r.h.read(func(s *state) error {
		sh, ok := s.dataShares[id]
		if !ok {
			return common.ErrorNotFound
		}
		v := sh.v
		out = &v
		return nil
	})
	return out, err
}

func (r *shareRepo) ListPendingDataShares(_ context.Context, targetRoleIDs []string) ([]*models.PendingDataShare, error) {
	set := idSet(targetRoleIDs)
	var out []*models.PendingDataShare
	err := r.h.read(func(s *state) error {
		out = s.dataShares.filter(func(v models.PendingDataShare) bool {
			return in(set, v.TargetRoleID) && v.AcceptedUTC == nil
		})
		return nil
	})
	return out, err
}

func (r *shareRepo) MarkDataShareAccepted(_ context.Context, id string, now time.Time) error {
	return r.h.write(func(s *state) error {
		sh, ok := s.dataShares[id]
		if !ok {
			return common.ErrorNotFound
		}
		if sh.v.AcceptedUTC != nil {
			return common.ErrShareNotPending
		}
		t := now
		sh.v.AcceptedUTC = &t
		s.dataShares[id] = sh
		return nil
	})
}

func (r *shareRepo) CreateGrant(_ context.Context, g *models.DataKeyGrant) error {
	return r.h.write(func(s *state) error {
		s.grants[g.ID] = row[models.DataKeyGrant]{n: s.next(), v: *g}
		return nil
	})
}

func (r *shareRepo) ListGrantsByRoles(_ context.Context, roleIDs []string) ([]*models.DataKeyGrant, error) {
	set := idSet(roleIDs)
	var out []*models.DataKeyGrant
	err := r.h.read(func(s *state) error {
		out = s.grants.filter(func(v models.DataKeyGrant) bool { return in(set, v.RoleID) })
		return nil
	})
	return out, err
}

func (r *shareRepo) DeleteByField(_ context.Context, fieldID string) ([]string, error) {
	var keyIDs []string
	err := r.h.write(func(s *state) error {
		for id, sh := range s.dataShares {
			if sh.v.FieldID == fieldID {
				delete(s.dataShares, id)
			}
		}
		for _, g := range s.grants.filter(func(v models.DataKeyGrant) bool { return v.FieldID == fieldID }) {
			keyIDs = append(keyIDs, g.KeyEntryID)
			delete(s.grants, g.ID)
		}
		return nil
	})
	return keyIDs, err
}

type recoveryRepo struct{ h handle }

func (r *recoveryRepo) CreatePlan(_ context.Context, p *models.RoleRecoveryPlan) error {
	return r.h.write(func(s *state) error {
		s.plans[p.ID] = row[models.RoleRecoveryPlan]{n: s.next(), v: *p}
		return nil
	})
}

func (r *recoveryRepo) GetPlan(_ context.Context, id string) (*models.RoleRecoveryPlan, error) {
	var out *models.RoleRecoveryPlan
	err := r.h.read(func(s *state) error {
		p, ok := s.plans[id]
		if !ok {
			return common.ErrorNotFound
		}
		v := p.v
		out = &v
		return nil
	})
	return out, err
}

func (r *recoveryRepo) ListPlansByTargets(_ context.Context, targetRoleIDs []string) ([]*models.RoleRecoveryPlan, error) {
	set := idSet(targetRoleIDs)
	var out []*models.RoleRecoveryPlan
	err := r.h.read(func(s *state) error {
		out = s.plans.filter(func(v models.RoleRecoveryPlan) bool { return in(set, v.TargetRoleID) })
		return nil
	})
	return out, err
}

func (r *recoveryRepo) MarkPlanActivated(_ context.Context, id string, now time.Time) error {
	return r.h.write(func(s *state) error {
		p, ok := s.plans[id]
		if !ok || p.v.ActivatedUTC != nil {
			return common.ErrorNotFound
		}
		t := now
		p.v.ActivatedUTC = &t
		s.plans[id] = p
		return nil
	})
}

func (r *recoveryRepo) AddPlanShare(_ context.Context, sh *models.RoleRecoveryPlanShare) error {
	return r.h.write(func(s *state) error {
		s.planShares[sh.ID] = row[models.RoleRecoveryPlanShare]{n: s.next(), v: *sh}
		return nil
	})
}

func (r *recoveryRepo) ListPlanShares(_ context.Context, planIDs []string) ([]*models.RoleRecoveryPlanShare, error) {
	set := idSet(planIDs)
	var out []*models.RoleRecoveryPlanShare
	err := r.h.read(func(s *state) error {
		out = s.planShares.filter(func(v models.RoleRecoveryPlanShare) bool { return in(set, v.PlanID) })
		return nil
	})
	return out, err
}

func (r *recoveryRepo) CreateShare(_ context.Context, sh *models.RoleRecoveryShare) error {
	return r.h.write(func(s *state) error {
		s.recoveryShares[sh.ID] = row[models.RoleRecoveryShare]{n: s.next(), v: *sh}
		return nil
	})
}

func (r *recoveryRepo) ListActiveShares(_ context.Context, targetRoleIDs []string) ([]*models.RoleRecoveryShare, error) {
	set := idSet(targetRoleIDs)
	var out []*models.RoleRecoveryShare
	err := r.h.read(func(s *state) error {
		out = s.recoveryShares.filter(func(v models.RoleRecoveryShare) bool {
			return in(set, v.TargetRoleID) && v.RevokedUTC == nil
		})
		return nil
	})
	return out, err
}

func (r *recoveryRepo) RevokeActiveShares(_ context.Context, targetRoleID string, now time.Time) (int64, error) {
	var n int64
	err := r.h.write(func(s *state) error {
		for id, sh := range s.recoveryShares {
			if sh.v.TargetRoleID != targetRoleID || sh.v.RevokedUTC != nil {
				continue
			}
			t := now
			sh.v.RevokedUTC = &t
			s.recoveryShares[id] = sh
			n++
		}
		return nil
	})
	return n, err
}
