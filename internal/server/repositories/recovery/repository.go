package recovery

import (
	"context"
	"time"

	"github.com/minmer/recreatio-sub002/internal/server/models"
)

type Repository interface {
	CreatePlan(ctx context.Context, p *models.RoleRecoveryPlan) error
	GetPlan(ctx context.Context, id string) (*models.RoleRecoveryPlan, error)
	ListPlansByTargets(ctx context.Context, targetRoleIDs []string) ([]*models.RoleRecoveryPlan, error)
	MarkPlanActivated(ctx context.Context, id string, now time.Time) error

	AddPlanShare(ctx context.Context, s *models.RoleRecoveryPlanShare) error
	ListPlanShares(ctx context.Context, planIDs []string) ([]*models.RoleRecoveryPlanShare, error)

	CreateShare(ctx context.Context, s *models.RoleRecoveryShare) error
	ListActiveShares(ctx context.Context, targetRoleIDs []string) ([]*models.RoleRecoveryShare, error)
	// RevokeActiveShares revokes every live share of the target role and
	// returns how many it revoked.
	RevokeActiveShares(ctx context.Context, targetRoleID string, now time.Time) (int64, error)
}
