package shares

import (
	"context"
	"time"

	"github.com/minmer/recreatio-sub002/internal/server/models"
)

// Repository stores pending role and data shares and the data key grants
// produced by accepting them.
type Repository interface {
	CreateRoleShare(ctx context.Context, s *models.PendingRoleShare) error
	GetRoleShare(ctx context.Context, id string) (*models.PendingRoleShare, error)
	ListPendingRoleShares(ctx context.Context, targetRoleIDs []string) ([]*models.PendingRoleShare, error)
	// MarkRoleShareAccepted fails with common.ErrShareNotPending when the
	// share was already accepted.
	MarkRoleShareAccepted(ctx context.Context, id string, now time.Time) error

	CreateDataShare(ctx context.Context, s *models.PendingDataShare) error
	GetDataShare(ctx context.Context, id string) (*models.PendingDataShare, error)
	ListPendingDataShares(ctx context.Context, targetRoleIDs []string) ([]*models.PendingDataShare, error)
	MarkDataShareAccepted(ctx context.Context, id string, now time.Time) error

	CreateGrant(ctx context.Context, g *models.DataKeyGrant) error
	ListGrantsByRoles(ctx context.Context, roleIDs []string) ([]*models.DataKeyGrant, error)
	// DeleteByField removes every share and grant of a field and returns the
	// key entry ids the grants referenced.
	DeleteByField(ctx context.Context, fieldID string) ([]string, error)
}
