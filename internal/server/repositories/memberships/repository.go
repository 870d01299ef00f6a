package memberships

import (
	"context"

	"github.com/minmer/recreatio-sub002/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, m *models.Membership) error
	ListByAccount(ctx context.Context, accountID string) ([]*models.Membership, error)
}
