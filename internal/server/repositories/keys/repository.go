package keys

import (
	"context"

	"github.com/minmer/recreatio-sub002/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, entry *models.KeyEntry) error
	// GetByIDs fetches every requested key entry in one round trip.
	GetByIDs(ctx context.Context, ids []string) ([]*models.KeyEntry, error)
	DeleteByIDs(ctx context.Context, ids []string) error
}
