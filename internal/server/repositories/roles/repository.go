package roles

import (
	"context"
	"time"

	"github.com/minmer/recreatio-sub002/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, role *models.Role) error
	GetByID(ctx context.Context, id string) (*models.Role, error)
	// GetByIDs returns the roles that exist among ids, in no particular order.
	GetByIDs(ctx context.Context, ids []string) ([]*models.Role, error)
	UpdateBlob(ctx context.Context, id string, blob []byte, now time.Time) error
}
