package fields

import (
	"context"
	"time"

	"github.com/minmer/recreatio-sub002/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, field *models.RoleField) error
	GetByID(ctx context.Context, id string) (*models.RoleField, error)
	GetByIDs(ctx context.Context, ids []string) ([]*models.RoleField, error)
	// ListByRoles returns the fields of the given roles ordered by creation time.
	ListByRoles(ctx context.Context, roleIDs []string) ([]*models.RoleField, error)
	UpdateValue(ctx context.Context, id string, encryptedValue []byte, now time.Time) error
	Delete(ctx context.Context, id string) error
}
