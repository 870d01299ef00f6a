package edges

import (
	"context"

	"github.com/minmer/recreatio-sub002/internal/server/models"
)

type Repository interface {
	// Upsert creates the edge or replaces the relationship of an existing
	// parent/child pair.
	Upsert(ctx context.Context, edge *models.RoleEdge) error
	ListByParents(ctx context.Context, parentIDs []string) ([]*models.RoleEdge, error)
	Delete(ctx context.Context, parentID, childID string) error
}
